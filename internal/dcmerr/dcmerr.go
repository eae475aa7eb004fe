// Package dcmerr defines the stable error taxonomy shared by every engine
// component. Each Kind maps to exactly one remediation story for the UI
// layer; components never invent ad-hoc error strings for conditions that
// already have a Kind.
package dcmerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a stable, UI-mappable error classification.
type Kind string

// The error kinds of the engine. network-retryable never leaves the
// data-source retry loop.
const (
	NotDICOM                   Kind = "not-dicom"
	ParseTruncated             Kind = "parse-truncated"
	UnsupportedTransferSyntax  Kind = "unsupported-transfer-syntax"
	PixelDataMissing           Kind = "pixel-data-missing"
	FrameOutOfRange            Kind = "frame-out-of-range"
	DecodeFailed               Kind = "decode-failed"
	TextureTooLarge            Kind = "texture-too-large"
	NetworkFailed              Kind = "network-failed"
	networkRetryable           Kind = "network-retryable"
	Cancelled                  Kind = "cancelled"
	CapExceeded                Kind = "cap-exceeded"
	PermissionDenied           Kind = "permission-denied"
)

// Error is the concrete error value returned by engine operations. It
// carries a stable Kind, an optional wrapped cause, and loosely-typed
// fields useful for logging (e.g. the offending frame number).
type Error struct {
	Kind   Kind
	Msg    string
	Fields map[string]interface{}
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, dcmerr.New(kind, "")) style kind comparisons.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error of the given kind with no cause.
func New(kind Kind, msg string, fields ...map[string]interface{}) *Error {
	e := &Error{Kind: kind, Msg: msg}
	if len(fields) > 0 {
		e.Fields = fields[0]
	}
	return e
}

// Wrap builds an *Error of the given kind, wrapping cause with a stack
// trace via github.com/pkg/errors so the original site is preserved.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, cause: errors.Wrap(cause, msg)}
}

// Retryable reports whether err should be retried by a data-source retry
// loop. It is the only place the private networkRetryable kind is
// observed; nothing outside the retry loop may see it.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == networkRetryable
	}
	return false
}

// NewRetryable constructs the private retryable marker that Retryable
// (above) detects. Only the wadors package calls it.
func NewRetryable(msg string, cause error) *Error {
	return &Error{Kind: networkRetryable, Msg: msg, cause: cause}
}

// KindOf extracts the Kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
