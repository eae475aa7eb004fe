// Package dcmctx provides the cancellation-token type threaded through
// every suspendable engine operation (decode, data-source loads). It is a
// thin wrapper over context.Context: the engine's suspension points are
// genuinely Go goroutines/channels, so there is no need for a bespoke
// cooperative-cancellation primitive the way a single-threaded JS core
// would need one.
package dcmctx

import (
	"context"
	"time"
)

// Token is a cancellation token passed to data-source and decode
// operations.
type Token struct {
	context.Context
}

// Background returns a Token that never cancels.
func Background() Token { return Token{context.Background()} }

// WithTimeout returns a Token that cancels after d, and the associated
// cancel function. Callers must call cancel to release resources even if
// the timeout elapses.
func WithTimeout(parent Token, d time.Duration) (Token, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent.Context, d)
	return Token{ctx}, cancel
}

// WithCancel returns a Token that cancels when the returned function is
// called.
func WithCancel(parent Token) (Token, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent.Context)
	return Token{ctx}, cancel
}

// Cancelled reports whether the token has already fired.
func (t Token) Cancelled() bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}
