// Package dcmlog provides the Logger contract threaded through every engine
// component, and a zap-backed implementation of it. The shape mirrors
// revid.Logger from the AusOcean capture pipeline: a level, a message and
// key/value params, nothing fancier, so callers can swap in their own
// logger without pulling zap into their dependency graph.
package dcmlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Log levels, matching zapcore ordering so they translate directly.
const (
	Debug int8 = iota - 1
	Info
	Warn
	Error
)

// Logger is the logging contract every engine component accepts.
type Logger interface {
	SetLevel(level int8)
	Log(level int8, message string, params ...interface{})
}

// discard is the default Logger: it drops everything. Components default
// to discard rather than requiring every caller to wire a real logger.
type discard struct{}

func (discard) SetLevel(int8)                              {}
func (discard) Log(int8, string, ...interface{})           {}

// Discard is the no-op Logger used when a caller does not supply one.
var Discard Logger = discard{}

// ZapLogger adapts a zap.SugaredLogger to the Logger contract, with an
// atomic level so SetLevel can be called concurrently with Log.
type ZapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// Options configures New.
type Options struct {
	// DebugMode gates whether anything is emitted at all; per the error
	// handling design, the core never logs in release builds except
	// through a debug-mode-gated sink.
	DebugMode bool

	// FilePath, if non-empty, adds a rotating file sink backed by
	// lumberjack alongside the structured console sink.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a Logger. When opts.DebugMode is false, New returns
// dcmlog.Discard regardless of the rest of opts.
func New(opts Options) Logger {
	if !opts.DebugMode {
		return Discard
	}

	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(zapcore.Lock(zapcore.AddSync(noopSyncer{}))), level),
	}
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	return &ZapLogger{sugar: zap.New(core).Sugar(), level: level}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// SetLevel adjusts the minimum level emitted.
func (l *ZapLogger) SetLevel(level int8) {
	l.level.SetLevel(zapcore.Level(level))
}

// Log emits a message at the given level, passing params to zap's
// sugared *w methods as alternating key/value pairs.
func (l *ZapLogger) Log(level int8, message string, params ...interface{}) {
	switch zapcore.Level(level) {
	case zapcore.DebugLevel:
		l.sugar.Debugw(message, params...)
	case zapcore.WarnLevel:
		l.sugar.Warnw(message, params...)
	case zapcore.ErrorLevel:
		l.sugar.Errorw(message, params...)
	default:
		l.sugar.Infow(message, params...)
	}
}

// noopSyncer discards console output; the engine core never prints to
// stdout in release builds, and debug builds are expected to point
// FilePath at a real sink if console output is wanted.
type noopSyncer struct{}

func (noopSyncer) Write(p []byte) (int, error) { return len(p), nil }
func (noopSyncer) Sync() error                 { return nil }
