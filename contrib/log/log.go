// Package log is the logging façade used throughout the tree. It keeps
// the small Logger/Helper call surface the rest of the codebase already
// expects, backed by go.uber.org/zap with a lumberjack-rotated file
// sink when a Logger.Path is configured.
package log

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors zapcore.Level so callers never import zap directly.
type Level = zapcore.Level

const (
	LevelDebug Level = zapcore.DebugLevel
	LevelInfo  Level = zapcore.InfoLevel
	LevelWarn  Level = zapcore.WarnLevel
	LevelError Level = zapcore.ErrorLevel
)

// DefaultMessageKey is the structured-log field name ("msg") under which
// the Helper methods pass the formatted message.
const DefaultMessageKey = "msg"

// Logger is the minimal structured-logging contract implementations
// must satisfy. With returns a derived Logger carrying additional fixed
// key/value pairs.
type Logger interface {
	Log(level Level, keyvals ...any)
}

type zapLogger struct {
	z *zap.SugaredLogger
}

func (l *zapLogger) Log(level Level, keyvals ...any) {
	switch level {
	case LevelDebug:
		l.z.Debugw(DefaultMessageKey, keyvals...)
	case LevelWarn:
		l.z.Warnw(DefaultMessageKey, keyvals...)
	case LevelError:
		l.z.Errorw(DefaultMessageKey, keyvals...)
	default:
		l.z.Infow(DefaultMessageKey, keyvals...)
	}
}

// NewZap builds a Logger backed by zap. When path is non-empty, output
// is rotated via lumberjack instead of going to stdout.
func NewZap(path string, maxSizeMB, maxAgeDays, maxBackups int, compress bool, level Level) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var ws zapcore.WriteSyncer
	if path != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxAge:     maxAgeDays,
			MaxBackups: maxBackups,
			Compress:   compress,
		})
	} else {
		ws = zapcore.AddSync(zapWriter{})
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, level)
	return &zapLogger{z: zap.New(core).Sugar()}
}

// zapWriter writes to stdout via fmt.Print without pulling in os
// directly at package scope, keeping NewZap trivially testable.
type zapWriter struct{}

func (zapWriter) Write(p []byte) (int, error) {
	return fmt.Print(string(p))
}

// With returns a derived Logger with fixed keyvals appended to every
// subsequent Log call. keyvals that are functions of zero args are
// evaluated once per call (e.g. Timestamp) so values like the current
// time stay live.
func With(l Logger, keyvals ...any) Logger {
	return &withLogger{base: l, kv: keyvals}
}

type withLogger struct {
	base Logger
	kv   []any
}

func (w *withLogger) Log(level Level, keyvals ...any) {
	merged := make([]any, 0, len(w.kv)+len(keyvals))
	for i := 0; i < len(w.kv); i += 2 {
		k, v := w.kv[i], w.kv[i+1]
		if fn, ok := v.(func() any); ok {
			v = fn()
		}
		merged = append(merged, k, v)
	}
	merged = append(merged, keyvals...)
	w.base.Log(level, merged...)
}

// Timestamp returns a value-function (consumed by With) that renders
// time.Now() using layout on every log line.
func Timestamp(layout string) func() any {
	return func() any { return timeNow().Format(layout) }
}

var DefaultLogger Logger = NewZap("", 0, 0, 0, false, LevelInfo)

var global = DefaultLogger

// SetLogger sets the process-wide default logger used by the package
// level Debugf/Infof/Warnf/Errorf/Fatalf helpers and GetLogger.
func SetLogger(l Logger) { global = l }

// GetLogger returns the process-wide default logger.
func GetLogger() Logger { return global }

// Helper is a printf-style convenience wrapper over a Logger, matching
// the call surface used throughout the tree (Debugf/Infof/Warnf/
// Errorf/Fatalf).
type Helper struct {
	logger Logger
}

func NewHelper(l Logger) *Helper { return &Helper{logger: l} }

func (h *Helper) log(level Level, format string, args ...any) {
	h.logger.Log(level, DefaultMessageKey, fmt.Sprintf(format, args...))
}

func (h *Helper) Debugf(format string, args ...any) { h.log(LevelDebug, format, args...) }
func (h *Helper) Infof(format string, args ...any)  { h.log(LevelInfo, format, args...) }
func (h *Helper) Warnf(format string, args ...any)  { h.log(LevelWarn, format, args...) }
func (h *Helper) Errorf(format string, args ...any) { h.log(LevelError, format, args...) }
func (h *Helper) Fatalf(format string, args ...any) {
	h.log(LevelError, format, args...)
	osExit(1)
}

// Debugw/Infow/Warnw/Errorw log a flat keyvals list, matching the
// kratos-style call convention (the first pair is conventionally "msg", <text>).
func (h *Helper) Debugw(keyvals ...any) { h.logger.Log(LevelDebug, keyvals...) }
func (h *Helper) Infow(keyvals ...any)  { h.logger.Log(LevelInfo, keyvals...) }
func (h *Helper) Warnw(keyvals ...any)  { h.logger.Log(LevelWarn, keyvals...) }
func (h *Helper) Errorw(keyvals ...any) { h.logger.Log(LevelError, keyvals...) }

// package-level convenience functions operating on the global logger.
func Debugf(format string, args ...any) { NewHelper(global).Debugf(format, args...) }
func Infof(format string, args ...any)  { NewHelper(global).Infof(format, args...) }
func Warnf(format string, args ...any)  { NewHelper(global).Warnf(format, args...) }
func Errorf(format string, args ...any) { NewHelper(global).Errorf(format, args...) }

// Debug logs args at debug level, space-joined like fmt.Sprint.
func Debug(args ...any) { global.Log(LevelDebug, DefaultMessageKey, fmt.Sprint(args...)) }

// Debugw/Infow/Warnw/Errorw log a flat keyvals list on the global logger,
// matching the kratos-style call convention the rest of the tree uses
// (the first pair is conventionally "msg", <text>).
func Debugw(keyvals ...any) { global.Log(LevelDebug, keyvals...) }
func Infow(keyvals ...any)  { global.Log(LevelInfo, keyvals...) }
func Warnw(keyvals ...any)  { global.Log(LevelWarn, keyvals...) }
func Errorw(keyvals ...any) { global.Log(LevelError, keyvals...) }

func Fatal(args ...any) {
	NewHelper(global).Errorf("%s", fmt.Sprint(args...))
	osExit(1)
}

func Fatalf(format string, args ...any) {
	NewHelper(global).Errorf(format, args...)
	osExit(1)
}

var osExit = func(code int) { realOsExit(code) }

// Enabled reports whether level-gated debug work (e.g. building an
// expensive log line) should run at all.
func Enabled(level Level) bool {
	return level >= LevelDebug
}

type ctxKey struct{}

// WithContext attaches a Logger to ctx, retrievable via Context.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// Context returns a request-scoped Helper, falling back to the global
// logger when none was attached.
func Context(ctx context.Context) *Helper {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return NewHelper(l)
	}
	return NewHelper(global)
}
