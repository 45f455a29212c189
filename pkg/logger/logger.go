// Package logger wraps zerolog with request-scoped fields carried on the context.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Output      io.Writer
}

// Logger is safe to use as a nil pointer; every call on nil is a no-op.
type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return &Logger{
		base: zerolog.New(output).
			Level(opts.Level).
			With().
			Timestamp().
			Str("service", opts.ServiceName).
			Logger(),
		warnStack: opts.WarnStack,
	}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// entry returns the context logger when one was attached by a With* call.
func (l *Logger) entry(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if attached := zerolog.Ctx(ctx); attached.GetLevel() != zerolog.Disabled {
			return attached
		}
	}
	return &l.base
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if l == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	scoped := l.entry(ctx).With().Fields(fields).Logger()
	return scoped.WithContext(ctx)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.WithFields(ctx, map[string]any{key: value})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithReviewer(ctx context.Context, reviewer string) context.Context {
	return l.WithField(ctx, "reviewer", reviewer)
}

func (l *Logger) WithSessionID(ctx context.Context, sessionID string) context.Context {
	return l.WithField(ctx, "session_id", sessionID)
}

func (l *Logger) WithInvoiceID(ctx context.Context, invoiceID string) context.Context {
	return l.WithField(ctx, "invoice_id", invoiceID)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	if l == nil {
		return
	}
	l.entry(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	if l == nil {
		return
	}
	l.entry(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	if l == nil {
		return
	}
	event := l.entry(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

// Error always records a stack trace.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	if l == nil {
		return
	}
	l.entry(ctx).Error().Err(err).Str("stack", stackTrace()).Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
