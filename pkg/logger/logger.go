// Package logger wraps zerolog with request-scoped fields carried on the
// context. Handlers enrich the context; the logger reads it back at emit time.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/commercepilot-backend/pkg/env"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	// WarnStack attaches a stack trace to warnings as well as errors.
	WarnStack bool
	Output    io.Writer
}

type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

type fieldsKey struct{}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}
	if strings.EqualFold(env.Get("LOG_FORMAT", "json"), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	root := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", opts.ServiceName).
		Str("instance", env.InstanceID()).
		Logger()
	return &Logger{root: root, warnStack: opts.WarnStack}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{root: zerolog.Nop()}
}

// ParseLevel maps a LOG_LEVEL value onto zerolog, falling back to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if scoped, ok := ctx.Value(fieldsKey{}).(*zerolog.Logger); ok {
			return scoped
		}
	}
	return &l.root
}

func (l *Logger) derive(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scoped := build(l.from(ctx).With()).Logger()
	return context.WithValue(ctx, fieldsKey{}, &scoped)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.derive(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Interface(key, value)
	})
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.derive(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Fields(fields)
	})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithAccountID(ctx context.Context, accountID string) context.Context {
	return l.WithField(ctx, "account_id", accountID)
}

func (l *Logger) WithJob(ctx context.Context, job string) context.Context {
	return l.WithField(ctx, "job", job)
}

func (l *Logger) Debug(ctx context.Context, msg string) { l.from(ctx).Debug().Msg(msg) }

func (l *Logger) Info(ctx context.Context, msg string) { l.from(ctx).Info().Msg(msg) }

func (l *Logger) Warn(ctx context.Context, msg string) {
	ev := l.from(ctx).Warn()
	if l.warnStack {
		ev.Str("stack", stack())
	}
	ev.Msg(msg)
}

// Error always carries a stack trace.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	ev := l.from(ctx).Error().Str("stack", stack())
	if err != nil {
		ev.Err(err)
	}
	ev.Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
