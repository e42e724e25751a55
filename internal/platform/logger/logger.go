// Package logger builds the service's slog loggers: a tint console sink, an
// optional rotating JSON file sink, and redaction of auth secrets in front of
// both.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"authflow/internal/apperr"
)

const redacted = "[REDACTED]"

// sensitiveSuffixes match attribute keys after lowercasing and dropping '_'
// and '-'. "repeatPassword", "firebase_token" and "api-key" all match.
var sensitiveSuffixes = []string{"password", "token", "secret", "apikey", "authorization"}

// Options defines parameters for logger creation.
type Options struct {
	Env          string
	ConsoleLevel string // debug, info, warn or error (default: info)
	FileLevel    string // same values (default: debug)
	File         string
	App          string
	// Console receives console output. Defaults to os.Stdout. Colors are
	// used only when it is a terminal.
	Console io.Writer
}

var closers sync.Map

// New creates configured slog.Logger instance.
func New(o Options) *slog.Logger {
	out := o.Console
	if out == nil {
		out = os.Stdout
	}
	timeFormat := time.RFC3339
	if o.Env == "dev" {
		timeFormat = time.Kitchen
	}

	h := slog.Handler(tint.NewHandler(out, &tint.Options{
		Level:      parseLevel(o.ConsoleLevel, slog.LevelInfo),
		TimeFormat: timeFormat,
		NoColor:    !isTerminal(out),
	}))

	var fw *lumberjack.Logger
	if o.File != "" {
		fw = &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		h = NewMultiHandler(h, slog.NewJSONHandler(fw, &slog.HandlerOptions{Level: parseLevel(o.FileLevel, slog.LevelDebug)}))
	}

	l := slog.New(NewRedactingHandler(h)).With(slog.String("app", o.App), slog.String("env", o.Env))
	if fw != nil {
		closers.Store(l, fw.Close)
	}
	return l
}

// Close releases the file sink of a logger built by New. It is safe to call
// more than once and on loggers without a file.
func Close(l *slog.Logger) error {
	if c, ok := closers.LoadAndDelete(l); ok {
		return c.(func() error)()
	}
	return nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Error renders err as an "error" group. Structured errors expose their
// code, kind and message; anything else is logged by its text.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	e, ok := apperr.As(err)
	if !ok {
		return slog.String("error", err.Error())
	}
	attrs := []any{
		slog.String("code", e.Code().String()),
		slog.String("kind", e.Kind().String()),
		slog.String("message", e.Message()),
	}
	if cause := e.Unwrap(); cause != nil {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}
	return slog.Group("error", attrs...)
}

func parseLevel(s string, def slog.Level) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return def
	}
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// SensitiveKey reports whether values under key are never logged.
func SensitiveKey(key string) bool {
	k := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(key))
	for _, s := range sensitiveSuffixes {
		if strings.HasSuffix(k, s) {
			return true
		}
	}
	return false
}

// RedactingHandler masks sensitive attributes, including those nested in
// groups and those added through WithAttrs.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler wraps inner with redaction.
func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(redact(a))
		return true
	})
	return h.inner.Handle(ctx, nr)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redact(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(clean)}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func redact(a slog.Attr) slog.Attr {
	if SensitiveKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		group := v.Group()
		clean := make([]slog.Attr, len(group))
		for i, g := range group {
			clean[i] = redact(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	case slog.KindString:
		if looksSensitive(v.String()) {
			return slog.String(a.Key, redacted)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// looksSensitive catches bearer headers and query strings carrying tokens.
func looksSensitive(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "bearer ") || strings.Contains(lower, "token=")
}

// MultiHandler fans records out to every handler enabled for their level.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a handler that writes to multiple handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled implements slog.Handler.
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler. Every enabled handler sees the record even
// if an earlier one fails; the first error is returned.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WithAttrs implements slog.Handler.
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(x slog.Handler) slog.Handler { return x.WithAttrs(attrs) })
}

// WithGroup implements slog.Handler.
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	return h.each(func(x slog.Handler) slog.Handler { return x.WithGroup(name) })
}

func (h *MultiHandler) each(f func(slog.Handler) slog.Handler) *MultiHandler {
	out := make([]slog.Handler, len(h.handlers))
	for i, x := range h.handlers {
		out[i] = f(x)
	}
	return &MultiHandler{handlers: out}
}
