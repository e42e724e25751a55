package apperr

import (
	"context"
	"fmt"
	"log/slog"
)

// Notifier displays a code-keyed message to the user. The classified error
// behind code is available through FromContext(ctx).
type Notifier interface {
	Notify(ctx context.Context, code Code) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, code Code) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, code Code) error { return f(ctx, code) }

// Router selects a notifier by code. Routes are set up before the router is
// shared and are only read afterwards.
type Router struct {
	routes   map[Code]Notifier
	fallback Notifier
}

// NewRouter creates a router that uses fallback for codes without a route.
func NewRouter(fallback Notifier) *Router {
	return &Router{routes: make(map[Code]Notifier), fallback: fallback}
}

// Route registers n for code and returns the router for chaining.
func (r *Router) Route(code Code, n Notifier) *Router {
	r.routes[code] = n
	return r
}

// RouteAll registers n for every code in codes.
func (r *Router) RouteAll(n Notifier, codes ...Code) *Router {
	for _, c := range codes {
		r.routes[c] = n
	}
	return r
}

// Lookup returns the notifier for code and whether it came from an explicit route.
func (r *Router) Lookup(code Code) (Notifier, bool) {
	if n, ok := r.routes[code]; ok {
		return n, true
	}
	return r.fallback, false
}

// Observer is called once per handled failure. fallback reports whether the
// generic notifier had to be used.
type Observer func(e *Error, fallback bool)

// HandleOptions controls a single Handle call.
type HandleOptions struct {
	// Rethrow propagates the original failure after notification.
	Rethrow bool
}

// Handler is the single funnel failures pass through before reaching the user.
type Handler struct {
	router     *Router
	classifier *Classifier
	log        *slog.Logger
	observers  []Observer
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithClassifier overrides the default classifier.
func WithClassifier(c *Classifier) HandlerOption {
	return func(h *Handler) {
		if c != nil {
			h.classifier = c
		}
	}
}

// WithObserver adds an observer, typically a metrics hook.
func WithObserver(o Observer) HandlerOption {
	return func(h *Handler) {
		if o != nil {
			h.observers = append(h.observers, o)
		}
	}
}

// NewHandler creates a handler notifying through router.
func NewHandler(router *Router, opts ...HandlerOption) *Handler {
	if router == nil {
		router = NewRouter(nil)
	}
	h := &Handler{router: router, classifier: defaultClassifier, log: slog.Default()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle runs action. When it fails, by returning an error or by panicking,
// the failure is classified and notified exactly once. With opts.Rethrow the
// original error is returned (or the original panic value re-raised);
// otherwise Handle returns nil and the failure stops here.
func (h *Handler) Handle(ctx context.Context, action func(ctx context.Context) error, opts HandleOptions) error {
	if action == nil {
		return nil
	}

	pv, panicked, err := run(ctx, action)
	switch {
	case panicked:
		h.notify(ctx, h.classifier.Classify(pv))
		if opts.Rethrow {
			panic(pv)
		}
	case err != nil:
		h.notify(ctx, h.classifier.Classify(err))
		if opts.Rethrow {
			return err
		}
	}
	return nil
}

// run keeps panics raised by action apart from anything the notification
// path does afterwards.
func run(ctx context.Context, action func(ctx context.Context) error) (pv any, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			pv, panicked = r, true
		}
	}()
	return nil, false, action(ctx)
}

// Notify classifies raw and routes it without running any action. It is used
// by boundaries that receive failures from elsewhere.
func (h *Handler) Notify(ctx context.Context, raw any) *Error {
	e := h.classifier.Classify(raw)
	h.notify(ctx, e)
	return e
}

// notify never panics: each step recovers on its own so a broken cause,
// observer or notifier does not stop the rest.
func (h *Handler) notify(ctx context.Context, e *Error) {
	code := slog.String("code", string(e.Code()))
	n, routed := h.router.Lookup(e.Code())
	h.guard("failure log panicked", code, func() { h.logFailure(ctx, e) })
	if !routed {
		h.log.Warn("no notifier for code, using fallback", code)
	}
	for _, o := range h.observers {
		h.guard("observer panicked", code, func() { o(e, !routed) })
	}
	if n == nil {
		h.log.Error("no fallback notifier configured", code)
		return
	}
	h.guard("notifier panicked", code, func() {
		if err := n.Notify(NewContext(ctx, e), e.Code()); err != nil {
			h.log.Error("notifier failed", code, slog.String("error", describe(err)))
		}
	})
}

func (h *Handler) guard(msg string, code slog.Attr, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error(msg, code, slog.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

func (h *Handler) logFailure(ctx context.Context, e *Error) {
	level := slog.LevelError
	if e.Kind() == KindExternal {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("code", string(e.Code())),
		slog.String("kind", e.Kind().String()),
		slog.String("message", e.Message()),
	}
	if cause := e.Unwrap(); cause != nil {
		attrs = append(attrs, slog.String("cause", describe(cause)))
	}
	h.log.LogAttrs(ctx, level, "failure handled", attrs...)
	if h.log.Enabled(ctx, slog.LevelDebug) {
		h.log.LogAttrs(ctx, slog.LevelDebug, "failure trace", slog.String("code", string(e.Code())), slog.String("trace", e.Trace().String()))
	}
}

// describe is err.Error() that survives a panicking Error method.
func describe(err error) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("%T (Error panicked: %v)", err, r)
		}
	}()
	return err.Error()
}
