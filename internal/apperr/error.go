package apperr

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind tells where a failure originated.
type Kind int

const (
	// KindUnset means no kind was assigned at creation time.
	KindUnset Kind = iota
	// KindInternal marks failures raised by logic inside the application.
	KindInternal
	// KindExternal marks failures coming from the network, a third-party SDK or the OS.
	KindExternal
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindExternal:
		return "external"
	default:
		return "unset"
	}
}

// Error is the canonical structured error. It is immutable after construction:
// all fields are unexported and only readable through getters.
type Error struct {
	code    Code
	message string
	kind    Kind
	data    any
	trace   Trace
	cause   error
}

// Option configures an Error at construction.
type Option func(*Error)

// WithKind sets the kind explicitly.
func WithKind(k Kind) Option { return func(e *Error) { e.kind = k } }

// Internal marks the error as internal.
func Internal() Option { return WithKind(KindInternal) }

// External marks the error as external.
func External() Option { return WithKind(KindExternal) }

// WithData attaches classification-specific auxiliary data.
func WithData(d any) Option { return func(e *Error) { e.data = d } }

// WithCause records the failure this error was derived from.
func WithCause(err error) Option { return func(e *Error) { e.cause = err } }

// New creates a structured error and captures the caller's trace.
// Codes outside the registry are coerced to CodeGeneric.
func New(code Code, message string, opts ...Option) *Error {
	return newError(3, code, message, opts)
}

// Newf creates a structured error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return newError(3, code, fmt.Sprintf(format, args...), nil)
}

func newError(skip int, code Code, message string, opts []Option) *Error {
	if !Registered(code) {
		message = fmt.Sprintf("unregistered code %q: %s", string(code), message)
		code = CodeGeneric
	}
	e := &Error{code: code, message: message, trace: captureTrace(skip + 1)}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Code returns the registry code.
func (e *Error) Code() Code { return e.code }

// Message returns the developer-facing diagnostic. It must not be shown to users.
func (e *Error) Message() string { return e.message }

// Kind returns the kind, treating an unset kind as internal.
func (e *Error) Kind() Kind {
	if e.kind == KindUnset {
		return KindInternal
	}
	return e.kind
}

// KindSet reports whether a kind was assigned explicitly.
func (e *Error) KindSet() bool { return e.kind != KindUnset }

// Data returns the optional auxiliary payload.
func (e *Error) Data() any { return e.data }

// Trace returns the call context captured at creation.
func (e *Error) Trace() Trace { return e.trace }

// Error implements error.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error with the same code, so a bare New(code, "")
// can be used as a comparison target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.code == e.code
}

// As returns the first structured error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first structured error in the chain, or "".
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.code
	}
	return ""
}

// HasCode reports whether err carries a structured error with the given code.
func HasCode(err error, code Code) bool { return CodeOf(err) == code }

// Wrap prefixes err with the operation that failed, formatting as
// "op: err". A nil err stays nil and an empty op adds nothing. The result
// unwraps to err, so Classify still finds a structured error inside.
func Wrap(err error, op string) error {
	if err == nil || op == "" {
		return err
	}
	return &opError{op: op, err: err}
}

// Wrapf is Wrap with a formatted op. The format is not evaluated for a nil err.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return e.op + ": " + e.err.Error() }
func (e *opError) Unwrap() error { return e.err }

// Trace is a captured call stack.
type Trace []uintptr

// captureTrace skips the given number of frames, counting runtime.Callers as 0.
func captureTrace(skip int) Trace {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	return Trace(pcs[:n])
}

// Frames resolves the trace into runtime frames.
func (t Trace) Frames() []runtime.Frame {
	if len(t) == 0 {
		return nil
	}
	frames := runtime.CallersFrames(t)
	out := make([]runtime.Frame, 0, len(t))
	for {
		f, more := frames.Next()
		out = append(out, f)
		if !more {
			break
		}
	}
	return out
}

// String renders one "function file:line" entry per line.
func (t Trace) String() string {
	var b strings.Builder
	for _, f := range t.Frames() {
		fmt.Fprintf(&b, "%s %s:%d\n", f.Function, f.File, f.Line)
	}
	return b.String()
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying e. Notifiers use FromContext to
// read the classified error behind the code they were given.
func NewContext(ctx context.Context, e *Error) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

// FromContext returns the structured error stored by NewContext.
func FromContext(ctx context.Context) (*Error, bool) {
	e, ok := ctx.Value(ctxKey{}).(*Error)
	return e, ok && e != nil
}
