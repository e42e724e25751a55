package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// StatusCarrier is implemented by transport failures that carry a numeric status.
type StatusCarrier interface {
	StatusCode() int
}

// BodyCarrier is implemented by transport failures that keep the response body.
type BodyCarrier interface {
	ResponseBody() []byte
}

// Failure is the closed set of raw failure shapes the classifier understands.
type Failure interface {
	isFailure()
}

// StructuredFailure is a failure that is already a structured error.
type StructuredFailure struct{ Err *Error }

// TransportFailure is a response with a status code and an optional body.
type TransportFailure struct {
	Status int
	Body   []byte
	Err    error
}

// NetworkFailure is a transport failure that produced no response.
type NetworkFailure struct {
	Err     error
	Timeout bool
}

// UnknownFailure is anything else, nil included.
type UnknownFailure struct{ Value any }

func (StructuredFailure) isFailure() {}
func (TransportFailure) isFailure()  {}
func (NetworkFailure) isFailure()    {}
func (UnknownFailure) isFailure()    {}

// Recognize sorts a raw failure value into one of the Failure variants.
// A value that already is a Failure is returned as is.
func Recognize(raw any) Failure {
	switch v := raw.(type) {
	case nil:
		return UnknownFailure{}
	case StructuredFailure:
		if v.Err == nil {
			return UnknownFailure{}
		}
		return v
	case Failure:
		return v
	case *Error:
		if v == nil {
			return UnknownFailure{}
		}
		return StructuredFailure{Err: v}
	case error:
		return recognizeError(v)
	default:
		return UnknownFailure{Value: raw}
	}
}

func recognizeError(err error) Failure {
	if e, ok := As(err); ok {
		return StructuredFailure{Err: e}
	}
	var sc StatusCarrier
	if errors.As(err, &sc) {
		f := TransportFailure{Status: sc.StatusCode(), Err: err}
		var bc BodyCarrier
		if errors.As(err, &bc) {
			f.Body = bc.ResponseBody()
		}
		return f
	}
	if errors.Is(err, context.Canceled) {
		return UnknownFailure{Value: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkFailure{Err: err, Timeout: true}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return NetworkFailure{Err: err, Timeout: ne.Timeout()}
	}
	return UnknownFailure{Value: err}
}

// Classifier converts raw failures into structured errors.
type Classifier struct {
	table *StatusTable
}

// NewClassifier returns a classifier using table, or DefaultStatusTable when nil.
func NewClassifier(table *StatusTable) *Classifier {
	if table == nil {
		table = DefaultStatusTable
	}
	return &Classifier{table: table}
}

var defaultClassifier = NewClassifier(nil)

// Classify converts raw with the default status table.
func Classify(raw any) *Error { return defaultClassifier.Classify(raw) }

// Classify converts any failure value into exactly one structured error.
// Structured errors are returned unchanged. It never panics.
func (c *Classifier) Classify(raw any) (out *Error) {
	defer func() {
		if r := recover(); r != nil {
			out = newError(3, CodeGeneric, fmt.Sprintf("classify: recovered from %v", r), []Option{Internal()})
		}
	}()

	switch f := Recognize(raw).(type) {
	case StructuredFailure:
		return f.Err
	case TransportFailure:
		opts := []Option{External(), WithCause(f.Err)}
		if d := ExtractDetail(f.Body); d != nil {
			opts = append(opts, WithData(d))
		}
		return newError(3, c.table.Lookup(f.Status), fmt.Sprintf("transport status %d", f.Status), opts)
	case NetworkFailure:
		code := CodeNetwork
		if f.Timeout {
			code = CodeTimeout
		}
		return newError(3, code, "transport failure", []Option{External(), WithCause(f.Err)})
	case UnknownFailure:
		return unknown(f.Value)
	default:
		return unknown(raw)
	}
}

func unknown(v any) *Error {
	switch t := v.(type) {
	case nil:
		return newError(4, CodeGeneric, "nil failure", []Option{Internal()})
	case error:
		return newError(4, CodeGeneric, "unclassified error", []Option{Internal(), WithCause(t)})
	default:
		return newError(4, CodeGeneric, fmt.Sprintf("unclassified failure of type %T: %v", v, v), []Option{Internal()})
	}
}

// IsRetryable reports whether err classifies as a transient external failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	e := Classify(err)
	if e.Kind() != KindExternal {
		return false
	}
	switch e.Code() {
	case CodeNetwork, CodeTimeout, CodeServiceUnavailable:
		return true
	}
	return false
}
