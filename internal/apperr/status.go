package apperr

import (
	"fmt"
	"net/http"
)

// StatusTable maps transport status codes to registry codes. It is total:
// statuses without an entry map to the fallback. A table is never mutated
// after construction, so concurrent lookups need no locking.
type StatusTable struct {
	codes    map[int]Code
	fallback Code
}

// NewStatusTable builds a table. Every code, fallback included, must be registered.
func NewStatusTable(codes map[int]Code, fallback Code) (*StatusTable, error) {
	if !Registered(fallback) {
		return nil, fmt.Errorf("apperr: fallback code %q is not registered", fallback)
	}
	m := make(map[int]Code, len(codes))
	for status, code := range codes {
		if !Registered(code) {
			return nil, fmt.Errorf("apperr: status %d maps to unregistered code %q", status, code)
		}
		m[status] = code
	}
	return &StatusTable{codes: m, fallback: fallback}, nil
}

// MustStatusTable is like NewStatusTable but panics on error.
func MustStatusTable(codes map[int]Code, fallback Code) *StatusTable {
	t, err := NewStatusTable(codes, fallback)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the code for status.
func (t *StatusTable) Lookup(status int) Code {
	if c, ok := t.codes[status]; ok {
		return c
	}
	return t.fallback
}

// Fallback returns the code used for unlisted statuses.
func (t *StatusTable) Fallback() Code { return t.fallback }

// Extend returns a new table with extra entries layered over t.
func (t *StatusTable) Extend(extra map[int]Code) (*StatusTable, error) {
	m := make(map[int]Code, len(t.codes)+len(extra))
	for k, v := range t.codes {
		m[k] = v
	}
	for k, v := range extra {
		m[k] = v
	}
	return NewStatusTable(m, t.fallback)
}

// DefaultStatusTable is the process-wide status table.
var DefaultStatusTable = MustStatusTable(map[int]Code{
	http.StatusBadRequest:          CodeValidation,
	http.StatusUnauthorized:        CodeUnauthorized,
	http.StatusForbidden:           CodeForbidden,
	http.StatusNotFound:            CodeNotFound,
	http.StatusConflict:            CodeConflict,
	http.StatusUnprocessableEntity: CodeValidation,
	http.StatusTooManyRequests:     CodeTooManyRequests,
	http.StatusServiceUnavailable:  CodeServiceUnavailable,
}, CodeGeneral)
