package apperr

import (
	"bytes"
	"encoding/json"
	"errors"
)

// FieldViolation describes one field that failed validation.
type FieldViolation struct {
	Property string `json:"property"`
	Value    any    `json:"value,omitempty"`
	Expected string `json:"expected"`
	Message  string `json:"message,omitempty"`
}

// ValidationDetail is the data payload attached to validation failures.
type ValidationDetail struct {
	Fields []FieldViolation `json:"fields"`
}

// Field returns the violation for property, if any.
func (d *ValidationDetail) Field(property string) (FieldViolation, bool) {
	if d == nil {
		return FieldViolation{}, false
	}
	for _, f := range d.Fields {
		if f.Property == property {
			return f, true
		}
	}
	return FieldViolation{}, false
}

// ErrorBody is the error envelope written by the HTTP API.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload is the content of ErrorBody.
type ErrorPayload struct {
	Code    Code             `json:"code"`
	Message string           `json:"message"`
	Fields  []FieldViolation `json:"fields,omitempty"`
}

// ExtractDetail returns the validation payload carried by raw, or nil when
// raw does not hold a recognized validation-failure body. raw may be a body
// ([]byte, string, json.RawMessage), a TransportFailure, or an error that
// carries a body. It never fails.
func ExtractDetail(raw any) (out *ValidationDetail) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()

	var body []byte
	switch v := raw.(type) {
	case nil:
		return nil
	case []byte:
		body = v
	case json.RawMessage:
		body = v
	case string:
		body = []byte(v)
	case TransportFailure:
		body = v.Body
	case error:
		var bc BodyCarrier
		if !errors.As(v, &bc) {
			return nil
		}
		body = bc.ResponseBody()
	default:
		return nil
	}
	return parseDetail(body)
}

func parseDetail(body []byte) *ValidationDetail {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	var fields []FieldViolation
	switch body[0] {
	case '{':
		var env ErrorBody
		if err := json.Unmarshal(body, &env); err != nil {
			return nil
		}
		fields = env.Error.Fields
	case '[':
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil
		}
	default:
		return nil
	}

	valid := make([]FieldViolation, 0, len(fields))
	for _, f := range fields {
		if f.Property == "" || f.Expected == "" {
			continue
		}
		valid = append(valid, f)
	}
	if len(valid) == 0 {
		return nil
	}
	return &ValidationDetail{Fields: valid}
}
