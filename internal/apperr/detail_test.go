package apperr_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/apperr"
)

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		name   string
		raw    any
		fields []string
	}{
		{
			name:   "envelope bytes",
			raw:    []byte(`{"error":{"code":"VALIDATION_ERROR","fields":[{"property":"password","expected":"password"}]}}`),
			fields: []string{"password"},
		},
		{
			name:   "bare array string",
			raw:    `[{"property":"email","expected":"email"},{"property":"name","expected":"required"}]`,
			fields: []string{"email", "name"},
		},
		{
			name:   "raw message",
			raw:    json.RawMessage(`[{"property":"email","expected":"email"}]`),
			fields: []string{"email"},
		},
		{
			name:   "transport failure",
			raw:    apperr.TransportFailure{Status: 400, Body: []byte(`[{"property":"email","expected":"email"}]`)},
			fields: []string{"email"},
		},
		{
			name:   "error carrying body",
			raw:    &statusErr{status: 400, body: []byte(`[{"property":"token","expected":"required"}]`)},
			fields: []string{"token"},
		},
		{
			name:   "incomplete entries dropped",
			raw:    `[{"property":"email"},{"expected":"email"},{"property":"name","expected":"required"}]`,
			fields: []string{"name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := apperr.ExtractDetail(tt.raw)
			require.NotNil(t, d)
			got := make([]string, 0, len(d.Fields))
			for _, f := range d.Fields {
				got = append(got, f.Property)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestExtractDetail_UnrecognizedShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"nil", nil},
		{"integer", 7},
		{"empty body", []byte("  ")},
		{"plain text", "internal server error"},
		{"truncated json", `{"error":{"fields":[`},
		{"wrong field type", `{"error":{"fields":"nope"}}`},
		{"no fields", `{"error":{"code":"UNAUTHORIZED"}}`},
		{"only incomplete entries", `[{"property":"email"}]`},
		{"error without body", errors.New("boom")},
		{"map", map[string]any{"fields": []any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Nil(t, apperr.ExtractDetail(tt.raw))
			})
		})
	}
}

func TestValidationDetail_Field(t *testing.T) {
	var nilDetail *apperr.ValidationDetail
	_, ok := nilDetail.Field("email")
	assert.False(t, ok)

	d := &apperr.ValidationDetail{Fields: []apperr.FieldViolation{{Property: "email", Expected: "email"}}}
	f, ok := d.Field("email")
	require.True(t, ok)
	assert.Equal(t, "email", f.Expected)

	_, ok = d.Field("password")
	assert.False(t, ok)
}
