package auth

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/apperr"
)

func detailOf(t *testing.T, err error) *apperr.ValidationDetail {
	t.Helper()
	e, ok := apperr.As(err)
	require.True(t, ok)
	d, ok := e.Data().(*apperr.ValidationDetail)
	require.True(t, ok)
	return d
}

func TestValidate_Codes(t *testing.T) {
	v := NewValidator()
	good := SignUpRequest{Name: "Ada", Surname: "Lovelace", Email: "ada@example.com", Password: "Passw0rd"}

	tests := []struct {
		name string
		req  any
		code apperr.Code
	}{
		{"weak password only", SignUpRequest{Name: "Ada", Surname: "L", Email: "ada@example.com", Password: "weak"}, apperr.CodeInvalidPassword},
		{"missing email", SignUpRequest{Name: "Ada", Surname: "L", Password: "Passw0rd"}, apperr.CodeValidation},
		{"weak password and bad email", SignUpRequest{Name: "Ada", Surname: "L", Email: "nope", Password: "weak"}, apperr.CodeValidation},
		{"mismatch", PasswordChangeRequest{Token: "t", Password: "Passw0rd", RepeatPassword: "Passw0rd1"}, apperr.CodePasswordsMismatch},
		{"mismatch and weak", PasswordChangeRequest{Token: "t", Password: "weak", RepeatPassword: "weaker"}, apperr.CodePasswordsMismatch},
		{"missing token", PasswordChangeRequest{Password: "Passw0rd", RepeatPassword: "Passw0rd"}, apperr.CodeValidation},
		{"social without token", SocialRequest{}, apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(v, tt.req, nil)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}

	assert.NoError(t, Validate(v, good, nil))
}

func TestValidate_FieldsUseJSONNames(t *testing.T) {
	err := Validate(NewValidator(), SignUpRequest{Name: "Ada", Surname: "L", Email: "not-an-email", Password: "weak"}, nil)
	d := detailOf(t, err)

	email, ok := d.Field("email")
	require.True(t, ok)
	assert.Equal(t, "email", email.Expected)
	assert.Equal(t, "not-an-email", email.Value)

	pw, ok := d.Field("password")
	require.True(t, ok)
	assert.Equal(t, PasswordTag, pw.Expected)
	assert.Nil(t, pw.Value, "secrets are not echoed")
	assert.Empty(t, pw.Message)
}

func TestValidate_TranslatesMessages(t *testing.T) {
	v := NewValidator()
	uni := ut.New(en.New(), en.New())
	trans, _ := uni.GetTranslator("en")
	require.NoError(t, en_translations.RegisterDefaultTranslations(v, trans))

	err := Validate(v, SignInRequest{Password: "x"}, trans)
	d := detailOf(t, err)
	f, ok := d.Field("email")
	require.True(t, ok)
	assert.Equal(t, "email is a required field", f.Message)
}

func TestTagCodes(t *testing.T) {
	codes := TagCodes()
	assert.Equal(t, apperr.CodePasswordsMismatch, codes["eqfield"])
	assert.Equal(t, apperr.CodeInvalidPassword, codes[PasswordTag])
}
