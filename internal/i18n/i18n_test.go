package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/apperr"
)

func TestCatalog_EveryCodeTranslated(t *testing.T) {
	c, err := New("en")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"en", "es"}, c.Supported())
	assert.Empty(t, c.Missing(), "every registered code needs a message in every locale")
}

func TestCatalog_Message(t *testing.T) {
	c, err := New("en")
	require.NoError(t, err)

	assert.Equal(t, "The email or password is incorrect.", c.Message("en", apperr.CodeInvalidCredentials))
	assert.Equal(t, "Las contraseñas no coinciden.", c.Message("es", apperr.CodePasswordsMismatch))
	assert.Equal(t, "The passwords do not match.", c.Message("de", apperr.CodePasswordsMismatch), "unknown locale uses default")
	assert.Equal(t, c.Message("en", apperr.CodeGeneric), c.Message("en", apperr.Code("NOT_A_CODE")))
}

func TestCatalog_Locale(t *testing.T) {
	c, err := New("en")
	require.NoError(t, err)

	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"es-ES,es;q=0.9,en;q=0.8", "es"},
		{"fr-FR, es;q=0.5", "es"},
		{"de, fr", "en"},
		{"en-GB", "en"},
		{";;;garbage", "en"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Locale(tt.header), "header %q", tt.header)
	}
}

func TestNew_UnsupportedDefault(t *testing.T) {
	_, err := New("fr")
	assert.ErrorIs(t, err, ErrUnsupportedLocale)
}

func TestLoad_RejectsUnknownCode(t *testing.T) {
	fsys := fstest.MapFS{
		"cat/en.yaml": {Data: []byte("locale: en\nmessages:\n  NOT_A_CODE: nope\n")},
	}

	_, err := load(fsys, "cat", "en")
	assert.ErrorIs(t, err, ErrUnknownCode)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	fsys := fstest.MapFS{
		"cat/en.yaml": {Data: []byte("locale: [en\n")},
	}

	_, err := load(fsys, "cat", "en")
	assert.Error(t, err)
}

func TestRegisterValidation(t *testing.T) {
	c, err := New("en")
	require.NoError(t, err)

	v := validator.New()
	require.NoError(t, v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) >= 8
	}))
	require.NoError(t, c.RegisterValidation(v, map[string]apperr.Code{"password": apperr.CodeInvalidPassword}))

	type form struct {
		Email    string `validate:"required,email"`
		Password string `validate:"password"`
	}
	err = v.Struct(form{Email: "", Password: "short"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)

	en := verrs.Translate(c.Translator("en"))
	assert.Equal(t, "Email is a required field", en["form.Email"])
	assert.Equal(t, c.Message("en", apperr.CodeInvalidPassword), en["form.Password"])

	es := verrs.Translate(c.Translator("es"))
	assert.Equal(t, c.Message("es", apperr.CodeInvalidPassword), es["form.Password"])
	assert.NotEqual(t, en["form.Email"], es["form.Email"])
}
