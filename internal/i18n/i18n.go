// Package i18n turns registry codes into user-facing messages.
//
// Catalogs are embedded YAML files, one per locale, mapping every registered
// code to a sentence. The same translators feed validator field messages.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	es_translations "github.com/go-playground/validator/v10/translations/es"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"authflow/internal/apperr"
)

// GenericMessage is shown when no catalog has a message for a code.
const GenericMessage = "Something went wrong. Please try again."

//go:embed catalog/*.yaml
var catalogFS embed.FS

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

var (
	// ErrUnsupportedLocale is returned for a default locale without a catalog.
	ErrUnsupportedLocale = errors.New("i18n: unsupported locale")
	// ErrUnknownCode is returned when a catalog names a code outside the registry.
	ErrUnknownCode = errors.New("i18n: catalog references unknown code")
)

var localeSet = map[string]func() locales.Translator{
	"en": en.New,
	"es": es.New,
}

// Catalog resolves messages by locale and code. It is read-only after New.
type Catalog struct {
	uni       *ut.UniversalTranslator
	def       string
	supported []string
}

// New loads the embedded catalogs. defaultLocale is used whenever a request
// names no supported locale.
func New(defaultLocale string) (*Catalog, error) {
	return load(catalogFS, "catalog", defaultLocale)
}

func load(fsys fs.FS, dir, defaultLocale string) (*Catalog, error) {
	defaultLocale = strings.ToLower(defaultLocale)
	mk, ok := localeSet[defaultLocale]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocale, defaultLocale)
	}

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read catalogs: %w", err)
	}

	var parsed []catalogFile
	var supported []locales.Translator
	for _, f := range files {
		if f.IsDir() || path.Ext(f.Name()) != ".yaml" {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name(), err)
		}
		var cf catalogFile
		if err := yaml.Unmarshal(raw, &cf); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name(), err)
		}
		cf.Locale = strings.ToLower(cf.Locale)
		mkLoc, ok := localeSet[cf.Locale]
		if !ok {
			return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedLocale, cf.Locale, f.Name())
		}
		parsed = append(parsed, cf)
		supported = append(supported, mkLoc())
	}

	uni := ut.New(mk(), supported...)
	c := &Catalog{uni: uni, def: defaultLocale}
	for _, cf := range parsed {
		trans, _ := uni.GetTranslator(cf.Locale)
		for code, msg := range cf.Messages {
			if !apperr.Registered(apperr.Code(code)) {
				return nil, fmt.Errorf("%w: %s in %s", ErrUnknownCode, code, cf.Locale)
			}
			if err := trans.Add(code, msg, true); err != nil {
				return nil, fmt.Errorf("add %s/%s: %w", cf.Locale, code, err)
			}
		}
		c.supported = append(c.supported, cf.Locale)
	}
	if _, ok := uni.GetTranslator(defaultLocale); !ok || !c.supports(defaultLocale) {
		return nil, fmt.Errorf("%w: no catalog for default %s", ErrUnsupportedLocale, defaultLocale)
	}
	return c, nil
}

func (c *Catalog) supports(loc string) bool {
	for _, s := range c.supported {
		if s == loc {
			return true
		}
	}
	return false
}

// Default returns the default locale.
func (c *Catalog) Default() string { return c.def }

// Supported lists the locales that have a catalog.
func (c *Catalog) Supported() []string {
	return append([]string(nil), c.supported...)
}

// Locale picks the best supported locale from an Accept-Language header value.
func (c *Catalog) Locale(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil {
		return c.def
	}
	for _, t := range tags {
		base, _ := t.Base()
		if loc := base.String(); c.supports(loc) {
			return loc
		}
	}
	return c.def
}

// Translator returns the translator for locale, or the default one.
func (c *Catalog) Translator(locale string) ut.Translator {
	locale = strings.ToLower(locale)
	if c.supports(locale) {
		if t, ok := c.uni.GetTranslator(locale); ok {
			return t
		}
	}
	t, _ := c.uni.GetTranslator(c.def)
	return t
}

// Message returns the user-facing message for code in locale. Unknown
// locales use the default locale; codes without a message get the generic one.
func (c *Catalog) Message(locale string, code apperr.Code) string {
	trans := c.Translator(locale)
	if msg, err := trans.T(string(code)); err == nil && msg != "" {
		return msg
	}
	if msg, err := trans.T(string(apperr.CodeGeneric)); err == nil && msg != "" {
		return msg
	}
	return GenericMessage
}

// Missing returns, per locale, the registry codes that have no message.
func (c *Catalog) Missing() map[string][]apperr.Code {
	out := make(map[string][]apperr.Code)
	for _, loc := range c.supported {
		trans, _ := c.uni.GetTranslator(loc)
		for _, code := range apperr.Codes() {
			if _, err := trans.T(string(code)); err != nil {
				out[loc] = append(out[loc], code)
			}
		}
	}
	return out
}

var validatorTranslations = map[string]func(*validator.Validate, ut.Translator) error{
	"en": en_translations.RegisterDefaultTranslations,
	"es": es_translations.RegisterDefaultTranslations,
}

// RegisterValidation installs field-error translations on v for every
// supported locale. Custom tags are rendered with the message of the code
// they stand for.
func (c *Catalog) RegisterValidation(v *validator.Validate, custom map[string]apperr.Code) error {
	for _, loc := range c.supported {
		trans := c.Translator(loc)
		if reg, ok := validatorTranslations[loc]; ok {
			if err := reg(v, trans); err != nil {
				return fmt.Errorf("register %s validator translations: %w", loc, err)
			}
		}
		for tag, code := range custom {
			msg := c.Message(loc, code)
			err := v.RegisterTranslation(tag, trans,
				func(ut ut.Translator) error { return ut.Add(tag, msg, true) },
				func(ut ut.Translator, fe validator.FieldError) string {
					s, err := ut.T(fe.Tag())
					if err != nil {
						return fe.Error()
					}
					return s
				},
			)
			if err != nil {
				return fmt.Errorf("register %s translation for %q: %w", loc, tag, err)
			}
		}
	}
	return nil
}
