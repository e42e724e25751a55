package auth

import (
	"errors"
	"reflect"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"authflow/internal/apperr"
)

// PasswordTag is the validator tag backed by ValidPassword.
const PasswordTag = "password"

// customTags maps validation tags to the codes reported when only such tags
// failed. Earlier entries win.
var customTags = []struct {
	tag  string
	code apperr.Code
}{
	{"eqfield", apperr.CodePasswordsMismatch},
	{PasswordTag, apperr.CodeInvalidPassword},
}

// TagCodes returns the tags that have a dedicated code, for translators.
func TagCodes() map[string]apperr.Code {
	m := make(map[string]apperr.Code, len(customTags))
	for _, c := range customTags {
		m[c.tag] = c.code
	}
	return m
}

// NewValidator returns a validator that knows the password tag and reports
// fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation(PasswordTag, func(fl validator.FieldLevel) bool {
		return ValidPassword(fl.Field().String())
	})
	return v
}

// Validate checks req with v. Failures come back as a structured error whose
// data is an *apperr.ValidationDetail; trans, when set, fills each field's
// message.
func Validate(v *validator.Validate, req any, trans ut.Translator) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.New(apperr.CodeValidation, "invalid request", apperr.Internal(), apperr.WithCause(err))
	}

	detail := &apperr.ValidationDetail{Fields: make([]apperr.FieldViolation, 0, len(verrs))}
	for _, fe := range verrs {
		fv := apperr.FieldViolation{Property: fe.Field(), Expected: fe.Tag()}
		if !secretFields[fe.Field()] {
			fv.Value = fe.Value()
		}
		if trans != nil {
			fv.Message = fe.Translate(trans)
		}
		detail.Fields = append(detail.Fields, fv)
	}
	return apperr.New(violationCode(verrs), "request validation failed", apperr.Internal(), apperr.WithData(detail))
}

// secretFields are never echoed back in a violation.
var secretFields = map[string]bool{"password": true, "repeatPassword": true, "token": true, "firebase_token": true}

func violationCode(verrs validator.ValidationErrors) apperr.Code {
	tags := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		tags[fe.Tag()] = true
	}
	for _, c := range customTags {
		if !tags[c.tag] {
			continue
		}
		for t := range tags {
			if !isCustom(t) {
				return apperr.CodeValidation
			}
		}
		return c.code
	}
	return apperr.CodeValidation
}

func isCustom(tag string) bool {
	for _, c := range customTags {
		if c.tag == tag {
			return true
		}
	}
	return false
}
