package auth

import (
	"time"

	"github.com/dlclark/regexp2"

	"authflow/internal/apperr"
)

// PasswordPattern is the rule every password must satisfy: at least eight
// characters with an uppercase letter, a lowercase letter and a digit.
const PasswordPattern = `^(?=.{8,}$)(?=.*[A-Z])(?=.*[a-z])(?=.*[0-9]).*`

// ECMAScript semantics: $ is the end of input only and . stops at line
// terminators, so a trailing newline fails the length check.
var passwordRe = func() *regexp2.Regexp {
	re := regexp2.MustCompile(PasswordPattern, regexp2.ECMAScript)
	re.MatchTimeout = 100 * time.Millisecond
	return re
}()

// ValidPassword reports whether pw satisfies PasswordPattern.
func ValidPassword(pw string) bool {
	ok, err := passwordRe.MatchString(pw)
	return err == nil && ok
}

// CheckPassword returns an INVALID_PASSWORD error when pw is too weak.
func CheckPassword(pw string) error {
	if ValidPassword(pw) {
		return nil
	}
	return apperr.New(apperr.CodeInvalidPassword, "password does not satisfy the password rule", apperr.Internal(),
		apperr.WithData(&apperr.ValidationDetail{Fields: []apperr.FieldViolation{{Property: "password", Expected: "password"}}}))
}

// CheckPasswordChange validates a new password and its confirmation.
// A mismatch is reported before strength.
func CheckPasswordChange(pw, repeat string) error {
	if pw != repeat {
		return apperr.New(apperr.CodePasswordsMismatch, "password and repeatPassword differ", apperr.Internal(),
			apperr.WithData(&apperr.ValidationDetail{Fields: []apperr.FieldViolation{{Property: "repeatPassword", Expected: "eqfield"}}}))
	}
	return CheckPassword(pw)
}
