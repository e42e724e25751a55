package apperr_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/apperr"
)

func TestNew(t *testing.T) {
	e := apperr.New(apperr.CodeEmailTaken, "email already registered", apperr.Internal())

	assert.Equal(t, apperr.CodeEmailTaken, e.Code())
	assert.Equal(t, "email already registered", e.Message())
	assert.Equal(t, apperr.KindInternal, e.Kind())
	assert.True(t, e.KindSet())
	assert.Nil(t, e.Data())
	assert.Equal(t, "EMAIL_ALREADY_REGISTERED: email already registered", e.Error())
}

func TestNew_UnsetKindReadsInternal(t *testing.T) {
	e := apperr.New(apperr.CodeNotFound, "missing")

	assert.False(t, e.KindSet())
	assert.Equal(t, apperr.KindInternal, e.Kind())
}

func TestNew_UnregisteredCodeIsCoerced(t *testing.T) {
	e := apperr.New(apperr.Code("SOMETHING_ELSE"), "odd")

	assert.Equal(t, apperr.CodeGeneric, e.Code())
	assert.Contains(t, e.Message(), "SOMETHING_ELSE")
	assert.Contains(t, e.Message(), "odd")
}

func TestNew_CapturesCallerTrace(t *testing.T) {
	e := apperr.New(apperr.CodeGeneric, "traced")

	frames := e.Trace().Frames()
	require.NotEmpty(t, frames)
	assert.True(t, strings.HasSuffix(frames[0].Function, "TestNew_CapturesCallerTrace"), "first frame was %s", frames[0].Function)
	assert.Contains(t, e.Trace().String(), "error_test.go")
}

func TestNewf(t *testing.T) {
	e := apperr.Newf(apperr.CodeNotFound, "item %d not found", 42)

	assert.Equal(t, "item 42 not found", e.Message())
}

func TestError_CauseAndMatching(t *testing.T) {
	cause := errors.New("disk full")
	e := apperr.New(apperr.CodeServiceUnavailable, "store user", apperr.External(), apperr.WithCause(cause))

	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "SERVICE_UNAVAILABLE: store user: disk full", e.Error())

	wrapped := apperr.Wrap(e, "sign up")
	assert.ErrorIs(t, wrapped, apperr.New(apperr.CodeServiceUnavailable, ""))
	assert.False(t, errors.Is(wrapped, apperr.New(apperr.CodeNotFound, "")))
	assert.True(t, apperr.HasCode(wrapped, apperr.CodeServiceUnavailable))
	assert.Equal(t, apperr.Code(""), apperr.CodeOf(cause))
}

func TestWrap(t *testing.T) {
	base := errors.New("base")

	assert.Nil(t, apperr.Wrap(nil, "ctx"))
	assert.Same(t, base, apperr.Wrap(base, ""))
	assert.Equal(t, "ctx: base", apperr.Wrap(base, "ctx").Error())
	assert.Equal(t, "load 7: base", apperr.Wrapf(base, "load %d", 7).Error())
	assert.Nil(t, apperr.Wrapf(nil, "load %d", 7))

	nested := apperr.Wrap(apperr.Wrapf(base, "read %s", "user"), "sign in")
	assert.Equal(t, "sign in: read user: base", nested.Error())
	assert.ErrorIs(t, nested, base)
}

func TestContext(t *testing.T) {
	_, ok := apperr.FromContext(context.Background())
	assert.False(t, ok)

	e := apperr.New(apperr.CodeTimeout, "slow")
	got, ok := apperr.FromContext(apperr.NewContext(context.Background(), e))
	require.True(t, ok)
	assert.Same(t, e, got)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "internal", apperr.KindInternal.String())
	assert.Equal(t, "external", apperr.KindExternal.String())
	assert.Equal(t, "unset", apperr.KindUnset.String())
}

func TestRegistry(t *testing.T) {
	r, err := apperr.NewRegistry(apperr.CodeGeneric, apperr.CodeTimeout)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Has(apperr.CodeTimeout))
	assert.False(t, r.Has(apperr.CodeNotFound))
	assert.Equal(t, []apperr.Code{apperr.CodeGeneric, apperr.CodeTimeout}, r.Codes())

	_, err = apperr.NewRegistry(apperr.CodeGeneric, apperr.CodeGeneric)
	assert.ErrorIs(t, err, apperr.ErrDuplicateCode)

	_, err = apperr.NewRegistry("")
	assert.ErrorIs(t, err, apperr.ErrEmptyCode)

	assert.Panics(t, func() { apperr.MustRegistry(apperr.CodeTimeout, apperr.CodeTimeout) })
}

func TestRegistry_DefaultContainsEveryCode(t *testing.T) {
	codes := apperr.Codes()
	assert.Contains(t, codes, apperr.CodeGeneric)
	assert.Contains(t, codes, apperr.CodeGeneral)
	assert.Contains(t, codes, apperr.CodeSocialAuthUnavailable)

	seen := make(map[apperr.Code]bool, len(codes))
	for _, c := range codes {
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
}

func TestStatusTable(t *testing.T) {
	_, err := apperr.NewStatusTable(map[int]apperr.Code{400: "NOPE"}, apperr.CodeGeneral)
	assert.Error(t, err)

	_, err = apperr.NewStatusTable(nil, "NOPE")
	assert.Error(t, err)

	table := apperr.DefaultStatusTable
	assert.Equal(t, apperr.CodeGeneral, table.Fallback())
	for status := 100; status < 600; status++ {
		assert.True(t, apperr.Registered(table.Lookup(status)), "status %d", status)
	}
}
