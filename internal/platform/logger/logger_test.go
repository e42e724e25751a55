package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/apperr"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestNew_DualOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	var console bytes.Buffer

	l := New(Options{
		Env:          "prod",
		ConsoleLevel: "warn",
		FileLevel:    "debug",
		File:         logFile,
		App:          "authflow",
		Console:      &console,
	})

	l.Debug("debug only in file")
	l.Info("info only in file")
	l.Warn("warn in both")
	require.NoError(t, Close(l))

	content := readLog(t, logFile)
	assert.Contains(t, content, "debug only in file")
	assert.Contains(t, content, "info only in file")
	assert.Contains(t, content, "warn in both")
	assert.Contains(t, content, `"level":"DEBUG"`)
	assert.Contains(t, content, `"app":"authflow"`)
	assert.Contains(t, content, `"env":"prod"`)

	assert.Contains(t, console.String(), "warn in both")
	assert.NotContains(t, console.String(), "info only in file")
}

func TestNew_DefaultLevels(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "default.log")
	var console bytes.Buffer

	l := New(Options{Env: "dev", File: logFile, App: "authflow", Console: &console})
	l.Debug("debug message")
	l.Info("info message")
	require.NoError(t, Close(l))

	content := readLog(t, logFile)
	assert.Contains(t, content, "debug message")
	assert.Contains(t, content, "info message")
	assert.NotContains(t, console.String(), "debug message")
	assert.Contains(t, console.String(), "info message")
}

func TestClose_ConsoleOnlyIsNoop(t *testing.T) {
	l := New(Options{Env: "dev", App: "authflow", Console: &bytes.Buffer{}})

	assert.NoError(t, Close(l))
	assert.NoError(t, Close(l))
}

func TestRedactingHandler(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil)))

	l.Info("sign in",
		slog.String("password", "Secr3tPassw0rd"),
		slog.Group("request", slog.String("repeatPassword", "Secr3tPassw0rd"), slog.String("email", "ana@example.com")),
		slog.String("header", "Bearer abc.def.ghi"),
		slog.String("user", "ana"),
	)

	out := buf.String()
	assert.NotContains(t, out, "Secr3tPassw0rd")
	assert.NotContains(t, out, "abc.def.ghi")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "ana@example.com")
	assert.Contains(t, out, `"user":"ana"`)
}

func TestRedactingHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil))).
		With(slog.String("firebase_token", "eyJhbGciOi"))

	l.Info("social")

	assert.NotContains(t, buf.String(), "eyJhbGciOi")
}

func TestSensitiveKey(t *testing.T) {
	for _, k := range []string{"password", "repeatPassword", "repeat_password", "firebase_token", "Token", "api-key", "client_secret", "Authorization"} {
		assert.True(t, SensitiveKey(k), k)
	}
	for _, k := range []string{"email", "user_id", "code", "token_count_total_x"} {
		assert.False(t, SensitiveKey(k), k)
	}
}

func TestRedactingHandler_QueryToken(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil)))

	l.Info("request", slog.String("url", "https://api/auth/reset?token=abc123"))

	assert.NotContains(t, buf.String(), "abc123")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLevel("warn", slog.LevelInfo))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, parseLevel("", slog.LevelInfo))
	assert.Equal(t, slog.LevelDebug, parseLevel("verbose", slog.LevelDebug))
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	e := apperr.New(apperr.CodeInvalidCredentials, "wrong password", apperr.Internal(), apperr.WithCause(errors.New("hash mismatch")))
	l.Info("structured", Error(e))
	l.Info("plain", Error(errors.New("plain failure")))

	out := buf.String()
	assert.Contains(t, out, `"code":"INVALID_CREDENTIALS"`)
	assert.Contains(t, out, `"kind":"internal"`)
	assert.Contains(t, out, `"cause":"hash mismatch"`)
	assert.Contains(t, out, `"error":"plain failure"`)
}

func TestMultiHandler(t *testing.T) {
	var info, warn bytes.Buffer
	multi := NewMultiHandler(
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	ctx := context.Background()

	assert.True(t, multi.Enabled(ctx, slog.LevelInfo))
	assert.False(t, multi.Enabled(ctx, slog.LevelDebug))

	require.NoError(t, multi.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)))
	assert.Contains(t, info.String(), "hello")
	assert.Empty(t, warn.String())

	grouped := slog.New(multi.WithGroup("g").WithAttrs([]slog.Attr{slog.String("k", "v")}))
	grouped.Warn("grouped")
	assert.Contains(t, warn.String(), "g.k=v")
}
