// Package config loads authflow settings from the environment. A .env file
// in the working directory is read first when present; real environment
// variables win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
		// TrustedProxies may set X-Forwarded-For. Empty means none.
		TrustedProxies []string `validate:"dive,ip|cidr"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	DB struct {
		Driver      string `validate:"required,oneof=sqlite postgres"`
		SQLitePath  string `validate:"required_if=Driver sqlite"`
		PostgresDSN string `validate:"required_if=Driver postgres"`
	}
	Redis struct {
		URL string `validate:"omitempty,url"`
	}
	RateLimit struct {
		Requests int           `validate:"min=1"`
		Window   time.Duration `validate:"min=1s"`
		MaxKeys  int           `validate:"min=0"`
	}
	Auth struct {
		SessionTTL time.Duration `validate:"min=1m"`
		SignupTTL  time.Duration `validate:"min=1m"`
		ResetTTL   time.Duration `validate:"min=1m"`
		BcryptCost int           `validate:"min=4,max=31"`
	}
	Purge struct {
		Schedule string `validate:"required"`
	}
	Locale struct {
		Default string `validate:"required,oneof=en es"`
	}
	// Client is read by authctl only.
	Client struct {
		BaseURL string        `validate:"required,url"`
		Timeout time.Duration `validate:"min=1ms"`
	}
}

var validate = validator.New()

// Load returns every parse and validation problem at once.
func Load() (Config, error) {
	_ = godotenv.Load()

	var (
		c Config
		e env
	)
	c.Env = e.lower("ENV", "prod")
	c.HTTP.Addr = e.str("HTTP_ADDR", ":8080")
	c.HTTP.TrustedProxies = e.list("TRUSTED_PROXIES")
	c.Log.ConsoleLevel = e.lower("LOG_CONSOLE_LEVEL", "info")
	c.Log.FileLevel = e.lower("LOG_FILE_LEVEL", "debug")
	c.Log.File = e.str("LOG_FILE", "")

	c.DB.Driver = e.lower("DB_DRIVER", "sqlite")
	c.DB.SQLitePath = e.str("SQLITE_PATH", "data/authflow.db")
	c.DB.PostgresDSN = e.str("POSTGRES_DSN", "")
	c.Redis.URL = e.str("REDIS_URL", "")

	c.RateLimit.Requests = e.num("RATE_LIMIT_REQUESTS", 10)
	c.RateLimit.Window = e.duration("RATE_LIMIT_WINDOW", time.Minute)
	c.RateLimit.MaxKeys = e.num("RATE_LIMIT_MAX_KEYS", 0)

	c.Auth.SessionTTL = e.duration("SESSION_TTL", 24*time.Hour)
	c.Auth.SignupTTL = e.duration("SIGNUP_TOKEN_TTL", 15*time.Minute)
	c.Auth.ResetTTL = e.duration("RESET_TOKEN_TTL", time.Hour)
	c.Auth.BcryptCost = e.num("BCRYPT_COST", 10)

	c.Purge.Schedule = e.str("PURGE_SCHEDULE", "@every 10m")
	c.Locale.Default = e.lower("DEFAULT_LOCALE", "en")

	c.Client.BaseURL = e.str("AUTHFLOW_URL", "http://localhost:8080")
	c.Client.Timeout = e.duration("AUTHFLOW_TIMEOUT", 10*time.Second)

	if err := errors.Join(append(e.errs, c.Validate())...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Validate reports each failed rule as "Field.Path: tag".
func (c Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			errs = append(errs, fmt.Errorf("%s: %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %s", field, fe.Tag()))
	}
	return errors.Join(errs...)
}

// env reads variables and collects malformed values instead of stopping at
// the first one.
type env struct{ errs []error }

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *env) lower(key, def string) string {
	return strings.ToLower(e.str(key, def))
}

// list splits a comma-separated value, dropping empty items.
func (e *env) list(key string) []string {
	var out []string
	for _, v := range strings.Split(e.str(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (e *env) num(key string, def int) int {
	return parse(e, key, def, strconv.Atoi)
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	return parse(e, key, def, time.ParseDuration)
}

func parse[T any](e *env, key string, def T, fn func(string) (T, error)) T {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := fn(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		return def
	}
	return v
}
