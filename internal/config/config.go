package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultCurrencySymbol = "₹"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	AppEnv             string   `validate:"required"`
	Port               string   `validate:"required,numeric"`
	LogLevel           string   `validate:"oneof=debug info warn error"`
	// LogFormat is empty when unset; callers pick a format from AppEnv.
	LogFormat          string   `validate:"omitempty,oneof=json console text"`
	CORSAllowedOrigins []string `validate:"min=1,dive,required"`
	SeedPath           string   `validate:"omitempty,file"`
	CurrencySymbol     string   `validate:"required"`
}

// envVars mirrors the raw environment keys.
type envVars struct {
	AppEnv             string `koanf:"APP_ENV"`
	Port               string `koanf:"PORT"`
	LogLevel           string `koanf:"LOG_LEVEL"`
	LogFormat          string `koanf:"LOG_FORMAT"`
	CORSAllowedOrigins string `koanf:"CORS_ALLOWED_ORIGINS"`
	SeedPath           string `koanf:"SEED_PATH"`
	CurrencySymbol     string `koanf:"CURRENCY_SYMBOL"`
}

// Load reads ./.env when present, then the process environment, and
// validates the result.
func Load() (Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with explicit dotenv files. Missing files are skipped and
// variables already in the environment are never overwritten.
func LoadFrom(dotenvFiles ...string) (Config, error) {
	for _, f := range dotenvFiles {
		// Best-effort: production should use real env injection.
		_ = godotenv.Load(f)
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var raw envVars
	if err := k.Unmarshal("", &raw); err != nil {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}

	cfg := Config{
		AppEnv:             valueOrDefault(raw.AppEnv, defaultAppEnv),
		Port:               strings.TrimPrefix(valueOrDefault(raw.Port, defaultPort), ":"),
		LogLevel:           strings.ToLower(valueOrDefault(raw.LogLevel, defaultLogLevel)),
		LogFormat:          strings.ToLower(strings.TrimSpace(raw.LogFormat)),
		CORSAllowedOrigins: splitAndTrim(raw.CORSAllowedOrigins),
		SeedPath:           strings.TrimSpace(raw.SeedPath),
		CurrencySymbol:     valueOrDefault(raw.CurrencySymbol, defaultCurrencySymbol),
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local":
		return true
	}
	return false
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c Config) HTTPAddr() string {
	return ":" + c.Port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}
