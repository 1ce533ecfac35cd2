package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the subset of Config that may be set from a TOML file.
// Durations are written as Go duration strings ("30s", "720h").
type fileConfig struct {
	Server struct {
		Port     string `toml:"port"`
		GRPCPort string `toml:"grpc_port"`
		Env      string `toml:"env"`
		Timeout  string `toml:"timeout"`
	} `toml:"server"`

	Store struct {
		Backend string `toml:"backend"`
		Timeout string `toml:"timeout"`
	} `toml:"store"`

	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
	} `toml:"redis"`

	Database struct {
		Host     string `toml:"host"`
		Port     string `toml:"port"`
		User     string `toml:"user"`
		Password string `toml:"password"`
		Name     string `toml:"name"`
		SSLMode  string `toml:"ssl_mode"`
	} `toml:"database"`

	SQLite struct {
		Path string `toml:"path"`
	} `toml:"sqlite"`

	JWT struct {
		Secret string `toml:"secret"`
		Expiry string `toml:"expiry"`
	} `toml:"jwt"`

	Security struct {
		AllowedOrigins []string `toml:"allowed_origins"`
	} `toml:"security"`

	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`

	Generation struct {
		Model   string `toml:"model"`
		BaseURL string `toml:"base_url"`
		Timeout string `toml:"timeout"`
	} `toml:"generation"`

	AdGate struct {
		Steps       int `toml:"steps"`
		StepSeconds int `toml:"step_seconds"`
	} `toml:"adgate"`

	Quota struct {
		FreeWeeklyLimit int `toml:"free_weekly_limit"`
	} `toml:"quota"`

	Vault struct {
		Enabled     bool   `toml:"enabled"`
		Address     string `toml:"address"`
		Namespace   string `toml:"namespace"`
		SecretsPath string `toml:"secrets_path"`
	} `toml:"vault"`

	OpenAPI struct {
		SchemaPath string `toml:"schema_path"`
	} `toml:"openapi"`
}

// loadFile decodes the TOML file at path. A missing or unreadable file
// yields an empty fileConfig so that defaults apply.
func loadFile(path string) *fileConfig {
	fc := &fileConfig{}
	if path == "" {
		return fc
	}
	if _, err := os.Stat(path); err != nil {
		return fc
	}
	if _, err := toml.DecodeFile(path, fc); err != nil {
		return &fileConfig{}
	}
	return fc
}

func (f *fileConfig) str(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func (f *fileConfig) num(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func (f *fileConfig) dur(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func (f *fileConfig) slice(value, fallback []string) []string {
	if len(value) > 0 {
		return value
	}
	return fallback
}
