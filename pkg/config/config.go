package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		GRPCPort string
		Env      string
		Timeout  time.Duration
		BaseURL  string
	}

	// Persistence backend selection: memory, redis, postgres or sqlite
	Store struct {
		Backend string
		Timeout time.Duration
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// Database configuration for the postgres store backend
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
		Retries  int
	}

	SQLite struct {
		Path string
	}

	// JWT configuration
	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		SendRateLimit  float64
		SendBurst      int
		AllowedOrigins []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Generation service settings
	Generation struct {
		Model         string
		BaseURL       string
		Timeout       time.Duration
		CredentialKey string
	}

	AdGate struct {
		Steps       int
		StepSeconds int
	}

	Quota struct {
		// FreeWeeklyLimit of 0 keeps usage tracking informational only
		FreeWeeklyLimit int
	}

	Workspace struct {
		IdleTTL       time.Duration
		CleanupPeriod time.Duration
	}

	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
	}

	Observability struct {
		Tracing     bool
		ServiceName string
	}

	OpenAPI struct {
		SchemaPath string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables.
// Uses singleton pattern to ensure only one instance exists.
func New() *Config {
	once.Do(func() {
		godotenv.Load()
		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load builds a fresh Config from the optional TOML file named by
// OFICIOGEN_CONFIG and the process environment. Environment wins.
func Load() *Config {
	cfg := &Config{}
	file := loadFile(os.Getenv("OFICIOGEN_CONFIG"))

	// Server config
	cfg.Server.Port = getEnvString("PORT", file.str(file.Server.Port, "8081"))
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", file.str(file.Server.GRPCPort, "9091"))
	cfg.Server.Env = getEnvString("APP_ENV", file.str(file.Server.Env, "development"))
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", file.dur(file.Server.Timeout, 30*time.Second))
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)

	// Store config
	cfg.Store.Backend = strings.ToLower(getEnvString("STORE_BACKEND", file.str(file.Store.Backend, "memory")))
	cfg.Store.Timeout = getEnvDuration("STORE_TIMEOUT", file.dur(file.Store.Timeout, 3*time.Second))

	cfg.Redis.Addr = getEnvString("REDIS_URL", file.str(file.Redis.Addr, "localhost:6379"))
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", file.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", file.Redis.DB)

	// Database config
	cfg.Database.Host = getEnvString("DB_HOST", file.str(file.Database.Host, "localhost"))
	cfg.Database.Port = getEnvString("DB_PORT", file.str(file.Database.Port, "5432"))
	cfg.Database.User = getEnvString("DB_USER", file.str(file.Database.User, "postgres"))
	cfg.Database.Password = getEnvString("DB_PASSWORD", file.str(file.Database.Password, "postgres"))
	cfg.Database.Name = getEnvString("DB_NAME", file.str(file.Database.Name, "oficiogen"))
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", file.str(file.Database.SSLMode, "disable"))
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)
	cfg.Database.Retries = getEnvInt("DB_RETRIES", 5)

	cfg.SQLite.Path = getEnvString("SQLITE_PATH", file.str(file.SQLite.Path, "oficiogen.db"))

	// JWT config
	cfg.JWT.Secret = getEnvString("JWT_SECRET", file.str(file.JWT.Secret, "default-jwt-secret-do-not-use-in-production"))
	cfg.JWT.Expiry = getEnvDuration("JWT_EXPIRY", file.dur(file.JWT.Expiry, 30*24*time.Hour))

	// Security config
	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 10)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 20)
	cfg.Security.SendRateLimit = getEnvFloat("SEND_RATE_LIMIT", 0.5)
	cfg.Security.SendBurst = getEnvInt("SEND_RATE_BURST", 3)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", file.slice(file.Security.AllowedOrigins, []string{"*"}))
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", file.str(file.Logging.Level, "info"))
	cfg.Logging.Format = getEnvString("LOG_FORMAT", file.str(file.Logging.Format, "json"))

	// Generation config
	cfg.Generation.Model = getEnvString("GENERATION_MODEL", file.str(file.Generation.Model, "gemini-2.5-flash"))
	cfg.Generation.BaseURL = getEnvString("GENERATION_BASE_URL", file.str(file.Generation.BaseURL, "https://generativelanguage.googleapis.com"))
	cfg.Generation.Timeout = getEnvDuration("GENERATION_TIMEOUT", file.dur(file.Generation.Timeout, 60*time.Second))
	cfg.Generation.CredentialKey = getEnvString("GENERATION_CREDENTIAL_KEY", "gemini_api_key")

	// Ad gate config
	cfg.AdGate.Steps = getEnvInt("ADGATE_STEPS", file.num(file.AdGate.Steps, 3))
	cfg.AdGate.StepSeconds = getEnvInt("ADGATE_STEP_SECONDS", file.num(file.AdGate.StepSeconds, 5))

	cfg.Quota.FreeWeeklyLimit = getEnvInt("QUOTA_FREE_WEEKLY_LIMIT", file.Quota.FreeWeeklyLimit)

	cfg.Workspace.IdleTTL = getEnvDuration("WORKSPACE_IDLE_TTL", 30*time.Minute)
	cfg.Workspace.CleanupPeriod = getEnvDuration("WORKSPACE_CLEANUP_PERIOD", 5*time.Minute)

	// Vault config
	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", file.Vault.Enabled)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", file.Vault.Address)
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", file.Vault.Namespace)
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", file.str(file.Vault.SecretsPath, "oficiogen"))

	cfg.Observability.Tracing = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "oficiogen-backend")

	cfg.OpenAPI.SchemaPath = getEnvString("OPENAPI_SCHEMA_PATH", file.OpenAPI.SchemaPath)

	return cfg
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
