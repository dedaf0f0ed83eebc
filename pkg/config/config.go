package config

import (
	"errors"
	"fmt"
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
		Port    string
		Env     string
		Timeout time.Duration
	}

	// Dialogflow configuration
	Dialogflow struct {
		ProjectID       string
		Credentials     string // inline service-account JSON
		CredentialsFile string
		Endpoint        string // regional endpoint, e.g. europe-west2-dialogflow.googleapis.com:443
		LanguageCode    string
		Languages       []string
		Timeout         time.Duration
	}

	// Chat input limits
	Chat struct {
		MaxMessageLength int
	}

	// Session configuration
	Session struct {
		Secret     string
		CookieName string
		TTL        time.Duration
		Store      string // "memory" or "redis"
	}

	// Redis configuration
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Feature flags
	Features struct {
		EnableHistory    bool
		EnableWebSockets bool
		EnableTracing    bool
		EnableMetrics    bool
	}

	// Circuit breaker around the NLU service
	Breaker struct {
		FailureThreshold uint
		RetryTimeout     time.Duration
	}

	// Vault holds secrets that would otherwise come from the environment
	Vault struct {
		Enabled    bool
		Addr       string
		Token      string
		Namespace  string
		Mount      string
		Path       string
		Timeout    time.Duration
		MaxRetries int
	}

	Telemetry struct {
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

// New returns the process-wide Config, loading it from the environment on first use.
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
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

// Load builds a fresh Config from the current environment.
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)

	cfg.Dialogflow.ProjectID = getEnvString("DIALOGFLOW_PROJECT_ID", "")
	cfg.Dialogflow.Credentials = getEnvString("DIALOGFLOW_CREDENTIALS", "")
	cfg.Dialogflow.CredentialsFile = getEnvString("GOOGLE_APPLICATION_CREDENTIALS", "")
	cfg.Dialogflow.Endpoint = getEnvString("DIALOGFLOW_ENDPOINT", "")
	cfg.Dialogflow.LanguageCode = getEnvString("DIALOGFLOW_LANGUAGE_CODE", "en-US")
	cfg.Dialogflow.Languages = getEnvStringSlice("DIALOGFLOW_LANGUAGES", []string{cfg.Dialogflow.LanguageCode})
	cfg.Dialogflow.Timeout = getEnvDuration("DIALOGFLOW_TIMEOUT", 10*time.Second)

	// 256 is the Dialogflow text input limit
	cfg.Chat.MaxMessageLength = getEnvInt("CHAT_MAX_MESSAGE_LENGTH", 256)

	cfg.Session.Secret = getEnvString("SESSION_SECRET", "")
	cfg.Session.CookieName = getEnvString("SESSION_COOKIE", "chat_session")
	cfg.Session.TTL = getEnvDuration("SESSION_TTL", 30*time.Minute)
	cfg.Session.Store = strings.ToLower(getEnvString("SESSION_STORE", "memory"))

	cfg.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "chatbot")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)

	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 2)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 5)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 64<<10) // 64KB

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Features.EnableHistory = getEnvBool("ENABLE_HISTORY", false)
	cfg.Features.EnableWebSockets = getEnvBool("ENABLE_WEBSOCKETS", true)
	cfg.Features.EnableTracing = getEnvBool("ENABLE_TRACING", false)
	cfg.Features.EnableMetrics = getEnvBool("ENABLE_METRICS", true)

	cfg.Breaker.FailureThreshold = uint(getEnvInt("BREAKER_FAILURES", 5))
	cfg.Breaker.RetryTimeout = getEnvDuration("BREAKER_RETRY", 30*time.Second)

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Addr = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.Mount = getEnvString("VAULT_MOUNT", "secret")
	cfg.Vault.Path = getEnvString("VAULT_SECRETS_PATH", "chat-bridge")
	cfg.Vault.Timeout = getEnvDuration("VAULT_TIMEOUT", 10*time.Second)
	cfg.Vault.MaxRetries = getEnvInt("VAULT_MAX_RETRIES", 3)

	cfg.Telemetry.ServiceName = getEnvString("OTEL_SERVICE_NAME", "chat-bridge")

	cfg.OpenAPI.SchemaPath = getEnvString("OPENAPI_SCHEMA_PATH", "")

	return cfg
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Dialogflow.ProjectID == "" {
		errs = append(errs, errors.New("DIALOGFLOW_PROJECT_ID is required"))
	}
	if c.Dialogflow.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("DIALOGFLOW_TIMEOUT must be positive, got %s", c.Dialogflow.Timeout))
	}
	if c.Chat.MaxMessageLength <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_MAX_MESSAGE_LENGTH must be positive, got %d", c.Chat.MaxMessageLength))
	}
	if c.Session.Store != "memory" && c.Session.Store != "redis" {
		errs = append(errs, fmt.Errorf("SESSION_STORE must be memory or redis, got %q", c.Session.Store))
	}
	if c.Vault.Enabled && (c.Vault.Addr == "" || c.Vault.Token == "") {
		errs = append(errs, errors.New("VAULT_ADDR and VAULT_TOKEN are required when VAULT_ENABLED is set"))
	}
	if c.Server.Env == "production" && c.Session.Secret == "" && !c.Vault.Enabled {
		errs = append(errs, errors.New("SESSION_SECRET is required in production"))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// DSN builds the PostgreSQL connection string for gorm.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
