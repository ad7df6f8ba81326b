package config

import (
	"context"
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
		Port        string
		Env         string
		Version     string
		Timeout     time.Duration
		BaseURL     string
		FrontendURL string
	}

	// Database configuration
	Database struct {
		URL      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Retries  int
		Timeout  time.Duration
	}

	// JWT configuration
	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Facebook app and Graph API settings
	Facebook struct {
		AppID             string
		AppSecret         string
		VerifyToken       string
		GraphAPIBase      string
		DialogBase        string
		ValidateSignature bool
		Timeout           time.Duration
	}

	// Gemini completion API settings
	Gemini struct {
		APIKey  string
		Model   string
		BaseURL string
		Timeout time.Duration
	}

	// Messaging pipeline settings
	Pipeline struct {
		HistoryLimit int
		DedupeTTL    time.Duration
		Timeout      time.Duration
	}

	// Redis is optional; an empty URL selects the in-memory dedupe cache
	Redis struct {
		URL      string
		Password string
		DB       int
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

	// Observability settings
	Observability struct {
		ServiceName    string
		TracingEnabled bool
		MetricsEnabled bool
		GRPCHealthPort string
	}

	// Vault settings
	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		Mount       string
		SecretsPath string
	}

	// OpenAPI request validation
	OpenAPI struct {
		SchemaPath string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		_ = godotenv.Load()

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

// Load reads a fresh Config from the environment without touching the singleton.
func Load() *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "4000")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Version = getEnvString("APP_VERSION", "1.0.0")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.BaseURL = strings.TrimRight(getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port), "/")
	cfg.Server.FrontendURL = strings.TrimRight(getEnvString("FRONTEND_URL", "http://localhost:5173"), "/")

	// Database config
	cfg.Database.URL = getEnvString("DATABASE_URL", "")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "textreply")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Retries = getEnvInt("DB_CONNECT_RETRIES", 5)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

	// JWT config
	cfg.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
	cfg.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 7*24*time.Hour)

	// Facebook config
	cfg.Facebook.AppID = getEnvString("FB_APP_ID", "")
	cfg.Facebook.AppSecret = getEnvString("FB_APP_SECRET", "")
	cfg.Facebook.VerifyToken = getEnvString("FB_VERIFY_TOKEN", "")
	cfg.Facebook.GraphAPIBase = strings.TrimRight(getEnvString("FB_GRAPH_API_BASE", "https://graph.facebook.com/v21.0"), "/")
	cfg.Facebook.DialogBase = strings.TrimRight(getEnvString("FB_DIALOG_BASE", "https://www.facebook.com/v21.0"), "/")
	cfg.Facebook.ValidateSignature = getEnvBool("FB_VALIDATE_SIGNATURE", false)
	cfg.Facebook.Timeout = getEnvDuration("FB_TIMEOUT", 10*time.Second)

	// Gemini config
	cfg.Gemini.APIKey = getEnvString("GEMINI_API_KEY", "")
	cfg.Gemini.Model = getEnvString("GEMINI_MODEL", "gemini-2.5-flash-preview-09-2025")
	cfg.Gemini.BaseURL = strings.TrimRight(getEnvString("GEMINI_API_BASE", "https://generativelanguage.googleapis.com/v1beta"), "/")
	cfg.Gemini.Timeout = getEnvDuration("GEMINI_TIMEOUT", 30*time.Second)

	// Pipeline config
	cfg.Pipeline.HistoryLimit = getEnvInt("HISTORY_LIMIT", 20)
	cfg.Pipeline.DedupeTTL = getEnvDuration("DEDUPE_TTL", 24*time.Hour)
	cfg.Pipeline.Timeout = getEnvDuration("PIPELINE_TIMEOUT", 0) // unbounded

	// Redis config
	cfg.Redis.URL = getEnvString("REDIS_URL", "")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// Security config
	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	// Observability config
	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "textreply-api")
	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
	cfg.Observability.GRPCHealthPort = getEnvString("GRPC_HEALTH_PORT", "")

	// Vault config
	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.Mount = getEnvString("VAULT_MOUNT", "secret")
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "textreply")

	// OpenAPI config
	cfg.OpenAPI.SchemaPath = getEnvString("OPENAPI_SCHEMA_PATH", "")

	return cfg
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// SecretSource resolves named secrets, returning the fallback when a secret is absent.
type SecretSource interface {
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// ApplySecrets overrides credential fields with values from the secret source.
// Values already loaded from the environment are used as fallbacks.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource) {
	c.JWT.Secret = src.GetSecretWithDefault(ctx, "jwt_secret", c.JWT.Secret)
	c.Facebook.AppSecret = src.GetSecretWithDefault(ctx, "fb_app_secret", c.Facebook.AppSecret)
	c.Facebook.VerifyToken = src.GetSecretWithDefault(ctx, "fb_verify_token", c.Facebook.VerifyToken)
	c.Gemini.APIKey = src.GetSecretWithDefault(ctx, "gemini_api_key", c.Gemini.APIKey)
	c.Database.Password = src.GetSecretWithDefault(ctx, "db_password", c.Database.Password)
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
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
