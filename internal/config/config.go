// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort       string `validate:"required,numeric"`
	AppEnv        string `validate:"required,oneof=development staging production"`
	PublicBaseURL string `validate:"required,url"`

	// Storage selects the persistence backend.
	Storage string `validate:"oneof=postgres memory"`

	JWT       JWTConfig
	SMTP      SMTPConfig
	Telemetry TelemetryConfig
	Requests  RequestsConfig
	Worker    WorkerConfig

	// AllowedOrigins are the CORS origins for the public intake endpoints.
	AllowedOrigins []string `validate:"min=1,dive,required"`
}

// JWTConfig holds administrative token settings.
type JWTConfig struct {
	SigningKey string `validate:"required,min=16"`
	Issuer     string `validate:"required"`
	Audience   string `validate:"required"`
}

// SMTPConfig holds outgoing mail settings. Mail is disabled when Host is empty.
type SMTPConfig struct {
	Host     string
	Port     string `validate:"required_with=Host"`
	From     string `validate:"required_with=Host,omitempty,email"`
	Username string
	Password string
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string  `validate:"required_if=Enabled true"`
	SampleRatio  float64 `validate:"gte=0,lte=1"`
}

// RequestsConfig holds request lifecycle settings.
type RequestsConfig struct {
	TokenTTL   time.Duration `validate:"min=1m"`
	MetaPrefix string        `validate:"required,alphanum"`
	Namespace  string        `validate:"required"`
}

// WorkerConfig holds background sweep settings.
type WorkerConfig struct {
	SweepInterval time.Duration `validate:"min=1s"`
	BatchSize     int           `validate:"min=1,max=1000"`
	Concurrency   int           `validate:"min=1,max=32"`

	// PubSubProject and PubSubSubscription enable triggered sweeps.
	PubSubProject      string
	PubSubSubscription string `validate:"required_with=PubSubProject"`
}

// LoadDotEnv loads a .env file into the environment if one exists.
// It reports whether a file was loaded.
func LoadDotEnv(paths ...string) bool {
	return godotenv.Load(paths...) == nil
}

// Load reads all configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		AppPort:       getEnvOrDefault("APP_PORT", "8080"),
		AppEnv:        getEnvOrDefault("APP_ENV", "development"),
		PublicBaseURL: getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),
		Storage:       getEnvOrDefault("STORAGE_BACKEND", StoragePostgres),
		JWT: JWTConfig{
			SigningKey: getEnvOrDefault("JWT_SIGNING_KEY", "local-dev-signing-key-change-in-production"),
			Issuer:     getEnvOrDefault("JWT_ISSUER", "privacydesk"),
			Audience:   getEnvOrDefault("JWT_AUDIENCE", "privacydesk-admin"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvOrDefault("SMTP_PORT", "587"),
			From:     getEnvOrDefault("SMTP_FROM", "privacy@example.com"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      os.Getenv("OTEL_ENABLED") == "true",
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		Requests: RequestsConfig{
			TokenTTL:   getEnvDuration("GDPR_TOKEN_TTL", 48*time.Hour),
			MetaPrefix: getEnvOrDefault("GDPR_META_PREFIX", "gdpr"),
			Namespace:  getEnvOrDefault("GDPR_SETTINGS_NAMESPACE", "gdpr_requests"),
		},
		Worker: WorkerConfig{
			SweepInterval:      getEnvDuration("WORKER_SWEEP_INTERVAL", time.Minute),
			BatchSize:          getEnvInt("WORKER_BATCH_SIZE", 100),
			Concurrency:        getEnvInt("WORKER_CONCURRENCY", 3),
			PubSubProject:      os.Getenv("PUBSUB_PROJECT_ID"),
			PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		},
		AllowedOrigins: splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its validate tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	if c.AppEnv == "production" && c.JWT.SigningKey == "local-dev-signing-key-change-in-production" {
		return fmt.Errorf("invalid configuration: JWT_SIGNING_KEY must be set in production")
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
