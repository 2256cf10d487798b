// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" validate:"required"`
	FrontendURL string `env:"FRONTEND_URL"`
	ProjectID   string `env:"PROJECT_ID" validate:"required"`
	Location    string `env:"LOCATION" validate:"required"`

	Agent           AgentConfig
	Blob            BlobConfig
	Session         SessionConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig

	MaxUploadBytes    int64  `env:"MAX_UPLOAD_BYTES" validate:"gt=0"`
	ImageBlindPattern string `env:"IMAGE_BLIND_PATTERN"`
}

// AgentConfig selects and addresses the remote agent runtime.
type AgentConfig struct {
	Transport   string `env:"AGENT_TRANSPORT" validate:"oneof=rest grpc"`
	EngineName  string `env:"AGENT_ENGINE_NAME" validate:"required_if=Transport rest"`
	GRPCAddr    string `env:"AGENT_GRPC_ADDR" validate:"required_if=Transport grpc"`
	Model       string `env:"MODEL" validate:"required"`
	DatasetName string `env:"DATASET_NAME" validate:"required"`
}

// BlobConfig controls where uploaded images are staged.
type BlobConfig struct {
	Backend  string `env:"BLOB_BACKEND" validate:"oneof=gcs local"`
	Bucket   string `env:"UPLOAD_BUCKET" validate:"required_if=Backend gcs"`
	LocalDir string `env:"BLOB_LOCAL_DIR" validate:"required_if=Backend local"`
}

// SessionConfig controls where visitor sessions are kept.
type SessionConfig struct {
	Backend string        `env:"SESSION_BACKEND" validate:"oneof=cookie sqlite"`
	Secret  string        `env:"SESSION_SECRET" validate:"required_if=Backend cookie"`
	DBPath  string        `env:"DB_PATH" validate:"required_if=Backend sqlite"`
	TTL     time.Duration `env:"SESSION_TTL" validate:"gt=0"`
}

// RateLimitConfig throttles chat requests per visitor. A zero rate disables it.
type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" validate:"gte=0"`
	Burst int     `env:"RATE_LIMIT_BURST" validate:"gte=1"`
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool   `env:"CONVERSATION_LOG_ENABLED"`
	Dir           string `env:"CONVERSATION_LOG_DIR" validate:"required_if=Enabled true"`
	GlobalEnabled bool   `env:"CONVERSATION_LOG_GLOBAL_ENABLED"`
	GlobalPath    string `env:"CONVERSATION_LOG_GLOBAL_PATH" validate:"required_if=GlobalEnabled true"`
	QueueSize     int    `env:"CONVERSATION_LOG_QUEUE_SIZE" validate:"gt=0"`
}

const devSessionSecret = "local-development-only-secret"

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	bucket := getEnv("UPLOAD_BUCKET", "")
	blobBackend := "local"
	if bucket != "" {
		blobBackend = "gcs"
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		ProjectID:   getEnv("PROJECT_ID", getEnv("GOOGLE_CLOUD_PROJECT", "")),
		Location:    getEnv("LOCATION", "us-central1"),
		Agent: AgentConfig{
			Transport:   strings.ToLower(getEnv("AGENT_TRANSPORT", "rest")),
			EngineName:  getEnv("AGENT_ENGINE_NAME", ""),
			GRPCAddr:    getEnv("AGENT_GRPC_ADDR", "localhost:50051"),
			Model:       getEnv("MODEL", "gemini-2.5-flash"),
			DatasetName: getEnv("DATASET_NAME", "usda_food_data"),
		},
		Blob: BlobConfig{
			Backend:  strings.ToLower(getEnv("BLOB_BACKEND", blobBackend)),
			Bucket:   bucket,
			LocalDir: getEnv("BLOB_LOCAL_DIR", "./data/uploads"),
		},
		Session: SessionConfig{
			Backend: strings.ToLower(getEnv("SESSION_BACKEND", "cookie")),
			Secret:  getEnv("SESSION_SECRET", ""),
			DBPath:  getEnv("DB_PATH", "./data/sessions.db"),
			TTL:     getEnvDuration("SESSION_TTL", 60*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 1),
			Burst: getEnvInt("RATE_LIMIT_BURST", 5),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
		MaxUploadBytes:    getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		ImageBlindPattern: getEnv("IMAGE_BLIND_PATTERN", ""),
	}

	if cfg.Session.Secret == "" && cfg.IsDevelopment() {
		cfg.Session.Secret = devSessionSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fe.Field() + " cannot be empty"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be > %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
