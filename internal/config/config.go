package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string
	ChatModel     string
	ModelTimeout  time.Duration

	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseJWTSecret      string
	SupabaseStorageBucket  string

	// Database
	DatabaseURL string

	// Redis, optional. Rate budgets are kept in memory without it.
	RedisURL string

	// Logging
	LogLevel    string
	LogEncoding string

	// Server
	Port        string
	Environment string
	FrontendURL string
}

// Load reads the environment, after merging a .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	timeout, err := getDuration("MODEL_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChatModel:     getEnv("OPENAI_CHAT_MODEL", "gpt-4"),
		ModelTimeout:  timeout,

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabasePublishableKey: getEnv("SUPABASE_PUBLISHABLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "dream-images"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogEncoding: getEnv("LOG_ENCODING", "json"),

		Port:        getEnv("PORT", "3001"),
		Environment: getEnv("ENVIRONMENT", "development"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks what the server cannot run without. A missing OpenAI key is
// allowed; generation endpoints then answer not_configured.
func (c *Config) Validate() error {
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.ModelTimeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be positive")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if (c.SupabaseURL == "") != (c.SupabasePublishableKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_PUBLISHABLE_KEY must be set together")
	}
	return nil
}

// StorageConfigured reports whether generated images can be archived.
func (c *Config) StorageConfigured() bool {
	return c.SupabaseURL != "" && c.SupabasePublishableKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
