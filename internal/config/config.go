package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env       string
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	RedisURL    string

	// Text-generation collaborator (OpenAI-compatible chat completions)
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Bol.com product search (affiliate enrichment)
	BolcomAPIKey  string
	BolcomBaseURL string

	// Queue processing
	TickSchedule  string // cron spec for the periodic queue tick
	TickBatchSize int
	EmbedWorker   bool // run the asynq worker inside the API process
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present (development convenience).
func Load() *Config {
	// Absence of a .env file is the normal production case.
	_ = godotenv.Load()

	return &Config{
		Env:       getEnvWithDefault("ENV", "development"),
		Port:      getEnvWithDefault("PORT", "8080"),
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnvWithDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnvWithDefault("OPENAI_MODEL", "gpt-4o"),

		BolcomAPIKey:  os.Getenv("BOLCOM_API_KEY"),
		BolcomBaseURL: getEnvWithDefault("BOLCOM_BASE_URL", "https://api.bol.com"),

		TickSchedule:  getEnvWithDefault("TICK_SCHEDULE", "*/5 * * * *"),
		TickBatchSize: getEnvIntWithDefault("TICK_BATCH_SIZE", 3),
		EmbedWorker:   getEnvBoolWithDefault("EMBED_WORKER", true),
	}
}

// Validate checks that configuration required at startup is present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.TickBatchSize < 1 {
		return fmt.Errorf("TICK_BATCH_SIZE must be at least 1, got %d", c.TickBatchSize)
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
