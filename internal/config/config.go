package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port            string
	DatabaseURL     string
	OpenAIAPIKey    string
	IndexBackend    string // "memory" or "pgvector"
	SlackWebhookURL string
	LogLevel        string
	LogFormat       string
	Environment     string

	// Engine tuning
	SummaryWordThreshold int
	RetrievalK           int
	HistoryTurns         int
	MaxChunkChars        int
}

func Load() *Config {
	return &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		DatabaseURL:     getEnvOrDefault("DATABASE_URL", "postgres://localhost/neighborly?sslmode=disable"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		IndexBackend:    getEnvOrDefault("INDEX_BACKEND", "pgvector"),
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "INFO"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "text"),
		Environment:     getEnvOrDefault("ENVIRONMENT", "development"),

		SummaryWordThreshold: getEnvIntOrDefault("SUMMARY_WORD_THRESHOLD", 50),
		RetrievalK:           getEnvIntOrDefault("RETRIEVAL_K", 5),
		HistoryTurns:         getEnvIntOrDefault("HISTORY_TURNS", 8),
		MaxChunkChars:        getEnvIntOrDefault("MAX_CHUNK_CHARS", 1000),
	}
}

func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	validBackends := []string{"memory", "pgvector"}
	if !contains(validBackends, strings.ToLower(c.IndexBackend)) {
		return fmt.Errorf("INDEX_BACKEND must be one of: memory, pgvector")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !contains(validLogLevels, strings.ToUpper(c.LogLevel)) {
		return fmt.Errorf("LOG_LEVEL must be one of: DEBUG, INFO, WARN, ERROR")
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		return fmt.Errorf("LOG_FORMAT must be one of: text, json")
	}

	if c.RetrievalK <= 0 {
		return fmt.Errorf("RETRIEVAL_K must be positive")
	}

	if c.SummaryWordThreshold <= 0 {
		return fmt.Errorf("SUMMARY_WORD_THRESHOLD must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Environment) == "development"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
