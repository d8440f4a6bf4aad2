package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Discovery configuration
	Owner     string   // owner key niches are stored under
	Topics    []string // rotating topic list for scheduled cycles
	TopicsPer int      // topics per cycle
	Mode      string   // painpoint, trend or hybrid

	// Provider tiers
	StableProviders   []string
	OptionalProviders []string
	FetchLimit        int

	// Postgres persistence
	DatabaseURL string

	// Classifier configuration
	ClassifierAPIKey  string
	ClassifierBaseURL string
	ClassifierTier    string
	BatchSize         int
	BatchDelaySecs    int

	// Verification oracle
	VerificationURL    string
	VerificationAPIKey string
	VerifyThreshold    float64

	// Archive storage (optional)
	StorageAccount   string
	StorageContainer string
	ArchiveRetention int // days

	// Notification configuration
	WebhookURL     string
	AlertEmail     string
	AlertThreshold float64
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string

	// API keys and credentials for providers
	RedditClientID     string
	RedditClientSecret string
	YouTubeAPIKey      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		Owner: getEnv("NICHE_OWNER", "skypath"),
		Topics: getSliceEnv("DISCOVERY_TOPICS", []string{
			"productivity",
			"remote work",
			"developer tools",
			"personal finance",
			"health tracking",
			"home automation",
			"creator economy",
			"language learning",
		}),
		TopicsPer: getIntEnv("TOPICS_PER_CYCLE", 2),
		Mode:      getEnv("DISCOVERY_MODE", "hybrid"),

		StableProviders:   getSliceEnv("STABLE_PROVIDERS", []string{"reddit", "hackernews"}),
		OptionalProviders: getSliceEnv("OPTIONAL_PROVIDERS", []string{"stackoverflow", "youtube"}),
		FetchLimit:        getIntEnv("FETCH_LIMIT", 50),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		ClassifierAPIKey:  getEnv("CLASSIFIER_API_KEY", ""),
		ClassifierBaseURL: getEnv("CLASSIFIER_BASE_URL", "https://api.openai.com/v1"),
		ClassifierTier:    getEnv("CLASSIFIER_TIER", "standard"),
		BatchSize:         getIntEnv("CLASSIFIER_BATCH_SIZE", 20),
		BatchDelaySecs:    getIntEnv("CLASSIFIER_BATCH_DELAY", 1),

		VerificationURL:    getEnv("VERIFICATION_URL", ""),
		VerificationAPIKey: getEnv("VERIFICATION_API_KEY", ""),
		VerifyThreshold:    getFloatEnv("VERIFY_THRESHOLD", 75),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "mention-archive"),
		ArchiveRetention: getIntEnv("ARCHIVE_RETENTION_DAYS", 30),

		WebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
		AlertEmail:     getEnv("ALERT_EMAIL", ""),
		AlertThreshold: getFloatEnv("ALERT_THRESHOLD", 80),
		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getIntEnv("SMTP_PORT", 587),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		YouTubeAPIKey:      getEnv("YOUTUBE_API_KEY", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Mode != "painpoint" && c.Mode != "trend" && c.Mode != "hybrid" {
		return fmt.Errorf("DISCOVERY_MODE must be 'painpoint', 'trend' or 'hybrid'")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ClassifierAPIKey == "" {
		return fmt.Errorf("CLASSIFIER_API_KEY is required")
	}

	if len(c.Topics) == 0 {
		return fmt.Errorf("DISCOVERY_TOPICS must not be empty")
	}

	if c.TopicsPer < 1 {
		return fmt.Errorf("TOPICS_PER_CYCLE must be at least 1")
	}

	if c.BatchSize < 1 || c.BatchSize > 50 {
		return fmt.Errorf("CLASSIFIER_BATCH_SIZE must be between 1 and 50")
	}

	if c.AlertEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when ALERT_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
