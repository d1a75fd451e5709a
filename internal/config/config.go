package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Voice platform webhook
	VoiceWebhookSecret string
	MaxSlotsPerTurn    int
	SlotSearchDays     int

	// Admin endpoints
	AdminAuthSecret string

	// Conversation state
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	CallStateTTL  time.Duration

	// Practice data / audit
	DatabaseURL string

	// NexHealth scheduling API
	NexHealthBaseURL string
	NexHealthAPIKey  string
	NexHealthTimeout time.Duration

	// Intent classification
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	BedrockModelID     string
	GeminiAPIKey       string
	GeminiModelID      string

	// Booking confirmation email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		VoiceWebhookSecret: getEnv("VOICE_WEBHOOK_SECRET", ""),
		MaxSlotsPerTurn:    getEnvAsInt("MAX_SLOTS_PER_TURN", 3),
		SlotSearchDays:     getEnvAsInt("SLOT_SEARCH_DAYS", 14),

		AdminAuthSecret: getEnv("ADMIN_AUTH_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		CallStateTTL:  getEnvAsDuration("CALL_STATE_TTL", 24*time.Hour),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		NexHealthBaseURL: getEnv("NEXHEALTH_BASE_URL", "https://nexhealth.info"),
		NexHealthAPIKey:  getEnv("NEXHEALTH_API_KEY", ""),
		NexHealthTimeout: getEnvAsDuration("NEXHEALTH_TIMEOUT", 10*time.Second),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Laine"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
