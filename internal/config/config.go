package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	LegacyDatabaseURL  string
	CORSAllowedOrigins []string
	JWTSecret          string
	WebhookRateLimit   float64
	WebhookRateBurst   int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	OutboxQueueURL      string
	OutboxEnabled       bool
	OutboxInterval      time.Duration

	// Meta channels
	GraphAPIBase         string
	InstagramAppSecret   string
	InstagramVerifyToken string
	WhatsAppAPIBase      string
	WhatsAppAppSecret    string
	WhatsAppVerifyToken  string
	FormWebhookSecret    string

	// Telephony
	TelephonyBaseURL       string
	TelephonyAPIKey        string
	TelephonyAPISecret     string
	TelephonyFromNumber    string
	TelephonyWebhookSecret string

	// AI providers
	AIProviderOrder   []string
	AIMaxTokens       int
	AIContextCacheTTL time.Duration
	BedrockModelID    string
	GeminiAPIKey      string
	GeminiModelID     string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string

	HealthPollEnabled  bool
	HealthPollInterval time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		LegacyDatabaseURL:  getEnv("LEGACY_DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		WebhookRateLimit:   getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst:   getEnvAsInt("WEBHOOK_RATE_BURST", 40),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		OutboxQueueURL:      getEnv("OUTBOX_QUEUE_URL", ""),
		OutboxEnabled:       getEnvAsBool("OUTBOX_ENABLED", false),
		OutboxInterval:      getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),

		GraphAPIBase:         getEnv("GRAPH_API_BASE", "https://graph.facebook.com/v18.0"),
		InstagramAppSecret:   getEnv("INSTAGRAM_APP_SECRET", ""),
		InstagramVerifyToken: getEnv("INSTAGRAM_VERIFY_TOKEN", ""),
		WhatsAppAPIBase:      getEnv("WHATSAPP_API_BASE", "https://graph.facebook.com/v18.0"),
		WhatsAppAppSecret:    getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppVerifyToken:  getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		FormWebhookSecret:    getEnv("FORM_WEBHOOK_SECRET", ""),

		TelephonyBaseURL:       getEnv("TELEPHONY_BASE_URL", "https://api.zadarma.com"),
		TelephonyAPIKey:        getEnv("TELEPHONY_API_KEY", ""),
		TelephonyAPISecret:     getEnv("TELEPHONY_API_SECRET", ""),
		TelephonyFromNumber:    getEnv("TELEPHONY_FROM_NUMBER", ""),
		TelephonyWebhookSecret: getEnv("TELEPHONY_WEBHOOK_SECRET", ""),

		AIProviderOrder:   getEnvAsList("AI_PROVIDER_ORDER", []string{"bedrock", "gemini", "openai"}),
		AIMaxTokens:       getEnvAsInt("AI_MAX_TOKENS", 1024),
		AIContextCacheTTL: getEnvAsDuration("AI_CONTEXT_CACHE_TTL", time.Minute),
		BedrockModelID:    getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:     getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),

		HealthPollEnabled:  getEnvAsBool("HEALTH_POLL_ENABLED", false),
		HealthPollInterval: getEnvAsDuration("HEALTH_POLL_INTERVAL", 10*time.Minute),
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping blank items.
func getEnvAsList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
