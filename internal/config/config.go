package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	// WhatsApp Cloud API
	WhatsAppAccessToken string
	WhatsAppVerifyToken string
	WhatsAppAPIBaseURL  string
	WhatsAppMockMode    bool
	DefaultCountryCode  string

	// Conversation policy engine
	GeminiAPIKey  string
	GeminiModelID string
	PolicyMock    bool

	// Scheduling
	SlotStepMinutes   int
	BookingWindowDays int

	// Routing
	RouteTimeout  time.Duration
	FallbackReply string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		WhatsAppAccessToken: getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAPIBaseURL:  getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v18.0"),
		WhatsAppMockMode:    getEnvAsBool("WHATSAPP_MOCK_MODE", true),
		DefaultCountryCode:  getEnv("DEFAULT_COUNTRY_CODE", "52"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		PolicyMock:    getEnvAsBool("POLICY_MOCK_MODE", true),

		SlotStepMinutes:   getEnvAsInt("SLOT_STEP_MINUTES", 15),
		BookingWindowDays: getEnvAsInt("BOOKING_WINDOW_DAYS", 30),

		RouteTimeout:  getEnvAsDuration("ROUTE_TIMEOUT", 15*time.Second),
		FallbackReply: getEnv("FALLBACK_REPLY", "Lo siento, tuve un problema procesando tu mensaje. Intenta de nuevo en un momento."),
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
