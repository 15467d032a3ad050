package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"mailsync/core/domain"
)

type Config struct {
	Port        string
	Environment string

	// Stores. Empty URLs switch the engine to the in-memory adapters,
	// used in dev mode and tests.
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// JWT
	JWTSecret string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// OAuth - Microsoft
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftRedirectURL  string
	MicrosoftTenantID     string

	// Processor
	ProcessorWorkers   int
	ProcessorBatchSize int
	RetryInterval      time.Duration
	BaseBackoff        time.Duration
	MaxBackoff         time.Duration
	CompletedTTL       time.Duration
	FailedRetention    time.Duration
	CleanupInterval    time.Duration

	// Rate limits (tokens, refill per second) per provider
	GmailMaxTokens    int
	GmailRefillRate   float64
	OutlookMaxTokens  int
	OutlookRefillRate float64

	// Circuit breaker
	BreakerThreshold   int
	BreakerWindow      time.Duration
	BreakerCooldown    time.Duration
	BreakerMaxCooldown time.Duration

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "mailsync"),
		RedisURL:    getEnv("REDIS_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		MicrosoftClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftRedirectURL:  getEnv("MICROSOFT_REDIRECT_URL", ""),
		MicrosoftTenantID:     getEnv("MICROSOFT_TENANT_ID", "common"),

		ProcessorWorkers:   getEnvInt("PROCESSOR_WORKERS", 8),
		ProcessorBatchSize: getEnvInt("PROCESSOR_BATCH_SIZE", 10),
		RetryInterval:      getEnvDuration("RETRY_INTERVAL", 5*time.Second),
		BaseBackoff:        getEnvDuration("BASE_BACKOFF", 2*time.Second),
		MaxBackoff:         getEnvDuration("MAX_BACKOFF", 5*time.Minute),
		CompletedTTL:       getEnvDuration("COMPLETED_TTL", 10*time.Minute),
		FailedRetention:    getEnvDuration("FAILED_RETENTION", 7*24*time.Hour),
		CleanupInterval:    getEnvDuration("CLEANUP_INTERVAL", time.Hour),

		GmailMaxTokens:    getEnvInt("GMAIL_MAX_TOKENS", 25),
		GmailRefillRate:   getEnvFloat("GMAIL_REFILL_RATE", 5.0),
		OutlookMaxTokens:  getEnvInt("OUTLOOK_MAX_TOKENS", 20),
		OutlookRefillRate: getEnvFloat("OUTLOOK_REFILL_RATE", 4.0),

		BreakerThreshold:   getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerWindow:      getEnvDuration("BREAKER_WINDOW", time.Minute),
		BreakerCooldown:    getEnvDuration("BREAKER_COOLDOWN", 30*time.Second),
		BreakerMaxCooldown: getEnvDuration("BREAKER_MAX_COOLDOWN", 5*time.Minute),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.Environment != "development" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required outside development")
	}
	return cfg, nil
}

// OAuthConfigs builds the per-provider OAuth client configurations the
// token service refreshes against.
func (c *Config) OAuthConfigs() map[domain.Provider]*oauth2.Config {
	configs := make(map[domain.Provider]*oauth2.Config)

	if c.GoogleClientID != "" && c.GoogleClientSecret != "" {
		configs[domain.ProviderGmail] = &oauth2.Config{
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			RedirectURL:  c.GoogleRedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.modify",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		}
	}

	if c.MicrosoftClientID != "" && c.MicrosoftClientSecret != "" {
		configs[domain.ProviderOutlook] = &oauth2.Config{
			ClientID:     c.MicrosoftClientID,
			ClientSecret: c.MicrosoftClientSecret,
			RedirectURL:  c.MicrosoftRedirectURL,
			Scopes: []string{
				"https://graph.microsoft.com/Mail.ReadWrite",
				"offline_access",
			},
			Endpoint: microsoft.AzureADEndpoint(c.MicrosoftTenantID),
		}
	}

	return configs
}

// IsDevelopment reports whether the engine runs in dev mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
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

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
