package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"askai/internal/providers"
)

const defaultSystemPrompt = "You are a helpful assistant. Keep responses concise and relevant. " +
	"Responses should be clear and concise, not be overly detailed. At the end of the response, " +
	"don't ask the user for more questions or information, just respond accurately, in short."

// Config holds configuration for the orchestration core.
type Config struct {
	// DataDir is the private data directory (salt file lives here).
	DataDir string

	// EncryptionSeed is the operator-supplied seed the vault key is derived
	// from. Changing it invalidates all stored credentials.
	EncryptionSeed string

	// SharedKeyMode makes every request use the server-wide shared credential
	// record instead of per-user keys.
	SharedKeyMode bool

	RateLimit RateLimitConfig
	Redis     RedisConfig

	// DatabaseURL selects the PostgreSQL settings store; empty selects the
	// in-memory store.
	DatabaseURL string

	MaxMessageLength  int
	MaxResponseTokens int
	Temperature       float64
	SystemPrompt      string

	// AllowedProviders restricts which providers users may configure. Empty
	// means all.
	AllowedProviders []providers.Provider

	// RequestTimeout bounds each outbound provider call.
	RequestTimeout time.Duration
}

// RateLimitConfig holds admission control settings.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// Backend is "memory" or "redis".
	Backend string
}

// RedisConfig holds Redis connection settings for the distributed limiter.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvFloat(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return strings.ToLower(val) == "true" || val == "1"
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:        getEnvString("DATA_DIR", "./data"),
		EncryptionSeed: getEnvString("ENCRYPTION_SEED", "CHANGE-ME-use-a-long-random-string-here"),
		SharedKeyMode:  getEnvBool("SHARED_KEY_MODE", false),
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
			Backend:  getEnvString("RATE_LIMIT_BACKEND", "memory"),
		},
		Redis: RedisConfig{
			Address:  getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		DatabaseURL:       getEnvString("DATABASE_URL", ""),
		MaxMessageLength:  getEnvInt("MAX_MESSAGE_LENGTH", 2000),
		MaxResponseTokens: getEnvInt("MAX_RESPONSE_TOKENS", 1024),
		Temperature:       getEnvFloat("TEMPERATURE", 0.7),
		SystemPrompt:      getEnvString("SYSTEM_PROMPT", defaultSystemPrompt),
		RequestTimeout:    getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
	}

	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		cfg.Temperature = 0.7
	}

	cfg.AllowedProviders = parseAllowedProviders(os.Getenv("ALLOWED_PROVIDERS"))

	return cfg, nil
}

// ProviderAllowed reports whether users may configure the given provider.
func (c *Config) ProviderAllowed(p providers.Provider) bool {
	if len(c.AllowedProviders) == 0 {
		return true
	}
	for _, allowed := range c.AllowedProviders {
		if allowed == p {
			return true
		}
	}
	return false
}

// parseAllowedProviders parses a comma-separated provider id list, dropping
// ids that do not resolve. Empty input means no restriction.
func parseAllowedProviders(raw string) []providers.Provider {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var allowed []providers.Provider
	for _, id := range strings.Split(raw, ",") {
		p, err := providers.Parse(id)
		if err != nil {
			continue
		}
		allowed = append(allowed, p)
	}
	return allowed
}
