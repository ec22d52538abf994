package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the gateway.
type Config struct {
	Environment string
	HTTP        HTTPConfig
	JWTSecret   []byte
	Database    DatabaseConfig
	Cache       CacheConfig
	Redis       RedisConfig
	Providers   ProvidersConfig
	Router      RouterConfig
	Billing     BillingConfig
	RateLimit   RateLimitConfig
	RequestLog  RequestLogConfig
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port            string
	OriginURL       string // allowed CORS origin
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Backend         string // "postgres" or "memory"
	URL             string
	SeedFile        string // catalog seed for the memory backend
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds catalog cache settings
type CacheConfig struct {
	CatalogCacheSize            int
	CatalogCacheTTL             time.Duration
	CatalogCacheCleanupInterval time.Duration // 0 disables the cleanup loop
}

// RedisConfig holds Redis connection settings. An empty Address disables
// every Redis-backed component.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProvidersConfig holds upstream credentials and the per-call timeout.
type ProvidersConfig struct {
	RequestTimeout time.Duration
	OpenAI         ProviderCredentials
	Anthropic      ProviderCredentials
	Google         ProviderCredentials
}

// ProviderCredentials configures one upstream backend.
type ProviderCredentials struct {
	APIKey  string
	BaseURL string
}

// Enabled reports whether credentials were supplied.
func (p ProviderCredentials) Enabled() bool {
	return p.APIKey != ""
}

// RouterConfig selects the provider selection policy.
type RouterConfig struct {
	SelectionPolicy string // "random" or "round_robin"
}

// BillingConfig selects the cost policy.
type BillingConfig struct {
	CostPolicy     string // "flat" or "mapping_rates"
	FlatMultiplier int64
}

// RateLimitConfig holds per-API-key request limits.
type RateLimitConfig struct {
	RequestsPerMinute int // 0 disables limiting
	Burst             int
}

// RequestLogConfig holds the request audit buffer settings.
type RequestLogConfig struct {
	QueueKey      string
	MaxSize       int64
	DrainInterval time.Duration // 0 disables draining into PostgreSQL
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

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
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

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

// Load reads configuration from a .env file (if present) and the environment.
// Variables already set in the environment take precedence over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := strings.ToLower(getEnvString("APP_ENV", "development"))

	backend := strings.ToLower(getEnvString("STORAGE_BACKEND", "postgres"))
	dbURL := os.Getenv("DATABASE_URL")
	if backend == "postgres" && dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if backend != "postgres" && backend != "memory" {
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", backend)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		if env != "development" {
			return nil, fmt.Errorf("JWT_SECRET is required when APP_ENV=%s", env)
		}
		jwtSecret = "development-secret"
	}

	cfg := &Config{
		Environment: env,
		HTTP: HTTPConfig{
			Port:            getEnvString("PORT", "8080"),
			OriginURL:       getEnvString("ORIGIN_URL", "*"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		JWTSecret: []byte(jwtSecret),
		Database: DatabaseConfig{
			Backend:         backend,
			URL:             dbURL,
			SeedFile:        getEnvString("SEED_FILE", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			CatalogCacheSize:            getEnvInt("CACHE_CATALOG_SIZE", 500),
			CatalogCacheTTL:             getEnvDuration("CACHE_CATALOG_TTL", 1*time.Minute),
			CatalogCacheCleanupInterval: getEnvDuration("CACHE_CATALOG_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", ""),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Providers: ProvidersConfig{
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
			OpenAI: ProviderCredentials{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: getEnvString("OPENAI_BASE_URL", ""),
			},
			Anthropic: ProviderCredentials{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				BaseURL: getEnvString("ANTHROPIC_BASE_URL", ""),
			},
			Google: ProviderCredentials{
				APIKey:  os.Getenv("GEMINI_API_KEY"),
				BaseURL: getEnvString("GEMINI_BASE_URL", ""),
			},
		},
		Router: RouterConfig{
			SelectionPolicy: strings.ToLower(getEnvString("ROUTER_SELECTION_POLICY", "random")),
		},
		Billing: BillingConfig{
			CostPolicy:     strings.ToLower(getEnvString("BILLING_COST_POLICY", "flat")),
			FlatMultiplier: getEnvInt64("BILLING_FLAT_MULTIPLIER", 2),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 0),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 10),
		},
		RequestLog: RequestLogConfig{
			QueueKey:      getEnvString("REQUEST_LOG_QUEUE_KEY", "gateway:requests"),
			MaxSize:       getEnvInt64("REQUEST_LOG_MAX_SIZE", 100_000),
			DrainInterval: getEnvDuration("REQUEST_LOG_DRAIN_INTERVAL", 5*time.Second),
		},
	}

	if !getEnvBool("CORS_ENABLED", true) {
		cfg.HTTP.OriginURL = ""
	}

	return cfg, nil
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Address != ""
}
