package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string

	LogLevel  string
	LogFormat string

	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      []byte // optional: verify bearer tokens locally
	DatabaseURL            string // optional: talk to Postgres directly instead of REST

	PistonURL       string
	ExecutorTimeout time.Duration
	StoreTimeout    time.Duration
	AuthTimeout     time.Duration

	BootstrapAdminEmails []string
	CORSAllowedOrigins   []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitRunPerMinute    int
	RateLimitSubmitPerMinute int

	PersistenceRetryQueue       string
	PersistenceRetryMaxAttempts int
	PersistenceLockTTL          time.Duration
}

var AppConfig *Config

var ErrMissingStoreConfig = errors.New("SUPABASE_URL, SUPABASE_ANON_KEY and SUPABASE_SERVICE_ROLE_KEY must all be set")

// Load reads .env (if present) and the process environment into AppConfig.
// It fails when any of the external store settings is missing.
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		APIPort:                getEnv("API_PORT", "8080"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
		SupabaseURL:            strings.TrimRight(strings.TrimSpace(getEnv("SUPABASE_URL", "")), "/"),
		SupabaseAnonKey:        strings.TrimSpace(getEnv("SUPABASE_ANON_KEY", "")),
		SupabaseServiceRoleKey: strings.TrimSpace(getEnv("SUPABASE_SERVICE_ROLE_KEY", "")),
		SupabaseJWTSecret:      []byte(getEnv("SUPABASE_JWT_SECRET", "")),
		DatabaseURL:            getEnv("DATABASE_URL", ""),

		PistonURL:       getEnv("PISTON_URL", "https://emkc.org/api/v2/piston/execute"),
		ExecutorTimeout: time.Duration(getEnvAsInt("EXECUTOR_TIMEOUT_SECONDS", 30)) * time.Second,
		StoreTimeout:    time.Duration(getEnvAsInt("STORE_TIMEOUT_SECONDS", 30)) * time.Second,
		AuthTimeout:     time.Duration(getEnvAsInt("AUTH_TIMEOUT_SECONDS", 10)) * time.Second,

		BootstrapAdminEmails: getEnvAsList("BOOTSTRAP_ADMIN_EMAILS"),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		RateLimitRunPerMinute:    getEnvAsInt("RATE_LIMIT_RUN_PER_MINUTE", 30),
		RateLimitSubmitPerMinute: getEnvAsInt("RATE_LIMIT_SUBMIT_PER_MINUTE", 10),

		PersistenceRetryQueue:       getEnv("PERSISTENCE_RETRY_QUEUE", "persistence_retry_queue"),
		PersistenceRetryMaxAttempts: getEnvAsInt("PERSISTENCE_RETRY_MAX_ATTEMPTS", 5),
		PersistenceLockTTL:          time.Duration(getEnvAsInt("PERSISTENCE_LOCK_TTL_SECONDS", 30)) * time.Second,
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" || cfg.SupabaseServiceRoleKey == "" {
		return nil, ErrMissingStoreConfig
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	return cfg, nil
}

// IsBootstrapAdmin reports whether email is on the deployment's admin allowlist.
func (c *Config) IsBootstrapAdmin(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, e := range c.BootstrapAdminEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
