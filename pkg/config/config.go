package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Tracing   TracingConfig
	RateLimit RateLimitConfig
	Ledger    LedgerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	// AutoMigrate applies embedded schema migrations at startup.
	AutoMigrate bool
}

// JWTConfig holds the shared secret used to verify identity tokens.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
	// File enables a rotated JSON file sink alongside stdout when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// TracingConfig controls the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// RateLimitConfig throttles write endpoints per actor.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// LedgerConfig tunes grade and attendance writes.
type LedgerConfig struct {
	TxTimeout    time.Duration
	MaxBatchSize int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:      v.GetString("LOG_LEVEL"),
		Format:     v.GetString("LOG_FORMAT"),
		File:       v.GetString("LOG_FILE"),
		MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
	}

	cfg.Tracing = TracingConfig{
		Enabled:     v.GetBool("TRACING_ENABLED"),
		Endpoint:    v.GetString("TRACING_ENDPOINT"),
		ServiceName: v.GetString("TRACING_SERVICE_NAME"),
	}

	cfg.RateLimit = RateLimitConfig{
		Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
		Window:   parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
	}

	maxBatch := v.GetInt("MAX_BATCH_SIZE")
	if maxBatch <= 0 {
		maxBatch = 500
	}
	cfg.Ledger = LedgerConfig{
		TxTimeout:    parseDuration(v.GetString("DB_TX_TIMEOUT"), 15*time.Second),
		MaxBatchSize: maxBatch,
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "academic_records")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_ENDPOINT", "http://localhost:14268/api/traces")
	v.SetDefault("TRACING_SERVICE_NAME", "academic-records-api")

	v.SetDefault("RATE_LIMIT_REQUESTS", 60)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")

	v.SetDefault("DB_TX_TIMEOUT", "15s")
	v.SetDefault("MAX_BATCH_SIZE", 500)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
