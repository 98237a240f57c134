package config

import (
	"os"
	"strconv"
	"time"

	"encore/internal/cache"
	"encore/internal/database"
	"encore/internal/external"
	"encore/internal/messaging"
	"encore/internal/search"
)

// Config holds the full application configuration, loaded from environment
// variables with local-development defaults.
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// Outbox dispatcher tuning.
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	// Orders stuck in CREATED longer than this are canceled and their
	// holds released.
	HoldTTL time.Duration

	Database      database.Config
	NATS          messaging.Config
	Redis         cache.Config
	Elasticsearch search.Config
	Catalog       external.CatalogConfig
	Provider      external.ProviderConfig
	Email         external.EmailConfig
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		OutboxPollInterval: time.Duration(getEnvInt("OUTBOX_POLL_INTERVAL_MS", 500)) * time.Millisecond,
		OutboxBatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 64),
		OutboxMaxAttempts:  getEnvInt("OUTBOX_MAX_ATTEMPTS", 10),

		HoldTTL: time.Duration(getEnvInt("HOLD_TTL_MIN", 15)) * time.Minute,

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "encore"),
			Password:           getEnv("DB_PASSWORD", "encore123"),
			DBName:             getEnv("DB_NAME", "encore"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "encore"),
			ClientID:  getEnv("NATS_CLIENT_ID", "encore-api"),
		},

		Redis: cache.Config{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			TTL:      time.Duration(getEnvInt("REDIS_TTL_SEC", 5)) * time.Second,
		},

		Elasticsearch: search.Config{
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:      getEnv("ELASTICSEARCH_INDEX", "tickets"),
			MaxRetries: getEnvInt("ELASTICSEARCH_MAX_RETRIES", 3),
		},

		Catalog: external.CatalogConfig{
			BaseURL: getEnv("CATALOG_SERVICE_URL", "http://localhost:8082"),
			Timeout: time.Duration(getEnvInt("CATALOG_TIMEOUT_SEC", 30)) * time.Second,
		},

		Provider: external.ProviderConfig{
			BaseURL:    getEnv("PROVIDER_GATEWAY_URL", "http://localhost:8083"),
			MerchantID: getEnv("PROVIDER_MERCHANT_ID", ""),
			Secret:     getEnv("PROVIDER_SECRET", ""),
			Timeout:    time.Duration(getEnvInt("PROVIDER_TIMEOUT_SEC", 30)) * time.Second,
		},

		Email: external.EmailConfig{
			BaseURL: getEnv("EMAIL_SERVICE_URL", "http://localhost:8084"),
			Timeout: time.Duration(getEnvInt("EMAIL_TIMEOUT_SEC", 10)) * time.Second,
		},
	}
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
