// Package config reads the storefront configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fjod/storefront/internal/repository"
)

const (
	CartStoreMongo  = "mongo"
	CartStoreMemory = "memory"
)

type Config struct {
	LogLevel string

	HTTPPort string
	GRPCPort string
	// RequestTimeout bounds one HTTP request. It has to cover a full
	// payment return, see ReconcileBudget.
	RequestTimeout time.Duration
	// StorefrontURL is where the shopper lands after the gateway returns.
	StorefrontURL string

	BackendURL       string
	BackendTimeout   time.Duration
	// SubmitTimeout bounds a direct submission once it has started, even
	// when the shopper goes away.
	SubmitTimeout    time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration

	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
	SettingsTTL   time.Duration

	CartStore   string
	MongoURI    string
	MongoDBName string

	DB *repository.Credentials

	KafkaBrokers       []string
	OutboxEventTick    time.Duration
	OutboxRecoveryTick time.Duration

	StatusAttempts      int
	StatusRetryDelay    time.Duration
	PendingRecheckDelay time.Duration
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var errs []error
	p := parser{errs: &errs}

	cfg := &Config{
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		GRPCPort:      getEnv("GRPC_PORT", "50060"),
		StorefrontURL: strings.TrimRight(getEnv("STOREFRONT_URL", "http://localhost:3000"), "/"),

		// zero means derived below
		RequestTimeout: p.duration("REQUEST_TIMEOUT", 0),

		BackendURL:       strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:5000/api"), "/"),
		BackendTimeout:   p.duration("BACKEND_TIMEOUT", 10*time.Second),
		SubmitTimeout:    p.duration("SUBMIT_TIMEOUT", 0),
		BreakerThreshold: p.int("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerTimeout:   p.duration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SessionTTL:    p.duration("SESSION_TTL", 24*time.Hour),
		SettingsTTL:   p.duration("SETTINGS_CACHE_TTL", 5*time.Minute),

		CartStore:   getEnv("CART_STORE", CartStoreMongo),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "storefront"),

		DB: &repository.Credentials{
			Driver:            getEnv("DB_DRIVER", repository.DriverSQLite),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              p.int("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "storefront"),
			SQLitePath:        getEnv("DB_PATH", "./storefront.db"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", ""),
		},

		KafkaBrokers:       list(getEnv("KAFKA_BROKERS", "")),
		OutboxEventTick:    p.duration("OUTBOX_EVENT_TICK", time.Second),
		OutboxRecoveryTick: p.duration("OUTBOX_RECOVERY_TICK", time.Minute),

		StatusAttempts:      p.int("PAYMENT_STATUS_ATTEMPTS", 3),
		StatusRetryDelay:    p.duration("PAYMENT_STATUS_RETRY_DELAY", 2*time.Second),
		PendingRecheckDelay: p.duration("PAYMENT_PENDING_RECHECK_DELAY", 3*time.Second),
	}

	if cfg.CartStore != CartStoreMongo && cfg.CartStore != CartStoreMemory {
		errs = append(errs, fmt.Errorf("CART_STORE: unknown store %q", cfg.CartStore))
	}
	if cfg.DB.Driver != repository.DriverPostgres && cfg.DB.Driver != repository.DriverSQLite {
		errs = append(errs, fmt.Errorf("DB_DRIVER: unknown driver %q", cfg.DB.Driver))
	}
	if cfg.DB.MigrationsDirPath == "" {
		// one migration set per driver
		cfg.DB.MigrationsDirPath = "./internal/repository/migrations/" + cfg.DB.Driver
	}
	if cfg.StatusAttempts < 1 {
		errs = append(errs, errors.New("PAYMENT_STATUS_ATTEMPTS must be at least 1"))
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 2 * cfg.BackendTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = cfg.ReconcileBudget() + 15*time.Second
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KafkaEnabled reports whether outbox events are relayed to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ReconcileBudget is the longest a payment return can take: two status
// polls, each with every attempt hitting the backend timeout, and the
// pending recheck delay between them.
func (c *Config) ReconcileBudget() time.Duration {
	attempts := time.Duration(c.StatusAttempts)
	poll := attempts*c.BackendTimeout + (attempts-1)*c.StatusRetryDelay
	return 2*poll + c.PendingRecheckDelay
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects conversion errors so Load reports all of them at once.
type parser struct {
	errs *[]error
}

func (p parser) int(key string, def int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (p parser) duration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func list(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
