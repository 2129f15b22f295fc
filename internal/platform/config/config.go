package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pstrings "policydesk/pkg/platform/strings"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	JWTSigningKey   string
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Store           StoreConfig
	Redis           RedisConfig
	Kafka           KafkaConfig
}

// StoreConfig selects and locates the policy store.
type StoreConfig struct {
	Backend       string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
}

// RedisConfig locates the shared serial-number counter. Empty URL keeps the
// in-process allocator.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig locates the activity event stream. No brokers disables it.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	Partitions int32
	QueueSize  int
}

// IsProduction reports whether the server runs with production settings.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// LoadDotEnv reads .env outside production. A missing file is not an error.
func LoadDotEnv() error {
	env := os.Getenv("GO_ENV")
	if env != "" && env != "development" && env != "test" {
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:            getEnv("POLICYDESK_ADDR", ":8080"),
		Environment:     getEnv("GO_ENV", "development"),
		JWTSigningKey:   os.Getenv("JWT_SIGNING_KEY"),
		ShutdownTimeout: 15 * time.Second,
		Store: StoreConfig{
			Backend:       strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			DatabaseURL:   os.Getenv("DATABASE_URL"),
			MongoURI:      os.Getenv("MONGODB_URI"),
			MongoDatabase: getEnv("MONGODB_DATABASE", "policydesk"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    pstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			Topic:      getEnv("KAFKA_ACTIVITY_TOPIC", "policydesk.activity"),
			Partitions: 3,
			QueueSize:  1024,
		},
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Server{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Server{}, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if v := os.Getenv("KAFKA_PARTITIONS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return Server{}, fmt.Errorf("KAFKA_PARTITIONS must be a positive integer")
		}
		cfg.Kafka.Partitions = int32(n)
	}

	if cfg.JWTSigningKey == "" {
		if cfg.IsProduction() {
			return Server{}, errors.New("JWT_SIGNING_KEY is required in production")
		}
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.Store.DatabaseURL == "" {
			return Server{}, errors.New("DATABASE_URL is required for the postgres store")
		}
	case BackendMongo:
		if cfg.Store.MongoURI == "" {
			return Server{}, errors.New("MONGODB_URI is required for the mongo store")
		}
	default:
		return Server{}, fmt.Errorf("STORE_BACKEND %q is not one of memory, postgres, mongo", cfg.Store.Backend)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
