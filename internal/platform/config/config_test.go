package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("GO_ENV", "")
		t.Setenv("STORE_BACKEND", "")
		t.Setenv("JWT_SIGNING_KEY", "")
		t.Setenv("KAFKA_BROKERS", "")
		t.Setenv("LOG_LEVEL", "")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, BackendMemory, cfg.Store.Backend)
		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
		assert.NotEmpty(t, cfg.JWTSigningKey)
		assert.Empty(t, cfg.Kafka.Brokers)
		assert.Equal(t, "policydesk.activity", cfg.Kafka.Topic)
	})

	t.Run("parses lists and levels", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092,")
		t.Setenv("LOG_LEVEL", "debug")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	})

	t.Run("production requires a signing key", func(t *testing.T) {
		t.Setenv("GO_ENV", "production")
		t.Setenv("JWT_SIGNING_KEY", "")

		_, err := FromEnv()
		assert.ErrorContains(t, err, "JWT_SIGNING_KEY")
	})

	t.Run("store backend needs its location", func(t *testing.T) {
		t.Setenv("GO_ENV", "")
		t.Setenv("STORE_BACKEND", "postgres")
		t.Setenv("DATABASE_URL", "")

		_, err := FromEnv()
		assert.ErrorContains(t, err, "DATABASE_URL")

		t.Setenv("STORE_BACKEND", "sqlite")
		_, err = FromEnv()
		assert.ErrorContains(t, err, "sqlite")
	})
}
