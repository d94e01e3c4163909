package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "postgres", cfg.CartBackend)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 8, cfg.ReconcilerWorkers)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("CART_BACKEND", "mongo")
	t.Setenv("REQUEST_TIMEOUT", "750ms")
	t.Setenv("RECONCILER_WORKERS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "mongo", cfg.CartBackend)
	assert.Equal(t, 750*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, 1, cfg.ReconcilerWorkers)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV("a, b,,"))
	assert.Empty(t, splitCSV(""))
}
