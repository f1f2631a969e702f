package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ORDER_STORE_URL", "http://store.local/api")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://store.local/api", cfg.Store.FilesURL)
	assert.Equal(t, 10*time.Second, cfg.Lifecycle.IntentTimeout)
	assert.Equal(t, "@every 1m", cfg.Lifecycle.ResyncSchedule)
	assert.True(t, cfg.Lifecycle.JournalEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Contains(t, cfg.GetDBConnString(), "dbname=orderdesk")
}

func TestLoadRequiresStoreURL(t *testing.T) {
	t.Setenv("ORDER_STORE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("ORDER_STORE_URL", "http://store.local")
	t.Setenv("INTENT_TIMEOUT", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "INTENT_TIMEOUT")
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"ORDER_STORE_URL=http://from-file\nKAFKA_BROKERS=k1:9092, k2:9092\nPORT=9000\n",
	), 0o600))

	t.Setenv("PORT", "7000")
	t.Setenv("ORDER_STORE_URL", "http://from-env")
	// Values loaded from the file persist in the process; register them for cleanup.
	t.Setenv("KAFKA_BROKERS", "")
	require.NoError(t, os.Unsetenv("KAFKA_BROKERS"))

	cfg, err := Load(envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "http://from-env", cfg.Store.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}
