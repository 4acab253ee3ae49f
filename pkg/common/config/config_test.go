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
	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.ServerPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.KafkaEnabled())
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "patients-events-tail", cfg.KafkaGroupID)
}

func TestLoadWithFileEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server_port: "9100"
postgres_db: clinic
redis_host: cache.internal
custom_field_cache_ttl: 90s
kafka_topic: patient-events
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("SERVER_PORT", "9200")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("KAFKA_GROUP_ID", "audit-tail")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9200", cfg.ServerPort)
	assert.Equal(t, "clinic", cfg.PostgresDB)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 90*time.Second, cfg.CustomFieldCacheTTL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "audit-tail", cfg.KafkaGroupID)
	assert.Contains(t, cfg.PostgresDSN(), "dbname=clinic")
}

func TestLoadWithFileMissing(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("READ_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_RPS", "many")
	t.Setenv("AUTO_MIGRATE", "false")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 50, cfg.RateLimitRPS)
	assert.False(t, cfg.AutoMigrate)
}
