package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BANKER_ID", "UBANKER")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "3001", cfg.AppPort)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, "ledger_entries", cfg.KafkaTopic)
	// defaults lack secrets
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("MAX_RETRIES", "7")
	t.Setenv("BASE_BACKOFF", "5ms")
	t.Setenv("MAX_BACKOFF", "1s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("IS_PROD", "true")
	t.Setenv("DB_MAX_OPEN_CONNS", "4")
	t.Setenv("DB_CONN_MAX_LIFETIME", "1m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 5*time.Millisecond, cfg.Retry.BaseBackoff)
	assert.Equal(t, time.Second, cfg.Retry.MaxBackoff)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaAddrs)
	assert.True(t, cfg.IsProd)
	assert.Equal(t, 4, cfg.DBPool.MaxOpenConns)
	assert.Equal(t, 5, cfg.DBPool.MaxIdleConns)
	assert.Equal(t, time.Minute, cfg.DBPool.ConnMaxLifetime)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
app_port: "9000"
db_driver: sqlite
sqlite_path: /tmp/ledger.db
retry:
  max_retries: 9
  base_backoff: 2ms
  max_backoff: 100ms
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_RETRIES", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.AppPort)
	assert.Equal(t, "/tmp/ledger.db", cfg.SQLitePath)
	assert.Equal(t, 3, cfg.Retry.MaxRetries) // env wins
	assert.Equal(t, 2*time.Millisecond, cfg.Retry.BaseBackoff)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.MaxBackoff)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad retries", "MAX_RETRIES", "many"},
		{"bad pool size", "DB_MAX_OPEN_CONNS", "lots"},
		{"bad duration", "BASE_BACKOFF", "soon"},
		{"bad driver", "DB_DRIVER", "postgres"},
		{"zero retries", "MAX_RETRIES", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "3306", DBName: "bank"}
	assert.Equal(t, "u:p@tcp(h:3306)/bank?parseTime=true", cfg.DSN())
}
