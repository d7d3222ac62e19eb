package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/pseudonym"
)

func mapEnv(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(mapEnv(map[string]string{"TALLY_ROSTER_FILE": "roster.yaml"}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Ledger.Backend)
	assert.Equal(t, "attendance.records", cfg.Publisher.AttendanceTopic)
	assert.Equal(t, "attendance.telemetry", cfg.Publisher.TelemetryTopic)
	assert.Equal(t, 8, cfg.Attendance.PublishConcurrency)
	assert.Equal(t, pseudonym.DevelopmentKey, cfg.Security.SecretKey)

	keys := make([]string, 0)
	for _, w := range cfg.Warnings() {
		keys = append(keys, w.Key)
	}
	assert.Contains(t, keys, "TALLY_SECRET_KEY")
	assert.Contains(t, keys, "TALLY_ADMIN_TOKEN_HASH")
	assert.Contains(t, keys, "TALLY_DEVICE_SIGNING_KEY")
}

func TestLoadProductionEmptyKeyWarns(t *testing.T) {
	cfg, err := Load(mapEnv(map[string]string{
		"TALLY_ENV":         "production",
		"TALLY_ROSTER_FILE": "roster.yaml",
	}))
	require.NoError(t, err)
	assert.Empty(t, cfg.Security.SecretKey)
	require.NotEmpty(t, cfg.Warnings())
	assert.Equal(t, "TALLY_SECRET_KEY", cfg.Warnings()[0].Key)
}

func TestLoadStrongKeyNoSecretWarning(t *testing.T) {
	cfg, err := Load(mapEnv(map[string]string{
		"TALLY_SECRET_KEY":         "0123456789abcdef0123456789abcdef",
		"TALLY_DEVICE_SIGNING_KEY": "signing",
		"TALLY_ADMIN_TOKEN_HASH":   "$2a$10$hash",
		"TALLY_LEDGER_BACKEND":     "redis",
		"TALLY_REDIS_URL":          "redis://localhost:6379/0",
		"TALLY_ROSTER_FILE":        "roster.yaml",
	}))
	require.NoError(t, err)
	assert.Empty(t, cfg.Warnings())
	assert.True(t, cfg.UsesRedis())
	assert.False(t, cfg.UsesPostgres())
}

func TestLoadKafkaBrokers(t *testing.T) {
	cfg, err := Load(mapEnv(map[string]string{
		"TALLY_PUBLISHER_BACKEND": "kafka",
		"TALLY_KAFKA_BROKERS":     "k1:9092, k2:9092,k1:9092",
		"TALLY_ROSTER_FILE":       "roster.yaml",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Publisher.KafkaBrokers)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown ledger", map[string]string{"TALLY_LEDGER_BACKEND": "etcd"}, "TALLY_LEDGER_BACKEND"},
		{"unknown publisher", map[string]string{"TALLY_PUBLISHER_BACKEND": "sqs"}, "TALLY_PUBLISHER_BACKEND"},
		{"redis without url", map[string]string{"TALLY_REVOCATION_BACKEND": "redis"}, "TALLY_REDIS_URL"},
		{"postgres without url", map[string]string{"TALLY_ROSTER_BACKEND": "postgres"}, "TALLY_POSTGRES_URL"},
		{"kafka without brokers", map[string]string{"TALLY_PUBLISHER_BACKEND": "kafka"}, "TALLY_KAFKA_BROKERS"},
		{"rabbitmq without url", map[string]string{"TALLY_PUBLISHER_BACKEND": "rabbitmq"}, "TALLY_RABBITMQ_URL"},
		{"chain without key", map[string]string{"TALLY_PUBLISHER_BACKEND": "chain", "TALLY_CHAIN_RPC_URL": "http://node"}, "TALLY_CHAIN_PRIVATE_KEY"},
		{"bad duration", map[string]string{"TALLY_PUBLISH_TIMEOUT": "soon"}, "TALLY_PUBLISH_TIMEOUT"},
		{"bad integer", map[string]string{"TALLY_PUBLISH_CONCURRENCY": "many"}, "TALLY_PUBLISH_CONCURRENCY"},
		{"zero concurrency", map[string]string{"TALLY_PUBLISH_CONCURRENCY": "0"}, "at least 1"},
		{"bad log level", map[string]string{"TALLY_LOG_LEVEL": "loud"}, "TALLY_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{"TALLY_ROSTER_FILE": "roster.yaml"}
			for k, v := range tt.env {
				env[k] = v
			}
			_, err := Load(mapEnv(env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMemoryRosterNeedsFile(t *testing.T) {
	_, err := Load(mapEnv(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TALLY_ROSTER_FILE")
}
