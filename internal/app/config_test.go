package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5432, cfg.Database.Postgres.Port)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "admin-core-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, "superuser", cfg.ACL.AdminRole)
	require.Equal(t, 6*time.Hour, cfg.ACL.AbilityTTL)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@daily", cfg.Maintenance.Schedule)
	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
}

func TestRedisClientConfigAdapter(t *testing.T) {
	cfg := CacheConfig{Redis: RedisCacheConfig{
		Address: " redis:6379 ",
		DB:      1,
		Timeout: 2 * time.Second,
	}}

	rc := cfg.RedisClientConfig()
	require.Equal(t, "redis:6379", rc.Address)
	require.Equal(t, 1, rc.DB)
	require.Equal(t, 2*time.Second, rc.Timeout)
}
