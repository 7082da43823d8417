package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("AUTH_MASTER_KEY", "master")
	t.Setenv("AUTH_PLATFORM_SECRET", "platform-secret-platform-secret-!")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	for _, key := range []string{
		"AUTH_HTTP_ADDR", "AUTH_GRPC_ADDR", "AUTH_PG_DSN", "AUTH_ISSUER", "AUTH_ACCESS_TTL",
		"AUTH_REFRESH_TTL", "AUTH_SESSION_TTL", "AUTH_KEY_BITS", "AUTH_DEV_MODE",
		"AUTH_CLIENT_SESSIONS", "AUTH_LOG_LEVEL", "AUTH_LOGIN_RATE", "AUTH_LOGIN_BURST",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, "", cfg.PGDSN)
	assert.Equal(t, "warden", cfg.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 2048, cfg.KeyBits)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5.0, cfg.LoginRate)
	assert.Equal(t, 10, cfg.LoginBurst)
}

func TestLoad_AllEnvVars(t *testing.T) {
	setRequired(t)
	t.Setenv("AUTH_HTTP_ADDR", ":7070")
	t.Setenv("AUTH_PG_DSN", "postgres://localhost/warden")
	t.Setenv("AUTH_ACCESS_TTL", "5m")
	t.Setenv("AUTH_SESSION_TTL", "24h")
	t.Setenv("AUTH_KEY_BITS", "4096")
	t.Setenv("AUTH_DEV_MODE", "true")
	t.Setenv("AUTH_CLIENT_SESSIONS", "1")
	t.Setenv("AUTH_LOGIN_RATE", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "postgres://localhost/warden", cfg.PGDSN)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 4096, cfg.KeyBits)
	assert.True(t, cfg.DevMode)
	assert.True(t, cfg.ClientSessionCheck)
	assert.Equal(t, 0.5, cfg.LoginRate)
}

func TestLoad_MissingSecrets(t *testing.T) {
	t.Setenv("AUTH_MASTER_KEY", "")
	t.Setenv("AUTH_PLATFORM_SECRET", "x")
	_, err := Load()
	require.ErrorIs(t, err, ErrMissingMasterKey)

	t.Setenv("AUTH_MASTER_KEY", "m")
	t.Setenv("AUTH_PLATFORM_SECRET", "")
	_, err = Load()
	require.ErrorIs(t, err, ErrMissingPlatformSecret)
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("AUTH_ACCESS_TTL", "soon")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("AUTH_ACCESS_TTL", "")
	t.Setenv("AUTH_DEV_MODE", "")
	t.Setenv("AUTH_KEY_BITS", "1024")
	_, err = Load()
	require.Error(t, err)
}
