// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string
	PGDSN    string

	// MasterKey encrypts tenant private keys at rest.
	MasterKey string
	// PlatformSecret signs admin and client tokens.
	PlatformSecret string
	Issuer         string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SessionTTL time.Duration
	KeyBits    int

	DevMode            bool
	ClientSessionCheck bool
	LogLevel           string

	LoginRate  float64
	LoginBurst int

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

var (
	ErrMissingMasterKey      = errors.New("config: AUTH_MASTER_KEY is required")
	ErrMissingPlatformSecret = errors.New("config: AUTH_PLATFORM_SECRET is required")
)

func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:               getEnv("AUTH_HTTP_ADDR", ":8080"),
		GRPCAddr:               getEnv("AUTH_GRPC_ADDR", ":9090"),
		PGDSN:                  getEnv("AUTH_PG_DSN", ""),
		MasterKey:              getEnv("AUTH_MASTER_KEY", ""),
		PlatformSecret:         getEnv("AUTH_PLATFORM_SECRET", ""),
		Issuer:                 getEnv("AUTH_ISSUER", "warden"),
		LogLevel:               getEnv("AUTH_LOG_LEVEL", "info"),
		BootstrapAdminEmail:    getEnv("AUTH_BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword: getEnv("AUTH_BOOTSTRAP_ADMIN_PASSWORD", ""),
	}

	var err error
	if cfg.AccessTTL, err = getDuration("AUTH_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = getDuration("AUTH_REFRESH_TTL", 14*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("AUTH_SESSION_TTL", 14*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.KeyBits, err = getInt("AUTH_KEY_BITS", 2048); err != nil {
		return nil, err
	}
	if cfg.DevMode, err = getBool("AUTH_DEV_MODE", false); err != nil {
		return nil, err
	}
	if cfg.ClientSessionCheck, err = getBool("AUTH_CLIENT_SESSIONS", false); err != nil {
		return nil, err
	}
	if cfg.LoginRate, err = getFloat("AUTH_LOGIN_RATE", 5); err != nil {
		return nil, err
	}
	if cfg.LoginBurst, err = getInt("AUTH_LOGIN_BURST", 10); err != nil {
		return nil, err
	}

	if cfg.MasterKey == "" {
		return nil, ErrMissingMasterKey
	}
	if cfg.PlatformSecret == "" {
		return nil, ErrMissingPlatformSecret
	}
	if cfg.KeyBits < 2048 && !cfg.DevMode {
		return nil, fmt.Errorf("config: AUTH_KEY_BITS must be at least 2048, got %d", cfg.KeyBits)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: %s: invalid duration %q", key, raw)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s: invalid integer %q", key, raw)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("config: %s: invalid number %q", key, raw)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s: invalid boolean %q", key, raw)
	}
	return b, nil
}
