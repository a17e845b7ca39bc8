package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "api.hometracker", cfg.Token.Issuer)
	assert.Equal(t, "hometracker.app", cfg.Token.Audience)
	assert.Equal(t, 24*time.Hour, cfg.Token.TTL)
	assert.Empty(t, cfg.Token.Secret)
	assert.Equal(t, 10000, cfg.Hash.Iterations)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, LockoutConfig{Attempts: 5, Window: 15 * time.Minute, Block: 30 * time.Minute}, cfg.AuthLockout)
	assert.False(t, cfg.CSRFEnabled)
	assert.Zero(t, cfg.Token.Leeway)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hometracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
redis_addr: "redis:6379"
token:
  secret: from-file
  ttl: 2h
hash:
  iterations: 20000
allowed_origins: ["https://app.example"]
auth_lockout:
  attempts: 3
  window: 10m
  block: 1h
`), 0o600))

	cfg, err := Load(envMap(map[string]string{
		"HOMETRACKER_CONFIG":          path,
		"HOMETRACKER_HTTP_ADDR":       ":9100",
		"HOMETRACKER_ALLOWED_ORIGINS": "https://a.example, https://b.example ,",
		"HOMETRACKER_CSRF_ENABLED":    "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.HTTPAddr, "env overrides file")
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "from-file", cfg.Token.Secret)
	assert.Equal(t, 2*time.Hour, cfg.Token.TTL)
	assert.Equal(t, 20000, cfg.Hash.Iterations)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.AuthLockout.Attempts)
	assert.Equal(t, time.Hour, cfg.AuthLockout.Block)
	assert.True(t, cfg.CSRFEnabled)
	assert.Equal(t, "api.hometracker", cfg.Token.Issuer, "unset keys keep defaults")
}

func TestLoadSecretPrecedence(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{"JWT_SECRET": " plain "}))
	require.NoError(t, err)
	assert.Equal(t, "plain", cfg.Token.Secret)

	cfg, err = Load(envMap(map[string]string{
		"JWT_SECRET":             "plain",
		"HOMETRACKER_JWT_SECRET": "prefixed",
	}))
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Token.Secret)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad int":       {"HOMETRACKER_HASH_ITERATIONS": "many"},
		"bad duration":  {"HOMETRACKER_TOKEN_TTL": "forever"},
		"zero ttl":      {"HOMETRACKER_TOKEN_TTL": "0s"},
		"bad bool":      {"HOMETRACKER_CSRF_ENABLED": "maybe"},
		"missing file":  {"HOMETRACKER_CONFIG": "/nonexistent/hometracker.yaml"},
		"no iterations": {"HOMETRACKER_HASH_ITERATIONS": "0"},
		"role cap":      {"HOMETRACKER_MAX_REGISTRATION_ROLE": "0"},
		"bad proxy":     {"HOMETRACKER_TRUSTED_PROXIES": "10.0.0.0/8,not-an-ip"},
		"neg leeway":    {"HOMETRACKER_TOKEN_LEEWAY": "-1s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(envMap(env))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: [unterminated"), 0o600))
	_, err := Load(envMap(map[string]string{"HOMETRACKER_CONFIG": path}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestTrustedProxyPrefixes(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"HOMETRACKER_TRUSTED_PROXIES": "10.0.0.0/8, 192.168.1.7 ,::1",
	}))
	require.NoError(t, err)

	prefixes, err := cfg.TrustedProxyPrefixes()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("::1/128"),
	}, prefixes)
}
