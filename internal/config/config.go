// Package config assembles service settings from defaults, an optional YAML
// file and HOMETRACKER_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "HOMETRACKER_"

// Config is the full set of process settings.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	LogLevel string `yaml:"log_level"`

	PGDSN         string `yaml:"pg_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	Token TokenConfig `yaml:"token"`
	Hash  HashConfig  `yaml:"hash"`

	AllowedOrigins      []string      `yaml:"allowed_origins"`
	TrustedProxies      []string      `yaml:"trusted_proxies"`
	MaxBodyBytes        int64         `yaml:"max_body_bytes"`
	CSRFEnabled         bool          `yaml:"csrf_enabled"`
	MaxRegistrationRole int           `yaml:"max_registration_role"`
	RateLimit           WindowConfig  `yaml:"rate_limit"`
	AuthLockout         LockoutConfig `yaml:"auth_lockout"`
}

// TokenConfig holds the signing settings. An empty Secret makes the process
// generate one at startup.
type TokenConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	TTL      time.Duration `yaml:"ttl"`
	Leeway   time.Duration `yaml:"leeway"`
}

type HashConfig struct {
	Iterations  int `yaml:"iterations"`
	Concurrency int `yaml:"concurrency"`
}

// WindowConfig allows Requests per Window.
type WindowConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// LockoutConfig blocks a client for Block after Attempts within Window.
type LockoutConfig struct {
	Attempts int           `yaml:"attempts"`
	Window   time.Duration `yaml:"window"`
	Block    time.Duration `yaml:"block"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		LogLevel: "info",
		Token: TokenConfig{
			Issuer:   "api.hometracker",
			Audience: "hometracker.app",
			TTL:      24 * time.Hour,
		},
		Hash: HashConfig{
			Iterations: 10000,
		},
		AllowedOrigins:      []string{"http://localhost:3000"},
		MaxBodyBytes:        1 << 20,
		MaxRegistrationRole: 2,
		RateLimit: WindowConfig{
			Requests: 100,
			Window:   15 * time.Minute,
		},
		AuthLockout: LockoutConfig{
			Attempts: 5,
			Window:   15 * time.Minute,
			Block:    30 * time.Minute,
		},
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// Load builds the configuration. lookup is usually os.LookupEnv.
func Load(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Default()

	if path, ok := lookup(envPrefix + "CONFIG"); ok && strings.TrimSpace(path) != "" {
		if err := cfg.mergeFile(strings.TrimSpace(path)); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv(lookup LookupFunc) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := get(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("GRPC_ADDR", &c.GRPCAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("PG_DSN", &c.PGDSN)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	integer("REDIS_DB", &c.RedisDB)

	if v, ok := lookup("JWT_SECRET"); ok {
		c.Token.Secret = strings.TrimSpace(v)
	}
	str("JWT_SECRET", &c.Token.Secret)
	str("JWT_ISSUER", &c.Token.Issuer)
	str("JWT_AUDIENCE", &c.Token.Audience)
	duration("TOKEN_TTL", &c.Token.TTL)
	duration("TOKEN_LEEWAY", &c.Token.Leeway)

	integer("HASH_ITERATIONS", &c.Hash.Iterations)
	integer("HASH_CONCURRENCY", &c.Hash.Concurrency)

	if v, ok := get("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	if v, ok := get("TRUSTED_PROXIES"); ok {
		c.TrustedProxies = splitList(v)
	}
	if v, ok := get("MAX_BODY_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %sMAX_BODY_BYTES: %w", envPrefix, err))
		} else {
			c.MaxBodyBytes = n
		}
	}
	if v, ok := get("CSRF_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %sCSRF_ENABLED: %w", envPrefix, err))
		} else {
			c.CSRFEnabled = b
		}
	}
	integer("MAX_REGISTRATION_ROLE", &c.MaxRegistrationRole)
	integer("RATE_LIMIT_REQUESTS", &c.RateLimit.Requests)
	duration("RATE_LIMIT_WINDOW", &c.RateLimit.Window)
	integer("AUTH_LOCKOUT_ATTEMPTS", &c.AuthLockout.Attempts)
	duration("AUTH_LOCKOUT_WINDOW", &c.AuthLockout.Window)
	duration("AUTH_LOCKOUT_BLOCK", &c.AuthLockout.Block)

	return errors.Join(errs...)
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("config: http_addr is required"))
	}
	if c.Token.TTL <= 0 {
		errs = append(errs, errors.New("config: token.ttl must be positive"))
	}
	if c.Token.Leeway < 0 {
		errs = append(errs, errors.New("config: token.leeway cannot be negative"))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if c.Hash.Iterations < 1 {
		errs = append(errs, errors.New("config: hash.iterations must be positive"))
	}
	if c.Hash.Concurrency < 0 {
		errs = append(errs, errors.New("config: hash.concurrency cannot be negative"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("config: max_body_bytes must be positive"))
	}
	if c.MaxRegistrationRole < 1 {
		errs = append(errs, errors.New("config: max_registration_role must be at least 1"))
	}
	if c.RateLimit.Requests < 0 || (c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("config: rate_limit needs a positive window"))
	}
	if c.AuthLockout.Attempts < 0 || (c.AuthLockout.Attempts > 0 && (c.AuthLockout.Window <= 0 || c.AuthLockout.Block <= 0)) {
		errs = append(errs, errors.New("config: auth_lockout needs positive window and block"))
	}
	return errors.Join(errs...)
}

// TrustedProxyPrefixes parses TrustedProxies. Bare addresses become
// single-host prefixes.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("config: trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("config: trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
