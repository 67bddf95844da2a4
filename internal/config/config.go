// Package config resolves client settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultBaseURL        = "http://localhost:8000/api/v1"
	DefaultTimeout        = 30 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
	DefaultCacheTTL       = time.Minute
)

// Config holds everything needed to talk to the reminder backend
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RefreshTimeout time.Duration
	StatePath      string
	CacheTTL       time.Duration
}

// Getenv is the environment lookup used by Load. Tests swap it out.
type Getenv func(key string) string

// Load reads the CALLME_* variables, applying defaults for anything unset
func Load(getenv Getenv) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Config{
		BaseURL:        DefaultBaseURL,
		Timeout:        DefaultTimeout,
		RefreshTimeout: DefaultRefreshTimeout,
		StatePath:      DefaultStatePath(getenv),
		CacheTTL:       DefaultCacheTTL,
	}

	if v := getenv("CALLME_API_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := getenv("CALLME_STATE_PATH"); v != "" {
		cfg.StatePath = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CALLME_TIMEOUT", &cfg.Timeout},
		{"CALLME_REFRESH_TIMEOUT", &cfg.RefreshTimeout},
		{"CALLME_CACHE_TTL", &cfg.CacheTTL},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", d.key, v, err)
		}
		*d.dst = parsed
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside a request
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base url %q: scheme must be http or https", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh timeout must be positive, got %s", c.RefreshTimeout)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must not be negative, got %s", c.CacheTTL)
	}
	return nil
}

// NormalizedBaseURL returns BaseURL without a trailing slash
func (c Config) NormalizedBaseURL() string {
	return strings.TrimRight(c.BaseURL, "/")
}
