// Package config resolves runtime settings from the environment
// (normalized once). It intentionally contains only values, no clients.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPTimeout      = 10 * time.Second
	defaultPollInterval     = time.Minute
	defaultCartStaleAfter   = time.Minute
	defaultSuppressionDelay = time.Second
)

// Settings are the env-resolved knobs for the engines and clients.
type Settings struct {
	// APIBaseURL is the storefront server base URL, trailing slash removed.
	APIBaseURL string

	// CartStorePath is the profile-scoped sqlite file holding the guest cart.
	CartStorePath string

	HTTPTimeout time.Duration

	// PollInterval is the notification feed refresh cadence.
	PollInterval time.Duration

	// CartStaleAfter is the remote cart freshness window.
	CartStaleAfter time.Duration

	// SuppressionDelay is the cooldown after a dialog dismissal before
	// auto-presentation may resume.
	SuppressionDelay time.Duration
}

// Load resolves settings from the environment. A .env file in the working
// directory is applied first when present; real environment wins.
func Load() (Settings, error) {
	// Missing .env is the common case, not an error.
	_ = godotenv.Load()

	s := Settings{
		APIBaseURL:       normalizeBaseURL(getenvTrim("STOREFRONT_API_URL")),
		CartStorePath:    getenvTrim("STOREFRONT_CART_DB"),
		HTTPTimeout:      defaultHTTPTimeout,
		PollInterval:     defaultPollInterval,
		CartStaleAfter:   defaultCartStaleAfter,
		SuppressionDelay: defaultSuppressionDelay,
	}

	if s.APIBaseURL == "" {
		return Settings{}, fmt.Errorf("STOREFRONT_API_URL is not set")
	}

	if s.CartStorePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Settings{}, fmt.Errorf("os.UserConfigDir: %w", err)
		}
		s.CartStorePath = filepath.Join(dir, "storefront", "cart.db")
	}

	for _, override := range []struct {
		env string
		dst *time.Duration
	}{
		{"STOREFRONT_HTTP_TIMEOUT", &s.HTTPTimeout},
		{"STOREFRONT_POLL_INTERVAL", &s.PollInterval},
		{"STOREFRONT_CART_STALE_AFTER", &s.CartStaleAfter},
		{"STOREFRONT_SUPPRESSION_DELAY", &s.SuppressionDelay},
	} {
		raw := getenvTrim(override.env)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("%s[%s] is not a duration: %w", override.env, raw, err)
		}
		if d <= 0 {
			return Settings{}, fmt.Errorf("%s must be positive, got %s", override.env, d)
		}
		*override.dst = d
	}

	return s, nil
}

func getenvTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func normalizeBaseURL(raw string) string {
	return strings.TrimRight(raw, "/")
}
