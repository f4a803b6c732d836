// Package config loads environment variables and provides a typed Config used
// across the relay. It applies defaults so the binary runs locally with zero
// setup: the chat transport is anonymous and the emote providers are public,
// so no credential is required.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	// Local UI server
	ListenHost     string
	PreferredPort  int
	UIRootDir      string
	DevProxyTarget string

	// Emotes
	EmoteCacheTTL   time.Duration
	ProviderTimeout time.Duration

	// Optional Helix credentials. When set, channel identity lookups go
	// through the Helix API with an app access token instead of the public
	// IVR endpoint.
	TwitchClientID     string
	TwitchClientSecret string

	// Persisted settings document
	SettingsPath string
}

// Load reads environment variables and applies defaults. It only fails on
// values that cannot be parsed, never on missing ones.
func Load() (*Config, error) {
	cfg := &Config{
		ListenHost:      getEnv("UI_HOST", "127.0.0.1"),
		UIRootDir:       os.Getenv("UI_ROOT"),
		DevProxyTarget:  os.Getenv("UI_PROXY_TARGET"),
		EmoteCacheTTL:   5 * time.Minute,
		ProviderTimeout: 8 * time.Second,
	}

	port, err := getEnvInt("UI_PORT", 8760)
	if err != nil {
		return nil, err
	}
	cfg.PreferredPort = port

	if v := os.Getenv("EMOTE_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EMOTE_CACHE_TTL: %w", err)
		}
		cfg.EmoteCacheTTL = d
	}
	if v := os.Getenv("EMOTE_PROVIDER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EMOTE_PROVIDER_TIMEOUT: %w", err)
		}
		cfg.ProviderTimeout = d
	}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")

	cfg.SettingsPath = os.Getenv("SETTINGS_PATH")
	if cfg.SettingsPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		cfg.SettingsPath = filepath.Join(dir, "ducchat", "ducchat.settings.json")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
