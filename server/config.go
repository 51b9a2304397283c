// ABOUTME: Server configuration loaded from HUDDLE_* environment variables.
// ABOUTME: Enforces security constraint: remote access requires authentication.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// ConfigError represents configuration validation errors.
var (
	ErrRemoteWithoutAuth = errors.New(
		"HUDDLE_ALLOW_REMOTE is true but neither HUDDLE_AUTH_TOKEN nor HUDDLE_JWKS_URL is set; refusing to start without authentication",
	)
	ErrNonLoopbackBind = errors.New(
		"HUDDLE_BIND is a non-loopback address but HUDDLE_ALLOW_REMOTE is not true; set HUDDLE_ALLOW_REMOTE=true and an auth mode to allow remote access",
	)
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	Home        string // Data directory (HUDDLE_HOME, default: ~/.huddled)
	Bind        string // Socket address (HUDDLE_BIND, default: 127.0.0.1:7780)
	AllowRemote bool   // Allow non-loopback connections (HUDDLE_ALLOW_REMOTE, default: false)
	AuthToken   string // Shared bearer token for API auth (HUDDLE_AUTH_TOKEN, optional)
	DatabaseURL string // Postgres URL (HUDDLE_DATABASE_URL, optional; empty selects SQLite under Home)
	RedisURL    string // Redis URL for dedupe and board membership (HUDDLE_REDIS_URL, optional)
	JWKSURL     string // JWKS endpoint enabling JWT auth (HUDDLE_JWKS_URL, optional)
	JWTAudience string // Expected JWT audience (HUDDLE_JWT_AUDIENCE, optional)
	JWTIssuer   string // Expected JWT issuer (HUDDLE_JWT_ISSUER, optional)
}

// ConfigFromEnv loads configuration from HUDDLE_* environment variables with
// sensible defaults.
func ConfigFromEnv() (*Config, error) {
	home := envOrDefault("HUDDLE_HOME", "")
	if home == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "/tmp"
		}
		home = filepath.Join(homeDir, ".huddled")
	}

	bind := envOrDefault("HUDDLE_BIND", "127.0.0.1:7780")

	allowRemote := false
	if v := os.Getenv("HUDDLE_ALLOW_REMOTE"); v == "true" || v == "1" || v == "yes" {
		allowRemote = true
	}

	cfg := &Config{
		Home:        home,
		Bind:        bind,
		AllowRemote: allowRemote,
		AuthToken:   os.Getenv("HUDDLE_AUTH_TOKEN"),
		DatabaseURL: os.Getenv("HUDDLE_DATABASE_URL"),
		RedisURL:    os.Getenv("HUDDLE_REDIS_URL"),
		JWKSURL:     os.Getenv("HUDDLE_JWKS_URL"),
		JWTAudience: os.Getenv("HUDDLE_JWT_AUDIENCE"),
		JWTIssuer:   os.Getenv("HUDDLE_JWT_ISSUER"),
	}

	// Security: remote access requires some authentication mode
	if allowRemote && cfg.AuthToken == "" && cfg.JWKSURL == "" {
		return nil, ErrRemoteWithoutAuth
	}

	// Security: refuse non-loopback binds unless explicitly opting into remote
	// access. Checks both IP literals and hostnames; only 127.0.0.0/8, ::1, and
	// "localhost" are considered safe.
	if !allowRemote {
		if host, _, err := net.SplitHostPort(bind); err == nil && host != "" {
			ip := net.ParseIP(host)
			switch {
			case ip != nil && ip.IsLoopback():
				// Safe: 127.x.x.x or ::1
			case ip != nil:
				// Non-loopback IP literal (e.g. 0.0.0.0, 192.168.x.x)
				return nil, fmt.Errorf("%w: HUDDLE_BIND=%s", ErrNonLoopbackBind, bind)
			case host == "localhost":
				// Safe: conventional loopback hostname
			default:
				// Non-localhost hostname (e.g. myhost, example.com)
				return nil, fmt.Errorf("%w: HUDDLE_BIND=%s", ErrNonLoopbackBind, bind)
			}
		}
	}

	return cfg, nil
}

// SqlitePath is where the SQLite database lives when no Postgres URL is
// configured.
func (c *Config) SqlitePath() string {
	return filepath.Join(c.Home, "huddle.db")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
