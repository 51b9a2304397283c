// ABOUTME: CLI entrypoint for huddled, the retro board server.
// ABOUTME: Wires the store, event journal, room hub, Redis, and auth mode from environment config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/2389-research/huddle/hub"
	"github.com/2389-research/huddle/server"
	"github.com/2389-research/huddle/store"
)

var version = "dev"

// options holds CLI flags. Everything else comes from HUDDLE_* environment
// variables via server.ConfigFromEnv.
type options struct {
	verbose     bool
	showVersion bool
}

func main() {
	// Load .env without clobbering variables already in the environment.
	_ = godotenv.Load()

	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("huddled %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(opts))
}

// parseFlags parses command-line flags and returns populated options.
func parseFlags() options {
	var opts options

	fs := flag.NewFlagSet("huddled", flag.ContinueOnError)
	fs.BoolVar(&opts.verbose, "verbose", false, "Debug-level logging")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	return opts
}

// run assembles the server from its environment configuration and serves
// until interrupted. Returns an exit code: 0 for success, 1 for failure.
func run(opts options) int {
	log := newLogger(opts.verbose)

	cfg, err := server.ConfigFromEnv()
	if err != nil {
		log.WithError(err).Error("configuration")
		return 1
	}

	// Signal-driven shutdown context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("interrupted, shutting down")
		cancel()
	}()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("open store")
		return 1
	}
	defer st.Close()

	journal, err := store.OpenJournal(cfg.Home)
	if err != nil {
		log.WithError(err).Error("open journal")
		return 1
	}
	defer journal.Close()

	deps := server.Deps{
		Store:   st,
		Journal: journal,
		Log:     log,
	}

	// Redis backs idempotency-key dedupe and board membership. Without it
	// every board is open and retried creates may duplicate.
	authz := hub.Authorizer(hub.AllowAll{})
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Error("connect redis")
			return 1
		}
		defer rdb.Close()

		members := server.NewRedisAuthorizer(rdb)
		authz = members
		deps.Members = members
		deps.Dedupe = server.NewRedisDeduper(rdb, 0)
		log.Debug("redis connected; membership and dedupe enabled")
	}

	deps.Hub = hub.New(authz, log)
	defer deps.Hub.Close()

	auth, err := buildAuthenticator(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("configure auth")
		return 1
	}
	deps.Auth = auth

	srv := server.New(cfg, deps)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":    cfg.Bind,
		"home":    cfg.Home,
		"version": version,
	}).Info("listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("serve")
		return 1
	}

	return 0
}

// newLogger builds the process logger. Verbose mode turns on debug level.
func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// openStore selects Postgres when a database URL is configured and falls
// back to SQLite under the data directory otherwise.
func openStore(ctx context.Context, cfg *server.Config, log *logrus.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		log.WithField("backend", "postgres").Debug("opening store")
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	}

	if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	log.WithFields(logrus.Fields{"backend": "sqlite", "path": cfg.SqlitePath()}).Debug("opening store")
	return store.OpenSqlite(cfg.SqlitePath())
}

// openRedis connects to the configured Redis and verifies it is reachable.
func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// buildAuthenticator picks the auth mode: JWKS-backed JWT wins over a static
// token; otherwise the server runs open, which ConfigFromEnv restricts to
// loopback binds.
func buildAuthenticator(ctx context.Context, cfg *server.Config, log *logrus.Logger) (*server.Authenticator, error) {
	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			Ctx:               ctx,
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				log.WithError(err).Warn("jwks refresh")
			},
		})
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}
		log.WithField("mode", "jwt").Debug("auth configured")
		return server.NewJWTAuthenticator(jwks, cfg.JWTAudience, cfg.JWTIssuer), nil
	}

	if cfg.AuthToken != "" {
		log.WithField("mode", "static").Debug("auth configured")
		return server.NewStaticAuthenticator(cfg.AuthToken), nil
	}

	log.WithField("mode", "open").Debug("auth configured")
	return server.NewOpenAuthenticator(), nil
}
