// Package app wires a workspace into a ready engine for the CLI and server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"medboard/internal/analysis"
	"medboard/internal/cache"
	"medboard/internal/config"
	"medboard/internal/db"
	"medboard/internal/engine"
	"medboard/internal/engine/auth"
	"medboard/internal/migrate"
)

// ErrNoIdentity is returned when a command needs a user email and none was
// given.
var ErrNoIdentity = errors.New("no user identity; pass --user or set MEDBOARD_USER")

// Options select the workspace and the secrets that come from the
// environment rather than medboard.yml.
type Options struct {
	Workspace    string
	GeminiAPIKey string
	// RedisURL overrides cache.redis_url from the config file.
	RedisURL string
	Logger   log.FieldLogger
}

// Env is an opened workspace.
type Env struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine

	redis *redis.Client
}

// Open loads the workspace config, opens and migrates the database and
// builds the engine. Redis and Gemini are attached only when configured.
func Open(ctx context.Context, opts Options) (*Env, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if url := strings.TrimSpace(opts.RedisURL); url != "" {
		cfg.Cache.RedisURL = url
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	env := &Env{Config: cfg, DB: conn}
	e := engine.New(conn, cfg)
	e.Log = logger

	if cfg.Cache.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.Cache.RedisURL)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		env.redis = client
		e.Cache = cache.NewRecords(e.Repo, client, cfg.CacheTTL(), logger)
		logger.WithField("ttl", cfg.CacheTTL()).Debug("record cache enabled")
	}

	if key := strings.TrimSpace(opts.GeminiAPIKey); key != "" {
		g, err := analysis.NewGemini(ctx, key, cfg.Analysis.Model, cfg.AnalysisTimeout(), logger)
		if err != nil {
			env.Close()
			return nil, err
		}
		e.Analyzer = g
		logger.WithField("model", g.Model()).Debug("document analysis enabled")
	}

	env.Engine = e
	return env, nil
}

func (env *Env) Close() error {
	var errs []error
	if env.redis != nil {
		errs = append(errs, env.redis.Close())
	}
	if env.DB != nil {
		errs = append(errs, env.DB.Close())
	}
	return errors.Join(errs...)
}

// Identity normalizes the email a command acts as.
func Identity(email string) (string, error) {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return "", ErrNoIdentity
	}
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("invalid user email %q", email)
	}
	return email, nil
}
