package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hpungsan/fern/internal/backend"
	"github.com/hpungsan/fern/internal/config"
	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/lifecycle"
	"github.com/hpungsan/fern/internal/pipeline"
)

// env holds the wired components shared by every entrypoint.
type env struct {
	database *sql.DB
	cfg      *config.Config
	logger   *slog.Logger
	client   *backend.Client
	pipeline *pipeline.Pipeline
	machine  *lifecycle.Machine
}

// newEnv wires the backend client, pipeline, and prediction session.
// Failure notices go to stderr.
func newEnv(database *sql.DB, cfg *config.Config, logger *slog.Logger) (*env, error) {
	client := backend.NewClient(cfg.Host, time.Duration(cfg.RequestTimeoutSeconds)*time.Second)

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if database != nil {
		opts = append(opts, pipeline.WithStore(db.NewStore(database)))
	}
	p, err := pipeline.New(cfg, client, opts...)
	if err != nil {
		return nil, err
	}

	m := lifecycle.New(p,
		lifecycle.WithLogger(logger),
		lifecycle.WithNotifier(lifecycle.NotifierFunc(func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		})),
	)

	return &env{
		database: database,
		cfg:      cfg,
		logger:   logger,
		client:   client,
		pipeline: p,
		machine:  m,
	}, nil
}

// Close releases the pipeline's script hook.
func (e *env) Close() error {
	return e.pipeline.Close()
}
