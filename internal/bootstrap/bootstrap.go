// Package bootstrap builds the configured store, mirrors and job queue for
// the binaries under cmd/.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/ownspend/internal/config"
	infraBQ "github.com/dvloznov/ownspend/internal/infra/bigquery"
	"github.com/dvloznov/ownspend/internal/jobs"
	"github.com/dvloznov/ownspend/internal/jobs/inmemory"
	"github.com/dvloznov/ownspend/internal/notionsync"
	"github.com/dvloznov/ownspend/internal/pipeline"
	"github.com/dvloznov/ownspend/internal/store"
	storemem "github.com/dvloznov/ownspend/internal/store/inmemory"
	"github.com/dvloznov/ownspend/internal/store/postgres"
	"github.com/rs/zerolog"
)

// ErrMissingSetting is returned when an enabled component lacks a required value.
var ErrMissingSetting = errors.New("missing setting")

// OpenStore opens the store named by database.driver. The returned func
// releases it.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, func() error, error) {
	switch cfg.Database.Driver {
	case "memory":
		return storemem.NewStore(), func() error { return nil }, nil
	case "postgres":
		if cfg.Secrets.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("OpenStore: databaseUrl: %w", ErrMissingSetting)
		}
		db, err := postgres.Open(ctx, cfg.Secrets.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenStore: %w", err)
		}
		return postgres.New(db), db.Close, nil
	}
	return nil, nil, fmt.Errorf("OpenStore: unknown driver %q", cfg.Database.Driver)
}

// OpenMirrors builds the enabled post-commit mirrors. The returned func closes
// any clients they hold.
func OpenMirrors(ctx context.Context, cfg *config.Config, lookup notionsync.NameLookup, log zerolog.Logger) ([]pipeline.Mirror, func(), error) {
	var (
		mirrors []pipeline.Mirror
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("Failed to close mirror client")
			}
		}
	}

	if cfg.Notion.Enabled {
		if cfg.Secrets.NotionToken == "" || cfg.Notion.DatabaseID == "" {
			return nil, nil, fmt.Errorf("OpenMirrors: notion token and databaseId: %w", ErrMissingSetting)
		}
		client := notionsync.NewClient(cfg.Secrets.NotionToken)
		mirrors = append(mirrors, notionsync.NewMirror(client, cfg.Notion.DatabaseID, lookup))
		log.Info().Str("database_id", cfg.Notion.DatabaseID).Msg("Notion mirror enabled")
	}

	if cfg.BigQuery.Enabled {
		if cfg.BigQuery.ProjectID == "" {
			closeAll()
			return nil, nil, fmt.Errorf("OpenMirrors: bigquery projectId: %w", ErrMissingSetting)
		}
		bq, err := infraBQ.NewMirror(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("OpenMirrors: %w", err)
		}
		closers = append(closers, bq.Close)
		mirrors = append(mirrors, bq)
		log.Info().
			Str("project_id", cfg.BigQuery.ProjectID).
			Str("dataset", cfg.BigQuery.Dataset).
			Str("table", cfg.BigQuery.Table).
			Msg("BigQuery mirror enabled")
	}

	return mirrors, closeAll, nil
}

// NewQueue builds the in-process job queue sized from the worker settings.
func NewQueue(cfg *config.Config, jobStore jobs.JobStore) *inmemory.Queue {
	return inmemory.NewQueue(cfg.Worker.QueueSize, jobStore,
		inmemory.WithWorkers(cfg.Worker.Workers),
		inmemory.WithMaxRetries(cfg.Worker.MaxRetries),
	)
}
