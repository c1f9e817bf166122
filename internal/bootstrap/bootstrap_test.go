package bootstrap

import (
	"context"
	"io"
	"testing"

	"github.com/dvloznov/ownspend/internal/config"
	"github.com/dvloznov/ownspend/internal/jobs"
	"github.com/dvloznov/ownspend/internal/jobs/inmemory"
	storemem "github.com/dvloznov/ownspend/internal/store/inmemory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Driver = "memory"
	return &cfg
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, closeStore, err := OpenStore(ctx, testConfig())
	require.NoError(t, err)
	assert.IsType(t, &storemem.Store{}, st)
	assert.NoError(t, closeStore())

	cfg := testConfig()
	cfg.Database.Driver = "postgres"
	_, _, err = OpenStore(ctx, cfg)
	assert.ErrorIs(t, err, ErrMissingSetting)

	cfg.Database.Driver = "sqlite"
	_, _, err = OpenStore(ctx, cfg)
	assert.Error(t, err)
}

func TestOpenMirrors(t *testing.T) {
	ctx := context.Background()
	log := zerolog.New(io.Discard)
	lookup := storemem.NewStore()

	t.Run("none enabled", func(t *testing.T) {
		mirrors, closeAll, err := OpenMirrors(ctx, testConfig(), lookup, log)
		require.NoError(t, err)
		assert.Empty(t, mirrors)
		closeAll()
	})

	t.Run("notion", func(t *testing.T) {
		cfg := testConfig()
		cfg.Notion.Enabled = true
		cfg.Notion.DatabaseID = "db-1"
		cfg.Secrets.NotionToken = "secret_x"

		mirrors, closeAll, err := OpenMirrors(ctx, cfg, lookup, log)
		require.NoError(t, err)
		defer closeAll()
		require.Len(t, mirrors, 1)
		assert.Equal(t, "notion", mirrors[0].Name())
	})

	t.Run("notion without token", func(t *testing.T) {
		cfg := testConfig()
		cfg.Notion.Enabled = true
		cfg.Notion.DatabaseID = "db-1"

		_, _, err := OpenMirrors(ctx, cfg, lookup, log)
		assert.ErrorIs(t, err, ErrMissingSetting)
	})

	t.Run("bigquery without project", func(t *testing.T) {
		cfg := testConfig()
		cfg.BigQuery.Enabled = true

		_, _, err := OpenMirrors(ctx, cfg, lookup, log)
		assert.ErrorIs(t, err, ErrMissingSetting)
	})
}

func TestNewQueue_UsesWorkerSettings(t *testing.T) {
	cfg := testConfig()
	cfg.Worker.MaxRetries = 7

	jobStore := inmemory.NewStore()
	q := NewQueue(cfg, jobStore)
	defer q.Close()

	job := &jobs.IngestEventJob{OwnerID: "owner-1", RawText: "x"}
	require.NoError(t, q.PublishIngestEvent(context.Background(), job))
	assert.Equal(t, 7, job.MaxRetries)

	saved, err := jobStore.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, saved.Status)
}
