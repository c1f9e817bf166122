package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/ownspend/internal/bootstrap"
	"github.com/dvloznov/ownspend/internal/config"
	"github.com/dvloznov/ownspend/internal/gcsuploader"
	"github.com/dvloznov/ownspend/internal/logger"
	"github.com/dvloznov/ownspend/internal/pipeline"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds what the subcommands share. Fields left nil are opened from
// config on first use.
type app struct {
	configFile  string
	secretsFile string
	ownerID     string

	cfg     *config.Config
	log     zerolog.Logger
	st      store.Store
	svc     *pipeline.Service
	storage gcsuploader.StorageService
	now     func() time.Time

	closers []func()
}

func main() {
	a := &app{now: time.Now}
	defer a.close()

	if err := newRootCommand(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		a.close()
		os.Exit(1)
	}
}

// newRootCommand creates the root CLI command with all subcommands registered.
func newRootCommand(a *app) *cobra.Command {
	var configFile, secretsFile, owner string

	rootCmd := &cobra.Command{
		Use:   "ownspend",
		Short: "Operate the ownspend ingestion store",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.configFile = configFile
			a.secretsFile = secretsFile
			if owner != "" {
				a.ownerID = owner
			}
			return a.open(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (or set OWNSPEND_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&secretsFile, "secrets", "", "ejson secrets file")
	rootCmd.PersistentFlags().StringVar(&owner, "owner", "", "owner id (defaults to the only configured owner)")

	rootCmd.AddCommand(
		newIngestCommand(a),
		newReparseCommand(a),
		newReapplyCommand(a),
		newSeedCommand(a),
		newAccountsCommand(a),
		newTransactionsCommand(a),
		newEventsCommand(a),
		newBackfillCommand(a),
		newExportCommand(a),
	)

	return rootCmd
}

// open loads config and opens whatever the test harness did not inject.
func (a *app) open(ctx context.Context) error {
	if a.cfg == nil {
		cfg, err := config.Load(a.configFile, a.secretsFile)
		if err != nil {
			return err
		}
		a.cfg = cfg

		log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		a.log = log
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if a.st == nil {
		st, closeStore, err := bootstrap.OpenStore(ctx, a.cfg)
		if err != nil {
			return err
		}
		a.st = st
		a.closers = append(a.closers, func() { _ = closeStore() })
	}

	if a.svc == nil {
		mirrors, closeMirrors, err := bootstrap.OpenMirrors(ctx, a.cfg, a.st, a.log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closeMirrors)
		a.svc = pipeline.NewService(a.st, a.log, pipeline.WithMirrors(mirrors...), pipeline.WithClock(a.now))
	}

	if a.ownerID == "" {
		a.ownerID = defaultOwner(a.cfg)
	}
	return nil
}

// gcs opens the storage client lazily; only backfill and export need it.
func (a *app) gcs(ctx context.Context) (gcsuploader.StorageService, error) {
	if a.storage != nil {
		return a.storage, nil
	}
	client, err := gcsuploader.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	a.storage = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	return client, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) requireOwner() (string, error) {
	if a.ownerID == "" {
		return "", fmt.Errorf("--owner is required")
	}
	return a.ownerID, nil
}

// defaultOwner returns the owner when every configured device shares one.
func defaultOwner(cfg *config.Config) string {
	owner := ""
	for _, d := range cfg.Secrets.Devices {
		if owner != "" && d.OwnerID != owner {
			return ""
		}
		owner = d.OwnerID
	}
	return owner
}
