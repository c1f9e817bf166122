package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/dvloznov/ownspend/internal/bootstrap"
	"github.com/dvloznov/ownspend/internal/config"
	"github.com/dvloznov/ownspend/internal/logger"
	"github.com/dvloznov/ownspend/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/robfig/cron"
)

func main() {
	var (
		configFile  = flag.String("config", "", "YAML config file (or set OWNSPEND_CONFIG)")
		secretsFile = flag.String("secrets", "", "ejson secrets file")
		once        = flag.Bool("once", false, "Run one reparse pass and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile, *secretsFile)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid log settings")
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	st, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	mirrors, closeMirrors, err := bootstrap.OpenMirrors(ctx, cfg, st, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up mirrors")
	}
	defer closeMirrors()

	svc := pipeline.NewService(st, log, pipeline.WithMirrors(mirrors...))
	owners := ownerIDs(cfg)

	if *once {
		reparseFailed(ctx, svc, owners, log)
		return
	}

	c := cron.New()
	err = c.AddFunc(cfg.Worker.ReparseSchedule, func() {
		reparseFailed(ctx, svc, owners, log)
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Worker.ReparseSchedule).Msg("Invalid reparse schedule")
	}
	c.Start()

	log.Info().
		Str("schedule", cfg.Worker.ReparseSchedule).
		Strs("owners", owners).
		Msg("Worker service started, waiting for schedule...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")
	c.Stop()
	cancel()

	log.Info().Msg("Worker service exited")
}

// ownerIDs lists the distinct owners of the configured devices.
func ownerIDs(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var owners []string
	for _, d := range cfg.Secrets.Devices {
		if !seen[d.OwnerID] {
			seen[d.OwnerID] = true
			owners = append(owners, d.OwnerID)
		}
	}
	sort.Strings(owners)
	return owners
}

// reparseFailed retries every FAILED event of each owner.
func reparseFailed(ctx context.Context, svc *pipeline.Service, owners []string, log zerolog.Logger) {
	for _, owner := range owners {
		if ctx.Err() != nil {
			return
		}
		res, err := svc.Reparse(ctx, pipeline.FailedEvents(owner))
		if err != nil {
			log.Error().Err(err).Str("owner_id", owner).Msg("Scheduled reparse failed")
			continue
		}
		log.Info().
			Str("owner_id", owner).
			Int("total", res.Total).
			Int("succeeded", res.Succeeded).
			Int("failed", res.Failed).
			Msg("Scheduled reparse finished")
	}
}
