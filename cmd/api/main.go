package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/ownspend/internal/api"
	"github.com/dvloznov/ownspend/internal/api/middleware"
	"github.com/dvloznov/ownspend/internal/bootstrap"
	"github.com/dvloznov/ownspend/internal/config"
	"github.com/dvloznov/ownspend/internal/jobs/inmemory"
	"github.com/dvloznov/ownspend/internal/logger"
	"github.com/dvloznov/ownspend/internal/pipeline"
)

func main() {
	// Parse command-line flags
	var (
		configFile  = flag.String("config", "", "YAML config file (or set OWNSPEND_CONFIG)")
		secretsFile = flag.String("secrets", "", "ejson secrets file")
		port        = flag.Int("port", 0, "HTTP server port (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile, *secretsFile)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// Initialize logger
	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid log settings")
	}

	ctx := logger.WithContext(context.Background(), log)

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

	if len(cfg.Secrets.Devices) == 0 {
		log.Warn().Msg("No devices configured - every /api request will be rejected")
	}
	devices := middleware.NewDeviceRegistry(cfg.Secrets.Devices)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := bootstrap.NewQueue(cfg, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.Worker.Workers).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, svc.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	handler := api.NewRouter(api.Deps{
		Service:   svc,
		Reader:    st,
		Publisher: jobQueue,
		JobStore:  jobStore,
		Devices:   devices,
	}, log)

	// Create HTTP server
	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
