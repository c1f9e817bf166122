package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/ownspend/internal/bootstrap"
	"github.com/dvloznov/ownspend/internal/config"
	"github.com/dvloznov/ownspend/internal/logger"
	"github.com/dvloznov/ownspend/internal/notionsync"
)

func main() {
	// Parse CLI flags
	configFile := flag.String("config", "", "YAML config file (or set OWNSPEND_CONFIG)")
	secretsFile := flag.String("secrets", "", "ejson secrets file")
	ownerID := flag.String("owner", "", "Owner whose transactions are synced (required)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (overrides config)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	cfg, err := config.Load(*configFile, *secretsFile)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize structured logger
	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid log settings")
	}

	// Validate required flags
	if *ownerID == "" {
		log.Fatal().Msg("Error: --owner is required")
	}
	if *notionDBID == "" {
		*notionDBID = cfg.Notion.DatabaseID
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id or notion.databaseId is required")
	}
	if cfg.Secrets.NotionToken == "" {
		log.Fatal().Msg("Error: notion token is not configured (set NOTION_TOKEN)")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	st, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	// Initialize Notion client
	notionClient := notionsync.NewClient(cfg.Secrets.NotionToken)

	res, err := notionsync.SyncAll(ctx, st, notionClient, *notionDBID, *ownerID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d archived, %d failed.\n",
		res.Created, res.Updated, res.Archived, res.Failed)
}
