package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/dvloznov/ownspend/internal/config"
	infraBQ "github.com/dvloznov/ownspend/internal/infra/bigquery"
	"github.com/dvloznov/ownspend/internal/logger"
	"github.com/dvloznov/ownspend/internal/store/postgres"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// schemaMigration records a migration that has already been applied.
type schemaMigration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version   int       `bun:",pk"`
	Name      string    `bun:",notnull"`
	AppliedAt time.Time `bun:",notnull"`
	Checksum  string
	AppliedBy string
}

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

var (
	configFile    = flag.String("config", "", "YAML config file (or set OWNSPEND_CONFIG)")
	secretsFile   = flag.String("secrets", "", "ejson secrets file")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "migrations/postgres", "Path to migrations directory")
	withBigQuery  = flag.Bool("bigquery", false, "Also create the BigQuery mirror table")
)

func main() {
	flag.Parse()
	log := logger.New()

	cfg, err := config.Load(*configFile, *secretsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := logger.WithContext(context.Background(), log)

	if cfg.Database.Driver == "postgres" {
		if err := migratePostgres(ctx, cfg, log); err != nil {
			log.Fatal().Err(err).Msg("Postgres migration failed")
		}
	} else {
		log.Info().Str("driver", cfg.Database.Driver).Msg("Nothing to migrate for this driver")
	}

	if *withBigQuery || cfg.BigQuery.Enabled {
		if err := ensureBigQuery(ctx, cfg, log); err != nil {
			log.Fatal().Err(err).Msg("BigQuery setup failed")
		}
	}
}

func migratePostgres(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Secrets.DatabaseURL == "" {
		return fmt.Errorf("database url is not configured (set DATABASE_URL)")
	}

	db, err := postgres.Open(ctx, cfg.Secrets.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// Baseline tables come from the store models.
	if err := postgres.CreateSchema(ctx, db); err != nil {
		return err
	}
	if _, err := db.NewCreateTable().Model((*schemaMigration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	dir, err := resolveMigrationsDir(*migrationsDir)
	if err != nil {
		return err
	}
	migrations, err := readMigrations(dir)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(migrations)).Str("dir", dir).Msg("Found migration files")

	var applied []schemaMigration
	if err := db.NewSelect().Model(&applied).Order("version ASC").Scan(ctx); err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	pending, drifted := planMigrations(migrations, applied)
	for _, m := range drifted {
		log.Warn().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration file has changed since it ran")
	}

	for _, m := range pending {
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")

		err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("executing: %w", err)
			}
			_, err := tx.NewInsert().Model(&schemaMigration{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC(),
				Checksum:  m.Checksum,
				AppliedBy: *appliedBy,
			}).Exec(ctx)
			if err != nil {
				return fmt.Errorf("recording: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("migration %04d_%s: %w", m.Version, m.Name, err)
		}
	}

	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("count", len(pending)).Msg("Successfully applied migrations")
	}
	return nil
}

func ensureBigQuery(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.BigQuery.ProjectID == "" {
		return fmt.Errorf("bigquery project is not configured (set GOOGLE_CLOUD_PROJECT)")
	}
	mirror, err := infraBQ.NewMirror(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
	if err != nil {
		return err
	}
	defer mirror.Close()

	if err := mirror.EnsureTable(ctx); err != nil {
		return err
	}
	log.Info().
		Str("project_id", cfg.BigQuery.ProjectID).
		Str("dataset", cfg.BigQuery.Dataset).
		Str("table", cfg.BigQuery.Table).
		Msg("BigQuery mirror table ready")
	return nil
}

// resolveMigrationsDir also tries the path from the repository root, for
// runs from inside cmd/migrate.
func resolveMigrationsDir(dir string) (string, error) {
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	alt := filepath.Join("..", "..", dir)
	if _, err := os.Stat(alt); err == nil {
		return alt, nil
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}

// readMigrations reads all migration files from dir, sorted by version.
func readMigrations(dir string) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func parseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// planMigrations splits migrations into those not yet applied and those
// applied with a different checksum.
func planMigrations(migrations []Migration, applied []schemaMigration) (pending, drifted []Migration) {
	checksums := make(map[int]string, len(applied))
	for _, am := range applied {
		checksums[am.Version] = am.Checksum
	}

	for _, m := range migrations {
		sum, ok := checksums[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if sum != "" && sum != m.Checksum {
			drifted = append(drifted, m)
		}
	}
	return pending, drifted
}
