package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"call-ath-tracker/internal/logging"
	"call-ath-tracker/internal/storage/migrations"
	pgstore "call-ath-tracker/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL and ClickHouse schema migrations",
	Long: `Apply the embedded schema migrations. PostgreSQL migrations are
versioned in schema_migrations; ClickHouse statements are idempotent and
replayed on every run. ClickHouse is skipped when no DSN is configured.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.UseMemory {
		return fmt.Errorf("migrate needs storage.postgres_dsn, not in-memory storage")
	}
	logger, err := logging.Install(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Info("postgres migrations applied", zap.Strings("versions", applied))

	if cfg.Storage.ClickHouseDSN == "" {
		logger.Info("clickhouse not configured, skipping")
		return nil
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	defer conn.Close()
	logger.Info("clickhouse migrations applied")
	return nil
}
