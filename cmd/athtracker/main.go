// Package main is the ATH tracker service binary: an HTTP server exposing
// tick endpoints, one-shot tick runs and schema migrations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"call-ath-tracker/internal/config"
)

var (
	v          = config.NewViper()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "athtracker",
	Short: "All-time-high discovery and maintenance for tracked calls",
	Long: `athtracker discovers and maintains the all-time-high price of every
tracked call after its entry, audits stored values against a full
recomputation, and gates dead pools out of the scan queue.

Configuration is read from configs/config.yaml (or --config), ATH_*
environment variables and flags, in increasing precedence.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to config file (default: ./configs/config.yaml)")
	pf.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	pf.String("postgres-dsn", "", "PostgreSQL connection string")
	pf.String("clickhouse-dsn", "", "ClickHouse connection string for audit history")
	pf.String("redis-url", "", "Redis URL for per-asset leases (empty uses an in-process locker)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")

	mustBind(rootCmd, "storage.use_memory", "use-memory")
	mustBind(rootCmd, "storage.postgres_dsn", "postgres-dsn")
	mustBind(rootCmd, "storage.clickhouse_dsn", "clickhouse-dsn")
	mustBind(rootCmd, "redis.url", "redis-url")
	mustBind(rootCmd, "log.level", "log-level")

	rootCmd.AddCommand(serveCmd, tickCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// mustBind binds a flag to a config key. Flags that were not set on the
// command line do not override file or environment values.
func mustBind(cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
