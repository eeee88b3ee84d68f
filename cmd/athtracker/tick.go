package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"call-ath-tracker/internal/logging"
	"call-ath-tracker/internal/orchestrator"
)

var (
	tickLimit     int
	tickBatchSize int
)

var tickCmd = &cobra.Command{
	Use:       "tick {scan|audit|liquidity}",
	Short:     "Run a single tick and print the run result as JSON",
	ValidArgs: []string{string(orchestrator.TickScan), string(orchestrator.TickAudit), string(orchestrator.TickLiquidity)},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Long: `Run one scan, audit or liquidity tick in-process and exit. Useful from
cron when the HTTP server is not deployed.

Examples:
  athtracker tick scan --limit 50
  athtracker tick audit --use-memory`,
	RunE: runTickCmd,
}

func init() {
	tickCmd.Flags().IntVar(&tickLimit, "limit", 0, "Maximum assets to process (0 uses the configured default)")
	tickCmd.Flags().IntVar(&tickBatchSize, "batch-size", 0, "Assets per batch (0 uses the configured default)")
}

func runTickCmd(cmd *cobra.Command, args []string) error {
	if tickLimit < 0 || tickBatchSize < 0 {
		return fmt.Errorf("--limit and --batch-size must not be negative")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.Install(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() {
		closeCtx, cancel := shutdownContext()
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			logger.Warn("close app", zap.Error(err))
		}
	}()

	result, err := runTick(ctx, a.orchestrator, orchestrator.Tick(args[0]),
		orchestrator.Request{Limit: tickLimit, BatchSize: tickBatchSize})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
