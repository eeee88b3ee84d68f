package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"call-ath-tracker/internal/config"
	"call-ath-tracker/internal/httpapi"
	"call-ath-tracker/internal/logging"
	"call-ath-tracker/internal/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and optional self-scheduled ticks",
	Long: `Run the HTTP API. Ticks are normally triggered by an external
scheduler via POST /v1/ticks/{scan|audit|liquidity}; setting
schedule.*_interval also runs them in-process.

Examples:
  athtracker serve --use-memory --addr :8080
  ATH_HTTP_AUTH_TOKEN=secret athtracker serve --config configs/config.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address")
	mustBind(serveCmd, "http.addr", "addr")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.Install(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	opts := httpapi.Options{
		Runner:    a.orchestrator,
		Assets:    a.assets,
		Audits:    a.audits,
		Networks:  a.networks,
		AuthToken: cfg.HTTP.AuthToken,
		Logger:    logger.Named("http"),
	}
	if a.hub != nil {
		opts.Stream = a.hub
	}
	if cfg.HTTP.AuthToken == "" {
		logger.Warn("http.auth_token is empty, tick and ingestion endpoints will reject every request")
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.New(opts),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := shutdownContext()
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	for _, t := range scheduledTicks(cfg) {
		g.Go(func() error {
			runEvery(gctx, a.orchestrator, t, logger)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shutting down")

	closeCtx, cancel := shutdownContext()
	defer cancel()
	if cerr := a.close(closeCtx); cerr != nil {
		logger.Warn("close app", zap.Error(cerr))
	}
	return err
}

type scheduledTick struct {
	tick     orchestrator.Tick
	interval time.Duration
	req      orchestrator.Request
}

func scheduledTicks(cfg *config.Config) []scheduledTick {
	all := []scheduledTick{
		{orchestrator.TickScan, cfg.Schedule.ScanInterval, orchestrator.Request{Limit: cfg.Scan.Limit}},
		{orchestrator.TickAudit, cfg.Schedule.AuditInterval, orchestrator.Request{Limit: cfg.Audit.Limit}},
		{orchestrator.TickLiquidity, cfg.Schedule.LiquidityInterval, orchestrator.Request{Limit: cfg.Lifecycle.Limit}},
	}
	var out []scheduledTick
	for _, t := range all {
		if t.interval > 0 {
			out = append(out, t)
		}
	}
	return out
}

// runEvery runs one tick type on a fixed interval until ctx is done. Runs of
// the same type never overlap.
func runEvery(ctx context.Context, runner httpapi.Runner, t scheduledTick, logger *zap.Logger) {
	logger = logger.With(zap.String("tick", string(t.tick)), zap.Duration("interval", t.interval))
	logger.Info("scheduled tick enabled")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := runTick(ctx, runner, t.tick, t.req); err != nil && ctx.Err() == nil {
				logger.Error("scheduled tick failed", zap.Error(err))
			}
		}
	}
}

func runTick(ctx context.Context, runner httpapi.Runner, tick orchestrator.Tick, req orchestrator.Request) (*orchestrator.RunResult, error) {
	switch tick {
	case orchestrator.TickScan:
		return runner.RunScan(ctx, req)
	case orchestrator.TickAudit:
		return runner.RunAudit(ctx, req)
	case orchestrator.TickLiquidity:
		return runner.RunLiquidity(ctx, req)
	}
	return nil, fmt.Errorf("unknown tick %q", tick)
}
