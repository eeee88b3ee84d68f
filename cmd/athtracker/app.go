package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"call-ath-tracker/internal/alert"
	"call-ath-tracker/internal/ath"
	"call-ath-tracker/internal/audit"
	"call-ath-tracker/internal/config"
	"call-ath-tracker/internal/lease"
	"call-ath-tracker/internal/lifecycle"
	"call-ath-tracker/internal/market"
	"call-ath-tracker/internal/orchestrator"
	"call-ath-tracker/internal/scanner"
	"call-ath-tracker/internal/schedule"
	"call-ath-tracker/internal/storage"
	chstore "call-ath-tracker/internal/storage/clickhouse"
	"call-ath-tracker/internal/storage/memory"
	pgstore "call-ath-tracker/internal/storage/postgres"
)

// app holds the assembled engine.
type app struct {
	cfg          *config.Config
	networks     *market.Networks
	assets       storage.AssetStore
	audits       storage.AuditLogStore
	dispatcher   *alert.Dispatcher
	hub          *alert.Hub // nil when streaming is disabled
	orchestrator *orchestrator.Orchestrator

	closers []func() error
}

// buildApp wires stores, provider clients, engines and alert sinks.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		networks: market.NewNetworks(market.DefaultNetworks...),
	}

	if err := a.openStores(ctx, logger); err != nil {
		a.close(ctx)
		return nil, err
	}

	locker, err := a.newLocker(ctx, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.dispatcher = alert.NewDispatcher(alert.Options{
		Notifier:  a.notifiers(logger),
		QueueSize: cfg.Alert.QueueSize,
		Workers:   cfg.Alert.Workers,
		Logger:    logger.Named("alert"),
	})

	breaker := market.BreakerSettings{
		ConsecutiveFailures: cfg.Provider.BreakerFailures,
		OpenTimeout:         cfg.Provider.BreakerOpenTimeout,
		HalfOpenRequests:    cfg.Provider.BreakerHalfOpenCalls,
	}
	candles := market.NewGeckoTerminalClient(cfg.Provider.GeckoTerminalURL,
		market.WithTimeout(cfg.Provider.Timeout),
		market.WithBudget(market.NewBudget("geckoterminal",
			cfg.Provider.RequestsPerMinute, cfg.Provider.Burst, cfg.Provider.MinInterval)),
		market.WithBreaker(breaker),
		market.WithNetworks(a.networks),
	)
	pairs := market.NewDexScreenerClient(cfg.Provider.DexScreenerURL,
		market.WithTimeout(cfg.Provider.Timeout),
		market.WithBudget(market.NewBudget("dexscreener",
			cfg.Provider.PairsRequestsPerMin, cfg.Provider.Burst, 0)),
		market.WithBreaker(breaker),
		market.WithNetworks(a.networks),
	)

	resolver := ath.New(ath.Options{
		Fetcher:           candles,
		IncrementalBuffer: cfg.Scan.IncrementalBuffer,
		Logger:            logger.Named("ath"),
	})

	a.orchestrator = orchestrator.New(orchestrator.Options{
		Store: a.assets,
		Queue: schedule.New(schedule.Options{
			Store:          a.assets,
			Networks:       a.networks,
			HighTierMinUsd: cfg.Scan.HighTierMinUsd,
			LowTierMinUsd:  cfg.Scan.LowTierMinUsd,
			Weights:        schedule.Weights{High: cfg.Scan.HighTierWeight, Low: cfg.Scan.LowTierWeight},
		}),
		Scanner: scanner.New(scanner.Options{
			Resolver:        resolver,
			Store:           a.assets,
			Alerter:         a.dispatcher,
			AlertRoiPercent: cfg.Scan.AlertRoiPercent,
			AlertStepRatio:  cfg.Scan.AlertStepRatio,
			Logger:          logger.Named("scanner"),
		}),
		Auditor: audit.New(audit.Options{
			Resolver:               resolver,
			Store:                  a.assets,
			History:                a.audits,
			Alerter:                a.dispatcher,
			Tolerance:              cfg.Audit.Tolerance,
			AlertThreshold:         cfg.Audit.AlertThreshold,
			LowLiquidityThreshold:  cfg.Audit.LowLiquidityThreshold,
			LowLiquidityCeilingUsd: cfg.Audit.LowLiquidityCeilingUsd,
			Logger:                 logger.Named("audit"),
		}),
		Refresher: lifecycle.NewRefresher(lifecycle.RefresherOptions{
			Pairs: pairs,
			Store: a.assets,
			Classifier: lifecycle.NewClassifier(lifecycle.Config{
				LiquidityThreshold:        cfg.Lifecycle.LiquidityThresholdUsd,
				RevivalInterval:           cfg.Lifecycle.RevivalInterval,
				UnresolvableProbeInterval: cfg.Lifecycle.UnresolvableProbeInterval,
			}),
			Logger: logger.Named("lifecycle"),
		}),
		Locker:         locker,
		Limit:          cfg.Scan.Limit,
		BatchSize:      cfg.Scan.BatchSize,
		MaxConcurrency: cfg.Scan.MaxConcurrency,
		Logger:         logger.Named("orchestrator"),
	})

	return a, nil
}

func (a *app) openStores(ctx context.Context, logger *zap.Logger) error {
	if a.cfg.Storage.UseMemory {
		logger.Warn("using in-memory storage, state is lost on exit")
		a.assets = memory.NewAssetStore()
		a.audits = memory.NewAuditLogStore()
		return nil
	}

	pool, err := pgstore.NewPool(ctx, a.cfg.Storage.PostgresDSN, pgstore.WithMaxConns(a.cfg.Storage.MaxConns))
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	a.assets = pgstore.NewAssetStore(pool)

	if a.cfg.Storage.ClickHouseDSN == "" {
		logger.Info("clickhouse not configured, audit history kept in postgres")
		a.audits = pgstore.NewAuditLogStore(pool)
		return nil
	}
	conn, err := chstore.NewConn(ctx, a.cfg.Storage.ClickHouseDSN)
	if err != nil {
		return fmt.Errorf("connect to clickhouse: %w", err)
	}
	a.closers = append(a.closers, conn.Close)
	a.audits = chstore.NewAuditLogStore(conn)
	return nil
}

func (a *app) newLocker(ctx context.Context, logger *zap.Logger) (lease.Locker, error) {
	rc := a.cfg.Redis
	if rc.URL == "" {
		logger.Info("redis not configured, leases are process-local")
		return lease.NewMemoryLocker(rc.LeaseTTL), nil
	}
	client, err := lease.NewRedisClient(ctx, rc.URL, rc.Password, rc.DB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return lease.NewRedisLocker(client, lease.WithTTL(rc.LeaseTTL), lease.WithPrefix(rc.KeyPrefix)), nil
}

func (a *app) notifiers(logger *zap.Logger) alert.Notifier {
	var sinks alert.Multi
	if a.cfg.Alert.LogAlerts {
		sinks = append(sinks, alert.NewLog(logger.Named("alerts")))
	}
	if a.cfg.Alert.WebhookURL != "" {
		sinks = append(sinks, alert.NewWebhook(a.cfg.Alert.WebhookURL))
	}
	if a.cfg.Alert.Stream {
		a.hub = alert.NewHub(logger.Named("stream"))
		sinks = append(sinks, a.hub)
	}
	if len(sinks) == 0 {
		return alert.Nop{}
	}
	return sinks
}

// close drains pending alerts and releases connections in reverse order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		errs = append(errs, a.dispatcher.Close(ctx))
	}
	if a.hub != nil {
		a.hub.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// shutdownContext bounds the time spent draining on exit.
func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
