// Package orchestrator runs one scheduling tick: it selects a batch of
// assets, fans out per network and collects per-asset outcomes.
// Flow: queue → lease → scanner | auditor | refresher → RunResult
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"call-ath-tracker/internal/ath"
	"call-ath-tracker/internal/audit"
	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/lease"
	"call-ath-tracker/internal/lifecycle"
	"call-ath-tracker/internal/market"
	"call-ath-tracker/internal/observability"
	"call-ath-tracker/internal/scanner"
	"call-ath-tracker/internal/schedule"
	"call-ath-tracker/internal/storage"
)

// Tick names an invocation type.
type Tick string

const (
	TickScan      Tick = "scan"
	TickAudit     Tick = "audit"
	TickLiquidity Tick = "liquidity"
)

// Per-invocation defaults.
const (
	DefaultLimit          = 100
	DefaultBatchSize      = 25
	DefaultMaxConcurrency = 4
)

// Error kinds reported in RunResult.
const (
	KindTransient          = "transient"
	KindDataFormat         = "data_format"
	KindNoData             = "no_data"
	KindUnsupportedNetwork = "unsupported_network"
	KindPersistence        = "persistence"
	KindInternal           = "internal"
)

// Request bounds one invocation. Zero values use the configured defaults.
type Request struct {
	Limit     int `json:"limit"`
	BatchSize int `json:"batchSize"`
}

// AssetError is a per-asset failure.
type AssetError struct {
	AssetID string `json:"assetId"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RunResult summarizes one invocation.
type RunResult struct {
	RunID              string       `json:"runId"`
	Tick               Tick         `json:"tick"`
	Processed          int          `json:"processed"`
	Updated            int          `json:"updated"`
	DiscrepanciesFound int          `json:"discrepanciesFound"`
	Skipped            int          `json:"skipped"`
	Errors             []AssetError `json:"errors"`
}

// Scanner runs one incremental scan.
type Scanner interface {
	Scan(ctx context.Context, asset *domain.Asset) (*scanner.Outcome, error)
}

// Auditor runs one full audit.
type Auditor interface {
	Audit(ctx context.Context, asset *domain.Asset) (*audit.Outcome, error)
}

// Refresher applies liquidity snapshots.
type Refresher interface {
	ProbeFilter(limit int) storage.ProbeFilter
	Refresh(ctx context.Context, assets []*domain.Asset) (*lifecycle.Report, error)
}

// Orchestrator coordinates tick execution.
type Orchestrator struct {
	// Components
	store     storage.AssetStore
	queue     *schedule.Queue
	scanner   Scanner
	auditor   Auditor
	refresher Refresher
	locker    lease.Locker

	// Limits
	limit          int
	batchSize      int
	maxConcurrency int

	newRunID func() string
	logger   *zap.Logger
}

// Options for creating Orchestrator.
type Options struct {
	// Required components
	Store     storage.AssetStore
	Queue     *schedule.Queue
	Scanner   Scanner
	Auditor   Auditor
	Refresher Refresher

	// Locker provides per-asset single flight. Defaults to an in-process locker.
	Locker lease.Locker

	// Defaults for requests that leave Limit or BatchSize unset
	Limit          int
	BatchSize      int
	MaxConcurrency int // concurrent network groups per batch

	NewRunID func() string
	Logger   *zap.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:          opts.Store,
		queue:          opts.Queue,
		scanner:        opts.Scanner,
		auditor:        opts.Auditor,
		refresher:      opts.Refresher,
		locker:         opts.Locker,
		limit:          opts.Limit,
		batchSize:      opts.BatchSize,
		maxConcurrency: opts.MaxConcurrency,
		newRunID:       opts.NewRunID,
		logger:         opts.Logger,
	}
	if o.locker == nil {
		o.locker = lease.NewMemoryLocker(lease.DefaultTTL)
	}
	if o.limit <= 0 {
		o.limit = DefaultLimit
	}
	if o.batchSize <= 0 {
		o.batchSize = DefaultBatchSize
	}
	if o.maxConcurrency <= 0 {
		o.maxConcurrency = DefaultMaxConcurrency
	}
	if o.newRunID == nil {
		o.newRunID = uuid.NewString
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// assetOutcome is what one per-asset step reports back.
type assetOutcome struct {
	updated     bool
	discrepancy bool
}

type stepFunc func(ctx context.Context, asset *domain.Asset) (assetOutcome, error)

// RunScan runs incremental scans over the next scan plan.
func (o *Orchestrator) RunScan(ctx context.Context, req Request) (*RunResult, error) {
	limit, batchSize := o.bounds(req)
	return o.run(ctx, TickScan, func(ctx context.Context, result *RunResult) error {
		assets, err := o.queue.NextScanPlan(ctx, limit)
		if err != nil {
			return err
		}
		o.process(ctx, TickScan, assets, batchSize, result, func(ctx context.Context, a *domain.Asset) (assetOutcome, error) {
			out, err := o.scanner.Scan(ctx, a)
			if err != nil {
				return assetOutcome{}, err
			}
			return assetOutcome{updated: out.Kind == scanner.OutcomeNewAth}, nil
		})
		return nil
	})
}

// RunAudit runs full audits over the least recently verified assets.
func (o *Orchestrator) RunAudit(ctx context.Context, req Request) (*RunResult, error) {
	limit, batchSize := o.bounds(req)
	return o.run(ctx, TickAudit, func(ctx context.Context, result *RunResult) error {
		assets, err := o.queue.NextAuditBatch(ctx, limit)
		if err != nil {
			return err
		}
		o.process(ctx, TickAudit, assets, batchSize, result, func(ctx context.Context, a *domain.Asset) (assetOutcome, error) {
			out, err := o.auditor.Audit(ctx, a)
			if err != nil {
				return assetOutcome{}, err
			}
			corrected := out.Kind == domain.AuditCorrected
			return assetOutcome{updated: corrected, discrepancy: corrected}, nil
		})
		return nil
	})
}

// RunLiquidity refreshes liquidity for the due assets whose snapshot is
// oldest. Dead assets wait for their probe interval and are not selected.
func (o *Orchestrator) RunLiquidity(ctx context.Context, req Request) (*RunResult, error) {
	limit, _ := o.bounds(req)
	return o.run(ctx, TickLiquidity, func(ctx context.Context, result *RunResult) error {
		assets, err := o.store.ListProbeCandidates(ctx, o.refresher.ProbeFilter(limit))
		if err != nil {
			return storage.Persistence("list probe candidates", err)
		}
		report, err := o.refresher.Refresh(ctx, assets)
		if report != nil {
			result.Processed += report.Checked + len(report.Failures)
			result.Updated += len(report.Changes)
			result.Skipped += report.NotDue
			for _, f := range report.Failures {
				result.Errors = append(result.Errors, assetError(f.AssetID, f.Err))
				observability.RecordAssetOutcome(string(TickLiquidity), "error")
			}
		}
		return err
	})
}

func (o *Orchestrator) bounds(req Request) (limit, batchSize int) {
	limit, batchSize = req.Limit, req.BatchSize
	if limit <= 0 {
		limit = o.limit
	}
	if batchSize <= 0 {
		batchSize = o.batchSize
	}
	return limit, batchSize
}

// run wraps one tick with its run id, logging and metrics. A non-nil error
// from body aborts the tick.
func (o *Orchestrator) run(ctx context.Context, tick Tick, body func(context.Context, *RunResult) error) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: o.newRunID(), Tick: tick, Errors: []AssetError{}}
	logger := o.logger.With(zap.String("tick", string(tick)), zap.String("run_id", result.RunID))

	err := body(ctx, result)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordTickRun(string(tick), "error", elapsed.Seconds())
		logger.Error("tick failed", zap.Error(err))
		return nil, err
	}

	observability.RecordTickRun(string(tick), "success", elapsed.Seconds())
	observability.RecordTickSuccess(string(tick), time.Now().Unix())
	logger.Info("tick completed",
		zap.Int("processed", result.Processed),
		zap.Int("updated", result.Updated),
		zap.Int("discrepancies", result.DiscrepanciesFound),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// process runs step over assets in chunks of batchSize. Within a chunk,
// network groups run concurrently up to maxConcurrency and assets of one
// network run in order. Per-asset errors are collected, never returned.
func (o *Orchestrator) process(ctx context.Context, tick Tick, assets []*domain.Asset, batchSize int, result *RunResult, step stepFunc) {
	var mu sync.Mutex

	for start := 0; start < len(assets); start += batchSize {
		if ctx.Err() != nil {
			return
		}
		end := min(start+batchSize, len(assets))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.maxConcurrency)
		for _, group := range groupByNetwork(assets[start:end]) {
			g.Go(func() error {
				for _, a := range group {
					if gctx.Err() != nil {
						return nil
					}
					out, skipped, err := o.runAsset(gctx, a, step)

					mu.Lock()
					o.record(tick, result, a.ID, out, skipped, err)
					mu.Unlock()
				}
				return nil
			})
		}
		g.Wait()
	}
}

// runAsset holds the asset lease while step runs against a fresh copy of
// the asset.
func (o *Orchestrator) runAsset(ctx context.Context, a *domain.Asset, step stepFunc) (assetOutcome, bool, error) {
	var out assetOutcome
	err := lease.With(ctx, o.locker, lease.AssetKey(a.ID), func(ctx context.Context) error {
		fresh, err := o.store.GetByID(ctx, a.ID)
		if err != nil {
			return storage.Persistence("reload asset", err)
		}
		out, err = step(ctx, fresh)
		return err
	})
	if errors.Is(err, lease.ErrHeld) {
		return out, true, nil
	}
	return out, false, err
}

func (o *Orchestrator) record(tick Tick, result *RunResult, assetID string, out assetOutcome, skipped bool, err error) {
	switch {
	case skipped:
		result.Skipped++
		observability.RecordLeaseSkip(string(tick))
		observability.RecordAssetOutcome(string(tick), "skipped")
	case err != nil:
		result.Processed++
		ae := assetError(assetID, err)
		result.Errors = append(result.Errors, ae)
		observability.RecordAssetOutcome(string(tick), ae.Kind)
		o.logger.Warn("asset failed",
			zap.String("tick", string(tick)),
			zap.String("asset_id", assetID),
			zap.String("kind", ae.Kind),
			zap.Error(err))
	default:
		result.Processed++
		if out.updated {
			result.Updated++
		}
		if out.discrepancy {
			result.DiscrepanciesFound++
		}
		observability.RecordAssetOutcome(string(tick), "ok")
	}
}

func assetError(assetID string, err error) AssetError {
	return AssetError{AssetID: assetID, Kind: classifyError(err), Message: err.Error()}
}

// classifyError maps a per-asset error to its reported kind.
func classifyError(err error) string {
	var perr *storage.PersistenceError
	switch {
	case errors.Is(err, ath.ErrNoData):
		return KindNoData
	case market.IsUnsupportedNetwork(err):
		return KindUnsupportedNetwork
	case market.IsTransient(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransient
	case market.IsDataFormat(err), errors.Is(err, market.ErrPoolNotFound):
		return KindDataFormat
	case errors.As(err, &perr):
		return KindPersistence
	default:
		return KindInternal
	}
}

// groupByNetwork splits assets by network, keeping input order within a
// group. Groups are returned in network order.
func groupByNetwork(assets []*domain.Asset) [][]*domain.Asset {
	byNetwork := make(map[string][]*domain.Asset)
	for _, a := range assets {
		byNetwork[a.Network] = append(byNetwork[a.Network], a)
	}
	networks := make([]string, 0, len(byNetwork))
	for n := range byNetwork {
		networks = append(networks, n)
	}
	sort.Strings(networks)

	groups := make([][]*domain.Asset, len(networks))
	for i, n := range networks {
		groups[i] = byNetwork[n]
	}
	return groups
}
