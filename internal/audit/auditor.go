// Package audit periodically recomputes ATH values with full discovery and
// corrects stored values that drifted.
package audit

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/idhash"
	"call-ath-tracker/internal/observability"
	"call-ath-tracker/internal/storage"
)

// Discrepancy thresholds.
const (
	DefaultTolerance           = 0.10
	DefaultAlertThreshold      = 0.25
	DefaultLowLiqAlertThresh   = 0.50
	DefaultLowLiquidityCeiling = 25000.0
)

// Outcome is returned by Audit.
type Outcome struct {
	Kind         domain.AuditStatus
	Type         domain.DiscrepancyType // empty when verified
	OldValue     *float64
	NewValue     float64
	NewTier      domain.Tier
	RelativeDiff float64
	Alerted      bool
}

// Discoverer runs full ATH discovery.
type Discoverer interface {
	Discover(ctx context.Context, asset *domain.Asset) (*domain.AthResult, error)
}

// Alerter accepts alerts without blocking.
type Alerter interface {
	Enqueue(event domain.AlertEvent) bool
}

// Auditor runs full-recompute audits.
type Auditor struct {
	resolver Discoverer
	store    storage.AssetStore
	history  storage.AuditLogStore
	alerter  Alerter

	tolerance       float64
	alertThreshold  float64
	lowLiqThreshold float64
	lowLiqCeiling   float64

	now    func() time.Time
	logger *zap.Logger
}

// Options for creating Auditor.
type Options struct {
	Resolver Discoverer
	Store    storage.AssetStore
	History  storage.AuditLogStore // optional
	Alerter  Alerter               // optional

	Tolerance              float64 // d at or below is verified, default 0.10
	AlertThreshold         float64 // default 0.25
	LowLiquidityThreshold  float64 // default 0.50
	LowLiquidityCeilingUsd float64 // default 25000

	Now    func() time.Time
	Logger *zap.Logger
}

// New creates a new Auditor.
func New(opts Options) *Auditor {
	a := &Auditor{
		resolver:        opts.Resolver,
		store:           opts.Store,
		history:         opts.History,
		alerter:         opts.Alerter,
		tolerance:       opts.Tolerance,
		alertThreshold:  opts.AlertThreshold,
		lowLiqThreshold: opts.LowLiquidityThreshold,
		lowLiqCeiling:   opts.LowLiquidityCeilingUsd,
		now:             opts.Now,
		logger:          opts.Logger,
	}
	if a.tolerance <= 0 {
		a.tolerance = DefaultTolerance
	}
	if a.alertThreshold <= 0 {
		a.alertThreshold = DefaultAlertThreshold
	}
	if a.lowLiqThreshold <= 0 {
		a.lowLiqThreshold = DefaultLowLiqAlertThresh
	}
	if a.lowLiqCeiling <= 0 {
		a.lowLiqCeiling = DefaultLowLiquidityCeiling
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// RelativeDiff returns |stored-computed| / max(stored, computed).
// A missing stored value is a full discrepancy (1).
func RelativeDiff(stored *float64, computed float64) float64 {
	if stored == nil {
		return 1
	}
	denom := math.Max(*stored, computed)
	if denom <= 0 {
		return 0
	}
	return math.Abs(*stored-computed) / denom
}

// Classify returns the discrepancy type for a stored/computed pair.
func Classify(stored *float64, computed float64) domain.DiscrepancyType {
	switch {
	case stored == nil:
		return domain.DiscrepancyNoAth
	case computed > *stored:
		return domain.DiscrepancyMissedAth
	default:
		return domain.DiscrepancyInflatedAth
	}
}

// AlertThreshold returns the relative difference an asset's correction must
// exceed to alert.
func (a *Auditor) AlertThreshold(liquidityUsd float64) float64 {
	if liquidityUsd < a.lowLiqCeiling {
		return a.lowLiqThreshold
	}
	return a.alertThreshold
}

// Audit recomputes the ATH of one asset from scratch and verifies or
// corrects the stored value. Resolver errors leave state untouched.
func (a *Auditor) Audit(ctx context.Context, asset *domain.Asset) (*Outcome, error) {
	res, err := a.resolver.Discover(ctx, asset)
	if err != nil {
		return nil, err
	}

	now := a.now().UnixMilli()
	d := RelativeDiff(asset.AthPrice, res.Price)
	out := &Outcome{
		OldValue:     asset.AthPrice,
		NewValue:     res.Price,
		NewTier:      res.Tier,
		RelativeDiff: d,
	}

	if asset.AthPrice != nil && d <= a.tolerance {
		if err := a.store.MarkVerified(ctx, asset.ID, now); err != nil {
			return nil, storage.Persistence("mark verified", err)
		}
		out.Kind = domain.AuditVerified
		a.record(ctx, asset, out, now)
		return out, nil
	}

	out.Kind = domain.AuditCorrected
	out.Type = Classify(asset.AthPrice, res.Price)
	if err := a.store.OverwriteAth(ctx, asset.ID, storage.FromResult(res), now); err != nil {
		return nil, storage.Persistence("overwrite ath", err)
	}
	observability.RecordDiscrepancy(string(out.Type))

	if d > a.AlertThreshold(asset.LiquidityUsd) {
		out.Alerted = a.emit(asset, res, out, now)
	}

	a.logger.Info("ath corrected",
		zap.String("asset_id", asset.ID),
		zap.String("type", string(out.Type)),
		zap.Float64("new", res.Price),
		zap.Float64("diff", d),
		zap.Bool("alerted", out.Alerted))

	a.record(ctx, asset, out, now)
	return out, nil
}

// record appends to the audit history. Failures are logged only.
func (a *Auditor) record(ctx context.Context, asset *domain.Asset, out *Outcome, now int64) {
	if a.history == nil {
		return
	}
	rec := &domain.AuditRecord{
		AuditID:       idhash.ComputeAuditID(asset.ID, now, out.OldValue, out.NewValue),
		AssetID:       asset.ID,
		Network:       asset.Network,
		AuditedAt:     now,
		Status:        out.Kind,
		Type:          out.Type,
		StoredPrice:   out.OldValue,
		ComputedPrice: out.NewValue,
		ComputedTier:  out.NewTier,
		RelativeDiff:  out.RelativeDiff,
		LiquidityUsd:  asset.LiquidityUsd,
		Alerted:       out.Alerted,
	}
	if err := a.history.Append(ctx, rec); err != nil {
		a.logger.Warn("append audit record failed",
			zap.String("asset_id", asset.ID),
			zap.Error(err))
	}
}

func (a *Auditor) emit(asset *domain.Asset, res *domain.AthResult, out *Outcome, now int64) bool {
	if a.alerter == nil {
		return false
	}
	return a.alerter.Enqueue(domain.AlertEvent{
		Kind:          domain.AlertAuditCorrection,
		AssetID:       asset.ID,
		Network:       asset.Network,
		PoolRef:       asset.PoolRef,
		Symbol:        asset.Symbol,
		EntryPrice:    asset.EntryPrice,
		AthPrice:      res.Price,
		AthTimestamp:  res.Timestamp,
		AthRoiPercent: res.RoiPercent,
		AthTier:       res.Tier,
		PreviousPrice: out.OldValue,
		Discrepancy:   out.Type,
		RelativeDiff:  out.RelativeDiff,
		LiquidityUsd:  asset.LiquidityUsd,
		TriggeredAt:   now,
	})
}
