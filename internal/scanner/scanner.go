// Package scanner runs incremental ATH scans and commits results under the
// monotonic compare-and-set guard.
package scanner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/observability"
	"call-ath-tracker/internal/storage"
)

// Alert thresholds for new ATHs.
const (
	DefaultAlertRoiPercent = 250.0
	DefaultAlertStepRatio  = 1.20
)

// OutcomeKind is the result of one scan.
type OutcomeKind string

const (
	OutcomeUnchanged OutcomeKind = "unchanged"
	OutcomeNewAth    OutcomeKind = "new_ath"
)

// NewAth describes a committed ATH.
type NewAth struct {
	Price      float64
	Timestamp  int64
	RoiPercent float64
	Tier       domain.Tier
	Previous   *float64 // nil on cold start
	Initial    bool     // cold-start discovery
}

// Outcome is returned by Scan.
type Outcome struct {
	Kind    OutcomeKind
	NewAth  *NewAth // set when Kind is new_ath
	Alerted bool
}

// Resolver is the subset of ath.Resolver used by the scanner.
type Resolver interface {
	Discover(ctx context.Context, asset *domain.Asset) (*domain.AthResult, error)
	CatchUp(ctx context.Context, asset *domain.Asset) (*domain.AthResult, error)
}

// Alerter accepts alerts without blocking.
type Alerter interface {
	Enqueue(event domain.AlertEvent) bool
}

// Scanner runs incremental scans.
type Scanner struct {
	resolver       Resolver
	store          storage.AssetStore
	alerter        Alerter
	alertRoi       float64
	alertStepRatio float64
	now            func() time.Time
	logger         *zap.Logger
}

// Options for creating Scanner.
type Options struct {
	Resolver Resolver
	Store    storage.AssetStore
	Alerter  Alerter // optional

	AlertRoiPercent float64 // default 250
	AlertStepRatio  float64 // default 1.20

	Now    func() time.Time
	Logger *zap.Logger
}

// New creates a new Scanner.
func New(opts Options) *Scanner {
	s := &Scanner{
		resolver:       opts.Resolver,
		store:          opts.Store,
		alerter:        opts.Alerter,
		alertRoi:       opts.AlertRoiPercent,
		alertStepRatio: opts.AlertStepRatio,
		now:            opts.Now,
		logger:         opts.Logger,
	}
	if s.alertRoi <= 0 {
		s.alertRoi = DefaultAlertRoiPercent
	}
	if s.alertStepRatio <= 0 {
		s.alertStepRatio = DefaultAlertStepRatio
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Scan resolves and commits the ATH of one asset. Assets without a stored
// ATH go through full discovery; the rest are caught up incrementally.
// Resolver errors leave the stored state untouched.
func (s *Scanner) Scan(ctx context.Context, asset *domain.Asset) (*Outcome, error) {
	initial := !asset.HasAth()

	var (
		res *domain.AthResult
		err error
	)
	if initial {
		res, err = s.resolver.Discover(ctx, asset)
	} else {
		res, err = s.resolver.CatchUp(ctx, asset)
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	out := &Outcome{Kind: OutcomeUnchanged}

	if res != nil {
		applied, err := s.store.CompareAndSetAth(ctx, asset.ID, storage.FromResult(res), now)
		if err != nil {
			return nil, storage.Persistence("compare and set ath", err)
		}
		if applied {
			out.Kind = OutcomeNewAth
			out.NewAth = &NewAth{
				Price:      res.Price,
				Timestamp:  res.Timestamp,
				RoiPercent: res.RoiPercent,
				Tier:       res.Tier,
				Previous:   asset.AthPrice,
				Initial:    initial,
			}
			observability.RecordAthUpdate(string(res.Tier))
		}
	}

	// An applied compare-and-set already stamped last_checked_at.
	if out.Kind != OutcomeNewAth {
		if err := s.store.TouchChecked(ctx, asset.ID, now); err != nil {
			return nil, storage.Persistence("touch checked", err)
		}
	}

	if out.NewAth != nil && s.qualifies(out.NewAth) {
		out.Alerted = s.emit(asset, out.NewAth, now)
	}

	if out.Kind == OutcomeNewAth {
		s.logger.Info("new ath",
			zap.String("asset_id", asset.ID),
			zap.Float64("price", out.NewAth.Price),
			zap.Float64("roi_pct", out.NewAth.RoiPercent),
			zap.String("tier", string(out.NewAth.Tier)),
			zap.Bool("initial", initial))
	}
	return out, nil
}

// qualifies applies the alert rule: roi >= 250% and at least a 20% step over
// the previous ATH. Cold-start discoveries never alert.
func (s *Scanner) qualifies(n *NewAth) bool {
	if n.Initial || n.Previous == nil {
		return false
	}
	return n.RoiPercent >= s.alertRoi && n.Price >= *n.Previous*s.alertStepRatio
}

func (s *Scanner) emit(asset *domain.Asset, n *NewAth, now int64) bool {
	if s.alerter == nil {
		return false
	}
	return s.alerter.Enqueue(domain.AlertEvent{
		Kind:          domain.AlertNewAth,
		AssetID:       asset.ID,
		Network:       asset.Network,
		PoolRef:       asset.PoolRef,
		Symbol:        asset.Symbol,
		EntryPrice:    asset.EntryPrice,
		AthPrice:      n.Price,
		AthTimestamp:  n.Timestamp,
		AthRoiPercent: n.RoiPercent,
		AthTier:       n.Tier,
		PreviousPrice: n.Previous,
		LiquidityUsd:  asset.LiquidityUsd,
		TriggeredAt:   now,
	})
}
