package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/market"
	"call-ath-tracker/internal/observability"
	"call-ath-tracker/internal/storage"
)

// Change is an applied lifecycle transition.
type Change struct {
	AssetID string
	From    domain.LifecycleState
	To      domain.LifecycleState
	Reason  domain.DeadReason
}

// Failure is a per-asset refresh error.
type Failure struct {
	AssetID string
	Err     error
}

// Report summarizes one Refresh call.
type Report struct {
	Checked  int // assets whose snapshot was applied
	NotDue   int // dead assets skipped until their next probe
	Changes  []Change
	Failures []Failure
}

// Refresher fetches liquidity snapshots and applies lifecycle decisions.
type Refresher struct {
	pairs      market.PairsClient
	store      storage.AssetStore
	classifier *Classifier
	now        func() time.Time
	logger     *zap.Logger
}

// RefresherOptions for creating Refresher.
type RefresherOptions struct {
	Pairs      market.PairsClient
	Store      storage.AssetStore
	Classifier *Classifier // defaults to NewClassifier(Config{})
	Now        func() time.Time
	Logger     *zap.Logger
}

// NewRefresher creates a new Refresher.
func NewRefresher(opts RefresherOptions) *Refresher {
	r := &Refresher{
		pairs:      opts.Pairs,
		store:      opts.Store,
		classifier: opts.Classifier,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if r.classifier == nil {
		r.classifier = NewClassifier(Config{})
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// ProbeFilter selects up to limit assets due for a probe now.
func (r *Refresher) ProbeFilter(limit int) storage.ProbeFilter {
	return r.classifier.ProbeFilter(r.now(), limit)
}

// Refresh probes the due assets, grouped by network in batches of at most
// market.MaxPairsPerCall pools. A failed batch fails each of its assets;
// other batches still run.
func (r *Refresher) Refresh(ctx context.Context, assets []*domain.Asset) (*Report, error) {
	now := r.now()
	report := &Report{}

	byNetwork := make(map[string][]*domain.Asset)
	for _, a := range assets {
		if !r.classifier.ProbeDue(a, now) {
			report.NotDue++
			continue
		}
		byNetwork[a.Network] = append(byNetwork[a.Network], a)
	}

	networks := make([]string, 0, len(byNetwork))
	for n := range byNetwork {
		networks = append(networks, n)
	}
	sort.Strings(networks)

	for _, network := range networks {
		group := byNetwork[network]
		for start := 0; start < len(group); start += market.MaxPairsPerCall {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			end := start + market.MaxPairsPerCall
			if end > len(group) {
				end = len(group)
			}
			r.refreshChunk(ctx, network, group[start:end], now.UnixMilli(), report)
		}
	}
	return report, nil
}

func (r *Refresher) refreshChunk(ctx context.Context, network string, chunk []*domain.Asset, now int64, report *Report) {
	refs := make([]string, len(chunk))
	for i, a := range chunk {
		refs[i] = a.PoolRef
	}

	snaps, err := r.pairs.GetPairsBatch(ctx, network, refs)
	if err == nil && len(snaps) != len(chunk) {
		err = &market.DataFormatError{
			Op:     "get pairs",
			Detail: fmt.Sprintf("got %d snapshots for %d pools", len(snaps), len(chunk)),
		}
	}
	if err != nil {
		r.logger.Warn("liquidity batch failed",
			zap.String("network", network),
			zap.Int("pools", len(chunk)),
			zap.Error(err))
		for _, a := range chunk {
			report.Failures = append(report.Failures, Failure{AssetID: a.ID, Err: err})
		}
		return
	}

	for i, a := range chunk {
		change, err := r.apply(ctx, a, snaps[i], now)
		if err != nil {
			report.Failures = append(report.Failures, Failure{AssetID: a.ID, Err: err})
			continue
		}
		report.Checked++
		if change != nil {
			report.Changes = append(report.Changes, *change)
		}
	}
}

func (r *Refresher) apply(ctx context.Context, a *domain.Asset, snap market.PairSnapshot, now int64) (*Change, error) {
	liquidity := snap.LiquidityUsd
	if !snap.Found {
		liquidity = 0
	}
	if err := r.store.UpdateLiquidity(ctx, a.ID, liquidity, now); err != nil {
		return nil, storage.Persistence("update liquidity", err)
	}

	d := r.classifier.Classify(a, snap)
	if !d.Transition {
		return nil, nil
	}

	from := currentState(a)
	if err := r.store.SetLifecycle(ctx, a.ID, from, d.State, d.Reason, now); err != nil {
		return nil, storage.Persistence("set lifecycle", err)
	}
	observability.RecordLifecycleChange(string(d.State), string(d.Reason))

	r.logger.Info("lifecycle changed",
		zap.String("asset_id", a.ID),
		zap.String("from", string(from)),
		zap.String("to", string(d.State)),
		zap.String("reason", string(d.Reason)),
		zap.Float64("liquidity_usd", liquidity))

	return &Change{AssetID: a.ID, From: from, To: d.State, Reason: d.Reason}, nil
}
