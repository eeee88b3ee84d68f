// Package schedule selects which assets each invocation processes.
package schedule

import (
	"context"
	"fmt"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/market"
	"call-ath-tracker/internal/storage"
)

const (
	DefaultHighTierMinUsd = 20000.0
	DefaultLowTierMinUsd  = 1000.0
)

// Weights split an invocation limit between tiers.
type Weights struct {
	High int
	Low  int
}

// Options for creating Queue.
type Options struct {
	Store    storage.AssetStore
	Networks *market.Networks // only these networks are scheduled

	HighTierMinUsd float64 // default 20000
	LowTierMinUsd  float64 // default 1000
	Weights        Weights // default 50/50
}

// Queue builds scan and audit batches from the asset store.
type Queue struct {
	store    storage.AssetStore
	networks []string
	highMin  float64
	lowMin   float64
	weights  Weights
}

// New creates a new Queue.
func New(opts Options) *Queue {
	q := &Queue{
		store:   opts.Store,
		highMin: opts.HighTierMinUsd,
		lowMin:  opts.LowTierMinUsd,
		weights: opts.Weights,
	}
	if opts.Networks == nil {
		opts.Networks = market.NewNetworks(market.DefaultNetworks...)
	}
	q.networks = opts.Networks.Supported()
	if q.highMin <= 0 {
		q.highMin = DefaultHighTierMinUsd
	}
	if q.lowMin <= 0 {
		q.lowMin = DefaultLowTierMinUsd
	}
	q.weights.High = max(q.weights.High, 0)
	q.weights.Low = max(q.weights.Low, 0)
	if q.weights.High == 0 && q.weights.Low == 0 {
		q.weights = Weights{High: 1, Low: 1}
	}
	return q
}

// TierOf returns the liquidity tier of an amount. False below the low tier.
func (q *Queue) TierOf(liquidityUsd float64) (domain.LiquidityTier, bool) {
	switch {
	case liquidityUsd >= q.highMin:
		return domain.TierHigh, true
	case liquidityUsd >= q.lowMin:
		return domain.TierLow, true
	default:
		return "", false
	}
}

// NextBatch returns up to n alive assets of the tier on supported networks,
// least recently checked first.
func (q *Queue) NextBatch(ctx context.Context, n int, tier domain.LiquidityTier) ([]*domain.Asset, error) {
	if n <= 0 {
		return nil, nil
	}
	f := storage.ScanFilter{
		State:    domain.LifecycleAlive,
		Networks: q.networks,
		Order:    storage.OrderLastChecked,
		Limit:    n,
	}
	switch tier {
	case domain.TierHigh:
		f.MinLiquidity = q.highMin
	case domain.TierLow:
		f.MinLiquidity = q.lowMin
		f.MaxLiquidity = q.highMin
	default:
		return nil, fmt.Errorf("next batch: unknown tier %q", tier)
	}

	candidates, err := q.store.ListScanCandidates(ctx, f)
	if err != nil {
		return nil, storage.Persistence("list scan candidates", err)
	}

	b := NewBacklog()
	for _, a := range candidates {
		b.Push(Item{Asset: a, Tier: tier, Since: a.LastCheckedAt})
	}
	return b.Drain(n), nil
}

// NextScanPlan splits limit between the tiers by weight and fills each
// tier's unused share from the other.
func (q *Queue) NextScanPlan(ctx context.Context, limit int) ([]*domain.Asset, error) {
	if limit <= 0 {
		return nil, nil
	}
	highShare, lowShare := q.split(limit)

	high, err := q.NextBatch(ctx, limit, domain.TierHigh)
	if err != nil {
		return nil, err
	}
	low, err := q.NextBatch(ctx, limit, domain.TierLow)
	if err != nil {
		return nil, err
	}

	takeHigh := min(len(high), highShare)
	takeLow := min(len(low), lowShare)
	spare := limit - takeHigh - takeLow
	if extra := min(spare, len(high)-takeHigh); extra > 0 {
		takeHigh += extra
		spare -= extra
	}
	if extra := min(spare, len(low)-takeLow); extra > 0 {
		takeLow += extra
	}

	out := make([]*domain.Asset, 0, takeHigh+takeLow)
	out = append(out, high[:takeHigh]...)
	out = append(out, low[:takeLow]...)
	return out, nil
}

// NextAuditBatch returns up to n alive assets with a stored ATH, least
// recently verified first.
func (q *Queue) NextAuditBatch(ctx context.Context, n int) ([]*domain.Asset, error) {
	if n <= 0 {
		return nil, nil
	}
	candidates, err := q.store.ListScanCandidates(ctx, storage.ScanFilter{
		State:      domain.LifecycleAlive,
		Networks:   q.networks,
		RequireAth: true,
		Order:      storage.OrderLastVerified,
		Limit:      n,
	})
	if err != nil {
		return nil, storage.Persistence("list audit candidates", err)
	}

	b := NewBacklog()
	for _, a := range candidates {
		b.Push(Item{Asset: a, Since: a.LastVerifiedAt})
	}
	return b.Drain(n), nil
}

// split divides limit by weight, rounding the high share down.
func (q *Queue) split(limit int) (high, low int) {
	total := q.weights.High + q.weights.Low
	high = limit * q.weights.High / total
	return high, limit - high
}
