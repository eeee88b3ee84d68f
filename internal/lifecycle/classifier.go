// Package lifecycle flips assets between alive and dead from liquidity
// snapshots and decides when dead assets are probed for revival.
package lifecycle

import (
	"time"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/market"
	"call-ath-tracker/internal/storage"
)

const (
	DefaultLiquidityThreshold        = 1000.0
	DefaultRevivalInterval           = 24 * time.Hour
	DefaultUnresolvableProbeInterval = 7 * 24 * time.Hour
)

// Decision is the lifecycle state implied by a snapshot.
type Decision struct {
	State      domain.LifecycleState
	Reason     domain.DeadReason
	Transition bool // State differs from the asset's current state
}

// Config configures a Classifier. Zero values use the defaults.
type Config struct {
	LiquidityThreshold        float64
	RevivalInterval           time.Duration
	UnresolvableProbeInterval time.Duration
}

// Classifier applies the liquidity threshold.
type Classifier struct {
	threshold            float64
	revivalInterval      time.Duration
	unresolvableInterval time.Duration
}

// NewClassifier creates a Classifier.
func NewClassifier(cfg Config) *Classifier {
	c := &Classifier{
		threshold:            cfg.LiquidityThreshold,
		revivalInterval:      cfg.RevivalInterval,
		unresolvableInterval: cfg.UnresolvableProbeInterval,
	}
	if c.threshold <= 0 {
		c.threshold = DefaultLiquidityThreshold
	}
	if c.revivalInterval <= 0 {
		c.revivalInterval = DefaultRevivalInterval
	}
	if c.unresolvableInterval <= 0 {
		c.unresolvableInterval = DefaultUnresolvableProbeInterval
	}
	return c
}

// Threshold returns the alive liquidity threshold in USD.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify returns the state implied by snap. An unresolvable pool is dead
// regardless of its last known liquidity.
func (c *Classifier) Classify(asset *domain.Asset, snap market.PairSnapshot) Decision {
	var d Decision
	switch {
	case !snap.Found:
		d = Decision{State: domain.LifecycleDead, Reason: domain.DeadReasonUnresolvable}
	case snap.LiquidityUsd < c.threshold:
		d = Decision{State: domain.LifecycleDead, Reason: domain.DeadReasonLowLiquidity}
	default:
		d = Decision{State: domain.LifecycleAlive}
	}
	d.Transition = d.State != currentState(asset)
	return d
}

// ProbeDue reports whether the asset's liquidity should be refreshed now.
// Alive assets are always due. Dead assets are probed on the revival
// interval, or the slower unresolvable interval for delisted pools.
func (c *Classifier) ProbeDue(asset *domain.Asset, now time.Time) bool {
	if currentState(asset) == domain.LifecycleAlive {
		return true
	}
	if asset.LiquidityCheckedAt == nil {
		return true
	}

	interval := c.revivalInterval
	if asset.DeadReason == domain.DeadReasonUnresolvable {
		interval = c.unresolvableInterval
	}
	return now.UnixMilli()-*asset.LiquidityCheckedAt >= interval.Milliseconds()
}

// ProbeFilter returns the store filter matching ProbeDue at now.
func (c *Classifier) ProbeFilter(now time.Time, limit int) storage.ProbeFilter {
	ms := now.UnixMilli()
	return storage.ProbeFilter{
		RevivalCutoff:      ms - c.revivalInterval.Milliseconds(),
		UnresolvableCutoff: ms - c.unresolvableInterval.Milliseconds(),
		Limit:              limit,
	}
}

func currentState(a *domain.Asset) domain.LifecycleState {
	if a.LifecycleState == "" {
		return domain.LifecycleAlive
	}
	return a.LifecycleState
}
