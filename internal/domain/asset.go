package domain

// Asset represents a tracked call: an entry price on a pool at a point in time
// together with the best known all-time high since that entry.
// Corresponds to the assets table in PostgreSQL.
type Asset struct {
	ID             string  // PRIMARY KEY, assigned by ingestion
	Network        string  // internal network id ("solana", "ethereum", ...)
	PoolRef        string  // pool / pair address on the network
	Symbol         string  // display symbol (optional)
	EntryPrice     float64 // reference price at entry (USD)
	EntryTimestamp int64   // Unix timestamp in milliseconds

	AthPrice      *float64 // NULL until the first discovery
	AthTimestamp  *int64   // ms, NULL until the first discovery
	AthRoiPercent *float64 // clamped at 0
	AthTier       Tier     // resolution that produced AthPrice

	LastCheckedAt  *int64 // last incremental scan (ms), non-decreasing
	LastVerifiedAt *int64 // last full audit (ms)

	LiquidityUsd       float64        // latest observed pool liquidity
	LiquidityCheckedAt *int64         // last liquidity snapshot (ms)
	LifecycleState     LifecycleState // alive | dead
	DeadReason         DeadReason     // empty unless dead

	CreatedAt int64 // record creation timestamp (ms)
	UpdatedAt int64 // last modification timestamp (ms)
}

// HasAth reports whether the asset has been through discovery at least once.
func (a *Asset) HasAth() bool {
	return a.AthPrice != nil && a.AthTimestamp != nil
}

// LifecycleState gates scan eligibility.
type LifecycleState string

const (
	LifecycleAlive LifecycleState = "alive"
	LifecycleDead  LifecycleState = "dead"
)

// String returns the string representation of LifecycleState.
func (s LifecycleState) String() string {
	return string(s)
}

// IsValid checks if the state is a valid value.
func (s LifecycleState) IsValid() bool {
	return s == LifecycleAlive || s == LifecycleDead
}

// CanTransition reports whether from -> to is an allowed lifecycle transition.
// Only alive->dead and dead->alive are allowed.
func CanTransition(from, to LifecycleState) bool {
	return (from == LifecycleAlive && to == LifecycleDead) ||
		(from == LifecycleDead && to == LifecycleAlive)
}

// DeadReason records why an asset was suspended.
type DeadReason string

const (
	DeadReasonNone         DeadReason = ""
	DeadReasonLowLiquidity DeadReason = "low_liquidity"
	DeadReasonUnresolvable DeadReason = "unresolvable"
)

// LiquidityTier buckets alive assets for independent scan budgets.
type LiquidityTier string

const (
	TierHigh LiquidityTier = "high"
	TierLow  LiquidityTier = "low"
)

// String returns the string representation of LiquidityTier.
func (t LiquidityTier) String() string {
	return string(t)
}

// IsValid checks if the tier is a valid value.
func (t LiquidityTier) IsValid() bool {
	return t == TierHigh || t == TierLow
}

// RoiPercent returns max(0, (price-entry)/entry*100).
// A non-positive entry price yields 0.
func RoiPercent(entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	roi := (price - entry) / entry * 100
	if roi < 0 {
		return 0
	}
	return roi
}
