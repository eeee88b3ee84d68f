package storage

import (
	"context"

	"call-ath-tracker/internal/domain"
)

// AthUpdate is the ATH triple written by scans and audits.
type AthUpdate struct {
	Price      float64
	Timestamp  int64 // ms
	RoiPercent float64
	Tier       domain.Tier
}

// FromResult builds an AthUpdate from a resolver result.
func FromResult(r *domain.AthResult) AthUpdate {
	return AthUpdate{
		Price:      r.Price,
		Timestamp:  r.Timestamp,
		RoiPercent: r.RoiPercent,
		Tier:       r.Tier,
	}
}

// ScanOrder selects the staleness column used to order candidates.
type ScanOrder int

const (
	// OrderLastChecked orders by last_checked_at ASC NULLS FIRST, id ASC.
	OrderLastChecked ScanOrder = iota
	// OrderLastVerified orders by last_verified_at ASC NULLS FIRST, id ASC.
	OrderLastVerified
)

// ScanFilter selects assets eligible for scanning or auditing.
type ScanFilter struct {
	State        domain.LifecycleState
	MinLiquidity float64  // inclusive
	MaxLiquidity float64  // exclusive; 0 means unbounded
	Networks     []string // empty means any network
	RequireAth   bool     // only assets with a stored ATH
	Order        ScanOrder
	Limit        int
}

// ProbeFilter selects assets due for a liquidity probe. Alive assets and dead
// assets never probed are always due. A dead asset is due once its last probe
// is at or before the cutoff for its dead reason.
type ProbeFilter struct {
	RevivalCutoff      int64 // Unix ms; dead for low liquidity
	UnresolvableCutoff int64 // Unix ms; dead because the pool is gone
	Limit              int
}

// AssetStore provides access to the assets table: the single source of truth
// for per-asset ATH state.
type AssetStore interface {
	// Insert adds a new asset. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, a *domain.Asset) error

	// GetByID retrieves an asset. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Asset, error)

	// CompareAndSetAth writes the ATH only if no ATH is stored or the stored
	// price is strictly lower. An applied write also advances last_checked_at
	// to at. Reports whether the write was applied.
	CompareAndSetAth(ctx context.Context, id string, u AthUpdate, at int64) (bool, error)

	// OverwriteAth writes the ATH unconditionally and stamps last_verified_at.
	OverwriteAth(ctx context.Context, id string, u AthUpdate, verifiedAt int64) error

	// TouchChecked advances last_checked_at. Never moves it backward.
	TouchChecked(ctx context.Context, id string, checkedAt int64) error

	// MarkVerified stamps last_verified_at without changing the ATH.
	MarkVerified(ctx context.Context, id string, verifiedAt int64) error

	// UpdateLiquidity records a liquidity snapshot.
	UpdateLiquidity(ctx context.Context, id string, liquidityUsd float64, checkedAt int64) error

	// SetLifecycle moves the asset from one lifecycle state to another.
	// Returns ErrInvalidTransition if the stored state is not from or the
	// transition is not allowed.
	SetLifecycle(ctx context.Context, id string, from, to domain.LifecycleState, reason domain.DeadReason, at int64) error

	// ListScanCandidates returns assets matching the filter in staleness order.
	ListScanCandidates(ctx context.Context, f ScanFilter) ([]*domain.Asset, error)

	// ListProbeCandidates returns the assets due for a probe ordered by
	// liquidity_checked_at ASC NULLS FIRST, id ASC.
	ListProbeCandidates(ctx context.Context, f ProbeFilter) ([]*domain.Asset, error)
}

// AuditLogStore provides access to the append-only audit history.
type AuditLogStore interface {
	// Append adds an audit record. Returns ErrDuplicateKey if audit_id exists.
	Append(ctx context.Context, r *domain.AuditRecord) error

	// GetByAsset returns the newest audit records for an asset, newest first.
	GetByAsset(ctx context.Context, assetID string, limit int) ([]*domain.AuditRecord, error)
}
