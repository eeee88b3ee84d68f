package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/storage"
)

const assetColumns = `
	id, network, pool_ref, symbol, entry_price, entry_timestamp,
	ath_price, ath_timestamp, ath_roi_percent, ath_tier,
	last_checked_at, last_verified_at,
	liquidity_usd, liquidity_checked_at, lifecycle_state, dead_reason,
	created_at, updated_at
`

// AssetStore implements storage.AssetStore using PostgreSQL.
// ATH monotonicity is enforced inside the UPDATE predicate so concurrent
// writers cannot lower a stored value.
type AssetStore struct {
	pool *Pool
}

// NewAssetStore creates a new AssetStore.
func NewAssetStore(pool *Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AssetStore = (*AssetStore)(nil)

// Insert adds a new asset. Returns ErrDuplicateKey if id exists.
func (s *AssetStore) Insert(ctx context.Context, a *domain.Asset) (err error) {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("asset_insert", &err)()

	state := a.LifecycleState
	if state == "" {
		state = domain.LifecycleAlive
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		a.ID, a.Network, a.PoolRef, a.Symbol, a.EntryPrice, a.EntryTimestamp,
		a.AthPrice, a.AthTimestamp, a.AthRoiPercent, string(a.AthTier),
		a.LastCheckedAt, a.LastVerifiedAt,
		a.LiquidityUsd, a.LiquidityCheckedAt, string(state), string(a.DeadReason),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return mapError("insert asset", err)
	}
	return nil
}

// GetByID retrieves an asset by its ID. Returns ErrNotFound if not exists.
func (s *AssetStore) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id)
	a, err := scanAsset(row)
	if err != nil {
		return nil, mapError("get asset by id", err)
	}
	return a, nil
}

// CompareAndSetAth writes the ATH and last_checked_at only if the price
// exceeds the stored one.
func (s *AssetStore) CompareAndSetAth(ctx context.Context, id string, u storage.AthUpdate, at int64) (applied bool, err error) {
	defer observe("asset_cas_ath", &err)()

	tag, err := s.pool.Exec(ctx, `
		UPDATE assets
		SET ath_price = $2,
		    ath_timestamp = $3,
		    ath_roi_percent = $4,
		    ath_tier = $5,
		    last_checked_at = GREATEST(COALESCE(last_checked_at, 0), $6),
		    updated_at = $6
		WHERE id = $1 AND (ath_price IS NULL OR ath_price < $2)
	`, id, u.Price, u.Timestamp, u.RoiPercent, string(u.Tier), at)
	if err != nil {
		return false, fmt.Errorf("compare and set ath: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish a lost race from a missing row.
	if err := s.mustExist(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// OverwriteAth writes the ATH unconditionally and stamps last_verified_at.
func (s *AssetStore) OverwriteAth(ctx context.Context, id string, u storage.AthUpdate, verifiedAt int64) (err error) {
	defer observe("asset_overwrite_ath", &err)()

	return s.execOne(ctx, "overwrite ath", `
		UPDATE assets
		SET ath_price = $2,
		    ath_timestamp = $3,
		    ath_roi_percent = $4,
		    ath_tier = $5,
		    last_verified_at = $6,
		    updated_at = $6
		WHERE id = $1
	`, id, u.Price, u.Timestamp, u.RoiPercent, string(u.Tier), verifiedAt)
}

// TouchChecked advances last_checked_at, never backward.
func (s *AssetStore) TouchChecked(ctx context.Context, id string, checkedAt int64) error {
	return s.execOne(ctx, "touch checked", `
		UPDATE assets
		SET last_checked_at = GREATEST(COALESCE(last_checked_at, 0), $2)
		WHERE id = $1
	`, id, checkedAt)
}

// MarkVerified stamps last_verified_at.
func (s *AssetStore) MarkVerified(ctx context.Context, id string, verifiedAt int64) error {
	return s.execOne(ctx, "mark verified", `
		UPDATE assets SET last_verified_at = $2 WHERE id = $1
	`, id, verifiedAt)
}

// UpdateLiquidity records a liquidity snapshot.
func (s *AssetStore) UpdateLiquidity(ctx context.Context, id string, liquidityUsd float64, checkedAt int64) error {
	return s.execOne(ctx, "update liquidity", `
		UPDATE assets
		SET liquidity_usd = $2, liquidity_checked_at = $3, updated_at = $3
		WHERE id = $1
	`, id, liquidityUsd, checkedAt)
}

// SetLifecycle moves an asset between lifecycle states.
func (s *AssetStore) SetLifecycle(ctx context.Context, id string, from, to domain.LifecycleState, reason domain.DeadReason, at int64) error {
	if !domain.CanTransition(from, to) {
		return storage.ErrInvalidTransition
	}
	if to == domain.LifecycleAlive {
		reason = domain.DeadReasonNone
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE assets
		SET lifecycle_state = $3, dead_reason = $4, updated_at = $5
		WHERE id = $1 AND lifecycle_state = $2
	`, id, string(from), string(to), string(reason), at)
	if err != nil {
		return fmt.Errorf("set lifecycle: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if err := s.mustExist(ctx, id); err != nil {
		return err
	}
	return storage.ErrInvalidTransition
}

// ListScanCandidates returns assets matching the filter in staleness order.
func (s *AssetStore) ListScanCandidates(ctx context.Context, f storage.ScanFilter) (result []*domain.Asset, err error) {
	defer observe("asset_list_scan", &err)()

	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.State != "" {
		where = append(where, "lifecycle_state = "+arg(string(f.State)))
	}
	if f.MinLiquidity > 0 {
		where = append(where, "liquidity_usd >= "+arg(f.MinLiquidity))
	}
	if f.MaxLiquidity > 0 {
		where = append(where, "liquidity_usd < "+arg(f.MaxLiquidity))
	}
	if len(f.Networks) > 0 {
		where = append(where, "network = ANY("+arg(f.Networks)+")")
	}
	if f.RequireAth {
		where = append(where, "ath_price IS NOT NULL")
	}

	query := `SELECT ` + assetColumns + ` FROM assets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch f.Order {
	case storage.OrderLastVerified:
		query += " ORDER BY last_verified_at ASC NULLS FIRST, id ASC"
	default:
		query += " ORDER BY last_checked_at ASC NULLS FIRST, id ASC"
	}
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scan candidates: %w", err)
	}
	defer rows.Close()

	return scanAssets(rows)
}

// ListProbeCandidates returns due assets ordered by liquidity_checked_at.
func (s *AssetStore) ListProbeCandidates(ctx context.Context, f storage.ProbeFilter) ([]*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets
		WHERE lifecycle_state <> 'dead'
		   OR liquidity_checked_at IS NULL
		   OR (dead_reason = $1 AND liquidity_checked_at <= $2)
		   OR (dead_reason <> $1 AND liquidity_checked_at <= $3)
		ORDER BY liquidity_checked_at ASC NULLS FIRST, id ASC`
	args := []interface{}{string(domain.DeadReasonUnresolvable), f.UnresolvableCutoff, f.RevivalCutoff}
	if f.Limit > 0 {
		query += " LIMIT $4"
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list probe candidates: %w", err)
	}
	defer rows.Close()

	return scanAssets(rows)
}

// execOne runs an UPDATE expected to touch exactly one row.
func (s *AssetStore) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *AssetStore) mustExist(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM assets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check asset exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return nil
}

// scanAsset scans a single row into an Asset.
func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var (
		a                       domain.Asset
		tier, state, deadReason string
	)

	err := row.Scan(
		&a.ID, &a.Network, &a.PoolRef, &a.Symbol, &a.EntryPrice, &a.EntryTimestamp,
		&a.AthPrice, &a.AthTimestamp, &a.AthRoiPercent, &tier,
		&a.LastCheckedAt, &a.LastVerifiedAt,
		&a.LiquidityUsd, &a.LiquidityCheckedAt, &state, &deadReason,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.AthTier = domain.Tier(tier)
	a.LifecycleState = domain.LifecycleState(state)
	a.DeadReason = domain.DeadReason(deadReason)
	return &a, nil
}

// scanAssets scans multiple rows into a slice of Asset.
func scanAssets(rows pgx.Rows) ([]*domain.Asset, error) {
	var assets []*domain.Asset

	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		assets = append(assets, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset rows: %w", err)
	}

	return assets, nil
}
