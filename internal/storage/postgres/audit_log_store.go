package postgres

import (
	"context"
	"fmt"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/storage"
)

// AuditLogStore implements storage.AuditLogStore using PostgreSQL.
// Used when no ClickHouse DSN is configured.
type AuditLogStore struct {
	pool *Pool
}

// NewAuditLogStore creates a new AuditLogStore.
func NewAuditLogStore(pool *Pool) *AuditLogStore {
	return &AuditLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AuditLogStore = (*AuditLogStore)(nil)

// Append adds an audit record. Returns ErrDuplicateKey if audit_id exists.
func (s *AuditLogStore) Append(ctx context.Context, r *domain.AuditRecord) (err error) {
	if r == nil || r.AuditID == "" || r.AssetID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("audit_append", &err)()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ath_audits (
			audit_id, asset_id, network, audited_at, status, discrepancy,
			stored_price, computed_price, computed_tier, relative_diff,
			liquidity_usd, alerted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		r.AuditID, r.AssetID, r.Network, r.AuditedAt, string(r.Status), string(r.Type),
		r.StoredPrice, r.ComputedPrice, string(r.ComputedTier), r.RelativeDiff,
		r.LiquidityUsd, r.Alerted,
	)
	if err != nil {
		return mapError("insert audit", err)
	}
	return nil
}

// GetByAsset returns the newest audit records for an asset, newest first.
func (s *AuditLogStore) GetByAsset(ctx context.Context, assetID string, limit int) ([]*domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT audit_id, asset_id, network, audited_at, status, discrepancy,
		       stored_price, computed_price, computed_tier, relative_diff,
		       liquidity_usd, alerted
		FROM ath_audits
		WHERE asset_id = $1
		ORDER BY audited_at DESC, audit_id ASC
		LIMIT $2
	`, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("get audits by asset: %w", err)
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var (
			r                  domain.AuditRecord
			status, kind, tier string
		)
		if err := rows.Scan(
			&r.AuditID, &r.AssetID, &r.Network, &r.AuditedAt, &status, &kind,
			&r.StoredPrice, &r.ComputedPrice, &tier, &r.RelativeDiff,
			&r.LiquidityUsd, &r.Alerted,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		r.Status = domain.AuditStatus(status)
		r.Type = domain.DiscrepancyType(kind)
		r.ComputedTier = domain.Tier(tier)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return records, nil
}
