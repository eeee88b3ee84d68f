package clickhouse

import (
	"context"
	"fmt"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/storage"
)

// AuditLogStore implements storage.AuditLogStore using ClickHouse.
type AuditLogStore struct {
	conn *Conn
}

// NewAuditLogStore creates a new AuditLogStore.
func NewAuditLogStore(conn *Conn) *AuditLogStore {
	return &AuditLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AuditLogStore = (*AuditLogStore)(nil)

// Append adds an audit record. Returns ErrDuplicateKey if audit_id exists.
func (s *AuditLogStore) Append(ctx context.Context, r *domain.AuditRecord) error {
	if r == nil || r.AuditID == "" || r.AssetID == "" {
		return storage.ErrInvalidInput
	}

	// MergeTree does not enforce uniqueness; check before insert.
	exists, err := s.exists(ctx, r.AssetID, r.AuditID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ath_audits (
			audit_id, asset_id, network, audited_at, status, discrepancy,
			stored_price, computed_price, computed_tier, relative_diff,
			liquidity_usd, alerted
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	var alerted uint8
	if r.Alerted {
		alerted = 1
	}
	err = batch.Append(
		r.AuditID, r.AssetID, r.Network, uint64(r.AuditedAt),
		string(r.Status), string(r.Type),
		r.StoredPrice, r.ComputedPrice, string(r.ComputedTier), r.RelativeDiff,
		r.LiquidityUsd, alerted,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByAsset returns the newest audit records for an asset, newest first.
func (s *AuditLogStore) GetByAsset(ctx context.Context, assetID string, limit int) ([]*domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.conn.Query(ctx, `
		SELECT audit_id, asset_id, network, audited_at, status, discrepancy,
		       stored_price, computed_price, computed_tier, relative_diff,
		       liquidity_usd, alerted
		FROM ath_audits FINAL
		WHERE asset_id = ?
		ORDER BY audited_at DESC, audit_id ASC
		LIMIT ?
	`, assetID, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query audits: %w", err)
	}
	defer rows.Close()

	var result []*domain.AuditRecord
	for rows.Next() {
		var (
			r                  domain.AuditRecord
			auditedAt          uint64
			status, kind, tier string
			alerted            uint8
		)
		if err := rows.Scan(
			&r.AuditID, &r.AssetID, &r.Network, &auditedAt, &status, &kind,
			&r.StoredPrice, &r.ComputedPrice, &tier, &r.RelativeDiff,
			&r.LiquidityUsd, &alerted,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		r.AuditedAt = int64(auditedAt)
		r.Status = domain.AuditStatus(status)
		r.Type = domain.DiscrepancyType(kind)
		r.ComputedTier = domain.Tier(tier)
		r.Alerted = alerted == 1
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return result, nil
}

func (s *AuditLogStore) exists(ctx context.Context, assetID, auditID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM ath_audits WHERE asset_id = ? AND audit_id = ?
	`, assetID, auditID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
