package memory

import (
	"context"
	"sort"
	"sync"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/storage"
)

// AuditLogStore is an in-memory implementation of storage.AuditLogStore.
type AuditLogStore struct {
	mu      sync.RWMutex
	records []*domain.AuditRecord
	ids     map[string]bool
}

// NewAuditLogStore creates a new in-memory audit log store.
func NewAuditLogStore() *AuditLogStore {
	return &AuditLogStore{
		ids: make(map[string]bool),
	}
}

// Append adds an audit record. Returns ErrDuplicateKey if audit_id exists.
func (s *AuditLogStore) Append(_ context.Context, r *domain.AuditRecord) error {
	if r == nil || r.AuditID == "" || r.AssetID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids[r.AuditID] {
		return storage.ErrDuplicateKey
	}

	s.ids[r.AuditID] = true
	s.records = append(s.records, copyRecord(r))
	return nil
}

// GetByAsset returns the newest records for an asset, newest first.
func (s *AuditLogStore) GetByAsset(_ context.Context, assetID string, limit int) ([]*domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AuditRecord
	for _, r := range s.records {
		if r.AssetID == assetID {
			result = append(result, copyRecord(r))
		}
	}

	// Sort by audited_at DESC
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].AuditedAt > result[j].AuditedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func copyRecord(r *domain.AuditRecord) *domain.AuditRecord {
	c := *r
	c.StoredPrice = copyFloat(r.StoredPrice)
	return &c
}

// Verify interface compliance at compile time.
var _ storage.AuditLogStore = (*AuditLogStore)(nil)
