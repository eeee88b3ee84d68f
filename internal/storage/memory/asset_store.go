package memory

import (
	"context"
	"sort"
	"sync"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/storage"
)

// AssetStore is an in-memory implementation of storage.AssetStore.
type AssetStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Asset // keyed by id
}

// NewAssetStore creates a new in-memory asset store.
func NewAssetStore() *AssetStore {
	return &AssetStore{
		data: make(map[string]*domain.Asset),
	}
}

// Insert adds a new asset. Returns ErrDuplicateKey if id exists.
func (s *AssetStore) Insert(_ context.Context, a *domain.Asset) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[a.ID] = copyAsset(a)
	if s.data[a.ID].LifecycleState == "" {
		s.data[a.ID].LifecycleState = domain.LifecycleAlive
	}
	return nil
}

// GetByID retrieves an asset by its ID. Returns ErrNotFound if not exists.
func (s *AssetStore) GetByID(_ context.Context, id string) (*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyAsset(a), nil
}

// CompareAndSetAth writes the ATH only if it exceeds the stored one.
func (s *AssetStore) CompareAndSetAth(_ context.Context, id string, u storage.AthUpdate, at int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[id]
	if !exists {
		return false, storage.ErrNotFound
	}
	if a.AthPrice != nil && *a.AthPrice >= u.Price {
		return false, nil
	}

	setAth(a, u)
	if a.LastCheckedAt == nil || *a.LastCheckedAt < at {
		a.LastCheckedAt = int64Ptr(at)
	}
	a.UpdatedAt = at
	return true, nil
}

// OverwriteAth writes the ATH unconditionally and stamps last_verified_at.
func (s *AssetStore) OverwriteAth(_ context.Context, id string, u storage.AthUpdate, verifiedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	setAth(a, u)
	a.LastVerifiedAt = int64Ptr(verifiedAt)
	a.UpdatedAt = verifiedAt
	return nil
}

// TouchChecked advances last_checked_at, never backward.
func (s *AssetStore) TouchChecked(_ context.Context, id string, checkedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if a.LastCheckedAt == nil || *a.LastCheckedAt < checkedAt {
		a.LastCheckedAt = int64Ptr(checkedAt)
	}
	return nil
}

// MarkVerified stamps last_verified_at.
func (s *AssetStore) MarkVerified(_ context.Context, id string, verifiedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	a.LastVerifiedAt = int64Ptr(verifiedAt)
	return nil
}

// UpdateLiquidity records a liquidity snapshot.
func (s *AssetStore) UpdateLiquidity(_ context.Context, id string, liquidityUsd float64, checkedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	a.LiquidityUsd = liquidityUsd
	a.LiquidityCheckedAt = int64Ptr(checkedAt)
	a.UpdatedAt = checkedAt
	return nil
}

// SetLifecycle moves an asset between lifecycle states.
func (s *AssetStore) SetLifecycle(_ context.Context, id string, from, to domain.LifecycleState, reason domain.DeadReason, at int64) error {
	if !domain.CanTransition(from, to) {
		return storage.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if a.LifecycleState != from {
		return storage.ErrInvalidTransition
	}

	a.LifecycleState = to
	if to == domain.LifecycleAlive {
		a.DeadReason = domain.DeadReasonNone
	} else {
		a.DeadReason = reason
	}
	a.UpdatedAt = at
	return nil
}

// ListScanCandidates returns assets matching the filter in staleness order.
func (s *AssetStore) ListScanCandidates(_ context.Context, f storage.ScanFilter) ([]*domain.Asset, error) {
	networks := make(map[string]bool, len(f.Networks))
	for _, n := range f.Networks {
		networks[n] = true
	}

	s.mu.RLock()
	var result []*domain.Asset
	for _, a := range s.data {
		if f.State != "" && a.LifecycleState != f.State {
			continue
		}
		if a.LiquidityUsd < f.MinLiquidity {
			continue
		}
		if f.MaxLiquidity > 0 && a.LiquidityUsd >= f.MaxLiquidity {
			continue
		}
		if len(networks) > 0 && !networks[a.Network] {
			continue
		}
		if f.RequireAth && !a.HasAth() {
			continue
		}
		result = append(result, copyAsset(a))
	}
	s.mu.RUnlock()

	key := func(a *domain.Asset) *int64 { return a.LastCheckedAt }
	if f.Order == storage.OrderLastVerified {
		key = func(a *domain.Asset) *int64 { return a.LastVerifiedAt }
	}
	sortByStaleness(result, key)

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// ListProbeCandidates returns due assets ordered by liquidity_checked_at.
func (s *AssetStore) ListProbeCandidates(_ context.Context, f storage.ProbeFilter) ([]*domain.Asset, error) {
	s.mu.RLock()
	result := make([]*domain.Asset, 0, len(s.data))
	for _, a := range s.data {
		if probeDue(a, f) {
			result = append(result, copyAsset(a))
		}
	}
	s.mu.RUnlock()

	sortByStaleness(result, func(a *domain.Asset) *int64 { return a.LiquidityCheckedAt })

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func probeDue(a *domain.Asset, f storage.ProbeFilter) bool {
	if a.LifecycleState != domain.LifecycleDead || a.LiquidityCheckedAt == nil {
		return true
	}
	if a.DeadReason == domain.DeadReasonUnresolvable {
		return *a.LiquidityCheckedAt <= f.UnresolvableCutoff
	}
	return *a.LiquidityCheckedAt <= f.RevivalCutoff
}

// sortByStaleness orders by key ASC NULLS FIRST, then id ASC.
func sortByStaleness(assets []*domain.Asset, key func(*domain.Asset) *int64) {
	sort.Slice(assets, func(i, j int) bool {
		ki, kj := key(assets[i]), key(assets[j])
		switch {
		case ki == nil && kj != nil:
			return true
		case ki != nil && kj == nil:
			return false
		case ki != nil && kj != nil && *ki != *kj:
			return *ki < *kj
		}
		return assets[i].ID < assets[j].ID
	})
}

func setAth(a *domain.Asset, u storage.AthUpdate) {
	a.AthPrice = float64Ptr(u.Price)
	a.AthTimestamp = int64Ptr(u.Timestamp)
	a.AthRoiPercent = float64Ptr(u.RoiPercent)
	a.AthTier = u.Tier
}

// copyAsset deep-copies pointer fields so callers cannot mutate stored state.
func copyAsset(a *domain.Asset) *domain.Asset {
	c := *a
	c.AthPrice = copyFloat(a.AthPrice)
	c.AthTimestamp = copyInt(a.AthTimestamp)
	c.AthRoiPercent = copyFloat(a.AthRoiPercent)
	c.LastCheckedAt = copyInt(a.LastCheckedAt)
	c.LastVerifiedAt = copyInt(a.LastVerifiedAt)
	c.LiquidityCheckedAt = copyInt(a.LiquidityCheckedAt)
	return &c
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return float64Ptr(*p)
}

func copyInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	return int64Ptr(*p)
}

func float64Ptr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64       { return &v }

// Verify interface compliance at compile time.
var _ storage.AssetStore = (*AssetStore)(nil)
