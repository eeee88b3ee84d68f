package httpapi

import "call-ath-tracker/internal/domain"

type assetView struct {
	ID                 string   `json:"id"`
	Network            string   `json:"network"`
	PoolRef            string   `json:"poolRef"`
	Symbol             string   `json:"symbol,omitempty"`
	EntryPrice         float64  `json:"entryPrice"`
	EntryTimestamp     int64    `json:"entryTimestamp"`
	AthPrice           *float64 `json:"athPrice"`
	AthTimestamp       *int64   `json:"athTimestamp"`
	AthRoiPercent      *float64 `json:"athRoiPercent"`
	AthTier            string   `json:"athTier,omitempty"`
	LastCheckedAt      *int64   `json:"lastCheckedAt"`
	LastVerifiedAt     *int64   `json:"lastVerifiedAt"`
	LiquidityUsd       float64  `json:"liquidityUsd"`
	LiquidityCheckedAt *int64   `json:"liquidityCheckedAt"`
	LifecycleState     string   `json:"lifecycleState"`
	DeadReason         string   `json:"deadReason,omitempty"`
	CreatedAt          int64    `json:"createdAt"`
	UpdatedAt          int64    `json:"updatedAt"`
}

func toAssetView(a *domain.Asset) assetView {
	return assetView{
		ID:                 a.ID,
		Network:            a.Network,
		PoolRef:            a.PoolRef,
		Symbol:             a.Symbol,
		EntryPrice:         a.EntryPrice,
		EntryTimestamp:     a.EntryTimestamp,
		AthPrice:           a.AthPrice,
		AthTimestamp:       a.AthTimestamp,
		AthRoiPercent:      a.AthRoiPercent,
		AthTier:            string(a.AthTier),
		LastCheckedAt:      a.LastCheckedAt,
		LastVerifiedAt:     a.LastVerifiedAt,
		LiquidityUsd:       a.LiquidityUsd,
		LiquidityCheckedAt: a.LiquidityCheckedAt,
		LifecycleState:     string(a.LifecycleState),
		DeadReason:         string(a.DeadReason),
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

type auditView struct {
	AuditID       string   `json:"auditId"`
	AssetID       string   `json:"assetId"`
	AuditedAt     int64    `json:"auditedAt"`
	Status        string   `json:"status"`
	Type          string   `json:"type,omitempty"`
	StoredPrice   *float64 `json:"storedPrice"`
	ComputedPrice float64  `json:"computedPrice"`
	ComputedTier  string   `json:"computedTier"`
	RelativeDiff  float64  `json:"relativeDiff"`
	LiquidityUsd  float64  `json:"liquidityUsd"`
	Alerted       bool     `json:"alerted"`
}

func toAuditView(r *domain.AuditRecord) auditView {
	return auditView{
		AuditID:       r.AuditID,
		AssetID:       r.AssetID,
		AuditedAt:     r.AuditedAt,
		Status:        string(r.Status),
		Type:          string(r.Type),
		StoredPrice:   r.StoredPrice,
		ComputedPrice: r.ComputedPrice,
		ComputedTier:  string(r.ComputedTier),
		RelativeDiff:  r.RelativeDiff,
		LiquidityUsd:  r.LiquidityUsd,
		Alerted:       r.Alerted,
	}
}
