package domain

// AlertKind identifies what triggered an alert.
type AlertKind string

const (
	AlertNewAth          AlertKind = "new_ath"
	AlertAuditCorrection AlertKind = "audit_correction"
)

// AlertEvent is the summary pushed to the AlertPort. Formatting and delivery
// channels are owned by the notifier implementations.
type AlertEvent struct {
	Kind          AlertKind       `json:"kind"`
	AssetID       string          `json:"assetId"`
	Network       string          `json:"network"`
	PoolRef       string          `json:"poolRef"`
	Symbol        string          `json:"symbol,omitempty"`
	EntryPrice    float64         `json:"entryPrice"`
	AthPrice      float64         `json:"athPrice"`
	AthTimestamp  int64           `json:"athTimestamp"`
	AthRoiPercent float64         `json:"athRoiPercent"`
	AthTier       Tier            `json:"athTier"`
	PreviousPrice *float64        `json:"previousPrice,omitempty"`
	Discrepancy   DiscrepancyType `json:"discrepancy,omitempty"`
	RelativeDiff  float64         `json:"relativeDiff,omitempty"`
	LiquidityUsd  float64         `json:"liquidityUsd"`
	TriggeredAt   int64           `json:"triggeredAt"`
}
