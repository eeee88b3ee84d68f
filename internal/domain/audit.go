package domain

// DiscrepancyType classifies a corrected audit.
type DiscrepancyType string

const (
	DiscrepancyMissedAth   DiscrepancyType = "MISSED_ATH"   // computed > stored
	DiscrepancyInflatedAth DiscrepancyType = "INFLATED_ATH" // computed < stored
	DiscrepancyNoAth       DiscrepancyType = "NO_ATH"       // nothing stored
)

// AuditStatus is the top-level audit outcome.
type AuditStatus string

const (
	AuditVerified  AuditStatus = "verified"
	AuditCorrected AuditStatus = "corrected"
)

// AuditRecord is an append-only entry in the audit history.
// Corresponds to ath_audits table in ClickHouse.
type AuditRecord struct {
	AuditID       string          // deterministic hash
	AssetID       string          // audited asset
	Network       string          // asset network
	AuditedAt     int64           // ms
	Status        AuditStatus     // verified | corrected
	Type          DiscrepancyType // empty when verified
	StoredPrice   *float64        // previous value (nullable)
	ComputedPrice float64         // recomputed value
	ComputedTier  Tier            // provenance of the recomputed value
	RelativeDiff  float64         // |stored-computed| / max(stored, computed)
	LiquidityUsd  float64         // liquidity at audit time
	Alerted       bool            // whether an alert was enqueued
}
