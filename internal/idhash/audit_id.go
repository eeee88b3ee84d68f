package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ComputeAuditID computes a deterministic audit_id using SHA256.
// Formula: SHA256(asset_id|audited_at|stored_price|computed_price)
// A missing stored price is encoded as "null".
// Returns hex-encoded hash (64 characters).
func ComputeAuditID(
	assetID string,
	auditedAt int64,
	storedPrice *float64,
	computedPrice float64,
) string {
	stored := "null"
	if storedPrice != nil {
		stored = strconv.FormatFloat(*storedPrice, 'g', -1, 64)
	}

	data := fmt.Sprintf("%s|%d|%s|%s",
		assetID,
		auditedAt,
		stored,
		strconv.FormatFloat(computedPrice, 'g', -1, 64),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
