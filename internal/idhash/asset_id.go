package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeAssetID computes a deterministic asset id for a call using SHA256.
// Formula: SHA256(network|pool_ref|entry_timestamp)
// Network is lower-cased; pool refs are kept as-is (base58 is case sensitive).
// Returns hex-encoded hash (64 characters).
func ComputeAssetID(
	network string,
	poolRef string,
	entryTimestamp int64,
) string {
	data := fmt.Sprintf("%s|%s|%d",
		strings.ToLower(network),
		poolRef,
		entryTimestamp,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
