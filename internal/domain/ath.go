package domain

// Tier is the provenance of a resolved ATH value: the finest resolution that
// produced it in the day -> hour -> minute drill-down.
type Tier string

const (
	TierUnknown Tier = ""
	TierDay     Tier = "day"
	TierHour    Tier = "hour"
	TierMinute  Tier = "minute"
)

// String returns the string representation of Tier.
func (t Tier) String() string {
	return string(t)
}

// AthResult is the outcome of one resolver run.
type AthResult struct {
	Price      float64 // resolved price (minute tier: max(open, close))
	Timestamp  int64   // candle start (ms)
	Tier       Tier    // which tier produced the value
	RoiPercent float64 // clamped at 0
	Candle     Candle  // the candle the value was taken from
}
