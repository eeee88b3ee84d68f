package domain

import "time"

// Resolution is one of the candle granularities offered by the provider.
type Resolution string

const (
	ResolutionDay    Resolution = "day"
	ResolutionHour   Resolution = "hour"
	ResolutionMinute Resolution = "minute"
)

// String returns the string representation of Resolution.
func (r Resolution) String() string {
	return string(r)
}

// IsValid checks if the resolution is a valid value.
func (r Resolution) IsValid() bool {
	return r == ResolutionDay || r == ResolutionHour || r == ResolutionMinute
}

// Duration returns the window length of one candle.
func (r Resolution) Duration() time.Duration {
	switch r {
	case ResolutionDay:
		return 24 * time.Hour
	case ResolutionHour:
		return time.Hour
	case ResolutionMinute:
		return time.Minute
	default:
		return 0
	}
}

// Millis returns the window length in milliseconds.
func (r Resolution) Millis() int64 {
	return r.Duration().Milliseconds()
}

// Candle is an OHLCV aggregate for one resolution-aligned window.
// Immutable once its window has fully elapsed.
type Candle struct {
	Timestamp  int64 // window start, Unix ms
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Resolution Resolution
}

// End returns the exclusive end of the candle window (ms).
func (c Candle) End() int64 {
	return c.Timestamp + c.Resolution.Millis()
}
