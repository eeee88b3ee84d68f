// Package market provides rate-limited read access to candle and pair data
// for trading pools.
package market

import (
	"context"
	"math"
	"sort"

	"call-ath-tracker/internal/domain"
)

// MaxCandlesPerCall is the provider's page size cap.
const MaxCandlesPerCall = 1000

// CandleFetcher returns resolution-aligned, non-overlapping candles sorted by
// timestamp ascending. before (ms, exclusive upper bound) is optional.
type CandleFetcher interface {
	GetCandles(ctx context.Context, network, poolRef string, res domain.Resolution, limit int, before *int64) ([]domain.Candle, error)
}

// ClampLimit bounds a requested candle count to [1, MaxCandlesPerCall].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxCandlesPerCall {
		return MaxCandlesPerCall
	}
	return limit
}

// FetchRange returns all candles with timestamp in [from, to] by paging
// backward from to. Each page consumes provider budget. Paging stops when the
// oldest candle reaches from or a page comes back short.
func FetchRange(ctx context.Context, f CandleFetcher, network, poolRef string, res domain.Resolution, from, to int64) ([]domain.Candle, error) {
	if to < from {
		return nil, nil
	}
	step := res.Millis()
	if step <= 0 {
		return nil, &DataFormatError{Op: "fetch range", Detail: "invalid resolution " + string(res)}
	}

	var pages [][]domain.Candle
	before := to + 1
	for {
		remaining := (before-from)/step + 1
		limit := ClampLimit(int(remaining))

		b := before
		page, err := f.GetCandles(ctx, network, poolRef, res, limit, &b)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		pages = append(pages, page)

		oldest := page[0].Timestamp
		if oldest <= from || len(page) < limit {
			break
		}
		if oldest >= before {
			// Provider ignored the cursor; stop rather than loop.
			break
		}
		before = oldest
	}

	var out []domain.Candle
	for i := len(pages) - 1; i >= 0; i-- {
		for _, c := range pages[i] {
			if c.Timestamp >= from && c.Timestamp <= to {
				out = append(out, c)
			}
		}
	}
	return Normalize(out, res), nil
}

// Normalize sorts candles ascending, drops rows that are not aligned to the
// resolution, have non-finite values or duplicate a timestamp.
func Normalize(candles []domain.Candle, res domain.Resolution) []domain.Candle {
	step := res.Millis()
	out := make([]domain.Candle, 0, len(candles))
	for _, c := range candles {
		if step > 0 && c.Timestamp%step != 0 {
			continue
		}
		if !finite(c.Open, c.High, c.Low, c.Close, c.Volume) {
			continue
		}
		c.Resolution = res
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})

	deduped := out[:0]
	for i, c := range out {
		if i > 0 && c.Timestamp == deduped[len(deduped)-1].Timestamp {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
