// Package stub provides in-memory market clients for tests.
package stub

import (
	"context"
	"sort"
	"sync"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/market"
)

type seriesKey struct {
	network string
	pool    string
	res     domain.Resolution
}

// CandleFetcher implements market.CandleFetcher from scripted series.
type CandleFetcher struct {
	mu     sync.Mutex
	series map[seriesKey][]domain.Candle
	errs   map[seriesKey]error
	calls  map[domain.Resolution]int
}

// NewCandleFetcher creates a new stub candle fetcher.
func NewCandleFetcher() *CandleFetcher {
	return &CandleFetcher{
		series: make(map[seriesKey][]domain.Candle),
		errs:   make(map[seriesKey]error),
		calls:  make(map[domain.Resolution]int),
	}
}

// AddCandles appends candles for a pool. Candle.Resolution selects the series.
func (f *CandleFetcher) AddCandles(network, pool string, candles ...domain.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range candles {
		k := seriesKey{network, pool, c.Resolution}
		f.series[k] = append(f.series[k], c)
	}
}

// SetError makes every request for the pool and resolution fail with err.
func (f *CandleFetcher) SetError(network, pool string, res domain.Resolution, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[seriesKey{network, pool, res}] = err
}

// Calls returns the number of requests made for a resolution.
func (f *CandleFetcher) Calls(res domain.Resolution) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[res]
}

// GetCandles returns up to limit of the newest candles strictly before the
// cursor, sorted ascending.
func (f *CandleFetcher) GetCandles(_ context.Context, network, poolRef string, res domain.Resolution, limit int, before *int64) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[res]++
	k := seriesKey{network, poolRef, res}
	if err := f.errs[k]; err != nil {
		return nil, err
	}

	var out []domain.Candle
	for _, c := range f.series[k] {
		if before != nil && c.Timestamp >= *before {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })

	limit = market.ClampLimit(limit)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

var _ market.CandleFetcher = (*CandleFetcher)(nil)
