// Package ath resolves the all-time high of an asset since its entry by
// drilling from day to hour to minute candles.
package ath

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/market"
)

// ErrNoData is returned when no candle after the entry has a positive high.
var ErrNoData = errors.New("no price data after entry")

// Search windows of the drill-down.
const (
	DefaultIncrementalBuffer = 24 * time.Hour

	hourFetchSpan  = 36 * time.Hour // hour candles fetched after the peak day
	hourPickRadius = 24 * time.Hour // hour peak must lie within this of the day
	minutePickSpan = time.Hour      // minute window radius around the peak hour
)

// Resolver computes ATH values from a CandleFetcher.
type Resolver struct {
	fetcher           market.CandleFetcher
	incrementalBuffer time.Duration
	now               func() time.Time
	logger            *zap.Logger
}

// Options for creating Resolver.
type Options struct {
	Fetcher market.CandleFetcher

	// IncrementalBuffer is how far before LastCheckedAt catch-up scans start.
	IncrementalBuffer time.Duration

	Now    func() time.Time // defaults to time.Now
	Logger *zap.Logger
}

// New creates a new Resolver.
func New(opts Options) *Resolver {
	r := &Resolver{
		fetcher:           opts.Fetcher,
		incrementalBuffer: opts.IncrementalBuffer,
		now:               opts.Now,
		logger:            opts.Logger,
	}
	if r.incrementalBuffer <= 0 {
		r.incrementalBuffer = DefaultIncrementalBuffer
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Discover runs the full day -> hour -> minute search from the entry day to now.
func (r *Resolver) Discover(ctx context.Context, asset *domain.Asset) (*domain.AthResult, error) {
	now := r.now().UnixMilli()
	dayMs := domain.ResolutionDay.Millis()
	from := asset.EntryTimestamp / dayMs * dayMs

	days, err := market.FetchRange(ctx, r.fetcher, asset.Network, asset.PoolRef, domain.ResolutionDay, from, now)
	if err != nil {
		return nil, fmt.Errorf("fetch day candles: %w", err)
	}
	peakDay, ok := maxHigh(days, func(c domain.Candle) bool {
		return c.End() > asset.EntryTimestamp && c.High > 0
	})
	if !ok {
		return nil, ErrNoData
	}

	hours, err := market.FetchRange(ctx, r.fetcher, asset.Network, asset.PoolRef, domain.ResolutionHour,
		peakDay.Timestamp, peakDay.Timestamp+hourFetchSpan.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("fetch hour candles: %w", err)
	}
	radius := hourPickRadius.Milliseconds()
	nearDay := func(c domain.Candle) bool {
		return c.Timestamp >= peakDay.Timestamp-radius &&
			c.Timestamp <= peakDay.Timestamp+radius &&
			c.High > 0
	}
	peakHour, ok := maxHigh(hours, func(c domain.Candle) bool {
		return nearDay(c) && c.End() > asset.EntryTimestamp
	})
	if !ok {
		r.logger.Debug("no hour candles near peak day, using day tier",
			zap.String("asset_id", asset.ID), zap.Int64("day", peakDay.Timestamp))
		return result(asset, peakDay, peakDay.High, domain.TierDay), nil
	}

	res, err := r.drillMinutes(ctx, asset, peakHour)
	if err != nil || res != nil {
		return res, err
	}
	if peakHour.Timestamp < asset.EntryTimestamp {
		// The entry hour's high may have printed before the entry.
		later, ok := maxHigh(hours, func(c domain.Candle) bool {
			return nearDay(c) && c.Timestamp >= asset.EntryTimestamp
		})
		if ok {
			return r.refineHour(ctx, asset, later)
		}
	}
	return result(asset, peakHour, peakHour.High, domain.TierHour), nil
}

// CatchUp scans hour candles since the last check for a high above the stored
// ATH. It returns nil when nothing exceeds it. Assets without a stored ATH are
// resolved with Discover.
func (r *Resolver) CatchUp(ctx context.Context, asset *domain.Asset) (*domain.AthResult, error) {
	if !asset.HasAth() {
		return r.Discover(ctx, asset)
	}

	now := r.now().UnixMilli()
	var from int64
	switch {
	case asset.LastCheckedAt != nil:
		from = *asset.LastCheckedAt - r.incrementalBuffer.Milliseconds()
	case asset.AthTimestamp != nil:
		from = *asset.AthTimestamp
	default:
		from = asset.EntryTimestamp
	}
	hourMs := domain.ResolutionHour.Millis()
	from = from / hourMs * hourMs

	hours, err := market.FetchRange(ctx, r.fetcher, asset.Network, asset.PoolRef, domain.ResolutionHour, from, now)
	if err != nil {
		return nil, fmt.Errorf("fetch hour candles: %w", err)
	}
	stored := *asset.AthPrice
	peakHour, ok := maxHigh(hours, func(c domain.Candle) bool {
		return c.High > stored && c.Timestamp >= asset.EntryTimestamp
	})
	if !ok {
		return nil, nil
	}

	return r.refineHour(ctx, asset, peakHour)
}

// refineHour drills an hour peak to minute precision, keeping the hour's high
// when no usable minute candle exists.
func (r *Resolver) refineHour(ctx context.Context, asset *domain.Asset, peakHour domain.Candle) (*domain.AthResult, error) {
	res, err := r.drillMinutes(ctx, asset, peakHour)
	if err != nil || res != nil {
		return res, err
	}
	return result(asset, peakHour, peakHour.High, domain.TierHour), nil
}

// drillMinutes refines an hour peak to minute precision. The minute price is
// max(open, close) so single-candle wicks do not count. It returns nil when no
// minute candle at or after the entry qualifies.
func (r *Resolver) drillMinutes(ctx context.Context, asset *domain.Asset, peakHour domain.Candle) (*domain.AthResult, error) {
	span := minutePickSpan.Milliseconds()
	minutes, err := market.FetchRange(ctx, r.fetcher, asset.Network, asset.PoolRef, domain.ResolutionMinute,
		peakHour.Timestamp-span, peakHour.Timestamp+span)
	if err != nil {
		return nil, fmt.Errorf("fetch minute candles: %w", err)
	}
	peakMinute, ok := maxHigh(minutes, func(c domain.Candle) bool {
		return c.Timestamp >= asset.EntryTimestamp && c.High > 0 && c.Close > 0
	})
	if !ok {
		return nil, nil
	}

	price := peakMinute.Open
	if peakMinute.Close > price {
		price = peakMinute.Close
	}
	return result(asset, peakMinute, price, domain.TierMinute), nil
}

// maxHigh returns the candle with the highest High among those accepted by
// keep. Ties go to the earliest candle; input is sorted ascending.
func maxHigh(candles []domain.Candle, keep func(domain.Candle) bool) (domain.Candle, bool) {
	var best domain.Candle
	found := false
	for _, c := range candles {
		if !keep(c) {
			continue
		}
		if !found || c.High > best.High {
			best = c
			found = true
		}
	}
	return best, found
}

func result(asset *domain.Asset, c domain.Candle, price float64, tier domain.Tier) *domain.AthResult {
	// Day and entry-hour candles can open before the entry.
	return &domain.AthResult{
		Price:      price,
		Timestamp:  max(c.Timestamp, asset.EntryTimestamp),
		Tier:       tier,
		RoiPercent: domain.RoiPercent(asset.EntryPrice, price),
		Candle:     c,
	}
}
