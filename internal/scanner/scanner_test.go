package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-ath-tracker/internal/ath"
	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/market"
	"call-ath-tracker/internal/market/stub"
	"call-ath-tracker/internal/storage"
	"call-ath-tracker/internal/storage/memory"
)

const (
	network = "solana"
	pool    = "So11111111111111111111111111111111111111112"

	day    = int64(24 * 60 * 60 * 1000)
	hour   = int64(60 * 60 * 1000)
	minute = int64(60 * 1000)

	day0 = int64(1704067200000) // 2024-01-01T00:00:00Z
	now  = day0 + 10*day
)

type fakeAlerter struct {
	events []domain.AlertEvent
	full   bool
}

func (a *fakeAlerter) Enqueue(event domain.AlertEvent) bool {
	if a.full {
		return false
	}
	a.events = append(a.events, event)
	return true
}

type fixture struct {
	fetcher *stub.CandleFetcher
	store   *memory.AssetStore
	alerter *fakeAlerter
	scanner *Scanner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: stub.NewCandleFetcher(),
		store:   memory.NewAssetStore(),
		alerter: &fakeAlerter{},
	}
	clock := func() time.Time { return time.UnixMilli(now) }
	f.scanner = New(Options{
		Resolver: ath.New(ath.Options{Fetcher: f.fetcher, Now: clock}),
		Store:    f.store,
		Alerter:  f.alerter,
		Now:      clock,
	})
	return f
}

func (f *fixture) insert(t *testing.T, a *domain.Asset) *domain.Asset {
	t.Helper()
	require.NoError(t, f.store.Insert(context.Background(), a))
	return a
}

func (f *fixture) get(t *testing.T, id string) *domain.Asset {
	t.Helper()
	a, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func candle(res domain.Resolution, ts int64, open, high, close float64) domain.Candle {
	return domain.Candle{Timestamp: ts, Open: open, High: high, Low: open / 2, Close: close, Resolution: res}
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

// trackedAsset has an ATH of athPrice stored and was last checked two hours ago.
func trackedAsset(entryPrice, athPrice float64) *domain.Asset {
	return &domain.Asset{
		ID:             "a1",
		Network:        network,
		PoolRef:        pool,
		EntryPrice:     entryPrice,
		EntryTimestamp: day0,
		AthPrice:       f64(athPrice),
		AthTimestamp:   i64(day0 + 2*day),
		AthRoiPercent:  f64(domain.RoiPercent(entryPrice, athPrice)),
		AthTier:        domain.TierMinute,
		LastCheckedAt:  i64(now - 2*hour),
		LifecycleState: domain.LifecycleAlive,
		LiquidityUsd:   50000,
	}
}

// addPeak scripts a new hour peak five hours ago with a minute candle
// resolving to close.
func (f *fixture) addPeak(high, open, close float64) int64 {
	h := now - 5*hour
	m := h + 10*minute
	f.fetcher.AddCandles(network, pool,
		candle(domain.ResolutionHour, h-hour, open/2, open, open/2),
		candle(domain.ResolutionHour, h, open, high, close),
		candle(domain.ResolutionMinute, m-minute, open/2, open, open),
		candle(domain.ResolutionMinute, m, open, high, close),
	)
	return m
}

func TestScan_ColdStartDoesNotAlert(t *testing.T) {
	f := newFixture(t)
	asset := f.insert(t, &domain.Asset{
		ID: "a1", Network: network, PoolRef: pool,
		EntryPrice: 0.1, EntryTimestamp: day0, LifecycleState: domain.LifecycleAlive,
	})

	d2 := day0 + 2*day
	f.fetcher.AddCandles(network, pool,
		candle(domain.ResolutionDay, day0, 0.1, 0.5, 0.4),
		candle(domain.ResolutionDay, day0+day, 0.4, 1.0, 0.9),
		candle(domain.ResolutionDay, d2, 0.9, 3.0, 2.0),
		candle(domain.ResolutionDay, d2+day, 2.0, 2.2, 1.0),
		candle(domain.ResolutionHour, d2+5*hour, 2.0, 3.0, 2.6),
		candle(domain.ResolutionMinute, d2+5*hour+7*minute, 2.5, 3.0, 2.8),
	)

	out, err := f.scanner.Scan(context.Background(), asset)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNewAth, out.Kind)
	require.NotNil(t, out.NewAth)
	assert.True(t, out.NewAth.Initial)
	assert.Nil(t, out.NewAth.Previous)
	assert.Equal(t, 2.8, out.NewAth.Price)
	assert.Equal(t, domain.TierMinute, out.NewAth.Tier)
	assert.False(t, out.Alerted)
	assert.Empty(t, f.alerter.events)

	stored := f.get(t, "a1")
	require.NotNil(t, stored.AthPrice)
	assert.Equal(t, 2.8, *stored.AthPrice)
	assert.Equal(t, d2+5*hour+7*minute, *stored.AthTimestamp)
	assert.Equal(t, domain.TierMinute, stored.AthTier)
	assert.Equal(t, now, *stored.LastCheckedAt)
}

func TestScan_NewAthAlerts(t *testing.T) {
	f := newFixture(t)
	asset := f.insert(t, trackedAsset(0.1, 1.0))
	ts := f.addPeak(2.0, 1.5, 1.8)

	out, err := f.scanner.Scan(context.Background(), asset)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNewAth, out.Kind)
	assert.Equal(t, 1.8, out.NewAth.Price)
	assert.Equal(t, ts, out.NewAth.Timestamp)
	assert.False(t, out.NewAth.Initial)
	require.NotNil(t, out.NewAth.Previous)
	assert.Equal(t, 1.0, *out.NewAth.Previous)
	assert.True(t, out.Alerted)

	require.Len(t, f.alerter.events, 1)
	ev := f.alerter.events[0]
	assert.Equal(t, domain.AlertNewAth, ev.Kind)
	assert.Equal(t, "a1", ev.AssetID)
	assert.Equal(t, 1.8, ev.AthPrice)
	assert.InDelta(t, 1700.0, ev.AthRoiPercent, 1e-9)
	assert.Equal(t, now, ev.TriggeredAt)

	stored := f.get(t, "a1")
	assert.Equal(t, 1.8, *stored.AthPrice)
	assert.Equal(t, ts, *stored.AthTimestamp)
}

func TestScan_AlertRule(t *testing.T) {
	tests := []struct {
		name      string
		entry     float64
		stored    float64
		newClose  float64
		wantAlert bool
	}{
		{"roi and step satisfied", 0.1, 1.0, 1.2, true},
		{"step below 20 percent", 0.1, 1.0, 1.19, false},
		{"roi below 250 percent", 1.0, 2.0, 3.0, false},
		{"roi exactly 250 percent", 1.0, 2.0, 3.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			asset := f.insert(t, trackedAsset(tt.entry, tt.stored))
			f.addPeak(tt.newClose*1.1, tt.newClose*0.9, tt.newClose)

			out, err := f.scanner.Scan(context.Background(), asset)
			require.NoError(t, err)
			assert.Equal(t, OutcomeNewAth, out.Kind)
			assert.Equal(t, tt.wantAlert, out.Alerted)
			if tt.wantAlert {
				assert.Len(t, f.alerter.events, 1)
			} else {
				assert.Empty(t, f.alerter.events)
			}
		})
	}
}

func TestScan_NothingHigherTouchesChecked(t *testing.T) {
	f := newFixture(t)
	asset := f.insert(t, trackedAsset(0.1, 1.0))
	f.fetcher.AddCandles(network, pool, candle(domain.ResolutionHour, now-3*hour, 0.8, 0.95, 0.9))

	out, err := f.scanner.Scan(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, out.Kind)
	assert.Nil(t, out.NewAth)
	assert.Equal(t, 0, f.fetcher.Calls(domain.ResolutionMinute))

	stored := f.get(t, "a1")
	assert.Equal(t, 1.0, *stored.AthPrice)
	assert.Equal(t, now, *stored.LastCheckedAt)
}

func TestScan_LostCompareAndSetIsUnchanged(t *testing.T) {
	f := newFixture(t)
	f.insert(t, trackedAsset(0.1, 5.0))

	// Scanner works from a stale snapshot that predates the 5.0 write.
	stale := trackedAsset(0.1, 1.0)
	f.addPeak(2.0, 1.5, 1.8)

	out, err := f.scanner.Scan(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, out.Kind)
	assert.Empty(t, f.alerter.events)

	stored := f.get(t, "a1")
	assert.Equal(t, 5.0, *stored.AthPrice)
	assert.Equal(t, now, *stored.LastCheckedAt)
}

func TestScan_Monotonic(t *testing.T) {
	f := newFixture(t)
	asset := f.insert(t, trackedAsset(0.1, 1.0))

	// Hour high exceeds the stored value but the wick-suppressed minute
	// price does not.
	f.addPeak(1.3, 0.7, 0.9)

	out, err := f.scanner.Scan(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, out.Kind)

	stored := f.get(t, "a1")
	assert.Equal(t, 1.0, *stored.AthPrice)
	assert.Equal(t, day0+2*day, *stored.AthTimestamp)
}

func TestScan_ResolverErrorLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	asset := f.insert(t, trackedAsset(0.1, 1.0))
	f.fetcher.SetError(network, pool, domain.ResolutionHour,
		&market.TransientFetchError{Op: "ohlcv", StatusCode: 503, Err: errors.New("unavailable")})

	_, err := f.scanner.Scan(context.Background(), asset)
	require.Error(t, err)
	assert.True(t, market.IsTransient(err))

	stored := f.get(t, "a1")
	assert.Equal(t, now-2*hour, *stored.LastCheckedAt)
}

func TestScan_ColdStartNoData(t *testing.T) {
	f := newFixture(t)
	asset := f.insert(t, &domain.Asset{
		ID: "a1", Network: network, PoolRef: pool,
		EntryPrice: 0.1, EntryTimestamp: day0, LifecycleState: domain.LifecycleAlive,
	})

	_, err := f.scanner.Scan(context.Background(), asset)
	assert.ErrorIs(t, err, ath.ErrNoData)

	stored := f.get(t, "a1")
	assert.Nil(t, stored.AthPrice)
	assert.Nil(t, stored.LastCheckedAt)
}

func TestScan_FullAlertQueueDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.alerter.full = true
	asset := f.insert(t, trackedAsset(0.1, 1.0))
	f.addPeak(2.0, 1.5, 1.8)

	out, err := f.scanner.Scan(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNewAth, out.Kind)
	assert.False(t, out.Alerted)
}

func TestScan_PersistenceError(t *testing.T) {
	f := newFixture(t)
	asset := trackedAsset(0.1, 1.0) // never inserted
	f.addPeak(2.0, 1.5, 1.8)

	_, err := f.scanner.Scan(context.Background(), asset)
	require.Error(t, err)

	var perr *storage.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// touchFailingStore rejects every TouchChecked call.
type touchFailingStore struct {
	*memory.AssetStore
}

func (s touchFailingStore) TouchChecked(context.Context, string, int64) error {
	return errors.New("connection reset")
}

func TestScan_NewAthCommitsCheckedInSameWrite(t *testing.T) {
	f := newFixture(t)
	clock := func() time.Time { return time.UnixMilli(now) }
	f.scanner = New(Options{
		Resolver: ath.New(ath.Options{Fetcher: f.fetcher, Now: clock}),
		Store:    touchFailingStore{f.store},
		Alerter:  f.alerter,
		Now:      clock,
	})
	asset := f.insert(t, trackedAsset(0.1, 1.0))
	f.addPeak(2.0, 1.5, 1.8)

	out, err := f.scanner.Scan(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNewAth, out.Kind)

	stored := f.get(t, "a1")
	assert.Equal(t, 1.8, *stored.AthPrice)
	assert.Equal(t, now, *stored.LastCheckedAt)

	// Without a new ATH the touch is the only write and its failure surfaces.
	_, err = f.scanner.Scan(context.Background(), stored)
	var perr *storage.PersistenceError
	assert.ErrorAs(t, err, &perr)
}
