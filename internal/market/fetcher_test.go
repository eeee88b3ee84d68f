package market_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/market"
	"call-ath-tracker/internal/market/stub"
)

const pool = "So11111111111111111111111111111111111111112"

func hourCandles(start int64, n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			Timestamp:  start + int64(i)*domain.ResolutionHour.Millis(),
			Open:       1,
			High:       float64(i + 1),
			Low:        1,
			Close:      1,
			Resolution: domain.ResolutionHour,
		}
	}
	return out
}

func TestFetchRange_PagesBackward(t *testing.T) {
	f := stub.NewCandleFetcher()
	start := int64(1700000000000) / 3600000 * 3600000
	f.AddCandles("solana", pool, hourCandles(start, 2500)...)

	to := start + 2499*domain.ResolutionHour.Millis()
	got, err := market.FetchRange(context.Background(), f, "solana", pool, domain.ResolutionHour, start, to)
	require.NoError(t, err)

	require.Len(t, got, 2500)
	assert.Equal(t, start, got[0].Timestamp)
	assert.Equal(t, to, got[len(got)-1].Timestamp)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1].Timestamp, got[i].Timestamp)
	}
	assert.Equal(t, 3, f.Calls(domain.ResolutionHour))
}

func TestFetchRange_SubRange(t *testing.T) {
	f := stub.NewCandleFetcher()
	start := int64(1700000000000) / 3600000 * 3600000
	f.AddCandles("solana", pool, hourCandles(start, 100)...)

	from := start + 10*domain.ResolutionHour.Millis()
	to := start + 20*domain.ResolutionHour.Millis()
	got, err := market.FetchRange(context.Background(), f, "solana", pool, domain.ResolutionHour, from, to)
	require.NoError(t, err)

	require.Len(t, got, 11)
	assert.Equal(t, from, got[0].Timestamp)
	assert.Equal(t, to, got[10].Timestamp)
	assert.Equal(t, 1, f.Calls(domain.ResolutionHour))
}

func TestFetchRange_Empty(t *testing.T) {
	f := stub.NewCandleFetcher()
	got, err := market.FetchRange(context.Background(), f, "solana", pool, domain.ResolutionDay, 0, 86400000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNormalize(t *testing.T) {
	in := []domain.Candle{
		{Timestamp: 7200000, High: 3},
		{Timestamp: 3600000, High: 2},
		{Timestamp: 3600000, High: 9}, // duplicate
		{Timestamp: 3600500, High: 4}, // misaligned
		{Timestamp: 0, High: 1},
	}
	got := market.Normalize(in, domain.ResolutionHour)

	require.Len(t, got, 3)
	assert.Equal(t, int64(0), got[0].Timestamp)
	assert.Equal(t, int64(3600000), got[1].Timestamp)
	assert.Equal(t, 2.0, got[1].High)
	assert.Equal(t, int64(7200000), got[2].Timestamp)
	assert.Equal(t, domain.ResolutionHour, got[2].Resolution)
}

func TestBudget_MinInterval(t *testing.T) {
	b := market.NewBudget("test", 0, 1, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestBudget_ContextCancelled(t *testing.T) {
	b := market.NewBudget("test", 1, 1, 0)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, b.Wait(ctx))
	cancel()
	assert.Error(t, b.Wait(ctx))
}

func TestValidatePoolRef(t *testing.T) {
	networks := market.NewNetworks(market.DefaultNetworks...)
	sol, ok := networks.Lookup("solana")
	require.True(t, ok)
	eth, ok := networks.Lookup("ETHEREUM")
	require.True(t, ok)

	assert.NoError(t, sol.ValidatePoolRef(pool))
	assert.Error(t, sol.ValidatePoolRef("0OIl"))
	assert.Error(t, sol.ValidatePoolRef("abc"))

	assert.NoError(t, eth.ValidatePoolRef("0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640"))
	assert.Error(t, eth.ValidatePoolRef("88e6a0c2ddd26feeb64f039a2c41296fcb3f564000"))
	assert.Error(t, eth.ValidatePoolRef("0xzze6a0c2ddd26feeb64f039a2c41296fcb3f5640"))

	_, ok = networks.Lookup("fantom")
	assert.False(t, ok)
	assert.Contains(t, networks.Supported(), "polygon")
}
