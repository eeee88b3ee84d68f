package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/market"
	"call-ath-tracker/internal/market/stub"
	"call-ath-tracker/internal/storage/memory"
)

var now = time.UnixMilli(1704067200000)

func i64(v int64) *int64 { return &v }

func TestClassify(t *testing.T) {
	c := NewClassifier(Config{})
	alive := &domain.Asset{LifecycleState: domain.LifecycleAlive, LiquidityUsd: 50000}
	dead := &domain.Asset{LifecycleState: domain.LifecycleDead, DeadReason: domain.DeadReasonLowLiquidity}

	tests := []struct {
		name  string
		asset *domain.Asset
		snap  market.PairSnapshot
		want  Decision
	}{
		{"alive stays alive", alive, market.PairSnapshot{Found: true, LiquidityUsd: 1000},
			Decision{State: domain.LifecycleAlive}},
		{"alive drops below threshold", alive, market.PairSnapshot{Found: true, LiquidityUsd: 999.99},
			Decision{State: domain.LifecycleDead, Reason: domain.DeadReasonLowLiquidity, Transition: true}},
		{"delisted regardless of known liquidity", alive, market.PairSnapshot{Found: false, LiquidityUsd: 1e6},
			Decision{State: domain.LifecycleDead, Reason: domain.DeadReasonUnresolvable, Transition: true}},
		{"dead revives", dead, market.PairSnapshot{Found: true, LiquidityUsd: 1500},
			Decision{State: domain.LifecycleAlive, Transition: true}},
		{"dead stays dead", dead, market.PairSnapshot{Found: true, LiquidityUsd: 10},
			Decision{State: domain.LifecycleDead, Reason: domain.DeadReasonLowLiquidity}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.asset, tt.snap))
		})
	}
}

func TestProbeDue(t *testing.T) {
	c := NewClassifier(Config{})
	ms := now.UnixMilli()
	hour := time.Hour.Milliseconds()

	tests := []struct {
		name  string
		asset *domain.Asset
		want  bool
	}{
		{"alive always", &domain.Asset{LifecycleState: domain.LifecycleAlive, LiquidityCheckedAt: i64(ms)}, true},
		{"dead never checked", &domain.Asset{LifecycleState: domain.LifecycleDead}, true},
		{"low liquidity within day", &domain.Asset{LifecycleState: domain.LifecycleDead,
			DeadReason: domain.DeadReasonLowLiquidity, LiquidityCheckedAt: i64(ms - 23*hour)}, false},
		{"low liquidity after day", &domain.Asset{LifecycleState: domain.LifecycleDead,
			DeadReason: domain.DeadReasonLowLiquidity, LiquidityCheckedAt: i64(ms - 24*hour)}, true},
		{"unresolvable after day", &domain.Asset{LifecycleState: domain.LifecycleDead,
			DeadReason: domain.DeadReasonUnresolvable, LiquidityCheckedAt: i64(ms - 48*hour)}, false},
		{"unresolvable after week", &domain.Asset{LifecycleState: domain.LifecycleDead,
			DeadReason: domain.DeadReasonUnresolvable, LiquidityCheckedAt: i64(ms - 168*hour)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ProbeDue(tt.asset, now))

			// The store filter must select exactly the due assets.
			store := memory.NewAssetStore()
			a := *tt.asset
			a.ID = "x"
			require.NoError(t, store.Insert(context.Background(), &a))
			got, err := store.ListProbeCandidates(context.Background(), c.ProbeFilter(now, 0))
			require.NoError(t, err)
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}
}

func newRefresher(pairs market.PairsClient, store *memory.AssetStore) *Refresher {
	return NewRefresher(RefresherOptions{
		Pairs: pairs,
		Store: store,
		Now:   func() time.Time { return now },
	})
}

func insert(t *testing.T, store *memory.AssetStore, a *domain.Asset) *domain.Asset {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), a))
	got, err := store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	return got
}

func TestRefresh_Transitions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAssetStore()
	pairs := stub.NewPairsClient()

	healthy := insert(t, store, &domain.Asset{ID: "healthy", Network: "solana", PoolRef: "p1", LiquidityUsd: 40000})
	draining := insert(t, store, &domain.Asset{ID: "draining", Network: "solana", PoolRef: "p2", LiquidityUsd: 3000})
	delisted := insert(t, store, &domain.Asset{ID: "delisted", Network: "ethereum", PoolRef: "p3", LiquidityUsd: 90000})
	reviving := insert(t, store, &domain.Asset{ID: "reviving", Network: "solana", PoolRef: "p4",
		LifecycleState: domain.LifecycleDead, DeadReason: domain.DeadReasonLowLiquidity})

	pairs.SetLiquidity("solana", "p1", 45000)
	pairs.SetLiquidity("solana", "p2", 500)
	pairs.SetLiquidity("solana", "p4", 2500)

	report, err := newRefresher(pairs, store).Refresh(ctx, []*domain.Asset{healthy, draining, delisted, reviving})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Checked)
	assert.Empty(t, report.Failures)
	assert.ElementsMatch(t, []Change{
		{AssetID: "draining", From: domain.LifecycleAlive, To: domain.LifecycleDead, Reason: domain.DeadReasonLowLiquidity},
		{AssetID: "delisted", From: domain.LifecycleAlive, To: domain.LifecycleDead, Reason: domain.DeadReasonUnresolvable},
		{AssetID: "reviving", From: domain.LifecycleDead, To: domain.LifecycleAlive},
	}, report.Changes)

	got, err := store.GetByID(ctx, "delisted")
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleDead, got.LifecycleState)
	assert.Equal(t, domain.DeadReasonUnresolvable, got.DeadReason)
	assert.Equal(t, 0.0, got.LiquidityUsd)
	assert.Equal(t, now.UnixMilli(), *got.LiquidityCheckedAt)

	got, err = store.GetByID(ctx, "reviving")
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleAlive, got.LifecycleState)
	assert.Equal(t, domain.DeadReasonNone, got.DeadReason)
	assert.Equal(t, 2500.0, got.LiquidityUsd)

	got, err = store.GetByID(ctx, "healthy")
	require.NoError(t, err)
	assert.Equal(t, 45000.0, got.LiquidityUsd)
}

func TestRefresh_BatchesByNetwork(t *testing.T) {
	store := memory.NewAssetStore()
	pairs := stub.NewPairsClient()

	var assets []*domain.Asset
	for i := 0; i < 35; i++ {
		pool := fmt.Sprintf("sol-%02d", i)
		pairs.SetLiquidity("solana", pool, 5000)
		assets = append(assets, insert(t, store, &domain.Asset{ID: pool, Network: "solana", PoolRef: pool}))
	}
	pairs.SetLiquidity("base", "b-1", 5000)
	assets = append(assets, insert(t, store, &domain.Asset{ID: "b-1", Network: "base", PoolRef: "b-1"}))

	report, err := newRefresher(pairs, store).Refresh(context.Background(), assets)
	require.NoError(t, err)
	assert.Equal(t, 36, report.Checked)

	require.Len(t, pairs.Batches, 3)
	assert.Equal(t, []string{"b-1"}, pairs.Batches[0])
	assert.Len(t, pairs.Batches[1], market.MaxPairsPerCall)
	assert.Len(t, pairs.Batches[2], 5)
}

func TestRefresh_SkipsDeadUntilProbeDue(t *testing.T) {
	store := memory.NewAssetStore()
	pairs := stub.NewPairsClient()
	pairs.SetLiquidity("solana", "p1", 5000)

	recent := insert(t, store, &domain.Asset{ID: "recent", Network: "solana", PoolRef: "p1",
		LifecycleState: domain.LifecycleDead, DeadReason: domain.DeadReasonLowLiquidity,
		LiquidityCheckedAt: i64(now.Add(-time.Hour).UnixMilli())})

	report, err := newRefresher(pairs, store).Refresh(context.Background(), []*domain.Asset{recent})
	require.NoError(t, err)
	assert.Equal(t, 1, report.NotDue)
	assert.Equal(t, 0, report.Checked)
	assert.Empty(t, pairs.Batches)
}

func TestRefresh_BatchErrorFailsChunkOnly(t *testing.T) {
	store := memory.NewAssetStore()
	pairs := stub.NewPairsClient()
	pairs.Err = &market.TransientFetchError{Op: "pairs", StatusCode: 503, Err: errors.New("unavailable")}

	a := insert(t, store, &domain.Asset{ID: "a", Network: "solana", PoolRef: "p1", LiquidityUsd: 5000})
	b := insert(t, store, &domain.Asset{ID: "b", Network: "solana", PoolRef: "p2", LiquidityUsd: 5000})

	report, err := newRefresher(pairs, store).Refresh(context.Background(), []*domain.Asset{a, b})
	require.NoError(t, err)
	require.Len(t, report.Failures, 2)
	assert.True(t, market.IsTransient(report.Failures[0].Err))

	got, err := store.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleAlive, got.LifecycleState)
	assert.Nil(t, got.LiquidityCheckedAt)
}
