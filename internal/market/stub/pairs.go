package stub

import (
	"context"
	"sync"

	"call-ath-tracker/internal/market"
)

// PairsClient implements market.PairsClient from a snapshot map.
type PairsClient struct {
	mu        sync.Mutex
	Snapshots map[string]market.PairSnapshot // keyed by network + "/" + pool
	Err       error
	Batches   [][]string
}

// NewPairsClient creates a new stub pairs client.
func NewPairsClient() *PairsClient {
	return &PairsClient{Snapshots: make(map[string]market.PairSnapshot)}
}

// SetLiquidity registers a found pool with the given liquidity.
func (c *PairsClient) SetLiquidity(network, pool string, liquidityUsd float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Snapshots[network+"/"+pool] = market.PairSnapshot{PoolRef: pool, LiquidityUsd: liquidityUsd, Found: true}
}

// GetPairsBatch returns snapshots in request order; unknown pools are not found.
func (c *PairsClient) GetPairsBatch(_ context.Context, network string, poolRefs []string) ([]market.PairSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Batches = append(c.Batches, append([]string(nil), poolRefs...))
	if c.Err != nil {
		return nil, c.Err
	}
	out := make([]market.PairSnapshot, len(poolRefs))
	for i, ref := range poolRefs {
		snap, ok := c.Snapshots[network+"/"+ref]
		if !ok {
			snap = market.PairSnapshot{PoolRef: ref}
		}
		out[i] = snap
	}
	return out, nil
}

var _ market.PairsClient = (*PairsClient)(nil)
