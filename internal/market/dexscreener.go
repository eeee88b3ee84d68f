package market

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultDexScreenerURL is the public DexScreener API root.
const DefaultDexScreenerURL = "https://api.dexscreener.com"

// MaxPairsPerCall is the DexScreener batch limit.
const MaxPairsPerCall = 30

// PairSnapshot is the current market state of one pool.
type PairSnapshot struct {
	PoolRef      string
	PriceUsd     float64
	LiquidityUsd float64
	Volume24h    float64
	Found        bool // false when the provider returned nothing for the pool
}

// PairsClient returns liquidity snapshots for pools.
type PairsClient interface {
	GetPairsBatch(ctx context.Context, network string, poolRefs []string) ([]PairSnapshot, error)
}

// DexScreenerClient implements PairsClient over the DexScreener pairs endpoint.
type DexScreenerClient struct {
	caller   *httpCaller
	networks *Networks
}

// NewDexScreenerClient creates a pairs client. An empty baseURL uses the
// public API.
func NewDexScreenerClient(baseURL string, opts ...ClientOption) *DexScreenerClient {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	cfg := buildConfig(opts)
	return &DexScreenerClient{
		caller:   cfg.caller(ProviderDexScreener, strings.TrimRight(baseURL, "/")),
		networks: cfg.networks,
	}
}

type pairsResponse struct {
	Pairs []struct {
		ChainID     string `json:"chainId"`
		PairAddress string `json:"pairAddress"`
		PriceUsd    string `json:"priceUsd"`
		Liquidity   *struct {
			Usd float64 `json:"usd"`
		} `json:"liquidity"`
		Volume struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
	} `json:"pairs"`
}

// GetPairsBatch returns one snapshot per requested pool, in request order.
// Pools missing from a successful response are reported with Found=false.
// Unknown pools come back in a 200 body, so a 404 fails the whole batch.
func (c *DexScreenerClient) GetPairsBatch(ctx context.Context, network string, poolRefs []string) ([]PairSnapshot, error) {
	if len(poolRefs) == 0 {
		return nil, nil
	}
	if len(poolRefs) > MaxPairsPerCall {
		return nil, fmt.Errorf("get pairs: %d pools exceeds batch limit %d", len(poolRefs), MaxPairsPerCall)
	}
	nw, ok := c.networks.Lookup(network)
	if !ok {
		return nil, &UnsupportedNetworkError{Network: network, Provider: ProviderDexScreener}
	}

	escaped := make([]string, len(poolRefs))
	for i, ref := range poolRefs {
		escaped[i] = url.PathEscape(ref)
	}
	path := fmt.Sprintf("/latest/dex/pairs/%s/%s", url.PathEscape(nw.DexScreener), strings.Join(escaped, ","))

	var resp pairsResponse
	err := c.caller.getJSON(ctx, "pairs", path, &resp)
	if errors.Is(err, ErrPoolNotFound) {
		return nil, &DataFormatError{Op: "get pairs", Detail: fmt.Sprintf("batch of %d pools returned 404", len(poolRefs)), Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("get pairs for %s: %w", network, err)
	}

	byPool := make(map[string]PairSnapshot, len(resp.Pairs))
	for _, p := range resp.Pairs {
		snap := PairSnapshot{
			PoolRef:   p.PairAddress,
			Volume24h: p.Volume.H24,
			Found:     true,
		}
		if p.Liquidity != nil {
			snap.LiquidityUsd = p.Liquidity.Usd
		}
		if p.PriceUsd != "" {
			price, perr := strconv.ParseFloat(p.PriceUsd, 64)
			if perr != nil {
				return nil, &DataFormatError{Op: "get pairs", Detail: fmt.Sprintf("price %q for %s", p.PriceUsd, p.PairAddress), Err: perr}
			}
			snap.PriceUsd = price
		}
		byPool[strings.ToLower(p.PairAddress)] = snap
	}

	out := make([]PairSnapshot, len(poolRefs))
	for i, ref := range poolRefs {
		snap, ok := byPool[strings.ToLower(ref)]
		if !ok {
			out[i] = PairSnapshot{PoolRef: ref}
			continue
		}
		snap.PoolRef = ref
		out[i] = snap
	}
	return out, nil
}

var _ PairsClient = (*DexScreenerClient)(nil)
