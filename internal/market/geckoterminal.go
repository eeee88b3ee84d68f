package market

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"call-ath-tracker/internal/domain"
)

// DefaultGeckoTerminalURL is the public GeckoTerminal API root.
const DefaultGeckoTerminalURL = "https://api.geckoterminal.com/api/v2"

// GeckoTerminalClient implements CandleFetcher over the GeckoTerminal OHLCV
// endpoint.
type GeckoTerminalClient struct {
	caller   *httpCaller
	networks *Networks
}

// NewGeckoTerminalClient creates a candle client. An empty baseURL uses the
// public API.
func NewGeckoTerminalClient(baseURL string, opts ...ClientOption) *GeckoTerminalClient {
	if baseURL == "" {
		baseURL = DefaultGeckoTerminalURL
	}
	cfg := buildConfig(opts)
	return &GeckoTerminalClient{
		caller:   cfg.caller(ProviderGeckoTerminal, strings.TrimRight(baseURL, "/")),
		networks: cfg.networks,
	}
}

type ohlcvResponse struct {
	Data struct {
		Attributes struct {
			OHLCVList [][]float64 `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// GetCandles implements CandleFetcher.
func (c *GeckoTerminalClient) GetCandles(ctx context.Context, network, poolRef string, res domain.Resolution, limit int, before *int64) ([]domain.Candle, error) {
	if !res.IsValid() {
		return nil, &DataFormatError{Op: "get candles", Detail: fmt.Sprintf("invalid resolution %q", res)}
	}
	nw, ok := c.networks.Lookup(network)
	if !ok {
		return nil, &UnsupportedNetworkError{Network: network, Provider: ProviderGeckoTerminal}
	}
	if err := nw.ValidatePoolRef(poolRef); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("aggregate", "1")
	q.Set("limit", strconv.Itoa(ClampLimit(limit)))
	q.Set("currency", "usd")
	if before != nil {
		// Provider cursor is in seconds; round up so the candle starting
		// right below the ms bound stays in range.
		q.Set("before_timestamp", strconv.FormatInt((*before+999)/1000, 10))
	}
	path := fmt.Sprintf("/networks/%s/pools/%s/ohlcv/%s?%s",
		url.PathEscape(nw.GeckoTerminal), url.PathEscape(poolRef), res, q.Encode())

	var resp ohlcvResponse
	if err := c.caller.getJSON(ctx, "ohlcv_"+res.String(), path, &resp); err != nil {
		return nil, fmt.Errorf("get %s candles for %s/%s: %w", res, network, poolRef, err)
	}

	candles := make([]domain.Candle, 0, len(resp.Data.Attributes.OHLCVList))
	for i, row := range resp.Data.Attributes.OHLCVList {
		if len(row) < 5 {
			return nil, &DataFormatError{
				Op:     "get candles",
				Detail: fmt.Sprintf("row %d has %d fields, want at least 5", i, len(row)),
			}
		}
		candle := domain.Candle{
			Timestamp:  int64(row[0]) * 1000,
			Open:       row[1],
			High:       row[2],
			Low:        row[3],
			Close:      row[4],
			Resolution: res,
		}
		if len(row) > 5 {
			candle.Volume = row[5]
		}
		if before != nil && candle.Timestamp >= *before {
			continue
		}
		candles = append(candles, candle)
	}
	return Normalize(candles, res), nil
}

var _ CandleFetcher = (*GeckoTerminalClient)(nil)
