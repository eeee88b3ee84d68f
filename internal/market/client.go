package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"call-ath-tracker/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout         = 15 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerOpenFor  = 30 * time.Second
	DefaultBreakerHalfOpen = 1
	maxErrorBodyBytes      = 512
	defaultUserAgent       = "call-ath-tracker/1.0"
)

// BreakerSettings configures the per-client circuit breaker.
type BreakerSettings struct {
	ConsecutiveFailures uint32        // failures that open the breaker
	OpenTimeout         time.Duration // time spent open before half-open probing
	HalfOpenRequests    uint32        // probes allowed while half-open
}

// DefaultBreakerSettings returns the default breaker configuration.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: DefaultBreakerFailures,
		OpenTimeout:         DefaultBreakerOpenFor,
		HalfOpenRequests:    DefaultBreakerHalfOpen,
	}
}

// httpCaller is the transport shared by provider clients: budget wait,
// breaker, status mapping and JSON decoding.
type httpCaller struct {
	provider string
	baseURL  string
	client   *http.Client
	budget   *Budget
	breaker  *gobreaker.CircuitBreaker
}

func newHTTPCaller(provider, baseURL string, budget *Budget, bs BreakerSettings) *httpCaller {
	if budget == nil {
		budget = Unlimited(provider)
	}
	if bs.ConsecutiveFailures == 0 {
		bs = DefaultBreakerSettings()
	}

	st := gobreaker.Settings{Name: provider}
	st.MaxRequests = bs.HalfOpenRequests
	st.Timeout = bs.OpenTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
	}
	// Only transport-level trouble counts against the breaker.
	st.IsSuccessful = func(err error) bool {
		return err == nil || !IsTransient(err)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		observability.SetBreakerState(name, int(to))
	}

	return &httpCaller{
		provider: provider,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: DefaultTimeout},
		budget:   budget,
		breaker:  gobreaker.NewCircuitBreaker(st),
	}
}

// getJSON issues a GET for path (relative to baseURL) and decodes the body
// into out. endpoint labels metrics.
func (c *httpCaller) getJSON(ctx context.Context, endpoint, path string, out interface{}) error {
	op := c.provider + " " + endpoint

	if err := c.budget.Wait(ctx); err != nil {
		return &TransientFetchError{Op: op, Err: fmt.Errorf("budget wait: %w", err)}
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, op, path, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &TransientFetchError{Op: op, Err: err}
	}

	observability.RecordProviderRequest(c.provider, endpoint, outcomeLabel(err), time.Since(start).Seconds())
	return err
}

func (c *httpCaller) do(ctx context.Context, op, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransientFetchError{Op: op, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrPoolNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return &TransientFetchError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("rate limited")}
	case resp.StatusCode >= 500:
		return &TransientFetchError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(readSnippet(resp.Body))}
	case resp.StatusCode != http.StatusOK:
		return &DataFormatError{Op: op, Detail: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, readSnippet(resp.Body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientFetchError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DataFormatError{Op: op, Detail: "decode response", Err: err}
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	return string(b)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPoolNotFound):
		return "not_found"
	case IsTransient(err):
		return "transient"
	case IsDataFormat(err):
		return "data_format"
	default:
		return "error"
	}
}
