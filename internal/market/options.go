package market

import (
	"net/http"
	"time"
)

type clientConfig struct {
	httpClient *http.Client
	timeout    time.Duration
	budget     *Budget
	breaker    BreakerSettings
	networks   *Networks
}

// ClientOption configures provider clients.
type ClientOption func(*clientConfig)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithBudget sets the shared request budget.
func WithBudget(b *Budget) ClientOption {
	return func(c *clientConfig) {
		c.budget = b
	}
}

// WithBreaker sets circuit breaker settings.
func WithBreaker(s BreakerSettings) ClientOption {
	return func(c *clientConfig) {
		c.breaker = s
	}
}

// WithNetworks overrides the network mapping table.
func WithNetworks(n *Networks) ClientOption {
	return func(c *clientConfig) {
		c.networks = n
	}
}

func buildConfig(opts []ClientOption) clientConfig {
	cfg := clientConfig{
		timeout:  DefaultTimeout,
		breaker:  DefaultBreakerSettings(),
		networks: NewNetworks(DefaultNetworks...),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (cfg clientConfig) caller(provider, baseURL string) *httpCaller {
	c := newHTTPCaller(provider, baseURL, cfg.budget, cfg.breaker)
	if cfg.httpClient != nil {
		c.client = cfg.httpClient
	} else {
		c.client.Timeout = cfg.timeout
	}
	return c
}
