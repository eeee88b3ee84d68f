package market

import (
	"errors"
	"fmt"
)

// ErrPoolNotFound is returned when the provider does not know the pool.
var ErrPoolNotFound = errors.New("pool not found")

// TransientFetchError covers network failures, timeouts, throttling, 5xx
// responses and an open circuit breaker. The asset is retried on its next
// scheduled tick; callers do not retry inline.
type TransientFetchError struct {
	Op         string // request description
	StatusCode int    // 0 for transport-level failures
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient fetch error: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient fetch error: %s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// DataFormatError is returned for payloads that cannot be decoded into
// candles or pair snapshots.
type DataFormatError struct {
	Op     string
	Detail string
	Err    error
}

func (e *DataFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data format error: %s: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("data format error: %s: %s", e.Op, e.Detail)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// UnsupportedNetworkError is returned when an asset's network has no mapping
// for the provider.
type UnsupportedNetworkError struct {
	Network  string
	Provider string
}

func (e *UnsupportedNetworkError) Error() string {
	return fmt.Sprintf("network %q is not supported by %s", e.Network, e.Provider)
}

// IsTransient reports whether err is a TransientFetchError.
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsDataFormat reports whether err is a DataFormatError.
func IsDataFormat(err error) bool {
	var de *DataFormatError
	return errors.As(err, &de)
}

// IsUnsupportedNetwork reports whether err is an UnsupportedNetworkError.
func IsUnsupportedNetwork(err error) bool {
	var ue *UnsupportedNetworkError
	return errors.As(err, &ue)
}
