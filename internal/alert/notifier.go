// Package alert delivers ATH and audit alerts to the configured sinks.
//
// Delivery is best effort: the Dispatcher never blocks callers, drops
// alerts when its queue is full, and only logs delivery failures.
package alert

import (
	"context"
	"errors"

	"call-ath-tracker/internal/domain"
)

// Notifier delivers one alert event.
type Notifier interface {
	Notify(ctx context.Context, event domain.AlertEvent) error
}

// named is implemented by sinks that report a metric label.
type named interface {
	Name() string
}

func sinkName(n Notifier) string {
	if s, ok := n.(named); ok {
		return s.Name()
	}
	return "notifier"
}

// Multi fans an event out to every sink. All sinks are attempted; errors
// are joined.
type Multi []Notifier

// Name implements named.
func (m Multi) Name() string { return "multi" }

// Notify delivers event to every sink.
func (m Multi) Notify(ctx context.Context, event domain.AlertEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, domain.AlertEvent) error { return nil }
