package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"call-ath-tracker/internal/domain"
	"call-ath-tracker/internal/observability"
)

const (
	DefaultQueueSize       = 256
	DefaultWorkers         = 2
	DefaultDeliveryTimeout = 10 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	Notifier        Notifier
	QueueSize       int
	Workers         int
	DeliveryTimeout time.Duration
	Logger          *zap.Logger
}

// Dispatcher is a bounded, non-blocking alert queue drained by workers.
type Dispatcher struct {
	notifier Notifier
	sink     string
	timeout  time.Duration
	logger   *zap.Logger

	queue chan domain.AlertEvent
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher and starts its workers.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Notifier == nil {
		opts.Notifier = Nop{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	d := &Dispatcher{
		notifier: opts.Notifier,
		sink:     sinkName(opts.Notifier),
		timeout:  opts.DeliveryTimeout,
		logger:   opts.Logger,
		queue:    make(chan domain.AlertEvent, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue queues event for delivery. Returns false if the event was dropped
// because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(event domain.AlertEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		observability.RecordAlertDropped()
		return false
	}

	select {
	case d.queue <- event:
		return true
	default:
		observability.RecordAlertDropped()
		d.logger.Warn("alert queue full, dropping alert",
			zap.String("asset_id", event.AssetID),
			zap.String("kind", string(event.Kind)))
		return false
	}
}

// Close stops accepting events and waits for queued events to be delivered
// or ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event domain.AlertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.notifier.Notify(ctx, event)
	observability.RecordAlert(string(event.Kind), d.sink, err)
	if err != nil {
		d.logger.Error("alert delivery failed",
			zap.String("asset_id", event.AssetID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
	}
}
