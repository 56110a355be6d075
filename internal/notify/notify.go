// Package notify delivers domain events to Discord, RabbitMQ and email.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
)

// Sink is a single delivery channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, event core.Event) error
}

// Dispatcher fans events out to every sink in the background. Delivery failures
// are logged and never reach the caller.
type Dispatcher struct {
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Each delivery is bounded by timeout.
func NewDispatcher(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{sinks: sinks, logger: logger.Named("notify"), timeout: timeout}
}

// Notify implements core.Notifier.
func (d *Dispatcher) Notify(ctx context.Context, event core.Event) {
	base := context.WithoutCancel(ctx)
	for _, sink := range d.sinks {
		d.wg.Add(1)
		go func(sink Sink) {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()
			if err := sink.Send(sendCtx, event); err != nil {
				d.logger.Warn("Notification delivery failed",
					zap.String("sink", sink.Name()),
					zap.String("event", string(event.Type)),
					zap.Error(err))
			}
		}(sink)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}
