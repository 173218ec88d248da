// Package notify delivers out-of-band notifications for approval
// workflow transitions. Delivery is best effort: the engine never waits
// on it and a failed send never affects approval state.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers a message to a set of recipients.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, subject, htmlBody string) error
}

// Message is a queued notification. RequestID links the message back to
// the approval request it concerns, for failure audit records.
type Message struct {
	RequestID  string
	Recipients []string
	Subject    string
	HTMLBody   string
}

// Dispatcher sends messages asynchronously through a Notifier. Each
// dispatch runs in its own goroutine; failures are logged and dropped.
type Dispatcher struct {
	notifier Notifier
	logger   zerolog.Logger
	timeout  time.Duration

	wg sync.WaitGroup

	// onFailure is invoked after a failed send, for metrics and audit.
	onFailure func(msg Message, err error)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout sets the per-send timeout.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.timeout = d
	}
}

// WithFailureHook registers a callback invoked when a send fails.
func WithFailureHook(fn func(msg Message, err error)) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.onFailure = fn
	}
}

// NewDispatcher creates a dispatcher around the given notifier.
func NewDispatcher(notifier Notifier, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifier: notifier,
		logger:   logger,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch queues a message for delivery and returns immediately. The
// send runs on a fresh context so it survives the caller's request
// lifetime.
func (d *Dispatcher) Dispatch(msg Message) {
	if d == nil || d.notifier == nil || len(msg.Recipients) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, msg.Recipients, msg.Subject, msg.HTMLBody); err != nil {
			d.logger.Warn().
				Err(err).
				Strs("recipients", msg.Recipients).
				Str("subject", msg.Subject).
				Msg("notification delivery failed")
			if d.onFailure != nil {
				d.onFailure(msg, err)
			}
			return
		}

		d.logger.Debug().
			Strs("recipients", msg.Recipients).
			Str("subject", msg.Subject).
			Msg("notification delivered")
	}()
}

// Wait blocks until all in-flight sends finish. Used at shutdown and in
// tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
