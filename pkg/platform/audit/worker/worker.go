// Package worker moves audit events from an in-process buffer to a
// forwarding destination, keeping slow producers (Kafka, typically) off
// the request path entirely.
package worker

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "soulbind/pkg/platform/audit"
)

var teeDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "soulbind_audit_tee_dropped_total",
	Help: "Audit events dropped at the tee because the forward buffer was full",
})

// Tee is an Appender that buffers events onto a channel. Install it as a
// publisher sink and hand Events to a Worker. Append never blocks; when
// the buffer is full the event is dropped from forwarding only, the store
// copy is unaffected.
type Tee struct {
	ch chan audit.Event
}

func NewTee(buffer int) *Tee {
	if buffer <= 0 {
		buffer = 256
	}
	return &Tee{ch: make(chan audit.Event, buffer)}
}

func (t *Tee) Append(_ context.Context, event audit.Event) error {
	select {
	case t.ch <- event:
		return nil
	default:
		teeDropped.Inc()
		return nil
	}
}

// Events is the channel a Worker consumes.
func (t *Tee) Events() <-chan audit.Event {
	return t.ch
}

// Close ends the stream; a Worker draining it returns once empty.
func (t *Tee) Close() {
	close(t.ch)
}

// Worker consumes audit events from a channel and forwards them. It keeps
// background processing testable without wiring queue implementations
// into the publisher. Forwarding is best-effort: a destination failure is
// logged and the worker moves on, so a broker outage cannot stop the
// pipeline.
type Worker struct {
	dest   audit.Appender
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(dest audit.Appender, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{dest: dest, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.dest.Append(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "audit forward failed",
					"action", event.Action,
					"error", err,
				)
			}
		}
	}
}
