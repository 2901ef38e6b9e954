// Package publisher emits audit events into the pipeline: a primary store
// append, then best-effort fan-out to any configured sinks. In async mode
// events are buffered and the request path never blocks on persistence; a
// full buffer drops the event rather than stalling the ledger operation.
package publisher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"soulbind/pkg/domain"
	audit "soulbind/pkg/platform/audit"
)

// ErrBufferFull is returned when an async emit finds no buffer space.
var ErrBufferFull = errors.New("audit buffer full")

var errClosed = errors.New("audit publisher closed")

var (
	eventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soulbind_audit_events_emitted_total",
		Help: "Audit events accepted by the publisher, by category",
	}, []string{"category"})
	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soulbind_audit_events_dropped_total",
		Help: "Audit events dropped before reaching the store, by reason",
	}, []string{"reason"})
)

// Publisher writes events to a store and fans them out to sinks.
type Publisher struct {
	store   audit.Store
	sinks   []audit.Appender
	sampler *audit.Sampler

	mu      sync.RWMutex
	closed  bool
	inbox   chan audit.Event
	drained chan struct{}
	once    sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given
// buffer size. Emit then enqueues and returns; a worker goroutine owns
// persistence. Close drains whatever is still buffered.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// WithSink adds a forwarding destination (e.g. a Kafka producer). Sink
// failures are counted, never surfaced: the store is the system of record.
func WithSink(sink audit.Appender) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithSampler installs per-action sampling, applied before buffering.
func WithSampler(sampler *audit.Sampler) Option {
	return func(p *Publisher) {
		p.sampler = sampler
	}
}

// NewPublisher constructs a publisher over the given store. Without
// options it is synchronous: Emit returns once the store append finishes.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.inbox != nil {
		go p.run()
	}
	return p
}

// Emit records an event. A zero timestamp is stamped with the current
// time; an empty category is derived from the action.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.sampler != nil && !p.sampler.ShouldSample(event.Action) {
		eventsDropped.WithLabelValues("sampled").Inc()
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errClosed
	}

	if p.inbox == nil {
		return p.deliver(ctx, event)
	}

	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		eventsDropped.WithLabelValues("cancelled").Inc()
		return ctx.Err()
	default:
		eventsDropped.WithLabelValues("buffer_full").Inc()
		return ErrBufferFull
	}
}

// List returns the stored events for a principal.
func (p *Publisher) List(ctx context.Context, principal domain.Principal) ([]audit.Event, error) {
	return p.store.ListByPrincipal(ctx, principal)
}

// Close stops accepting events and, in async mode, drains the buffer
// before returning.
func (p *Publisher) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		if p.inbox != nil {
			close(p.inbox)
		}
		p.mu.Unlock()

		if p.inbox != nil {
			<-p.drained
		}
	})
}

func (p *Publisher) run() {
	defer close(p.drained)
	for event := range p.inbox {
		if err := p.deliver(context.Background(), event); err != nil {
			eventsDropped.WithLabelValues("store_error").Inc()
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	eventsEmitted.WithLabelValues(string(event.Category)).Inc()
	for _, sink := range p.sinks {
		if err := sink.Append(ctx, event); err != nil {
			eventsDropped.WithLabelValues("sink_error").Inc()
		}
	}
	return nil
}
