// Package chain resolves the logical block height: the only clock the
// ledger observes. Expiry windows and recorded timestamps are heights, so
// every operation resolves its height exactly once at entry.
package chain

import (
	"context"
	"sync/atomic"
	"time"

	"soulbind/pkg/domain"
	"soulbind/pkg/requestcontext"
)

// HeightSource reports the current logical height. Sources must be safe
// for concurrent use and must never move backwards.
type HeightSource interface {
	Current(ctx context.Context) domain.Height
}

// Resolve returns the operation height: a height pinned on the context wins
// (tests, replays), otherwise the configured source is consulted.
func Resolve(ctx context.Context, src HeightSource) domain.Height {
	if h, ok := requestcontext.Height(ctx); ok {
		return h
	}
	if src == nil {
		return 0
	}
	return src.Current(ctx)
}

// Manual is a hand-advanced source for development and tests.
type Manual struct {
	height atomic.Uint64
}

// NewManual creates a manual source positioned at start.
func NewManual(start domain.Height) *Manual {
	m := &Manual{}
	m.height.Store(uint64(start))
	return m
}

// Current returns the current height.
func (m *Manual) Current(context.Context) domain.Height {
	return domain.Height(m.height.Load())
}

// Advance moves the height forward by n and returns the new height.
func (m *Manual) Advance(n uint64) domain.Height {
	return domain.Height(m.height.Add(n))
}

// Set positions the source at h. Setting a lower height than current is the
// caller's responsibility to avoid; tests use it to pin exact boundaries.
func (m *Manual) Set(h domain.Height) {
	m.height.Store(uint64(h))
}

// Interval derives the height from elapsed wall time since a genesis
// instant: one height per fixed step. The request-scoped time from
// requestcontext anchors the calculation, so one request observes one
// height even when it spans a step boundary.
type Interval struct {
	genesis time.Time
	step    time.Duration
}

// NewInterval creates an interval source. A non-positive step defaults to
// ten seconds.
func NewInterval(genesis time.Time, step time.Duration) *Interval {
	if step <= 0 {
		step = 10 * time.Second
	}
	return &Interval{genesis: genesis, step: step}
}

// Current computes the height at the request-scoped time. Times before
// genesis clamp to zero.
func (i *Interval) Current(ctx context.Context) domain.Height {
	now := requestcontext.Now(ctx)
	if !now.After(i.genesis) {
		return 0
	}
	return domain.Height(now.Sub(i.genesis) / i.step)
}
