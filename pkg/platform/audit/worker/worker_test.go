package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "soulbind/pkg/platform/audit"
)

type captureDest struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (d *captureDest) Append(_ context.Context, event audit.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)
	return nil
}

func (d *captureDest) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func TestWorker_ForwardsEvents(t *testing.T) {
	tee := NewTee(8)
	dest := &captureDest{}
	w := NewWorker(dest, tee.Events(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	for range 3 {
		require.NoError(t, tee.Append(context.Background(), audit.Event{
			Principal: "alice",
			Action:    string(audit.EventTokenMinted),
		}))
	}
	tee.Close()

	require.NoError(t, <-done, "worker exits cleanly when the stream ends")
	assert.Equal(t, 3, dest.count())
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	tee := NewTee(8)
	w := NewWorker(&captureDest{}, tee.Events(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestWorker_DestinationFailureDoesNotStopIt(t *testing.T) {
	tee := NewTee(8)
	dest := &captureDest{err: errors.New("broker down")}
	w := NewWorker(dest, tee.Events(), nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	require.NoError(t, tee.Append(context.Background(), audit.Event{Action: string(audit.EventTokenMinted)}))
	require.NoError(t, tee.Append(context.Background(), audit.Event{Action: string(audit.EventTokenBurned)}))
	tee.Close()

	require.NoError(t, <-done, "failures are logged, not fatal")
	assert.Zero(t, dest.count())
}

func TestTee_DropsWhenFull(t *testing.T) {
	tee := NewTee(1)
	require.NoError(t, tee.Append(context.Background(), audit.Event{Action: "a"}))
	require.NoError(t, tee.Append(context.Background(), audit.Event{Action: "b"}), "full buffer drops, never blocks")

	event := <-tee.Events()
	assert.Equal(t, "a", event.Action)
	select {
	case <-tee.Events():
		t.Fatal("second event should have been dropped")
	default:
	}
}
