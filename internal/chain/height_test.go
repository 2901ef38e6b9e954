package chain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"soulbind/pkg/domain"
	"soulbind/pkg/requestcontext"
)

func TestResolve(t *testing.T) {
	t.Run("context height wins over source", func(t *testing.T) {
		src := NewManual(500)
		ctx := requestcontext.WithHeight(context.Background(), 42)
		assert.Equal(t, domain.Height(42), Resolve(ctx, src))
	})

	t.Run("falls back to source", func(t *testing.T) {
		src := NewManual(500)
		assert.Equal(t, domain.Height(500), Resolve(context.Background(), src))
	})

	t.Run("nil source resolves zero", func(t *testing.T) {
		assert.Equal(t, domain.Height(0), Resolve(context.Background(), nil))
	})
}

func TestManual(t *testing.T) {
	m := NewManual(10)
	ctx := context.Background()

	assert.Equal(t, domain.Height(10), m.Current(ctx))
	assert.Equal(t, domain.Height(13), m.Advance(3))
	assert.Equal(t, domain.Height(13), m.Current(ctx))

	m.Set(100)
	assert.Equal(t, domain.Height(100), m.Current(ctx))

	t.Run("concurrent advances are lost-update free", func(t *testing.T) {
		m := NewManual(0)
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Advance(1)
			}()
		}
		wg.Wait()
		assert.Equal(t, domain.Height(100), m.Current(context.Background()))
	})
}

func TestInterval(t *testing.T) {
	genesis := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	src := NewInterval(genesis, 10*time.Second)

	tests := []struct {
		name string
		at   time.Time
		want domain.Height
	}{
		{"at genesis", genesis, 0},
		{"before genesis clamps", genesis.Add(-time.Hour), 0},
		{"mid first step", genesis.Add(9 * time.Second), 0},
		{"first boundary", genesis.Add(10 * time.Second), 1},
		{"many steps", genesis.Add(1000 * time.Second), 100},
		{"just inside a step", genesis.Add(1009 * time.Second), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := requestcontext.WithTime(context.Background(), tt.at)
			assert.Equal(t, tt.want, src.Current(ctx))
		})
	}

	t.Run("defaults step when non-positive", func(t *testing.T) {
		src := NewInterval(genesis, 0)
		ctx := requestcontext.WithTime(context.Background(), genesis.Add(25*time.Second))
		assert.Equal(t, domain.Height(2), src.Current(ctx))
	})

	t.Run("one request observes one height", func(t *testing.T) {
		ctx := requestcontext.WithTime(context.Background(), genesis.Add(42*time.Second))
		first := src.Current(ctx)
		second := src.Current(ctx)
		assert.Equal(t, first, second)
	})
}
