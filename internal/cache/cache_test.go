package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartchimera/internal/linchpin"
	"smartchimera/internal/store"
)

var (
	_ linchpin.CentralityCache = (*Memory)(nil)
	_ linchpin.CentralityCache = (*Redis)(nil)
)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Options{})

	_, ok, err := m.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	in := map[string]float64{"p1": 0.5, "p2": 0}
	require.NoError(t, m.Set(ctx, "abc", in))
	in["p1"] = 99

	got, ok, err := m.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]float64{"p1": 0.5, "p2": 0}, got)

	got["p2"] = 7
	again, _, _ := m.Get(ctx, "abc")
	assert.Equal(t, 0.0, again["p2"], "callers get copies")
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Options{TTL: time.Minute})
	m.SetClock(func() time.Time { return now })

	require.NoError(t, m.Set(ctx, "fp", map[string]float64{"a": 1}))
	now = now.Add(59 * time.Second)
	_, ok, _ := m.Get(ctx, "fp")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = m.Get(ctx, "fp")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

// TestMemory_SetClockConcurrent swaps the clock while readers run; go test -race flags unguarded writes.
func TestMemory_SetClockConcurrent(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Options{TTL: time.Hour})
	m.SetClock(func() time.Time { return base })
	require.NoError(t, m.Set(ctx, "fp", map[string]float64{"a": 1}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = m.Get(ctx, "fp")
		}()
		go func(i int) {
			defer wg.Done()
			at := base.Add(time.Duration(i) * time.Minute)
			m.SetClock(func() time.Time { return at })
		}(i)
	}
	wg.Wait()

	m.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	_, ok, err := m.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Options{MaxEntries: 2})

	require.NoError(t, m.Set(ctx, "one", nil))
	require.NoError(t, m.Set(ctx, "two", nil))
	require.NoError(t, m.Set(ctx, "one", map[string]float64{"x": 1}))
	require.NoError(t, m.Set(ctx, "three", nil))

	_, ok, _ := m.Get(ctx, "two")
	assert.False(t, ok, "two was the oldest after one was rewritten")
	_, ok, _ = m.Get(ctx, "one")
	assert.True(t, ok)
	assert.Equal(t, 2, m.Len())
}

func TestOpen(t *testing.T) {
	b, err := Open(Options{})
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Name())
	require.NoError(t, b.Close())

	b, err = Open(Options{RedisURL: "redis://localhost:6379/2", Prefix: "t:"})
	require.NoError(t, err)
	assert.Equal(t, "redis", b.Name())
	r := b.(*Redis)
	assert.Equal(t, "t:", r.opts.Prefix)
	assert.Equal(t, DefaultTTL, r.opts.TTL)
	require.NoError(t, b.Close())

	_, err = Open(Options{RedisURL: "http://not-redis"})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "chimera:centrality:00ff", key(DefaultPrefix, "00ff"))
}

func TestMemory_BacksDetector(t *testing.T) {
	ds := &store.Dataset{
		Persons:        []store.PersonRecord{{ID: "hub"}, {ID: "a"}, {ID: "b"}},
		Collaborations: []store.CollaborationRecord{{A: "hub", B: "a", Weight: 1}, {A: "hub", B: "b", Weight: 1}},
	}
	m := NewMemory(Options{})
	d := linchpin.NewDetector(store.NewMemoryGraph(ds), nil, linchpin.DefaultConfig())
	d.SetCache(m)

	first, err := d.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	cached, ok, err := m.Get(context.Background(), first.Fingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.0, cached["hub"], 1e-9)

	second, err := d.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Scores, second.Scores)
	assert.Equal(t, 1, m.Len())
}
