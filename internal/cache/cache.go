// Package cache stores centrality scores keyed by collaboration-graph
// fingerprint. Two backends exist: Redis for a shared cache across API
// replicas, and an in-process map for the CLI and tests.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"smartchimera/internal/linchpin"
	"smartchimera/internal/logging"
)

const (
	// DefaultPrefix namespaces every key.
	DefaultPrefix = "chimera:centrality:"
	// DefaultTTL bounds how long a fingerprint is trusted.
	DefaultTTL = 6 * time.Hour
	// DefaultMaxEntries bounds the in-process backend.
	DefaultMaxEntries = 64
)

// Options configures either backend.
type Options struct {
	RedisURL   string
	Prefix     string
	TTL        time.Duration
	MaxEntries int
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	return o
}

// Backend is a CentralityCache that may hold connections.
type Backend interface {
	linchpin.CentralityCache
	Name() string
	Close() error
}

// Open returns a Redis backend when a URL is configured, else the in-process one.
func Open(opts Options) (Backend, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(opts.RedisURL) == "" {
		logging.CacheDebug("no redis url configured, using in-process cache")
		return NewMemory(opts), nil
	}
	r, err := NewRedis(opts)
	if err != nil {
		return nil, fmt.Errorf("open centrality cache: %w", err)
	}
	return r, nil
}

// key builds the namespaced key for a fingerprint.
func key(prefix, fingerprint string) string {
	return prefix + fingerprint
}

// =============================================================================
// IN-PROCESS BACKEND
// =============================================================================

type memEntry struct {
	scores  map[string]float64
	expires time.Time
}

// Memory is a bounded in-process cache. The oldest entry is evicted first.
type Memory struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]memEntry
	order   []string
	now     func() time.Time
}

// NewMemory creates an in-process cache.
func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:    opts.withDefaults(),
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// SetClock overrides the expiry clock.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Name() string { return "memory" }

// Get returns a copy of the cached scores.
func (m *Memory) Get(_ context.Context, fingerprint string) (map[string]float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(m.opts.Prefix, fingerprint)
	e, ok := m.entries[k]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		m.drop(k)
		return nil, false, nil
	}
	return copyScores(e.scores), true, nil
}

// Set stores a copy of scores.
func (m *Memory) Set(_ context.Context, fingerprint string, scores map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(m.opts.Prefix, fingerprint)
	if _, ok := m.entries[k]; ok {
		m.drop(k)
	}
	for len(m.order) >= m.opts.MaxEntries {
		m.drop(m.order[0])
	}
	m.entries[k] = memEntry{scores: copyScores(scores), expires: m.now().Add(m.opts.TTL)}
	m.order = append(m.order, k)
	return nil
}

// Len reports the number of live and expired-but-unswept entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }

func (m *Memory) drop(k string) {
	delete(m.entries, k)
	for i, o := range m.order {
		if o == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func copyScores(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
