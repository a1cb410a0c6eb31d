package linchpin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartchimera/internal/store"
	"smartchimera/internal/types"
)

func edge(a, b string) types.CollaborationEdge {
	return types.CollaborationEdge{A: a, B: b, Weight: 1}
}

func near(t *testing.T, got, want float64, msg string) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %.6f, want %.6f", msg, got, want)
	}
}

// =============================================================================
// BETWEENNESS
// =============================================================================

func TestBetweenness_Path(t *testing.T) {
	t.Parallel()
	// a - b - c - d
	snap := Snapshot{Nodes: []string{"a", "b", "c", "d"}, Edges: []types.CollaborationEdge{edge("a", "b"), edge("b", "c"), edge("c", "d")}}
	scores, approx := Betweenness(snap, DefaultConfig())
	assert.False(t, approx)
	near(t, scores["a"], 0, "a")
	near(t, scores["b"], 2.0/3.0, "b")
	near(t, scores["c"], 2.0/3.0, "c")
	near(t, scores["d"], 0, "d")
}

func TestBetweenness_Star(t *testing.T) {
	t.Parallel()
	snap := Snapshot{Edges: []types.CollaborationEdge{edge("hub", "x"), edge("hub", "y"), edge("hub", "z"), edge("hub", "w")}}
	scores, _ := Betweenness(snap, DefaultConfig())
	near(t, scores["hub"], 1.0, "hub")
	for _, leaf := range []string{"x", "y", "z", "w"} {
		near(t, scores[leaf], 0, leaf)
	}
}

func TestBetweenness_TiesSplitCredit(t *testing.T) {
	t.Parallel()
	// Square a-b-d, a-c-d: two shortest a..d paths, each middle node gets half.
	snap := Snapshot{Edges: []types.CollaborationEdge{edge("a", "b"), edge("b", "d"), edge("a", "c"), edge("c", "d")}}
	scores, _ := Betweenness(snap, DefaultConfig())
	// b lies on half of the a-d paths: raw 0.5 over (n-1)(n-2)/2 = 3 pairs.
	near(t, scores["b"], 0.5/3.0, "b")
	near(t, scores["c"], 0.5/3.0, "c")
	near(t, scores["a"], 0.5/3.0, "a")
}

func TestBetweenness_IgnoresSelfLoopsAndDuplicates(t *testing.T) {
	t.Parallel()
	plain := Snapshot{Edges: []types.CollaborationEdge{edge("a", "b"), edge("b", "c")}}
	noisy := Snapshot{Edges: []types.CollaborationEdge{edge("a", "b"), edge("b", "a"), edge("b", "c"), edge("c", "c")}}
	p, _ := Betweenness(plain, DefaultConfig())
	n, _ := Betweenness(noisy, DefaultConfig())
	assert.Equal(t, p, n)
}

func TestBetweenness_ApproximationIsDeterministic(t *testing.T) {
	t.Parallel()
	var edges []types.CollaborationEdge
	for i := 0; i < 60; i++ {
		edges = append(edges, edge(fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", (i+1)%60)))
		if i%5 == 0 {
			edges = append(edges, edge("hub", fmt.Sprintf("n%02d", i)))
		}
	}
	cfg := DefaultConfig()
	cfg.ApproxNodeThreshold = 10
	cfg.SamplePivots = 20

	first, approx := Betweenness(Snapshot{Edges: edges}, cfg)
	require.True(t, approx)
	second, _ := Betweenness(Snapshot{Edges: edges}, cfg)
	assert.Equal(t, first, second)

	exact, exactApprox := Betweenness(Snapshot{Edges: edges}, DefaultConfig())
	require.False(t, exactApprox)
	assert.Greater(t, first["hub"], 0.0)
	assert.InDelta(t, exact["hub"], first["hub"], 0.5)
}

// =============================================================================
// SCENARIO C: DISCONNECTED GRAPH
// =============================================================================

func TestDetect_DisconnectedGraph(t *testing.T) {
	t.Parallel()
	snap := Snapshot{Nodes: []string{"p1", "p2", "p3"}}
	holdings := Holdings{
		"p1": {"Python": 3.0, "Docker": 2.0},
		"p2": {"Python": 2.5, "Docker": 0.4},
		"p3": {"Python": 1.2},
	}
	reports := Detect(snap, holdings, DefaultConfig())
	require.Len(t, reports, 3)

	byID := map[string]Report{}
	for _, r := range reports {
		byID[r.PersonID] = r
		assert.Zero(t, r.Centrality, r.PersonID)
	}
	// p1 alone holds Docker above the floor.
	assert.Equal(t, types.RiskMedium, byID["p1"].Risk)
	assert.Equal(t, []string{"Docker"}, byID["p1"].UniqueSkills)
	assert.Equal(t, CategoryKnowledgeSharing, byID["p1"].Category)
	assert.Equal(t, types.RiskLow, byID["p2"].Risk)
	assert.Equal(t, types.RiskLow, byID["p3"].Risk)
	assert.Equal(t, "p1", reports[0].PersonID, "riskiest first")
}

func TestDetect_EmptyGraph(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Detect(Snapshot{}, nil, DefaultConfig()))
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestClassify(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	tests := []struct {
		c      float64
		unique int
		want   types.RiskLevel
	}{
		{0.9, 1, types.RiskCritical},
		{0.9, 0, types.RiskHigh},
		{0.1, 2, types.RiskHigh},
		{0.3, 0, types.RiskMedium},
		{0.1, 1, types.RiskMedium},
		{0.1, 0, types.RiskLow},
		{0.5, 0, types.RiskMedium}, // thresholds are strict
	}
	for _, tt := range tests {
		if got := Classify(tt.c, tt.unique, cfg); got != tt.want {
			t.Errorf("Classify(%v, %d) = %v, want %v", tt.c, tt.unique, got, tt.want)
		}
	}
}

func TestClassify_MonotonicInCentrality(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	for unique := 0; unique <= 3; unique++ {
		prev := types.RiskLow
		for i := 0; i <= 1000; i++ {
			r := Classify(float64(i)/1000, unique, cfg)
			if r < prev {
				t.Fatalf("unique=%d: risk dropped from %v to %v at c=%.3f", unique, prev, r, float64(i)/1000)
			}
			prev = r
		}
	}
}

func TestRecommendations(t *testing.T) {
	t.Parallel()
	crit := Recommendations(types.RiskCritical, []string{"Go", "SQL", "K8s", "Rust"})
	require.Len(t, crit, 4)
	assert.Equal(t, "Train 2+ people in: Go, SQL, K8s", crit[3])

	high := Recommendations(types.RiskHigh, []string{"Go"})
	assert.Equal(t, "Identify cross-training candidates for: Go", high[2])

	assert.Len(t, Recommendations(types.RiskLow, nil), 1)
	assert.Equal(t, CategoryUrgentCrossTraining, CategoryFor(types.RiskCritical))
	assert.Equal(t, CategoryPairProgramming, CategoryFor(types.RiskHigh))
	assert.Equal(t, CategoryMaintain, CategoryFor(types.RiskLow))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultConfig().Validate())
	bad := DefaultConfig()
	bad.ModerateThreshold = 0.9
	assert.Error(t, bad.Validate())
	bad = DefaultConfig()
	bad.SamplePivots = 0
	assert.Error(t, bad.Validate())
}

// =============================================================================
// BUS FACTOR
// =============================================================================

func TestTeamBusFactor(t *testing.T) {
	t.Parallel()
	holdings := Holdings{
		"p1": {"Python": 4, "Docker": 3, "Kubernetes": 3},
		"p2": {"Python": 2},
		"p3": {"docker": 2},
	}
	bf := TeamBusFactor([]string{"p1", "p2", "p3"}, []string{"Python", "Docker", "Kubernetes"}, holdings, 1.0)
	// Losing p1 uncovers Kubernetes only (1 of 3); next p2 or p3 pushes past half.
	assert.Equal(t, 2, bf.Factor)
	assert.Equal(t, "p1", bf.CriticalMembers[0])
	assert.Equal(t, []string{"p1"}, bf.SoleHolders)
	assert.False(t, bf.Resilient())

	redundant := Holdings{"a": {"Go": 3}, "b": {"Go": 3}}
	bf = TeamBusFactor([]string{"a", "b"}, []string{"Go"}, redundant, 1.0)
	// No single removal uncovers anything.
	assert.Equal(t, 0, bf.Factor)
	assert.Empty(t, bf.CriticalMembers)
	assert.Empty(t, bf.SoleHolders)
	assert.True(t, bf.Resilient())
}

// =============================================================================
// DETECTOR SERVICE
// =============================================================================

type memoryCache struct {
	mu   sync.Mutex
	data map[string]map[string]float64
	gets int
	sets int
	err  error
}

func (m *memoryCache) Get(_ context.Context, key string) (map[string]float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, scores map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.err != nil {
		return m.err
	}
	if m.data == nil {
		m.data = map[string]map[string]float64{}
	}
	m.data[key] = scores
	return nil
}

func starDataset() *store.Dataset {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &store.Dataset{
		Persons: []store.PersonRecord{{ID: "hub", Name: "Hub"}, {ID: "a"}, {ID: "b"}, {ID: "c"}},
		Evidence: []store.EvidenceRecord{
			{Person: "hub", Skill: "COBOL", Source: "github", Timestamp: now, Impact: "high", Validated: true},
			{Person: "a", Skill: "Go", Source: "github", Timestamp: now, Impact: "high", Validated: true},
			{Person: "b", Skill: "Go", Source: "github", Timestamp: now, Impact: "high", Validated: true},
		},
		Collaborations: []store.CollaborationRecord{
			{A: "hub", B: "a", Weight: 1}, {A: "hub", B: "b", Weight: 1}, {A: "hub", B: "c", Weight: 1},
		},
	}
}

func TestDetector_ListLinchpins(t *testing.T) {
	t.Parallel()
	d := NewDetector(store.NewMemoryGraph(starDataset()), nil, DefaultConfig())
	d.SetClock(func() time.Time { return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) })

	reports, err := d.ListLinchpins(context.Background(), types.RiskHigh)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "hub", reports[0].PersonID)
	assert.Equal(t, "Hub", reports[0].Name)
	assert.Equal(t, types.RiskCritical, reports[0].Risk)
	assert.Equal(t, []string{"COBOL"}, reports[0].UniqueSkills)

	all, err := d.ListLinchpins(context.Background(), types.RiskLow)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestDetector_UsesCache(t *testing.T) {
	t.Parallel()
	cache := &memoryCache{}
	d := NewDetector(store.NewMemoryGraph(starDataset()), nil, DefaultConfig())
	d.SetCache(cache)

	first, err := d.Analyze(context.Background())
	require.NoError(t, err)
	second, err := d.Analyze(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, cache.gets)
	assert.Equal(t, 1, cache.sets, "second call should hit")
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Scores, second.Scores)
}

func TestDetector_CacheFailureDegrades(t *testing.T) {
	t.Parallel()
	cache := &memoryCache{err: errors.New("redis down")}
	d := NewDetector(store.NewMemoryGraph(starDataset()), nil, DefaultConfig())
	d.SetCache(cache)

	a, err := d.Analyze(context.Background())
	require.NoError(t, err)
	near(t, a.Scores["hub"], 1.0, "hub")
}

type failingGraph struct{ types.EvidenceGraph }

func (failingGraph) Persons(context.Context) ([]types.Person, error) {
	return nil, errors.New("connection refused")
}

func TestDetector_CollaboratorFailure(t *testing.T) {
	t.Parallel()
	d := NewDetector(failingGraph{}, nil, DefaultConfig())
	_, err := d.Analyze(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCollaborator)
	assert.NotErrorIs(t, err, types.ErrInfeasible)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	a := Snapshot{Nodes: []string{"x", "y", "z"}, Edges: []types.CollaborationEdge{edge("x", "y"), edge("y", "z")}}
	b := Snapshot{Nodes: []string{"z", "y", "x"}, Edges: []types.CollaborationEdge{edge("z", "y"), edge("y", "x")}}
	c := Snapshot{Nodes: []string{"x", "y", "z"}, Edges: []types.CollaborationEdge{edge("x", "y"), edge("x", "z")}}

	cfg := DefaultConfig()
	assert.Equal(t, Fingerprint(a, cfg), Fingerprint(b, cfg), "order must not matter")
	assert.NotEqual(t, Fingerprint(a, cfg), Fingerprint(c, cfg))

	other := cfg
	other.Seed = 7
	assert.NotEqual(t, Fingerprint(a, cfg), Fingerprint(a, other))
	assert.Len(t, Fingerprint(a, cfg), 16)
}
