package linchpin

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/OneOfOne/xxhash"

	"smartchimera/internal/logging"
	"smartchimera/internal/scoring"
	"smartchimera/internal/types"
)

// CentralityCache stores betweenness scores keyed by graph fingerprint.
// Implementations must treat a miss as (nil, false, nil).
type CentralityCache interface {
	Get(ctx context.Context, key string) (map[string]float64, bool, error)
	Set(ctx context.Context, key string, scores map[string]float64) error
}

// Analysis is the organisation-wide linchpin picture at one instant.
type Analysis struct {
	Reports     []Report           `json:"reports"`
	Scores      map[string]float64 `json:"-"`
	Holdings    Holdings           `json:"-"`
	Approximate bool               `json:"approximate"`
	Fingerprint string             `json:"fingerprint"`
	Nodes       int                `json:"nodes"`
	Edges       int                `json:"edges"`
}

// Report returns the report for personID, or a zero-centrality LOW report.
func (a *Analysis) Report(personID string) Report {
	for _, r := range a.Reports {
		if r.PersonID == personID {
			return r
		}
	}
	return Report{PersonID: personID, Risk: types.RiskLow, Category: CategoryMaintain}
}

// Detector runs centrality over the full organizational graph served by an
// EvidenceGraph. It holds no state between calls except the optional cache.
type Detector struct {
	graph  types.EvidenceGraph
	scorer *scoring.Scorer
	cfg    Config
	cache  CentralityCache
	now    func() time.Time
}

// NewDetector creates a detector. A nil scorer uses scoring.Default().
func NewDetector(graph types.EvidenceGraph, scorer *scoring.Scorer, cfg Config) *Detector {
	if scorer == nil {
		scorer = scoring.Default()
	}
	return &Detector{graph: graph, scorer: scorer, cfg: cfg, now: time.Now}
}

// SetCache attaches a centrality cache.
func (d *Detector) SetCache(c CentralityCache) {
	d.cache = c
}

// SetClock overrides the clock used to age evidence.
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
}

// Config returns the detector's thresholds.
func (d *Detector) Config() Config {
	return d.cfg
}

// Analyze loads a snapshot, computes (or fetches) centrality, and classifies everyone.
func (d *Detector) Analyze(ctx context.Context) (*Analysis, error) {
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryLinchpin, "Analyze")
	defer timer.StopWithThreshold(2 * time.Second)

	persons, err := d.graph.Persons(ctx)
	if err != nil {
		return nil, types.WrapCollaborator("list persons", err)
	}
	edges, err := d.graph.CollaborationEdges(ctx, nil)
	if err != nil {
		return nil, types.WrapCollaborator("load collaboration edges", err)
	}

	snap := Snapshot{Names: make(map[string]string, len(persons)), Edges: edges}
	ids := make([]string, 0, len(persons))
	for _, p := range persons {
		snap.Nodes = append(snap.Nodes, p.ID)
		snap.Names[p.ID] = p.Name
		ids = append(ids, p.ID)
	}

	evidence, err := d.graph.EvidenceForPersons(ctx, ids)
	if err != nil {
		return nil, types.WrapCollaborator("load evidence", err)
	}
	now := d.now()
	holdings := make(Holdings, len(evidence))
	for id, items := range evidence {
		holdings[id] = d.scorer.Levels(items, now)
	}

	fp := Fingerprint(snap, d.cfg)
	scores, approximate := d.centrality(ctx, snap, fp)

	analysis := &Analysis{
		Reports:     Assess(scores, snap.Names, holdings, d.cfg),
		Scores:      scores,
		Holdings:    holdings,
		Approximate: approximate,
		Fingerprint: fp,
		Nodes:       len(scores),
		Edges:       len(edges),
	}
	logging.Linchpin("analyzed %d persons, %d edges (approximate=%v)", analysis.Nodes, analysis.Edges, approximate)
	logging.Audit().LinchpinScan(analysis.Nodes, approximate, time.Since(start).Milliseconds())
	return analysis, nil
}

// centrality consults the cache first. Cache failures degrade to a fresh
// computation and never fail the request.
func (d *Detector) centrality(ctx context.Context, snap Snapshot, fp string) (map[string]float64, bool) {
	if d.cache != nil {
		cached, ok, err := d.cache.Get(ctx, fp)
		switch {
		case err != nil:
			logging.LinchpinWarn("centrality cache get failed: %v", err)
		case ok:
			logging.LinchpinDebug("centrality cache hit for %s", fp)
			return cached, d.cfg.ApproxNodeThreshold > 0 && len(cached) > d.cfg.ApproxNodeThreshold
		}
	}

	scores, approximate := Betweenness(snap, d.cfg)
	if d.cache != nil {
		if err := d.cache.Set(ctx, fp, scores); err != nil {
			logging.LinchpinWarn("centrality cache set failed: %v", err)
		}
	}
	return scores, approximate
}

// ListLinchpins returns everyone at or above minRisk, riskiest first.
func (d *Detector) ListLinchpins(ctx context.Context, minRisk types.RiskLevel) ([]Report, error) {
	a, err := d.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(a.Reports, minRisk), nil
}

// Fingerprint hashes the graph topology together with the settings that
// change centrality output, so cached scores are only reused for identical inputs.
func Fingerprint(snap Snapshot, cfg Config) string {
	nodes, adj := snap.adjacency()
	h := xxhash.NewS64(0)

	var buf [8]byte
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeInt(int64(cfg.ApproxNodeThreshold))
	writeInt(int64(cfg.SamplePivots))
	writeInt(cfg.Seed)

	for _, n := range nodes {
		h.Write([]byte(n))
		h.Write([]byte{0})
		nbrs := adj[n]
		sort.Strings(nbrs)
		for _, m := range nbrs {
			if m > n {
				h.Write([]byte(m))
				h.Write([]byte{1})
			}
		}
		h.Write([]byte{2})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// round4 is used by presentation layers; scores stay unrounded internally.
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Rounded returns a copy of r with centrality rounded to four places.
func (r Report) Rounded() Report {
	r.Centrality = round4(r.Centrality)
	return r
}
