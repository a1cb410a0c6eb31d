// Package guardian forms teams. A request moves through a fixed sequence of
// phases; each of the three strategies searches the same immutable scored
// pool in parallel and may independently end INFEASIBLE.
package guardian

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"smartchimera/internal/linchpin"
	"smartchimera/internal/logging"
	"smartchimera/internal/mission"
	"smartchimera/internal/scoring"
	"smartchimera/internal/types"
)

// Phase names one step of a formation request.
type Phase string

const (
	PhaseCollecting Phase = "COLLECTING_CANDIDATES"
	PhaseScoring    Phase = "SCORING"
	PhaseSearching  Phase = "SEARCHING"
	PhaseReordering Phase = "REORDERING"
	PhaseAssembling Phase = "ASSEMBLING"
	PhaseDone       Phase = "DONE"
	PhaseInfeasible Phase = "INFEASIBLE"
)

// LinchpinSource supplies organization-wide centrality and risk.
// *linchpin.Detector satisfies it.
type LinchpinSource interface {
	Analyze(ctx context.Context) (*linchpin.Analysis, error)
}

// Infeasible marks a strategy that produced no dossier.
type Infeasible struct {
	Strategy types.Strategy `json:"strategy"`
	Reason   string         `json:"reason"`
}

// Result is the answer to one formation request.
type Result struct {
	RequestID      string          `json:"request_id"`
	MissionProfile string          `json:"mission_profile"`
	Mode           string          `json:"mode"`
	Week           string          `json:"week"`
	PoolSize       int             `json:"pool_size"`
	Approximate    bool            `json:"approximate_centrality"`
	Dossiers       []types.Dossier `json:"dossiers"`
	Infeasible     []Infeasible    `json:"infeasible,omitempty"`
}

// Engine forms teams over an evidence graph. It holds no per-request state.
type Engine struct {
	graph     types.EvidenceGraph
	profiles  *mission.Registry
	linchpins LinchpinSource
	scorer    *scoring.Scorer
	cfg       Config
	now       func() time.Time
}

// NewEngine creates an engine. Without a LinchpinSource every candidate has
// zero centrality and LOW risk.
func NewEngine(graph types.EvidenceGraph, profiles *mission.Registry, cfg Config) *Engine {
	return &Engine{
		graph:    graph,
		profiles: profiles,
		scorer:   scoring.Default(),
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetLinchpinSource attaches centrality analysis.
func (e *Engine) SetLinchpinSource(src LinchpinSource) {
	e.linchpins = src
}

// SetScorer replaces the scoring engine.
func (e *Engine) SetScorer(s *scoring.Scorer) {
	if s != nil {
		e.scorer = s
	}
}

// SetClock overrides the clock used for evidence age and the default week.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Config returns the engine's tuning.
func (e *Engine) Config() Config {
	return e.cfg
}

// phaseTracker logs every phase transition against the request id.
type phaseTracker struct {
	log     *logging.RequestLogger
	current Phase
}

func (t *phaseTracker) enter(next Phase) {
	if t.current != "" {
		t.log.Debug("%s -> %s", t.current, next)
	} else {
		t.log.Debug("-> %s", next)
	}
	t.current = next
}

// FormTeams returns up to three dossiers, preferred strategy first.
func (e *Engine) FormTeams(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := logging.WithRequestID(logging.CategoryFormation, requestID)
	audit := logging.AuditWithRequest(requestID)
	timer := logging.StartTimer(logging.CategoryFormation, "FormTeams")
	defer timer.StopWithThreshold(5 * time.Second)

	fail := func(err error) (*Result, error) {
		log.Warn("formation failed: %v", err)
		audit.FormationFailed(err)
		return nil, err
	}

	now := e.now()
	nreq, err := req.normalize(e.cfg, now)
	if err != nil {
		return fail(err)
	}
	profile := e.profiles.Get(nreq.MissionProfile)
	mode := nreq.Mode
	if mode == "" {
		mode = profile.Mode
	}
	audit.FormationStart(profile.ID, nreq.K, nreq.RequiredSkills)
	log.Info("forming k=%d skills=%v profile=%s mode=%s week=%s", nreq.K, nreq.RequiredSkills, profile.ID, mode, nreq.Week)

	fsm := &phaseTracker{log: log}

	fsm.enter(PhaseCollecting)
	in, err := e.collect(ctx, nreq)
	if err != nil {
		return fail(err)
	}

	fsm.enter(PhaseScoring)
	p, err := buildPool(nreq, profile, mode, in, e.scorer, now, e.cfg)
	if err != nil {
		return fail(err)
	}
	if len(p.members) == 0 {
		return fail(types.Infeasible(fmt.Sprintf("no candidate matches %v with at least %.0fh available in %s",
			nreq.RequiredSkills, nreq.MinHours, nreq.Week)))
	}
	log.Debug("pool: %d candidates, %d forced, %d constrained pairs", len(p.members), len(p.forced), len(p.conflict))

	fsm.enter(PhaseSearching)
	outcomes := make([]searchOutcome, len(strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		i, s := i, s
		g.Go(func() error {
			out, err := s.selectTeam(gctx, p)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	result := &Result{
		RequestID:      requestID,
		MissionProfile: profile.ID,
		Mode:           mode,
		Week:           nreq.Week,
		PoolSize:       len(p.members),
		Dossiers:       []types.Dossier{},
	}
	if in.analysis != nil {
		result.Approximate = in.analysis.Approximate
	}

	type found struct {
		s  strategy
		st *state
	}
	var teams []found
	for i, out := range outcomes {
		s := strategies[i]
		if out.best == nil {
			log.Warn("strategy %s: %s -> %s (%s)", s.Tag(), PhaseSearching, PhaseInfeasible, out.reason)
			audit.StrategyInfeasible(string(s.Tag()), out.reason)
			result.Infeasible = append(result.Infeasible, Infeasible{Strategy: s.Tag(), Reason: out.reason})
			continue
		}
		log.Debug("strategy %s: %d expansions, objective %.4f", s.Tag(), out.expansions, out.best.objective)
		teams = append(teams, found{s: s, st: out.best})
	}
	if len(teams) == 0 {
		reasons := make([]string, 0, len(result.Infeasible))
		for _, inf := range result.Infeasible {
			reasons = append(reasons, fmt.Sprintf("%s: %s", inf.Strategy, inf.Reason))
		}
		return fail(types.Infeasible(reasons...))
	}

	fsm.enter(PhaseReordering)
	preferred := profile.StrategyPreference
	sort.SliceStable(teams, func(i, j int) bool {
		a, b := teams[i], teams[j]
		if (a.s.Tag() == preferred) != (b.s.Tag() == preferred) {
			return a.s.Tag() == preferred
		}
		return a.st.sumScore > b.st.sumScore
	})

	fsm.enter(PhaseAssembling)
	for _, t := range teams {
		d := assemble(p, t.s, t.st)
		audit.DossierAssembled(string(d.Strategy), string(d.ExecutiveSummary.Recommendation), d.MemberIDs(), d.TotalScore)
		result.Dossiers = append(result.Dossiers, d)
	}

	fsm.enter(PhaseDone)
	elapsed := time.Since(start)
	log.Info("formed %d dossiers (%d infeasible) in %v", len(result.Dossiers), len(result.Infeasible), elapsed)
	audit.FormationDone(len(result.Dossiers), len(result.Infeasible), elapsed.Milliseconds())
	return result, nil
}

// collect reads the candidate data and the linchpin analysis concurrently.
func (e *Engine) collect(ctx context.Context, req *normalized) (*poolInput, error) {
	in := &poolInput{}
	g, gctx := errgroup.WithContext(ctx)
	if e.linchpins != nil {
		g.Go(func() error {
			a, err := e.linchpins.Analyze(gctx)
			if err != nil {
				return types.WrapCollaborator("linchpin analysis", err)
			}
			in.analysis = a
			return nil
		})
	}
	g.Go(func() error {
		return e.gather(gctx, req, in)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

// gather fills every poolInput field except analysis.
func (e *Engine) gather(ctx context.Context, req *normalized, in *poolInput) error {
	persons, err := e.graph.PersonsWithSkills(ctx, req.RequiredSkills)
	if err != nil {
		return types.WrapCollaborator("find candidates", err)
	}

	have := make(map[string]bool, len(persons))
	for _, p := range persons {
		have[p.ID] = true
	}
	var missing []string
	for _, id := range req.ForceInclude {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		all, err := e.graph.Persons(ctx)
		if err != nil {
			return types.WrapCollaborator("list persons", err)
		}
		want := make(map[string]bool, len(missing))
		for _, id := range missing {
			want[id] = true
		}
		for _, p := range all {
			if want[p.ID] {
				persons = append(persons, p)
				delete(want, p.ID)
			}
		}
		if len(want) > 0 {
			var unknown []string
			for _, id := range missing {
				if want[id] {
					unknown = append(unknown, id)
				}
			}
			return types.Infeasible(fmt.Sprintf("force-included people do not exist: %v", unknown))
		}
	}

	ids := make([]string, 0, len(persons))
	kept := persons[:0]
	for _, p := range persons {
		if req.exclude[p.ID] {
			continue
		}
		kept = append(kept, p)
		ids = append(ids, p.ID)
	}
	in.persons = kept
	if len(ids) == 0 {
		return nil
	}

	if in.evidence, err = e.graph.EvidenceForPersons(ctx, ids); err != nil {
		return types.WrapCollaborator("load evidence", err)
	}
	if err := e.availability(ctx, ids, req.Week, in); err != nil {
		return err
	}
	if in.edges, err = e.graph.CollaborationEdges(ctx, ids); err != nil {
		return types.WrapCollaborator("load collaboration edges", err)
	}
	if in.constraints, err = e.graph.ManualConstraints(ctx, ids); err != nil {
		return types.WrapCollaborator("load manual constraints", err)
	}
	return nil
}

// availability looks up weekly hours with bounded fan-out.
func (e *Engine) availability(ctx context.Context, ids []string, week string, in *poolInput) error {
	in.hours = make(map[string]float64, len(ids))
	in.hasHours = make(map[string]bool, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.AvailabilityLimit)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			hours, ok, err := e.graph.Availability(gctx, id, week)
			if err != nil {
				return types.WrapCollaborator("availability "+id, err)
			}
			mu.Lock()
			in.hours[id] = hours
			in.hasHours[id] = ok
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// StrategyDescription returns the human description of tag.
func StrategyDescription(tag types.Strategy) string {
	if s := strategyFor(tag); s != nil {
		return s.Description()
	}
	return ""
}
