package guardian

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartchimera/internal/linchpin"
	"smartchimera/internal/mission"
	"smartchimera/internal/types"
)

func assertNoConstrainedPair(t *testing.T, d types.Dossier) {
	t.Helper()
	assert.False(t, d.Contains("P1") && d.Contains("P3"), "%s staffs the constrained pair P1/P3", d.Strategy)
}

func TestFormTeams_ScenarioB_ForceExclude(t *testing.T) {
	e := newTestEngine(t, testGraph(t))
	req := scenarioRequest()
	req.ForceExclude = []string{"P4"}

	res, err := e.FormTeams(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Dossiers)
	assert.LessOrEqual(t, len(res.Dossiers), 3)

	for _, d := range res.Dossiers {
		assert.Len(t, d.Team, 3)
		assert.False(t, d.Contains("P4"), "%s contains force-excluded P4", d.Strategy)
		assert.False(t, d.Contains("P6"), "P6 is below the availability floor")
		assert.False(t, d.Contains("P7"), "P7 matches no required skill")
		assertNoConstrainedPair(t, d)
	}
}

func TestFormTeams_ScenarioD_ProfileOrdering(t *testing.T) {
	e := newTestEngine(t, testGraph(t))

	tests := []struct {
		profile string
		first   types.Strategy
	}{
		{"critical", types.StrategySafeBet},
		{"learning", types.StrategyGrowthTeam},
		{"speed", types.StrategySpeedSquad},
		{"mantenimiento", types.StrategySafeBet},
	}
	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			req := scenarioRequest()
			req.MissionProfile = tt.profile
			res, err := e.FormTeams(context.Background(), req)
			require.NoError(t, err)
			require.Len(t, res.Dossiers, 3)
			assert.Equal(t, tt.first, res.Dossiers[0].Strategy)

			rest := res.Dossiers[1:]
			assert.GreaterOrEqual(t, rest[0].TotalScore, rest[1].TotalScore, "non-preferred dossiers sort by total score")
		})
	}
}

func TestFormTeams_UnknownProfileFallsBack(t *testing.T) {
	e := newTestEngine(t, testGraph(t))
	req := scenarioRequest()
	req.MissionProfile = "does-not-exist"

	res, err := e.FormTeams(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "balanced", res.MissionProfile)
	assert.Equal(t, mission.ModePerformance, res.Mode)
}

func TestFormTeams_ConstraintInvariantAcrossProfiles(t *testing.T) {
	e := newTestEngine(t, testGraph(t))
	reg, err := mission.Embedded()
	require.NoError(t, err)

	for _, p := range reg.List() {
		for _, mode := range []string{mission.ModePerformance, mission.ModeResilient} {
			for _, k := range []int{2, 3, 4} {
				req := scenarioRequest()
				req.MissionProfile = p.ID
				req.Mode = mode
				req.K = k
				res, err := e.FormTeams(context.Background(), req)
				require.NoError(t, err, "profile %s mode %s k %d", p.ID, mode, k)
				for _, d := range res.Dossiers {
					assertNoConstrainedPair(t, d)
					assert.Len(t, d.Team, k)
				}
			}
		}
	}
}

func TestFormTeams_ForcedMembership(t *testing.T) {
	e := newTestEngine(t, testGraph(t))

	req := scenarioRequest()
	req.ForceInclude = []string{"P5", "P6"}
	res, err := e.FormTeams(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Dossiers)

	for _, d := range res.Dossiers {
		assert.True(t, d.Contains("P5"), "%s is missing P5", d.Strategy)
		assert.True(t, d.Contains("P6"), "forced P6 bypasses the hours floor")
		for _, c := range d.Team {
			if c.PersonID == "P6" {
				assert.True(t, c.ForcedInclude)
				assert.Equal(t, 5.0, c.AvailabilityHours, "a recorded availability is kept for forced people")
			}
		}
		for _, c := range d.Checks {
			if c.Name == CheckForcedMembership {
				assert.True(t, c.Passed)
			}
		}
	}
}

func TestFormTeams_ForcedWithoutSkills(t *testing.T) {
	e := newTestEngine(t, testGraph(t))
	req := scenarioRequest()
	req.ForceInclude = []string{"P7"}

	res, err := e.FormTeams(context.Background(), req)
	require.NoError(t, err)
	for _, d := range res.Dossiers {
		assert.True(t, d.Contains("P7"))
	}
}

func TestFormTeams_Infeasible(t *testing.T) {
	tests := map[string]func(*Request){
		"include and exclude":  func(r *Request) { r.ForceInclude = []string{"P2"}; r.ForceExclude = []string{"P2"} },
		"too many forced":      func(r *Request) { r.K = 1; r.ForceInclude = []string{"P1", "P2"} },
		"forced conflict":      func(r *Request) { r.ForceInclude = []string{"P1", "P3"} },
		"forced unknown":       func(r *Request) { r.ForceInclude = []string{"ghost"} },
		"no candidates":        func(r *Request) { r.RequiredSkills = []string{"Haskell"} },
		"undersized pool":      func(r *Request) { r.K = 6 },
		"nobody has the hours": func(r *Request) { r.MinHours = 100 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine(t, testGraph(t))
			req := scenarioRequest()
			mutate(&req)

			res, err := e.FormTeams(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, types.ErrInfeasible), "got %v", err)
			assert.False(t, errors.Is(err, types.ErrCollaborator))

			var inf *types.InfeasibleError
			require.True(t, errors.As(err, &inf))
			assert.NotEmpty(t, inf.Reasons)
		})
	}
}

func TestFormTeams_UndersizedReportsEveryStrategy(t *testing.T) {
	e := newTestEngine(t, testGraph(t))
	req := scenarioRequest()
	req.K = 6

	_, err := e.FormTeams(context.Background(), req)
	var inf *types.InfeasibleError
	require.True(t, errors.As(err, &inf))
	assert.Len(t, inf.Reasons, 3)
}

func TestFormTeams_Validation(t *testing.T) {
	tests := map[string]Request{
		"no skills":    {K: 3},
		"blank skills": {RequiredSkills: []string{" ", ""}, K: 3},
		"zero k":       {RequiredSkills: []string{"Go"}},
		"negative hrs": {RequiredSkills: []string{"Go"}, K: 1, MinHours: -1},
		"unknown mode": {RequiredSkills: []string{"Go"}, K: 1, Mode: "turbo"},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine(t, testGraph(t))
			_, err := e.FormTeams(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrValidation), "got %v", err)
		})
	}
}

func TestFormTeams_CollaboratorFailure(t *testing.T) {
	for _, op := range []string{"candidates", "evidence", "edges", "availability", "constraints", "persons"} {
		t.Run(op, func(t *testing.T) {
			g := flakyGraph{EvidenceGraph: testGraph(t), failOp: op}
			e := newTestEngine(t, g)

			_, err := e.FormTeams(context.Background(), scenarioRequest())
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrCollaborator), "got %v", err)
			assert.False(t, errors.Is(err, types.ErrInfeasible))
			assert.True(t, errors.Is(err, errGraphDown))
		})
	}
}

func TestFormTeams_LinchpinSourceFailure(t *testing.T) {
	e := newTestEngine(t, testGraph(t))
	e.SetLinchpinSource(staticLinchpins{err: errGraphDown})

	_, err := e.FormTeams(context.Background(), scenarioRequest())
	assert.True(t, errors.Is(err, types.ErrCollaborator))
}

func TestFormTeams_Cancelled(t *testing.T) {
	e := newTestEngine(t, testGraph(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.FormTeams(ctx, scenarioRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFormTeams_ResultShape(t *testing.T) {
	e := newTestEngine(t, testGraph(t))
	req := scenarioRequest()
	req.Mode = mission.ModeResilient

	res, err := e.FormTeams(context.Background(), req)
	require.NoError(t, err)

	_, err = uuid.Parse(res.RequestID)
	assert.NoError(t, err)
	assert.Equal(t, "2025-W14", res.Week)
	assert.Equal(t, mission.ModeResilient, res.Mode)
	assert.Equal(t, 5, res.PoolSize)
	assert.Empty(t, res.Infeasible)

	for _, d := range res.Dossiers {
		assert.Len(t, d.Checks, 8)
		assert.Equal(t, len(d.Checks), len(d.ExecutiveSummary.Pros)+len(d.ExecutiveSummary.Cons))
		assert.NotEmpty(t, d.Rationale)
		assert.Contains(t, d.RiskAnalysis, "Optimized for long-term stability (resilient mode)")
		assert.Equal(t, d.Strategy.Title(), d.Title)
		assert.Equal(t, StrategyDescription(d.Strategy), d.Description)

		var total float64
		for _, c := range d.Team {
			total += c.Score
			assert.NotEmpty(t, c.MatchedSkills)
		}
		assert.InDelta(t, total, d.TotalScore, 1e-3)
	}
}

func TestFormTeams_Deterministic(t *testing.T) {
	e := newTestEngine(t, testGraph(t))
	first, err := e.FormTeams(context.Background(), scenarioRequest())
	require.NoError(t, err)
	second, err := e.FormTeams(context.Background(), scenarioRequest())
	require.NoError(t, err)

	require.Equal(t, len(first.Dossiers), len(second.Dossiers))
	for i := range first.Dossiers {
		assert.Equal(t, first.Dossiers[i].MemberIDs(), second.Dossiers[i].MemberIDs())
		assert.Equal(t, first.Dossiers[i].Strategy, second.Dossiers[i].Strategy)
	}
	assert.NotEqual(t, first.RequestID, second.RequestID)
}

func TestFormTeams_LinchpinPenaltyShapesSafeBet(t *testing.T) {
	graph := testGraph(t)
	e := newTestEngine(t, graph)
	// P4 is the strongest candidate; make it a critical hub.
	e.SetLinchpinSource(staticLinchpins{analysis: &linchpin.Analysis{
		Scores: map[string]float64{"P4": 0.9},
		Reports: []linchpin.Report{
			{PersonID: "P4", Centrality: 0.9, Risk: types.RiskCritical, Category: linchpin.CategoryUrgentCrossTraining},
		},
	}})

	req := scenarioRequest()
	req.MissionProfile = "innovation"
	res, err := e.FormTeams(context.Background(), req)
	require.NoError(t, err)
	var sawP4 bool
	for _, d := range res.Dossiers {
		if d.Strategy == types.StrategySafeBet {
			sawP4 = d.Contains("P4")
		}
	}
	assert.True(t, sawP4, "innovation turns centrality into a bonus")

	req.MissionProfile = "critical"
	res, err = e.FormTeams(context.Background(), req)
	require.NoError(t, err)
	for _, d := range res.Dossiers {
		if d.Strategy == types.StrategySafeBet {
			assert.False(t, d.Contains("P4"), "critical penalizes the hub out of the safe bet")
		}
	}
}
