package policy

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartchimera/internal/types"
)

func f(v float64) *float64 { return &v }
func days(v int) *int      { return &v }

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(nil)
	require.NoError(t, err)
	return e
}

func pythonTeam(profile string) *TeamEvidence {
	return &TeamEvidence{
		MissionProfile: profile,
		Skills: []SkillEvidence{{
			Skill: "Python",
			Contributors: []Contributor{
				{PersonID: "a", Level: 3.0, Frequency: 2, RecencyDays: days(10), ValidatedBy: "lead"},
				{PersonID: "b", Level: 2.5, Frequency: 1, RecencyDays: days(15)},
			},
		}},
	}
}

func TestEvaluate_MissionRules(t *testing.T) {
	e := newEngine(t)

	eval, err := e.Evaluate(pythonTeam("innovation"), "", nil)
	require.NoError(t, err)

	assert.Equal(t, "innovation", eval.MissionProfile)
	assert.InDelta(t, 2.725, eval.OverallScore, 1e-9)
	require.Len(t, eval.Skills, 1)
	skill := eval.Skills[0]
	assert.Equal(t, "Python", skill.Skill)
	assert.Equal(t, 2, skill.Contributors)
	assert.Contains(t, skill.Alerts, AlertLowFrequency)
	assert.NotContains(t, skill.Alerts, AlertStaleEvidence)
	assert.InDelta(t, 2.75, skill.Metrics.AvgLevel, 1e-9)
	assert.InDelta(t, 0.5, skill.Metrics.ValidatedRatio, 1e-9)
	require.NotNil(t, skill.Metrics.MinRecencyDays)
	assert.Equal(t, 10, *skill.Metrics.MinRecencyDays)
	require.Len(t, eval.Alerts, 1)
	assert.Equal(t, "Python", eval.Alerts[0].Skill)
}

func TestEvaluate_DefaultRules(t *testing.T) {
	e := newEngine(t)

	eval, err := e.Evaluate(pythonTeam(""), "", nil)
	require.NoError(t, err)
	// 1 + 0.4*2.75 + 0.25*1.5 - 0.01*10 + 0.5*0.5
	assert.InDelta(t, 2.625, eval.OverallScore, 1e-9)
	assert.Empty(t, eval.Skills[0].Alerts)
}

func TestEvaluate_OverrideWins(t *testing.T) {
	e := newEngine(t)
	zero := &Override{Weights: WeightsOverride{
		BaseSkill: f(0), Level: f(0), Frequency: f(0), Recency: f(0), Validation: f(0),
	}}

	eval, err := e.Evaluate(pythonTeam("innovation"), "", zero)
	require.NoError(t, err)
	assert.Equal(t, 0.0, eval.OverallScore)
	assert.Equal(t, 0.0, eval.Rules.Weights.BaseSkill)
}

func TestRules_MergePrecedence(t *testing.T) {
	e := newEngine(t)

	got, err := e.Rules("critical", &Override{
		Weights:    WeightsOverride{Level: f(9)},
		Thresholds: ThresholdsOverride{MinFrequency: f(3)},
	})
	require.NoError(t, err)

	want := RuleSet{
		Weights: Weights{
			BaseSkill:  1.0,
			Level:      9,
			Frequency:  0.25,
			Recency:    -0.01,
			Validation: 0.8,
		},
		Thresholds: Thresholds{
			MinFrequency:      3,
			MaxRecencyDays:    90,
			MinValidatedRatio: 0.5,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged rules mismatch (-want +got):\n%s", diff)
	}
}

func TestRules_DocumentNotMutated(t *testing.T) {
	e := newEngine(t)

	before, err := e.Rules("critical", nil)
	require.NoError(t, err)
	_, err = e.Rules("critical", &Override{Weights: WeightsOverride{Validation: f(42)}})
	require.NoError(t, err)
	after, err := e.Rules("critical", nil)
	require.NoError(t, err)

	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("document changed after an override (-before +after):\n%s", diff)
	}
}

func TestRules_UnknownProfileUsesDefault(t *testing.T) {
	e := newEngine(t)
	got, err := e.Rules("nobody-knows", nil)
	require.NoError(t, err)
	assert.Equal(t, BuiltinRules(), got)
}

func TestRules_NoDefault(t *testing.T) {
	doc, err := ParseDocument([]byte("missions:\n  Critical:\n    weights: {level: 2}\n"))
	require.NoError(t, err)
	e, err := NewEngine(doc)
	require.NoError(t, err)

	_, err = e.Rules("unknown", nil)
	assert.True(t, errors.Is(err, ErrNoDefaultRules))

	_, err = e.Evaluate(pythonTeam("unknown"), "", nil)
	assert.True(t, errors.Is(err, ErrNoDefaultRules))

	got, err := e.Rules("critical", nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Weights.Level)
	assert.Equal(t, BuiltinRules().Thresholds, got.Thresholds)
}

func TestRules_InvalidOverride(t *testing.T) {
	e := newEngine(t)
	_, err := e.Rules("", &Override{Thresholds: ThresholdsOverride{MinValidatedRatio: f(1.5)}})
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestRules_ProfileResolver(t *testing.T) {
	e := newEngine(t)
	e.SetProfileResolver(func(id string) (string, bool) {
		if id == "mantenimiento" {
			return "critical", true
		}
		return "", false
	})
	viaAlias, err := e.Rules("Mantenimiento", nil)
	require.NoError(t, err)
	direct, err := e.Rules("critical", nil)
	require.NoError(t, err)
	assert.Equal(t, direct, viaAlias)
}

func TestEvaluate_EdgeCases(t *testing.T) {
	e := newEngine(t)
	team := &TeamEvidence{Skills: []SkillEvidence{
		{Skill: "Cobol"},
		{Skill: "Go", Contributors: []Contributor{{PersonID: "a", Level: 4, Frequency: 3}}},
	}}

	eval, err := e.Evaluate(team, "", nil)
	require.NoError(t, err)
	require.Len(t, eval.Skills, 2)

	assert.Equal(t, []string{AlertNoContributors}, eval.Skills[0].Alerts)
	assert.Equal(t, 0.0, eval.Skills[0].Score)

	goRes := eval.Skills[1]
	assert.Nil(t, goRes.Metrics.MinRecencyDays)
	assert.Equal(t, []string{AlertStaleEvidence, AlertLowValidation}, goRes.Alerts)
	// 1 + 0.4*4 + 0.25*3, recency unknown so no recency term
	assert.InDelta(t, 3.35, goRes.Score, 1e-9)
	assert.InDelta(t, 3.35/2, eval.OverallScore, 1e-4)
	assert.Len(t, eval.Alerts, 2)
}

func TestEvaluate_EmptyTeam(t *testing.T) {
	e := newEngine(t)
	eval, err := e.Evaluate(nil, "critical", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, eval.OverallScore)
	assert.Empty(t, eval.Skills)
	assert.Empty(t, eval.Alerts)
}

func TestMissionIDs(t *testing.T) {
	e := newEngine(t)
	ids := e.MissionIDs()
	assert.Contains(t, ids, "critical")
	assert.Contains(t, ids, "learning")
	assert.IsIncreasing(t, ids)
}
