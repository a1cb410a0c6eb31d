package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"smartchimera/internal/guardian"
	"smartchimera/internal/linchpin"
	"smartchimera/internal/policy"
	"smartchimera/internal/types"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "SmartChimera API",
		"status":  "operational",
	})
}

// recommend runs team formation.
func (s *Server) recommend(c *gin.Context) {
	var req guardian.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	res, err := s.deps.Formation.FormTeams(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type linchpinView struct {
	linchpin.Report
	Recommendation string `json:"recommendation"`
}

// linchpins lists people at or above ?min_risk= (default LOW, i.e. everyone).
func (s *Server) linchpins(c *gin.Context) {
	minRisk, ok := types.ParseRiskLevel(c.Query("min_risk"))
	if !ok {
		badRequest(c, "min_risk", "want one of LOW, MEDIUM, HIGH, CRITICAL")
		return
	}
	reports, err := s.deps.Linchpins.ListLinchpins(c.Request.Context(), minRisk)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]linchpinView, 0, len(reports))
	for _, r := range reports {
		v := linchpinView{Report: r.Rounded(), Recommendation: "No recommendations"}
		if len(r.Recommendations) > 0 {
			v.Recommendation = r.Recommendations[0]
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"linchpins": out, "count": len(out)})
}

type simulateRequest struct {
	TeamIDs        []string         `json:"team_ids"`
	MissionProfile string           `json:"mission_profile"`
	EvidenceLimit  *int             `json:"evidence_limit"`
	Overrides      *policy.Override `json:"overrides"`
}

// simulate builds the evidence dossier of an arbitrary team and evaluates it.
func (s *Server) simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	if len(req.TeamIDs) == 0 {
		badRequest(c, "team_ids", "cannot be empty")
		return
	}

	b := policy.NewBuilder(s.deps.Graph, s.deps.Scorer)
	b.SetClock(s.now)
	limit := s.opts.EvidenceLimit
	if req.EvidenceLimit != nil {
		if *req.EvidenceLimit < 0 {
			badRequest(c, "evidence_limit", "must be non-negative")
			return
		}
		limit = *req.EvidenceLimit
	}
	b.SetEvidenceLimit(limit)

	team, err := b.Build(c.Request.Context(), req.TeamIDs, req.MissionProfile)
	if err != nil {
		writeError(c, err)
		return
	}
	eval, err := s.deps.Policy.Evaluate(team, req.MissionProfile, req.Overrides)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dossier": team, "evaluation": eval})
}

func (s *Server) missionProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profiles": s.deps.Profiles.List(),
		"default":  s.deps.Profiles.Default().ID,
	})
}

func (s *Server) skills(c *gin.Context) {
	skills, err := s.deps.Graph.Skills(c.Request.Context())
	if err != nil {
		writeError(c, types.WrapCollaborator("list skills", err))
		return
	}
	names := make([]string, 0, len(skills))
	for _, sk := range skills {
		if sk.Name != "" {
			names = append(names, sk.Name)
		}
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"skills": names, "catalogue": skills})
}

// recompute refreshes the persisted skill-level snapshot.
func (s *Server) recompute(c *gin.Context) {
	report, err := s.deps.Scorer.Recompute(c.Request.Context(), s.deps.Graph, s.deps.Recorder, s.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"persons":   report.Persons,
		"levels":    len(report.Records),
		"persisted": s.deps.Recorder != nil,
	})
}
