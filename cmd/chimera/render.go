package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"smartchimera/internal/guardian"
	"smartchimera/internal/linchpin"
	"smartchimera/internal/mission"
	"smartchimera/internal/policy"
	"smartchimera/internal/types"
)

// Output formats accepted by --format.
const (
	formatText     = "text"
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

func validFormat(f string) error {
	switch f {
	case formatText, formatMarkdown, formatJSON:
		return nil
	}
	return fmt.Errorf("unknown format %q (want %s, %s or %s)", f, formatText, formatMarkdown, formatJSON)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

func riskStyle(r types.RiskLevel) lipgloss.Style {
	switch r {
	case types.RiskCritical:
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	case types.RiskHigh:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	case types.RiskMedium:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	}
}

func verdictStyle(r types.Recommendation) lipgloss.Style {
	switch r {
	case types.RecommendApprove:
		return passStyle.Bold(true)
	case types.RecommendReject:
		return failStyle.Bold(true)
	default:
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// FORMATION
// =============================================================================

func renderResult(w io.Writer, res *guardian.Result, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, res)
	case formatMarkdown:
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("markdown renderer: %w", err)
		}
		out, err := r.Render(resultMarkdown(res))
		if err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		_, err = io.WriteString(w, out)
		return err
	default:
		_, err := io.WriteString(w, resultText(res))
		return err
	}
}

// resultMarkdown renders the dossiers as a markdown report.
func resultMarkdown(res *guardian.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Team proposals (%s)\n\n", res.MissionProfile)
	fmt.Fprintf(&b, "Mode **%s**, week %s, %d candidates", res.Mode, res.Week, res.PoolSize)
	if res.Approximate {
		b.WriteString(", approximate centrality")
	}
	b.WriteString(".\n\n")

	for i, d := range res.Dossiers {
		fmt.Fprintf(&b, "## %d. %s: %s\n\n", i+1, d.Title, d.ExecutiveSummary.Recommendation)
		fmt.Fprintf(&b, "_%s_\n\n", d.Description)
		b.WriteString("| Member | Role | Score | Hours | Risk | Skills |\n|---|---|---|---|---|---|\n")
		for _, c := range d.Team {
			fmt.Fprintf(&b, "| %s | %s | %.2f | %.0f | %s | %s |\n",
				c.Name, c.Role, c.Score, c.AvailabilityHours, c.LinchpinRisk, strings.Join(c.MatchedSkills, ", "))
		}
		fmt.Fprintf(&b, "\nTotal score **%.2f**, bus factor **%d**.\n\n", d.TotalScore, d.BusFactor)
		for _, p := range d.ExecutiveSummary.Pros {
			fmt.Fprintf(&b, "- ✓ %s\n", p)
		}
		for _, c := range d.ExecutiveSummary.Cons {
			fmt.Fprintf(&b, "- ✗ %s\n", c)
		}
		if len(d.RiskAnalysis) > 0 {
			b.WriteString("\n**Risks**\n\n")
			for _, r := range d.RiskAnalysis {
				fmt.Fprintf(&b, "- %s\n", r)
			}
		}
		if d.Rationale != "" {
			fmt.Fprintf(&b, "\n> %s\n", d.Rationale)
		}
		b.WriteString("\n")
	}
	for _, inf := range res.Infeasible {
		fmt.Fprintf(&b, "- **%s** infeasible: %s\n", inf.Strategy, inf.Reason)
	}
	return b.String()
}

func resultText(res *guardian.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Team proposals for %s", res.MissionProfile)))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("mode=%s week=%s pool=%d request=%s", res.Mode, res.Week, res.PoolSize, res.RequestID)))
	b.WriteString("\n\n")

	for i, d := range res.Dossiers {
		var card strings.Builder
		card.WriteString(headerStyle.Render(fmt.Sprintf("%d. %s", i+1, d.Title)))
		card.WriteString("  ")
		card.WriteString(verdictStyle(d.ExecutiveSummary.Recommendation).Render(string(d.ExecutiveSummary.Recommendation)))
		card.WriteString("\n")
		for _, c := range d.Team {
			fmt.Fprintf(&card, "  %-20s %6.2f  %3.0fh  %s\n", c.Name, c.Score, c.AvailabilityHours,
				riskStyle(c.LinchpinRisk).Render(c.LinchpinRisk.String()))
		}
		fmt.Fprintf(&card, "  total %.2f, bus factor %d\n", d.TotalScore, d.BusFactor)
		for _, chk := range d.Checks {
			mark := passStyle.Render("✓")
			if !chk.Passed {
				mark = failStyle.Render("✗")
			}
			fmt.Fprintf(&card, "  %s %s\n", mark, chk.Detail)
		}
		b.WriteString(boxStyle.Render(strings.TrimRight(card.String(), "\n")))
		b.WriteString("\n")
	}
	for _, inf := range res.Infeasible {
		b.WriteString(failStyle.Render(fmt.Sprintf("%s: %s", inf.Strategy, inf.Reason)))
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// LINCHPINS, PROFILES, POLICY
// =============================================================================

func renderLinchpins(w io.Writer, reports []linchpin.Report, format string) error {
	if format == formatJSON {
		rounded := make([]linchpin.Report, 0, len(reports))
		for _, r := range reports {
			rounded = append(rounded, r.Rounded())
		}
		return writeJSON(w, rounded)
	}
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("No linchpins at this risk level."))
		return err
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-20s %-9s %10s  %s", "Person", "Risk", "Centrality", "Unique skills")))
	for _, r := range reports {
		risk := riskStyle(r.Risk).Render(fmt.Sprintf("%-9s", r.Risk))
		unique := strings.Join(r.UniqueSkills, ", ")
		if unique == "" {
			unique = "-"
		}
		fmt.Fprintf(w, "%-20s %s %10.4f  %s\n", r.Name, risk, r.Centrality, unique)
		if len(r.Recommendations) > 0 {
			fmt.Fprintf(w, "%s\n", mutedStyle.Render("  → "+r.Recommendations[0]))
		}
	}
	return nil
}

func renderProfiles(w io.Writer, profiles []mission.Profile, def string, format string) error {
	if format == formatJSON {
		return writeJSON(w, map[string]any{"profiles": profiles, "default": def})
	}
	for _, p := range profiles {
		name := titleStyle.Render(p.ID)
		if p.ID == def {
			name += mutedStyle.Render(" (default)")
		}
		fmt.Fprintf(w, "%s  %s\n", name, p.Name)
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render(p.Description))
		fmt.Fprintf(w, "  prefers %s, mode %s, weights skill=%.1f availability=%.1f collaboration=%.1f linchpin=%.1f\n",
			p.StrategyPreference, p.Mode, p.Weights.Skill, p.Weights.Availability, p.Weights.Collaboration, p.Weights.LinchpinPenalty)
	}
	return nil
}

func renderEvaluation(w io.Writer, team *policy.TeamEvidence, eval *policy.Evaluation, format string) error {
	if format == formatJSON {
		return writeJSON(w, map[string]any{"dossier": team, "evaluation": eval})
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Policy evaluation (%s): %.4f", eval.MissionProfile, eval.OverallScore)))
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d members, %d skills, %d evidence items",
		team.Summary.TeamSize, team.Summary.SkillCount, team.Summary.TotalEvidence)))
	for _, s := range eval.Skills {
		line := fmt.Sprintf("  %-16s %8.4f  %d contributor(s)", s.Skill, s.Score, s.Contributors)
		if len(s.Alerts) > 0 {
			line += "  " + failStyle.Render(strings.Join(s.Alerts, ", "))
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
