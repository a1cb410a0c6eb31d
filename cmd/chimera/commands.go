package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smartchimera/internal/api"
	"smartchimera/internal/guardian"
	"smartchimera/internal/store"
	"smartchimera/internal/types"
)

// recommendCmd runs team formation.
var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Propose teams covering the required skills",
	Long: `Searches for up to three alternative teams (safe bet, growth team,
speed squad) that cover --skills with exactly -k members, respect hard
constraints and honour --include/--exclude.`,
	Example: `  chimera recommend --skills Go,PostgreSQL -k 3 --profile critical
  chimera recommend --skills COBOL -k 2 --include p-17 --format markdown`,
	RunE: runRecommend,
}

var recommendOpts struct {
	skills   []string
	k        int
	profile  string
	minHours float64
	week     string
	include  []string
	exclude  []string
	mode     string
	format   string
}

// linchpinsCmd lists bus-factor risks.
var linchpinsCmd = &cobra.Command{
	Use:   "linchpins",
	Short: "List people whose departure would strand knowledge",
	RunE:  runLinchpins,
}

var linchpinOpts struct {
	minRisk string
	format  string
}

// simulateCmd evaluates an arbitrary team against the policy rules.
var simulateCmd = &cobra.Command{
	Use:     "simulate <person-id>...",
	Short:   "Build an evidence dossier for a team and evaluate it",
	Example: `  chimera simulate p-1 p-4 --profile security_audit --evidence-limit 3`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runSimulate,
}

var simulateOpts struct {
	profile       string
	evidenceLimit int
	format        string
}

// profilesCmd lists mission profiles.
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List mission profiles",
	RunE:  runProfiles,
}

var profilesFormat string

// recomputeCmd refreshes the persisted skill-level snapshot.
var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute and persist every person's skill levels",
	RunE:  runRecompute,
}

// seedCmd imports a YAML dataset into the SQLite store.
var seedCmd = &cobra.Command{
	Use:   "seed <dataset.yaml>",
	Short: "Load a YAML dataset into the SQLite evidence store",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON HTTP API",
	RunE:  runServe,
}

var serveAddr string

func init() {
	f := recommendCmd.Flags()
	f.StringSliceVarP(&recommendOpts.skills, "skills", "s", nil, "Required skills (comma separated)")
	f.IntVarP(&recommendOpts.k, "size", "k", 3, "Team size")
	f.StringVarP(&recommendOpts.profile, "profile", "p", "", "Mission profile (default from the profile catalogue)")
	f.Float64Var(&recommendOpts.minHours, "min-hours", 0, "Minimum weekly hours per candidate")
	f.StringVar(&recommendOpts.week, "week", "", "ISO week, e.g. 2025-W14 (default: current week)")
	f.StringSliceVar(&recommendOpts.include, "include", nil, "Person ids that must be on every team")
	f.StringSliceVar(&recommendOpts.exclude, "exclude", nil, "Person ids that must not be on any team")
	f.StringVar(&recommendOpts.mode, "mode", "", "Formation mode: performance or resilient (default from profile)")
	f.StringVarP(&recommendOpts.format, "format", "f", formatText, "Output format: text, markdown or json")
	_ = recommendCmd.MarkFlagRequired("skills")

	linchpinsCmd.Flags().StringVar(&linchpinOpts.minRisk, "min-risk", "low", "Lowest risk level to list: low, medium, high, critical")
	linchpinsCmd.Flags().StringVarP(&linchpinOpts.format, "format", "f", formatText, "Output format: text or json")

	simulateCmd.Flags().StringVarP(&simulateOpts.profile, "profile", "p", "", "Mission profile whose rules apply")
	simulateCmd.Flags().IntVar(&simulateOpts.evidenceLimit, "evidence-limit", 0, "Evidence items kept per contributor (default from config)")
	simulateCmd.Flags().StringVarP(&simulateOpts.format, "format", "f", formatText, "Output format: text or json")

	profilesCmd.Flags().StringVarP(&profilesFormat, "format", "f", formatText, "Output format: text or json")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func runRecommend(cmd *cobra.Command, args []string) error {
	if err := validFormat(recommendOpts.format); err != nil {
		return err
	}
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	req := guardian.Request{
		RequiredSkills: recommendOpts.skills,
		K:              recommendOpts.k,
		MissionProfile: recommendOpts.profile,
		MinHours:       recommendOpts.minHours,
		Week:           recommendOpts.week,
		ForceInclude:   recommendOpts.include,
		ForceExclude:   recommendOpts.exclude,
		Mode:           recommendOpts.mode,
	}
	logger.Info("forming teams", zap.Strings("skills", req.RequiredSkills), zap.Int("k", req.K), zap.String("profile", req.MissionProfile))

	res, err := a.formation.FormTeams(ctx, req)
	if err != nil {
		var inf *types.InfeasibleError
		if errors.As(err, &inf) {
			for _, r := range inf.Reasons {
				fmt.Fprintln(cmd.ErrOrStderr(), failStyle.Render("  "+r))
			}
		}
		return err
	}
	return renderResult(cmd.OutOrStdout(), res, recommendOpts.format)
}

func runLinchpins(cmd *cobra.Command, args []string) error {
	minRisk, ok := types.ParseRiskLevel(linchpinOpts.minRisk)
	if !ok {
		return fmt.Errorf("unknown risk level %q", linchpinOpts.minRisk)
	}
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	reports, err := a.detector.ListLinchpins(ctx, minRisk)
	if err != nil {
		return err
	}
	return renderLinchpins(cmd.OutOrStdout(), reports, linchpinOpts.format)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simulateOpts.evidenceLimit < 0 {
		return fmt.Errorf("--evidence-limit must be non-negative")
	}
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	limit := cfg.Policy.EvidenceLimit
	if cmd.Flags().Changed("evidence-limit") {
		limit = simulateOpts.evidenceLimit
	}
	team, err := a.builder(limit).Build(ctx, args, simulateOpts.profile)
	if err != nil {
		return err
	}
	eval, err := a.policy.Evaluate(team, simulateOpts.profile, nil)
	if err != nil {
		return err
	}
	return renderEvaluation(cmd.OutOrStdout(), team, eval, simulateOpts.format)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return renderProfiles(cmd.OutOrStdout(), a.profiles.List(), a.profiles.Default().ID, profilesFormat)
}

func runRecompute(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	report, err := a.scorer.Recompute(ctx, a.graph, a.recorder, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recomputed %d skill levels for %d persons.\n", len(report.Records), report.Persons)
	if a.local == nil {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Dataset mode: levels were not written to disk."))
	}
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	ds, err := store.LoadDataset(args[0])
	if err != nil {
		return err
	}
	local, err := store.NewLocalStore(cfg.Store.Driver, cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("open evidence store: %w", err)
	}
	defer local.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if err := local.ImportDataset(ctx, ds); err != nil {
		return err
	}
	stats, err := local.GetStats()
	if err != nil {
		return err
	}
	logger.Info("dataset imported", zap.String("path", args[0]), zap.String("db", cfg.Store.DatabasePath), zap.Any("rows", stats))
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s: %d persons, %d evidence items, %d collaborations, %d constraints.\n",
		cfg.Store.DatabasePath, stats["persons"], stats["evidence"], stats["collaborations"], stats["constraints"])
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := api.New(api.Deps{
		Graph:     a.graph,
		Formation: a.formation,
		Linchpins: a.detector,
		Policy:    a.policy,
		Profiles:  a.profiles,
		Scorer:    a.scorer,
		Recorder:  a.recorder,
	}, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.GetRequestTimeout(),
		EvidenceLimit:  cfg.Policy.EvidenceLimit,
		Logger:         logger,
	})

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx, addr, cfg.GetReadTimeout(), cfg.GetWriteTimeout())
}
