package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"smartchimera/internal/config"
	"smartchimera/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	datasetArg string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chimera",
	Short: "SmartChimera - evidence-based team assembly and bus-factor risk",
	Long: `SmartChimera proposes project teams from verifiable skill evidence.

It scores skills from commits, tickets and peer validation, flags people
whose departure would strand knowledge (linchpins), and searches for three
alternative teams (safe bet, growth, speed) under hard constraints.

The evidence graph lives in SQLite (see "chimera seed") or in a YAML
dataset passed with --dataset.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if datasetArg != "" {
			cfg.Store.Dataset = datasetArg
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", path, err)
		}

		root := config.FindWorkspaceRoot("")
		lc := cfg.Logging
		if err := logging.InitializeWith(root, lc.DebugMode || verbose, lc.Level, lc.Format, lc.Categories); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
		logger.Debug("config loaded", zap.String("path", path), zap.String("workspace", root))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		logging.CloseAudit()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.chimera/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&datasetArg, "dataset", "", "Serve the evidence graph from a YAML dataset instead of SQLite")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(linchpinsCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext bounds a one-shot command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}
