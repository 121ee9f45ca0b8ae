package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"retailcopilot/internal/agent"
	"retailcopilot/internal/config"
	"retailcopilot/internal/execloop"
	"retailcopilot/internal/logging"
	"retailcopilot/internal/nlsql"
	"retailcopilot/internal/planner"
	"retailcopilot/internal/retrieval"
	"retailcopilot/internal/router"
	"retailcopilot/internal/store"
	"retailcopilot/internal/synth"
)

var (
	// Global flags
	verbose   bool
	workspace string
	dbPath    string
	docsPath  string
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "retailcopilot - deterministic retail Q&A over SQLite and reference docs",
	Long: `retailcopilot answers natural language questions about a retail dataset.

Each question is routed to one of three strategies: answer from reference
documents, answer from a structured SQLite query, or combine both. Queries
come from a fixed template catalog, run under a bounded validate-and-repair
loop, and every answer carries a confidence score and citations.

The whole pipeline is deterministic: same input, same output, no network.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("Categorized logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&docsPath, "docs", "", "Reference document directory (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(selfcheckCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the workspace configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Path(workspace))
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if docsPath != "" {
		cfg.DocsPath = docsPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolvePath anchors a relative config path at the workspace.
func resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

// newFactory builds agents for the pipeline. The retrieval index is shared
// (it is immutable after construction); each agent opens its own database
// handle so batch workers never share a connection.
func newFactory(cfg *config.Config) (agent.Factory, error) {
	index, err := retrieval.BuildIndex(resolvePath(cfg.DocsPath), retrieval.Config{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build document index: %w", err)
	}
	logger.Info("Document index ready", zap.Int("fragments", index.Size()))

	catalog := nlsql.NewCatalog(cfg.Execution.CostRatio)

	return func() (*agent.Agent, func(), error) {
		db, err := store.Open(resolvePath(cfg.DatabasePath))
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureViews(); err != nil {
			// read-only databases still work, templates use canonical names
			logger.Debug("Compatibility views unavailable", zap.Error(err))
		}

		tables, err := db.ListTables()
		if err != nil || len(tables) == 0 {
			tables = nil // agent falls back to the canonical vocabulary
		}

		trace := logging.NewRecorder(workspace)
		ag := agent.New(cfg, agent.Deps{
			Route:     router.Route,
			Retriever: index,
			Planner:   planner.New(cfg.Planner),
			Catalog:   catalog,
			Loop:      execloop.New(db, cfg.Execution.MaxRepairs, trace),
			Synth:     synth.New(cfg.Synthesis),
			Trace:     trace,
			Tables:    tables,
		})
		cleanup := func() { _ = db.Close() }
		return ag, cleanup, nil
	}, nil
}
