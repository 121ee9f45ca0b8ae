package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"retailcopilot/internal/agent"
)

var (
	batchIn      string
	batchOutPath string
	batchWorkers int
)

// batchCmd answers a JSONL file of questions and writes a JSONL file of
// responses in the same order.
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Answer a JSONL file of questions",
	Long: `Reads questions as JSON lines ({"id", "question", "format_hint"}) and
writes one response line per question, preserving input order. Malformed
lines are skipped with a diagnostic rather than aborting the run.

Example:
  copilot batch --in questions.jsonl --out answers.jsonl --workers 4`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchIn, "in", "", "Input JSONL file (default: stdin)")
	batchCmd.Flags().StringVar(&batchOutPath, "out", "", "Output JSONL file (default: stdout)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 1, "Parallel workers, each with its own database handle")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if batchIn != "" {
		f, err := os.Open(batchIn)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = os.Stdout
	if batchOutPath != "" {
		f, err := os.Create(batchOutPath)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stats, err := agent.RunBatch(ctx, in, out, factory, batchWorkers)
	if err != nil {
		return err
	}
	logger.Info("Batch complete",
		zap.Int("total", stats.Total),
		zap.Int("answered", stats.Answered),
		zap.Int("malformed", stats.Malformed))
	return nil
}
