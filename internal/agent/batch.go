package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"retailcopilot/internal/logging"
	"retailcopilot/internal/types"
)

// Factory builds an independent agent plus its cleanup. Each batch worker
// gets its own agent so no database handle is shared across goroutines.
type Factory func() (*Agent, func(), error)

// BatchStats summarizes one batch run.
type BatchStats struct {
	Total     int
	Answered  int
	Malformed int
}

// RunBatch reads questions as JSON lines from in, answers them, and writes
// one JSON line per answered question to out in input order. Malformed lines
// are skipped and counted, never fatal. workers below 1 is treated as 1.
func RunBatch(ctx context.Context, in io.Reader, out io.Writer, factory Factory, workers int) (BatchStats, error) {
	var stats BatchStats

	questions, malformed, err := readQuestions(in)
	if err != nil {
		return stats, err
	}
	stats.Malformed = malformed
	stats.Total = len(questions) + malformed

	if workers < 1 {
		workers = 1
	}
	if workers > len(questions) && len(questions) > 0 {
		workers = len(questions)
	}

	responses := make([]types.Response, len(questions))

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := range questions {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			ag, cleanup, err := factory()
			if err != nil {
				return fmt.Errorf("failed to build agent: %w", err)
			}
			defer cleanup()
			for i := range jobs {
				responses[i] = ag.Answer(questions[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	enc := json.NewEncoder(out)
	for _, resp := range responses {
		if err := enc.Encode(resp); err != nil {
			return stats, fmt.Errorf("failed to write response: %w", err)
		}
		stats.Answered++
	}
	return stats, nil
}

// readQuestions parses the JSONL input. A line that is blank, not valid
// JSON, or missing an id or question is counted malformed and skipped.
func readQuestions(in io.Reader) ([]types.Question, int, error) {
	var questions []types.Question
	malformed := 0

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var q types.Question
		if err := json.Unmarshal([]byte(line), &q); err != nil {
			fmt.Fprintf(os.Stderr, "skipping malformed line %d: %v\n", lineNo, err)
			logging.Get(logging.CategoryBoot).Warn("skipping malformed line %d: %v", lineNo, err)
			malformed++
			continue
		}
		if q.ID == "" || q.Text == "" {
			fmt.Fprintf(os.Stderr, "skipping line %d: missing id or question\n", lineNo)
			logging.Get(logging.CategoryBoot).Warn("skipping line %d: missing id or question", lineNo)
			malformed++
			continue
		}
		questions = append(questions, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, fmt.Errorf("failed to read input: %w", err)
	}
	return questions, malformed, nil
}
