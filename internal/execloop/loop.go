// Package execloop runs generated SQL against the store under a bounded
// validate-and-repair discipline. Every query gets at most a fixed number of
// repair rounds; each round applies one deterministic rewrite keyed to the
// observed failure. The loop never retries an identical query and always
// terminates with a final attempt, successful or not.
package execloop

import (
	"fmt"
	"strings"

	"retailcopilot/internal/logging"
	"retailcopilot/internal/store"
	"retailcopilot/internal/types"
)

// Service executes one read-only query. *store.DB satisfies it; tests
// substitute a mock.
type Service interface {
	Execute(query string) (store.Result, error)
}

// Outcome is the terminal state of one loop run. History holds every
// attempt in execution order, Final duplicating the last entry.
type Outcome struct {
	Final   types.Attempt
	History []types.Attempt
	Repairs int
}

// Loop is the bounded executor. maxRepairs bounds rewrites, so a run
// executes at most maxRepairs+1 queries.
type Loop struct {
	svc        Service
	maxRepairs int
	trace      *logging.Recorder
}

// New builds a loop over svc. A negative maxRepairs is treated as zero.
func New(svc Service, maxRepairs int, trace *logging.Recorder) *Loop {
	if maxRepairs < 0 {
		maxRepairs = 0
	}
	return &Loop{svc: svc, maxRepairs: maxRepairs, trace: trace}
}

// Run executes query, validating each result against the shape the hint
// demands and repairing on failure until the repair budget is exhausted.
// An empty query is a terminal failure with no execution.
func (l *Loop) Run(query string, hint types.Hint) Outcome {
	query = strings.TrimSpace(query)
	if query == "" {
		att := types.Attempt{Err: "empty query"}
		return Outcome{Final: att, History: []types.Attempt{att}}
	}

	var out Outcome
	for {
		att, engineErr := l.step(query, hint)
		out.History = append(out.History, att)
		out.Final = att

		if att.OK {
			return out
		}
		if out.Repairs >= l.maxRepairs {
			return out
		}

		repaired := repair(query, engineErr, hint)
		if repaired == "" || repaired == query {
			return out
		}
		out.Repairs++
		l.trace.Log(logging.TraceRepair, map[string]any{
			"round": out.Repairs,
			"cause": att.Err,
			"query": repaired,
		})
		logging.SQL("repair round=%d cause=%q", out.Repairs, att.Err)
		query = repaired
	}
}

// step executes one query and validates the result's shape. engineErr
// distinguishes a store failure from a shape rejection so repair can pick
// the matching rewrite.
func (l *Loop) step(query string, hint types.Hint) (types.Attempt, bool) {
	att := types.Attempt{SQL: query}
	l.trace.Log(logging.TraceExecute, map[string]any{"query": query})

	res, err := l.svc.Execute(query)
	if err != nil {
		att.Err = err.Error()
		return att, true
	}
	att.Columns = res.Columns
	att.Rows = res.Rows
	if err := checkShape(att, hint); err != nil {
		att.Err = err.Error()
		return att, false
	}
	att.OK = true
	return att, false
}

// repair picks the single rewrite for a failure: structural fixes for an
// engine error, the scalar rewrap when rows came back in the wrong shape.
// Returns "" when no rewrite applies.
func repair(query string, engineErr bool, hint types.Hint) string {
	if engineErr {
		return structuralRepair(query)
	}
	if hint.Scalar() {
		return wrapScalar(query, hint)
	}
	return ""
}

// checkShape verifies the result satisfies the hint's shape contract.
func checkShape(att types.Attempt, hint types.Hint) error {
	switch hint.Kind {
	case types.KindInt, types.KindFloat:
		if len(att.Rows) == 0 {
			return fmt.Errorf("scalar expected, got no rows")
		}
		if !hasNumericCell(att.Rows[0]) {
			return fmt.Errorf("scalar expected, first row has no numeric value")
		}
	case types.KindObject:
		if len(att.Rows) == 0 {
			return fmt.Errorf("record expected, got no rows")
		}
	}
	// list and raw accept anything, including zero rows
	return nil
}

func hasNumericCell(row map[string]any) bool {
	for _, v := range row {
		if _, ok := types.AsFloat(v); ok {
			return true
		}
	}
	return false
}

// structuralRepair applies the cheap textual fixes for a failed parse:
// bracket-quote the order-detail table and restore the terminator.
func structuralRepair(query string) string {
	repaired := query
	if !strings.Contains(repaired, "[Order Details]") {
		repaired = strings.ReplaceAll(repaired, "Order Details", "[Order Details]")
		repaired = strings.ReplaceAll(repaired, "OrderDetails", "[Order Details]")
	}
	if !strings.HasSuffix(strings.TrimSpace(repaired), ";") {
		repaired = strings.TrimSpace(repaired) + ";"
	}
	return repaired
}

// wrapScalar rewraps a multi-row or multi-column result into one aggregate
// value, averaging whatever the inner query produced.
func wrapScalar(query string, hint types.Hint) string {
	inner := strings.TrimSuffix(strings.TrimSpace(query), ";")
	col := firstSelectColumn(inner)
	if hint.Kind == types.KindInt {
		return fmt.Sprintf("SELECT CAST(ROUND(AVG(%s)) AS INTEGER) AS val FROM (%s) AS sub;", col, inner)
	}
	return fmt.Sprintf("SELECT ROUND(AVG(%s), 2) AS val FROM (%s) AS sub;", col, inner)
}

// firstSelectColumn extracts the alias or expression of the first projected
// column, defaulting to * when the query cannot be picked apart.
func firstSelectColumn(query string) string {
	lower := strings.ToLower(query)
	idx := strings.Index(lower, "select")
	if idx < 0 {
		return "*"
	}
	rest := query[idx+len("select"):]
	// split at top-level comma only
	depth := 0
	end := len(rest)
	for i, r := range rest {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				end = i
			}
		}
		if end == i {
			break
		}
	}
	first := strings.TrimSpace(rest[:end])
	if from := strings.Index(strings.ToLower(first), " from "); from >= 0 {
		first = strings.TrimSpace(first[:from])
	}
	if alias := lastAlias(first); alias != "" {
		return alias
	}
	return "*"
}

func lastAlias(expr string) string {
	lower := strings.ToLower(expr)
	if idx := strings.LastIndex(lower, " as "); idx >= 0 {
		return strings.TrimSpace(expr[idx+4:])
	}
	// bare identifier projections are their own alias
	if !strings.ContainsAny(expr, " (") {
		return expr
	}
	return ""
}
