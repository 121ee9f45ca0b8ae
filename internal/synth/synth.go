// Package synth turns a terminal execution attempt into the final answer
// payload: a value shaped by the question's output hint, a heuristic
// confidence score, a short explanation, and merged citations.
package synth

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"retailcopilot/internal/config"
	"retailcopilot/internal/logging"
	"retailcopilot/internal/types"
)

// Input carries everything the synthesizer reads. Tables are the structured
// sources touched by the executed query; FragmentIDs the retrieved document
// fragments consulted for the question.
type Input struct {
	Attempt     types.Attempt
	Hint        types.Hint
	Tables      []string
	FragmentIDs []string
	Repairs     int
}

// Output is the synthesized tail of a response.
type Output struct {
	Value       any
	Confidence  float64
	Explanation string
	Citations   []string
}

// Synthesizer applies the configured confidence weights. It holds no other
// state and is safe for concurrent use.
type Synthesizer struct {
	w config.SynthesisConfig
}

// New builds a synthesizer with the given weights.
func New(w config.SynthesisConfig) *Synthesizer {
	return &Synthesizer{w: w}
}

// Synthesize produces the hint-shaped value plus confidence, explanation and
// citations. It is total: a failed attempt yields the hint's zero value with
// floor confidence, never an error.
func (s *Synthesizer) Synthesize(in Input) Output {
	out := Output{
		Citations: MergeCitations(in.Tables, in.FragmentIDs),
	}

	if in.Attempt.OK {
		out.Value = extract(in.Attempt, in.Hint)
		out.Explanation = explain(in.Attempt, in.Hint)
	} else {
		out.Value = zeroValue(in.Hint)
		out.Explanation = failureExplanation(in.Attempt)
	}
	out.Confidence = s.confidence(in)

	logging.Synth("kind=%d rows=%d repairs=%d confidence=%.2f",
		in.Hint.Kind, len(in.Attempt.Rows), in.Repairs, out.Confidence)
	return out
}

// confidence is the additive heuristic: base, plus bonuses for produced
// rows, a non-trivial query, and a repair-free run, clamped to the
// configured band.
func (s *Synthesizer) confidence(in Input) float64 {
	c := s.w.BaseConfidence
	if in.Attempt.OK && len(in.Attempt.Rows) > 0 {
		c += s.w.RowsBonus
	}
	if len(in.Attempt.SQL) > 20 {
		c += s.w.QueryBonus
	}
	if in.Repairs == 0 {
		c += s.w.CleanBonus
	}
	c = math.Min(math.Max(c, s.w.MinConfidence), s.w.MaxConfidence)
	// reported to 2 decimals so responses stay byte-stable
	return round2(c)
}

// =============================================================================
// VALUE EXTRACTION
// =============================================================================

func extract(att types.Attempt, hint types.Hint) any {
	switch hint.Kind {
	case types.KindInt:
		if v, ok := firstNumeric(att); ok {
			return int64(math.Round(v))
		}
		return int64(0)
	case types.KindFloat:
		if v, ok := firstNumeric(att); ok {
			return round2(v)
		}
		return 0.0
	case types.KindObject:
		if len(att.Rows) == 0 {
			return zeroObject(hint)
		}
		return shapeRow(att.Rows[0], hint.Fields)
	case types.KindList:
		list := make([]map[string]any, 0, len(att.Rows))
		for _, row := range att.Rows {
			list = append(list, shapeRow(row, hint.Fields))
		}
		return list
	default:
		if len(att.Rows) > 0 {
			return att.Rows
		}
		return []map[string]any{}
	}
}

// firstNumeric scans row 0 in column order for the first numeric cell.
func firstNumeric(att types.Attempt) (float64, bool) {
	if len(att.Rows) == 0 {
		return 0, false
	}
	row := att.Rows[0]
	for _, col := range att.Columns {
		if v, ok := types.AsFloat(row[col]); ok {
			return v, true
		}
	}
	// column list may be absent for synthetic attempts
	for _, v := range row {
		if f, ok := types.AsFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// shapeRow projects a result row onto the hint's declared fields, matching
// column names case-insensitively and coercing each value to the declared
// type. Missing columns get typed zero values.
func shapeRow(row map[string]any, fields []types.Field) map[string]any {
	if len(fields) == 0 {
		return row
	}
	shaped := make(map[string]any, len(fields))
	for _, f := range fields {
		v, found := lookupColumn(row, f.Name)
		shaped[f.Name] = coerce(v, f.Type, found)
	}
	return shaped
}

func lookupColumn(row map[string]any, name string) (any, bool) {
	if v, ok := row[name]; ok {
		return v, true
	}
	for col, v := range row {
		if strings.EqualFold(col, name) {
			return v, true
		}
	}
	return nil, false
}

func coerce(v any, typ string, found bool) any {
	switch typ {
	case "int":
		if found {
			if f, ok := types.AsFloat(v); ok {
				return int64(math.Round(f))
			}
		}
		return int64(0)
	case "float":
		if found {
			if f, ok := types.AsFloat(v); ok {
				return round2(f)
			}
		}
		return 0.0
	default:
		if found {
			return types.AsString(v)
		}
		return ""
	}
}

func zeroValue(hint types.Hint) any {
	switch hint.Kind {
	case types.KindInt:
		return int64(0)
	case types.KindFloat:
		return 0.0
	case types.KindObject:
		return zeroObject(hint)
	default:
		return []map[string]any{}
	}
}

func zeroObject(hint types.Hint) map[string]any {
	obj := make(map[string]any, len(hint.Fields))
	for _, f := range hint.Fields {
		obj[f.Name] = coerce(nil, f.Type, false)
	}
	return obj
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// =============================================================================
// EXPLANATIONS AND CITATIONS
// =============================================================================

// explain produces a short factual note about where the value came from.
func explain(att types.Attempt, hint types.Hint) string {
	switch hint.Kind {
	case types.KindInt, types.KindFloat:
		return "Computed a single value from the structured query result."
	case types.KindObject:
		return "Built the record from the first row of the query result."
	case types.KindList:
		return fmt.Sprintf("Listed %d rows from the query result.", len(att.Rows))
	default:
		return fmt.Sprintf("Returned the raw query result (%d rows).", len(att.Rows))
	}
}

func failureExplanation(att types.Attempt) string {
	if att.Err == "" {
		return "The query produced no usable result."
	}
	return fmt.Sprintf("The query did not produce a usable result: %s.", att.Err)
}

// MergeCitations unions table names and fragment ids into one sorted,
// deduplicated list.
func MergeCitations(tables, fragmentIDs []string) []string {
	seen := make(map[string]struct{}, len(tables)+len(fragmentIDs))
	merged := make([]string, 0, len(tables)+len(fragmentIDs))
	for _, c := range append(append([]string{}, tables...), fragmentIDs...) {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		merged = append(merged, c)
	}
	sort.Strings(merged)
	return merged
}
