// Package types provides shared type definitions used across retailcopilot packages.
// This package exists to break import cycles between the pipeline stages
// (router, planner, nlsql, execloop, synth) and the orchestrating agent.
// Types in this package are foundational data structures with no complex dependencies.
package types

// =============================================================================
// QUESTION AND ROUTE
// =============================================================================

// Question is the immutable per-request input: an identifier, the natural
// language text, and a raw output-type hint (see hint.go for the grammar).
type Question struct {
	ID         string `json:"id"`
	Text       string `json:"question"`
	FormatHint string `json:"format_hint"`
}

// Route is the answer strategy selected for a question.
type Route string

const (
	// RouteReference answers from retrieved document fragments only.
	RouteReference Route = "reference"
	// RouteStructured answers from a structured query only.
	RouteStructured Route = "structured"
	// RouteCombined retrieves for constraints/citations and also queries.
	RouteCombined Route = "combined"
)

// =============================================================================
// RETRIEVED FRAGMENTS
// =============================================================================

// Fragment is a chunk of reference-document text returned by the retriever.
// The ID is stable (derived from source name + chunk position) so that
// citations are reproducible across runs.
type Fragment struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// =============================================================================
// PLAN
// =============================================================================

// Metric is a fixed enumeration of the metrics the planner can recognize.
type Metric string

const (
	MetricNone     Metric = ""
	MetricAOV      Metric = "AVERAGE_ORDER_VALUE"
	MetricMargin   Metric = "GROSS_MARGIN"
	MetricRevenue  Metric = "REVENUE"
	MetricQuantity Metric = "QUANTITY"
)

// Plan holds the query constraints derived for one question. It is built once
// by the planner and read-only downstream. Empty DateFrom/DateTo means no
// date window; Categories is deduplicated and sorted.
type Plan struct {
	DateFrom   string   `json:"date_from,omitempty"`
	DateTo     string   `json:"date_to,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Metric     Metric   `json:"metric,omitempty"`
}

// HasDateRange reports whether both window bounds are set.
func (p Plan) HasDateRange() bool {
	return p.DateFrom != "" && p.DateTo != ""
}

// =============================================================================
// EXECUTION ATTEMPTS
// =============================================================================

// Attempt records one execution of a generated query. A sequence of attempts
// accumulates per question; the final one (passing shape validation, or the
// last failure) feeds the synthesizer.
type Attempt struct {
	SQL     string           `json:"sql"`
	OK      bool             `json:"ok"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	Err     string           `json:"error,omitempty"`
}

// =============================================================================
// RESPONSE
// =============================================================================

// Response is the terminal artifact of one question. FinalAnswer's shape
// always matches the question's format hint, degrading to a type-appropriate
// zero value on total failure. Citations are sorted and deduplicated.
type Response struct {
	ID          string   `json:"id"`
	FinalAnswer any      `json:"final_answer"`
	SQL         string   `json:"sql"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Citations   []string `json:"citations"`
}
