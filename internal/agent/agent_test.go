package agent

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailcopilot/internal/config"
	"retailcopilot/internal/execloop"
	"retailcopilot/internal/nlsql"
	"retailcopilot/internal/planner"
	"retailcopilot/internal/router"
	"retailcopilot/internal/store"
	"retailcopilot/internal/synth"
	"retailcopilot/internal/types"
)

// fakeRetriever returns a fixed fragment set.
type fakeRetriever struct {
	fragments []types.Fragment
	err       error
}

func (f *fakeRetriever) Retrieve(string, int) ([]types.Fragment, error) {
	return f.fragments, f.err
}

// fakeService replays canned query results regardless of the SQL text.
type fakeService struct {
	results []store.Result
	errs    []error
	calls   int
}

func (f *fakeService) Execute(string) (store.Result, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		return store.Result{}, errors.New("unexpected call")
	}
	return f.results[i], f.errs[i]
}

func newTestAgent(t *testing.T, retr Retriever, svc execloop.Service) *Agent {
	t.Helper()
	cfg := config.DefaultConfig()
	return New(cfg, Deps{
		Route:     router.Route,
		Retriever: retr,
		Planner:   planner.New(cfg.Planner),
		Catalog:   nlsql.NewCatalog(cfg.Execution.CostRatio),
		Loop:      execloop.New(svc, cfg.Execution.MaxRepairs, nil),
		Synth:     synth.New(cfg.Synthesis),
	})
}

func policyFragments() []types.Fragment {
	return []types.Fragment{
		{
			ID:     "product_policy::chunk0",
			Source: "product_policy.md",
			Text:   "Returns for Beverages are accepted when unopened: 14 days from delivery.",
			Score:  3,
		},
	}
}

func TestAnswerReferenceRoute(t *testing.T) {
	ag := newTestAgent(t, &fakeRetriever{fragments: policyFragments()}, &fakeService{})

	resp := ag.Answer(types.Question{
		ID:         "q1",
		Text:       "What is the return policy window for unopened beverages?",
		FormatHint: "int",
	})
	assert.Equal(t, "q1", resp.ID)
	assert.Equal(t, int64(14), resp.FinalAnswer)
	assert.Empty(t, resp.SQL)
	assert.InDelta(t, 0.6, resp.Confidence, 1e-9)
	assert.Equal(t, []string{"product_policy::chunk0"}, resp.Citations)
}

func TestAnswerReferenceRouteNoExtraction(t *testing.T) {
	frags := []types.Fragment{{ID: "kpi_definitions::chunk0", Text: "No numbers here."}}
	ag := newTestAgent(t, &fakeRetriever{fragments: frags}, &fakeService{})

	resp := ag.Answer(types.Question{
		ID:         "q2",
		Text:       "What is the return policy?",
		FormatHint: "int",
	})
	assert.Equal(t, int64(0), resp.FinalAnswer)
	assert.InDelta(t, 0.3, resp.Confidence, 1e-9)
}

func TestAnswerStructuredRoute(t *testing.T) {
	svc := &fakeService{
		results: []store.Result{{
			Columns: []string{"product", "revenue"},
			Rows: []map[string]any{
				{"product": "Côte de Blaye", "revenue": 141396.73},
				{"product": "Thüringer Rostbratwurst", "revenue": 80368.67},
				{"product": "Raclette Courdavault", "revenue": 71155.7},
			},
		}},
		errs: []error{nil},
	}
	ag := newTestAgent(t, &fakeRetriever{}, svc)

	resp := ag.Answer(types.Question{
		ID:         "q3",
		Text:       "Top 3 products by total revenue all-time.",
		FormatHint: "list[{product:str, revenue:float}]",
	})
	list, ok := resp.FinalAnswer.([]map[string]any)
	require.True(t, ok)
	require.Len(t, list, 3)
	assert.Equal(t, "Côte de Blaye", list[0]["product"])
	assert.Contains(t, resp.SQL, "[Order Details]")
	assert.Contains(t, resp.SQL, "LIMIT 3;")
	assert.Equal(t, []string{"Order Details", "Products"}, resp.Citations)
	assert.InDelta(t, 0.99, resp.Confidence, 1e-9)
}

func TestAnswerStructuredRouteCitesFragments(t *testing.T) {
	svc := &fakeService{
		results: []store.Result{{
			Columns: []string{"product", "revenue"},
			Rows:    []map[string]any{{"product": "Chai", "revenue": 12788.1}},
		}},
		errs: []error{nil},
	}
	frags := []types.Fragment{{
		ID:   "kpi_definitions::chunk0",
		Text: "Line revenue is unit price times quantity, net of the line discount.",
	}}
	ag := newTestAgent(t, &fakeRetriever{fragments: frags}, svc)

	resp := ag.Answer(types.Question{
		ID:         "q3b",
		Text:       "Top 3 products by total revenue all-time.",
		FormatHint: "list[{product:str, revenue:float}]",
	})
	// retrieved fragments are cited even when the strategy is query-only
	assert.Equal(t, []string{"Order Details", "Products", "kpi_definitions::chunk0"}, resp.Citations)
}

func TestAnswerCombinedRouteCitesBoth(t *testing.T) {
	svc := &fakeService{
		results: []store.Result{{
			Columns: []string{"revenue"},
			Rows:    []map[string]any{{"revenue": 9532.5}},
		}},
		errs: []error{nil},
	}
	frags := []types.Fragment{{
		ID:   "marketing_calendar::chunk0",
		Text: "Summer Beverages 1997 campaign ran 2013-06-01 to 2013-06-30.",
	}}
	ag := newTestAgent(t, &fakeRetriever{fragments: frags}, svc)

	resp := ag.Answer(types.Question{
		ID:         "q4",
		Text:       "Total revenue for Beverages during summer 1997?",
		FormatHint: "float",
	})
	assert.Equal(t, 9532.5, resp.FinalAnswer)
	assert.Contains(t, resp.SQL, "BETWEEN '2013-06-01' AND '2013-06-30'")
	assert.Contains(t, resp.Citations, "marketing_calendar::chunk0")
	assert.Contains(t, resp.Citations, "Orders")
	assert.Contains(t, resp.Citations, "Order Details")
}

func TestAnswerQueryFailureDegrades(t *testing.T) {
	boom := errors.New("no such table: Orders")
	svc := &fakeService{
		results: []store.Result{{}, {}, {}},
		errs:    []error{boom, boom, boom},
	}
	ag := newTestAgent(t, &fakeRetriever{}, svc)

	resp := ag.Answer(types.Question{
		ID:         "q5",
		Text:       "What was the average order value during winter 1997?",
		FormatHint: "float",
	})
	assert.Equal(t, 0.0, resp.FinalAnswer)
	assert.Empty(t, resp.SQL)
	assert.Contains(t, resp.Explanation, "no such table")
	assert.LessOrEqual(t, resp.Confidence, 0.6)
	// the attempted query's tables are still cited on failure
	assert.Contains(t, resp.Citations, "Orders")
	assert.Contains(t, resp.Citations, "Order Details")
}

func TestAnswerRetrieverFailureDegrades(t *testing.T) {
	svc := &fakeService{
		results: []store.Result{{
			Columns: []string{"aov"},
			Rows:    []map[string]any{{"aov": 100.0}},
		}},
		errs: []error{nil},
	}
	ag := newTestAgent(t, &fakeRetriever{err: errors.New("index unavailable")}, svc)

	resp := ag.Answer(types.Question{
		ID:         "q6",
		Text:       "What was the AOV during winter 1997?",
		FormatHint: "float",
	})
	// the remap still supplies the window without fragments
	assert.Equal(t, 100.0, resp.FinalAnswer)
	assert.Contains(t, resp.SQL, "'2017-12-01'")
}

func TestAnswerReferenceExcerptRuneSafe(t *testing.T) {
	frags := []types.Fragment{{
		ID:   "product_policy::chunk1",
		Text: strings.Repeat("é", 600),
	}}
	ag := newTestAgent(t, &fakeRetriever{fragments: frags}, &fakeService{})

	resp := ag.Answer(types.Question{
		ID:         "q6b",
		Text:       "What is the return policy text?",
		FormatHint: "",
	})
	excerpt, ok := resp.FinalAnswer.(string)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(excerpt))
	assert.Equal(t, 500, utf8.RuneCountInString(excerpt))
}

func TestAnswerDeterministic(t *testing.T) {
	newAgent := func() *Agent {
		svc := &fakeService{
			results: []store.Result{{
				Columns: []string{"aov"},
				Rows:    []map[string]any{{"aov": 523.46}},
			}},
			errs: []error{nil},
		}
		return newTestAgent(t, &fakeRetriever{}, svc)
	}
	q := types.Question{ID: "q7", Text: "What was the AOV during winter 1997?", FormatHint: "float"}

	first := newAgent().Answer(q)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, newAgent().Answer(q))
	}
}

func TestTablesIn(t *testing.T) {
	got := tablesIn(
		"SELECT 1 FROM [Order Details] od JOIN Orders o JOIN Products p;",
		knownTables,
	)
	assert.Equal(t, []string{"Order Details", "Orders", "Products"}, got)
}
