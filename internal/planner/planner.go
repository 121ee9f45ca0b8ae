// Package planner derives query constraints for a question: an optional date
// window, a set of category filters, and a metric hint. Planning is a pure
// function of the question text and the retrieved fragments; missing data
// yields an empty Plan, never an error.
package planner

import (
	"regexp"
	"sort"
	"strings"

	"retailcopilot/internal/config"
	"retailcopilot/internal/logging"
	"retailcopilot/internal/types"
)

// categories is the closed vocabulary of the retail schema.
var categories = []string{
	"Beverages",
	"Condiments",
	"Confections",
	"Dairy Products",
	"Grains/Cereals",
	"Meat/Poultry",
	"Produce",
	"Seafood",
}

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// metricRule maps question phrases to a metric, evaluated in priority order.
type metricRule struct {
	phrases []string
	metric  types.Metric
}

var metricRules = []metricRule{
	{phrases: []string{"average order value", "aov"}, metric: types.MetricAOV},
	{phrases: []string{"gross margin", "margin"}, metric: types.MetricMargin},
	{phrases: []string{"revenue"}, metric: types.MetricRevenue},
	{phrases: []string{"quantity", "sold"}, metric: types.MetricQuantity},
}

// Planner holds the year-remapping table. The table is data from config, not
// inference: (season, year) pairs named in questions map to windows known to
// exist in the dataset.
type Planner struct {
	remap []config.YearRemapEntry
}

// New builds a planner from the configured remap table.
func New(cfg config.PlannerConfig) *Planner {
	return &Planner{remap: cfg.YearRemap}
}

// Plan extracts constraints from the question and retrieved fragments.
func (p *Planner) Plan(question string, fragments []types.Fragment) types.Plan {
	var plan types.Plan

	q := strings.ToLower(question)
	var docText strings.Builder
	for _, f := range fragments {
		docText.WriteString(f.Text)
		docText.WriteString(" ")
	}

	plan.DateFrom, plan.DateTo = p.dateWindow(q, docText.String())
	plan.Categories = extractCategories(question + " " + docText.String())
	plan.Metric = extractMetric(q)

	logging.Planner("plan: window=[%s,%s] categories=%v metric=%s",
		plan.DateFrom, plan.DateTo, plan.Categories, plan.Metric)
	return plan
}

// dateWindow resolves the date range: remap-table lookup first, then literal
// date extraction from fragment text.
func (p *Planner) dateWindow(q, docText string) (from, to string) {
	// Season entries first so "summer 1997" beats the bare "1997" row even
	// when the config lists them out of order.
	for _, pass := range []bool{true, false} {
		for _, e := range p.remap {
			hasSeason := e.Season != ""
			if hasSeason != pass {
				continue
			}
			if !strings.Contains(q, e.Year) {
				continue
			}
			if hasSeason && !strings.Contains(q, strings.ToLower(e.Season)) {
				continue
			}
			return e.DateFrom, e.DateTo
		}
	}

	// Fall through to literal dates mentioned in the reference text: the
	// first two distinct dates bound the window; a single date serves as
	// both ends.
	dates := datePattern.FindAllString(docText, -1)
	var distinct []string
	for _, d := range dates {
		if len(distinct) == 1 && distinct[0] == d {
			continue
		}
		distinct = append(distinct, d)
		if len(distinct) == 2 {
			break
		}
	}
	switch len(distinct) {
	case 1:
		return distinct[0], distinct[0]
	case 2:
		return distinct[0], distinct[1]
	}
	return "", ""
}

// extractCategories scans text for members of the closed category vocabulary,
// returning a deduplicated sorted set.
func extractCategories(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	for _, cat := range categories {
		if strings.Contains(lower, strings.ToLower(cat)) {
			seen[cat] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// extractMetric applies the priority-ordered phrase rules; first match wins.
func extractMetric(q string) types.Metric {
	for _, r := range metricRules {
		for _, phrase := range r.phrases {
			if strings.Contains(q, phrase) {
				return r.metric
			}
		}
	}
	return types.MetricNone
}
