package nlsql

import (
	"strings"

	"retailcopilot/internal/types"
)

// CheckReport summarizes the construction-time template audit: the fraction
// of probe questions whose raw rendered SQL is well formed, before and after
// normalization. Diagnostic only; construction never fails on it.
type CheckReport struct {
	Probes         int     `json:"probes"`
	RawRate        float64 `json:"raw_rate"`
	NormalizedRate float64 `json:"normalized_rate"`
}

// checkProbes is a fixed set of representative questions, one or more per
// intent, exercised against an empty and a windowed plan.
var checkProbes = []string{
	"Top 3 products by total revenue all-time.",
	"Top 10 products by revenue.",
	"What was the average order value during winter 1997?",
	"Total revenue for Beverages during summer 1997.",
	"Which category had the highest total quantity sold during summer 1997?",
	"Who was the top customer by gross margin in 1997?",
}

var checkPlans = []types.Plan{
	{},
	{DateFrom: "2013-06-01", DateTo: "2013-06-30"},
}

// selfCheck renders every probe under every plan and scores well-formedness
// of the raw and normalized output.
func (c *Catalog) selfCheck() CheckReport {
	var total, rawOK, normOK int
	for _, probe := range checkProbes {
		q := strings.ToLower(probe)
		intent := c.match(q)
		for _, plan := range checkPlans {
			raw := c.gens[intent](q, plan)
			total++
			if isWellFormed(raw) {
				rawOK++
			}
			if isWellFormed(Normalize(raw)) {
				normOK++
			}
		}
	}
	report := CheckReport{Probes: total}
	if total > 0 {
		report.RawRate = float64(rawOK) / float64(total)
		report.NormalizedRate = float64(normOK) / float64(total)
	}
	return report
}

// isWellFormed applies cheap structural checks: SELECT-fronted, contains a
// FROM clause, balanced parentheses, terminated.
func isWellFormed(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(q, "select") {
		return false
	}
	if !strings.Contains(q, "from") {
		return false
	}
	if !strings.HasSuffix(q, ";") {
		return false
	}
	depth := 0
	for _, r := range q {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
