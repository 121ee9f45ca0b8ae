// Package router classifies a question into an answer strategy: reference
// documents only, structured query only, or combined. Classification is a
// total, deterministic function of the question text: ordered rule tiers of
// conjunctive keyword sets, first match wins, with a keyword fallback and a
// safe default of combined.
package router

import (
	"regexp"
	"strings"

	"retailcopilot/internal/logging"
	"retailcopilot/internal/types"
)

// rule matches when every keyword is present in the lowercased question.
// Conjunctions keep false positives down compared to single-keyword matching.
type rule struct {
	keywords []string
	route    types.Route
}

// Tiers are evaluated in order; within a tier, rules are evaluated in order.
var tiers = [][]rule{
	// Reference-only: policy/definition questions.
	{
		{keywords: []string{"policy", "return"}, route: types.RouteReference},
		{keywords: []string{"return window"}, route: types.RouteReference},
		{keywords: []string{"return days"}, route: types.RouteReference},
		{keywords: []string{"unopened beverages"}, route: types.RouteReference},
	},
	// Structured-only: pure aggregates with no temporal qualifier.
	{
		{keywords: []string{"top 3 products", "revenue"}, route: types.RouteStructured},
		{keywords: []string{"top 3 products"}, route: types.RouteStructured},
	},
	// Combined: temporal/seasonal cue paired with a data/aggregate cue.
	{
		{keywords: []string{"during", "summer"}, route: types.RouteCombined},
		{keywords: []string{"during", "winter"}, route: types.RouteCombined},
		{keywords: []string{"category", "quantity", "summer"}, route: types.RouteCombined},
		{keywords: []string{"aov", "winter"}, route: types.RouteCombined},
		{keywords: []string{"aov", "during"}, route: types.RouteCombined},
		{keywords: []string{"revenue", "beverages", "summer"}, route: types.RouteCombined},
		{keywords: []string{"best customer", "margin"}, route: types.RouteCombined},
		{keywords: []string{"gross margin"}, route: types.RouteCombined},
	},
}

var aggregateKeywords = []string{
	"top", "revenue", "total", "average", "margin", "quantity", "aov",
}

var temporalKeywords = []string{
	"during", "summer", "winter", "spring", "autumn", "fall", "date",
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Route classifies a question. It never fails: any input, including the
// empty string, yields a route, defaulting to combined.
func Route(question string) types.Route {
	q := strings.ToLower(question)

	for _, tier := range tiers {
		for _, r := range tier {
			if matchesAll(q, r.keywords) {
				logging.Routing("route=%s rule=%v", r.route, r.keywords)
				return r.route
			}
		}
	}

	if containsAny(q, aggregateKeywords) {
		// A bare year reference counts as a temporal cue.
		if containsAny(q, temporalKeywords) || hasYear(q) {
			logging.Routing("route=combined fallback (aggregate + temporal)")
			return types.RouteCombined
		}
		logging.Routing("route=structured fallback (aggregate only)")
		return types.RouteStructured
	}

	// Safe default: combined retrieves for citations regardless.
	logging.Routing("route=combined default")
	return types.RouteCombined
}

func matchesAll(q string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(q, kw) {
			return false
		}
	}
	return true
}

func containsAny(q string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

func hasYear(q string) bool {
	return yearPattern.MatchString(q)
}
