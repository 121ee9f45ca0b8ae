// Package nlsql maps a question to one of a closed catalog of named intents,
// each bound to a parameterized SQL template generator over the retail
// schema. Matching mirrors the router's style: priority-ordered conjunctive
// phrase rules with a safe default, never an error. Generators are pure
// functions of the Plan.
package nlsql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"retailcopilot/internal/logging"
	"retailcopilot/internal/types"
)

// Intent names a fixed query pattern. The catalog is closed; intents are
// never created dynamically.
type Intent string

const (
	IntentTopProductsRevenue    Intent = "top_products_revenue"
	IntentAOVRange              Intent = "aov_range"
	IntentCategoryRevenueRange  Intent = "category_revenue_range"
	IntentTopCategoryQuantity   Intent = "top_category_quantity_range"
	IntentTopCustomerMarginYear Intent = "top_customer_margin_year"
)

// generator produces a complete, terminated SQL string for a plan.
type generator func(q string, plan types.Plan) string

// matchRule selects an intent when all phrases occur in the question.
type matchRule struct {
	phrases []string
	intent  Intent
}

// Catalog is the fixed intent catalog. Construction runs a one-time
// self-check (see selfcheck.go) whose report is diagnostic only.
type Catalog struct {
	costRatio float64
	rules     []matchRule
	fallbacks []matchRule
	gens      map[Intent]generator
	report    CheckReport
}

var topNPattern = regexp.MustCompile(`top\s+(\d+)`)

// NewCatalog builds the catalog. costRatio is the fixed unit-cost fraction
// used by margin templates (0.7 in the reference configuration).
func NewCatalog(costRatio float64) *Catalog {
	c := &Catalog{costRatio: costRatio}

	c.rules = []matchRule{
		{phrases: []string{"top", "products", "revenue"}, intent: IntentTopProductsRevenue},
		{phrases: []string{"average order value"}, intent: IntentAOVRange},
		{phrases: []string{"aov"}, intent: IntentAOVRange},
		{phrases: []string{"category", "highest total quantity"}, intent: IntentTopCategoryQuantity},
		{phrases: []string{"total revenue", "beverages"}, intent: IntentCategoryRevenueRange},
		{phrases: []string{"revenue", "category"}, intent: IntentCategoryRevenueRange},
		{phrases: []string{"top customer", "margin"}, intent: IntentTopCustomerMarginYear},
		{phrases: []string{"best customer", "margin"}, intent: IntentTopCustomerMarginYear},
	}
	// Looser single-cue rules, consulted only when no conjunction matched.
	c.fallbacks = []matchRule{
		{phrases: []string{"margin"}, intent: IntentTopCustomerMarginYear},
		{phrases: []string{"quantity"}, intent: IntentTopCategoryQuantity},
		{phrases: []string{"revenue"}, intent: IntentTopProductsRevenue},
	}

	c.gens = map[Intent]generator{
		IntentTopProductsRevenue:    c.genTopProducts,
		IntentAOVRange:              c.genAOVRange,
		IntentCategoryRevenueRange:  c.genCategoryRevenue,
		IntentTopCategoryQuantity:   c.genTopCategoryQuantity,
		IntentTopCustomerMarginYear: c.genTopCustomerMargin,
	}

	c.report = c.selfCheck()
	return c
}

// Generate selects the intent for a question and renders its template
// against the plan. Total: an unmatched question falls back to the default
// intent rather than failing.
func (c *Catalog) Generate(question string, plan types.Plan) (string, Intent) {
	intent := c.match(strings.ToLower(question))
	query := c.gens[intent](strings.ToLower(question), plan)
	query = Normalize(query)
	logging.SQL("intent=%s query=%s", intent, query)
	return query, intent
}

// Report returns the construction-time self-check diagnostics.
func (c *Catalog) Report() CheckReport {
	return c.report
}

func (c *Catalog) match(q string) Intent {
	for _, r := range c.rules {
		if matchesAll(q, r.phrases) {
			return r.intent
		}
	}
	for _, r := range c.fallbacks {
		if matchesAll(q, r.phrases) {
			return r.intent
		}
	}
	return IntentTopProductsRevenue
}

func matchesAll(q string, phrases []string) bool {
	for _, p := range phrases {
		if !strings.Contains(q, p) {
			return false
		}
	}
	return true
}

// Normalize applies the trivial well-formedness pass: trimmed, SELECT
// leading clause, trailing terminator.
func Normalize(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}
	if !strings.HasPrefix(strings.ToLower(query), "select") {
		query = "SELECT " + query
	}
	if !strings.HasSuffix(query, ";") {
		query += ";"
	}
	return query
}

// =============================================================================
// TEMPLATE GENERATORS
// =============================================================================

// revenueExpr is the closed-form revenue arithmetic shared by templates.
const revenueExpr = "od.UnitPrice * od.Quantity * (1 - od.Discount)"

// genTopProducts ranks products by all-time revenue. N is parsed from the
// question ("top 5 products"), defaulting to 3.
func (c *Catalog) genTopProducts(q string, _ types.Plan) string {
	n := 3
	if m := topNPattern.FindStringSubmatch(q); m != nil {
		if parsed, err := strconv.Atoi(m[1]); err == nil && parsed > 0 && parsed <= 100 {
			n = parsed
		}
	}
	return fmt.Sprintf(
		"SELECT p.ProductName AS product, "+
			"ROUND(SUM(%s), 2) AS revenue "+
			"FROM [Order Details] od "+
			"JOIN Products p ON p.ProductID = od.ProductID "+
			"GROUP BY p.ProductID "+
			"ORDER BY revenue DESC "+
			"LIMIT %d;", revenueExpr, n)
}

// genAOVRange computes average order value over the plan's date window.
func (c *Catalog) genAOVRange(_ string, plan types.Plan) string {
	return "SELECT ROUND(" +
		"SUM(" + revenueExpr + ") * 1.0 / NULLIF(COUNT(DISTINCT o.OrderID), 0), " +
		"2) AS aov " +
		"FROM [Order Details] od " +
		"JOIN Orders o ON o.OrderID = od.OrderID" +
		whereDate(plan, "WHERE") + ";"
}

// genCategoryRevenue totals revenue for one category over the window. The
// first planned category applies; Beverages is the schema's default when the
// plan carries none.
func (c *Catalog) genCategoryRevenue(_ string, plan types.Plan) string {
	category := "Beverages"
	if len(plan.Categories) > 0 {
		category = plan.Categories[0]
	}
	return fmt.Sprintf(
		"SELECT ROUND(SUM(%s), 2) AS revenue "+
			"FROM [Order Details] od "+
			"JOIN Orders o ON o.OrderID = od.OrderID "+
			"JOIN Products p ON p.ProductID = od.ProductID "+
			"JOIN Categories c ON c.CategoryID = p.CategoryID "+
			"WHERE c.CategoryName = '%s'%s;",
		revenueExpr, escapeLiteral(category), whereDate(plan, "AND"))
}

// genTopCategoryQuantity finds the category with the highest total quantity
// over the window.
func (c *Catalog) genTopCategoryQuantity(_ string, plan types.Plan) string {
	return "SELECT c.CategoryName AS category, SUM(od.Quantity) AS quantity " +
		"FROM [Order Details] od " +
		"JOIN Orders o ON o.OrderID = od.OrderID " +
		"JOIN Products p ON p.ProductID = od.ProductID " +
		"JOIN Categories c ON c.CategoryID = p.CategoryID" +
		whereDate(plan, "WHERE") + " " +
		"GROUP BY c.CategoryID " +
		"ORDER BY quantity DESC LIMIT 1;"
}

// genTopCustomerMargin ranks customers by gross margin for the plan's year.
// Margin uses the fixed cost ratio: price * (1 - costRatio) per unit.
func (c *Catalog) genTopCustomerMargin(_ string, plan types.Plan) string {
	year := "2017"
	if len(plan.DateFrom) >= 4 {
		year = plan.DateFrom[:4]
	}
	return fmt.Sprintf(
		"SELECT cu.CompanyName AS customer, "+
			"ROUND(SUM((od.UnitPrice * (1 - %g)) * od.Quantity * (1 - od.Discount)), 2) AS margin "+
			"FROM [Order Details] od "+
			"JOIN Orders o ON o.OrderID = od.OrderID "+
			"JOIN Customers cu ON cu.CustomerID = o.CustomerID "+
			"WHERE strftime('%%Y', o.OrderDate) = '%s' "+
			"GROUP BY cu.CustomerID "+
			"ORDER BY margin DESC LIMIT 1;", c.costRatio, year)
}

// whereDate renders the date-window clause. keyword is "WHERE" or "AND"
// depending on whether the template already has a WHERE clause; an empty
// window renders nothing.
func whereDate(plan types.Plan, keyword string) string {
	switch {
	case plan.HasDateRange():
		return fmt.Sprintf(" %s o.OrderDate BETWEEN '%s' AND '%s'", keyword, plan.DateFrom, plan.DateTo)
	case plan.DateFrom != "":
		return fmt.Sprintf(" %s o.OrderDate >= '%s'", keyword, plan.DateFrom)
	}
	return ""
}

// escapeLiteral doubles single quotes for safe embedding in a SQL string
// literal. Category names come from a closed vocabulary, so this is belt and
// braces for config-supplied values.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
