package query

import (
	"fmt"
	"strings"

	"docquery/internal/cql"
	"docquery/internal/filter"
)

// Plan is the statement set a filter lowers to.
type Plan struct {
	Filter     *filter.LogicalExpression
	DNF        filter.DNF
	Statements []cql.Select
	Usage      []cql.IndexUsage
	Sort       filter.Sort
}

// Plan validates root, lowers it to DNF and assembles one statement per
// conjunction. An unsatisfiable filter yields a plan with no statements.
func (e *Engine) Plan(root *filter.LogicalExpression, opts cql.SelectOptions) (Plan, error) {
	if err := filter.Validate(root, e.limits); err != nil {
		return Plan{}, err
	}
	dnf, err := filter.Lower(root, e.limits)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Filter: root, DNF: dnf}
	if dnf.IsEmpty() {
		return plan, nil
	}
	plan.Statements, plan.Usage, err = e.asm.AssembleAll(dnf, opts)
	if err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// String renders the plan for explain output.
func (p Plan) String() string {
	var b strings.Builder
	if !p.Filter.IsEmpty() {
		fmt.Fprintf(&b, "filter: %s\n", p.Filter)
	}
	fmt.Fprintf(&b, "dnf: %s\n", p.DNF)
	if len(p.Sort) > 0 {
		fmt.Fprintf(&b, "sort: %s (in memory)\n", p.Sort)
	}
	if len(p.Statements) == 0 {
		b.WriteString("no statements: filter cannot match\n")
		return b.String()
	}
	for i, s := range p.Statements {
		fmt.Fprintf(&b, "branch %d: %s\n", i+1, p.DNF.Branches[i])
		fmt.Fprintf(&b, "  cql:     %s\n", s.CQL())
		fmt.Fprintf(&b, "  values:  %s\n", FormatValues(s.Values()))
		fmt.Fprintf(&b, "  indexes: %s\n", p.Usage[i])
	}
	return b.String()
}
