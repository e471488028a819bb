// Package filter provides the document filter model for docquery.
// It builds Mongo-style filter documents into a logical expression tree,
// validates the tree, and lowers it into disjunctive normal form.
//
// This package is a frontend layer only. It MUST NOT:
//   - Know about CQL, columns, or the shredded index schema
//   - Execute statements
//   - Handle pagination
package filter

import (
	"strings"
)

// IdentityPath is the document's primary-key field.
const IdentityPath = "_id"

// LogicalOp combines the children of a LogicalExpression.
type LogicalOp int

const (
	And LogicalOp = iota
	Or
)

func (op LogicalOp) String() string {
	if op == Or {
		return "OR"
	}
	return "AND"
}

// LogicalExpression is an AND/OR node. The root of a filter tree is always
// an AND of the top-level fields.
type LogicalExpression struct {
	Op          LogicalOp
	Children    []*LogicalExpression
	Comparisons []*ComparisonExpression
}

// IsEmpty reports whether the expression has no comparisons anywhere.
func (l *LogicalExpression) IsEmpty() bool {
	if l == nil {
		return true
	}
	if len(l.Comparisons) > 0 {
		return false
	}
	for _, c := range l.Children {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

func (l *LogicalExpression) String() string {
	var parts []string
	for _, c := range l.Comparisons {
		parts = append(parts, c.String())
	}
	for _, c := range l.Children {
		parts = append(parts, c.String())
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " "+l.Op.String()+" ") + ")"
}

// ComparisonExpression holds every operation applied to one field path.
// Multiple operations on the same path are ANDed.
type ComparisonExpression struct {
	Path       string
	Operations []Operation
}

// IsIdentity reports whether the comparison targets the identity field.
func (c *ComparisonExpression) IsIdentity() bool {
	return c.Path == IdentityPath
}

func (c *ComparisonExpression) String() string {
	parts := make([]string, len(c.Operations))
	for i, op := range c.Operations {
		parts[i] = c.Path + " " + op.String()
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// Operator is the closed set of filter operators.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNin
	OpExists
	OpAll
	OpSize
)

var operatorNames = map[Operator]string{
	OpEq:     "$eq",
	OpNe:     "$ne",
	OpGt:     "$gt",
	OpGte:    "$gte",
	OpLt:     "$lt",
	OpLte:    "$lte",
	OpIn:     "$in",
	OpNin:    "$nin",
	OpExists: "$exists",
	OpAll:    "$all",
	OpSize:   "$size",
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "$unknown"
}

// ParseOperator maps a DSL operator name ("$gt") to its Operator.
func ParseOperator(name string) (Operator, bool) {
	for op, n := range operatorNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

// Family groups operators by what they compare.
type Family int

const (
	ValueComparison Family = iota
	ElementComparison
	ArrayComparison
)

func (o Operator) Family() Family {
	switch o {
	case OpExists:
		return ElementComparison
	case OpAll, OpSize:
		return ArrayComparison
	default:
		return ValueComparison
	}
}

// IsRange reports whether o is one of $gt, $gte, $lt, $lte.
func (o Operator) IsRange() bool {
	return o == OpGt || o == OpGte || o == OpLt || o == OpLte
}

// Operation is one operator applied to a field. The concrete types form a
// closed set; the marker method prevents external implementations.
type Operation interface {
	operation()
	Operator() Operator
	String() string
}

// Compare is $eq, $ne or a range operator against a single value.
type Compare struct {
	Op    Operator
	Value Value
}

// In matches when the field equals any of Values.
type In struct {
	Values []Value
}

// NotIn matches when the field equals none of Values.
type NotIn struct {
	Values []Value
}

// Exists tests whether the field is present. Only Want=true is accepted by
// Validate.
type Exists struct {
	Want bool
}

// All matches arrays containing every element of Values.
type All struct {
	Values []Value
}

// Size matches arrays of exactly N elements.
type Size struct {
	N int64
}

func (Compare) operation() {}
func (In) operation()      {}
func (NotIn) operation()   {}
func (Exists) operation()  {}
func (All) operation()     {}
func (Size) operation()    {}

func (c *Compare) Operator() Operator { return c.Op }
func (*In) Operator() Operator        { return OpIn }
func (*NotIn) Operator() Operator     { return OpNin }
func (*Exists) Operator() Operator    { return OpExists }
func (*All) Operator() Operator       { return OpAll }
func (*Size) Operator() Operator      { return OpSize }

func (c *Compare) String() string { return c.Op.String() + " " + c.Value.String() }
func (i *In) String() string      { return "$in " + Array(i.Values...).String() }
func (n *NotIn) String() string   { return "$nin " + Array(n.Values...).String() }
func (a *All) String() string     { return "$all " + Array(a.Values...).String() }

func (e *Exists) String() string {
	if e.Want {
		return "$exists true"
	}
	return "$exists false"
}

func (s *Size) String() string {
	return "$size " + Int(s.N).String()
}
