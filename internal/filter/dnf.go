package filter

import (
	"slices"
	"strings"
)

// DNF (Disjunctive Normal Form) lowering for filter trees.
//
// The store executes only conjunctions, so a filter is rewritten as an OR
// of ANDs: (A AND B) OR (C AND D) OR ...
// Each AND clause becomes one statement; branch results are unioned with
// row-identity de-duplication.

// AtomKind is the predicate shape of one lowered atom.
type AtomKind int

const (
	AtomEq AtomKind = iota
	AtomNe
	AtomGt
	AtomGte
	AtomLt
	AtomLte
	AtomIn       // identity only: primary key IN
	AtomContains // one element of $all
	AtomExists
	AtomSize
)

var atomNames = map[AtomKind]string{
	AtomEq:       "$eq",
	AtomNe:       "$ne",
	AtomGt:       "$gt",
	AtomGte:      "$gte",
	AtomLt:       "$lt",
	AtomLte:      "$lte",
	AtomIn:       "$in",
	AtomContains: "$contains",
	AtomExists:   "$exists",
	AtomSize:     "$size",
}

func (k AtomKind) String() string {
	if name, ok := atomNames[k]; ok {
		return name
	}
	return "$unknown"
}

// IsRange reports whether k is one of the ordered comparisons.
func (k AtomKind) IsRange() bool {
	return k == AtomGt || k == AtomGte || k == AtomLt || k == AtomLte
}

// Atom is a single predicate on one path. Which operand field is set
// depends on Kind: Values for AtomIn, Size for AtomSize, nothing for
// AtomExists, Value otherwise.
type Atom struct {
	Path   string
	Kind   AtomKind
	Value  Value
	Values []Value
	Size   int64
}

// IsIdentity reports whether the atom constrains _id.
func (a Atom) IsIdentity() bool {
	return a.Path == IdentityPath
}

func (a Atom) String() string {
	switch a.Kind {
	case AtomExists:
		return a.Path + " $exists"
	case AtomSize:
		return a.Path + " $size " + Int(a.Size).String()
	case AtomIn:
		return a.Path + " $in " + Array(a.Values...).String()
	default:
		return a.Path + " " + a.Kind.String() + " " + a.Value.String()
	}
}

// Conjunction is an AND of atoms. It maps to exactly one statement.
type Conjunction struct {
	Atoms []Atom
}

// IsEmpty reports whether the conjunction has no atoms (matches everything).
func (c Conjunction) IsEmpty() bool {
	return len(c.Atoms) == 0
}

func (c Conjunction) String() string {
	if len(c.Atoms) == 0 {
		return "(all)"
	}
	if len(c.Atoms) == 1 {
		return c.Atoms[0].String()
	}
	parts := make([]string, len(c.Atoms))
	for i, a := range c.Atoms {
		parts[i] = a.String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// key identifies the conjunction independent of atom order.
func (c Conjunction) key() string {
	parts := make([]string, len(c.Atoms))
	for i, a := range c.Atoms {
		parts[i] = a.String()
	}
	slices.Sort(parts)
	return strings.Join(parts, "\x00")
}

// DNF is the disjunction of its branches. No branches means the filter
// cannot match anything and no statement should be issued.
type DNF struct {
	Branches []Conjunction
}

// IsEmpty reports whether the filter is unsatisfiable.
func (d DNF) IsEmpty() bool {
	return len(d.Branches) == 0
}

func (d DNF) String() string {
	if len(d.Branches) == 0 {
		return "(none)"
	}
	parts := make([]string, len(d.Branches))
	for i, b := range d.Branches {
		parts[i] = b.String()
	}
	return strings.Join(parts, " OR ")
}

// formula is the propositional view of a filter tree.
type formula interface {
	formula()
}

type atomF struct{ atom Atom }
type andF struct{ terms []formula }
type orF struct{ terms []formula }

func (atomF) formula() {}
func (andF) formula()  {}
func (orF) formula()   {}

// Lower converts a validated tree to DNF.
//
// Examples:
//   - {a:1} -> 1 branch: {a $eq 1}
//   - {a:1, $or:[{b:1},{c:1}]} -> {a,b}, {a,c}
//   - {a:{$in:[1,2]}} -> {a $eq 1}, {a $eq 2}
//   - {_id:{$in:[1,2]}} -> 1 branch: {_id $in [1,2]}
//   - {a:{$in:[]}} -> no branches
func Lower(root *LogicalExpression, limits Limits) (DNF, error) {
	if root == nil {
		return DNF{Branches: []Conjunction{{}}}, nil
	}
	branches, err := toBranches(toFormula(root), limits.MaxConjunctions)
	if err != nil {
		return DNF{}, err
	}
	return DNF{Branches: normalize(branches)}, nil
}

// RestrictIdentity narrows every branch to the document with the given
// _id. Branches that already exclude it are dropped, so the result is
// empty when no branch can match that document.
func (d DNF) RestrictIdentity(id Value) DNF {
	branches := make([]Conjunction, len(d.Branches))
	for i, b := range d.Branches {
		atoms := append(slices.Clone(b.Atoms), Atom{Path: IdentityPath, Kind: AtomEq, Value: id})
		branches[i] = Conjunction{Atoms: atoms}
	}
	return DNF{Branches: normalize(branches)}
}

// normalize simplifies each branch, dropping the unsatisfiable ones and
// any branch equal to an earlier one.
func normalize(branches []Conjunction) []Conjunction {
	seen := make(map[string]bool, len(branches))
	var out []Conjunction
	for _, b := range branches {
		simplified, ok := simplify(b)
		if !ok {
			continue
		}
		k := simplified.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, simplified)
	}
	return out
}

func toFormula(l *LogicalExpression) formula {
	terms := make([]formula, 0, len(l.Comparisons)+len(l.Children))
	for _, c := range l.Comparisons {
		terms = append(terms, comparisonFormula(c))
	}
	for _, child := range l.Children {
		terms = append(terms, toFormula(child))
	}
	if l.Op == Or {
		return orF{terms: terms}
	}
	return andF{terms: terms}
}

func comparisonFormula(c *ComparisonExpression) formula {
	terms := make([]formula, 0, len(c.Operations))
	for _, op := range c.Operations {
		terms = append(terms, operationFormula(c.Path, op))
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return andF{terms: terms}
}

var compareAtoms = map[Operator]AtomKind{
	OpEq:  AtomEq,
	OpNe:  AtomNe,
	OpGt:  AtomGt,
	OpGte: AtomGte,
	OpLt:  AtomLt,
	OpLte: AtomLte,
}

func operationFormula(path string, op Operation) formula {
	identity := path == IdentityPath
	switch o := op.(type) {
	case *Compare:
		return atomF{Atom{Path: path, Kind: compareAtoms[o.Op], Value: o.Value}}

	case *In:
		if identity {
			return atomF{Atom{Path: path, Kind: AtomIn, Values: o.Values}}
		}
		terms := make([]formula, len(o.Values))
		for i, v := range o.Values {
			terms[i] = atomF{Atom{Path: path, Kind: AtomEq, Value: v}}
		}
		return orF{terms: terms}

	case *NotIn:
		terms := make([]formula, len(o.Values))
		for i, v := range o.Values {
			terms[i] = atomF{Atom{Path: path, Kind: AtomNe, Value: v}}
		}
		return andF{terms: terms}

	case *Exists:
		if identity {
			// Every document has an _id.
			return andF{}
		}
		return atomF{Atom{Path: path, Kind: AtomExists}}

	case *All:
		terms := make([]formula, len(o.Values))
		for i, v := range o.Values {
			terms[i] = atomF{Atom{Path: path, Kind: AtomContains, Value: v}}
		}
		return andF{terms: terms}

	case *Size:
		return atomF{Atom{Path: path, Kind: AtomSize, Size: o.N}}
	}
	// Validate rejects anything else.
	return orF{}
}

// toBranches distributes AND over OR. An empty AND is true (one empty
// branch); an empty OR is false (no branches).
func toBranches(f formula, limit int) ([]Conjunction, error) {
	switch e := f.(type) {
	case atomF:
		return []Conjunction{{Atoms: []Atom{e.atom}}}, nil

	case orF:
		var result []Conjunction
		for _, term := range e.terms {
			branches, err := toBranches(term, limit)
			if err != nil {
				return nil, err
			}
			result = append(result, branches...)
			if limit > 0 && len(result) > limit {
				return nil, tooComplex(limit)
			}
		}
		return result, nil

	case andF:
		result := []Conjunction{{}}
		for _, term := range e.terms {
			branches, err := toBranches(term, limit)
			if err != nil {
				return nil, err
			}
			if limit > 0 && len(result)*len(branches) > limit {
				return nil, tooComplex(limit)
			}
			result = combine(result, branches)
		}
		return result, nil
	}
	return nil, nil
}

// combine merges every pair from a and b.
func combine(a, b []Conjunction) []Conjunction {
	result := make([]Conjunction, 0, len(a)*len(b))
	for _, ca := range a {
		for _, cb := range b {
			result = append(result, Conjunction{Atoms: slices.Concat(ca.Atoms, cb.Atoms)})
		}
	}
	return result
}

func tooComplex(limit int) *Error {
	return ruleError(ErrTooComplex, "", "filter expands to more than %d conjunctions", limit)
}

// simplify removes duplicate atoms and folds identity constraints. It
// returns false when the conjunction cannot match any document.
func simplify(c Conjunction) (Conjunction, bool) {
	var atoms []Atom
	for _, a := range c.Atoms {
		if !slices.ContainsFunc(atoms, a.equal) {
			atoms = append(atoms, a)
		}
	}

	// Identity EQ/IN narrow to a set of allowed keys; identity NE removes
	// keys from that set.
	var allowed, excluded []Value
	constrained := false
	firstID := -1
	for i, a := range atoms {
		if !a.IsIdentity() {
			continue
		}
		var vals []Value
		switch a.Kind {
		case AtomEq:
			vals = []Value{a.Value}
		case AtomIn:
			vals = a.Values
		case AtomNe:
			excluded = append(excluded, a.Value)
			continue
		default:
			continue
		}
		if firstID < 0 {
			firstID = i
		}
		if !constrained {
			allowed = uniqueValues(vals)
			constrained = true
		} else {
			allowed = intersectValues(allowed, vals)
		}
	}

	if constrained {
		allowed = slices.DeleteFunc(allowed, func(v Value) bool {
			return containsValue(excluded, v)
		})
		if len(allowed) == 0 {
			return Conjunction{}, false
		}
		idAtom := Atom{Path: IdentityPath, Kind: AtomIn, Values: allowed}
		if len(allowed) == 1 {
			idAtom = Atom{Path: IdentityPath, Kind: AtomEq, Value: allowed[0]}
		}
		rebuilt := make([]Atom, 0, len(atoms))
		for i, a := range atoms {
			switch {
			case i == firstID:
				rebuilt = append(rebuilt, idAtom)
			case a.IsIdentity():
			default:
				rebuilt = append(rebuilt, a)
			}
		}
		atoms = rebuilt
	}

	// a == x AND a != x never matches.
	for _, a := range atoms {
		if a.Kind != AtomEq {
			continue
		}
		for _, b := range atoms {
			if b.Kind == AtomNe && b.Path == a.Path && b.Value.Equal(a.Value) {
				return Conjunction{}, false
			}
		}
	}
	return Conjunction{Atoms: atoms}, true
}

func (a Atom) equal(b Atom) bool {
	if a.Path != b.Path || a.Kind != b.Kind || a.Size != b.Size || !a.Value.Equal(b.Value) {
		return false
	}
	return slices.EqualFunc(a.Values, b.Values, Value.Equal)
}

func containsValue(vals []Value, v Value) bool {
	return slices.ContainsFunc(vals, v.Equal)
}

func uniqueValues(vals []Value) []Value {
	out := make([]Value, 0, len(vals))
	for _, v := range vals {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func intersectValues(a, b []Value) []Value {
	var out []Value
	for _, v := range a {
		if containsValue(b, v) {
			out = append(out, v)
		}
	}
	return out
}
