package cql

import (
	"errors"
	"fmt"

	"docquery/internal/codec"
	"docquery/internal/filter"
)

// ErrUnsupportedAtom is returned for an atom/operand combination the
// shredded schema cannot answer.
var ErrUnsupportedAtom = errors.New("unsupported predicate")

// Predicates maps one lowered atom to the WHERE relation that implements
// it. This is the only place that knows which index column answers which
// operator; adding an atom kind means adding a case here.
func Predicates(a filter.Atom) (Predicate, error) {
	if a.IsIdentity() {
		return identityPredicate(a)
	}

	switch a.Kind {
	case filter.AtomEq, filter.AtomNe:
		return equalityPredicate(a)

	case filter.AtomGt, filter.AtomGte, filter.AtomLt, filter.AtomLte:
		return rangePredicate(a)

	case filter.AtomContains:
		return Predicate{Column: ColArrayContains, Op: OpContains, Value: codec.ContainsEntry(a.Path, a.Value)}, nil

	case filter.AtomExists:
		return Predicate{Column: ColExistKeys, Op: OpContains, Value: a.Path}, nil

	case filter.AtomSize:
		return Predicate{Column: ColArraySize, Op: OpEq, MapKey: a.Path, Value: a.Size}, nil

	case filter.AtomIn:
		// Lower expands $in on ordinary paths into equalities.
		return Predicate{}, unsupported(a, "$in is only answered by the primary key")

	default:
		return Predicate{}, unsupported(a, "unknown atom kind")
	}
}

var rangeOps = map[filter.AtomKind]Op{
	filter.AtomGt:  OpGt,
	filter.AtomGte: OpGte,
	filter.AtomLt:  OpLt,
	filter.AtomLte: OpLte,
}

// equalityPredicate handles $eq/$ne on ordinary paths. Scalars are recorded
// as typed tags in array_contains, null as a marker set, and arrays and
// sub-documents as a content hash in the text map.
func equalityPredicate(a filter.Atom) (Predicate, error) {
	eq := a.Kind == filter.AtomEq
	switch a.Value.Kind() {
	case filter.KindNull:
		return Predicate{Column: ColNullValues, Op: containsOp(eq), Value: a.Path}, nil
	case filter.KindArray, filter.KindObject:
		op := OpEq
		if !eq {
			op = OpNe
		}
		return Predicate{Column: ColTextValues, Op: op, MapKey: a.Path, Value: codec.Hash(a.Path, a.Value)}, nil
	default:
		return Predicate{Column: ColArrayContains, Op: containsOp(eq), Value: codec.ContainsEntry(a.Path, a.Value)}, nil
	}
}

func rangePredicate(a filter.Atom) (Predicate, error) {
	op := rangeOps[a.Kind]
	switch a.Value.Kind() {
	case filter.KindNumber:
		return Predicate{Column: ColDblValues, Op: op, MapKey: a.Path, Value: a.Value.Number()}, nil
	case filter.KindDate:
		return Predicate{Column: ColTimestampValues, Op: op, MapKey: a.Path, Value: a.Value.Time()}, nil
	default:
		return Predicate{}, unsupported(a, "range operand must be a number or date")
	}
}

// identityPredicate answers _id. Equality and IN go to the partition key;
// inequality falls back to the value map of the identity's own type, keyed
// by "_id".
func identityPredicate(a filter.Atom) (Predicate, error) {
	switch a.Kind {
	case filter.AtomEq:
		k, err := codec.EncodeIdentity(a.Value)
		if err != nil {
			return Predicate{}, fmt.Errorf("%s: %w", a, err)
		}
		return Predicate{Column: ColKey, Op: OpEq, Value: k}, nil

	case filter.AtomIn:
		keys, err := codec.EncodeIdentities(a.Values)
		if err != nil {
			return Predicate{}, fmt.Errorf("%s: %w", a, err)
		}
		return Predicate{Column: ColKey, Op: OpIn, Value: keys}, nil

	case filter.AtomNe:
		v := a.Value
		switch v.Kind() {
		case filter.KindNumber:
			return Predicate{Column: ColDblValues, Op: OpNe, MapKey: a.Path, Value: v.Number()}, nil
		case filter.KindString:
			return Predicate{Column: ColTextValues, Op: OpNe, MapKey: a.Path, Value: v.Text()}, nil
		case filter.KindUUID:
			return Predicate{Column: ColTextValues, Op: OpNe, MapKey: a.Path, Value: v.UUID().String()}, nil
		case filter.KindBool:
			return Predicate{Column: ColBoolValues, Op: OpNe, MapKey: a.Path, Value: v.Bool()}, nil
		case filter.KindDate:
			return Predicate{Column: ColTimestampValues, Op: OpNe, MapKey: a.Path, Value: v.Time()}, nil
		case filter.KindNull:
			return Predicate{Column: ColNullValues, Op: OpNotContains, Value: a.Path}, nil
		default:
			return Predicate{}, unsupported(a, "identity operand must be a scalar")
		}

	default:
		return Predicate{}, unsupported(a, "operator not supported on "+filter.IdentityPath)
	}
}

func containsOp(eq bool) Op {
	if eq {
		return OpContains
	}
	return OpNotContains
}

func unsupported(a filter.Atom, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrUnsupportedAtom, a, reason)
}
