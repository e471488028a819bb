package filter

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"
)

// Extended JSON keys that denote a typed value rather than an operator.
const (
	dateKey = "$date"
	uuidKey = "$uuid"
)

// Build parses a filter document into a LogicalExpression.
//
// Shape rules:
//   - an object is the implicit AND of its fields
//   - "$and"/"$or" take an array of filter objects
//   - {"field": {"$op": v, ...}} applies operators to a field
//   - {"field": v} is shorthand for {"field": {"$eq": v}}
//
// Build does not run the tree-level checks; call Validate on the result.
func Build(data []byte) (*LogicalExpression, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return &LogicalExpression{Op: And}, nil
	}
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, structuralError(ErrInvalidStructure, "", "malformed filter document: %v", err)
	}
	return BuildValue(v)
}

// BuildValue builds a LogicalExpression from an already parsed DSL node.
// A nil or null node is the empty filter, which matches every document.
func BuildValue(v *fastjson.Value) (*LogicalExpression, error) {
	root := &LogicalExpression{Op: And}
	if v == nil || v.Type() == fastjson.TypeNull {
		return root, nil
	}
	obj, err := v.Object()
	if err != nil {
		return nil, structuralError(ErrInvalidStructure, "", "filter must be an object, got %s", v.Type())
	}
	if err := buildFields(root, obj); err != nil {
		return nil, err
	}
	return root, nil
}

// buildFields adds every field of obj to node, in document order.
func buildFields(node *LogicalExpression, obj *fastjson.Object) error {
	var firstErr error
	obj.Visit(func(k []byte, v *fastjson.Value) {
		if firstErr != nil {
			return
		}
		firstErr = buildField(node, string(k), v)
	})
	return firstErr
}

func buildField(node *LogicalExpression, key string, v *fastjson.Value) error {
	switch {
	case key == "$and" || key == "$or":
		child, err := buildLogical(key, v)
		if err != nil {
			return err
		}
		node.Children = append(node.Children, child)
	case strings.HasPrefix(key, "$"):
		return structuralError(ErrUnknownOperator, "", "unsupported logical operator %q", key)
	case key == "":
		return structuralError(ErrInvalidStructure, "", "empty field path")
	default:
		cmp, err := buildComparison(key, v)
		if err != nil {
			return err
		}
		node.Comparisons = append(node.Comparisons, cmp)
	}
	return nil
}

// buildLogical builds a "$and"/"$or" node. Elements holding a single field
// contribute their comparison directly to the node; elements with several
// fields become an implicit-AND child.
func buildLogical(key string, v *fastjson.Value) (*LogicalExpression, error) {
	op := And
	if key == "$or" {
		op = Or
	}
	elems, err := v.Array()
	if err != nil {
		return nil, structuralError(ErrInvalidStructure, "", "%s requires an array of filter objects", key)
	}
	if len(elems) == 0 {
		return nil, structuralError(ErrInvalidStructure, "", "%s requires at least one filter object", key)
	}

	node := &LogicalExpression{Op: op}
	for i, e := range elems {
		obj, err := e.Object()
		if err != nil {
			return nil, structuralError(ErrInvalidStructure, "", "%s element %d must be an object, got %s", key, i, e.Type())
		}
		if obj.Len() == 1 {
			if err := buildFields(node, obj); err != nil {
				return nil, err
			}
			continue
		}
		child := &LogicalExpression{Op: And}
		if err := buildFields(child, obj); err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func buildComparison(path string, v *fastjson.Value) (*ComparisonExpression, error) {
	cmp := &ComparisonExpression{Path: path}

	if v.Type() == fastjson.TypeObject {
		obj, _ := v.Object()
		if isOperatorObject(obj) {
			var firstErr error
			obj.Visit(func(k []byte, opVal *fastjson.Value) {
				if firstErr != nil {
					return
				}
				name := string(k)
				if !strings.HasPrefix(name, "$") {
					firstErr = structuralError(ErrInvalidStructure, path, "cannot mix operators and field %q", name)
					return
				}
				op, ok := ParseOperator(name)
				if !ok {
					firstErr = structuralError(ErrUnknownOperator, path, "unsupported filter operator %q", name)
					return
				}
				operation, err := buildOperation(path, op, opVal)
				if err != nil {
					firstErr = err
					return
				}
				cmp.Operations = append(cmp.Operations, operation)
			})
			if firstErr != nil {
				return nil, firstErr
			}
			return cmp, nil
		}
	}

	val, err := valueFrom(v, path)
	if err != nil {
		return nil, err
	}
	cmp.Operations = []Operation{&Compare{Op: OpEq, Value: val}}
	return cmp, nil
}

// isOperatorObject reports whether obj is {"$op": ...} rather than a
// sub-document or an extended value such as {"$date": ...}.
func isOperatorObject(obj *fastjson.Object) bool {
	first := ""
	seen := false
	obj.Visit(func(k []byte, _ *fastjson.Value) {
		if !seen {
			first = string(k)
			seen = true
		}
	})
	if !seen || !strings.HasPrefix(first, "$") {
		return false
	}
	return first != dateKey && first != uuidKey
}

func buildOperation(path string, op Operator, v *fastjson.Value) (Operation, error) {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		val, err := valueFrom(v, path)
		if err != nil {
			return nil, err
		}
		return &Compare{Op: op, Value: val}, nil

	case OpIn, OpNin, OpAll:
		if v.Type() != fastjson.TypeArray {
			return nil, validationError(ErrInvalidOperand, path, op, "operand must be an array, got %s", v.Type())
		}
		list, err := valueFrom(v, path)
		if err != nil {
			return nil, err
		}
		switch op {
		case OpIn:
			return &In{Values: list.Elements()}, nil
		case OpNin:
			return &NotIn{Values: list.Elements()}, nil
		default:
			return &All{Values: list.Elements()}, nil
		}

	case OpExists:
		switch v.Type() {
		case fastjson.TypeTrue:
			return &Exists{Want: true}, nil
		case fastjson.TypeFalse:
			return &Exists{Want: false}, nil
		default:
			return nil, validationError(ErrExistsInvalid, path, op, "operand must be a boolean, got %s", v.Type())
		}

	case OpSize:
		if v.Type() != fastjson.TypeNumber {
			return nil, validationError(ErrSizeInvalid, path, op, "operand must be an integer, got %s", v.Type())
		}
		d, err := decimal.NewFromString(string(v.MarshalTo(nil)))
		if err != nil || !d.IsInteger() {
			return nil, validationError(ErrSizeInvalid, path, op, "operand must be an integer, got %s", v.MarshalTo(nil))
		}
		return &Size{N: d.IntPart()}, nil
	}
	return nil, structuralError(ErrUnknownOperator, path, "unsupported filter operator %s", op)
}

// ValueFromJSON converts a parsed JSON node into a Value, honouring the
// {"$date": millis} and {"$uuid": "..."} extended forms.
func ValueFromJSON(v *fastjson.Value) (Value, error) {
	return valueFrom(v, "")
}

func valueFrom(v *fastjson.Value, path string) (Value, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return Null(), nil
	case fastjson.TypeTrue:
		return Bool(true), nil
	case fastjson.TypeFalse:
		return Bool(false), nil
	case fastjson.TypeNumber:
		d, err := decimal.NewFromString(string(v.MarshalTo(nil)))
		if err != nil {
			return Value{}, structuralError(ErrInvalidStructure, path, "invalid number %s", v.MarshalTo(nil))
		}
		return Number(d), nil
	case fastjson.TypeString:
		sb, _ := v.StringBytes()
		return String(string(sb)), nil
	case fastjson.TypeArray:
		elems, _ := v.Array()
		out := make([]Value, 0, len(elems))
		for _, e := range elems {
			ev, err := valueFrom(e, path)
			if err != nil {
				return Value{}, err
			}
			out = append(out, ev)
		}
		return Array(out...), nil
	case fastjson.TypeObject:
		obj, _ := v.Object()
		return objectFrom(obj, path)
	}
	return Value{}, structuralError(ErrInvalidStructure, path, "unsupported JSON value type %s", v.Type())
}

func objectFrom(obj *fastjson.Object, path string) (Value, error) {
	var fields []Field
	var firstErr error
	obj.Visit(func(k []byte, fv *fastjson.Value) {
		if firstErr != nil {
			return
		}
		fields = append(fields, Field{Key: string(k)})
		val, err := valueFrom(fv, path)
		if err != nil {
			firstErr = err
			return
		}
		fields[len(fields)-1].Value = val
	})
	if firstErr != nil {
		return Value{}, firstErr
	}

	if len(fields) == 0 || !strings.HasPrefix(fields[0].Key, "$") {
		return Object(fields...), nil
	}
	if len(fields) != 1 {
		return Value{}, structuralError(ErrInvalidStructure, path, "extended value %s must be the only key", fields[0].Key)
	}

	f := fields[0]
	switch f.Key {
	case dateKey:
		if f.Value.Kind() != KindNumber || !f.Value.Number().IsInteger() {
			return Value{}, structuralError(ErrInvalidStructure, path, "%s requires epoch milliseconds, got %s", dateKey, f.Value)
		}
		return Date(time.UnixMilli(f.Value.Number().IntPart())), nil
	case uuidKey:
		if f.Value.Kind() != KindString {
			return Value{}, structuralError(ErrInvalidStructure, path, "%s requires a string, got %s", uuidKey, f.Value)
		}
		id, err := uuid.Parse(f.Value.Text())
		if err != nil {
			return Value{}, structuralError(ErrInvalidStructure, path, "invalid %s %q: %v", uuidKey, f.Value.Text(), err)
		}
		return UUID(id), nil
	default:
		return Value{}, structuralError(ErrInvalidStructure, path, "unsupported extended value %q", f.Key)
	}
}
