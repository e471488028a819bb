package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the runtime type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindDate
	KindUUID
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindUUID:
		return "uuid"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field is one key/value pair of a sub-document. Sub-documents keep their
// fields in document order.
type Field struct {
	Key   string
	Value Value
}

// Value is a typed filter operand. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  decimal.Decimal
	str  string
	date time.Time
	id   uuid.UUID
	list []Value
	obj  []Field
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a decimal number value.
func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }

// Int returns an integral number value.
func Int(n int64) Value { return Number(decimal.NewFromInt(n)) }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Date returns a date value truncated to millisecond precision.
func Date(t time.Time) Value {
	return Value{kind: KindDate, date: time.UnixMilli(t.UnixMilli()).UTC()}
}

// UUID returns a UUID value.
func UUID(id uuid.UUID) Value { return Value{kind: KindUUID, id: id} }

// Array returns an ordered list value.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, list: elems}
}

// Object returns a sub-document value with fields in the given order.
func Object(fields ...Field) Value {
	return Value{kind: KindObject, obj: fields}
}

func (v Value) Kind() Kind { return v.kind }

// IsScalar reports whether v is neither an array nor an object.
func (v Value) IsScalar() bool {
	return v.kind != KindArray && v.kind != KindObject
}

func (v Value) Bool() bool              { return v.b }
func (v Value) Number() decimal.Decimal { return v.num }
func (v Value) Text() string            { return v.str }
func (v Value) Time() time.Time         { return v.date }
func (v Value) UUID() uuid.UUID         { return v.id }
func (v Value) Elements() []Value       { return v.list }
func (v Value) Fields() []Field         { return v.obj }

// Equal reports structural equality. Arrays and sub-documents compare
// element by element in order, so {"a":1,"b":2} and {"b":2,"a":1} differ.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num.Equal(o.num)
	case KindString:
		return v.str == o.str
	case KindDate:
		return v.date.Equal(o.date)
	case KindUUID:
		return v.id == o.id
	case KindArray:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for i := range v.obj {
			if v.obj[i].Key != o.obj[i].Key || !v.obj[i].Value.Equal(o.obj[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// sortRank orders kinds for cross-type comparison: null, numbers, strings,
// objects, arrays, uuids, booleans, dates.
func (k Kind) sortRank() int {
	switch k {
	case KindNull:
		return 0
	case KindNumber:
		return 1
	case KindString:
		return 2
	case KindObject:
		return 3
	case KindArray:
		return 4
	case KindUUID:
		return 5
	case KindBool:
		return 6
	case KindDate:
		return 7
	default:
		return 8
	}
}

// CompareValues returns -1, 0 or 1. Values of different kinds order by kind.
func CompareValues(a, b Value) int {
	if a.kind != b.kind {
		return cmpInt(a.kind.sortRank(), b.kind.sortRank())
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case KindNumber:
		return a.num.Cmp(b.num)
	case KindString:
		return strings.Compare(a.str, b.str)
	case KindDate:
		return a.date.Compare(b.date)
	case KindUUID:
		return strings.Compare(a.id.String(), b.id.String())
	case KindArray:
		for i := 0; i < len(a.list) && i < len(b.list); i++ {
			if c := CompareValues(a.list[i], b.list[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.list), len(b.list))
	case KindObject:
		for i := 0; i < len(a.obj) && i < len(b.obj); i++ {
			if c := strings.Compare(a.obj[i].Key, b.obj[i].Key); c != 0 {
				return c
			}
			if c := CompareValues(a.obj[i].Value, b.obj[i].Value); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.obj), len(b.obj))
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String renders v in the extended-JSON form accepted by Build.
func (v Value) String() string {
	var b strings.Builder
	v.writeTo(&b)
	return b.String()
}

func (v Value) writeTo(b *strings.Builder) {
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		b.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		b.WriteString(v.num.String())
	case KindString:
		b.WriteString(strconv.Quote(v.str))
	case KindDate:
		fmt.Fprintf(b, `{"$date":%d}`, v.date.UnixMilli())
	case KindUUID:
		fmt.Fprintf(b, `{"$uuid":%q}`, v.id.String())
	case KindArray:
		b.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				b.WriteByte(',')
			}
			e.writeTo(b)
		}
		b.WriteByte(']')
	case KindObject:
		b.WriteByte('{')
		for i, f := range v.obj {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(f.Key))
			b.WriteByte(':')
			f.Value.writeTo(b)
		}
		b.WriteByte('}')
	}
}
