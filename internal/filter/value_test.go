package filter

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same number different scale", Number(decimal.RequireFromString("1.50")), Number(decimal.RequireFromString("1.5")), true},
		{"number vs string", Int(1), String("1"), false},
		{"null vs null", Null(), Null(), true},
		{"arrays in order", Array(Int(1), Int(2)), Array(Int(1), Int(2)), true},
		{"arrays out of order", Array(Int(1), Int(2)), Array(Int(2), Int(1)), false},
		{
			"objects compare key order",
			Object(Field{"a", Int(1)}, Field{"b", Int(2)}),
			Object(Field{"b", Int(2)}, Field{"a", Int(1)}),
			false,
		},
		{"dates", Date(time.UnixMilli(5)), Date(time.UnixMilli(5)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("%s.Equal(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCompareKindOrder(t *testing.T) {
	ordered := []Value{
		Null(),
		Int(-3),
		Int(7),
		String("a"),
		String("b"),
		Object(Field{"a", Int(1)}),
		Array(Int(1)),
		UUID(uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")),
		Bool(false),
		Bool(true),
		Date(time.UnixMilli(0)),
		Date(time.UnixMilli(1)),
	}
	for i := 1; i < len(ordered); i++ {
		if c := CompareValues(ordered[i-1], ordered[i]); c != -1 {
			t.Errorf("CompareValues(%s, %s) = %d, want -1", ordered[i-1], ordered[i], c)
		}
		if c := CompareValues(ordered[i], ordered[i-1]); c != 1 {
			t.Errorf("CompareValues(%s, %s) = %d, want 1", ordered[i], ordered[i-1], c)
		}
	}
}

func TestDateTruncatesToMillis(t *testing.T) {
	d := Date(time.Unix(10, 123456789))
	if got := d.Time().Nanosecond(); got != 123000000 {
		t.Errorf("nanoseconds = %d, want 123000000", got)
	}
	if d.Time().Location() != time.UTC {
		t.Errorf("location = %v, want UTC", d.Time().Location())
	}
}

func TestValueString(t *testing.T) {
	v := Object(
		Field{"n", Number(decimal.RequireFromString("2.50"))},
		Field{"s", String(`q"`)},
		Field{"d", Date(time.UnixMilli(42))},
		Field{"l", Array(Bool(true), Null())},
	)
	want := `{"n":2.5,"s":"q\"","d":{"$date":42},"l":[true,null]}`
	if got := v.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}
