package query

import (
	"testing"
	"time"

	"docquery/internal/codec"

	"github.com/shopspring/decimal"
)

func TestFormatValues(t *testing.T) {
	key := codec.Key{Type: codec.KeyString, Text: "a"}
	when := time.UnixMilli(1700000000000).UTC()

	tests := []struct {
		name string
		vals []any
		want string
	}{
		{"empty", nil, "[]"},
		{"string is quoted", []any{"x N1"}, `["x N1"]`},
		{"key shows its _id", []any{key}, `[_id "a"]`},
		{"key list", []any{[]codec.Key{key, {Type: codec.KeyString, Text: "b"}}}, `[[_id "a", _id "b"]]`},
		{"decimal", []any{decimal.RequireFromString("1.50")}, "[1.5]"},
		{"date", []any{when}, `[{"$date":1700000000000}]`},
		{"mixed", []any{"1", int64(1)}, `["1", 1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatValues(tt.vals); got != tt.want {
				t.Errorf("FormatValues = %s, want %s", got, tt.want)
			}
		})
	}
}
