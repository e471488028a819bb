package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"docquery/internal/codec"
	"docquery/internal/filter"

	"github.com/shopspring/decimal"
)

// FormatValues renders statement bind values for messages and explain
// output. Strings are quoted, keys are shown as the _id they encode and
// dates in extended JSON, so values of different types never render alike.
func FormatValues(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatValue(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case codec.Key:
		id, err := codec.DecodeIdentity(x)
		if err != nil {
			return "key(" + strconv.Quote(x.String()) + ")"
		}
		return "_id " + id.String()
	case []codec.Key:
		parts := make([]string, len(x))
		for i, k := range x {
			parts[i] = formatValue(k)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return filter.Date(x).String()
	default:
		return fmt.Sprint(v)
	}
}
