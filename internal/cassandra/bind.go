package cassandra

import (
	"docquery/internal/codec"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/inf.v0"
)

// bindValues converts statement values into types the driver marshals.
func bindValues(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = bindValue(v)
	}
	return out
}

func bindValue(v any) any {
	switch x := v.(type) {
	case bool:
		// Booleans are stored as tinyint.
		if x {
			return int8(1)
		}
		return int8(0)
	case codec.Key:
		return x.Tuple()
	case []codec.Key:
		tuples := make([][]any, len(x))
		for i, k := range x {
			tuples[i] = k.Tuple()
		}
		return tuples
	case uuid.UUID:
		return gocql.UUID(x)
	case decimal.Decimal:
		return toInfDec(x)
	default:
		// Strings, integers, times and the shredder's collections go to
		// the driver as is.
		return v
	}
}

// toInfDec converts d to the driver's decimal type. d is coefficient *
// 10^exponent; inf.Dec is unscaled * 10^-scale.
func toInfDec(d decimal.Decimal) inf.Dec {
	return *inf.NewDecBig(d.Coefficient(), inf.Scale(-d.Exponent()))
}
