package cql

import (
	"strconv"
	"strings"

	"docquery/internal/codec"

	"github.com/google/uuid"
)

// Statement is a CQL statement with positional bind values. Values holds
// driver-neutral Go values: string, bool, int64, decimal.Decimal,
// time.Time, uuid.UUID, codec.Key and []codec.Key. The executor converts
// them to its wire types.
type Statement interface {
	CQL() string
	Values() []any
}

// Op is a WHERE-clause relation.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpContains
	OpNotContains
)

var opText = [...]string{
	OpEq:          "=",
	OpNe:          "!=",
	OpGt:          ">",
	OpGte:         ">=",
	OpLt:          "<",
	OpLte:         "<=",
	OpIn:          "IN",
	OpContains:    "CONTAINS",
	OpNotContains: "NOT CONTAINS",
}

func (o Op) String() string {
	if int(o) < len(opText) {
		return opText[o]
	}
	return "?"
}

// Predicate is one WHERE relation. When MapKey is set the relation applies
// to that entry of a map column (col[?] op ?).
type Predicate struct {
	Column string
	Op     Op
	MapKey string
	Value  any
}

func (p Predicate) render(b *strings.Builder) {
	b.WriteString(p.Column)
	if p.MapKey != "" {
		b.WriteString("[?]")
	}
	b.WriteByte(' ')
	b.WriteString(p.Op.String())
	b.WriteString(" ?")
}

func (p Predicate) appendValues(vals []any) []any {
	if p.MapKey != "" {
		vals = append(vals, p.MapKey)
	}
	return append(vals, p.Value)
}

// Select reads rows matching a conjunction of predicates.
type Select struct {
	Keyspace       string
	Table          string
	Columns        []string
	Where          []Predicate
	Limit          int // 0 means no LIMIT clause
	AllowFiltering bool
}

func (s Select) CQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(s.Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(tableName(s.Keyspace, s.Table))
	for i, p := range s.Where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		p.render(&b)
	}
	if s.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.Limit))
	}
	if s.AllowFiltering {
		b.WriteString(" ALLOW FILTERING")
	}
	return b.String()
}

func (s Select) Values() []any {
	var vals []any
	for _, p := range s.Where {
		vals = p.appendValues(vals)
	}
	return vals
}

// WithAllowFiltering returns a copy of s that authorizes an unindexed scan.
func (s Select) WithAllowFiltering() Select {
	s.AllowFiltering = true
	return s
}

// Insert writes one shredded document. Columns and Bind are parallel.
type Insert struct {
	Keyspace    string
	Table       string
	Columns     []string
	Bind        []any
	IfNotExists bool
}

func (s Insert) CQL() string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableName(s.Keyspace, s.Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(s.Columns, ", "))
	b.WriteString(") VALUES (")
	for i := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('?')
	}
	b.WriteByte(')')
	if s.IfNotExists {
		b.WriteString(" IF NOT EXISTS")
	}
	return b.String()
}

func (s Insert) Values() []any {
	return s.Bind
}

// Delete removes one document by key, optionally only if its tx_id still
// matches.
type Delete struct {
	Keyspace string
	Table    string
	Key      codec.Key
	IfTxID   *uuid.UUID
}

func (s Delete) CQL() string {
	q := "DELETE FROM " + tableName(s.Keyspace, s.Table) + " WHERE " + ColKey + " = ?"
	if s.IfTxID != nil {
		q += " IF " + ColTxID + " = ?"
	}
	return q
}

func (s Delete) Values() []any {
	if s.IfTxID != nil {
		return []any{s.Key, *s.IfTxID}
	}
	return []any{s.Key}
}

func tableName(keyspace, table string) string {
	if keyspace == "" {
		return quoteIdent(table)
	}
	return quoteIdent(keyspace) + "." + quoteIdent(table)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
