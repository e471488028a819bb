package cql

import "strings"

// IndexUsage records which column families a statement's predicates touch.
// It is a plain value; combining usages never mutates either operand.
type IndexUsage uint16

const (
	UsePrimaryKey IndexUsage = 1 << iota
	UseArrayContains
	UseBoolValues
	UseNumberValues
	UseTextValues
	UseTimestampValues
	UseNullValues
	UseExistKeys
	UseArraySize
)

var usageNames = []struct {
	flag IndexUsage
	name string
}{
	{UsePrimaryKey, "primary_key"},
	{UseArrayContains, ColArrayContains},
	{UseBoolValues, ColBoolValues},
	{UseNumberValues, ColDblValues},
	{UseTextValues, ColTextValues},
	{UseTimestampValues, ColTimestampValues},
	{UseNullValues, ColNullValues},
	{UseExistKeys, ColExistKeys},
	{UseArraySize, ColArraySize},
}

var columnUsage = map[string]IndexUsage{
	ColKey:             UsePrimaryKey,
	ColArrayContains:   UseArrayContains,
	ColBoolValues:      UseBoolValues,
	ColDblValues:       UseNumberValues,
	ColTextValues:      UseTextValues,
	ColTimestampValues: UseTimestampValues,
	ColNullValues:      UseNullValues,
	ColExistKeys:       UseExistKeys,
	ColArraySize:       UseArraySize,
}

// UsageOf returns the usage flag for a column, or 0 for non-index columns.
func UsageOf(column string) IndexUsage {
	return columnUsage[column]
}

// Has reports whether every flag in f is set.
func (u IndexUsage) Has(f IndexUsage) bool {
	return u&f == f
}

// Union returns the flags set in either u or o.
func (u IndexUsage) Union(o IndexUsage) IndexUsage {
	return u | o
}

// Secondary reports whether any secondary index is used.
func (u IndexUsage) Secondary() bool {
	return u&^UsePrimaryKey != 0
}

// Names lists the set flags by column name.
func (u IndexUsage) Names() []string {
	var names []string
	for _, n := range usageNames {
		if u.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return names
}

func (u IndexUsage) String() string {
	if u == 0 {
		return "none"
	}
	return strings.Join(u.Names(), ",")
}
