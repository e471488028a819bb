package cql

import (
	"fmt"

	"docquery/internal/filter"
)

// SelectOptions shape the statement built for a conjunction.
type SelectOptions struct {
	Columns []string // defaults to DocumentColumns
	Limit   int
}

// Assembler builds statements against one shredded table.
type Assembler struct {
	Keyspace string
	Table    string
}

// Assemble turns a conjunction into a SELECT. It is pure: the same
// conjunction always yields the same statement and usage.
func (a Assembler) Assemble(conj filter.Conjunction, opts SelectOptions) (Select, IndexUsage, error) {
	cols := opts.Columns
	if len(cols) == 0 {
		cols = DocumentColumns
	}
	sel := Select{
		Keyspace: a.Keyspace,
		Table:    a.Table,
		Columns:  cols,
		Limit:    opts.Limit,
	}

	var usage IndexUsage
	for _, atom := range conj.Atoms {
		p, err := Predicates(atom)
		if err != nil {
			return Select{}, 0, fmt.Errorf("assemble %s: %w", conj, err)
		}
		sel.Where = append(sel.Where, p)
		usage = usage.Union(UsageOf(p.Column))
	}
	return sel, usage, nil
}

// AssembleAll assembles every branch of a DNF.
func (a Assembler) AssembleAll(dnf filter.DNF, opts SelectOptions) ([]Select, []IndexUsage, error) {
	stmts := make([]Select, 0, len(dnf.Branches))
	usages := make([]IndexUsage, 0, len(dnf.Branches))
	for _, conj := range dnf.Branches {
		s, u, err := a.Assemble(conj, opts)
		if err != nil {
			return nil, nil, err
		}
		stmts = append(stmts, s)
		usages = append(usages, u)
	}
	return stmts, usages, nil
}
