package query

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"docquery/internal/cql"
	"docquery/internal/filter"
	"docquery/internal/task"

	"github.com/valyala/fastjson"
)

// findSorted reads up to MaxSortReadLimit+1 rows per branch, sorts the
// union in memory and applies skip and limit.
func (e *Engine) findSorted(ctx context.Context, plan Plan, req Request) (Response, error) {
	stmts := make([]cql.Select, len(plan.Statements))
	for i, s := range plan.Statements {
		s.Limit = e.sortLimit + 1
		stmts[i] = s
	}
	branches, warnings, err := e.readAll(ctx, stmts, e.sortLimit+1)
	if err != nil {
		return Response{}, err
	}

	rows := mergeRows(nil, branches...)
	if len(rows) > e.sortLimit {
		rows = rows[:e.sortLimit]
		warnings = append(warnings, task.Warning{
			Code:    WarnSortLimitReached,
			Message: fmt.Sprintf("more than %d documents matched; only the first %d read were sorted", e.sortLimit, e.sortLimit),
		})
	}
	if err := sortRows(rows, req.Sort); err != nil {
		return Response{}, err
	}

	if req.Skip >= len(rows) {
		rows = nil
	} else {
		rows = rows[req.Skip:]
	}
	limit := req.Limit
	if limit == 0 {
		limit, _ = e.requestPageSize(req, 0)
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	docs, err := toDocuments(rows)
	if err != nil {
		return Response{}, err
	}
	return Response{Documents: docs, Warnings: warnings}, nil
}

// sortKey holds one row's values for each sort field. Missing fields are
// recorded as absent and order before null.
type sortKey struct {
	vals    []filter.Value
	present []bool
}

// sortRows orders rows by the sort fields. The sort is stable, so rows
// with equal keys keep their merge order.
func sortRows(rows []cql.Row, sort filter.Sort) error {
	keys := make([]sortKey, len(rows))
	var p fastjson.Parser
	for i, r := range rows {
		doc, err := p.ParseBytes(r.DocJSON)
		if err != nil {
			return fmt.Errorf("sort: parse document %s: %w", r.Key, err)
		}
		k := sortKey{vals: make([]filter.Value, len(sort)), present: make([]bool, len(sort))}
		for j, f := range sort {
			v := doc.Get(strings.Split(f.Path, ".")...)
			if v == nil {
				continue
			}
			val, err := filter.ValueFromJSON(v)
			if err != nil {
				return fmt.Errorf("sort: document %s field %q: %w", r.Key, f.Path, err)
			}
			k.vals[j] = val
			k.present[j] = true
		}
		keys[i] = k
	}

	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		for j, f := range sort {
			c := compareSortValues(keys[a], keys[b], j)
			if !f.Ascending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})

	sorted := make([]cql.Row, len(rows))
	for i, j := range idx {
		sorted[i] = rows[j]
	}
	copy(rows, sorted)
	return nil
}

func compareSortValues(a, b sortKey, j int) int {
	switch {
	case !a.present[j] && !b.present[j]:
		return 0
	case !a.present[j]:
		return -1
	case !b.present[j]:
		return 1
	}
	return filter.CompareValues(a.vals[j], b.vals[j])
}
