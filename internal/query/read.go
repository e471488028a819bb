package query

import (
	"context"
	"fmt"

	"docquery/internal/cql"
	"docquery/internal/task"
)

// scanPageSize is the driver page size used when a read must collect more
// rows than one page, as sorted reads and counts do.
const scanPageSize = 1000

// unindexedRetry retries a read once after the store rejects it as an
// unindexed scan.
var unindexedRetry = task.RetryOn(1, 0, cql.ErrUnindexedScan)

// readAttempt wraps one statement in an attempt. fetch runs the statement,
// which may have been rewritten for the retry. If the store refuses the
// statement for lack of an index, the retry re-issues it with ALLOW
// FILTERING and records a warning carrying the original statement.
func readAttempt[T any](e *Engine, pos int, sel cql.Select, fetch func(context.Context, cql.Select) (T, error)) *task.Attempt[T] {
	a := task.NewAttempt[T](pos, fmt.Sprintf("read branch %d", pos), unindexedRetry)
	return a.Ready(func(ctx context.Context, retry int) (T, error) {
		stmt := sel
		if retry > 0 {
			stmt = sel.WithAllowFiltering()
			a.Warn(WarnUnindexedScanRetried, fmt.Sprintf("statement required an unindexed scan and was retried with ALLOW FILTERING: %s; values: %s", sel.CQL(), FormatValues(sel.Values())))
			e.logger.Warn("retrying statement with ALLOW FILTERING", "branch", pos, "cql", stmt.CQL())
		}
		return fetch(ctx, stmt)
	})
}

// execRead runs one page of a read. Identical concurrent reads share a
// single executor call; a caller that gives up does not cancel the call for
// the others.
func (e *Engine) execRead(ctx context.Context, sel cql.Select, paging cql.Paging) (cql.Page, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return cql.Page{}, err
		}
	}
	key := fmt.Sprintf("%s\x00%v\x00%d\x00%x", sel.CQL(), sel.Values(), paging.PageSize, paging.PageState)
	ch := e.reads.DoChan(key, func() (cql.Page, error) {
		return e.exec.ExecuteRead(context.WithoutCancel(ctx), sel, paging)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return cql.Page{}, ctx.Err()
	}
}

// readUpTo follows driver pages until limit rows are collected or the read
// is exhausted.
func (e *Engine) readUpTo(ctx context.Context, sel cql.Select, limit int) ([]cql.Row, error) {
	var rows []cql.Row
	var state []byte
	for {
		size := min(scanPageSize, limit-len(rows))
		page, err := e.execRead(ctx, sel, cql.Paging{PageSize: size, PageState: state})
		if err != nil {
			return nil, err
		}
		rows = append(rows, page.Rows...)
		if len(rows) >= limit || page.Exhausted() {
			if len(rows) > limit {
				rows = rows[:limit]
			}
			return rows, nil
		}
		state = page.PageState
	}
}

// readAll reads up to limit rows from every statement concurrently. The
// result is indexed by statement.
func (e *Engine) readAll(ctx context.Context, stmts []cql.Select, limit int) ([][]cql.Row, []task.Warning, error) {
	attempts := make([]*task.Attempt[[]cql.Row], len(stmts))
	for i, sel := range stmts {
		attempts[i] = readAttempt(e, i, sel, func(ctx context.Context, s cql.Select) ([]cql.Row, error) {
			return e.readUpTo(ctx, s, limit)
		})
	}
	res := task.RunUnordered(ctx, e.orch, attempts)
	if err := res.FirstErr(); err != nil {
		return nil, nil, err
	}
	out := make([][]cql.Row, len(attempts))
	for i, a := range attempts {
		out[i] = a.Result()
	}
	return out, res.Warnings(), nil
}

// findSingle pages one statement with the driver's own page state.
func (e *Engine) findSingle(ctx context.Context, sel cql.Select, req Request) (Response, error) {
	tok := pageState{States: make([][]byte, 1), Done: make([]bool, 1)}
	if req.PageState != "" {
		var err error
		tok, err = decodePageState(req.PageState, 1)
		if err != nil {
			return Response{}, err
		}
	}
	size, ok := e.requestPageSize(req, tok.Returned)
	if !ok {
		return Response{}, nil
	}
	state := tok.States[0]

	a := readAttempt(e, 0, sel, func(ctx context.Context, s cql.Select) (cql.Page, error) {
		return e.execRead(ctx, s, cql.Paging{PageSize: size, PageState: state})
	})
	res := task.RunOrdered(ctx, e.orch, []*task.Attempt[cql.Page]{a})
	if err := res.FirstErr(); err != nil {
		return Response{}, err
	}
	page := a.Result()

	docs, err := toDocuments(page.Rows)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Documents: docs, Warnings: res.Warnings()}
	tok = pageState{
		States:   [][]byte{page.PageState},
		Done:     []bool{page.Exhausted()},
		Returned: tok.Returned + len(docs),
	}
	if !tok.finished() && !limitReached(req, tok.Returned) {
		resp.NextPageState, err = encodePageState(tok)
		if err != nil {
			return Response{}, err
		}
	}
	return resp, nil
}

// findMulti reads one driver page from every branch that still has rows
// and merges them in branch order. A branch whose new rows do not fit in
// what is left of the limit is not advanced, so its rows are read again
// for the next page.
func (e *Engine) findMulti(ctx context.Context, stmts []cql.Select, req Request) (Response, error) {
	tok := pageState{
		States: make([][]byte, len(stmts)),
		Done:   make([]bool, len(stmts)),
	}
	if req.PageState != "" {
		var err error
		tok, err = decodePageState(req.PageState, len(stmts))
		if err != nil {
			return Response{}, err
		}
	}
	size, ok := e.requestPageSize(req, tok.Returned)
	if !ok {
		return Response{}, nil
	}

	var attempts []*task.Attempt[cql.Page]
	for i, sel := range stmts {
		if tok.Done[i] {
			continue
		}
		state := tok.States[i]
		attempts = append(attempts, readAttempt(e, i, sel, func(ctx context.Context, s cql.Select) (cql.Page, error) {
			return e.execRead(ctx, s, cql.Paging{PageSize: size, PageState: state})
		}))
	}
	res := task.RunUnordered(ctx, e.orch, attempts)
	if err := res.FirstErr(); err != nil {
		return Response{}, err
	}

	budget := -1
	if req.Limit > 0 {
		budget = req.Limit - tok.Returned
	}
	seen := newSeenSet(tok.Seen)
	var rows []cql.Row
	for _, a := range attempts {
		page := a.Result()
		if budget >= 0 && len(rows)+seen.countNew(page.Rows) > budget {
			break
		}
		rows = seen.appendNew(rows, page.Rows)
		tok.States[a.Position()] = page.PageState
		tok.Done[a.Position()] = page.Exhausted()
	}
	docs, err := toDocuments(rows)
	if err != nil {
		return Response{}, err
	}
	tok.Returned += len(docs)

	resp := Response{Documents: docs, Warnings: res.Warnings()}
	if !tok.finished() && !limitReached(req, tok.Returned) {
		tok.Seen = seen.digests()
		resp.NextPageState, err = encodePageState(tok)
		if err != nil {
			return Response{}, err
		}
	}
	return resp, nil
}

// requestPageSize is the driver page size for an unsorted page, given how
// many documents earlier pages returned. It reports false when the limit
// is already used up.
func (e *Engine) requestPageSize(req Request, returned int) (int, bool) {
	size := e.pageSize
	if req.PageSize > 0 {
		size = req.PageSize
	}
	if req.Limit > 0 {
		left := req.Limit - returned
		if left <= 0 {
			return 0, false
		}
		size = min(size, left)
	}
	return size, true
}

func limitReached(req Request, returned int) bool {
	return req.Limit > 0 && returned >= req.Limit
}
