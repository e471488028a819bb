// Package query executes document filters against the shredded table.
//
// A filter is validated, lowered to DNF and assembled into one SELECT per
// conjunction. The engine runs those statements through the task
// orchestrator, unions the rows with row-identity de-duplication, and
// applies sort, skip and limit.
//
// Paging:
//   - Unsorted, one conjunction: the driver page state is carried in the
//     token.
//   - Unsorted, several conjunctions: each page reads one driver page from
//     every branch that is not exhausted. The token carries every branch's
//     state and the digests of rows already returned.
//   - Sorted: up to MaxSortReadLimit rows are read per conjunction and
//     sorted in memory. Sorted reads are not resumable; callers page with
//     skip, and each request re-reads from the start.
package query

import (
	"context"
	"errors"
	"log/slog"

	"docquery/internal/callgroup"
	"docquery/internal/codec"
	"docquery/internal/cql"
	"docquery/internal/filter"
	"docquery/internal/logging"
	"docquery/internal/task"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"
)

// Warning codes attached to responses.
const (
	WarnUnindexedScanRetried = "UNINDEXED_SCAN_RETRIED"
	WarnSortLimitReached     = "SORT_READ_LIMIT_REACHED"
)

// Options configures an Engine.
type Options struct {
	Keyspace string
	Table    string

	Limits           filter.Limits
	DefaultPageSize  int
	MaxSortReadLimit int
	MaxCountLimit    int

	Concurrency int           // bound on parallel branch reads
	Pool        *ants.Pool    // optional shared worker pool
	Limiter     *rate.Limiter // optional pacing of executor calls

	Logger *slog.Logger
}

// Engine runs filters against one table.
type Engine struct {
	exec       cql.Executor
	asm        cql.Assembler
	limits     filter.Limits
	pageSize   int
	sortLimit  int
	countLimit int
	orch       *task.Orchestrator
	limiter    *rate.Limiter
	reads      callgroup.Group[string, cql.Page]
	logger     *slog.Logger
}

// New creates an Engine. Zero limits take the package defaults.
func New(exec cql.Executor, opts Options) *Engine {
	logger := logging.Default(opts.Logger)
	e := &Engine{
		exec:       exec,
		asm:        cql.Assembler{Keyspace: opts.Keyspace, Table: opts.Table},
		limits:     opts.Limits,
		pageSize:   opts.DefaultPageSize,
		sortLimit:  opts.MaxSortReadLimit,
		countLimit: opts.MaxCountLimit,
		limiter:    opts.Limiter,
		logger:     logger.With("component", "query"),
	}
	if e.limits == (filter.Limits{}) {
		e.limits = filter.DefaultLimits()
	}
	if e.pageSize <= 0 {
		e.pageSize = 20
	}
	if e.sortLimit <= 0 {
		e.sortLimit = 10000
	}
	if e.countLimit <= 0 {
		e.countLimit = 1000
	}
	e.orch = task.New(task.Config{Concurrency: opts.Concurrency, Pool: opts.Pool, Logger: logger})
	return e
}

// Assembler returns the assembler for the engine's table.
func (e *Engine) Assembler() cql.Assembler {
	return e.asm
}

// Executor returns the executor the engine reads through.
func (e *Engine) Executor() cql.Executor {
	return e.exec
}

// Request describes one find.
type Request struct {
	Filter *filter.LogicalExpression
	Sort   filter.Sort

	// Skip and Limit apply after sorting. Skip requires Sort. For
	// unsorted reads Limit caps the documents returned over all pages of
	// the read and 0 means no cap; a sorted read with Limit 0 returns one
	// page.
	Skip  int
	Limit int

	PageSize  int    // 0 means the engine default
	PageState string // token from a previous unsorted Response
}

// Document is one matched row.
type Document struct {
	Key  codec.Key
	ID   filter.Value
	TxID uuid.UUID
	JSON []byte
}

// Response is one page of results.
type Response struct {
	Documents     []Document
	NextPageState string // empty when there are no more pages
	Warnings      []task.Warning
}

// CountResult is the outcome of Count. When MoreData is set the true count
// exceeds Count, which is then the configured maximum.
type CountResult struct {
	Count    int
	MoreData bool
	Warnings []task.Warning
}

// Find returns one page of matching documents.
func (e *Engine) Find(ctx context.Context, req Request) (Response, error) {
	if req.Skip > 0 && len(req.Sort) == 0 {
		return Response{}, filter.RequestError(filter.ErrSkipWithoutSort, "skip %d given without sort", req.Skip)
	}
	if req.PageState != "" && len(req.Sort) > 0 {
		return Response{}, ErrSortedPageState
	}
	if req.Skip < 0 || req.Limit < 0 || req.PageSize < 0 {
		return Response{}, ErrNegativeOption
	}

	plan, err := e.Plan(req.Filter, cql.SelectOptions{})
	if err != nil {
		return Response{}, err
	}
	if plan.DNF.IsEmpty() {
		return Response{}, nil
	}

	var resp Response
	switch {
	case len(req.Sort) > 0:
		resp, err = e.findSorted(ctx, plan, req)
	case len(plan.Statements) == 1:
		resp, err = e.findSingle(ctx, plan.Statements[0], req)
	default:
		resp, err = e.findMulti(ctx, plan.Statements, req)
	}
	if err != nil {
		e.logFailure("find", err)
		return Response{}, err
	}
	return resp, nil
}

// FindOne returns the first matching document, or nil if none matches.
func (e *Engine) FindOne(ctx context.Context, req Request) (*Document, []task.Warning, error) {
	req.PageState = ""
	req.PageSize = 1
	req.Limit = 1
	resp, err := e.Find(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if len(resp.Documents) == 0 {
		return nil, resp.Warnings, nil
	}
	doc := resp.Documents[0]
	return &doc, resp.Warnings, nil
}

// Recheck reads the document with the given _id only if it still matches
// root. It returns nil when the document is gone or no longer matches.
// Only the key and tx_id columns are read.
func (e *Engine) Recheck(ctx context.Context, root *filter.LogicalExpression, id filter.Value) (*Document, []task.Warning, error) {
	plan, err := e.Plan(root, cql.SelectOptions{})
	if err != nil {
		return nil, nil, err
	}
	narrowed := plan.DNF.RestrictIdentity(id)
	if narrowed.IsEmpty() {
		return nil, nil, nil
	}
	stmts, _, err := e.asm.AssembleAll(narrowed, cql.SelectOptions{Columns: []string{cql.ColKey, cql.ColTxID}, Limit: 1})
	if err != nil {
		return nil, nil, err
	}

	branches, warnings, err := e.readAll(ctx, stmts, 1)
	if err != nil {
		e.logFailure("recheck", err)
		return nil, nil, err
	}
	docs, err := toDocuments(mergeRows(nil, branches...))
	if err != nil {
		return nil, nil, err
	}
	if len(docs) == 0 {
		return nil, warnings, nil
	}
	return &docs[0], warnings, nil
}

// Count counts matching documents up to MaxCountLimit.
func (e *Engine) Count(ctx context.Context, root *filter.LogicalExpression) (CountResult, error) {
	plan, err := e.Plan(root, cql.SelectOptions{Columns: []string{cql.ColKey}, Limit: e.countLimit + 1})
	if err != nil {
		return CountResult{}, err
	}
	if plan.DNF.IsEmpty() {
		return CountResult{}, nil
	}

	branches, warnings, err := e.readAll(ctx, plan.Statements, e.countLimit+1)
	if err != nil {
		e.logFailure("count", err)
		return CountResult{}, err
	}
	n := len(mergeRows(nil, branches...))
	res := CountResult{Count: n, Warnings: warnings}
	if n > e.countLimit {
		res.Count = e.countLimit
		res.MoreData = true
	}
	return res, nil
}

// Explain plans a filter without executing it.
func (e *Engine) Explain(root *filter.LogicalExpression, sort filter.Sort) (Plan, error) {
	opts := cql.SelectOptions{}
	if len(sort) > 0 {
		opts.Limit = e.sortLimit + 1
	}
	plan, err := e.Plan(root, opts)
	if err != nil {
		return Plan{}, err
	}
	plan.Sort = sort
	return plan, nil
}

// logFailure logs errors that are not the caller's fault. Filter errors
// are returned without logging.
func (e *Engine) logFailure(op string, err error) {
	var fe *filter.Error
	if errors.As(err, &fe) || errors.Is(err, context.Canceled) {
		return
	}
	e.logger.Warn(op+" failed", "error", err)
}
