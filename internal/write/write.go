// Package write runs multi-document inserts and deletes as batches of task
// attempts.
//
// Each document is one attempt. Ordered batches stop at the first failed
// document and leave the rest unwritten; unordered batches attempt every
// document and report each outcome by position.
package write

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docquery/internal/codec"
	"docquery/internal/cql"
	"docquery/internal/filter"
	"docquery/internal/logging"
	"docquery/internal/query"
	"docquery/internal/task"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// ErrDocumentExists is returned for an insert whose _id is already stored.
// It is never retried.
var ErrDocumentExists = errors.New("document already exists")

// Shredded is a document encoded into the index columns. Columns and Values
// are parallel and exclude the key and tx_id columns.
type Shredded struct {
	ID      filter.Value
	Columns []string
	Values  []any
}

// Shredder encodes a JSON document into the shredded table layout.
type Shredder interface {
	Shred(doc []byte) (Shredded, error)
}

// Options configures a Writer.
type Options struct {
	LWTRetries     int
	RetryDelay     time.Duration
	MaxDeleteCount int

	Concurrency int
	Pool        *ants.Pool
	Logger      *slog.Logger
}

// Writer performs batched writes against the engine's table.
type Writer struct {
	engine    *query.Engine
	exec      cql.Executor
	asm       cql.Assembler
	shredder  Shredder
	orch      *task.Orchestrator
	lwt       task.RetryPolicy
	maxDelete int
	logger    *slog.Logger
}

// New creates a Writer. shredder may be nil for a Writer that only
// deletes.
func New(engine *query.Engine, shredder Shredder, opts Options) *Writer {
	logger := logging.Default(opts.Logger)
	maxDelete := opts.MaxDeleteCount
	if maxDelete <= 0 {
		maxDelete = 20
	}
	return &Writer{
		engine:    engine,
		exec:      engine.Executor(),
		asm:       engine.Assembler(),
		shredder:  shredder,
		orch:      task.New(task.Config{Concurrency: opts.Concurrency, Pool: opts.Pool, Logger: logger}),
		lwt:       task.RetryOn(opts.LWTRetries, opts.RetryDelay, cql.ErrLWTConflict),
		maxDelete: maxDelete,
		logger:    logger.With("component", "write"),
	}
}

// Failure is one document that could not be written.
type Failure struct {
	Position int
	Err      error
}

// InsertResult reports a batch insert. Inserted holds the ids written, in
// input order. Stopped is set when an ordered batch left documents
// unattempted.
type InsertResult struct {
	Inserted []filter.Value
	Failures []Failure
	Stopped  bool
}

// InsertMany inserts docs. A document whose _id already exists fails with
// ErrDocumentExists.
func (w *Writer) InsertMany(ctx context.Context, docs [][]byte, ordered bool) (InsertResult, error) {
	if w.shredder == nil {
		return InsertResult{}, errors.New("insert: no shredder configured")
	}
	attempts := make([]*task.Attempt[filter.Value], len(docs))
	for i, doc := range docs {
		attempts[i] = w.insertAttempt(i, doc)
	}

	var res task.Result[filter.Value]
	if ordered {
		res = task.RunOrdered(ctx, w.orch, attempts)
	} else {
		res = task.RunUnordered(ctx, w.orch, attempts)
	}

	out := InsertResult{Stopped: res.Stopped}
	for _, a := range res.Attempts {
		if a.Status() == task.Completed {
			out.Inserted = append(out.Inserted, a.Result())
			continue
		}
		out.Failures = append(out.Failures, Failure{Position: a.Position(), Err: a.Err()})
	}
	if len(out.Failures) > 0 {
		w.logger.Debug("insert batch had failures", "documents", len(docs), "failed", len(out.Failures), "stopped", out.Stopped)
	}
	return out, nil
}

func (w *Writer) insertAttempt(pos int, doc []byte) *task.Attempt[filter.Value] {
	a := task.NewAttempt[filter.Value](pos, "insert", task.NoRetry)
	sh, err := w.shredder.Shred(doc)
	if err != nil {
		a.Fail(fmt.Errorf("shred document %d: %w", pos, err))
		return a
	}
	key, err := codec.EncodeIdentity(sh.ID)
	if err != nil {
		a.Fail(fmt.Errorf("document %d: %w", pos, err))
		return a
	}
	return a.Ready(func(ctx context.Context, _ int) (filter.Value, error) {
		txID, err := uuid.NewUUID()
		if err != nil {
			return filter.Value{}, fmt.Errorf("new tx id: %w", err)
		}
		stmt := cql.Insert{
			Keyspace:    w.asm.Keyspace,
			Table:       w.asm.Table,
			Columns:     append([]string{cql.ColKey, cql.ColTxID}, sh.Columns...),
			Bind:        append([]any{key, txID}, sh.Values...),
			IfNotExists: true,
		}
		res, err := w.exec.ExecuteWrite(ctx, stmt)
		if err != nil {
			return filter.Value{}, fmt.Errorf("insert %s: %w", sh.ID, err)
		}
		if !res.Applied {
			return filter.Value{}, fmt.Errorf("%w: _id %s", ErrDocumentExists, sh.ID)
		}
		return sh.ID, nil
	})
}

// DeleteResult reports a DeleteMany. MoreData is set when more documents
// matched than one call deletes.
type DeleteResult struct {
	Deleted  int
	MoreData bool
	Failures []Failure
	Warnings []task.Warning
}

// DeleteMany deletes up to MaxDeleteCount documents matching root. Each
// delete is conditional on the tx_id read with the document. When a
// concurrent update wins, the document is read again under root and the
// delete is retried only if it still matches.
func (w *Writer) DeleteMany(ctx context.Context, root *filter.LogicalExpression) (DeleteResult, error) {
	resp, err := w.engine.Find(ctx, query.Request{Filter: root, PageSize: w.maxDelete + 1})
	if err != nil {
		return DeleteResult{}, err
	}
	out := DeleteResult{Warnings: resp.Warnings}
	docs := resp.Documents
	if len(docs) > w.maxDelete || resp.NextPageState != "" {
		out.MoreData = true
	}
	if len(docs) > w.maxDelete {
		docs = docs[:w.maxDelete]
	}
	if len(docs) == 0 {
		return out, nil
	}

	attempts := make([]*task.Attempt[int], len(docs))
	for i, d := range docs {
		attempts[i] = w.deleteAttempt(i, root, d)
	}
	res := task.RunUnordered(ctx, w.orch, attempts)
	for _, a := range res.Attempts {
		if a.Status() == task.Completed {
			out.Deleted += a.Result()
			continue
		}
		out.Failures = append(out.Failures, Failure{Position: a.Position(), Err: a.Err()})
	}
	out.Warnings = append(out.Warnings, res.Warnings()...)
	return out, nil
}

func (w *Writer) deleteAttempt(pos int, root *filter.LogicalExpression, doc query.Document) *task.Attempt[int] {
	a := task.NewAttempt[int](pos, "delete", w.lwt)
	key := doc.Key
	return a.Ready(func(ctx context.Context, retry int) (int, error) {
		current := doc.TxID
		if retry > 0 {
			fresh, warnings, err := w.engine.Recheck(ctx, root, doc.ID)
			if err != nil {
				return 0, fmt.Errorf("re-read %s: %w", key, err)
			}
			for _, wn := range warnings {
				a.Warn(wn.Code, wn.Message)
			}
			if fresh == nil {
				w.logger.Debug("document no longer matches, skipping delete", "key", key, "retry", retry)
				return 0, nil
			}
			current = fresh.TxID
			w.logger.Debug("retrying conditional delete", "key", key, "retry", retry)
		}
		res, err := w.exec.ExecuteWrite(ctx, cql.Delete{
			Keyspace: w.asm.Keyspace,
			Table:    w.asm.Table,
			Key:      key,
			IfTxID:   &current,
		})
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", key, err)
		}
		if res.Applied {
			return 1, nil
		}
		if res.CurrentTxID == uuid.Nil {
			// Row deleted by someone else.
			return 0, nil
		}
		return 0, fmt.Errorf("%w: delete %s", cql.ErrLWTConflict, key)
	})
}
