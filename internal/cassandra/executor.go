package cassandra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docquery/internal/codec"
	"docquery/internal/cql"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// ExecuteRead runs one page of a SELECT.
func (e *Executor) ExecuteRead(ctx context.Context, stmt cql.Statement, paging cql.Paging) (cql.Page, error) {
	sel, ok := stmt.(cql.Select)
	if !ok {
		return cql.Page{}, fmt.Errorf("read: unsupported statement %T", stmt)
	}
	q := e.session.Query(sel.CQL(), bindValues(sel.Values())...).WithContext(ctx)
	if paging.PageSize > 0 {
		q = q.PageSize(paging.PageSize)
	}
	if len(paging.PageState) > 0 {
		q = q.PageState(paging.PageState)
	}
	iter := q.Iter()

	var page cql.Page
	for {
		var r scanRow
		if !iter.Scan(r.dest(sel.Columns)...) {
			break
		}
		page.Rows = append(page.Rows, r.row())
		// Stop at the page boundary instead of letting the iterator fetch
		// the next page.
		if paging.PageSize > 0 && len(page.Rows) == paging.PageSize {
			break
		}
	}
	page.PageState = iter.PageState()
	if err := iter.Close(); err != nil {
		err = classify(err)
		if errors.Is(err, cql.ErrUnindexedScan) {
			e.logger.Debug("statement rejected as unindexed scan", "cql", sel.CQL())
		}
		return cql.Page{}, err
	}
	return page, nil
}

// ExecuteWrite runs an INSERT or DELETE. Conditional statements report
// whether they were applied and the tx_id the store saw.
func (e *Executor) ExecuteWrite(ctx context.Context, stmt cql.Statement) (cql.WriteResult, error) {
	q := e.session.Query(stmt.CQL(), bindValues(stmt.Values())...).WithContext(ctx)

	if !conditional(stmt) {
		if err := q.Exec(); err != nil {
			return cql.WriteResult{}, classify(err)
		}
		return cql.WriteResult{Applied: true}, nil
	}

	current := make(map[string]any)
	applied, err := q.MapScanCAS(current)
	if err != nil {
		return cql.WriteResult{}, classify(err)
	}
	res := cql.WriteResult{Applied: applied}
	if id, ok := current[cql.ColTxID].(gocql.UUID); ok {
		res.CurrentTxID = uuid.UUID(id)
	}
	return res, nil
}

func conditional(stmt cql.Statement) bool {
	switch s := stmt.(type) {
	case cql.Insert:
		return s.IfNotExists
	case cql.Delete:
		return s.IfTxID != nil
	}
	return false
}

// classify maps driver errors onto the executor's error classes.
func classify(err error) error {
	if isUnindexedScan(err) {
		return fmt.Errorf("%w: %v", cql.ErrUnindexedScan, err)
	}
	return err
}

// isUnindexedScan reports whether the coordinator rejected a statement
// because it needs ALLOW FILTERING.
func isUnindexedScan(err error) bool {
	var re gocql.RequestError
	if !errors.As(err, &re) {
		return false
	}
	return re.Code() == gocql.ErrCodeInvalid && strings.Contains(re.Message(), "ALLOW FILTERING")
}

// scanRow receives one row. The key tuple is scanned as its two elements.
type scanRow struct {
	keyType int8
	keyText string
	txID    gocql.UUID
	doc     string
}

func (r *scanRow) dest(columns []string) []any {
	var dest []any
	for _, c := range columns {
		switch c {
		case cql.ColKey:
			dest = append(dest, &r.keyType, &r.keyText)
		case cql.ColTxID:
			dest = append(dest, &r.txID)
		case cql.ColDocJSON:
			dest = append(dest, &r.doc)
		}
	}
	return dest
}

func (r *scanRow) row() cql.Row {
	return cql.Row{
		Key:     codec.Key{Type: codec.KeyType(r.keyType), Text: r.keyText},
		TxID:    uuid.UUID(r.txID),
		DocJSON: []byte(r.doc),
	}
}
