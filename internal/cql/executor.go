package cql

import (
	"context"
	"errors"

	"docquery/internal/codec"

	"github.com/google/uuid"
)

var (
	// ErrUnindexedScan is returned by ExecuteRead when the store refuses a
	// statement that would need ALLOW FILTERING.
	ErrUnindexedScan = errors.New("statement requires an unindexed scan")

	// ErrLWTConflict marks a conditional write that was not applied.
	ErrLWTConflict = errors.New("lightweight transaction not applied")
)

// Row is one document read from the shredded table.
type Row struct {
	Key     codec.Key
	TxID    uuid.UUID
	DocJSON []byte
}

// Paging asks for one page of a read. A nil PageState starts from the
// beginning.
type Paging struct {
	PageSize  int
	PageState []byte
}

// Page is one page of rows. A nil PageState means there are no more rows.
type Page struct {
	Rows      []Row
	PageState []byte
}

// Exhausted reports whether no further page can be fetched.
func (p Page) Exhausted() bool {
	return len(p.PageState) == 0
}

// WriteResult reports the outcome of a write. For conditional writes that
// were not applied, CurrentTxID holds the tx_id the store saw, if any.
type WriteResult struct {
	Applied     bool
	CurrentTxID uuid.UUID
}

// Executor runs statements against the store. Implementations must be safe
// for concurrent use.
type Executor interface {
	ExecuteRead(ctx context.Context, stmt Statement, paging Paging) (Page, error)
	ExecuteWrite(ctx context.Context, stmt Statement) (WriteResult, error)
}
