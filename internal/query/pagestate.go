package query

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrInvalidPageState is returned for a page token that does not decode
	// or does not fit the filter it was passed with.
	ErrInvalidPageState = errors.New("invalid page state")

	// ErrSortedPageState is returned when a page token is combined with a
	// sort. Sorted results are paged with skip.
	ErrSortedPageState = errors.New("page state cannot be combined with sort")

	// ErrNegativeOption is returned for a negative skip, limit or page size.
	ErrNegativeOption = errors.New("skip, limit and page size must not be negative")
)

// pageState is the resumable position of an unsorted read. States and Done
// are indexed by branch. Returned counts the documents handed out so far and
// bounds the read when the request has a limit.
type pageState struct {
	States   [][]byte `msgpack:"s"`
	Done     []bool   `msgpack:"d"`
	Seen     []uint64 `msgpack:"k,omitempty"`
	Returned int      `msgpack:"n,omitempty"`
}

func (t pageState) finished() bool {
	return !slices.Contains(t.Done, false)
}

func encodePageState(t pageState) (string, error) {
	b, err := msgpack.Marshal(&t)
	if err != nil {
		return "", fmt.Errorf("encode page state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// decodePageState decodes a token produced for a plan with the given number
// of branches.
func decodePageState(s string, branches int) (pageState, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return pageState{}, fmt.Errorf("%w: %v", ErrInvalidPageState, err)
	}
	var t pageState
	if err := msgpack.Unmarshal(b, &t); err != nil {
		return pageState{}, fmt.Errorf("%w: %v", ErrInvalidPageState, err)
	}
	if len(t.States) != branches || len(t.Done) != branches {
		return pageState{}, fmt.Errorf("%w: token has %d branches, filter has %d", ErrInvalidPageState, len(t.States), branches)
	}
	return t, nil
}
