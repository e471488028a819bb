package query

import (
	"slices"

	"docquery/internal/codec"
	"docquery/internal/cql"
)

// seenSet tracks row identities already returned. Rows are compared by the
// digest of their primary key.
type seenSet map[uint64]struct{}

func newSeenSet(digests []uint64) seenSet {
	s := make(seenSet, len(digests))
	for _, d := range digests {
		s[d] = struct{}{}
	}
	return s
}

// add reports whether key was not seen before.
func (s seenSet) add(key codec.Key) bool {
	d := key.Digest()
	if _, ok := s[d]; ok {
		return false
	}
	s[d] = struct{}{}
	return true
}

// appendNew appends the rows of src not yet seen.
func (s seenSet) appendNew(dst, src []cql.Row) []cql.Row {
	for _, r := range src {
		if s.add(r.Key) {
			dst = append(dst, r)
		}
	}
	return dst
}

// countNew counts the rows of src not yet seen. src must not repeat a key.
func (s seenSet) countNew(src []cql.Row) int {
	n := 0
	for _, r := range src {
		if _, ok := s[r.Key.Digest()]; !ok {
			n++
		}
	}
	return n
}

func (s seenSet) digests() []uint64 {
	out := make([]uint64, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// mergeRows unions branch results in branch order, keeping the first
// occurrence of each row.
func mergeRows(seen seenSet, branches ...[]cql.Row) []cql.Row {
	if seen == nil {
		seen = newSeenSet(nil)
	}
	var out []cql.Row
	for _, rows := range branches {
		out = seen.appendNew(out, rows)
	}
	return out
}

func toDocuments(rows []cql.Row) ([]Document, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	docs := make([]Document, len(rows))
	for i, r := range rows {
		id, err := codec.DecodeIdentity(r.Key)
		if err != nil {
			return nil, err
		}
		docs[i] = Document{Key: r.Key, ID: id, TxID: r.TxID, JSON: r.DocJSON}
	}
	return docs, nil
}
