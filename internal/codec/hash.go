// Package codec encodes filter values into the forms stored in the shredded
// index columns: content hashes for composite values, typed tags for the
// array-contains set, and the physical key for document identities.
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"hash"
	"strconv"

	"docquery/internal/filter"

	"golang.org/x/crypto/blake2b"
)

// digestSize is the blake2b output length in bytes.
const digestSize = 16

// Hash returns the content hash of v at path, in the form stored in the
// text value map: "<path> <digest>". Equal values on different paths hash
// differently. Lists keep element order and sub-documents keep document
// key order, so {"a":1,"b":2} and {"b":2,"a":1} hash differently.
func Hash(path string, v filter.Value) string {
	return path + " " + Digest(v)
}

// Digest returns the base64url blake2b-128 digest of v's canonical
// encoding.
func Digest(v filter.Value) string {
	// New fails only for sizes outside 1..64 or keys over 64 bytes.
	h, _ := blake2b.New(digestSize, nil)
	writeCanonical(h, v)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Tag returns the typed scalar tag recorded in the array-contains set.
// Composite values are tagged with their digest.
func Tag(v filter.Value) string {
	switch v.Kind() {
	case filter.KindNull:
		return "Z"
	case filter.KindBool:
		if v.Bool() {
			return "B1"
		}
		return "B0"
	case filter.KindNumber:
		return "N" + v.Number().String()
	case filter.KindString:
		return "S" + v.Text()
	case filter.KindDate:
		return "T" + strconv.FormatInt(v.Time().UnixMilli(), 10)
	case filter.KindUUID:
		return "U" + v.UUID().String()
	case filter.KindArray:
		return "A" + Digest(v)
	default:
		return "O" + Digest(v)
	}
}

// ContainsEntry returns the array-contains set entry for v at path.
func ContainsEntry(path string, v filter.Value) string {
	return path + " " + Tag(v)
}

// writeCanonical writes a type-tagged, length-prefixed encoding of v. Every
// variable-length part carries its length, so no two distinct values share
// an encoding.
func writeCanonical(h hash.Hash, v filter.Value) {
	var buf []byte
	buf = appendCanonical(buf, v)
	h.Write(buf)
}

func appendCanonical(buf []byte, v filter.Value) []byte {
	switch v.Kind() {
	case filter.KindNull:
		return append(buf, 'Z')
	case filter.KindBool:
		if v.Bool() {
			return append(buf, 'B', 1)
		}
		return append(buf, 'B', 0)
	case filter.KindNumber:
		return appendString(append(buf, 'N'), v.Number().String())
	case filter.KindString:
		return appendString(append(buf, 'S'), v.Text())
	case filter.KindDate:
		return binary.BigEndian.AppendUint64(append(buf, 'T'), uint64(v.Time().UnixMilli()))
	case filter.KindUUID:
		id := v.UUID()
		return append(append(buf, 'U'), id[:]...)
	case filter.KindArray:
		elems := v.Elements()
		buf = binary.AppendUvarint(append(buf, 'A'), uint64(len(elems)))
		for _, e := range elems {
			buf = appendCanonical(buf, e)
		}
		return buf
	default:
		fields := v.Fields()
		buf = binary.AppendUvarint(append(buf, 'O'), uint64(len(fields)))
		for _, f := range fields {
			buf = appendString(buf, f.Key)
			buf = appendCanonical(buf, f.Value)
		}
		return buf
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}
