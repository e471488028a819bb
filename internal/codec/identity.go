package codec

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"docquery/internal/filter"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnsupportedIdentity is returned for identity values that cannot be a
// partition key (arrays and sub-documents).
var ErrUnsupportedIdentity = errors.New("unsupported identity type")

// KeyType tags the physical partition key tuple.
type KeyType int8

const (
	KeyString KeyType = 1
	KeyNumber KeyType = 2
	KeyBool   KeyType = 3
	KeyNull   KeyType = 4
	KeyDate   KeyType = 5
	KeyUUID   KeyType = 6
)

func (t KeyType) String() string {
	switch t {
	case KeyString:
		return "string"
	case KeyNumber:
		return "number"
	case KeyBool:
		return "bool"
	case KeyNull:
		return "null"
	case KeyDate:
		return "date"
	case KeyUUID:
		return "uuid"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Key is the physical form of a document identity: the (type, text)
// tuple stored in the key column. The identity is not hashed and decodes
// back to the exact original value.
type Key struct {
	Type KeyType
	Text string
}

// Tuple returns the key as bind values for a tuple column.
func (k Key) Tuple() []any {
	return []any{int8(k.Type), k.Text}
}

func (k Key) String() string {
	return k.Type.String() + ":" + k.Text
}

// Digest returns a 64-bit fingerprint of the key, used to remember which
// rows were already returned across pages.
func (k Key) Digest() uint64 {
	return xxhash.Sum64String(k.String())
}

// EncodeIdentity converts an _id value to its key.
func EncodeIdentity(v filter.Value) (Key, error) {
	switch v.Kind() {
	case filter.KindString:
		return Key{Type: KeyString, Text: v.Text()}, nil
	case filter.KindNumber:
		return Key{Type: KeyNumber, Text: v.Number().String()}, nil
	case filter.KindBool:
		return Key{Type: KeyBool, Text: strconv.FormatBool(v.Bool())}, nil
	case filter.KindNull:
		return Key{Type: KeyNull}, nil
	case filter.KindDate:
		return Key{Type: KeyDate, Text: strconv.FormatInt(v.Time().UnixMilli(), 10)}, nil
	case filter.KindUUID:
		return Key{Type: KeyUUID, Text: v.UUID().String()}, nil
	default:
		return Key{}, fmt.Errorf("%w: %s", ErrUnsupportedIdentity, v.Kind())
	}
}

// EncodeIdentities encodes every value, stopping at the first failure.
func EncodeIdentities(vals []filter.Value) ([]Key, error) {
	keys := make([]Key, len(vals))
	for i, v := range vals {
		k, err := EncodeIdentity(v)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

// DecodeIdentity converts a key back to the _id value it was encoded from.
func DecodeIdentity(k Key) (filter.Value, error) {
	switch k.Type {
	case KeyString:
		return filter.String(k.Text), nil
	case KeyNumber:
		d, err := decimal.NewFromString(k.Text)
		if err != nil {
			return filter.Value{}, fmt.Errorf("decode number key %q: %w", k.Text, err)
		}
		return filter.Number(d), nil
	case KeyBool:
		b, err := strconv.ParseBool(k.Text)
		if err != nil {
			return filter.Value{}, fmt.Errorf("decode bool key %q: %w", k.Text, err)
		}
		return filter.Bool(b), nil
	case KeyNull:
		return filter.Null(), nil
	case KeyDate:
		ms, err := strconv.ParseInt(k.Text, 10, 64)
		if err != nil {
			return filter.Value{}, fmt.Errorf("decode date key %q: %w", k.Text, err)
		}
		return filter.Date(time.UnixMilli(ms)), nil
	case KeyUUID:
		id, err := uuid.Parse(k.Text)
		if err != nil {
			return filter.Value{}, fmt.Errorf("decode uuid key %q: %w", k.Text, err)
		}
		return filter.UUID(id), nil
	default:
		return filter.Value{}, fmt.Errorf("%w: key type %d", ErrUnsupportedIdentity, k.Type)
	}
}
