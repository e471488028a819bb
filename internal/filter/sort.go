package filter

import (
	"strings"

	"github.com/valyala/fastjson"
)

// SortField orders results by one dotted path.
type SortField struct {
	Path      string
	Ascending bool
}

// Sort is an ordered list of sort keys; earlier keys take precedence.
type Sort []SortField

func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		dir := "1"
		if !f.Ascending {
			dir = "-1"
		}
		parts[i] = f.Path + ":" + dir
	}
	return strings.Join(parts, ",")
}

// ParseSort parses a sort clause such as {"name": 1, "age": -1}. An empty
// or null clause yields a nil Sort.
func ParseSort(data []byte) (Sort, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, ruleError(ErrInvalidSort, "", "malformed sort clause: %v", err)
	}
	return SortFromJSON(v)
}

// SortFromJSON builds a Sort from an already parsed clause.
func SortFromJSON(v *fastjson.Value) (Sort, error) {
	if v == nil || v.Type() == fastjson.TypeNull {
		return nil, nil
	}
	obj, err := v.Object()
	if err != nil {
		return nil, ruleError(ErrInvalidSort, "", "sort clause must be an object, got %s", v.Type())
	}

	var out Sort
	var firstErr error
	obj.Visit(func(k []byte, dir *fastjson.Value) {
		if firstErr != nil {
			return
		}
		path := string(k)
		switch {
		case path == "":
			firstErr = ruleError(ErrInvalidSort, path, "empty sort path")
			return
		case strings.HasPrefix(path, "$"):
			firstErr = ruleError(ErrInvalidSort, path, "unsupported sort key %q", path)
			return
		}
		for _, f := range out {
			if f.Path == path {
				firstErr = ruleError(ErrInvalidSort, path, "path sorted more than once")
				return
			}
		}
		n, err := dir.Int()
		if err != nil || (n != 1 && n != -1) {
			firstErr = ruleError(ErrInvalidSort, path, "sort direction must be 1 or -1, got %s", dir.MarshalTo(nil))
			return
		}
		out = append(out, SortField{Path: path, Ascending: n == 1})
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
