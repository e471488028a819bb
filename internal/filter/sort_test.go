package filter

import (
	"errors"
	"testing"
)

func TestParseSort(t *testing.T) {
	s, err := ParseSort([]byte(`{"name": 1, "address.city": -1}`))
	if err != nil {
		t.Fatalf("ParseSort: %v", err)
	}
	if len(s) != 2 {
		t.Fatalf("got %d fields, want 2", len(s))
	}
	if s[0] != (SortField{Path: "name", Ascending: true}) {
		t.Errorf("s[0] = %+v", s[0])
	}
	if s[1] != (SortField{Path: "address.city", Ascending: false}) {
		t.Errorf("s[1] = %+v", s[1])
	}
	if got := s.String(); got != "name:1,address.city:-1" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseSortEmpty(t *testing.T) {
	for _, input := range []string{``, `null`, `{}`} {
		s, err := ParseSort([]byte(input))
		if err != nil {
			t.Errorf("ParseSort(%q): %v", input, err)
		}
		if len(s) != 0 {
			t.Errorf("ParseSort(%q) = %v, want empty", input, s)
		}
	}
}

func TestParseSortErrors(t *testing.T) {
	inputs := []string{
		`[1]`,
		`{"a": 2}`,
		`{"a": "asc"}`,
		`{"a": 1, "a": -1}`,
		`{"$vector": 1}`,
		`{"": 1}`,
		`{"a": `,
	}
	for _, input := range inputs {
		_, err := ParseSort([]byte(input))
		if !errors.Is(err, ErrInvalidSort) {
			t.Errorf("ParseSort(%s) = %v, want %v", input, err, ErrInvalidSort)
		}
	}
}
