package reader

import (
	"testing"

	"ilex/value"
)

func TestReadAllAtoms(t *testing.T) {
	datums, err := ReadAll("1 2.5 foo #t #f")
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if len(datums) != 5 {
		t.Fatalf("expected 5 datums, got %d: %v", len(datums), datums)
	}
	if datums[0] != int64(1) {
		t.Fatalf("datums[0] = %#v, want int64(1)", datums[0])
	}
	if datums[1] != 2.5 {
		t.Fatalf("datums[1] = %#v, want 2.5", datums[1])
	}
	if sym, ok := datums[2].(*value.Symbol); !ok || sym.Name != "foo" {
		t.Fatalf("datums[2] = %#v, want symbol foo", datums[2])
	}
	if datums[3] != true || datums[4] != false {
		t.Fatalf("boolean literals misread: %v %v", datums[3], datums[4])
	}
}

func TestReadList(t *testing.T) {
	datum, err := New("(1 2 3)").Read()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	items, ok := value.ListToSlice(datum)
	if !ok || len(items) != 3 {
		t.Fatalf("expected a 3-element proper list, got %v", datum)
	}
}

func TestReadDottedPair(t *testing.T) {
	datum, err := New("(1 . 2)").Read()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	p, ok := datum.(*value.Pair)
	if !ok || p.Car != int64(1) || p.Cdr != int64(2) {
		t.Fatalf("dotted pair misread: %#v", datum)
	}
}

func TestReadQuoteForms(t *testing.T) {
	datum, err := New("'x").Read()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	items, ok := value.ListToSlice(datum)
	if !ok || len(items) != 2 {
		t.Fatalf("'x should read as (quote x), got %v", datum)
	}
	if sym, ok := items[0].(*value.Symbol); !ok || sym.Name != "quote" {
		t.Fatalf("first element should be the quote symbol: %v", items[0])
	}
}

func TestReadString(t *testing.T) {
	datum, err := New(`"hello\nworld"`).Read()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	s, ok := datum.(*value.SString)
	if !ok || s.String() != "hello\nworld" {
		t.Fatalf("string literal misread: %#v", datum)
	}
}

func TestReadVector(t *testing.T) {
	datum, err := New("#(1 2 3)").Read()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	v, ok := datum.(*value.Vector)
	if !ok || len(v.Items) != 3 {
		t.Fatalf("vector literal misread: %#v", datum)
	}
}

func TestReadCharLiterals(t *testing.T) {
	cases := map[string]rune{
		`#\a`:       'a',
		`#\space`:   ' ',
		`#\newline`: '\n',
	}
	for src, want := range cases {
		datum, err := New(src).Read()
		if err != nil {
			t.Fatalf("Read(%q) error: %v", src, err)
		}
		if datum != value.Char(want) {
			t.Fatalf("Read(%q) = %#v, want Char(%q)", src, datum, want)
		}
	}
}

func TestReadComments(t *testing.T) {
	datums, err := ReadAll("1 ; a comment\n2")
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if len(datums) != 2 || datums[0] != int64(1) || datums[1] != int64(2) {
		t.Fatalf("comment skipping failed: %v", datums)
	}
}

func TestReadUnterminatedListIsAnError(t *testing.T) {
	if _, err := New("(1 2").Read(); err == nil {
		t.Fatalf("expected an error for an unterminated list")
	}
}

func TestReadAtEOFReturnsNil(t *testing.T) {
	datum, err := New("   ").Read()
	if err != nil || datum != nil {
		t.Fatalf("Read on blank input should return (nil, nil), got (%v, %v)", datum, err)
	}
}
