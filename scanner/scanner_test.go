package scanner

import (
	"io"
	"testing"
)

func collect(t *testing.T, src string) []Token {
	t.Helper()
	s := New([]byte(src))
	var out []Token
	for {
		tok, err := s.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, tok)
	}
}

func TestScanObjectHeader(t *testing.T) {
	toks := collect(t, "12 0 obj\n<< /Type /Page >>\nendobj")
	want := []struct {
		typ TokenType
		str string
	}{
		{TokenNumber, "12"},
		{TokenNumber, "0"},
		{TokenKeyword, "obj"},
		{TokenDictOpen, ""},
		{TokenName, "Type"},
		{TokenName, "Page"},
		{TokenDictClose, ""},
		{TokenKeyword, "endobj"},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, w := range want {
		if toks[i].Type != w.typ {
			t.Errorf("token %d: type %v, want %v", i, toks[i].Type, w.typ)
		}
		if w.str != "" && toks[i].Str != w.str {
			t.Errorf("token %d: %q, want %q", i, toks[i].Str, w.str)
		}
	}
}

func TestScanLiteralString(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"(hello)", "hello"},
		{"(nested (parens) ok)", "nested (parens) ok"},
		{`(esc \( \) \\)`, `esc ( ) \`},
		{`(\101\102)`, "AB"},
		{"(line\\\ncontinued)", "linecontinued"},
	}
	for _, tc := range tests {
		toks := collect(t, tc.src)
		if len(toks) != 1 || toks[0].Type != TokenString {
			t.Fatalf("%q: got %v", tc.src, toks)
		}
		if got := string(toks[0].Raw); got != tc.want {
			t.Errorf("%q: decoded %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestScanHexString(t *testing.T) {
	toks := collect(t, "<48656C6C6F>")
	if string(toks[0].Raw) != "Hello" {
		t.Errorf("hex string decoded to %q", toks[0].Raw)
	}
	// Odd digit count pads the final nibble with zero.
	toks = collect(t, "<4>")
	if len(toks[0].Raw) != 1 || toks[0].Raw[0] != 0x40 {
		t.Errorf("odd hex string decoded to %v", toks[0].Raw)
	}
}

func TestScanNameWithHexEscape(t *testing.T) {
	toks := collect(t, "/A#42C")
	if toks[0].Str != "ABC" {
		t.Errorf("name decoded to %q, want ABC", toks[0].Str)
	}
}

func TestScanNumbers(t *testing.T) {
	toks := collect(t, "42 -17 3.14 .5 -0.002")
	wantInt := []bool{true, true, false, false, false}
	wantVal := []float64{42, -17, 3.14, 0.5, -0.002}
	for i := range wantVal {
		if toks[i].Num != wantVal[i] || toks[i].Int != wantInt[i] {
			t.Errorf("number %d: %+v", i, toks[i])
		}
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	toks := collect(t, "%PDF-1.7\n42 % trailing\n7")
	if len(toks) != 2 || toks[0].Num != 42 || toks[1].Num != 7 {
		t.Errorf("got %v", toks)
	}
}

func TestSeekAndBytes(t *testing.T) {
	s := New([]byte("0123456789"))
	if err := s.Seek(4); err != nil {
		t.Fatal(err)
	}
	b, err := s.Bytes(3)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "456" {
		t.Errorf("Bytes = %q", b)
	}
	if err := s.Seek(11); err == nil {
		t.Error("Seek past end should fail")
	}
}
