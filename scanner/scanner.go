// Package scanner tokenizes PDF syntax: object definitions, dictionaries,
// arrays, strings, names and numbers. It is the byte-level capability the
// parser and content-stream packages are built on.
package scanner

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/pdfpress/ir/raw"
)

type TokenType int

const (
	TokenDictOpen   TokenType = iota // '<<'
	TokenDictClose                   // '>>'
	TokenArrayOpen                   // '['
	TokenArrayClose                  // ']'
	TokenName                        // '/Name'
	TokenString                      // literal or hex string
	TokenNumber                      // integer or real
	TokenKeyword                     // obj, endobj, stream, R, true, false, null, operators
)

// Token is one lexical unit. Str carries names and keywords, Raw the
// decoded bytes of strings, Num the value of numbers.
type Token struct {
	Type TokenType
	Str  string
	Raw  []byte
	Num  float64
	Int  bool
	Pos  int64
}

// Scanner walks a byte slice, tracking position so callers can seek to xref
// offsets and read stream payloads directly.
type Scanner struct {
	data []byte
	pos  int64
}

func New(data []byte) *Scanner { return &Scanner{data: data} }

func (s *Scanner) Position() int64 { return s.pos }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek to %d: %w", offset, raw.ErrCorrupt)
	}
	s.pos = offset
	return nil
}

// Bytes returns n raw bytes from the current position, advancing past them.
// Used to slice stream payloads after the 'stream' keyword.
func (s *Scanner) Bytes(n int64) ([]byte, error) {
	if n < 0 || s.pos+n > int64(len(s.data)) {
		return nil, fmt.Errorf("read %d bytes at %d: %w", n, s.pos, raw.ErrCorrupt)
	}
	out := s.data[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

// SkipEOL consumes a single CR, LF or CRLF. The PDF grammar requires one
// after the 'stream' keyword.
func (s *Scanner) SkipEOL() {
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
}

// FindKeyword scans forward for the next occurrence of kw and positions the
// scanner at it. Used to locate 'endstream' when /Length is wrong.
func (s *Scanner) FindKeyword(kw string) (int64, bool) {
	idx := bytes.Index(s.data[s.pos:], []byte(kw))
	if idx < 0 {
		return 0, false
	}
	s.pos += int64(idx)
	return s.pos, true
}

// Next returns the next token, or io.EOF.
func (s *Scanner) Next() (Token, error) {
	s.skipWhitespaceAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDictOpen, Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictClose, Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArrayOpen, Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenArrayClose, Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	}
	if isNumberStart(c) {
		return s.scanNumber()
	}
	return s.scanKeyword()
}

func (s *Scanner) peek(ahead int64) byte {
	if s.pos+ahead >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+ahead]
}

func (s *Scanner) skipWhitespaceAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && s.data[s.pos] != '\r' && s.data[s.pos] != '\n' {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) {
			hi, okHi := hexNibble(s.data[s.pos+1])
			lo, okLo := hexNibble(s.data[s.pos+2])
			if okHi && okLo {
				out.WriteByte(hi<<4 | lo)
				s.pos += 3
				continue
			}
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *Scanner) scanNumber() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if !isNumberStart(c) {
			break
		}
		s.pos++
	}
	text := string(s.data[start:s.pos])
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Token{Type: TokenNumber, Num: float64(i), Int: true, Str: text, Pos: start}, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, fmt.Errorf("bad number %q at %d: %w", text, start, raw.ErrCorrupt)
	}
	return Token{Type: TokenNumber, Num: f, Str: text, Pos: start}, nil
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		s.pos++ // lone delimiter byte, emit and move on
	}
	return Token{Type: TokenKeyword, Str: string(s.data[start:s.pos]), Pos: start}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	var out bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		switch c {
		case '\\':
			s.pos++
			if s.pos >= int64(len(s.data)) {
				break
			}
			esc := s.data[s.pos]
			switch esc {
			case 'n':
				out.WriteByte('\n')
				s.pos++
			case 'r':
				out.WriteByte('\r')
				s.pos++
			case 't':
				out.WriteByte('\t')
				s.pos++
			case 'b':
				out.WriteByte('\b')
				s.pos++
			case 'f':
				out.WriteByte('\f')
				s.pos++
			case '\r':
				s.pos++
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
				s.pos++
			default:
				if esc >= '0' && esc <= '7' {
					val := 0
					for k := 0; k < 3 && s.pos < int64(len(s.data)); k++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						val = val<<3 | int(d-'0')
						s.pos++
					}
					out.WriteByte(byte(val))
				} else {
					out.WriteByte(esc)
					s.pos++
				}
			}
		case '(':
			depth++
			out.WriteByte(c)
			s.pos++
		case ')':
			depth--
			s.pos++
			if depth == 0 {
				return Token{Type: TokenString, Raw: out.Bytes(), Pos: start}, nil
			}
			out.WriteByte(c)
		default:
			out.WriteByte(c)
			s.pos++
		}
	}
	return Token{}, fmt.Errorf("unterminated string at %d: %w", start, raw.ErrCorrupt)
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var out bytes.Buffer
	var hi byte
	havePending := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			if havePending {
				out.WriteByte(hi << 4) // odd digit count pads with zero
			}
			return Token{Type: TokenString, Raw: out.Bytes(), Str: "hex", Pos: start}, nil
		}
		if nib, ok := hexNibble(c); ok {
			if havePending {
				out.WriteByte(hi<<4 | nib)
				havePending = false
			} else {
				hi = nib
				havePending = true
			}
		}
		s.pos++
	}
	return Token{}, fmt.Errorf("unterminated hex string at %d: %w", start, raw.ErrCorrupt)
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isNumberStart(c byte) bool {
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
