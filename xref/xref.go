// Package xref locates indirect objects in a PDF file: it parses classic
// cross-reference tables and cross-reference streams, follows /Prev chains,
// and falls back to a brute-force rebuild when the table is unusable.
package xref

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/scanner"
)

// EntryType distinguishes how an object is stored.
type EntryType int

const (
	EntryFree EntryType = iota
	EntryUncompressed
	EntryInObjectStream
)

// Entry locates one indirect object.
type Entry struct {
	Type      EntryType
	Offset    int64 // byte offset for EntryUncompressed
	Gen       int
	StreamNum int // container object number for EntryInObjectStream
	StreamIdx int // index within the container
}

// Table maps object numbers to their location.
type Table struct {
	Entries map[int]Entry
	Trailer raw.Dictionary
	// Stream is true when the newest section was a cross-reference stream.
	Stream bool
	// Repaired is true when the table came from a brute-force scan.
	Repaired bool
}

// Resolve parses the cross-reference information of data, following /Prev
// chains so that older sections fill in only the objects newer ones do not
// define. A corrupt or missing table triggers Repair.
func Resolve(data []byte) (*Table, error) {
	start, err := startXRef(data)
	if err != nil {
		return Repair(data)
	}
	t := &Table{Entries: make(map[int]Entry)}
	seen := make(map[int64]bool) // /Prev loops occur in damaged files
	offset := start
	for offset > 0 && !seen[offset] {
		seen[offset] = true
		trailer, prev, err := parseSection(data, offset, t)
		if err != nil {
			return Repair(data)
		}
		if t.Trailer == nil {
			t.Trailer = trailer
		}
		offset = prev
	}
	if t.Trailer == nil || len(t.Entries) == 0 {
		return Repair(data)
	}
	return t, nil
}

func startXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("startxref not found: %w", raw.ErrCorrupt)
	}
	rest := data[idx+len("startxref"):]
	for _, line := range strings.Split(string(rest), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		val, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse startxref: %w", raw.ErrCorrupt)
		}
		if val <= 0 || val >= int64(len(data)) {
			return 0, fmt.Errorf("startxref offset %d out of range: %w", val, raw.ErrCorrupt)
		}
		return val, nil
	}
	return 0, fmt.Errorf("startxref value missing: %w", raw.ErrCorrupt)
}

// parseSection reads one xref section (classic table or stream) at offset,
// adds entries not already present in t, and returns the section trailer and
// the /Prev offset (0 when none).
func parseSection(data []byte, offset int64, t *Table) (raw.Dictionary, int64, error) {
	sc := scanner.New(data)
	if err := sc.Seek(offset); err != nil {
		return nil, 0, err
	}
	tok, err := sc.Next()
	if err != nil {
		return nil, 0, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return parseClassicSection(data, sc, t)
	}
	// Otherwise expect "N G obj" introducing a cross-reference stream.
	if tok.Type != scanner.TokenNumber {
		return nil, 0, fmt.Errorf("no xref at offset %d: %w", offset, raw.ErrCorrupt)
	}
	return parseStreamSection(data, offset, t)
}

func parseClassicSection(data []byte, sc *scanner.Scanner, t *Table) (raw.Dictionary, int64, error) {
	for {
		tok, err := sc.Next()
		if err != nil {
			return nil, 0, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		if tok.Type != scanner.TokenNumber {
			return nil, 0, fmt.Errorf("bad xref subsection: %w", raw.ErrCorrupt)
		}
		first := int(tok.Num)
		countTok, err := sc.Next()
		if err != nil || countTok.Type != scanner.TokenNumber {
			return nil, 0, fmt.Errorf("bad xref subsection count: %w", raw.ErrCorrupt)
		}
		count := int(countTok.Num)
		for i := 0; i < count; i++ {
			offTok, err := sc.Next()
			if err != nil {
				return nil, 0, err
			}
			genTok, err := sc.Next()
			if err != nil {
				return nil, 0, err
			}
			kindTok, err := sc.Next()
			if err != nil {
				return nil, 0, err
			}
			num := first + i
			if _, exists := t.Entries[num]; exists {
				continue // newer section wins
			}
			if kindTok.Str == "n" {
				t.Entries[num] = Entry{
					Type:   EntryUncompressed,
					Offset: int64(offTok.Num),
					Gen:    int(genTok.Num),
				}
			} else {
				t.Entries[num] = Entry{Type: EntryFree, Gen: int(genTok.Num)}
			}
		}
	}
	trailer, err := parseTrailerDict(sc)
	if err != nil {
		return nil, 0, err
	}
	prev := raw.Int(raw.DictGet(nil, trailer, "Prev"), 0)
	// Hybrid files carry /XRefStm pointing at a stream section with the
	// authoritative compressed-entry info.
	if stm := raw.Int(raw.DictGet(nil, trailer, "XRefStm"), 0); stm > 0 {
		if _, _, err := parseStreamSection(data, stm, t); err == nil {
			t.Stream = true
		}
	}
	return trailer, prev, nil
}

func parseTrailerDict(sc *scanner.Scanner) (raw.Dictionary, error) {
	tok, err := sc.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenDictOpen {
		return nil, fmt.Errorf("trailer dictionary missing: %w", raw.ErrCorrupt)
	}
	obj, err := ParseObjectAfterOpen(sc)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(raw.Dictionary)
	if !ok {
		return nil, fmt.Errorf("trailer is not a dictionary: %w", raw.ErrCorrupt)
	}
	return dict, nil
}

func parseStreamSection(data []byte, offset int64, t *Table) (raw.Dictionary, int64, error) {
	obj, err := ParseIndirectAt(data, offset)
	if err != nil {
		return nil, 0, err
	}
	stream, ok := obj.(raw.Stream)
	if !ok {
		return nil, 0, fmt.Errorf("xref stream expected at %d: %w", offset, raw.ErrCorrupt)
	}
	dict := stream.Dictionary()
	decoded, err := filters.DecodeStream(stream)
	if err != nil {
		return nil, 0, fmt.Errorf("decode xref stream: %w", err)
	}

	wObj, _ := dict.Get(raw.NameLiteral("W"))
	wArr, ok := wObj.(raw.Array)
	if !ok || wArr.Len() < 3 {
		return nil, 0, fmt.Errorf("xref stream /W malformed: %w", raw.ErrCorrupt)
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		v, _ := wArr.Get(i)
		w[i] = int(raw.Int(v, 0))
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, 0, fmt.Errorf("xref stream /W all-zero: %w", raw.ErrCorrupt)
	}

	size := int(raw.Int(raw.DictGet(nil, dict, "Size"), 0))
	var index []int
	if idxObj, ok := dict.Get(raw.NameLiteral("Index")); ok {
		if idxArr, ok := idxObj.(raw.Array); ok {
			for i := 0; i < idxArr.Len(); i++ {
				v, _ := idxArr.Get(i)
				index = append(index, int(raw.Int(v, 0)))
			}
		}
	}
	if len(index) == 0 {
		index = []int{0, size}
	}

	pos := 0
	for sub := 0; sub+1 < len(index); sub += 2 {
		first, count := index[sub], index[sub+1]
		for i := 0; i < count; i++ {
			if pos+rowLen > len(decoded) {
				break
			}
			row := decoded[pos : pos+rowLen]
			pos += rowLen
			typ := 1 // default type when w[0]==0
			if w[0] > 0 {
				typ = int(beInt(row[:w[0]]))
			}
			f2 := beInt(row[w[0] : w[0]+w[1]])
			f3 := beInt(row[w[0]+w[1]:])
			num := first + i
			if _, exists := t.Entries[num]; exists {
				continue
			}
			switch typ {
			case 0:
				t.Entries[num] = Entry{Type: EntryFree, Gen: int(f3)}
			case 1:
				t.Entries[num] = Entry{Type: EntryUncompressed, Offset: f2, Gen: int(f3)}
			case 2:
				t.Entries[num] = Entry{Type: EntryInObjectStream, StreamNum: int(f2), StreamIdx: int(f3)}
			}
		}
	}
	t.Stream = true
	prev := raw.Int(raw.DictGet(nil, dict, "Prev"), 0)
	return dict, prev, nil
}

func beInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
