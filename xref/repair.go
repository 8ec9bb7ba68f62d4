package xref

import (
	"fmt"
	"regexp"

	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/scanner"
)

var objHeader = regexp.MustCompile(`(?m)(\d+)\s+(\d+)\s+obj\b`)

// Repair rebuilds a cross-reference table by scanning the whole file for
// "N G obj" headers. Later definitions of the same object number win, which
// matches incremental-update semantics. The trailer is taken from the last
// parsable trailer dictionary, or synthesized from the last catalog object
// found when even that is gone.
func Repair(data []byte) (*Table, error) {
	t := &Table{Entries: make(map[int]Entry), Repaired: true}

	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if m[0] > 0 && !headerBoundary(data[m[0]-1]) {
			continue // "12 0 obj" inside a longer token or stream payload
		}
		num := atoi(data[m[2]:m[3]])
		gen := atoi(data[m[4]:m[5]])
		if num <= 0 {
			continue
		}
		t.Entries[num] = Entry{Type: EntryUncompressed, Offset: int64(m[0]), Gen: gen}
	}
	if len(t.Entries) == 0 {
		return nil, fmt.Errorf("no objects found during repair: %w", raw.ErrCorrupt)
	}

	t.Trailer = recoverTrailer(data, t)
	if t.Trailer == nil {
		return nil, fmt.Errorf("no usable trailer found during repair: %w", raw.ErrCorrupt)
	}
	return t, nil
}

func recoverTrailer(data []byte, t *Table) raw.Dictionary {
	// Prefer an explicit trailer dictionary, searching from the end.
	for idx := lastIndexBefore(data, []byte("trailer"), len(data)); idx >= 0; idx = lastIndexBefore(data, []byte("trailer"), idx) {
		dict, err := parseTrailerAt(data, int64(idx+len("trailer")))
		if err == nil {
			if _, ok := dict.Get(raw.NameLiteral("Root")); ok {
				return dict
			}
		}
	}
	// Fall back to locating a catalog among the recovered objects.
	for num := range t.Entries {
		e := t.Entries[num]
		if e.Type != EntryUncompressed {
			continue
		}
		obj, _, err := ParseIndirectHeaderAt(data, e.Offset)
		if err != nil {
			continue
		}
		dict, ok := obj.(raw.Dictionary)
		if !ok {
			continue
		}
		if typ, ok := dict.Get(raw.NameLiteral("Type")); ok {
			if n, ok := typ.(raw.Name); ok && n.Value() == "Catalog" {
				trailer := raw.Dict()
				trailer.Set(raw.NameLiteral("Root"), raw.Ref(num, e.Gen))
				trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(maxNum(t)+1)))
				return trailer
			}
		}
	}
	return nil
}

func parseTrailerAt(data []byte, offset int64) (raw.Dictionary, error) {
	sc := scanner.New(data)
	if err := sc.Seek(offset); err != nil {
		return nil, err
	}
	obj, err := ParseObject(sc)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(raw.Dictionary)
	if !ok {
		return nil, fmt.Errorf("trailer is not a dictionary: %w", raw.ErrCorrupt)
	}
	return dict, nil
}

func headerBoundary(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func lastIndexBefore(data, sep []byte, before int) int {
	if before < 0 {
		return -1
	}
	if before > len(data) {
		before = len(data)
	}
	for i := before - len(sep); i >= 0; i-- {
		if string(data[i:i+len(sep)]) == string(sep) {
			return i
		}
	}
	return -1
}

func maxNum(t *Table) int {
	max := 0
	for num := range t.Entries {
		if num > max {
			max = num
		}
	}
	return max
}

func atoi(b []byte) int {
	n := 0
	for _, c := range b {
		n = n*10 + int(c-'0')
	}
	return n
}
