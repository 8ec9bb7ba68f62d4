package xref

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/wudi/pdfpress/ir/raw"
)

// buildClassicFile assembles a four-object file with a classic xref table
// and returns the bytes plus each object's offset.
func buildClassicFile(t *testing.T) ([]byte, map[int]int64) {
	t.Helper()
	var buf bytes.Buffer
	offsets := make(map[int]int64)

	buf.WriteString("%PDF-1.4\n")
	writeObj := func(num int, body string) {
		offsets[num] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	writeObj(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>")
	writeObj(4, "<< /Length 2 >>\nstream\nq\nendstream")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 5\n")
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= 4; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	buf.WriteString("trailer\n<< /Size 5 /Root 1 0 R >>\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), offsets
}

func TestResolveClassicTable(t *testing.T) {
	data, offsets := buildClassicFile(t)
	table, err := Resolve(data)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if table.Repaired {
		t.Fatalf("intact file reported as repaired")
	}
	for num := 1; num <= 4; num++ {
		entry, ok := table.Entries[num]
		if !ok {
			t.Fatalf("object %d missing from table", num)
		}
		if entry.Type != EntryUncompressed || entry.Offset != offsets[num] {
			t.Fatalf("object %d entry = %+v, want offset %d", num, entry, offsets[num])
		}
	}
	rootObj, ok := table.Trailer.Get(raw.NameLiteral("Root"))
	if !ok {
		t.Fatalf("trailer has no /Root")
	}
	if ref, ok := rootObj.(raw.Reference); !ok || ref.Ref().Num != 1 {
		t.Fatalf("trailer /Root = %v, want 1 0 R", rootObj)
	}
}

func TestParseIndirectHeaderAt(t *testing.T) {
	data, offsets := buildClassicFile(t)

	obj, declared, err := ParseIndirectHeaderAt(data, offsets[1])
	if err != nil {
		t.Fatalf("ParseIndirectHeaderAt: %v", err)
	}
	if declared != (raw.ObjectRef{Num: 1}) {
		t.Fatalf("declared ref = %v, want 1 0", declared)
	}
	dict, ok := obj.(raw.Dictionary)
	if !ok {
		t.Fatalf("object 1 is %T, want dictionary", obj)
	}
	typ, _ := dict.Get(raw.NameLiteral("Type"))
	if n, ok := typ.(raw.Name); !ok || n.Value() != "Catalog" {
		t.Fatalf("object 1 /Type = %v", typ)
	}
}

func TestParseStreamPayload(t *testing.T) {
	data, offsets := buildClassicFile(t)
	obj, _, err := ParseIndirectHeaderAt(data, offsets[4])
	if err != nil {
		t.Fatalf("ParseIndirectHeaderAt: %v", err)
	}
	stream, ok := obj.(raw.Stream)
	if !ok {
		t.Fatalf("object 4 is %T, want stream", obj)
	}
	if !bytes.Equal(stream.RawData(), []byte("q\n")) {
		t.Fatalf("stream payload = %q", stream.RawData())
	}
}

func TestResolveFallsBackToRepair(t *testing.T) {
	data, offsets := buildClassicFile(t)
	// Point startxref into the void; resolution must rebuild by scanning.
	idx := bytes.LastIndex(data, []byte("startxref"))
	corrupted := append([]byte{}, data[:idx]...)
	corrupted = append(corrupted, []byte("startxref\n999999999\n%%EOF\n")...)

	table, err := Resolve(corrupted)
	if err != nil {
		t.Fatalf("Resolve with broken startxref: %v", err)
	}
	if !table.Repaired {
		t.Fatalf("repair path not taken")
	}
	for num := 1; num <= 4; num++ {
		entry, ok := table.Entries[num]
		if !ok {
			t.Fatalf("repaired table misses object %d", num)
		}
		if entry.Offset != offsets[num] {
			t.Fatalf("repaired offset for %d = %d, want %d", num, entry.Offset, offsets[num])
		}
	}
	if _, ok := table.Trailer.Get(raw.NameLiteral("Root")); !ok {
		t.Fatalf("repair recovered no /Root")
	}
}

func TestRepairPrefersLaterDefinition(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	fmt.Fprintf(&buf, "1 0 obj\n<< /Stale true >>\nendobj\n")
	later := int64(buf.Len())
	fmt.Fprintf(&buf, "1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	buf.WriteString("trailer\n<< /Size 2 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n999999\n%%EOF\n")

	table, err := Resolve(buf.Bytes())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	entry := table.Entries[1]
	if entry.Offset != later {
		t.Fatalf("repair kept offset %d, want the later definition at %d", entry.Offset, later)
	}
}
