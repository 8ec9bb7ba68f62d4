package writer

import (
	"bytes"
	"context"
	"testing"

	"github.com/wudi/pdfpress/ir/raw"
)

// TestSerializeValueForms pins the serialized text of every object variant.
// Only the null object may render as "null"; a dictionary or stream falling
// through to the null branch corrupts the whole file.
func TestSerializeValueForms(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	dict.Set(raw.NameLiteral("Pages"), raw.Ref(2, 0))

	tests := []struct {
		name string
		obj  raw.Object
		want string
	}{
		{"null", raw.NullObj{}, "null"},
		{"true", raw.Bool(true), "true"},
		{"false", raw.Bool(false), "false"},
		{"integer", raw.NumberInt(42), "42"},
		{"real", raw.NumberFloat(1.5), "1.5"},
		{"name", raw.NameLiteral("Name"), "/Name"},
		{"literal string", raw.Str([]byte("hi")), "(hi)"},
		{"reference", raw.Ref(3, 0), "3 0 R"},
		{"array", raw.NewArray(raw.NumberInt(1), raw.NumberInt(2)), "[1 2]"},
		{"dictionary", dict, "<</Pages 2 0 R /Type /Catalog>>"},
		{"stream", raw.NewStream(raw.Dict(), []byte("q")), "<</Length 1>>\nstream\nq\nendstream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			serializeValue(&buf, tt.obj)
			if buf.String() != tt.want {
				t.Fatalf("serialized %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestSerializeObjectBody(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))

	var buf bytes.Buffer
	serializeObject(&buf, raw.ObjectRef{Num: 5, Gen: 0}, dict)
	want := "5 0 obj\n<</Type /Page>>\nendobj\n"
	if buf.String() != want {
		t.Fatalf("object = %q, want %q", buf.String(), want)
	}
}

// TestSaveEmitsRealBodies guards the save pipeline end to end: the output
// must carry the actual dictionaries and a dictionary trailer, not a file
// of null bodies.
func TestSaveEmitsRealBodies(t *testing.T) {
	doc := buildTestDoc(t)
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.CompressImages = false
	if _, err := Save(context.Background(), doc, &buf, opts); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out := buf.Bytes()
	for _, want := range []string{"/Type /Catalog", "/Type /Pages", "/Type /Page", "trailer\n<<"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("saved bytes missing %q", want)
		}
	}
	if bytes.Contains(out, []byte("obj\nnull\nendobj")) {
		t.Fatalf("saved output contains null object bodies")
	}
}
