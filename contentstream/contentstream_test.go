package contentstream

import (
	"math"
	"strings"
	"testing"

	"github.com/wudi/pdfpress/ir/raw"
)

func TestParseOperations(t *testing.T) {
	src := "q 2 0 0 2 10 20 cm /Im1 Do Q BT /F1 12 Tf (Hi) Tj ET"
	ops, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"q", "cm", "Do", "Q", "BT", "Tf", "Tj", "ET"}
	if len(ops) != len(want) {
		t.Fatalf("got %d ops, want %d", len(ops), len(want))
	}
	for i, w := range want {
		if ops[i].Operator != w {
			t.Errorf("op %d = %q, want %q", i, ops[i].Operator, w)
		}
	}
	if len(ops[1].Operands) != 6 {
		t.Errorf("cm operands = %d, want 6", len(ops[1].Operands))
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	src := "q 0.5 0 0 0.5 0 0 cm /Im1 Do Q"
	ops, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	out := Serialize(ops)
	reops, err := Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(reops) != len(ops) {
		t.Fatalf("reparse: %d ops, want %d", len(reops), len(ops))
	}
}

func TestCleanDropsRedundantOperators(t *testing.T) {
	src := "q Q 1 0 0 1 0 0 cm () Tj 10 0 0 10 5 5 cm /Im1 Do"
	out, err := Clean([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	if strings.Contains(text, "q") || strings.Contains(text, "Tj") {
		t.Errorf("redundant operators survived: %q", text)
	}
	if !strings.Contains(text, "10 0 0 10 5 5 cm") || !strings.Contains(text, "/Im1 Do") {
		t.Errorf("meaningful operators dropped: %q", text)
	}
}

func TestCleanKeepsNonEmptyStateGroups(t *testing.T) {
	src := "q 0 0 1 rg Q"
	out, err := Clean([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "q") {
		t.Errorf("q/Q around content must survive: %q", out)
	}
}

func TestTracePlacements(t *testing.T) {
	// 144x72 point placement of Im1, nested state for Im2 at 36x36.
	src := "q 144 0 0 72 0 0 cm /Im1 Do Q q 36 0 0 36 10 10 cm /Im2 Do Q"
	ops, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	pls := TracePlacements(ops)
	if len(pls) != 2 {
		t.Fatalf("got %d placements, want 2", len(pls))
	}
	if pls[0].Name != "Im1" || math.Abs(pls[0].Width-144) > 1e-6 || math.Abs(pls[0].Height-72) > 1e-6 {
		t.Errorf("Im1 placement: %+v", pls[0])
	}
	if pls[1].Name != "Im2" || math.Abs(pls[1].Width-36) > 1e-6 {
		t.Errorf("Im2 placement: %+v", pls[1])
	}
}

func TestTracePlacementsRestoresState(t *testing.T) {
	src := "q 100 0 0 100 0 0 cm Q /Im1 Do"
	ops, _ := Parse([]byte(src))
	pls := TracePlacements(ops)
	if len(pls) != 1 {
		t.Fatalf("got %d placements", len(pls))
	}
	if math.Abs(pls[0].Width-1) > 1e-6 {
		t.Errorf("CTM not restored after Q: width %f", pls[0].Width)
	}
}

func TestInlineImageOpaque(t *testing.T) {
	src := "BI /W 2 /H 2 ID \x01\x02\x03\x04 EI q Q"
	ops, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if ops[0].Operator != "BI" {
		t.Fatalf("first op %q", ops[0].Operator)
	}
	payload := ops[0].Operands[0].(raw.String).Value()
	if !strings.HasSuffix(string(payload), "EI") {
		t.Errorf("payload should end with EI: %q", payload)
	}
}
