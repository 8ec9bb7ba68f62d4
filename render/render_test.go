package render

import (
	"context"
	"testing"

	"github.com/wudi/pdfpress/document"
	"github.com/wudi/pdfpress/ir/raw"
)

func newPageDoc(t *testing.T, content string) *document.Document {
	t.Helper()
	doc := document.New()
	store := doc.Store
	contentRef := store.Put(raw.NewStream(raw.Dict(), []byte(content)))

	page := raw.Dict()
	page.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
	page.Set(raw.NameLiteral("MediaBox"), raw.NewArray(
		raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
	page.Set(raw.NameLiteral("Resources"), raw.Dict())
	page.Set(raw.NameLiteral("Contents"), raw.Ref(contentRef.Num, contentRef.Gen))
	if err := doc.InsertPage(-1, store.Put(page)); err != nil {
		t.Fatalf("InsertPage: %v", err)
	}
	return doc
}

func pixelAt(p *Pixmap, x, y int) [4]uint8 {
	i := y*p.Stride + x*4
	return [4]uint8{p.Pix[i], p.Pix[i+1], p.Pix[i+2], p.Pix[i+3]}
}

func TestRenderPageDimensions(t *testing.T) {
	doc := newPageDoc(t, "")
	pix, err := RenderPage(context.Background(), doc, 0, 2.0, Config{})
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if pix.Width != 1224 || pix.Height != 1584 {
		t.Fatalf("pixmap = %dx%d, want 1224x1584", pix.Width, pix.Height)
	}
	if pix.Stride != pix.Width*4 {
		t.Errorf("stride = %d, want %d", pix.Stride, pix.Width*4)
	}
	if got := pixelAt(pix, 10, 10); got != [4]uint8{255, 255, 255, 255} {
		t.Errorf("background pixel = %v, want opaque white", got)
	}
}

func TestRenderFilledRectangle(t *testing.T) {
	// A red square from (100,100) to (300,300) in page space. With the
	// flipped Y axis that lands at device rows 492..692 at scale 1.
	doc := newPageDoc(t, "1 0 0 rg 100 100 200 200 re f")
	pix, err := RenderPage(context.Background(), doc, 0, 1.0, Config{})
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}

	center := pixelAt(pix, 200, 592)
	if center[0] != 255 || center[1] != 0 || center[2] != 0 {
		t.Errorf("square interior = %v, want red", center)
	}
	outside := pixelAt(pix, 50, 50)
	if outside != [4]uint8{255, 255, 255, 255} {
		t.Errorf("outside pixel = %v, want white", outside)
	}
}

func TestRenderStateRestore(t *testing.T) {
	// The gray fill set inside q..Q must not leak into the second square.
	doc := newPageDoc(t, "q 0.5 g 50 600 100 100 re f Q 0 0 1 rg 300 600 100 100 re f")
	pix, err := RenderPage(context.Background(), doc, 0, 1.0, Config{})
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	gray := pixelAt(pix, 100, 142)
	if gray[0] != gray[1] || gray[1] != gray[2] || gray[0] > 200 {
		t.Errorf("first square = %v, want mid gray", gray)
	}
	blue := pixelAt(pix, 350, 142)
	if blue[2] != 255 || blue[0] != 0 {
		t.Errorf("second square = %v, want blue", blue)
	}
}

func TestRenderScaledStroke(t *testing.T) {
	doc := newPageDoc(t, "0 G 4 w 100 400 m 500 400 l S")
	pix, err := RenderPage(context.Background(), doc, 0, 1.0, Config{})
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	// Page y=400 is device row 392.
	on := pixelAt(pix, 300, 392)
	if on[0] > 128 {
		t.Errorf("stroke pixel = %v, want dark", on)
	}
	off := pixelAt(pix, 300, 300)
	if off != [4]uint8{255, 255, 255, 255} {
		t.Errorf("off-stroke pixel = %v, want white", off)
	}
}

func TestRenderUnsupportedOperatorsSkipped(t *testing.T) {
	doc := newPageDoc(t, "/GS1 gs 1 0 0 rg 100 100 100 100 re f BX nonsense EX")
	pix, err := RenderPage(context.Background(), doc, 0, 1.0, Config{})
	if err != nil {
		t.Fatalf("unsupported operators must not fail the render: %v", err)
	}
	red := pixelAt(pix, 150, 642)
	if red[0] != 255 || red[1] != 0 {
		t.Errorf("fill after unsupported op = %v, want red", red)
	}
}

func TestRenderArgumentValidation(t *testing.T) {
	doc := newPageDoc(t, "")
	if _, err := RenderPage(context.Background(), doc, 0, 0, Config{}); err == nil {
		t.Errorf("zero scale accepted")
	}
	if _, err := RenderPage(context.Background(), doc, 5, 1.0, Config{}); err == nil {
		t.Errorf("out-of-range page accepted")
	}
	doc.Close()
	if _, err := RenderPage(context.Background(), doc, 0, 1.0, Config{}); err == nil {
		t.Errorf("closed document accepted")
	}
}
