package render

import (
	"context"
	"image"
	"image/color"

	"github.com/golang/freetype/raster"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfpress/contentstream"
	"github.com/wudi/pdfpress/coords"
	"github.com/wudi/pdfpress/document"
	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
)

const maxFormDepth = 16

// gstate is the subset of graphics state the interpreter tracks.
type gstate struct {
	ctm       coords.Matrix
	fill      color.RGBA
	stroke    color.RGBA
	lineWidth float64
}

type interpreter struct {
	doc       *document.Document
	img       *image.RGBA
	resources raw.Dictionary

	g     gstate
	stack []gstate

	// Current path in device space. start tracks the subpath head for h;
	// cur is the pen position for v/y control-point shorthand.
	path       raster.Path
	start, cur fixed.Point26_6
	hasPoint   bool

	// Text state, valid between BT and ET.
	textMatrix coords.Matrix
	lineMatrix coords.Matrix
	leading    float64

	formDepth   int
	unsupported map[string]int
}

func newInterpreter(doc *document.Document, img *image.RGBA, base coords.Matrix, resources raw.Dictionary) *interpreter {
	return &interpreter{
		doc:       doc,
		img:       img,
		resources: resources,
		g: gstate{
			ctm:       base,
			fill:      color.RGBA{0, 0, 0, 255},
			stroke:    color.RGBA{0, 0, 0, 255},
			lineWidth: 1,
		},
		unsupported: make(map[string]int),
	}
}

func (it *interpreter) run(ctx context.Context, ops []contentstream.Operation) error {
	for i, op := range ops {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		it.exec(op)
	}
	return nil
}

func (it *interpreter) exec(op contentstream.Operation) {
	switch op.Operator {
	case "q":
		it.stack = append(it.stack, it.g)
	case "Q":
		if n := len(it.stack); n > 0 {
			it.g = it.stack[n-1]
			it.stack = it.stack[:n-1]
		}
	case "cm":
		if m, ok := matrix6(op.Operands); ok {
			it.g.ctm = m.Multiply(it.g.ctm)
		}
	case "w":
		it.g.lineWidth = num(op.Operands, 0)

	case "g":
		v := clamp01(num(op.Operands, 0))
		it.g.fill = grayRGBA(v)
	case "G":
		v := clamp01(num(op.Operands, 0))
		it.g.stroke = grayRGBA(v)
	case "rg":
		it.g.fill = rgbRGBA(op.Operands)
	case "RG":
		it.g.stroke = rgbRGBA(op.Operands)
	case "k":
		it.g.fill = cmykRGBA(op.Operands)
	case "K":
		it.g.stroke = cmykRGBA(op.Operands)
	case "cs", "CS", "sc", "SC", "scn", "SCN":
		// Color space selection beyond the device spaces is approximated:
		// numeric components are taken as-is when present.
		if len(op.Operands) == 1 || len(op.Operands) == 3 || len(op.Operands) == 4 {
			it.setColorFromOperands(op)
		}

	case "m":
		p := it.devicePoint(num(op.Operands, 0), num(op.Operands, 1))
		it.path.Start(p)
		it.start, it.cur, it.hasPoint = p, p, true
	case "l":
		if it.hasPoint {
			p := it.devicePoint(num(op.Operands, 0), num(op.Operands, 1))
			it.path.Add1(p)
			it.cur = p
		}
	case "c":
		if it.hasPoint {
			c1 := it.devicePoint(num(op.Operands, 0), num(op.Operands, 1))
			c2 := it.devicePoint(num(op.Operands, 2), num(op.Operands, 3))
			p := it.devicePoint(num(op.Operands, 4), num(op.Operands, 5))
			it.path.Add3(c1, c2, p)
			it.cur = p
		}
	case "v":
		if it.hasPoint {
			c2 := it.devicePoint(num(op.Operands, 0), num(op.Operands, 1))
			p := it.devicePoint(num(op.Operands, 2), num(op.Operands, 3))
			it.path.Add3(it.cur, c2, p)
			it.cur = p
		}
	case "y":
		if it.hasPoint {
			c1 := it.devicePoint(num(op.Operands, 0), num(op.Operands, 1))
			p := it.devicePoint(num(op.Operands, 2), num(op.Operands, 3))
			it.path.Add3(c1, p, p)
			it.cur = p
		}
	case "h":
		if it.hasPoint {
			it.path.Add1(it.start)
			it.cur = it.start
		}
	case "re":
		x, y := num(op.Operands, 0), num(op.Operands, 1)
		w, h := num(op.Operands, 2), num(op.Operands, 3)
		p0 := it.devicePoint(x, y)
		p1 := it.devicePoint(x+w, y)
		p2 := it.devicePoint(x+w, y+h)
		p3 := it.devicePoint(x, y+h)
		it.path.Start(p0)
		it.path.Add1(p1)
		it.path.Add1(p2)
		it.path.Add1(p3)
		it.path.Add1(p0)
		it.start, it.cur, it.hasPoint = p0, p0, true

	case "f", "F":
		it.fillPath(true)
		it.clearPath()
	case "f*":
		it.fillPath(false)
		it.clearPath()
	case "B":
		it.fillPath(true)
		it.strokePath()
		it.clearPath()
	case "B*":
		it.fillPath(false)
		it.strokePath()
		it.clearPath()
	case "b", "b*":
		if it.hasPoint {
			it.path.Add1(it.start)
		}
		it.fillPath(op.Operator == "b")
		it.strokePath()
		it.clearPath()
	case "S":
		it.strokePath()
		it.clearPath()
	case "s":
		if it.hasPoint {
			it.path.Add1(it.start)
		}
		it.strokePath()
		it.clearPath()
	case "n":
		it.clearPath()

	case "BT":
		it.textMatrix = coords.Identity()
		it.lineMatrix = coords.Identity()
	case "ET":
	case "Tf":
		// Only the built-in face is available; size is recorded through the
		// text matrix when the producer sets one.
	case "TL":
		it.leading = num(op.Operands, 0)
	case "Td":
		it.lineMatrix = coords.Translate(num(op.Operands, 0), num(op.Operands, 1)).Multiply(it.lineMatrix)
		it.textMatrix = it.lineMatrix
	case "TD":
		it.leading = -num(op.Operands, 1)
		it.lineMatrix = coords.Translate(num(op.Operands, 0), num(op.Operands, 1)).Multiply(it.lineMatrix)
		it.textMatrix = it.lineMatrix
	case "Tm":
		if m, ok := matrix6(op.Operands); ok {
			it.textMatrix = m
			it.lineMatrix = m
		}
	case "T*":
		it.lineMatrix = coords.Translate(0, -it.leading).Multiply(it.lineMatrix)
		it.textMatrix = it.lineMatrix
	case "Tj":
		if len(op.Operands) == 1 {
			if s, ok := op.Operands[0].(raw.String); ok {
				it.drawText(string(s.Value()))
			}
		}
	case "'":
		it.lineMatrix = coords.Translate(0, -it.leading).Multiply(it.lineMatrix)
		it.textMatrix = it.lineMatrix
		if len(op.Operands) == 1 {
			if s, ok := op.Operands[0].(raw.String); ok {
				it.drawText(string(s.Value()))
			}
		}
	case "TJ":
		if len(op.Operands) == 1 {
			if arr, ok := op.Operands[0].(raw.Array); ok {
				for i := 0; i < arr.Len(); i++ {
					item, _ := arr.Get(i)
					if s, ok := item.(raw.String); ok {
						it.drawText(string(s.Value()))
					}
				}
			}
		}

	case "Do":
		if len(op.Operands) == 1 {
			if name, ok := op.Operands[0].(raw.Name); ok {
				it.doXObject(name.Value())
			}
		}

	default:
		it.unsupported[op.Operator]++
	}
}

func (it *interpreter) clearPath() {
	it.path.Clear()
	it.hasPoint = false
}

func (it *interpreter) devicePoint(x, y float64) fixed.Point26_6 {
	p := it.g.ctm.Transform(coords.Point{X: x, Y: y})
	return fixed.Point26_6{
		X: fixed.Int26_6(p.X * 64),
		Y: fixed.Int26_6(p.Y * 64),
	}
}

func (it *interpreter) fillPath(nonZero bool) {
	if len(it.path) == 0 {
		return
	}
	b := it.img.Bounds()
	r := raster.NewRasterizer(b.Dx(), b.Dy())
	r.UseNonZeroWinding = nonZero
	r.AddPath(it.path)
	painter := raster.NewRGBAPainter(it.img)
	painter.SetColor(it.g.fill)
	r.Rasterize(painter)
}

func (it *interpreter) strokePath() {
	if len(it.path) == 0 {
		return
	}
	// Line width is specified in page units; scale it by the CTM's mean
	// axis magnitude.
	sx, sy := it.g.ctm.ScaleFactors()
	w := it.g.lineWidth * (sx + sy) / 2
	if w < 0.1 {
		w = 0.1
	}
	b := it.img.Bounds()
	r := raster.NewRasterizer(b.Dx(), b.Dy())
	r.UseNonZeroWinding = true
	r.AddStroke(it.path, fixed.Int26_6(w*64), raster.RoundCapper, raster.RoundJoiner)
	painter := raster.NewRGBAPainter(it.img)
	painter.SetColor(it.g.stroke)
	r.Rasterize(painter)
}

// drawText renders s with the built-in bitmap face at the current text
// position. Embedded font programs are not consulted; output is legible,
// not typographically faithful.
func (it *interpreter) drawText(s string) {
	m := it.textMatrix.Multiply(it.g.ctm)
	origin := m.Transform(coords.Point{X: 0, Y: 0})
	d := font.Drawer{
		Dst:  it.img,
		Src:  image.NewUniform(it.g.fill),
		Face: basicfont.Face7x13,
		Dot: fixed.Point26_6{
			X: fixed.Int26_6(origin.X * 64),
			Y: fixed.Int26_6(origin.Y * 64),
		},
	}
	d.DrawString(s)
	// Advance the text matrix by the drawn width in text space.
	adv := float64(d.MeasureString(s)) / 64
	sx, _ := it.g.ctm.ScaleFactors()
	if sx > 0 {
		it.textMatrix = coords.Translate(adv/sx, 0).Multiply(it.textMatrix)
	}
}

func (it *interpreter) doXObject(name string) {
	stream, ok := it.lookupXObject(name)
	if !ok {
		it.unsupported["Do:"+name]++
		return
	}
	sub, _ := stream.Dictionary().Get(raw.NameLiteral("Subtype"))
	n, _ := it.doc.Store.Resolve(sub).(raw.Name)
	switch {
	case n != nil && n.Value() == "Image":
		it.drawImage(stream)
	case n != nil && n.Value() == "Form":
		it.drawForm(stream)
	default:
		it.unsupported["Do"]++
	}
}

func (it *interpreter) lookupXObject(name string) (raw.Stream, bool) {
	if it.resources == nil {
		return nil, false
	}
	xo, ok := it.resources.Get(raw.NameLiteral("XObject"))
	if !ok {
		return nil, false
	}
	dict, ok := it.doc.Store.Resolve(xo).(raw.Dictionary)
	if !ok {
		return nil, false
	}
	entry, ok := dict.Get(raw.NameLiteral(name))
	if !ok {
		return nil, false
	}
	stream, ok := it.doc.Store.Resolve(entry).(raw.Stream)
	return stream, ok
}

// drawImage paints an image XObject into the axis-aligned extent of the
// unit square under the CTM. Rotated placements degrade to their bounding
// box.
func (it *interpreter) drawImage(stream raw.Stream) {
	info := streamImageInfo(it.doc.Store, stream.Dictionary())
	src, err := filters.StdCodec{}.DecodeImage(stream, info)
	if err != nil {
		it.unsupported["Do:image"]++
		return
	}
	p0 := it.g.ctm.Transform(coords.Point{X: 0, Y: 0})
	p1 := it.g.ctm.Transform(coords.Point{X: 1, Y: 1})
	rect := image.Rect(int(p0.X), int(p0.Y), int(p1.X), int(p1.Y)).Canon()
	if rect.Empty() {
		return
	}
	draw.ApproxBiLinear.Scale(it.img, rect, src, src.Bounds(), draw.Over, nil)
}

// drawForm executes a form XObject's content with the form's matrix and
// resources, bounded in depth against self-referential forms.
func (it *interpreter) drawForm(stream raw.Stream) {
	if it.formDepth >= maxFormDepth {
		it.unsupported["Do:form-depth"]++
		return
	}
	data, err := filters.DecodeStream(stream)
	if err != nil {
		it.unsupported["Do:form"]++
		return
	}
	ops, err := contentstream.Parse(data)
	if err != nil {
		it.unsupported["Do:form"]++
		return
	}

	dict := stream.Dictionary()
	saved := it.g
	savedRes := it.resources
	if mObj, ok := dict.Get(raw.NameLiteral("Matrix")); ok {
		if arr, ok := it.doc.Store.Resolve(mObj).(raw.Array); ok && arr.Len() == 6 {
			var m coords.Matrix
			for i := 0; i < 6; i++ {
				v, _ := arr.Get(i)
				m[i] = raw.Float(it.doc.Store.Resolve(v), 0)
			}
			it.g.ctm = m.Multiply(it.g.ctm)
		}
	}
	if res, ok := dict.Get(raw.NameLiteral("Resources")); ok {
		if rd, ok := it.doc.Store.Resolve(res).(raw.Dictionary); ok {
			it.resources = rd
		}
	}
	it.formDepth++
	for _, op := range ops {
		it.exec(op)
	}
	it.formDepth--
	it.g = saved
	it.resources = savedRes
}

func (it *interpreter) setColorFromOperands(op contentstream.Operation) {
	var c color.RGBA
	switch len(op.Operands) {
	case 1:
		c = grayRGBA(clamp01(num(op.Operands, 0)))
	case 3:
		c = rgbRGBA(op.Operands)
	case 4:
		c = cmykRGBA(op.Operands)
	default:
		return
	}
	if op.Operator == "SC" || op.Operator == "SCN" || op.Operator == "CS" {
		it.g.stroke = c
	} else {
		it.g.fill = c
	}
}

func num(operands []raw.Object, i int) float64 {
	if i >= len(operands) {
		return 0
	}
	return raw.Float(operands[i], 0)
}

func matrix6(operands []raw.Object) (coords.Matrix, bool) {
	if len(operands) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i := 0; i < 6; i++ {
		m[i] = raw.Float(operands[i], 0)
	}
	return m, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func grayRGBA(v float64) color.RGBA {
	b := uint8(v * 255)
	return color.RGBA{b, b, b, 255}
}

func rgbRGBA(operands []raw.Object) color.RGBA {
	return color.RGBA{
		uint8(clamp01(num(operands, 0)) * 255),
		uint8(clamp01(num(operands, 1)) * 255),
		uint8(clamp01(num(operands, 2)) * 255),
		255,
	}
}

func cmykRGBA(operands []raw.Object) color.RGBA {
	c := clamp01(num(operands, 0))
	m := clamp01(num(operands, 1))
	y := clamp01(num(operands, 2))
	k := clamp01(num(operands, 3))
	return color.RGBA{
		uint8((1 - c) * (1 - k) * 255),
		uint8((1 - m) * (1 - k) * 255),
		uint8((1 - y) * (1 - k) * 255),
		255,
	}
}

// streamImageInfo mirrors the dictionary extraction the optimizer uses,
// local to rendering.
func streamImageInfo(store *raw.Document, dict raw.Dictionary) filters.ImageInfo {
	info := filters.ImageInfo{
		Width:            int(intAt(store, dict, "Width", 0)),
		Height:           int(intAt(store, dict, "Height", 0)),
		BitsPerComponent: int(intAt(store, dict, "BitsPerComponent", 8)),
	}
	if cs, ok := dict.Get(raw.NameLiteral("ColorSpace")); ok {
		switch t := store.Resolve(cs).(type) {
		case raw.Name:
			info.ColorSpace = t.Value()
		case raw.Array:
			if t.Len() > 0 {
				head, _ := t.Get(0)
				if n, ok := store.Resolve(head).(raw.Name); ok {
					info.ColorSpace = n.Value()
				}
			}
		}
	}
	if names, _ := filters.FilterChain(dict); len(names) > 0 {
		info.Filter = names[len(names)-1]
	}
	return info
}

func intAt(store *raw.Document, dict raw.Dictionary, key string, def int64) int64 {
	v, ok := dict.Get(raw.NameLiteral(key))
	if !ok {
		return def
	}
	return raw.Int(store.Resolve(v), def)
}
