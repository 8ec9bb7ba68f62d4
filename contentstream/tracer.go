package contentstream

import (
	"math"

	"github.com/wudi/pdfpress/coords"
	"github.com/wudi/pdfpress/ir/raw"
)

// Placement records one Do invocation of a named XObject together with the
// page-space extent of the image's unit square under the CTM in effect.
type Placement struct {
	Name   string
	CTM    coords.Matrix
	Width  float64 // points
	Height float64 // points
}

// TracePlacements walks the operations tracking the graphics-state stack
// and returns every XObject placement. Image XObjects map the unit square
// through the CTM, so the transformed extent divided by 72 is the displayed
// area in inches.
func TracePlacements(ops []Operation) []Placement {
	var placements []Placement
	ctm := coords.Identity()
	var stack []coords.Matrix

	for _, op := range ops {
		switch op.Operator {
		case "q":
			stack = append(stack, ctm)
		case "Q":
			if n := len(stack); n > 0 {
				ctm = stack[n-1]
				stack = stack[:n-1]
			}
		case "cm":
			if m, ok := matrixOperands(op.Operands); ok {
				ctm = m.Multiply(ctm)
			}
		case "Do":
			if len(op.Operands) != 1 {
				continue
			}
			name, ok := op.Operands[0].(raw.Name)
			if !ok {
				continue
			}
			w, h := unitSquareExtent(ctm)
			placements = append(placements, Placement{
				Name:   name.Value(),
				CTM:    ctm,
				Width:  w,
				Height: h,
			})
		}
	}
	return placements
}

func unitSquareExtent(m coords.Matrix) (float64, float64) {
	p0 := m.Transform(coords.Point{X: 0, Y: 0})
	p1 := m.Transform(coords.Point{X: 1, Y: 0})
	p2 := m.Transform(coords.Point{X: 0, Y: 1})
	w := math.Hypot(p1.X-p0.X, p1.Y-p0.Y)
	h := math.Hypot(p2.X-p0.X, p2.Y-p0.Y)
	return w, h
}
