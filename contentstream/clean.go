package contentstream

import (
	"github.com/wudi/pdfpress/coords"
	"github.com/wudi/pdfpress/ir/raw"
)

// Clean re-tokenizes and re-serializes a content stream, dropping operators
// that cannot affect output: identity "cm" transforms, immediately paired
// "q Q" with nothing between them, and zero-length "Tj" shows. This is a
// normalization pass; the painted result is unchanged.
func Clean(data []byte) ([]byte, error) {
	ops, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Serialize(normalize(ops)), nil
}

func normalize(ops []Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		switch op.Operator {
		case "cm":
			if m, ok := matrixOperands(op.Operands); ok && m.IsIdentity() {
				continue
			}
		case "Tj":
			if len(op.Operands) == 1 {
				if s, ok := op.Operands[0].(raw.String); ok && len(s.Value()) == 0 {
					continue
				}
			}
		case "Q":
			if n := len(out); n > 0 && out[n-1].Operator == "q" {
				out = out[:n-1]
				continue
			}
		}
		out = append(out, op)
	}
	return out
}

func matrixOperands(operands []raw.Object) (coords.Matrix, bool) {
	if len(operands) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i, o := range operands {
		n, ok := o.(raw.Number)
		if !ok {
			return coords.Matrix{}, false
		}
		m[i] = n.Float()
	}
	return m, true
}
