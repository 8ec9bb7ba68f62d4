package optimize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/wudi/pdfpress/ir/raw"
)

// hashObject fingerprints an object's serialized content. References hash
// by id; the dedup fixed-point loop re-hashes after each merge round, so
// structurally identical subgraphs converge to equal fingerprints without
// the hash itself chasing (possibly cyclic) reference targets.
func hashObject(obj raw.Object) string {
	h := sha256.New()
	writeHash(h, obj)
	return hex.EncodeToString(h.Sum(nil))
}

func writeHash(h io.Writer, obj raw.Object) {
	if obj == nil {
		fmt.Fprint(h, "nil")
		return
	}
	fmt.Fprint(h, obj.Type(), ":")
	switch t := obj.(type) {
	case raw.Name:
		fmt.Fprint(h, t.Value())
	case raw.Number:
		if t.IsInteger() {
			fmt.Fprint(h, t.Int())
		} else {
			fmt.Fprint(h, t.Float())
		}
	case raw.Boolean:
		fmt.Fprint(h, t.Value())
	case raw.String:
		h.Write(t.Value())
	case raw.Reference:
		fmt.Fprintf(h, "%d %d R", t.Ref().Num, t.Ref().Gen)
	case raw.Array:
		fmt.Fprint(h, "[")
		for i := 0; i < t.Len(); i++ {
			v, _ := t.Get(i)
			writeHash(h, v)
			fmt.Fprint(h, ",")
		}
		fmt.Fprint(h, "]")
	case raw.Dictionary:
		fmt.Fprint(h, "<<")
		for _, k := range t.Keys() { // Keys() is sorted
			fmt.Fprint(h, k.Value(), "=")
			v, _ := t.Get(k)
			writeHash(h, v)
		}
		fmt.Fprint(h, ">>")
	case raw.Stream:
		writeHash(h, t.Dictionary())
		h.Write(t.RawData())
	}
}
