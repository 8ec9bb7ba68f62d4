package writer

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
)

// serializeObject emits one indirect object: "N G obj", the body, "endobj".
func serializeObject(buf *bytes.Buffer, ref raw.ObjectRef, obj raw.Object) {
	fmt.Fprintf(buf, "%d %d obj\n", ref.Num, ref.Gen)
	serializeValue(buf, obj)
	buf.WriteString("\nendobj\n")
}

func serializeValue(buf *bytes.Buffer, obj raw.Object) {
	switch v := obj.(type) {
	case nil:
		buf.WriteString("null")
	// raw.Null has no methods beyond Object, so every object satisfies it;
	// matching the interface here would shadow all later cases. Match the
	// concrete type.
	case raw.NullObj:
		buf.WriteString("null")
	case raw.Boolean:
		if v.Value() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case raw.Number:
		if v.IsInteger() {
			buf.WriteString(strconv.FormatInt(v.Int(), 10))
		} else {
			buf.WriteString(formatFloat(v.Float()))
		}
	case raw.Name:
		writeName(buf, v.Value())
	case raw.String:
		writeString(buf, v)
	case raw.Reference:
		fmt.Fprintf(buf, "%d %d R", v.Ref().Num, v.Ref().Gen)
	case raw.Array:
		buf.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				buf.WriteByte(' ')
			}
			item, _ := v.Get(i)
			serializeValue(buf, item)
		}
		buf.WriteByte(']')
	case raw.Stream:
		serializeValue(buf, v.Dictionary())
		buf.WriteString("\nstream\n")
		buf.Write(v.RawData())
		buf.WriteString("\nendstream")
	case raw.Dictionary:
		buf.WriteString("<<")
		for i, k := range v.Keys() { // Keys() is sorted: output is deterministic
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeName(buf, k.Value())
			buf.WriteByte(' ')
			val, _ := v.Get(k)
			serializeValue(buf, val)
		}
		buf.WriteString(">>")
	default:
		buf.WriteString("null")
	}
}

// writeName emits a name token, escaping delimiter and non-regular bytes
// with the #xx form.
func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c > '~' || c == '#' || isDelimiter(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// writeString emits a string object. Hex-marked strings stay hex; literal
// strings escape backslash, parens, and non-printable bytes.
func writeString(buf *bytes.Buffer, s raw.String) {
	if s.IsHex() {
		buf.WriteByte('<')
		for _, b := range s.Value() {
			fmt.Fprintf(buf, "%02X", b)
		}
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('(')
	for _, b := range s.Value() {
		switch b {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if b < 0x20 {
				fmt.Fprintf(buf, `\%03o`, b)
			} else {
				buf.WriteByte(b)
			}
		}
	}
	buf.WriteByte(')')
}

// formatFloat renders a real without exponent notation, which the file
// format forbids, trimming trailing zeros.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = trimTrailingZeros(s)
	if s == "-0" {
		return "0"
	}
	return s
}

func trimTrailingZeros(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	if i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}

// writeXRefTable emits the classic cross-reference table plus trailer
// dictionary for the given offsets.
func writeXRefTable(buf *bytes.Buffer, offsets map[int]int64, maxNum int, trailer raw.Dictionary) {
	xrefOffset := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		if off, ok := offsets[num]; ok {
			fmt.Fprintf(buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	buf.WriteString("trailer\n")
	serializeValue(buf, trailer)
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
}

// writeXRefStream emits the cross-reference as a compressed stream object
// (level 4 of the garbage ladder). The stream claims the next free object
// number; its rows use W [1 4 2]: type byte, 4-byte offset, 2-byte gen.
func writeXRefStream(buf *bytes.Buffer, offsets map[int]int64, maxNum int, trailer raw.Dictionary) {
	streamNum := maxNum + 1
	size := streamNum + 1

	var rows bytes.Buffer
	writeRow := func(typ byte, offset int64, gen int) {
		rows.WriteByte(typ)
		rows.WriteByte(byte(offset >> 24))
		rows.WriteByte(byte(offset >> 16))
		rows.WriteByte(byte(offset >> 8))
		rows.WriteByte(byte(offset))
		rows.WriteByte(byte(gen >> 8))
		rows.WriteByte(byte(gen))
	}
	writeRow(0, 0, 0xFFFF) // object 0: head of the free list
	for num := 1; num <= maxNum; num++ {
		if off, ok := offsets[num]; ok {
			writeRow(1, off, 0)
		} else {
			writeRow(0, 0, 0xFFFF)
		}
	}
	xrefOffset := int64(buf.Len())
	writeRow(1, xrefOffset, 0) // the xref stream itself

	data := filters.EncodeFlate(rows.Bytes())

	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XRef"))
	dict.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	dict.Set(raw.NameLiteral("W"), raw.NewArray(raw.NumberInt(1), raw.NumberInt(4), raw.NumberInt(2)))
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(data))))
	for _, key := range []string{"Root", "Info", "ID"} {
		if v, ok := trailer.Get(raw.NameLiteral(key)); ok {
			dict.Set(raw.NameLiteral(key), v)
		}
	}

	ref := raw.ObjectRef{Num: streamNum, Gen: 0}
	serializeObject(buf, ref, &raw.StreamObj{Dict: dict, Data: data})
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
}
