// Package contentstream parses page content streams into operator sequences
// and serializes them back. It also traces image placements, which yields
// the effective DPI the rewrite planner decides on.
package contentstream

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/scanner"
)

// Operation is one content-stream operator with its operands.
type Operation struct {
	Operator string
	Operands []raw.Object
}

// Parse splits a content stream into operations. Inline image payloads
// (BI ... ID <binary> EI) are kept opaque as the single operand of a
// synthetic "BI" operation. Malformed trailing operands are dropped, not
// fatal: content cleaning must survive sloppy producers.
func Parse(data []byte) ([]Operation, error) {
	sc := scanner.New(data)
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := sc.Next()
		if err == io.EOF {
			return ops, nil
		}
		if err != nil {
			return ops, err
		}
		switch tok.Type {
		case scanner.TokenNumber:
			if tok.Int {
				operands = append(operands, raw.NumberInt(int64(tok.Num)))
			} else {
				operands = append(operands, raw.NumberFloat(tok.Num))
			}
		case scanner.TokenName:
			operands = append(operands, raw.NameLiteral(tok.Str))
		case scanner.TokenString:
			operands = append(operands, raw.StringObj{Bytes: tok.Raw, Hex: tok.Str == "hex"})
		case scanner.TokenArrayOpen:
			arr, err := parseArray(sc)
			if err != nil {
				return ops, err
			}
			operands = append(operands, arr)
		case scanner.TokenDictOpen:
			dict, err := parseDict(sc)
			if err != nil {
				return ops, err
			}
			operands = append(operands, dict)
		case scanner.TokenKeyword:
			switch tok.Str {
			case "true":
				operands = append(operands, raw.Bool(true))
			case "false":
				operands = append(operands, raw.Bool(false))
			case "null":
				operands = append(operands, raw.NullObj{})
			case "BI":
				payload, err := scanInlineImage(sc, data)
				if err != nil {
					return ops, err
				}
				ops = append(ops, Operation{Operator: "BI", Operands: []raw.Object{raw.Str(payload)}})
				operands = nil
			default:
				ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
				operands = nil
			}
		}
	}
}

func parseArray(sc *scanner.Scanner) (raw.Object, error) {
	arr := raw.NewArray()
	for {
		tok, err := sc.Next()
		if err != nil {
			return nil, fmt.Errorf("unterminated array in content stream: %w", raw.ErrCorrupt)
		}
		switch tok.Type {
		case scanner.TokenArrayClose:
			return arr, nil
		case scanner.TokenNumber:
			if tok.Int {
				arr.Append(raw.NumberInt(int64(tok.Num)))
			} else {
				arr.Append(raw.NumberFloat(tok.Num))
			}
		case scanner.TokenName:
			arr.Append(raw.NameLiteral(tok.Str))
		case scanner.TokenString:
			arr.Append(raw.StringObj{Bytes: tok.Raw, Hex: tok.Str == "hex"})
		case scanner.TokenArrayOpen:
			inner, err := parseArray(sc)
			if err != nil {
				return nil, err
			}
			arr.Append(inner)
		default:
			// operators never occur inside arrays; tolerate and skip
		}
	}
}

func parseDict(sc *scanner.Scanner) (raw.Object, error) {
	dict := raw.Dict()
	var key string
	haveKey := false
	for {
		tok, err := sc.Next()
		if err != nil {
			return nil, fmt.Errorf("unterminated dictionary in content stream: %w", raw.ErrCorrupt)
		}
		if tok.Type == scanner.TokenDictClose {
			return dict, nil
		}
		if !haveKey {
			if tok.Type != scanner.TokenName {
				continue
			}
			key, haveKey = tok.Str, true
			continue
		}
		var val raw.Object
		switch tok.Type {
		case scanner.TokenNumber:
			if tok.Int {
				val = raw.NumberInt(int64(tok.Num))
			} else {
				val = raw.NumberFloat(tok.Num)
			}
		case scanner.TokenName:
			val = raw.NameLiteral(tok.Str)
		case scanner.TokenString:
			val = raw.StringObj{Bytes: tok.Raw}
		case scanner.TokenArrayOpen:
			v, err := parseArray(sc)
			if err != nil {
				return nil, err
			}
			val = v
		case scanner.TokenDictOpen:
			v, err := parseDict(sc)
			if err != nil {
				return nil, err
			}
			val = v
		default:
			val = raw.NullObj{}
		}
		dict.Set(raw.NameLiteral(key), val)
		haveKey = false
	}
}

// scanInlineImage captures everything from after BI through EI, inclusive of
// the parameter dictionary, as opaque bytes.
func scanInlineImage(sc *scanner.Scanner, data []byte) ([]byte, error) {
	start := sc.Position()
	end, found := sc.FindKeyword("EI")
	if !found {
		return nil, fmt.Errorf("inline image missing EI: %w", raw.ErrCorrupt)
	}
	sc.Seek(end + 2)
	return data[start : end+2], nil
}

// Serialize writes operations back into content-stream syntax with single
// spaces, one operation per line.
func Serialize(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" && len(op.Operands) == 1 {
			if s, ok := op.Operands[0].(raw.String); ok {
				buf.WriteString("BI")
				buf.Write(s.Value())
				buf.WriteByte('\n')
				continue
			}
		}
		for _, operand := range op.Operands {
			writeOperand(&buf, operand)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeOperand(buf *bytes.Buffer, obj raw.Object) {
	switch t := obj.(type) {
	case raw.Number:
		if t.IsInteger() {
			buf.WriteString(strconv.FormatInt(t.Int(), 10))
		} else {
			buf.WriteString(trimFloat(t.Float()))
		}
	case raw.Name:
		buf.WriteByte('/')
		buf.WriteString(t.Value())
	case raw.String:
		if t.IsHex() {
			buf.WriteByte('<')
			for _, b := range t.Value() {
				fmt.Fprintf(buf, "%02X", b)
			}
			buf.WriteByte('>')
		} else {
			buf.WriteByte('(')
			for _, b := range t.Value() {
				switch b {
				case '(', ')', '\\':
					buf.WriteByte('\\')
					buf.WriteByte(b)
				case '\n':
					buf.WriteString(`\n`)
				case '\r':
					buf.WriteString(`\r`)
				default:
					buf.WriteByte(b)
				}
			}
			buf.WriteByte(')')
		}
	case raw.Boolean:
		if t.Value() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case raw.Array:
		buf.WriteByte('[')
		for i := 0; i < t.Len(); i++ {
			if i > 0 {
				buf.WriteByte(' ')
			}
			v, _ := t.Get(i)
			writeOperand(buf, v)
		}
		buf.WriteByte(']')
	case raw.Dictionary:
		buf.WriteString("<<")
		for i, k := range t.Keys() {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteByte('/')
			buf.WriteString(k.Value())
			buf.WriteByte(' ')
			v, _ := t.Get(k)
			writeOperand(buf, v)
		}
		buf.WriteString(">>")
	default:
		buf.WriteString("null")
	}
}

func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = trimRight(s, '0')
	s = trimRight(s, '.')
	return s
}

func trimRight(s string, c byte) string {
	for len(s) > 0 && s[len(s)-1] == c {
		s = s[:len(s)-1]
	}
	return s
}
