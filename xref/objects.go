package xref

import (
	"fmt"
	"io"

	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/scanner"
)

// Object composition from tokens lives here, beside its lowest consumer:
// cross-reference streams are themselves indirect objects, so the resolver
// already needs the full grammar. The document parser reuses these.

// composer adds one token of pushback over the scanner, needed to decide
// whether "N" starts a number or an "N G R" reference.
type composer struct {
	sc      *scanner.Scanner
	pending []scanner.Token
}

func (c *composer) next() (scanner.Token, error) {
	if n := len(c.pending); n > 0 {
		tok := c.pending[n-1]
		c.pending = c.pending[:n-1]
		return tok, nil
	}
	return c.sc.Next()
}

func (c *composer) push(tok scanner.Token) { c.pending = append(c.pending, tok) }

// parseValue composes one object from the token stream.
func (c *composer) parseValue(tok scanner.Token) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenNumber:
		if tok.Int {
			return c.maybeReference(tok)
		}
		return raw.NumberFloat(tok.Num), nil
	case scanner.TokenName:
		return raw.NameLiteral(tok.Str), nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Raw, Hex: tok.Str == "hex"}, nil
	case scanner.TokenArrayOpen:
		arr := raw.NewArray()
		for {
			t, err := c.next()
			if err != nil {
				return nil, fmt.Errorf("unterminated array: %w", raw.ErrCorrupt)
			}
			if t.Type == scanner.TokenArrayClose {
				return arr, nil
			}
			item, err := c.parseValue(t)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case scanner.TokenDictOpen:
		return c.parseDict()
	case scanner.TokenKeyword:
		switch tok.Str {
		case "true":
			return raw.Bool(true), nil
		case "false":
			return raw.Bool(false), nil
		case "null":
			return raw.NullObj{}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at %d: %w", tok.Str, tok.Pos, raw.ErrCorrupt)
	}
	return nil, fmt.Errorf("unexpected token at %d: %w", tok.Pos, raw.ErrCorrupt)
}

// maybeReference resolves the "<int> <int> R" ambiguity with two-token
// lookahead.
func (c *composer) maybeReference(numTok scanner.Token) (raw.Object, error) {
	second, err := c.next()
	if err != nil {
		if err == io.EOF {
			return raw.NumberInt(int64(numTok.Num)), nil
		}
		return nil, err
	}
	if second.Type == scanner.TokenNumber && second.Int {
		third, err := c.next()
		if err == nil && third.Type == scanner.TokenKeyword && third.Str == "R" {
			return raw.Ref(int(numTok.Num), int(second.Num)), nil
		}
		if err == nil {
			c.push(third)
		}
	}
	c.push(second)
	return raw.NumberInt(int64(numTok.Num)), nil
}

func (c *composer) parseDict() (raw.Object, error) {
	dict := raw.Dict()
	for {
		keyTok, err := c.next()
		if err != nil {
			return nil, fmt.Errorf("unterminated dictionary: %w", raw.ErrCorrupt)
		}
		if keyTok.Type == scanner.TokenDictClose {
			return dict, nil
		}
		if keyTok.Type != scanner.TokenName {
			return nil, fmt.Errorf("dictionary key at %d is not a name: %w", keyTok.Pos, raw.ErrCorrupt)
		}
		valTok, err := c.next()
		if err != nil {
			return nil, fmt.Errorf("dictionary value missing: %w", raw.ErrCorrupt)
		}
		val, err := c.parseValue(valTok)
		if err != nil {
			return nil, err
		}
		dict.Set(raw.NameLiteral(keyTok.Str), val)
	}
}

// ParseObjectAfterOpen composes a dictionary whose '<<' token was already
// consumed by the caller.
func ParseObjectAfterOpen(sc *scanner.Scanner) (raw.Object, error) {
	c := &composer{sc: sc}
	return c.parseDict()
}

// ParseObject composes the next complete object from sc.
func ParseObject(sc *scanner.Scanner) (raw.Object, error) {
	c := &composer{sc: sc}
	tok, err := c.next()
	if err != nil {
		return nil, err
	}
	return c.parseValue(tok)
}

// ParseIndirectAt parses the indirect object "N G obj ... endobj" beginning
// at offset, attaching stream payloads when the body is followed by the
// 'stream' keyword. The payload length comes from /Length when it is a
// direct number; otherwise the payload extends to the next 'endstream'.
func ParseIndirectAt(data []byte, offset int64) (raw.Object, error) {
	obj, _, err := ParseIndirectHeaderAt(data, offset)
	return obj, err
}

// ParseIndirectHeaderAt is ParseIndirectAt returning the declared object id
// as well, so callers can verify it against the xref entry.
func ParseIndirectHeaderAt(data []byte, offset int64) (raw.Object, raw.ObjectRef, error) {
	sc := scanner.New(data)
	if err := sc.Seek(offset); err != nil {
		return nil, raw.ObjectRef{}, err
	}
	c := &composer{sc: sc}

	numTok, err := c.next()
	if err != nil || numTok.Type != scanner.TokenNumber {
		return nil, raw.ObjectRef{}, fmt.Errorf("object number expected at %d: %w", offset, raw.ErrCorrupt)
	}
	genTok, err := c.next()
	if err != nil || genTok.Type != scanner.TokenNumber {
		return nil, raw.ObjectRef{}, fmt.Errorf("generation expected at %d: %w", offset, raw.ErrCorrupt)
	}
	objTok, err := c.next()
	if err != nil || objTok.Str != "obj" {
		return nil, raw.ObjectRef{}, fmt.Errorf("obj keyword expected at %d: %w", offset, raw.ErrCorrupt)
	}
	ref := raw.ObjectRef{Num: int(numTok.Num), Gen: int(genTok.Num)}

	bodyTok, err := c.next()
	if err != nil {
		return nil, ref, fmt.Errorf("object %s body missing: %w", ref, raw.ErrCorrupt)
	}
	body, err := c.parseValue(bodyTok)
	if err != nil {
		return nil, ref, err
	}

	tok, err := c.next()
	if err != nil || tok.Type != scanner.TokenKeyword {
		return body, ref, nil
	}
	if tok.Str != "stream" {
		return body, ref, nil // usually "endobj"
	}

	dict, ok := body.(*raw.DictObj)
	if !ok {
		return nil, ref, fmt.Errorf("stream %s without dictionary: %w", ref, raw.ErrCorrupt)
	}
	sc.SkipEOL()
	length := raw.Int(raw.DictGet(nil, dict, "Length"), -1)
	if length >= 0 {
		payload, err := sc.Bytes(length)
		if err == nil {
			return &raw.StreamObj{Dict: dict, Data: payload}, ref, nil
		}
	}
	// /Length indirect or wrong: take everything up to 'endstream'.
	start := sc.Position()
	end, found := sc.FindKeyword("endstream")
	if !found {
		return nil, ref, fmt.Errorf("stream %s missing endstream: %w", ref, raw.ErrCorrupt)
	}
	payload := data[start:end]
	// Strip the EOL that precedes the keyword.
	if n := len(payload); n > 0 && payload[n-1] == '\n' {
		payload = payload[:n-1]
	}
	if n := len(payload); n > 0 && payload[n-1] == '\r' {
		payload = payload[:n-1]
	}
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(payload))))
	return &raw.StreamObj{Dict: dict, Data: payload}, ref, nil
}
