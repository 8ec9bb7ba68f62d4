package parser

import (
	"fmt"

	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/scanner"
	"github.com/wudi/pdfpress/xref"
)

type objStmMember struct {
	num int
	obj raw.Object
}

// expandObjectStream decodes an /ObjStm container and parses every member.
// The decoded payload starts with /N pairs of "objnum offset" integers;
// member bodies begin at /First plus their offset.
func (p *DocumentParser) expandObjectStream(container raw.Object) ([]objStmMember, error) {
	stream, ok := container.(raw.Stream)
	if !ok {
		return nil, fmt.Errorf("object stream container is %s: %w", container.Type(), raw.ErrCorrupt)
	}
	dict := stream.Dictionary()
	n := int(raw.Int(raw.DictGet(nil, dict, "N"), 0))
	first := int64(raw.Int(raw.DictGet(nil, dict, "First"), 0))
	if n <= 0 || first <= 0 {
		return nil, fmt.Errorf("object stream /N or /First malformed: %w", raw.ErrCorrupt)
	}

	decoded, err := filters.DecodeStream(stream)
	if err != nil {
		return nil, fmt.Errorf("decode object stream: %w", err)
	}

	sc := scanner.New(decoded)
	type pair struct {
		num    int
		offset int64
	}
	pairs := make([]pair, 0, n)
	for i := 0; i < n; i++ {
		numTok, err := sc.Next()
		if err != nil || numTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("object stream header pair %d: %w", i, raw.ErrCorrupt)
		}
		offTok, err := sc.Next()
		if err != nil || offTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("object stream header pair %d: %w", i, raw.ErrCorrupt)
		}
		pairs = append(pairs, pair{num: int(numTok.Num), offset: int64(offTok.Num)})
	}

	members := make([]objStmMember, 0, n)
	for _, pr := range pairs {
		bodySc := scanner.New(decoded)
		if err := bodySc.Seek(first + pr.offset); err != nil {
			return nil, fmt.Errorf("object stream member %d: %w", pr.num, err)
		}
		obj, err := xref.ParseObject(bodySc)
		if err != nil {
			return nil, fmt.Errorf("object stream member %d: %w", pr.num, err)
		}
		members = append(members, objStmMember{num: pr.num, obj: obj})
	}
	return members, nil
}
