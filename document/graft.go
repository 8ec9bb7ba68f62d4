package document

import (
	"context"
	"fmt"

	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/observability"
)

// GraftMap deduplicates object copies across repeated grafts into one
// destination document. Keys pair the source store's identity with the
// source object id, so pages from several source documents can share one
// map. The map holds ids only, never objects: it must not outlive the
// documents it refers to.
type GraftMap struct {
	dst     *Document
	entries map[graftKey]raw.ObjectRef

	// Copied counts objects physically copied through this map, for
	// progress reporting and dedup verification.
	Copied int
}

type graftKey struct {
	src *raw.Document
	ref raw.ObjectRef
}

// NewGraftMap returns a map bound to dst.
func NewGraftMap(dst *Document) *GraftMap {
	return &GraftMap{dst: dst, entries: make(map[graftKey]raw.ObjectRef)}
}

// Graft copies the page at srcIndex of src into dst at dstIndex (-1
// appends). The page's object subtree is deep-copied; objects already
// grafted through gm are reused by id, so fonts and images shared between
// pages are copied once no matter how many pages reference them. The page
// dictionary itself is always copied fresh: page identity is positional.
func Graft(ctx context.Context, gm *GraftMap, dst *Document, dstIndex int, src *Document, srcIndex int) error {
	if gm == nil || dst == nil || src == nil {
		return fmt.Errorf("graft: nil argument: %w", raw.ErrInvalidArgument)
	}
	if gm.dst != dst {
		return fmt.Errorf("graft map is bound to a different destination: %w", raw.ErrInvalidArgument)
	}
	if dst.Closed() || src.Closed() {
		return fmt.Errorf("graft on closed document: %w", raw.ErrInvalidArgument)
	}
	if dstIndex != -1 && (dstIndex < 0 || dstIndex > dst.PageCount()) {
		return fmt.Errorf("graft destination index %d of %d: %w", dstIndex, dst.PageCount(), raw.ErrInvalidArgument)
	}
	srcPage, err := src.PageDict(srcIndex)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Attributes the source page inherits through its tree must travel with
	// the copy, since Parent links are not followed.
	src.materializeInherited(srcPage)

	g := &grafter{gm: gm, src: src.Store, dst: dst.Store}
	pageCopy := g.copyDict(srcPage)
	pageRef := dst.Store.Put(pageCopy)

	if err := dst.InsertPage(dstIndex, pageRef); err != nil {
		return err
	}
	dst.logger.Debug("page grafted",
		observability.Int("src_page", srcIndex),
		observability.Int("copied_objects", g.copied))
	gm.Copied += g.copied
	return nil
}

type grafter struct {
	gm     *GraftMap
	src    *raw.Document
	dst    *raw.Document
	copied int
}

// graftRef maps a source reference to a destination reference, copying the
// target on first sight. The destination id is registered in the map
// before the target's body is copied, which both memoizes shared objects
// and terminates reference cycles.
func (g *grafter) graftRef(ref raw.ObjectRef) raw.ObjectRef {
	key := graftKey{src: g.src, ref: ref}
	if dstRef, ok := g.gm.entries[key]; ok {
		return dstRef
	}
	srcObj, ok := g.src.Get(ref)
	if !ok {
		// Dangling in the source: the edge lands on a null object so the
		// destination graph stays self-contained.
		dstRef := g.dst.Put(raw.NullObj{})
		g.gm.entries[key] = dstRef
		return dstRef
	}
	dstRef := g.dst.Put(raw.NullObj{})
	g.gm.entries[key] = dstRef
	g.dst.Objects[dstRef] = g.copyObject(srcObj)
	g.copied++
	return dstRef
}

func (g *grafter) copyObject(obj raw.Object) raw.Object {
	switch t := obj.(type) {
	case raw.Reference:
		dstRef := g.graftRef(t.Ref())
		return raw.Ref(dstRef.Num, dstRef.Gen)
	case raw.Dictionary:
		return g.copyDict(t)
	case raw.Array:
		arr := raw.NewArray()
		for i := 0; i < t.Len(); i++ {
			v, _ := t.Get(i)
			arr.Append(g.copyObject(v))
		}
		return arr
	case raw.Stream:
		dict := g.copyDict(t.Dictionary()).(*raw.DictObj)
		data := append([]byte(nil), t.RawData()...)
		return &raw.StreamObj{Dict: dict, Data: data}
	default:
		// Scalars are immutable values; share them.
		return obj
	}
}

// copyDict copies every entry except /Parent. Parent links climb toward
// the source page tree; following them would drag every sibling page into
// the destination. The destination tree rebuild supplies fresh ones.
func (g *grafter) copyDict(dict raw.Dictionary) raw.Dictionary {
	out := raw.Dict()
	for _, k := range dict.Keys() {
		if k.Value() == "Parent" {
			continue
		}
		v, _ := dict.Get(k)
		out.Set(k, g.copyObject(v))
	}
	return out
}
