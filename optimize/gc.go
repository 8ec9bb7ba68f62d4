package optimize

import (
	"github.com/wudi/pdfpress/ir/raw"
)

// CompactStats reports what one Compact call did to the store.
type CompactStats struct {
	Swept      int // objects dropped as unreachable
	Merged     int // objects merged as structural duplicates
	Remap      map[raw.ObjectRef]raw.ObjectRef
	XRefStream bool // level 4: serialize the xref as a stream
}

// Compact runs the garbage ladder at the given level:
//
//	level >= 1  mark/sweep unreachable objects
//	level >= 2  merge structurally identical dictionaries and streams
//	level >= 3  renumber to a dense 1..N id space
//	level == 4  additionally recompact the cross-reference into a stream
//
// Level 0 leaves the store untouched.
func Compact(store *raw.Document, level int) CompactStats {
	var stats CompactStats
	if level >= 1 {
		stats.Swept = SweepUnreachable(store)
	}
	if level >= 2 {
		stats.Merged = DeduplicateObjects(store)
	}
	if level >= 3 {
		stats.Remap = Renumber(store)
	}
	if level >= 4 {
		stats.XRefStream = true
	}
	return stats
}

// SweepUnreachable drops every object not reachable from the trailer or a
// pinned root, returning the number removed. Dangling references drop
// their edge; cycles terminate via the store's visited-set walk.
func SweepUnreachable(store *raw.Document) int {
	reachable := store.Walk(func(raw.ObjectRef, raw.Object) {})
	removed := 0
	for ref := range store.Objects {
		if !reachable[ref] {
			delete(store.Objects, ref)
			removed++
		}
	}
	return removed
}

// DeduplicateObjects merges objects whose serialized content is identical,
// iterating to a fixed point so that objects differing only through
// references to (transitively) identical objects also merge. The lowest
// id of each duplicate set survives, keeping the pass deterministic.
func DeduplicateObjects(store *raw.Document) int {
	merged := 0
	for {
		seen := make(map[string]raw.ObjectRef)
		replacements := make(map[raw.ObjectRef]raw.ObjectRef)

		for _, ref := range store.SortedRefs() {
			obj := store.Objects[ref]
			switch obj.(type) {
			case raw.Dictionary, raw.Stream:
			default:
				continue
			}
			if isPageTreeNode(obj) {
				// Page identity is positional; merging byte-identical page
				// dictionaries would alias distinct pages.
				continue
			}
			h := hashObject(obj)
			if original, ok := seen[h]; ok {
				replacements[ref] = original
			} else {
				seen[h] = ref
			}
		}
		if len(replacements) == 0 {
			return merged
		}
		ReplaceReferences(store, replacements)
		for dup := range replacements {
			delete(store.Objects, dup)
		}
		merged += len(replacements)
	}
}

func isPageTreeNode(obj raw.Object) bool {
	dict, ok := obj.(raw.Dictionary)
	if !ok {
		return false
	}
	typ, _ := dict.Get(raw.NameLiteral("Type"))
	if n, ok := typ.(raw.Name); ok {
		return n.Value() == "Page" || n.Value() == "Pages"
	}
	return false
}

// ReplaceReferences rewrites every reference in the store (and trailer)
// according to the replacement map.
func ReplaceReferences(store *raw.Document, replacements map[raw.ObjectRef]raw.ObjectRef) {
	for _, obj := range store.Objects {
		replaceRefsIn(obj, replacements)
	}
	if store.Trailer != nil {
		replaceRefsIn(store.Trailer, replacements)
	}
}

func replaceRefsIn(obj raw.Object, replacements map[raw.ObjectRef]raw.ObjectRef) {
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if ref, ok := val.(raw.Reference); ok {
				if newRef, found := replacements[ref.Ref()]; found {
					t.Items[i] = raw.Ref(newRef.Num, newRef.Gen)
				}
				continue
			}
			replaceRefsIn(val, replacements)
		}
	case raw.Dictionary:
		for _, key := range t.Keys() {
			val, _ := t.Get(key)
			if ref, ok := val.(raw.Reference); ok {
				if newRef, found := replacements[ref.Ref()]; found {
					t.Set(key, raw.Ref(newRef.Num, newRef.Gen))
				}
				continue
			}
			replaceRefsIn(val, replacements)
		}
	case raw.Stream:
		replaceRefsIn(t.Dictionary(), replacements)
	}
}

// Renumber rewrites the id space to a dense 1..N in ascending order of the
// old ids and returns the old-to-new map. A dense space minimizes the
// serialized cross-reference table.
func Renumber(store *raw.Document) map[raw.ObjectRef]raw.ObjectRef {
	remap := make(map[raw.ObjectRef]raw.ObjectRef, len(store.Objects))
	next := 1
	for _, ref := range store.SortedRefs() {
		remap[ref] = raw.ObjectRef{Num: next, Gen: 0}
		next++
	}
	ReplaceReferences(store, remap)
	store.RemapRoots(remap)
	objects := make(map[raw.ObjectRef]raw.Object, len(store.Objects))
	for ref, obj := range store.Objects {
		objects[remap[ref]] = obj
	}
	store.Objects = objects
	return remap
}
