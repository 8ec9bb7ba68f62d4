package raw

import (
	"fmt"
	"sort"
)

// Document is the arena that owns every indirect object of one PDF file.
// It is the unit of single-goroutine mutation: distinct Documents may be
// processed fully in parallel, one Document must not be mutated concurrently.
type Document struct {
	Objects map[ObjectRef]Object
	Trailer Dictionary
	Version string // e.g. "1.7"

	// roots are ids explicitly pinned by callers; reachability sweeps start
	// from the trailer plus these.
	roots map[ObjectRef]bool

	// maxNum tracks the highest allocated object number for Put.
	maxNum int

	// DanglingResolved counts references that resolved to Null because the
	// target id was absent from the store. Diagnostic only.
	DanglingResolved int
}

// NewDocument returns an empty store with no objects and an empty trailer.
func NewDocument() *Document {
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
		Version: "1.7",
		roots:   make(map[ObjectRef]bool),
	}
}

// Get returns the object stored under ref.
func (d *Document) Get(ref ObjectRef) (Object, bool) {
	obj, ok := d.Objects[ref]
	return obj, ok
}

// Put stores obj under a freshly allocated object number and returns its
// reference.
func (d *Document) Put(obj Object) ObjectRef {
	d.syncMaxNum()
	d.maxNum++
	ref := ObjectRef{Num: d.maxNum, Gen: 0}
	d.Objects[ref] = obj
	return ref
}

// Replace swaps the object stored under ref. The id must already exist.
func (d *Document) Replace(ref ObjectRef, obj Object) error {
	if _, ok := d.Objects[ref]; !ok {
		return fmt.Errorf("replace %s: %w", ref, ErrNotFound)
	}
	d.Objects[ref] = obj
	return nil
}

// MarkRoot pins ref as an additional reachability root for compaction.
func (d *Document) MarkRoot(ref ObjectRef) {
	if d.roots == nil {
		d.roots = make(map[ObjectRef]bool)
	}
	d.roots[ref] = true
}

// Roots returns the explicitly pinned roots in deterministic order.
func (d *Document) Roots() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.roots))
	for r := range d.roots {
		refs = append(refs, r)
	}
	SortRefs(refs)
	return refs
}

// MaxNum returns the highest object number present in the store.
func (d *Document) MaxNum() int {
	d.syncMaxNum()
	return d.maxNum
}

func (d *Document) syncMaxNum() {
	for ref := range d.Objects {
		if ref.Num > d.maxNum {
			d.maxNum = ref.Num
		}
	}
}

// Resolve follows obj one level if it is a Reference. A dangling reference
// resolves to Null and bumps the diagnostic counter; it is a validity
// violation in the source document, never a crash.
func (d *Document) Resolve(obj Object) Object {
	ref, ok := obj.(Reference)
	if !ok {
		return obj
	}
	target, ok := d.Objects[ref.Ref()]
	if !ok {
		d.DanglingResolved++
		return NullObj{}
	}
	return target
}

// Catalog returns the document catalog dictionary via the trailer /Root.
func (d *Document) Catalog() (Dictionary, ObjectRef, bool) {
	if d.Trailer == nil {
		return nil, ObjectRef{}, false
	}
	rootObj, ok := d.Trailer.Get(NameObj{Val: "Root"})
	if !ok {
		return nil, ObjectRef{}, false
	}
	ref, ok := rootObj.(Reference)
	if !ok {
		return nil, ObjectRef{}, false
	}
	dict, ok := d.Resolve(ref).(Dictionary)
	if !ok {
		return nil, ObjectRef{}, false
	}
	return dict, ref.Ref(), true
}

// Walk visits every object reachable from the trailer and the pinned roots.
// Traversal uses an explicit visited set keyed by object id, so cyclic
// graphs (pages reference their parent tree) terminate. fn receives every
// visited object, indirect targets once each. Dangling references drop the
// edge silently; the walk continues.
func (d *Document) Walk(fn func(ref ObjectRef, obj Object)) map[ObjectRef]bool {
	visited := make(map[ObjectRef]bool)
	var visit func(obj Object)
	visit = func(obj Object) {
		switch t := obj.(type) {
		case Reference:
			ref := t.Ref()
			if visited[ref] {
				return
			}
			target, ok := d.Objects[ref]
			if !ok {
				return
			}
			visited[ref] = true
			fn(ref, target)
			visit(target)
		case Array:
			for i := 0; i < t.Len(); i++ {
				v, _ := t.Get(i)
				visit(v)
			}
		case Dictionary:
			for _, k := range t.Keys() {
				v, _ := t.Get(k)
				visit(v)
			}
		case Stream:
			visit(t.Dictionary())
		}
	}
	if d.Trailer != nil {
		visit(d.Trailer)
	}
	for _, ref := range d.Roots() {
		visit(RefObj{R: ref})
	}
	return visited
}

// RemapRoots rewrites the pinned root ids after a renumbering pass.
func (d *Document) RemapRoots(remap map[ObjectRef]ObjectRef) {
	if len(d.roots) == 0 {
		return
	}
	roots := make(map[ObjectRef]bool, len(d.roots))
	for ref := range d.roots {
		if newRef, ok := remap[ref]; ok {
			roots[newRef] = true
		}
	}
	d.roots = roots
}

// SortRefs orders refs by number, then generation.
func SortRefs(refs []ObjectRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
}

// SortedRefs returns every object id in the store in ascending order.
func (d *Document) SortedRefs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.Objects))
	for ref := range d.Objects {
		refs = append(refs, ref)
	}
	SortRefs(refs)
	return refs
}
