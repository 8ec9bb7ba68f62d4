package document

import (
	"fmt"

	"github.com/wudi/pdfpress/ir/raw"
)

// PageSize returns the page's MediaBox extent in page-space units,
// honoring the inheritable /MediaBox attribute on ancestor tree nodes.
func (d *Document) PageSize(index int) (width, height float64, err error) {
	dict, err := d.PageDict(index)
	if err != nil {
		return 0, 0, err
	}
	box, ok := d.inheritedMediaBox(dict)
	if !ok {
		// US Letter is the conventional fallback for boxless pages.
		return 612, 792, nil
	}
	return box[2] - box[0], box[3] - box[1], nil
}

// MediaBox returns the page's [llx lly urx ury] rectangle.
func (d *Document) MediaBox(index int) ([4]float64, error) {
	dict, err := d.PageDict(index)
	if err != nil {
		return [4]float64{}, err
	}
	if box, ok := d.inheritedMediaBox(dict); ok {
		return box, nil
	}
	return [4]float64{0, 0, 612, 792}, nil
}

func (d *Document) inheritedMediaBox(page raw.Dictionary) ([4]float64, bool) {
	dict := page
	for depth := 0; dict != nil && depth < 64; depth++ {
		if mb, ok := dict.Get(raw.NameLiteral("MediaBox")); ok {
			if arr, ok := d.Store.Resolve(mb).(raw.Array); ok && arr.Len() == 4 {
				var box [4]float64
				for i := 0; i < 4; i++ {
					v, _ := arr.Get(i)
					box[i] = raw.Float(d.Store.Resolve(v), 0)
				}
				if box[0] > box[2] {
					box[0], box[2] = box[2], box[0]
				}
				if box[1] > box[3] {
					box[1], box[3] = box[3], box[1]
				}
				return box, true
			}
		}
		parent, ok := dict.Get(raw.NameLiteral("Parent"))
		if !ok {
			break
		}
		dict, _ = d.Store.Resolve(parent).(raw.Dictionary)
	}
	return [4]float64{}, false
}

// InheritedResources returns the page's /Resources dictionary, walking up
// tree nodes when the page itself has none.
func (d *Document) InheritedResources(page raw.Dictionary) raw.Dictionary {
	dict := page
	for depth := 0; dict != nil && depth < 64; depth++ {
		if res, ok := dict.Get(raw.NameLiteral("Resources")); ok {
			if rd, ok := d.Store.Resolve(res).(raw.Dictionary); ok {
				return rd
			}
		}
		parent, ok := dict.Get(raw.NameLiteral("Parent"))
		if !ok {
			break
		}
		dict, _ = d.Store.Resolve(parent).(raw.Dictionary)
	}
	return nil
}

// ContentData concatenates the page's decoded content streams; /Contents
// may be a single stream or an array of streams.
func (d *Document) ContentData(index int, decode func(raw.Stream) ([]byte, error)) ([]byte, error) {
	dict, err := d.PageDict(index)
	if err != nil {
		return nil, err
	}
	contents, ok := dict.Get(raw.NameLiteral("Contents"))
	if !ok {
		return nil, nil
	}
	var out []byte
	appendStream := func(obj raw.Object) error {
		stream, ok := d.Store.Resolve(obj).(raw.Stream)
		if !ok {
			return nil
		}
		data, err := decode(stream)
		if err != nil {
			return err
		}
		out = append(out, data...)
		out = append(out, '\n')
		return nil
	}
	if arr, ok := d.Store.Resolve(contents).(raw.Array); ok {
		for i := 0; i < arr.Len(); i++ {
			item, _ := arr.Get(i)
			if err := appendStream(item); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if err := appendStream(contents); err != nil {
		return nil, err
	}
	return out, nil
}

// DeletePage removes the page at index from the page list.
func (d *Document) DeletePage(index int) error {
	return d.DeletePageRange(index, index+1)
}

// DeletePageRange removes pages [start, end). Deleting [2,5) from a
// 10-page document leaves pages 0,1,5..9 in that order. The removed page
// objects stay in the store until the next garbage sweep.
func (d *Document) DeletePageRange(start, end int) error {
	if start < 0 || end > len(d.pages) || start >= end {
		return fmt.Errorf("page range [%d,%d) of %d: %w", start, end, len(d.pages), raw.ErrInvalidArgument)
	}
	d.pages = append(d.pages[:start:start], d.pages[end:]...)
	return d.rebuildPageTree()
}

// InsertPage places ref into the page list at index; -1 appends.
func (d *Document) InsertPage(index int, ref raw.ObjectRef) error {
	if index == -1 {
		index = len(d.pages)
	}
	if index < 0 || index > len(d.pages) {
		return fmt.Errorf("insert at %d of %d: %w", index, len(d.pages), raw.ErrInvalidArgument)
	}
	d.pages = append(d.pages, raw.ObjectRef{})
	copy(d.pages[index+1:], d.pages[index:])
	d.pages[index] = ref
	return d.rebuildPageTree()
}

// rebuildPageTree rewrites the catalog's page tree as a single flat /Kids
// node reflecting the page list. Nested intermediate nodes from the source
// file become unreachable and are collected on the next sweep.
func (d *Document) rebuildPageTree() error {
	catalog, _, ok := d.Store.Catalog()
	if !ok {
		return fmt.Errorf("no catalog: %w", raw.ErrCorrupt)
	}
	pagesObj, ok := catalog.Get(raw.NameLiteral("Pages"))
	if !ok {
		return fmt.Errorf("catalog has no /Pages: %w", raw.ErrCorrupt)
	}
	pagesRef, ok := pagesObj.(raw.Reference)
	if !ok {
		return fmt.Errorf("/Pages is direct: %w", raw.ErrCorrupt)
	}
	rootDict, ok := d.Store.Resolve(pagesRef).(raw.Dictionary)
	if !ok {
		return fmt.Errorf("page tree root missing: %w", raw.ErrCorrupt)
	}

	kids := raw.NewArray()
	for _, pageRef := range d.pages {
		kids.Append(raw.Ref(pageRef.Num, pageRef.Gen))
		if pd, ok := d.Store.Resolve(raw.RefObj{R: pageRef}).(raw.Dictionary); ok {
			// Flattening removes intermediate tree nodes, so inheritable
			// attributes must be materialized onto the page first.
			d.materializeInherited(pd)
			pd.Set(raw.NameLiteral("Parent"), raw.Ref(pagesRef.Ref().Num, pagesRef.Ref().Gen))
		}
	}
	rootDict.Set(raw.NameLiteral("Kids"), kids)
	rootDict.Set(raw.NameLiteral("Count"), raw.NumberInt(int64(len(d.pages))))
	return nil
}

var inheritable = []string{"MediaBox", "CropBox", "Resources", "Rotate"}

func (d *Document) materializeInherited(page raw.Dictionary) {
	for _, attr := range inheritable {
		if _, ok := page.Get(raw.NameLiteral(attr)); ok {
			continue
		}
		dict := page
		for depth := 0; dict != nil && depth < 64; depth++ {
			parent, ok := dict.Get(raw.NameLiteral("Parent"))
			if !ok {
				break
			}
			dict, _ = d.Store.Resolve(parent).(raw.Dictionary)
			if dict == nil {
				break
			}
			if v, ok := dict.Get(raw.NameLiteral(attr)); ok {
				page.Set(raw.NameLiteral(attr), v)
				break
			}
		}
	}
}

// Pages returns a copy of the page ref list in order.
func (d *Document) Pages() []raw.ObjectRef {
	out := make([]raw.ObjectRef, len(d.pages))
	copy(out, d.pages)
	return out
}
