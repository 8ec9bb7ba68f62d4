package optimize

import (
	"testing"

	"github.com/wudi/pdfpress/ir/raw"
)

// buildStore assembles a minimal document: catalog, page tree with two
// pages, and two byte-identical font dictionaries, one per page.
func buildStore(t *testing.T) *raw.Document {
	t.Helper()
	store := raw.NewDocument()

	font1 := raw.Dict()
	font1.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	font1.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral("Helvetica"))
	font1Ref := store.Put(font1)

	font2 := raw.Dict()
	font2.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	font2.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral("Helvetica"))
	font2Ref := store.Put(font2)

	makePage := func(fontRef raw.ObjectRef) raw.ObjectRef {
		res := raw.Dict()
		fonts := raw.Dict()
		fonts.Set(raw.NameLiteral("F1"), raw.Ref(fontRef.Num, fontRef.Gen))
		res.Set(raw.NameLiteral("Font"), fonts)
		page := raw.Dict()
		page.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
		page.Set(raw.NameLiteral("Resources"), res)
		return store.Put(page)
	}
	page1 := makePage(font1Ref)
	page2 := makePage(font2Ref)

	kids := raw.NewArray()
	kids.Append(raw.Ref(page1.Num, page1.Gen))
	kids.Append(raw.Ref(page2.Num, page2.Gen))
	pages := raw.Dict()
	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Kids"), kids)
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(2))
	pagesRef := store.Put(pages)

	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.Ref(pagesRef.Num, pagesRef.Gen))
	catalogRef := store.Put(catalog)

	store.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(catalogRef.Num, catalogRef.Gen))
	return store
}

func TestSweepUnreachable(t *testing.T) {
	store := buildStore(t)
	before := len(store.Objects)

	orphan := raw.Dict()
	orphan.Set(raw.NameLiteral("Orphan"), raw.Bool(true))
	store.Put(orphan)

	if removed := SweepUnreachable(store); removed != 1 {
		t.Fatalf("swept %d objects, want 1", removed)
	}
	if len(store.Objects) != before {
		t.Fatalf("store has %d objects after sweep, want %d", len(store.Objects), before)
	}
}

func TestSweepKeepsPinnedRoots(t *testing.T) {
	store := buildStore(t)
	pinned := store.Put(raw.Str([]byte("keep me")))
	store.MarkRoot(pinned)

	SweepUnreachable(store)
	if _, ok := store.Get(pinned); !ok {
		t.Fatalf("pinned root was swept")
	}
}

func TestDeduplicateMergesIdenticalFonts(t *testing.T) {
	store := buildStore(t)
	before := len(store.Objects)

	merged := DeduplicateObjects(store)
	if merged != 1 {
		t.Fatalf("merged %d objects, want 1 (the duplicate font)", merged)
	}
	if len(store.Objects) != before-1 {
		t.Fatalf("store has %d objects, want %d", len(store.Objects), before-1)
	}

	// Both pages now reference one font object.
	var fontRefs []raw.ObjectRef
	store.Walk(func(ref raw.ObjectRef, obj raw.Object) {
		if d, ok := obj.(raw.Dictionary); ok {
			if typ, _ := d.Get(raw.NameLiteral("Type")); typ != nil {
				if n, ok := typ.(raw.Name); ok && n.Value() == "Font" {
					fontRefs = append(fontRefs, ref)
				}
			}
		}
	})
	if len(fontRefs) != 1 {
		t.Fatalf("reachable font objects = %d, want 1", len(fontRefs))
	}
}

func TestDeduplicateKeepsIdenticalPagesDistinct(t *testing.T) {
	store := raw.NewDocument()

	// Two pages with byte-identical content. Page identity is positional:
	// merging them would alias distinct pages.
	makePage := func() raw.ObjectRef {
		page := raw.Dict()
		page.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
		return store.Put(page)
	}
	p1, p2 := makePage(), makePage()

	kids := raw.NewArray()
	kids.Append(raw.Ref(p1.Num, p1.Gen))
	kids.Append(raw.Ref(p2.Num, p2.Gen))
	pages := raw.Dict()
	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Kids"), kids)
	pagesRef := store.Put(pages)
	store.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(pagesRef.Num, pagesRef.Gen))

	if merged := DeduplicateObjects(store); merged != 0 {
		t.Fatalf("merged %d page objects, want 0", merged)
	}
}

func TestRenumberDense(t *testing.T) {
	store := buildStore(t)
	// Punch a hole in the id space.
	orphanRef := store.Put(raw.Bool(true))
	delete(store.Objects, orphanRef)

	remap := Renumber(store)
	if len(remap) != len(store.Objects) {
		t.Fatalf("remap has %d entries, store has %d objects", len(remap), len(store.Objects))
	}
	for i := 1; i <= len(store.Objects); i++ {
		if _, ok := store.Get(raw.ObjectRef{Num: i}); !ok {
			t.Fatalf("object %d missing after renumber", i)
		}
	}

	// The trailer's catalog reference must still resolve.
	if _, _, ok := store.Catalog(); !ok {
		t.Fatalf("catalog unresolvable after renumber")
	}
}

func TestRenumberRemapsPinnedRoots(t *testing.T) {
	store := buildStore(t)
	pinned := store.Put(raw.Str([]byte("pinned")))
	store.MarkRoot(pinned)

	remap := Renumber(store)
	want := remap[pinned]
	roots := store.Roots()
	if len(roots) != 1 || roots[0] != want {
		t.Fatalf("roots after renumber = %v, want [%v]", roots, want)
	}
}

func TestCompactLadder(t *testing.T) {
	t.Run("level 0 leaves the store untouched", func(t *testing.T) {
		store := buildStore(t)
		store.Put(raw.Bool(true)) // orphan
		before := len(store.Objects)
		stats := Compact(store, 0)
		if stats.Swept != 0 || stats.Merged != 0 || stats.Remap != nil || len(store.Objects) != before {
			t.Fatalf("level 0 changed the store: %+v", stats)
		}
	})
	t.Run("level 3 sweeps, merges and renumbers", func(t *testing.T) {
		store := buildStore(t)
		store.Put(raw.Bool(true)) // orphan
		stats := Compact(store, 3)
		if stats.Swept != 1 {
			t.Errorf("swept = %d, want 1", stats.Swept)
		}
		if stats.Merged != 1 {
			t.Errorf("merged = %d, want 1", stats.Merged)
		}
		if stats.Remap == nil {
			t.Errorf("level 3 produced no remap")
		}
		if stats.XRefStream {
			t.Errorf("level 3 must not request an xref stream")
		}
	})
	t.Run("level 4 requests an xref stream", func(t *testing.T) {
		store := buildStore(t)
		if stats := Compact(store, 4); !stats.XRefStream {
			t.Fatalf("level 4 did not request an xref stream")
		}
	})
}
