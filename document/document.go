// Package document exposes the engine's caller-facing handle: open or
// create documents, inspect and edit the page list, graft pages across
// documents, and hand the object store to the save pipeline.
package document

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/observability"
	"github.com/wudi/pdfpress/parser"
)

// Document owns one object store and its ordered page list. A Document is
// mutated by at most one goroutine at a time; distinct Documents are fully
// independent and may be processed in parallel.
type Document struct {
	Store *raw.Document

	// pages holds the page object refs in render/export order. Page
	// identity is the position in this list, not the object id.
	pages []raw.ObjectRef

	logger observability.Logger
	closed bool
}

// Config controls document opening.
type Config struct {
	Logger observability.Logger
	Parser parser.Config
}

// Open reads and parses the PDF file at path.
func Open(ctx context.Context, path string, cfg Config) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", path, err, raw.ErrIOFailure)
	}
	return OpenBytes(ctx, data, cfg)
}

// OpenReader parses a PDF file from r. The whole file is read up front;
// the parser needs random access to follow the cross-reference chain.
func OpenReader(ctx context.Context, r io.ReaderAt, size int64, cfg Config) (*Document, error) {
	data := make([]byte, size)
	if _, err := r.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read document: %v: %w", err, raw.ErrIOFailure)
	}
	return OpenBytes(ctx, data, cfg)
}

// OpenBytes parses an in-memory PDF file.
func OpenBytes(ctx context.Context, data []byte, cfg Config) (*Document, error) {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	pcfg := cfg.Parser
	if pcfg.Logger == nil {
		pcfg.Logger = cfg.Logger
	}
	store, err := parser.NewDocumentParser(pcfg).ParseBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	doc := &Document{Store: store, logger: cfg.Logger}
	if err := doc.loadPageList(); err != nil {
		return nil, err
	}
	cfg.Logger.Debug("document open",
		observability.Int("pages", len(doc.pages)),
		observability.Int("objects", len(store.Objects)))
	return doc, nil
}

// New creates an empty document: a catalog and a page tree with no pages.
func New() *Document {
	store := raw.NewDocument()

	pagesDict := raw.Dict()
	pagesDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pagesDict.Set(raw.NameLiteral("Kids"), raw.NewArray())
	pagesDict.Set(raw.NameLiteral("Count"), raw.NumberInt(0))
	pagesRef := store.Put(pagesDict)

	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.Ref(pagesRef.Num, pagesRef.Gen))
	catalogRef := store.Put(catalog)

	store.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(catalogRef.Num, catalogRef.Gen))
	return &Document{Store: store, logger: observability.NopLogger{}}
}

// Close releases the document. Pixmaps and graft maps referencing it must
// be dropped first; they hold back-references, not ownership.
func (d *Document) Close() {
	d.closed = true
	d.Store = nil
	d.pages = nil
}

// Closed reports whether Close has been called.
func (d *Document) Closed() bool { return d.closed }

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.pages) }

// PageRef returns the object ref of the page at index.
func (d *Document) PageRef(index int) (raw.ObjectRef, error) {
	if index < 0 || index >= len(d.pages) {
		return raw.ObjectRef{}, fmt.Errorf("page %d of %d: %w", index, len(d.pages), raw.ErrInvalidArgument)
	}
	return d.pages[index], nil
}

// PageDict returns the page dictionary at index.
func (d *Document) PageDict(index int) (raw.Dictionary, error) {
	ref, err := d.PageRef(index)
	if err != nil {
		return nil, err
	}
	dict, ok := d.Store.Resolve(raw.RefObj{R: ref}).(raw.Dictionary)
	if !ok {
		return nil, fmt.Errorf("page %d object is not a dictionary: %w", index, raw.ErrCorrupt)
	}
	return dict, nil
}

// loadPageList walks the page tree depth-first, honoring nested /Kids
// nodes, with a visited set so cyclic trees terminate.
func (d *Document) loadPageList() error {
	catalog, _, ok := d.Store.Catalog()
	if !ok {
		return fmt.Errorf("no catalog: %w", raw.ErrCorrupt)
	}
	rootObj, ok := catalog.Get(raw.NameLiteral("Pages"))
	if !ok {
		return fmt.Errorf("catalog has no /Pages: %w", raw.ErrCorrupt)
	}
	d.pages = nil
	visited := make(map[raw.ObjectRef]bool)
	return d.walkPageTree(rootObj, visited)
}

func (d *Document) walkPageTree(node raw.Object, visited map[raw.ObjectRef]bool) error {
	if ref, ok := node.(raw.Reference); ok {
		if visited[ref.Ref()] {
			return nil
		}
		visited[ref.Ref()] = true
		dict, ok := d.Store.Resolve(ref).(raw.Dictionary)
		if !ok {
			return nil // dangling or malformed node drops out of the list
		}
		typ, _ := dict.Get(raw.NameLiteral("Type"))
		if n, ok := typ.(raw.Name); ok && n.Value() == "Page" {
			d.pages = append(d.pages, ref.Ref())
			return nil
		}
		kids, _ := dict.Get(raw.NameLiteral("Kids"))
		if arr, ok := d.Store.Resolve(kids).(raw.Array); ok {
			for i := 0; i < arr.Len(); i++ {
				kid, _ := arr.Get(i)
				if err := d.walkPageTree(kid, visited); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return nil
}

// ApplyRemap rewrites the page list after the store's ids were renumbered.
// The save pipeline calls this with the renumber map so page identity
// survives compaction.
func (d *Document) ApplyRemap(remap map[raw.ObjectRef]raw.ObjectRef) {
	for i, ref := range d.pages {
		if newRef, ok := remap[ref]; ok {
			d.pages[i] = newRef
		}
	}
}

// FileSize returns the size in bytes of the file at path.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return -1, fmt.Errorf("stat %s: %v: %w", path, err, raw.ErrIOFailure)
	}
	return info.Size(), nil
}
