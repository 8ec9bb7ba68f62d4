// Package parser turns raw PDF bytes into a populated object store. It is
// consumed once per document open: cross-reference resolution, object
// loading and object-stream expansion all happen here.
package parser

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/observability"
	"github.com/wudi/pdfpress/xref"
)

// Config controls document parsing.
type Config struct {
	// MaxObjects caps how many indirect objects are loaded; 0 means the
	// default limit.
	MaxObjects int
	Logger     observability.Logger
}

const defaultMaxObjects = 1 << 22

// DocumentParser builds a raw.Document from file bytes.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.MaxObjects == 0 {
		cfg.MaxObjects = defaultMaxObjects
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &DocumentParser{cfg: cfg}
}

var headerVersion = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

// Parse reads everything from r and loads the full object graph.
// Cancellation is checked between objects, never inside one.
func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt, size int64) (*raw.Document, error) {
	data := make([]byte, size)
	if _, err := r.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read source: %v: %w", err, raw.ErrIOFailure)
	}
	return p.ParseBytes(ctx, data)
}

// ParseBytes loads the full object graph from in-memory file bytes.
func (p *DocumentParser) ParseBytes(ctx context.Context, data []byte) (*raw.Document, error) {
	doc := raw.NewDocument()
	doc.Version = detectVersion(data)

	table, err := xref.Resolve(data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	if table.Repaired {
		p.cfg.Logger.Warn("xref unusable, rebuilt by scanning object headers",
			observability.Int("objects", len(table.Entries)))
	}
	doc.Trailer = table.Trailer

	loaded := 0
	// First pass: uncompressed objects, so object-stream containers exist
	// before their members are expanded.
	for num, e := range table.Entries {
		if e.Type != xref.EntryUncompressed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if loaded >= p.cfg.MaxObjects {
			return nil, fmt.Errorf("object limit %d exceeded: %w", p.cfg.MaxObjects, raw.ErrCorrupt)
		}
		obj, declared, err := xref.ParseIndirectHeaderAt(data, e.Offset)
		if err != nil {
			// A single unreadable object drops out of the graph; references
			// to it resolve lazily to Null with a diagnostic.
			p.cfg.Logger.Warn("skipping unreadable object",
				observability.Int("num", num), observability.Error("err", err))
			continue
		}
		ref := raw.ObjectRef{Num: num, Gen: e.Gen}
		if declared.Num != num {
			// Trust the in-file header over a stale xref entry.
			ref = declared
		}
		doc.Objects[ref] = obj
		loaded++
	}

	// Second pass: expand object streams.
	for num, e := range table.Entries {
		if e.Type != xref.EntryInObjectStream {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, exists := doc.Objects[raw.ObjectRef{Num: num, Gen: 0}]; exists {
			continue
		}
		obj, err := p.loadFromObjectStream(doc, e.StreamNum, e.StreamIdx)
		if err != nil {
			p.cfg.Logger.Warn("skipping object-stream member",
				observability.Int("num", num), observability.Error("err", err))
			continue
		}
		doc.Objects[raw.ObjectRef{Num: num, Gen: 0}] = obj
		loaded++
	}

	if _, _, ok := doc.Catalog(); !ok {
		return nil, fmt.Errorf("document has no catalog: %w", raw.ErrCorrupt)
	}
	p.cfg.Logger.Debug("document parsed",
		observability.Int("objects", len(doc.Objects)),
		observability.String("version", doc.Version))
	return doc, nil
}

func detectVersion(data []byte) string {
	limit := 1024
	if len(data) < limit {
		limit = len(data)
	}
	if m := headerVersion.FindSubmatch(data[:limit]); m != nil {
		return string(m[1])
	}
	return "1.7"
}

func (p *DocumentParser) loadFromObjectStream(doc *raw.Document, containerNum, idx int) (raw.Object, error) {
	container, ok := doc.Objects[raw.ObjectRef{Num: containerNum, Gen: 0}]
	if !ok {
		return nil, fmt.Errorf("object stream %d missing: %w", containerNum, raw.ErrNotFound)
	}
	members, err := p.expandObjectStream(container)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(members) {
		return nil, fmt.Errorf("object stream %d index %d out of range: %w", containerNum, idx, raw.ErrCorrupt)
	}
	return members[idx].obj, nil
}
