// Package render rasterizes pages to RGBA pixmaps. Vector paths go
// through the freetype rasterizer, images through the x/image scalers,
// and text through a built-in bitmap face. Operators outside the
// supported set are skipped and counted, never fatal: a page renders as
// completely as the interpreter allows.
package render

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wudi/pdfpress/contentstream"
	"github.com/wudi/pdfpress/coords"
	"github.com/wudi/pdfpress/document"
	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/observability"
)

// Config controls rendering.
type Config struct {
	Logger observability.Logger
	Tracer observability.Tracer
}

// RenderPage rasterizes the page at index. scale maps page points to
// device pixels: 1.0 yields 72 DPI output, 2.0 yields 144 DPI. Pixel
// dimensions round up, so a 612x792 point page at scale 2.0 renders to
// 1224x1584.
func RenderPage(ctx context.Context, doc *document.Document, index int, scale float64, cfg Config) (*Pixmap, error) {
	if doc == nil || doc.Closed() {
		return nil, fmt.Errorf("render on closed document: %w", raw.ErrInvalidArgument)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("render scale %v: %w", scale, raw.ErrInvalidArgument)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}

	start := time.Now()
	ctx, span := cfg.Tracer.StartSpan(ctx, "pdf.render")
	defer span.Finish()

	box, err := doc.MediaBox(index)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	width := int(math.Ceil((box[2] - box[0]) * scale))
	height := int(math.Ceil((box[3] - box[1]) * scale))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	pix := newPixmap(width, height)

	// Page space has a bottom-left origin; the device CTM flips Y and
	// shifts the media box corner onto the pixmap origin.
	base := coords.Matrix{scale, 0, 0, -scale, -box[0] * scale, box[3] * scale}

	content, err := doc.ContentData(index, filters.DecodeStream)
	if err != nil {
		cfg.Logger.Warn("page content unreadable, rendering blank",
			observability.Int("page", index), observability.Error("err", err))
		content = nil
	}
	if len(content) > 0 {
		ops, perr := contentstream.Parse(content)
		if perr != nil {
			cfg.Logger.Warn("page content unparsable, rendering blank",
				observability.Int("page", index), observability.Error("err", perr))
		} else {
			page, err := doc.PageDict(index)
			if err != nil {
				span.SetError(err)
				return nil, err
			}
			it := newInterpreter(doc, pix.RGBA(), base, doc.InheritedResources(page))
			if err := it.run(ctx, ops); err != nil {
				span.SetError(err)
				return nil, err
			}
			if len(it.unsupported) > 0 {
				cfg.Logger.Debug("operators skipped",
					observability.Int("page", index),
					observability.Int("distinct_ops", len(it.unsupported)))
			}
		}
	}

	span.SetTag(observability.MetricRenderTime, time.Since(start).Milliseconds())
	cfg.Logger.Debug("page rendered",
		observability.Int("page", index),
		observability.Int("width", width),
		observability.Int("height", height),
		observability.Int64("duration_ms", time.Since(start).Milliseconds()))
	return pix, nil
}
