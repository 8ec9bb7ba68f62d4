package optimize

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/wudi/pdfpress/contentstream"
	"github.com/wudi/pdfpress/document"
	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/observability"
)

// RewriteConfig bundles the planner policy with the codec and reporting
// hooks for one RewriteImages pass.
type RewriteConfig struct {
	Planner  PlannerConfig
	Codec    filters.Codec
	Logger   observability.Logger
	Progress observability.Progress
}

// ImageFailure records one image the pass could not rewrite. Failures are
// collected, never fatal: a corrupt image among many leaves the rest
// rewritten and the original bytes of the bad one untouched.
type ImageFailure struct {
	Ref raw.ObjectRef
	Err error
}

// RewriteResult reports what one RewriteImages pass did.
type RewriteResult struct {
	Examined    int
	Rewritten   int
	BytesBefore int64
	BytesAfter  int64
	Failures    []ImageFailure
}

// imageUsage is one image XObject's worst-case placement across all pages.
type imageUsage struct {
	ref    raw.ObjectRef
	stream raw.Stream
	maxDPI float64
}

// RewriteImages re-encodes and downsamples the document's image XObjects
// according to the planner policy. Effective resolution is measured per
// placement by tracing each page's content stream; an image placed more
// than once is judged by its highest-resolution use, so no placement drops
// below target. Images never placed by a page content stream (for example
// only inside form XObjects) keep their original bytes.
func RewriteImages(ctx context.Context, doc *document.Document, cfg RewriteConfig) (RewriteResult, error) {
	var result RewriteResult
	if doc == nil || doc.Closed() {
		return result, fmt.Errorf("rewrite images on closed document: %w", raw.ErrInvalidArgument)
	}
	if cfg.Codec == nil {
		cfg.Codec = filters.StdCodec{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Progress == nil {
		cfg.Progress = observability.NopProgress
	}

	usages, err := collectImageUsages(ctx, doc)
	if err != nil {
		return result, err
	}

	refs := make([]raw.ObjectRef, 0, len(usages))
	for ref := range usages {
		refs = append(refs, ref)
	}
	raw.SortRefs(refs)

	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		u := usages[ref]
		result.Examined++
		before := int64(len(u.stream.RawData()))

		rewritten, rerr := rewriteOne(doc.Store, u, cfg)
		if rerr != nil {
			result.Failures = append(result.Failures, ImageFailure{Ref: ref, Err: rerr})
			cfg.Logger.Warn("image rewrite failed",
				observability.String("ref", ref.String()),
				observability.Error("err", rerr))
		} else if rewritten {
			result.Rewritten++
			result.BytesBefore += before
			result.BytesAfter += int64(len(u.stream.RawData()))
		}
		cfg.Progress(i+1, len(refs))
	}

	ratio := 1.0
	if result.BytesBefore > 0 {
		ratio = float64(result.BytesAfter) / float64(result.BytesBefore)
	}
	cfg.Logger.Debug("image rewrite pass done",
		observability.Int("examined", result.Examined),
		observability.Int("rewritten", result.Rewritten),
		observability.Int("failed", len(result.Failures)),
		observability.Int64("bytes_before", result.BytesBefore),
		observability.Int64("bytes_after", result.BytesAfter),
		observability.Float("size_ratio", ratio))
	return result, nil
}

// collectImageUsages traces every page's content stream and returns each
// placed image XObject keyed by object id, carrying its maximum effective
// DPI across placements.
func collectImageUsages(ctx context.Context, doc *document.Document) (map[raw.ObjectRef]*imageUsage, error) {
	usages := make(map[raw.ObjectRef]*imageUsage)
	store := doc.Store

	for i := 0; i < doc.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := doc.PageDict(i)
		if err != nil {
			return nil, err
		}
		content, err := doc.ContentData(i, filters.DecodeStream)
		if err != nil || len(content) == 0 {
			continue // a page with unreadable content contributes no placements
		}
		ops, err := contentstream.Parse(content)
		if err != nil {
			continue
		}
		placements := contentstream.TracePlacements(ops)
		if len(placements) == 0 {
			continue
		}

		xobjects := pageXObjects(doc, page)
		for _, pl := range placements {
			ref, ok := xobjects[pl.Name]
			if !ok {
				continue
			}
			stream, ok := store.Resolve(raw.RefObj{R: ref}).(raw.Stream)
			if !ok || !isImageXObject(store, stream.Dictionary()) {
				continue
			}
			info := imageInfoFromDict(store, stream.Dictionary())
			dpi := EffectiveDPI(info, pl)
			u, seen := usages[ref]
			if !seen {
				usages[ref] = &imageUsage{ref: ref, stream: stream, maxDPI: dpi}
			} else if dpi > u.maxDPI {
				u.maxDPI = dpi
			}
		}
	}
	return usages, nil
}

// pageXObjects maps resource names to XObject refs for one page.
func pageXObjects(doc *document.Document, page raw.Dictionary) map[string]raw.ObjectRef {
	out := make(map[string]raw.ObjectRef)
	res := doc.InheritedResources(page)
	if res == nil {
		return out
	}
	xo, ok := res.Get(raw.NameLiteral("XObject"))
	if !ok {
		return out
	}
	dict, ok := doc.Store.Resolve(xo).(raw.Dictionary)
	if !ok {
		return out
	}
	for _, k := range dict.Keys() {
		v, _ := dict.Get(k)
		if ref, ok := v.(raw.Reference); ok {
			out[k.Value()] = ref.Ref()
		}
	}
	return out
}

func isImageXObject(store *raw.Document, dict raw.Dictionary) bool {
	sub, _ := dict.Get(raw.NameLiteral("Subtype"))
	n, ok := store.Resolve(sub).(raw.Name)
	if !ok || n.Value() != "Image" {
		return false
	}
	if mask, ok := dict.Get(raw.NameLiteral("ImageMask")); ok {
		if b, ok := store.Resolve(mask).(raw.Boolean); ok && b.Value() {
			// Stencil masks carry paint, not pixels; leave them alone.
			return false
		}
	}
	return true
}

// imageInfoFromDict pulls the pixel-level description out of an image
// XObject's stream dictionary.
func imageInfoFromDict(store *raw.Document, dict raw.Dictionary) filters.ImageInfo {
	info := filters.ImageInfo{
		Width:            int(raw.Int(store.Resolve(mustGet(dict, "Width")), 0)),
		Height:           int(raw.Int(store.Resolve(mustGet(dict, "Height")), 0)),
		BitsPerComponent: int(raw.Int(store.Resolve(mustGet(dict, "BitsPerComponent")), 8)),
	}
	if cs, ok := dict.Get(raw.NameLiteral("ColorSpace")); ok {
		switch t := store.Resolve(cs).(type) {
		case raw.Name:
			info.ColorSpace = t.Value()
		case raw.Array:
			// Family name leads the array form (Indexed, ICCBased, ...).
			if t.Len() > 0 {
				head, _ := t.Get(0)
				if n, ok := store.Resolve(head).(raw.Name); ok {
					info.ColorSpace = n.Value()
				}
			}
		}
	}
	if names, _ := filters.FilterChain(dict); len(names) > 0 {
		info.Filter = names[len(names)-1]
	}
	return info
}

func mustGet(dict raw.Dictionary, key string) raw.Object {
	v, ok := dict.Get(raw.NameLiteral(key))
	if !ok {
		return raw.NullObj{}
	}
	return v
}

// rewriteOne applies the plan to a single image. Returns false with a nil
// error when the plan is a no-op.
func rewriteOne(store *raw.Document, u *imageUsage, cfg RewriteConfig) (bool, error) {
	dict := u.stream.Dictionary()
	info := imageInfoFromDict(store, dict)
	plan := Plan(info, u.maxDPI, cfg.Planner)
	if !plan.Actionable() {
		return false, nil
	}

	img, err := cfg.Codec.DecodeImage(u.stream, info)
	if err != nil {
		return false, err
	}

	newW, newH := info.Width, info.Height
	if plan.DownsampleDPI > 0 && u.maxDPI > plan.DownsampleDPI {
		scale := plan.DownsampleDPI / u.maxDPI
		newW = int(math.Round(float64(info.Width) * scale))
		newH = int(math.Round(float64(info.Height) * scale))
		if newW < 1 {
			newW = 1
		}
		if newH < 1 {
			newH = 1
		}
		img = cfg.Codec.Resample(img, newW, newH)
	}

	switch plan.TargetCodec {
	case "DCTDecode":
		data, err := cfg.Codec.EncodeJPEG(img, plan.Quality)
		if err != nil {
			return false, err
		}
		colorSpace := "DeviceRGB"
		if filters.IsGray(img) {
			colorSpace = "DeviceGray"
		}
		setImageStream(u.stream, data, newW, newH, colorSpace, "DCTDecode")
	case "FlateDecode":
		raster, colorSpace := packRaster(img)
		setImageStream(u.stream, filters.EncodeFlate(raster), newW, newH, colorSpace, "FlateDecode")
	default:
		return false, nil
	}
	return true, nil
}

// setImageStream installs the new payload and rewrites the dictionary's
// pixel metadata to match. Stale decode parameters from the old codec are
// dropped.
func setImageStream(stream raw.Stream, data []byte, w, h int, colorSpace, filter string) {
	s := stream.(*raw.StreamObj)
	dict := s.Dict
	dict.Set(raw.NameLiteral("Width"), raw.NumberInt(int64(w)))
	dict.Set(raw.NameLiteral("Height"), raw.NumberInt(int64(h)))
	dict.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
	dict.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral(colorSpace))
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral(filter))
	dict.Delete(raw.NameLiteral("DecodeParms"))
	dict.Delete(raw.NameLiteral("Decode"))
	s.SetData(data)
}

// packRaster flattens img to 8-bit samples for lossless storage: gray
// images to one component per pixel, everything else to RGB triples.
func packRaster(img image.Image) ([]byte, string) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if filters.IsGray(img) {
		out := make([]byte, 0, w*h)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				g, _, _, _ := img.At(x, y).RGBA()
				out = append(out, byte(g>>8))
			}
		}
		return out, "DeviceGray"
	}
	out := make([]byte, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			out = append(out, byte(r>>8), byte(g>>8), byte(bb>>8))
		}
	}
	return out, "DeviceRGB"
}
