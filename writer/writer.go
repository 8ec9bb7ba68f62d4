// Package writer serializes a document back to the file format. Save runs
// the full pipeline: image rewriting, stream compression, content-stream
// cleaning, the garbage ladder, then deterministic serialization with a
// classic xref table or, at the top garbage level, an xref stream.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wudi/pdfpress/contentstream"
	"github.com/wudi/pdfpress/document"
	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/observability"
	"github.com/wudi/pdfpress/optimize"
)

// Options controls one save. The zero value writes the document as-is:
// no garbage collection, no recompression.
type Options struct {
	// GarbageLevel selects the compaction ladder rung, 0-4. Levels: 1
	// sweeps unreachable objects, 2 also merges duplicates, 3 also
	// renumbers densely, 4 additionally writes the xref as a stream.
	GarbageLevel int

	// CompressStreams flate-encodes streams stored without a filter.
	CompressStreams bool

	// CompressImages runs the image rewrite pass under Planner.
	CompressImages bool

	// CleanContentStreams reserializes page content, dropping no-op
	// operations.
	CleanContentStreams bool

	// Sanitize strips document-level and page-level scripting hooks.
	Sanitize bool

	// Linearize requests web-optimized output. Accepted and recorded;
	// the writer does not reorder for byte ranges yet.
	Linearize bool

	// RegenerateAppearances requests fresh annotation appearance streams.
	// Accepted and recorded; appearances are currently passed through.
	RegenerateAppearances bool

	Planner optimize.PlannerConfig
	Codec   filters.Codec

	Logger   observability.Logger
	Tracer   observability.Tracer
	Progress observability.Progress
}

// DefaultOptions is the conventional compression preset: garbage level 3,
// stream and image compression on.
func DefaultOptions() Options {
	return Options{
		GarbageLevel:        3,
		CompressStreams:     true,
		CompressImages:      true,
		CleanContentStreams: true,
		Planner:             optimize.DefaultPlannerConfig(),
	}
}

// Result reports what one save did. SubFailures holds per-image rewrite
// errors; they degrade the output, never fail the save.
type Result struct {
	BytesWritten    int64
	Swept           int
	Merged          int
	ImagesRewritten int
	SubFailures     []optimize.ImageFailure
	Duration        time.Duration
}

// Save serializes doc to w under opts.
func Save(ctx context.Context, doc *document.Document, w io.Writer, opts Options) (Result, error) {
	var result Result
	if doc == nil || doc.Closed() {
		return result, fmt.Errorf("save closed document: %w", raw.ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.NopTracer()
	}
	if opts.GarbageLevel < 0 || opts.GarbageLevel > 4 {
		return result, fmt.Errorf("garbage level %d: %w", opts.GarbageLevel, raw.ErrInvalidArgument)
	}

	start := time.Now()
	ctx, span := opts.Tracer.StartSpan(ctx, "pdf.save")
	defer span.Finish()

	if opts.CompressImages {
		rr, err := optimize.RewriteImages(ctx, doc, optimize.RewriteConfig{
			Planner:  opts.Planner,
			Codec:    opts.Codec,
			Logger:   opts.Logger,
			Progress: opts.Progress,
		})
		if err != nil {
			span.SetError(err)
			return result, err
		}
		result.ImagesRewritten = rr.Rewritten
		result.SubFailures = rr.Failures
	}

	if opts.CleanContentStreams {
		if err := cleanContentStreams(ctx, doc, opts); err != nil {
			span.SetError(err)
			return result, err
		}
	}

	if opts.Sanitize {
		sanitize(doc.Store, opts.Logger)
	}

	if opts.CompressStreams {
		compressStreams(doc.Store)
	}

	stats := optimize.Compact(doc.Store, opts.GarbageLevel)
	result.Swept = stats.Swept
	result.Merged = stats.Merged
	if stats.Remap != nil {
		doc.ApplyRemap(stats.Remap)
	}

	if opts.Linearize {
		opts.Logger.Debug("linearize requested; writing standard layout")
	}
	if opts.RegenerateAppearances {
		opts.Logger.Debug("appearance regeneration requested; appearances passed through")
	}

	data := serializeDocument(doc.Store, stats.XRefStream)
	n, err := w.Write(data)
	result.BytesWritten = int64(n)
	result.Duration = time.Since(start)
	if err != nil {
		span.SetError(err)
		return result, fmt.Errorf("write output: %v: %w", err, raw.ErrIOFailure)
	}

	span.SetTag(observability.MetricSweptObjects, result.Swept)
	span.SetTag(observability.MetricMergedObjects, result.Merged)
	span.SetTag(observability.MetricImageRewrites, result.ImagesRewritten)
	opts.Logger.Info("document saved",
		observability.Int64("bytes", result.BytesWritten),
		observability.Int("swept", result.Swept),
		observability.Int("merged", result.Merged),
		observability.Int("images_rewritten", result.ImagesRewritten),
		observability.Int("image_failures", len(result.SubFailures)),
		observability.Int64("duration_ms", result.Duration.Milliseconds()))
	return result, nil
}

// SaveFile writes doc to path atomically: the bytes land in a temp file in
// the same directory, then rename into place. A failed save never leaves a
// truncated file at path.
func SaveFile(ctx context.Context, doc *document.Document, path string, opts Options) (Result, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pdfpress-*")
	if err != nil {
		return Result{}, fmt.Errorf("create temp in %s: %v: %w", dir, err, raw.ErrIOFailure)
	}
	tmpName := tmp.Name()
	result, err := Save(ctx, doc, tmp, opts)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %v: %w", tmpName, closeErr, raw.ErrIOFailure)
	}
	if err != nil {
		os.Remove(tmpName)
		return result, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return result, fmt.Errorf("rename to %s: %v: %w", path, err, raw.ErrIOFailure)
	}
	return result, nil
}

// CompressFile opens the document at inPath and saves it compressed to
// outPath, returning the before and after file sizes.
func CompressFile(ctx context.Context, inPath, outPath string, opts Options) (before, after int64, err error) {
	before, err = document.FileSize(inPath)
	if err != nil {
		return before, -1, err
	}
	doc, err := document.Open(ctx, inPath, document.Config{Logger: opts.Logger})
	if err != nil {
		return before, -1, err
	}
	defer doc.Close()
	if _, err := SaveFile(ctx, doc, outPath, opts); err != nil {
		return before, -1, err
	}
	after, err = document.FileSize(outPath)
	return before, after, err
}

// cleanContentStreams reserializes each page's content through the
// normalizer. Pages whose content fails to parse keep their original
// bytes.
func cleanContentStreams(ctx context.Context, doc *document.Document, opts Options) error {
	for i := 0; i < doc.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := doc.ContentData(i, filters.DecodeStream)
		if err != nil || len(data) == 0 {
			continue
		}
		cleaned, err := contentstream.Clean(data)
		if err != nil {
			opts.Logger.Warn("content clean skipped",
				observability.Int("page", i), observability.Error("err", err))
			continue
		}
		if err := replacePageContent(doc, i, cleaned, opts.CompressStreams); err != nil {
			return err
		}
	}
	return nil
}

// replacePageContent installs data as the page's single content stream.
// Multi-stream /Contents arrays collapse to one stream; the old streams
// become unreachable and fall to the sweep.
func replacePageContent(doc *document.Document, index int, data []byte, compress bool) error {
	page, err := doc.PageDict(index)
	if err != nil {
		return err
	}
	dict := raw.Dict()
	if compress {
		data = filters.EncodeFlate(data)
		dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	}
	ref := doc.Store.Put(raw.NewStream(dict, data))
	page.Set(raw.NameLiteral("Contents"), raw.Ref(ref.Num, ref.Gen))
	return nil
}

// compressStreams flate-encodes every stream stored without a filter.
// Already-filtered streams, including images, are left alone.
func compressStreams(store *raw.Document) {
	for _, obj := range store.Objects {
		stream, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if _, filtered := stream.Dict.Get(raw.NameLiteral("Filter")); filtered {
			continue
		}
		if typ, ok := stream.Dict.Get(raw.NameLiteral("Type")); ok {
			if n, ok := typ.(raw.Name); ok && n.Value() == "XRef" {
				continue
			}
		}
		encoded := filters.EncodeFlate(stream.Data)
		if len(encoded) >= len(stream.Data) {
			continue // incompressible; keep the original
		}
		stream.Dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
		stream.SetData(encoded)
	}
}

// sanitize strips scripting entry points: the catalog's /OpenAction and
// /AA, the /Names JavaScript tree, and per-page /AA hooks.
func sanitize(store *raw.Document, logger observability.Logger) {
	removed := 0
	catalog, _, ok := store.Catalog()
	if ok {
		for _, key := range []string{"OpenAction", "AA"} {
			if _, present := catalog.Get(raw.NameLiteral(key)); present {
				catalog.Delete(raw.NameLiteral(key))
				removed++
			}
		}
		if names, ok := catalog.Get(raw.NameLiteral("Names")); ok {
			if nd, ok := store.Resolve(names).(raw.Dictionary); ok {
				if _, present := nd.Get(raw.NameLiteral("JavaScript")); present {
					nd.Delete(raw.NameLiteral("JavaScript"))
					removed++
				}
			}
		}
	}
	for _, obj := range store.Objects {
		dict, ok := obj.(raw.Dictionary)
		if !ok {
			continue
		}
		if typ, ok := dict.Get(raw.NameLiteral("Type")); ok {
			if n, ok := typ.(raw.Name); ok && n.Value() == "Page" {
				if _, present := dict.Get(raw.NameLiteral("AA")); present {
					dict.Delete(raw.NameLiteral("AA"))
					removed++
				}
			}
		}
	}
	if removed > 0 {
		logger.Debug("sanitize removed scripting hooks", observability.Int("removed", removed))
	}
}

// serializeDocument renders the store to its byte form: header, objects in
// ascending id order, then the cross-reference and trailer.
func serializeDocument(store *raw.Document, xrefStream bool) []byte {
	var buf bytes.Buffer
	version := store.Version
	if version == "" {
		version = "1.7"
	}
	fmt.Fprintf(&buf, "%%PDF-%s\n", version)
	// Binary marker comment keeps transfer tools treating the file as binary.
	buf.WriteString("%\xE2\xE3\xCF\xD3\n")

	offsets := make(map[int]int64, len(store.Objects))
	maxNum := 0
	for _, ref := range store.SortedRefs() {
		offsets[ref.Num] = int64(buf.Len())
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
		serializeObject(&buf, ref, store.Objects[ref])
	}

	trailer := trailerDict(store, maxNum, xrefStream)
	if xrefStream {
		writeXRefStream(&buf, offsets, maxNum, trailer)
	} else {
		writeXRefTable(&buf, offsets, maxNum, trailer)
	}
	return buf.Bytes()
}

// trailerDict builds a fresh trailer carrying only the keys the new file
// needs; stale /Prev and /XRefStm chains from the source are dropped.
func trailerDict(store *raw.Document, maxNum int, xrefStream bool) raw.Dictionary {
	out := raw.Dict()
	size := maxNum + 1
	if xrefStream {
		size++ // the xref stream object itself
	}
	out.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	if store.Trailer != nil {
		for _, key := range []string{"Root", "Info", "ID"} {
			if v, ok := store.Trailer.Get(raw.NameLiteral(key)); ok {
				out.Set(raw.NameLiteral(key), v)
			}
		}
	}
	return out
}
