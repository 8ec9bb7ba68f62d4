// Command pdfpress drives the engine from the shell: compress a file,
// merge several, inspect one, or rasterize a page to PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"os"

	"github.com/wudi/pdfpress/document"
	"github.com/wudi/pdfpress/observability"
	"github.com/wudi/pdfpress/optimize"
	"github.com/wudi/pdfpress/render"
	"github.com/wudi/pdfpress/writer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "compress":
		err = runCompress(os.Args[2:])
	case "merge":
		err = runMerge(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "render":
		err = runRender(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfpress: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: pdfpress <command> [flags]

Commands:
  compress  rewrite a PDF with image recompression and garbage collection
  merge     graft the pages of several PDFs into one
  info      print document structure summary
  render    rasterize one page to PNG
`)
}

func runCompress(args []string) error {
	fs := flag.NewFlagSet("compress", flag.ExitOnError)
	quality := fs.Int("quality", 80, "JPEG quality for re-encoded images (1-100)")
	dpi := fs.Float64("dpi", 150, "target resolution for downsampling")
	garbage := fs.Int("garbage", 3, "garbage collection level (0-4)")
	keepLossless := fs.Bool("keep-lossless", false, "never convert lossless images to JPEG")
	sanitize := fs.Bool("sanitize", false, "strip scripting hooks")
	verbose := fs.Bool("v", false, "log progress to stderr")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("compress: want <input> <output>")
	}

	opts := writer.DefaultOptions()
	opts.GarbageLevel = *garbage
	opts.Sanitize = *sanitize
	opts.Planner = optimize.PlannerConfig{
		JPEGQuality:     *quality,
		TargetDPI:       *dpi,
		DPIHeadroom:     50,
		ConvertLossless: !*keepLossless,
	}
	if *verbose {
		opts.Logger = stderrLogger{}
	}

	before, after, err := writer.CompressFile(context.Background(), fs.Arg(0), fs.Arg(1), opts)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d -> %d bytes (%.1f%%)\n", fs.Arg(1), before, after,
		100*float64(after)/float64(before))
	return nil
}

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	out := fs.String("o", "merged.pdf", "output path")
	verbose := fs.Bool("v", false, "log progress to stderr")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("merge: want at least one input")
	}

	cfg := document.Config{}
	if *verbose {
		cfg.Logger = stderrLogger{}
	}
	ctx := context.Background()
	dst := document.New()
	gm := document.NewGraftMap(dst)
	for _, path := range fs.Args() {
		src, err := document.Open(ctx, path, cfg)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for i := 0; i < src.PageCount(); i++ {
			if err := document.Graft(ctx, gm, dst, -1, src, i); err != nil {
				src.Close()
				return fmt.Errorf("%s page %d: %w", path, i, err)
			}
		}
		src.Close()
	}

	opts := writer.DefaultOptions()
	opts.CompressImages = false
	if *verbose {
		opts.Logger = stderrLogger{}
	}
	if _, err := writer.SaveFile(ctx, dst, *out, opts); err != nil {
		return err
	}
	fmt.Printf("%s: %d pages, %d objects copied\n", *out, dst.PageCount(), gm.Copied)
	return nil
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("info: want <input>")
	}
	path := fs.Arg(0)

	size, err := document.FileSize(path)
	if err != nil {
		return err
	}
	doc, err := document.Open(context.Background(), path, document.Config{})
	if err != nil {
		return err
	}
	defer doc.Close()

	fmt.Printf("file:    %s (%d bytes)\n", path, size)
	fmt.Printf("version: %s\n", doc.Store.Version)
	fmt.Printf("objects: %d\n", len(doc.Store.Objects))
	fmt.Printf("pages:   %d\n", doc.PageCount())
	for i := 0; i < doc.PageCount(); i++ {
		w, h, err := doc.PageSize(i)
		if err != nil {
			return err
		}
		fmt.Printf("  page %d: %.1f x %.1f pt\n", i+1, w, h)
	}
	return nil
}

func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	page := fs.Int("page", 1, "page number, 1-based")
	scale := fs.Float64("scale", 1.0, "zoom factor (1.0 = 72 dpi)")
	out := fs.String("o", "page.png", "output PNG path")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("render: want <input>")
	}

	doc, err := document.Open(context.Background(), fs.Arg(0), document.Config{})
	if err != nil {
		return err
	}
	defer doc.Close()

	pix, err := render.RenderPage(context.Background(), doc, *page-1, *scale, render.Config{})
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, pix.RGBA()); err != nil {
		return err
	}
	fmt.Printf("%s: %dx%d\n", *out, pix.Width, pix.Height)
	return nil
}

// stderrLogger prints engine log lines to stderr for -v runs.
type stderrLogger struct{}

func (l stderrLogger) log(level, msg string, fields []observability.Field) {
	fmt.Fprintf(os.Stderr, "%s %s", level, msg)
	for _, f := range fields {
		fmt.Fprintf(os.Stderr, " %s=%v", f.Key(), f.Value())
	}
	fmt.Fprintln(os.Stderr)
}

func (l stderrLogger) Debug(msg string, fields ...observability.Field) { l.log("DEBUG", msg, fields) }
func (l stderrLogger) Info(msg string, fields ...observability.Field)  { l.log("INFO", msg, fields) }
func (l stderrLogger) Warn(msg string, fields ...observability.Field)  { l.log("WARN", msg, fields) }
func (l stderrLogger) Error(msg string, fields ...observability.Field) { l.log("ERROR", msg, fields) }

func (l stderrLogger) With(...observability.Field) observability.Logger { return l }
