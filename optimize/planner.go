// Package optimize holds the save-time transforms: the image rewrite
// planner and applier, and the garbage ladder (sweep, dedup, renumber)
// that compacts the object graph.
package optimize

import (
	"github.com/wudi/pdfpress/contentstream"
	"github.com/wudi/pdfpress/filters"
)

// PlannerConfig tunes the image rewrite policy.
type PlannerConfig struct {
	// JPEGQuality is the DCT quality used when re-encoding, 1-100.
	JPEGQuality int
	// TargetDPI is the resolution images are downsampled toward.
	TargetDPI float64
	// DPIHeadroom widens the trigger threshold above TargetDPI so images
	// already close to target are not re-encoded for negligible gain.
	DPIHeadroom float64
	// ConvertLossless re-encodes lossless (Flate, palette) images with the
	// lossy codec. This trades visible quality for size and is on by
	// default; callers who need pixel-exact lossless images must clear it.
	ConvertLossless bool
}

// DefaultPlannerConfig mirrors the conventional compression preset:
// quality 80, 150 DPI target with 50 DPI of headroom, lossless conversion
// enabled.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		JPEGQuality:     80,
		TargetDPI:       150,
		DPIHeadroom:     50,
		ConvertLossless: true,
	}
}

// RewritePlan is the per-image decision record. Recompress and
// DownsampleDPI are independent: a plan may set either or both.
type RewritePlan struct {
	Recompress    bool
	TargetCodec   string // "DCTDecode" or "FlateDecode"
	Quality       int
	DownsampleDPI float64 // 0 means keep dimensions
}

// Actionable reports whether the plan changes the image at all.
func (p RewritePlan) Actionable() bool { return p.Recompress || p.DownsampleDPI > 0 }

// Plan decides what to do with one image placed at effectiveDPI. Pure
// function of its inputs; the store is not touched. An image qualifies
// when its effective resolution exceeds TargetDPI + DPIHeadroom. Qualified
// images are re-encoded with the lossy codec at the configured quality
// regardless of their current codec, unless the source is lossless and
// ConvertLossless is off, in which case only downsampling applies.
func Plan(info filters.ImageInfo, effectiveDPI float64, cfg PlannerConfig) RewritePlan {
	if cfg.TargetDPI <= 0 || effectiveDPI <= cfg.TargetDPI+cfg.DPIHeadroom {
		return RewritePlan{}
	}
	plan := RewritePlan{DownsampleDPI: cfg.TargetDPI}
	if !info.Lossy() && !cfg.ConvertLossless {
		// Keep the lossless codec; shrink pixels only.
		plan.TargetCodec = "FlateDecode"
		return plan
	}
	plan.Recompress = true
	plan.TargetCodec = "DCTDecode"
	plan.Quality = cfg.JPEGQuality
	return plan
}

// EffectiveDPI computes an image's displayed resolution from its pixel
// dimensions and one placement: source pixels over displayed inches. The
// larger axis governs, matching the downsampling trigger.
func EffectiveDPI(info filters.ImageInfo, placement contentstream.Placement) float64 {
	if placement.Width <= 0 || placement.Height <= 0 {
		return 0
	}
	dpiX := float64(info.Width) / (placement.Width / 72.0)
	dpiY := float64(info.Height) / (placement.Height / 72.0)
	if dpiX > dpiY {
		return dpiX
	}
	return dpiY
}
