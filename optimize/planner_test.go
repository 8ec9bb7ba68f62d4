package optimize

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfpress/contentstream"
	"github.com/wudi/pdfpress/coords"
	"github.com/wudi/pdfpress/filters"
)

func TestPlanThreshold(t *testing.T) {
	cfg := DefaultPlannerConfig()
	jpeg := filters.ImageInfo{Width: 1200, Height: 900, Filter: "DCTDecode", ColorSpace: "DeviceRGB"}

	tests := []struct {
		name       string
		dpi        float64
		actionable bool
	}{
		{"well above threshold", 600, true},
		{"just above threshold", 201, true},
		{"at threshold", 200, false},
		{"between target and threshold", 180, false},
		{"below target", 96, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Plan(jpeg, tt.dpi, cfg)
			if plan.Actionable() != tt.actionable {
				t.Fatalf("Plan at %.0f dpi: actionable = %v, want %v", tt.dpi, plan.Actionable(), tt.actionable)
			}
		})
	}
}

func TestPlanRecompressesLossyToTarget(t *testing.T) {
	cfg := DefaultPlannerConfig()
	info := filters.ImageInfo{Width: 2400, Height: 1800, Filter: "DCTDecode", ColorSpace: "DeviceRGB"}
	want := RewritePlan{
		Recompress:    true,
		TargetCodec:   "DCTDecode",
		Quality:       cfg.JPEGQuality,
		DownsampleDPI: cfg.TargetDPI,
	}
	if diff := cmp.Diff(want, Plan(info, 600, cfg)); diff != "" {
		t.Fatalf("lossy image plan (-want +got):\n%s", diff)
	}
}

func TestPlanLosslessConversionPolicy(t *testing.T) {
	flate := filters.ImageInfo{Width: 2400, Height: 1800, Filter: "FlateDecode", ColorSpace: "DeviceRGB"}

	cfg := DefaultPlannerConfig()
	plan := Plan(flate, 600, cfg)
	if !plan.Recompress || plan.TargetCodec != "DCTDecode" {
		t.Fatalf("ConvertLossless on: plan = %+v, want DCT recompress", plan)
	}

	cfg.ConvertLossless = false
	plan = Plan(flate, 600, cfg)
	if plan.Recompress {
		t.Fatalf("ConvertLossless off: plan recompresses a lossless image")
	}
	if plan.TargetCodec != "FlateDecode" || plan.DownsampleDPI != cfg.TargetDPI {
		t.Fatalf("ConvertLossless off: plan = %+v, want flate downsample only", plan)
	}
}

func TestPlanDisabledTarget(t *testing.T) {
	info := filters.ImageInfo{Width: 2400, Height: 1800, Filter: "DCTDecode"}
	if plan := Plan(info, 600, PlannerConfig{TargetDPI: 0}); plan.Actionable() {
		t.Fatalf("TargetDPI 0 must disable planning, got %+v", plan)
	}
}

func TestEffectiveDPI(t *testing.T) {
	info := filters.ImageInfo{Width: 300, Height: 150}

	// One inch square placement: the wider axis carries 300 source pixels.
	pl := contentstream.Placement{Width: 72, Height: 72, CTM: coords.Scale(72, 72)}
	if got := EffectiveDPI(info, pl); math.Abs(got-300) > 1e-9 {
		t.Fatalf("EffectiveDPI = %v, want 300", got)
	}

	// Stretched to two inches wide: 150 dpi horizontally, 150 vertically.
	pl = contentstream.Placement{Width: 144, Height: 72}
	if got := EffectiveDPI(info, pl); math.Abs(got-150) > 1e-9 {
		t.Fatalf("EffectiveDPI = %v, want 150", got)
	}

	if got := EffectiveDPI(info, contentstream.Placement{}); got != 0 {
		t.Fatalf("degenerate placement dpi = %v, want 0", got)
	}
}
