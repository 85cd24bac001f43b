package enhance

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

// gradientImage gives the filters real structure to work on.
func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 255 / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

type failingEnhancer struct{}

func (failingEnhancer) Enhance(ctx context.Context, img image.Image) (image.Image, error) {
	return nil, errors.New("model not loaded")
}

type doublingEnhancer struct{}

func (doublingEnhancer) Enhance(ctx context.Context, img image.Image) (image.Image, error) {
	b := img.Bounds()
	return image.NewRGBA(image.Rect(0, 0, b.Dx()*2, b.Dy()*2)), nil
}

func TestTierSize(t *testing.T) {
	cases := []struct {
		tier ResolutionTier
		want int
	}{
		{Tier4K, 512},
		{Tier1080p, 256},
		{Tier720p, 128},
		{ResolutionTier("8k"), 512}, // unknown tiers fall back to 4k
	}
	for _, tc := range cases {
		if got := TierSize(tc.tier); got != tc.want {
			t.Errorf("TierSize(%q) = %d, want %d", tc.tier, got, tc.want)
		}
	}
}

func TestFallbackEnhancerUpscales(t *testing.T) {
	enhancer := NewFallbackEnhancer()

	out, err := enhancer.Enhance(context.Background(), gradientImage(32, 24))
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if out.Bounds().Dx() != 128 || out.Bounds().Dy() != 96 {
		t.Errorf("Expected 4x upscale (128x96), got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestFallbackEnhancerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFallbackEnhancer().Enhance(ctx, gradientImage(8, 8))
	if err == nil {
		t.Fatal("Expected error from cancelled context")
	}
}

func TestEnhanceFaceTierDimensions(t *testing.T) {
	face := NewFaceEnhancer(nil)

	for _, tier := range []ResolutionTier{Tier4K, Tier1080p, Tier720p} {
		out, err := face.EnhanceFace(context.Background(), gradientImage(40, 40), tier)
		if err != nil {
			t.Fatalf("EnhanceFace(%s) failed: %v", tier, err)
		}
		want := TierSize(tier)
		if out.Bounds().Dx() != want || out.Bounds().Dy() != want {
			t.Errorf("Tier %s: expected %dx%d, got %dx%d",
				tier, want, want, out.Bounds().Dx(), out.Bounds().Dy())
		}
	}
}

func TestEnhanceFaceFallsBackOnPrimaryFailure(t *testing.T) {
	face := NewFaceEnhancer(failingEnhancer{})

	out, err := face.EnhanceFace(context.Background(), gradientImage(40, 40), Tier1080p)
	if err != nil {
		t.Fatalf("Expected fallback to absorb the failure, got %v", err)
	}
	if out.Bounds().Dx() != 256 {
		t.Errorf("Expected tier size 256, got %d", out.Bounds().Dx())
	}
}

func TestEnhanceFaceUsesPrimary(t *testing.T) {
	face := NewFaceEnhancer(doublingEnhancer{})

	out, err := face.EnhanceFace(context.Background(), gradientImage(40, 40), Tier720p)
	if err != nil {
		t.Fatalf("EnhanceFace failed: %v", err)
	}
	if out.Bounds().Dx() != 128 {
		t.Errorf("Expected tier size 128, got %d", out.Bounds().Dx())
	}
}

func TestCompareQualityIdentical(t *testing.T) {
	img := gradientImage(64, 64)

	report := CompareQuality(img, img)
	if !math.IsInf(report.PSNR, 1) {
		t.Errorf("Expected infinite PSNR for identical images, got %f", report.PSNR)
	}
	if math.Abs(report.SSIM-1.0) > 1e-6 {
		t.Errorf("Expected SSIM 1.0 for identical images, got %f", report.SSIM)
	}
	if math.Abs(report.ImprovementRatio-1.0) > 1e-6 {
		t.Errorf("Expected improvement ratio 1.0, got %f", report.ImprovementRatio)
	}
}

func TestCompareQualitySharpening(t *testing.T) {
	original := gradientImage(64, 64)
	sharpened := sharpen(original)

	report := CompareQuality(original, sharpened)
	if report.SharpnessEnhanced < report.SharpnessOriginal {
		t.Errorf("Sharpening should not reduce Laplacian variance: %f -> %f",
			report.SharpnessOriginal, report.SharpnessEnhanced)
	}
	if report.SSIM <= 0 || report.SSIM > 1.0001 {
		t.Errorf("SSIM out of range: %f", report.SSIM)
	}
}

func TestLocalContrastPreservesDimensions(t *testing.T) {
	img := gradientImage(100, 60)

	out := localContrast(img)
	if out.Bounds() != img.Bounds() {
		t.Errorf("Expected unchanged bounds, got %v", out.Bounds())
	}

	// Tiny crops bypass tiling entirely.
	small := gradientImage(4, 4)
	if out := localContrast(small); out.Bounds() != small.Bounds() {
		t.Errorf("Expected unchanged bounds for small crop, got %v", out.Bounds())
	}
}
