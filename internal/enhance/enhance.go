// Package enhance upscales low-resolution crops for forensic review. A
// learned super-resolution model is one Enhancer variant, selected at
// initialization; when none is configured the deterministic fallback
// (interpolation, sharpening, denoising) keeps the pipeline usable.
package enhance

import (
	"context"
	"fmt"
	"image"
	"log"

	"golang.org/x/image/draw"
)

// Enhancer upscales an image. Implementations must be safe for concurrent
// use; the pipeline shares one across frame workers.
type Enhancer interface {
	Enhance(ctx context.Context, img image.Image) (image.Image, error)
}

// ResolutionTier names a fixed output size for enhanced face crops.
type ResolutionTier string

const (
	Tier4K    ResolutionTier = "4k"
	Tier1080p ResolutionTier = "1080p"
	Tier720p  ResolutionTier = "720p"
)

// Face crops are square; tiers map to side lengths.
var tierSizes = map[ResolutionTier]int{
	Tier4K:    512,
	Tier1080p: 256,
	Tier720p:  128,
}

// TierSize resolves a tier to pixel dimensions, defaulting to the 4k tier
// for unknown names.
func TierSize(tier ResolutionTier) int {
	if size, ok := tierSizes[tier]; ok {
		return size
	}
	return tierSizes[Tier4K]
}

// FallbackEnhancer is the model-free variant: 4x Catmull-Rom upscale,
// sharpening convolution, then denoising.
type FallbackEnhancer struct {
	Scale int
}

func NewFallbackEnhancer() *FallbackEnhancer {
	return &FallbackEnhancer{Scale: 4}
}

func (e *FallbackEnhancer) Enhance(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scale := e.Scale
	if scale < 2 {
		scale = 4
	}
	bounds := img.Bounds()
	upscaled := image.NewRGBA(image.Rect(0, 0, bounds.Dx()*scale, bounds.Dy()*scale))
	draw.CatmullRom.Scale(upscaled, upscaled.Bounds(), img, bounds, draw.Src, nil)

	sharpened := sharpen(upscaled)
	return denoise(sharpened), nil
}

// FaceEnhancer wraps an Enhancer with face-specific post-processing and
// tier sizing. When the primary enhancer fails the fallback takes over so
// enhancement never fails a run.
type FaceEnhancer struct {
	primary  Enhancer
	fallback *FallbackEnhancer
}

// NewFaceEnhancer selects the capability variant once at initialization.
// primary may be nil, leaving only the fallback path.
func NewFaceEnhancer(primary Enhancer) *FaceEnhancer {
	return &FaceEnhancer{primary: primary, fallback: NewFallbackEnhancer()}
}

// EnhanceFace upscales a face crop to the tier's dimensions and applies
// local contrast normalization and edge sharpening.
func (f *FaceEnhancer) EnhanceFace(ctx context.Context, crop image.Image, tier ResolutionTier) (image.Image, error) {
	enhanced, err := f.enhance(ctx, crop)
	if err != nil {
		return nil, err
	}

	size := TierSize(tier)
	sized := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(sized, sized.Bounds(), enhanced, enhanced.Bounds(), draw.Src, nil)

	contrasted := localContrast(sized)
	return unsharpMask(contrasted), nil
}

func (f *FaceEnhancer) enhance(ctx context.Context, img image.Image) (image.Image, error) {
	if f.primary != nil {
		enhanced, err := f.primary.Enhance(ctx, img)
		if err == nil {
			return enhanced, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("enhancing image: %w", err)
		}
		log.Printf("[ENHANCE] model enhancer failed, using fallback: %v", err)
	}
	return f.fallback.Enhance(ctx, img)
}
