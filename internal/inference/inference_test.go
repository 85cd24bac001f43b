package inference

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestFilterByClass(t *testing.T) {
	detections := []Detection{
		{Class: "person", Confidence: 0.9},
		{Class: "Knife", Confidence: 0.8},
		{Class: "car", Confidence: 0.7},
		{Class: "gun", Confidence: 0.95},
	}

	weapons := FilterByClass(detections, NewClassSet(DefaultWeaponClasses))
	if len(weapons) != 2 {
		t.Fatalf("Expected 2 weapons, got %d", len(weapons))
	}
	if weapons[0].Class != "Knife" || weapons[1].Class != "gun" {
		t.Errorf("Unexpected weapon classes: %v", weapons)
	}

	vehicles := FilterByClass(detections, NewClassSet(DefaultVehicleClasses))
	if len(vehicles) != 1 || vehicles[0].Class != "car" {
		t.Errorf("Expected only the car, got %v", vehicles)
	}

	none := FilterByClass(nil, NewClassSet(DefaultWeaponClasses))
	if len(none) != 0 {
		t.Errorf("Expected empty result for nil input, got %d", len(none))
	}
}

func TestInvalidEmbedding(t *testing.T) {
	emb := InvalidEmbedding()
	if emb.Valid {
		t.Error("Expected invalid embedding to be flagged")
	}
	if len(emb.Vector) != EmbeddingDim {
		t.Errorf("Expected %d components, got %d", EmbeddingDim, len(emb.Vector))
	}
	for i, v := range emb.Vector {
		if v != 0 {
			t.Fatalf("Expected zero vector, component %d is %f", i, v)
		}
	}
}

func solidFrame(w, h int, y uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			img.SetGray(px, py, color.Gray{Y: y})
		}
	}
	return img
}

func TestComputeMotionNoFrames(t *testing.T) {
	result := ComputeMotion(nil)
	if result.Score != 0 {
		t.Errorf("Expected zero score, got %f", result.Score)
	}
	if len(result.Hotspots) != 0 {
		t.Errorf("Expected no hotspots, got %d", len(result.Hotspots))
	}
	if result.Heatmap == nil {
		t.Fatal("Expected a heatmap image even without frames")
	}
	if result.Heatmap.Bounds().Dx() != 640 || result.Heatmap.Bounds().Dy() != 480 {
		t.Errorf("Expected 640x480 default heatmap, got %v", result.Heatmap.Bounds())
	}
}

func TestComputeMotionSingleFrame(t *testing.T) {
	result := ComputeMotion([]image.Image{solidFrame(64, 48, 100)})
	if result.Score != 0 {
		t.Errorf("Expected zero score for single frame, got %f", result.Score)
	}
	if result.Heatmap.Bounds().Dx() != 64 {
		t.Errorf("Expected heatmap to match frame size, got %v", result.Heatmap.Bounds())
	}
}

func TestComputeMotionStaticScene(t *testing.T) {
	frames := []image.Image{
		solidFrame(64, 48, 80),
		solidFrame(64, 48, 80),
		solidFrame(64, 48, 80),
	}
	result := ComputeMotion(frames)
	if result.Score != 0 {
		t.Errorf("Expected zero score for static scene, got %f", result.Score)
	}
	if len(result.Hotspots) != 0 {
		t.Errorf("Expected no hotspots in static scene, got %d", len(result.Hotspots))
	}
}

func TestComputeMotionUniformChange(t *testing.T) {
	// A global brightness shift has no spatial contrast but is still
	// motion; the score must come from the raw diff, not the
	// normalized field.
	frames := []image.Image{
		solidFrame(64, 48, 80),
		solidFrame(64, 48, 120),
		solidFrame(64, 48, 80),
	}
	result := ComputeMotion(frames)

	if result.Score <= 0 {
		t.Errorf("Expected positive score for uniform motion, got %f", result.Score)
	}
	if len(result.Hotspots) != 0 {
		t.Errorf("Expected no hotspots without spatial contrast, got %d", len(result.Hotspots))
	}
}

func TestComputeMotionLocalizedMovement(t *testing.T) {
	// A block flipping brightness in one corner should concentrate the
	// hotspots there.
	makeFrame := func(on bool) image.Image {
		img := image.NewGray(image.Rect(0, 0, 64, 64))
		if on {
			for y := 0; y < 8; y++ {
				for x := 0; x < 8; x++ {
					img.SetGray(x, y, color.Gray{Y: 255})
				}
			}
		}
		return img
	}

	frames := []image.Image{makeFrame(false), makeFrame(true), makeFrame(false), makeFrame(true)}
	result := ComputeMotion(frames)

	if result.Score <= 0 {
		t.Error("Expected positive motion score")
	}
	if len(result.Hotspots) == 0 {
		t.Fatal("Expected hotspots for localized movement")
	}
	for _, h := range result.Hotspots {
		if h.X > 16 || h.Y > 16 {
			t.Errorf("Hotspot outside the moving corner: %+v", h)
		}
	}
}

type fixedEmbedder struct {
	vectors map[image.Image][]float32
	err     error
}

func (e *fixedEmbedder) Embed(_ context.Context, crop image.Image) (Embedding, error) {
	if e.err != nil {
		return Embedding{}, e.err
	}
	if vec, ok := e.vectors[crop]; ok {
		return Embedding{Vector: vec, Valid: true}, nil
	}
	return InvalidEmbedding(), nil
}

func TestCompareFacesIdentical(t *testing.T) {
	crop := solidFrame(32, 32, 120)
	vec := make([]float32, EmbeddingDim)
	vec[0] = 0.5
	vec[1] = -0.25

	embedder := &fixedEmbedder{vectors: map[image.Image][]float32{crop: vec}}

	result, err := CompareFaces(context.Background(), embedder, crop, crop, DefaultVerifyThreshold)
	if err != nil {
		t.Fatalf("Failed to compare: %v", err)
	}
	if result.Distance > 1e-9 {
		t.Errorf("Expected ~0 distance for identical crops, got %f", result.Distance)
	}
	if !result.Verified {
		t.Error("Expected identical crops to verify")
	}
}

func TestCompareFacesInvalidEmbedding(t *testing.T) {
	// Unknown crops embed to the invalid sentinel: degenerate comparisons
	// must return verified=false, not fail.
	embedder := &fixedEmbedder{}

	result, err := CompareFaces(context.Background(), embedder, solidFrame(8, 8, 1), solidFrame(8, 8, 2), DefaultVerifyThreshold)
	if err != nil {
		t.Fatalf("Failed to compare: %v", err)
	}
	if result.Verified {
		t.Error("Expected invalid embeddings not to verify")
	}
	if result.Distance != 2 {
		t.Errorf("Expected maximal distance 2, got %f", result.Distance)
	}
}

func TestCompareFacesEmbedderError(t *testing.T) {
	embedder := &fixedEmbedder{err: errors.New("model offline")}
	if _, err := CompareFaces(context.Background(), embedder, solidFrame(8, 8, 1), solidFrame(8, 8, 1), DefaultVerifyThreshold); err == nil {
		t.Error("Expected error when embedder fails outright")
	}
}
