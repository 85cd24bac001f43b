package inference

import (
	"image"
	"image/color"

	"github.com/forensivid/forensivid/internal/models"
)

const motionGridCells = 16

// MotionResult is the computed motion summary for a frame window.
type MotionResult struct {
	// Score is overall motion intensity normalized to 0-100.
	Score float64
	// Hotspots are pixel coordinates of grid cells with accumulated
	// motion above 1.5x the grid mean.
	Hotspots []models.Hotspot
	// Heatmap is the heat-colored visualization of accumulated motion.
	Heatmap *image.RGBA
}

// ComputeMotion accumulates absolute grayscale differences between
// consecutive frames. Fewer than two frames yields a zero score, no
// hotspots, and a black heatmap rather than an error.
func ComputeMotion(frames []image.Image) MotionResult {
	if len(frames) < 2 {
		bounds := image.Rect(0, 0, 640, 480)
		if len(frames) == 1 {
			bounds = frames[0].Bounds()
		}
		return MotionResult{Heatmap: image.NewRGBA(bounds)}
	}

	bounds := frames[0].Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	acc := make([]float64, width*height)

	prev := toGray(frames[0], width, height)
	for i := 1; i < len(frames); i++ {
		cur := toGray(frames[i], width, height)
		for p := range acc {
			diff := float64(cur[p]) - float64(prev[p])
			if diff < 0 {
				diff = -diff
			}
			acc[p] += diff
		}
		prev = cur
	}

	// Score from the raw accumulated diff so uniform motion (a global
	// brightness change, a camera pan) still registers.
	var total float64
	for _, v := range acc {
		total += v
	}
	score := total / float64(len(acc)) / 255 * 100
	if score > 100 {
		score = 100
	}

	// Min-max normalize to 0-255 for the heatmap and hotspot grid only.
	minVal, maxVal := acc[0], acc[0]
	for _, v := range acc {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	span := maxVal - minVal
	normalized := make([]uint8, len(acc))
	if span > 0 {
		for p, v := range acc {
			normalized[p] = uint8((v - minVal) / span * 255)
		}
	}

	return MotionResult{
		Score:    score,
		Hotspots: findHotspots(normalized, width, height),
		Heatmap:  renderHeatmap(normalized, width, height),
	}
}

func toGray(img image.Image, width, height int) []uint8 {
	bounds := img.Bounds()
	gray := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			gray[y*width+x] = c.Y
		}
	}
	return gray
}

// findHotspots sums motion per grid cell and reports cell centers whose
// accumulated intensity exceeds 1.5x the mean cell intensity.
func findHotspots(normalized []uint8, width, height int) []models.Hotspot {
	cellW := width / motionGridCells
	cellH := height / motionGridCells
	if cellW == 0 || cellH == 0 {
		return nil
	}

	sums := make([]float64, motionGridCells*motionGridCells)
	var mean float64
	for cy := 0; cy < motionGridCells; cy++ {
		for cx := 0; cx < motionGridCells; cx++ {
			var sum float64
			for y := cy * cellH; y < (cy+1)*cellH; y++ {
				for x := cx * cellW; x < (cx+1)*cellW; x++ {
					sum += float64(normalized[y*width+x])
				}
			}
			sums[cy*motionGridCells+cx] = sum
			mean += sum
		}
	}
	mean /= float64(len(sums))
	if mean == 0 {
		return nil
	}

	var hotspots []models.Hotspot
	for cy := 0; cy < motionGridCells; cy++ {
		for cx := 0; cx < motionGridCells; cx++ {
			if sums[cy*motionGridCells+cx] > 1.5*mean {
				hotspots = append(hotspots, models.Hotspot{
					X: cx*cellW + cellW/2,
					Y: cy*cellH + cellH/2,
				})
			}
		}
	}
	return hotspots
}

// renderHeatmap maps intensity through a jet-style gradient:
// black/blue for cold, green midrange, red for hot.
func renderHeatmap(normalized []uint8, width, height int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out.SetRGBA(x, y, heatColor(normalized[y*width+x]))
		}
	}
	return out
}

func heatColor(v uint8) color.RGBA {
	switch {
	case v < 64:
		return color.RGBA{B: 128 + v*2, A: 255}
	case v < 128:
		return color.RGBA{G: (v - 64) * 4, B: 255 - (v-64)*4, A: 255}
	case v < 192:
		return color.RGBA{R: (v - 128) * 4, G: 255, A: 255}
	default:
		return color.RGBA{R: 255, G: 255 - (v-192)*4, A: 255}
	}
}
