package enhance

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// QualityReport compares an original against its enhanced version.
// Diagnostic only; the pipeline never depends on these numbers.
type QualityReport struct {
	PSNR              float64 `json:"psnr"`
	SSIM              float64 `json:"ssim"`
	SharpnessOriginal float64 `json:"sharpness_original"`
	SharpnessEnhanced float64 `json:"sharpness_enhanced"`
	ImprovementRatio  float64 `json:"improvement_ratio"`
}

// CompareQuality resizes the enhanced image back to the original's
// dimensions and computes PSNR, SSIM, and Laplacian-variance sharpness.
func CompareQuality(original, enhanced image.Image) QualityReport {
	origGray := grayPlane(original, original.Bounds().Dx(), original.Bounds().Dy())

	resized := image.NewRGBA(original.Bounds())
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), enhanced, enhanced.Bounds(), draw.Src, nil)
	enhGray := grayPlane(resized, original.Bounds().Dx(), original.Bounds().Dy())

	sharpOrig := laplacianVariance(origGray)
	sharpEnh := laplacianVariance(enhGray)

	ratio := 0.0
	if sharpOrig.variance > 0 {
		ratio = sharpEnh.variance / sharpOrig.variance
	}

	return QualityReport{
		PSNR:              psnr(origGray, enhGray),
		SSIM:              ssim(origGray, enhGray),
		SharpnessOriginal: sharpOrig.variance,
		SharpnessEnhanced: sharpEnh.variance,
		ImprovementRatio:  ratio,
	}
}

type plane struct {
	pix  []float64
	w, h int
}

func grayPlane(img image.Image, w, h int) plane {
	bounds := img.Bounds()
	pix := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			pix[y*w+x] = (299*float64(r>>8) + 587*float64(g>>8) + 114*float64(b>>8)) / 1000
		}
	}
	return plane{pix: pix, w: w, h: h}
}

// psnr returns +Inf for identical planes.
func psnr(a, b plane) float64 {
	var mse float64
	for i := range a.pix {
		d := a.pix[i] - b.pix[i]
		mse += d * d
	}
	mse /= float64(len(a.pix))
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(255*255/mse)
}

// ssim is the global (single-window) structural similarity over
// luminance, with the standard k1/k2 stabilizers.
func ssim(a, b plane) float64 {
	const (
		c1 = (0.01 * 255) * (0.01 * 255)
		c2 = (0.03 * 255) * (0.03 * 255)
	)

	n := float64(len(a.pix))
	var meanA, meanB float64
	for i := range a.pix {
		meanA += a.pix[i]
		meanB += b.pix[i]
	}
	meanA /= n
	meanB /= n

	var varA, varB, cov float64
	for i := range a.pix {
		da := a.pix[i] - meanA
		db := b.pix[i] - meanB
		varA += da * da
		varB += db * db
		cov += da * db
	}
	varA /= n
	varB /= n
	cov /= n

	return ((2*meanA*meanB + c1) * (2*cov + c2)) /
		((meanA*meanA + meanB*meanB + c1) * (varA + varB + c2))
}

type sharpness struct {
	variance float64
}

// laplacianVariance measures focus as the variance of the 4-neighbor
// Laplacian response.
func laplacianVariance(p plane) sharpness {
	if p.w < 3 || p.h < 3 {
		return sharpness{}
	}

	responses := make([]float64, 0, (p.w-2)*(p.h-2))
	var mean float64
	for y := 1; y < p.h-1; y++ {
		for x := 1; x < p.w-1; x++ {
			v := 4*p.pix[y*p.w+x] -
				p.pix[(y-1)*p.w+x] - p.pix[(y+1)*p.w+x] -
				p.pix[y*p.w+x-1] - p.pix[y*p.w+x+1]
			responses = append(responses, v)
			mean += v
		}
	}
	mean /= float64(len(responses))

	var variance float64
	for _, v := range responses {
		d := v - mean
		variance += d * d
	}
	return sharpness{variance: variance / float64(len(responses))}
}
