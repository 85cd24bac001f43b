package enhance

import (
	"image"
	"image/color"
)

// sharpen applies the classic 3x3 sharpening kernel
// [-1 -1 -1; -1 9 -1; -1 -1 -1].
func sharpen(img *image.RGBA) *image.RGBA {
	kernel := [9]float64{-1, -1, -1, -1, 9, -1, -1, -1, -1}
	return convolve(img, kernel)
}

// denoise is a 3x3 box blur, a cheap stand-in for non-local means.
func denoise(img *image.RGBA) *image.RGBA {
	n := 1.0 / 9
	kernel := [9]float64{n, n, n, n, n, n, n, n, n}
	return convolve(img, kernel)
}

func convolve(img *image.RGBA, kernel [9]float64) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, b float64
			k := 0
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sx, sy := clamp(x+kx, 0, w-1), clamp(y+ky, 0, h-1)
					c := img.RGBAAt(bounds.Min.X+sx, bounds.Min.Y+sy)
					weight := kernel[k]
					r += float64(c.R) * weight
					g += float64(c.G) * weight
					b += float64(c.B) * weight
					k++
				}
			}
			out.SetRGBA(x, y, color.RGBA{
				R: clampByte(r),
				G: clampByte(g),
				B: clampByte(b),
				A: 255,
			})
		}
	}
	return out
}

// localContrast equalizes luminance per 8x8 tile grid, approximating CLAHE
// for small face crops.
func localContrast(img *image.RGBA) *image.RGBA {
	const tiles = 8
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	tileW, tileH := w/tiles, h/tiles
	if tileW == 0 || tileH == 0 {
		copy(out.Pix, img.Pix)
		return out
	}

	for ty := 0; ty < tiles; ty++ {
		for tx := 0; tx < tiles; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := x0+tileW, y0+tileH
			if tx == tiles-1 {
				x1 = w
			}
			if ty == tiles-1 {
				y1 = h
			}
			equalizeTile(img, out, x0, y0, x1, y1)
		}
	}
	return out
}

func equalizeTile(img, out *image.RGBA, x0, y0, x1, y1 int) {
	var hist [256]int
	count := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[luminance(img.RGBAAt(x, y))]++
			count++
		}
	}
	if count == 0 {
		return
	}

	var cdf [256]int
	running := 0
	for i, n := range hist {
		running += n
		cdf[i] = running
	}

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			c := img.RGBAAt(x, y)
			lum := luminance(c)
			target := uint8(cdf[lum] * 255 / count)
			out.SetRGBA(x, y, scaleLuminance(c, lum, target))
		}
	}
}

// unsharpMask sharpens edges as 1.5*img - 0.5*blur(img).
func unsharpMask(img *image.RGBA) *image.RGBA {
	blurred := denoise(img)
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(x, y)
			b := blurred.RGBAAt(x, y)
			out.SetRGBA(x, y, color.RGBA{
				R: clampByte(1.5*float64(c.R) - 0.5*float64(b.R)),
				G: clampByte(1.5*float64(c.G) - 0.5*float64(b.G)),
				B: clampByte(1.5*float64(c.B) - 0.5*float64(b.B)),
				A: 255,
			})
		}
	}
	return out
}

func luminance(c color.RGBA) uint8 {
	return uint8((299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000)
}

func scaleLuminance(c color.RGBA, from, to uint8) color.RGBA {
	if from == 0 {
		return color.RGBA{R: to, G: to, B: to, A: 255}
	}
	ratio := float64(to) / float64(from)
	return color.RGBA{
		R: clampByte(float64(c.R) * ratio),
		G: clampByte(float64(c.G) * ratio),
		B: clampByte(float64(c.B) * ratio),
		A: 255,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
