package video

import (
	"fmt"
	"image"
	"io"

	"golang.org/x/image/draw"
)

const (
	thumbnailWidth  = 320
	thumbnailHeight = 180
)

// Thumbnail reads frames from the decoder until the given timestamp and
// scales that frame to 320x180. The decoder is advanced, not reopened, so
// call this before sampling or on a dedicated decoder.
func Thumbnail(dec Decoder, atSeconds float64) (image.Image, error) {
	meta := dec.Metadata()
	if meta.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: rate %f", ErrInvalidFrameRate, meta.FrameRate)
	}

	target := int(atSeconds * meta.FrameRate)
	var frame image.Image
	for i := 0; i <= target; i++ {
		img, err := dec.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		frame = img
	}
	if frame == nil {
		return nil, fmt.Errorf("%w: no frames before %.2fs", ErrUnreadableSource, atSeconds)
	}

	thumb := image.NewRGBA(image.Rect(0, 0, thumbnailWidth, thumbnailHeight))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), frame, frame.Bounds(), draw.Src, nil)
	return thumb, nil
}
