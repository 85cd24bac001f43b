package video

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrUnreadableSource means the video stream could not be opened or
	// decoded at all.
	ErrUnreadableSource = errors.New("unreadable video source")

	// ErrInvalidFrameRate means the source reports a zero or negative
	// native frame rate, or the requested target rate is not positive.
	ErrInvalidFrameRate = errors.New("invalid frame rate")
)

// Metadata describes a video stream as reported by the decoder.
type Metadata struct {
	Duration   float64
	FrameRate  float64
	FrameCount int
	Width      int
	Height     int
}

func (m Metadata) Resolution() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// Frame is one sampled frame with its position in the source stream.
// Timestamp is always Index divided by the native frame rate.
type Frame struct {
	Index     int
	Timestamp float64
	Image     image.Image
}

// Decoder reads frames sequentially from a video source. A decoder is
// single-pass: once a frame is read it cannot be revisited without
// reopening the source. Close must be called to release decoder resources.
type Decoder interface {
	Metadata() Metadata
	// ReadFrame returns the next frame, or io.EOF when the stream ends.
	ReadFrame() (image.Image, error)
	Close() error
}
