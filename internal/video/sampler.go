package video

import (
	"fmt"
	"io"
	"sync"
)

// Sampler extracts a deterministic subsequence of frames from a decoder:
// frames at indices 0, interval, 2*interval, ... where
// interval = floor(nativeRate / targetRate). The sequence is finite and
// single-pass; callers must drain Frames or call Close to release the
// underlying decoder.
type Sampler struct {
	dec      Decoder
	interval int
	max      int

	frames chan Frame
	stop   chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
	once   sync.Once
}

// NewSampler validates rates and starts producing frames. maxFrames <= 0
// means unbounded.
func NewSampler(dec Decoder, targetRate float64, maxFrames int) (*Sampler, error) {
	meta := dec.Metadata()
	if meta.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: native rate %f", ErrInvalidFrameRate, meta.FrameRate)
	}
	if targetRate <= 0 {
		return nil, fmt.Errorf("%w: target rate %f", ErrInvalidFrameRate, targetRate)
	}

	interval := int(meta.FrameRate / targetRate)
	if interval < 1 {
		interval = 1
	}

	s := &Sampler{
		dec:      dec,
		interval: interval,
		max:      maxFrames,
		frames:   make(chan Frame),
		stop:     make(chan struct{}),
	}
	go s.produce(meta.FrameRate)
	return s, nil
}

// Interval is the stride between sampled frame indices.
func (s *Sampler) Interval() int { return s.interval }

// Frames is the stream of sampled frames. The channel is closed when the
// source is exhausted, the max frame count is reached, or Close is called.
func (s *Sampler) Frames() <-chan Frame { return s.frames }

// Err reports the first decode error encountered, if any. Valid after
// Frames is closed.
func (s *Sampler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops sampling and releases the decoder. Safe to call more than
// once and concurrently with draining.
func (s *Sampler) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.dec.Close()
}

func (s *Sampler) produce(nativeRate float64) {
	defer close(s.frames)

	emitted := 0
	for index := 0; ; index++ {
		img, err := s.dec.ReadFrame()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.mu.Lock()
			s.err = fmt.Errorf("reading frame %d: %w", index, err)
			s.mu.Unlock()
			return
		}

		if index%s.interval != 0 {
			continue
		}

		frame := Frame{
			Index:     index,
			Timestamp: float64(index) / nativeRate,
			Image:     img,
		}

		select {
		case s.frames <- frame:
		case <-s.stop:
			return
		}

		emitted++
		if s.max > 0 && emitted >= s.max {
			return
		}
	}
}
