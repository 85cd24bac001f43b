package video

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegDecoder streams frames out of a video file by piping MJPEG from an
// ffmpeg child process. Metadata comes from ffprobe.
type FFmpegDecoder struct {
	meta   Metadata
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
}

// OpenFFmpeg probes the file and starts the frame stream. Callers must
// Close the decoder to reap the child process.
func OpenFFmpeg(path string) (*FFmpegDecoder, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	meta, err := Probe(path)
	if err != nil {
		return nil, err
	}

	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found in PATH", ErrUnreadableSource)
	}

	cmd := exec.Command(ffmpegPath,
		"-i", path,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	)
	cmd.Stderr = io.Discard

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting ffmpeg: %v", ErrUnreadableSource, err)
	}

	return &FFmpegDecoder{
		meta:   meta,
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, 1<<20),
	}, nil
}

func (d *FFmpegDecoder) Metadata() Metadata { return d.meta }

func (d *FFmpegDecoder) ReadFrame() (image.Image, error) {
	img, err := jpeg.Decode(d.reader)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return img, nil
}

func (d *FFmpegDecoder) Close() error {
	d.stdout.Close()
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.cmd.Wait()
	return nil
}

// Probe extracts stream metadata with ffprobe, falling back to parsing
// ffmpeg's banner output when ffprobe is missing.
func Probe(path string) (Metadata, error) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err == nil {
		meta, probeErr := probeWithFFprobe(ffprobePath, path)
		if probeErr == nil {
			return meta, nil
		}
		log.Printf("[VIDEO] ffprobe failed for %s: %v, falling back to ffmpeg", path, probeErr)
	}
	return probeWithFFmpeg(path)
}

func probeWithFFprobe(ffprobePath, path string) (Metadata, error) {
	cmd := exec.Command(ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate,nb_frames,width,height:format=duration",
		"-of", "default=noprint_wrappers=1",
		path)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	var meta Metadata
	for _, line := range strings.Split(stdout.String(), "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		switch key {
		case "r_frame_rate":
			meta.FrameRate = parseRate(value)
		case "nb_frames":
			meta.FrameCount, _ = strconv.Atoi(value)
		case "width":
			meta.Width, _ = strconv.Atoi(value)
		case "height":
			meta.Height, _ = strconv.Atoi(value)
		case "duration":
			meta.Duration, _ = strconv.ParseFloat(value, 64)
		}
	}

	if meta.FrameRate <= 0 {
		return Metadata{}, fmt.Errorf("%w: ffprobe reported rate %f", ErrInvalidFrameRate, meta.FrameRate)
	}
	if meta.FrameCount == 0 && meta.Duration > 0 {
		meta.FrameCount = int(meta.Duration * meta.FrameRate)
	}
	return meta, nil
}

func probeWithFFmpeg(path string) (Metadata, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: neither ffprobe nor ffmpeg found", ErrUnreadableSource)
	}

	cmd := exec.Command(ffmpegPath, "-i", path, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()
	output := stderr.String()

	meta := Metadata{}

	if idx := strings.Index(output, "Duration: "); idx != -1 {
		durationStr := output[idx+len("Duration: "):]
		if end := strings.Index(durationStr, ","); end != -1 {
			durationStr = durationStr[:end]
		}
		parts := strings.Split(durationStr, ":")
		if len(parts) == 3 {
			hours, _ := strconv.ParseFloat(parts[0], 64)
			minutes, _ := strconv.ParseFloat(parts[1], 64)
			seconds, _ := strconv.ParseFloat(parts[2], 64)
			meta.Duration = hours*3600 + minutes*60 + seconds
		}
	}

	if idx := strings.Index(output, " fps"); idx != -1 {
		start := strings.LastIndexByte(output[:idx], ' ')
		if start != -1 {
			meta.FrameRate, _ = strconv.ParseFloat(output[start+1:idx], 64)
		}
	}

	if meta.FrameRate <= 0 {
		return Metadata{}, fmt.Errorf("%w: could not determine frame rate", ErrInvalidFrameRate)
	}
	meta.FrameCount = int(meta.Duration * meta.FrameRate)
	return meta, nil
}

// parseRate handles ffprobe rational rates like "30000/1001".
func parseRate(value string) float64 {
	num, den, found := strings.Cut(value, "/")
	if !found {
		rate, _ := strconv.ParseFloat(value, 64)
		return rate
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
