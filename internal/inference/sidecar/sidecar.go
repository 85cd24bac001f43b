// Package sidecar runs the detection/embedding models in a separate
// process and talks to it over a length-prefixed binary protocol on a
// dedicated pipe. The sidecar owns the loaded models; the client treats
// them as a read-only shared resource and serializes calls.
package sidecar

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
)

// ErrUnavailable is returned once the sidecar process is gone or a call
// was abandoned mid-exchange (the pipe is then out of sync).
var ErrUnavailable = errors.New("model sidecar unavailable")

const (
	opDetectObjects byte = 1
	opDetectFaces   byte = 2
	opAnalyzeFace   byte = 3
	opEnhance       byte = 4

	statusOK  byte = 0
	statusErr byte = 1
)

// Client drives one sidecar process. Safe for concurrent use; requests are
// serialized on the pipe.
type Client struct {
	mu       sync.Mutex
	stdin    io.WriteCloser
	dataPipe io.ReadCloser
	cmd      *exec.Cmd
	broken   bool
}

// Start launches the sidecar command. The child receives the data pipe's
// write end as FD 3, keeping stdout free for its own logging.
func Start(command string, args ...string) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating data pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("starting sidecar: %w", err)
	}
	w.Close()

	log.Printf("[SIDECAR] started %s (pid %d)", command, cmd.Process.Pid)
	return &Client{stdin: stdin, dataPipe: r, cmd: cmd}, nil
}

// NewClient wraps existing pipes; used by tests to fake the process.
func NewClient(stdin io.WriteCloser, dataPipe io.ReadCloser) *Client {
	return &Client{stdin: stdin, dataPipe: dataPipe}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
	c.stdin.Close()
	c.dataPipe.Close()
	if c.cmd != nil {
		return c.cmd.Wait()
	}
	return nil
}

// call performs one request/response exchange. If ctx expires while the
// exchange is in flight the pipe is poisoned and the client marks itself
// broken, failing all future calls.
func (c *Client) call(ctx context.Context, op byte, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return nil, ErrUnavailable
	}

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)

	go func() {
		body, err := c.exchange(op, payload)
		done <- result{body, err}
	}()

	select {
	case <-ctx.Done():
		c.broken = true
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			c.broken = true
			return nil, res.err
		}
		return res.body, nil
	}
}

func (c *Client) exchange(op byte, payload []byte) ([]byte, error) {
	// Framing: [4 len][1 op][payload] out, [4 len][1 status][body] back.
	msg := make([]byte, 0, len(payload)+1)
	msg = append(msg, op)
	msg = append(msg, payload...)

	if err := binary.Write(c.stdin, binary.BigEndian, uint32(len(msg))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := c.stdin.Write(msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(c.dataPipe, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	respLen := binary.BigEndian.Uint32(header)
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(c.dataPipe, resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(resp) < 1 {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	if resp[0] == statusErr {
		r := bytes.NewReader(resp[1:])
		msg, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed error response", ErrUnavailable)
		}
		return nil, fmt.Errorf("sidecar error: %s", msg)
	}
	return resp[1:], nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString(w *bytes.Buffer, s string) {
	binary.Write(w, binary.BigEndian, uint32(len(s)))
	w.WriteString(s)
}
