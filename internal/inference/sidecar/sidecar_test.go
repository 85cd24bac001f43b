package sidecar

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"math"
	"strings"
	"testing"

	"github.com/forensivid/forensivid/internal/inference"
)

// mockCloser turns an in-memory buffer into both pipe ends, the same way
// the worker protocol is exercised without a child process.
type mockCloser struct {
	*bytes.Buffer
}

func (m *mockCloser) Close() error { return nil }

func newMockClient(response []byte) (*Client, *mockCloser) {
	stdin := &mockCloser{Buffer: new(bytes.Buffer)}
	data := &mockCloser{Buffer: new(bytes.Buffer)}

	binary.Write(data, binary.BigEndian, uint32(len(response)))
	data.Write(response)

	return NewClient(stdin, data), stdin
}

func testFrame() image.Image {
	return image.NewGray(image.Rect(0, 0, 16, 16))
}

func TestDetectObjects(t *testing.T) {
	resp := new(bytes.Buffer)
	resp.WriteByte(statusOK)
	binary.Write(resp, binary.BigEndian, uint32(2))

	writeString(resp, "person")
	binary.Write(resp, binary.BigEndian, float32(0.91))
	binary.Write(resp, binary.BigEndian, [4]int32{10, 20, 30, 40})

	writeString(resp, "knife")
	binary.Write(resp, binary.BigEndian, float32(0.66))
	binary.Write(resp, binary.BigEndian, [4]int32{5, 5, 10, 10})

	client, stdin := newMockClient(resp.Bytes())

	detections, err := client.DetectObjects(context.Background(), testFrame(), 0.5)
	if err != nil {
		t.Fatalf("DetectObjects failed: %v", err)
	}

	if len(detections) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(detections))
	}
	if detections[0].Class != "person" {
		t.Errorf("Expected class person, got %s", detections[0].Class)
	}
	if math.Abs(detections[0].Confidence-0.91) > 1e-6 {
		t.Errorf("Expected confidence ~0.91, got %f", detections[0].Confidence)
	}
	if detections[0].Box.X != 10 || detections[0].Box.Height != 40 {
		t.Errorf("Unexpected box: %+v", detections[0].Box)
	}
	if detections[1].Class != "knife" {
		t.Errorf("Expected class knife, got %s", detections[1].Class)
	}

	// The request carries the op, the threshold, and the encoded frame.
	sent := stdin.Bytes()
	if len(sent) < 10 {
		t.Fatalf("Request too short: %d bytes", len(sent))
	}
	if sent[4] != opDetectObjects {
		t.Errorf("Expected op %d, got %d", opDetectObjects, sent[4])
	}
	threshold := math.Float32frombits(binary.BigEndian.Uint32(sent[5:9]))
	if math.Abs(float64(threshold)-0.5) > 1e-6 {
		t.Errorf("Expected threshold 0.5 in request, got %f", threshold)
	}
}

func TestDetectObjectsEmpty(t *testing.T) {
	resp := new(bytes.Buffer)
	resp.WriteByte(statusOK)
	binary.Write(resp, binary.BigEndian, uint32(0))

	client, _ := newMockClient(resp.Bytes())

	detections, err := client.DetectObjects(context.Background(), testFrame(), 0.5)
	if err != nil {
		t.Fatalf("DetectObjects failed: %v", err)
	}
	if len(detections) != 0 {
		t.Errorf("Expected no detections, got %d", len(detections))
	}
}

func TestAnalyzeFace(t *testing.T) {
	resp := new(bytes.Buffer)
	resp.WriteByte(statusOK)

	vec := make([]float32, inference.EmbeddingDim)
	vec[0] = 0.5
	vec[511] = -0.5
	binary.Write(resp, binary.BigEndian, vec)
	resp.WriteByte(1)                                // embedding valid
	binary.Write(resp, binary.BigEndian, int32(34)) // age
	writeString(resp, "male")
	writeString(resp, "neutral")
	writeString(resp, "") // ethnicity undetermined

	client, _ := newMockClient(resp.Bytes())

	emb, err := client.Embed(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if !emb.Valid {
		t.Error("Expected valid embedding")
	}
	if len(emb.Vector) != inference.EmbeddingDim {
		t.Fatalf("Expected %d components, got %d", inference.EmbeddingDim, len(emb.Vector))
	}
	if math.Abs(float64(emb.Vector[0])-0.5) > 1e-6 {
		t.Errorf("Expected vector[0] ~0.5, got %f", emb.Vector[0])
	}
}

func TestAnalyzeFaceAttributes(t *testing.T) {
	resp := new(bytes.Buffer)
	resp.WriteByte(statusOK)
	binary.Write(resp, binary.BigEndian, make([]float32, inference.EmbeddingDim))
	resp.WriteByte(0)                                // embedding failed
	binary.Write(resp, binary.BigEndian, int32(-1)) // age undetermined
	writeString(resp, "")
	writeString(resp, "happy")
	writeString(resp, "")

	client, _ := newMockClient(resp.Bytes())

	attrs, err := client.Analyze(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if attrs.Age != nil {
		t.Errorf("Expected undetermined age, got %d", *attrs.Age)
	}
	if attrs.Gender != nil {
		t.Errorf("Expected undetermined gender, got %s", *attrs.Gender)
	}
	if attrs.Emotion == nil || *attrs.Emotion != "happy" {
		t.Errorf("Expected emotion happy, got %v", attrs.Emotion)
	}
}

func TestEmbedInvalidSentinel(t *testing.T) {
	resp := new(bytes.Buffer)
	resp.WriteByte(statusOK)
	binary.Write(resp, binary.BigEndian, make([]float32, inference.EmbeddingDim))
	resp.WriteByte(0)
	binary.Write(resp, binary.BigEndian, int32(-1))
	writeString(resp, "")
	writeString(resp, "")
	writeString(resp, "")

	client, _ := newMockClient(resp.Bytes())

	emb, err := client.Embed(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if emb.Valid {
		t.Error("Expected the invalid-embedding sentinel")
	}
	if len(emb.Vector) != inference.EmbeddingDim {
		t.Errorf("Sentinel must keep fixed dimensionality, got %d", len(emb.Vector))
	}
}

func TestDetectFacesTruncatedCrop(t *testing.T) {
	// The declared crop length exceeds the bytes actually sent; the
	// response must be rejected as malformed, not decoded short.
	resp := new(bytes.Buffer)
	resp.WriteByte(statusOK)
	binary.Write(resp, binary.BigEndian, uint32(1))
	binary.Write(resp, binary.BigEndian, float32(0.9))
	binary.Write(resp, binary.BigEndian, [4]int32{1, 2, 3, 4})
	binary.Write(resp, binary.BigEndian, uint32(100))
	resp.Write([]byte("short"))

	client, _ := newMockClient(resp.Bytes())

	_, err := client.DetectFaces(context.Background(), testFrame(), 0.5)
	if err == nil {
		t.Fatal("Expected error for truncated crop payload")
	}
	if !strings.Contains(err.Error(), "malformed face") {
		t.Errorf("Expected malformed-face error, got %v", err)
	}
}

func TestSidecarError(t *testing.T) {
	resp := new(bytes.Buffer)
	resp.WriteByte(statusErr)
	writeString(resp, "model failed to load")

	client, _ := newMockClient(resp.Bytes())

	_, err := client.DetectObjects(context.Background(), testFrame(), 0.5)
	if err == nil {
		t.Fatal("Expected error from error status")
	}
	if !strings.Contains(err.Error(), "model failed to load") {
		t.Errorf("Expected sidecar message in error, got %v", err)
	}

	// The pipe is now out of sync; further calls must fail fast.
	_, err = client.DetectObjects(context.Background(), testFrame(), 0.5)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable after failure, got %v", err)
	}
}

func TestCancelledContextPoisonsClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Empty data pipe: the read would block forever on a real pipe, but
	// an already-cancelled context must win regardless.
	client, _ := newMockClient(nil)

	_, err := client.DetectObjects(ctx, testFrame(), 0.5)
	if err == nil {
		t.Fatal("Expected error from cancelled context")
	}
}
