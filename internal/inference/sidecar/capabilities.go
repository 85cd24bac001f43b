package sidecar

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"

	"github.com/forensivid/forensivid/internal/inference"
	"github.com/forensivid/forensivid/internal/models"
)

// DetectObjects implements inference.ObjectDetector.
func (c *Client) DetectObjects(ctx context.Context, frame image.Image, confidenceThreshold float64) ([]inference.Detection, error) {
	payload, err := frameRequest(frame, confidenceThreshold)
	if err != nil {
		return nil, err
	}
	body, err := c.call(ctx, opDetectObjects, payload)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(body)
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("malformed detection response: %w", err)
	}

	detections := make([]inference.Detection, 0, count)
	for i := uint32(0); i < count; i++ {
		class, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("malformed detection %d: %w", i, err)
		}
		conf, box, err := readConfidenceBox(r)
		if err != nil {
			return nil, fmt.Errorf("malformed detection %d: %w", i, err)
		}
		detections = append(detections, inference.Detection{Class: class, Confidence: conf, Box: box})
	}
	return detections, nil
}

// DetectFaces implements inference.FaceDetector. Crops travel back as
// JPEG so the sidecar controls the exact pixels the embedder will see.
func (c *Client) DetectFaces(ctx context.Context, frame image.Image, confidenceThreshold float64) ([]inference.Face, error) {
	payload, err := frameRequest(frame, confidenceThreshold)
	if err != nil {
		return nil, err
	}
	body, err := c.call(ctx, opDetectFaces, payload)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(body)
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("malformed face response: %w", err)
	}

	faces := make([]inference.Face, 0, count)
	for i := uint32(0); i < count; i++ {
		conf, box, err := readConfidenceBox(r)
		if err != nil {
			return nil, fmt.Errorf("malformed face %d: %w", i, err)
		}

		var cropLen uint32
		if err := binary.Read(r, binary.BigEndian, &cropLen); err != nil {
			return nil, fmt.Errorf("malformed face %d: %w", i, err)
		}
		cropBytes := make([]byte, cropLen)
		if _, err := io.ReadFull(r, cropBytes); err != nil {
			return nil, fmt.Errorf("malformed face %d: %w", i, err)
		}
		crop, err := jpeg.Decode(bytes.NewReader(cropBytes))
		if err != nil {
			return nil, fmt.Errorf("decoding face crop %d: %w", i, err)
		}

		faces = append(faces, inference.Face{Box: box, Confidence: conf, Crop: crop})
	}
	return faces, nil
}

// Embed implements inference.Embedder. A sidecar-side embedding failure is
// the invalid-embedding sentinel, not an error.
func (c *Client) Embed(ctx context.Context, crop image.Image) (inference.Embedding, error) {
	vec, valid, _, err := c.analyzeFace(ctx, crop)
	if err != nil {
		return inference.Embedding{}, err
	}
	if !valid {
		return inference.InvalidEmbedding(), nil
	}
	return inference.Embedding{Vector: vec, Valid: true}, nil
}

// Analyze implements inference.AttributeAnalyzer.
func (c *Client) Analyze(ctx context.Context, crop image.Image) (inference.Attributes, error) {
	_, _, attrs, err := c.analyzeFace(ctx, crop)
	if err != nil {
		return inference.Attributes{}, err
	}
	return attrs, nil
}

func (c *Client) analyzeFace(ctx context.Context, crop image.Image) ([]float32, bool, inference.Attributes, error) {
	payload, err := encodeJPEG(crop)
	if err != nil {
		return nil, false, inference.Attributes{}, err
	}
	body, err := c.call(ctx, opAnalyzeFace, payload)
	if err != nil {
		return nil, false, inference.Attributes{}, err
	}

	r := bytes.NewReader(body)
	vec := make([]float32, inference.EmbeddingDim)
	if err := binary.Read(r, binary.BigEndian, vec); err != nil {
		return nil, false, inference.Attributes{}, fmt.Errorf("malformed embedding: %w", err)
	}
	validByte, err := r.ReadByte()
	if err != nil {
		return nil, false, inference.Attributes{}, fmt.Errorf("malformed embedding flag: %w", err)
	}

	var age int32
	if err := binary.Read(r, binary.BigEndian, &age); err != nil {
		return nil, false, inference.Attributes{}, fmt.Errorf("malformed attributes: %w", err)
	}

	attrs := inference.Attributes{}
	if age >= 0 {
		a := int(age)
		attrs.Age = &a
	}
	for _, field := range []**string{&attrs.Gender, &attrs.Emotion, &attrs.Ethnicity} {
		s, err := readString(r)
		if err != nil {
			return nil, false, inference.Attributes{}, fmt.Errorf("malformed attributes: %w", err)
		}
		if s != "" {
			v := s
			*field = &v
		}
	}

	return vec, validByte == 1, attrs, nil
}

// EnhanceImage asks the sidecar's learned super-resolution model to
// upscale an image. Used by the enhancement stage's learned variant.
func (c *Client) EnhanceImage(ctx context.Context, img image.Image) (image.Image, error) {
	payload, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}
	body, err := c.call(ctx, opEnhance, payload)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(body)
	var imgLen uint32
	if err := binary.Read(r, binary.BigEndian, &imgLen); err != nil {
		return nil, fmt.Errorf("malformed enhance response: %w", err)
	}
	imgBytes := make([]byte, imgLen)
	if _, err := io.ReadFull(r, imgBytes); err != nil {
		return nil, fmt.Errorf("malformed enhance response: %w", err)
	}
	enhanced, err := jpeg.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("decoding enhanced image: %w", err)
	}
	return enhanced, nil
}

func frameRequest(frame image.Image, threshold float64) ([]byte, error) {
	jpg, err := encodeJPEG(frame)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, len(jpg)+4))
	binary.Write(buf, binary.BigEndian, float32(threshold))
	buf.Write(jpg)
	return buf.Bytes(), nil
}

func readConfidenceBox(r *bytes.Reader) (float64, models.BoundingBox, error) {
	var conf float32
	if err := binary.Read(r, binary.BigEndian, &conf); err != nil {
		return 0, models.BoundingBox{}, err
	}
	var box [4]int32
	if err := binary.Read(r, binary.BigEndian, &box); err != nil {
		return 0, models.BoundingBox{}, err
	}
	if math.IsNaN(float64(conf)) {
		conf = 0
	}
	return float64(conf), models.BoundingBox{
		X: int(box[0]), Y: int(box[1]), Width: int(box[2]), Height: int(box[3]),
	}, nil
}
