// Package inference defines the per-frame analysis capabilities the
// pipeline fans work out to. Each capability is an independent, swappable
// unit; the sidecar subpackage provides model-backed implementations and
// tests substitute fakes.
package inference

import (
	"context"
	"image"

	"github.com/forensivid/forensivid/internal/models"
)

// EmbeddingDim is the dimensionality of face embeddings (Facenet512).
const EmbeddingDim = 512

// Detection is one object-class finding on a frame.
type Detection struct {
	Class      string
	Confidence float64
	Box        models.BoundingBox
}

// Face is one detected face with its crop extracted from the frame.
type Face struct {
	Box        models.BoundingBox
	Confidence float64
	Crop       image.Image
}

// Embedding is a biometric face vector. When the embedder fails it returns
// a zero vector with Valid=false rather than a partial vector, so
// downstream search can filter deterministically.
type Embedding struct {
	Vector []float32
	Valid  bool
}

// InvalidEmbedding is the designated sentinel for embedder failure.
func InvalidEmbedding() Embedding {
	return Embedding{Vector: make([]float32, EmbeddingDim), Valid: false}
}

// Attributes are demographic estimates for a face crop. Nil means the
// attribute could not be determined.
type Attributes struct {
	Age       *int
	Gender    *string
	Emotion   *string
	Ethnicity *string
}

// ObjectDetector finds object-class instances in a frame. A frame with no
// objects yields an empty slice, never an error.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, frame image.Image, confidenceThreshold float64) ([]Detection, error)
}

// FaceDetector finds faces in a frame. An internal model error surfaces as
// an error so the caller can record the frame as degraded; the caller then
// continues with empty findings instead of aborting the run.
type FaceDetector interface {
	DetectFaces(ctx context.Context, frame image.Image, confidenceThreshold float64) ([]Face, error)
}

// Embedder maps a face crop to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, crop image.Image) (Embedding, error)
}

// AttributeAnalyzer estimates demographic attributes for a face crop.
// Undetermined attributes are nil, never an error.
type AttributeAnalyzer interface {
	Analyze(ctx context.Context, crop image.Image) (Attributes, error)
}
