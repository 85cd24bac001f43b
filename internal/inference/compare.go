package inference

import (
	"context"
	"fmt"
	"image"

	"github.com/forensivid/forensivid/internal/vecindex"
)

// DefaultVerifyThreshold is the maximum cosine distance at which two faces
// are considered the same person (Facenet512 convention). This is
// deliberately a separate knob from the ranked-search threshold.
const DefaultVerifyThreshold = 0.40

// CompareResult is the outcome of a pairwise face verification.
type CompareResult struct {
	Distance float64
	Verified bool
}

// CompareEmbeddings measures the cosine distance between two embeddings.
// Invalid embeddings never verify.
func CompareEmbeddings(a, b Embedding, verifyThreshold float64) (CompareResult, error) {
	if !a.Valid || !b.Valid {
		return CompareResult{Distance: 2, Verified: false}, nil
	}
	distance, err := vecindex.CosineDistance(a.Vector, b.Vector)
	if err != nil {
		return CompareResult{}, err
	}
	return CompareResult{Distance: distance, Verified: distance <= verifyThreshold}, nil
}

// CompareFaces embeds both crops and verifies them against each other.
// Comparing an image against itself always succeeds with distance ~0.
func CompareFaces(ctx context.Context, embedder Embedder, a, b image.Image, verifyThreshold float64) (CompareResult, error) {
	embA, err := embedder.Embed(ctx, a)
	if err != nil {
		return CompareResult{}, fmt.Errorf("embedding first face: %w", err)
	}
	embB, err := embedder.Embed(ctx, b)
	if err != nil {
		return CompareResult{}, fmt.Errorf("embedding second face: %w", err)
	}
	return CompareEmbeddings(embA, embB, verifyThreshold)
}
