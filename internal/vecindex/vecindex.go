// Package vecindex provides an in-memory nearest-neighbor index over
// fixed-dimensionality face embeddings, searched by cosine distance.
//
// The brute-force implementation is the all-in-one deployment backend; the
// postgres dialect uses a pgvector IVFFlat index instead and never touches
// this package.
package vecindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var ErrDimensionMismatch = errors.New("embedding dimensionality mismatch")

// Match is a single similarity search result, distance in [0,2].
type Match struct {
	ID       string
	Distance float64
}

// Index is a concurrency-safe cosine-distance index. All vectors must have
// the dimensionality fixed at construction.
type Index struct {
	dim int

	mu      sync.RWMutex
	vectors map[string][]float32
	norms   map[string]float64
}

func NewIndex(dim int) *Index {
	return &Index{
		dim:     dim,
		vectors: make(map[string][]float32),
		norms:   make(map[string]float64),
	}
}

func (ix *Index) Dim() int { return ix.dim }

// Insert adds or replaces the vector stored under id.
func (ix *Index) Insert(id string, vector []float32) error {
	if len(vector) != ix.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), ix.dim)
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors[id] = stored
	ix.norms[id] = norm(stored)
	return nil
}

// Delete removes a vector. Deleting an unknown id is a no-op.
func (ix *Index) Delete(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.vectors, id)
	delete(ix.norms, id)
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Search returns up to maxResults entries within maxDistance of the query,
// ordered by ascending distance. An empty index yields an empty result.
func (ix *Index) Search(query []float32, maxDistance float64, maxResults int) ([]Match, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), ix.dim)
	}

	queryNorm := norm(query)

	ix.mu.RLock()
	matches := make([]Match, 0, len(ix.vectors))
	for id, vec := range ix.vectors {
		d := cosineDistance(query, queryNorm, vec, ix.norms[id])
		if d <= maxDistance {
			matches = append(matches, Match{ID: id, Distance: d})
		}
	}
	ix.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance == matches[j].Distance {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Distance < matches[j].Distance
	})

	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

// CosineDistance computes 1 - cosine similarity, bounded in [0,2].
// A zero vector is treated as maximally distant from everything.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	return cosineDistance(a, norm(a), b, norm(b)), nil
}

func cosineDistance(a []float32, normA float64, b []float32, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 2
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	d := 1 - dot/(normA*normB)
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
