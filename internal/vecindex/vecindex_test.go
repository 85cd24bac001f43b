package vecindex

import (
	"errors"
	"math"
	"testing"
)

func TestSearchEmptyIndex(t *testing.T) {
	ix := NewIndex(4)

	matches, err := ix.Search([]float32{1, 0, 0, 0}, 2.0, 10)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Expected no matches from empty index, got %d", len(matches))
	}
}

func TestSearchOrderingAndThreshold(t *testing.T) {
	ix := NewIndex(3)

	vectors := map[string][]float32{
		"identical":  {1, 0, 0},
		"close":      {0.9, 0.1, 0},
		"orthogonal": {0, 1, 0},
		"opposite":   {-1, 0, 0},
	}
	for id, v := range vectors {
		if err := ix.Insert(id, v); err != nil {
			t.Fatalf("Failed to insert %s: %v", id, err)
		}
	}

	matches, err := ix.Search([]float32{1, 0, 0}, 1.0, 10)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}

	if len(matches) != 3 {
		t.Fatalf("Expected 3 matches within distance 1.0, got %d", len(matches))
	}
	if matches[0].ID != "identical" {
		t.Errorf("Expected identical vector first, got %s", matches[0].ID)
	}
	if matches[0].Distance > 1e-9 {
		t.Errorf("Expected near-zero distance for identical vector, got %f", matches[0].Distance)
	}

	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Errorf("Results not in ascending distance order at %d", i)
		}
		if matches[i].Distance > 1.0 {
			t.Errorf("Match %s exceeds threshold: %f", matches[i].ID, matches[i].Distance)
		}
	}
}

func TestSearchMaxResults(t *testing.T) {
	ix := NewIndex(2)
	ix.Insert("a", []float32{1, 0})
	ix.Insert("b", []float32{0.9, 0.1})
	ix.Insert("c", []float32{0.5, 0.5})

	matches, err := ix.Search([]float32{1, 0}, 2.0, 2)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Expected 2 results, got %d", len(matches))
	}
}

func TestInsertDimensionMismatch(t *testing.T) {
	ix := NewIndex(4)

	if err := ix.Insert("bad", []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := ix.Search([]float32{1}, 2.0, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch on query, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ix := NewIndex(2)
	ix.Insert("a", []float32{1, 0})
	ix.Delete("a")
	ix.Delete("never-existed")

	if ix.Len() != 0 {
		t.Errorf("Expected empty index after delete, got %d", ix.Len())
	}
}

func TestCosineDistance(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineDistance(tc.a, tc.b)
			if err != nil {
				t.Fatalf("Failed to compute distance: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Expected distance %f, got %f", tc.want, got)
			}
		})
	}
}
