// Package search answers "who else looks like this face" across all
// processed evidence. PostgreSQL deployments push the query into
// pgvector; SQLite deployments keep a process-local index warmed from
// the database at startup.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/forensivid/forensivid/internal/database"
	"github.com/forensivid/forensivid/internal/inference"
	"github.com/forensivid/forensivid/internal/models"
	"github.com/forensivid/forensivid/internal/vecindex"
)

// DefaultSearchThreshold is the maximum cosine distance for cross-
// evidence candidate matches. Looser than the pairwise verification
// threshold: search surfaces candidates, verification confirms them.
const DefaultSearchThreshold = 0.60

var ErrInvalidQuery = errors.New("query embedding is invalid")

// Match is one similarity result.
type Match struct {
	Face     *models.FaceObservation `json:"face"`
	Distance float64                 `json:"distance"`
}

type Config struct {
	Threshold  float64
	MaxResults int
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultSearchThreshold
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 20
	}
}

// Service runs similarity queries and records their results.
type Service struct {
	cfg      Config
	dbType   string
	findings *database.FindingRepo
	matches  *database.MatchRepo
	alerts   *database.AlertRepo
	index    *vecindex.Index
}

func NewService(db *database.DB, findings *database.FindingRepo, matches *database.MatchRepo, alerts *database.AlertRepo, cfg Config) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:      cfg,
		dbType:   db.Type(),
		findings: findings,
		matches:  matches,
		alerts:   alerts,
		index:    vecindex.NewIndex(inference.EmbeddingDim),
	}
}

// Warm loads every valid embedding into the in-memory index. PostgreSQL
// deployments skip this; the database holds the index there.
func (s *Service) Warm(ctx context.Context) error {
	if s.dbType == "postgres" {
		return nil
	}

	refs, err := s.findings.AllValidEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("warming similarity index: %w", err)
	}
	for _, ref := range refs {
		if err := s.index.Insert(ref.FaceID, ref.Vector); err != nil {
			return fmt.Errorf("indexing face %s: %w", ref.FaceID, err)
		}
	}
	log.Printf("[SEARCH] similarity index warmed with %d embeddings", len(refs))
	return nil
}

// IndexFace adds a newly committed observation to the in-memory index.
// The pipeline calls this after each batch commit so searches see new
// faces without a rewarm.
func (s *Service) IndexFace(faceID string, embedding []float32, valid bool) error {
	if s.dbType == "postgres" || !valid {
		return nil
	}
	return s.index.Insert(faceID, embedding)
}

// FindSimilar returns faces within the distance threshold of the query
// embedding, nearest first.
func (s *Service) FindSimilar(ctx context.Context, query []float32) ([]Match, error) {
	if len(query) != inference.EmbeddingDim {
		return nil, fmt.Errorf("%w: got %d components, want %d", ErrInvalidQuery, len(query), inference.EmbeddingDim)
	}
	if isZeroVector(query) {
		return nil, ErrInvalidQuery
	}

	if s.dbType == "postgres" {
		results, err := s.findings.SimilarFaces(ctx, query, s.cfg.Threshold, s.cfg.MaxResults)
		if err != nil {
			return nil, err
		}
		matches := make([]Match, 0, len(results))
		for _, r := range results {
			matches = append(matches, Match{Face: r.Face, Distance: r.Distance})
		}
		return matches, nil
	}

	hits, err := s.index.Search(query, s.cfg.Threshold, s.cfg.MaxResults)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		face, err := s.findings.FaceByID(ctx, hit.ID)
		if err != nil {
			return nil, err
		}
		if face == nil {
			// Index lag after a delete; skip.
			continue
		}
		matches = append(matches, Match{Face: face, Distance: hit.Distance})
	}
	return matches, nil
}

// FindSimilarToFace searches by an existing observation, excluding the
// observation itself from the results, and persists what it finds.
func (s *Service) FindSimilarToFace(ctx context.Context, faceID string) ([]Match, error) {
	face, err := s.findings.FaceByID(ctx, faceID)
	if err != nil {
		return nil, err
	}
	if face == nil {
		return nil, fmt.Errorf("face observation not found: %s", faceID)
	}
	if !face.EmbeddingValid {
		return nil, ErrInvalidQuery
	}

	all, err := s.FindSimilar(ctx, face.Embedding)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(all))
	for _, m := range all {
		if m.Face.ID == faceID {
			continue
		}
		matches = append(matches, m)

		if err := s.matches.Create(ctx, &models.FaceMatch{
			QueryFaceID:   faceID,
			MatchedFaceID: m.Face.ID,
			Distance:      m.Distance,
		}); err != nil {
			log.Printf("[SEARCH] failed to persist match %s -> %s: %v", faceID, m.Face.ID, err)
		}

		if m.Face.IsPersonOfInterest {
			s.raisePOIAlert(ctx, face, m)
		}
	}
	return matches, nil
}

func (s *Service) raisePOIAlert(ctx context.Context, query *models.FaceObservation, m Match) {
	label := m.Face.POILabel
	if label == "" {
		label = m.Face.ID
	}
	alert := &models.Alert{
		EvidenceID:  query.EvidenceID,
		FaceID:      m.Face.ID,
		Title:       fmt.Sprintf("Possible person of interest: %s", label),
		Description: fmt.Sprintf("Face %s matches flagged observation %s at distance %.3f", query.ID, m.Face.ID, m.Distance),
		Level:       models.AlertCritical,
		Type:        "face_match",
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		log.Printf("[SEARCH] failed to raise POI alert: %v", err)
	}
}

func isZeroVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
