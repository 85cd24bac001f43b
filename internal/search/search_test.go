package search

import (
	"context"
	"errors"
	"testing"

	"github.com/forensivid/forensivid/internal/database"
	"github.com/forensivid/forensivid/internal/inference"
	"github.com/forensivid/forensivid/internal/models"
)

func setupService(t *testing.T) (*Service, *database.DB) {
	t.Helper()

	db, err := database.NewDB(database.Config{Type: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := NewService(db,
		database.NewFindingRepo(db),
		database.NewMatchRepo(db),
		database.NewAlertRepo(db),
		Config{},
	)
	return svc, db
}

func seedFace(t *testing.T, db *database.DB, evidenceID string, frame int, vec []float32, poi bool) *models.FaceObservation {
	t.Helper()
	face := &models.FaceObservation{
		EvidenceID:         evidenceID,
		FrameNumber:        frame,
		Embedding:          vec,
		EmbeddingValid:     !isZeroVector(vec),
		IsPersonOfInterest: poi,
	}
	if poi {
		face.POILabel = "suspect-a"
	}
	if err := database.NewFindingRepo(db).CommitBatch(context.Background(), nil, []*models.FaceObservation{face}); err != nil {
		t.Fatalf("Failed to seed face: %v", err)
	}
	return face
}

func seedEvidence(t *testing.T, db *database.DB, sha string) *models.Evidence {
	t.Helper()
	ev := models.NewEvidence("clip.mp4", "evidence/x.mp4", "video/mp4", 100, sha, "s512-"+sha)
	if err := database.NewEvidenceRepo(db).Create(context.Background(), ev); err != nil {
		t.Fatalf("Failed to seed evidence: %v", err)
	}
	return ev
}

func unitVec(direction int) []float32 {
	vec := make([]float32, inference.EmbeddingDim)
	vec[direction] = 1
	return vec
}

func TestFindSimilarOrdering(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ev := seedEvidence(t, db, "s1")

	near := unitVec(0)
	near[1] = 0.1 // slightly off-axis
	far := unitVec(1)

	exact := seedFace(t, db, ev.ID, 1, unitVec(0), false)
	close := seedFace(t, db, ev.ID, 2, near, false)
	seedFace(t, db, ev.ID, 3, far, false) // orthogonal, beyond threshold

	if err := svc.Warm(ctx); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	matches, err := svc.FindSimilar(ctx, unitVec(0))
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches within threshold, got %d", len(matches))
	}
	if matches[0].Face.ID != exact.ID {
		t.Errorf("Expected exact match first, got %s", matches[0].Face.ID)
	}
	if matches[1].Face.ID != close.ID {
		t.Errorf("Expected near match second, got %s", matches[1].Face.ID)
	}
	if matches[0].Distance > matches[1].Distance {
		t.Errorf("Matches not ordered by distance: %f > %f", matches[0].Distance, matches[1].Distance)
	}
}

func TestFindSimilarRejectsInvalidQuery(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.FindSimilar(ctx, make([]float32, 7)); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery for wrong dimension, got %v", err)
	}
	if _, err := svc.FindSimilar(ctx, make([]float32, inference.EmbeddingDim)); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery for zero vector, got %v", err)
	}
}

func TestFindSimilarToFaceExcludesSelf(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ev := seedEvidence(t, db, "s2")

	query := seedFace(t, db, ev.ID, 1, unitVec(0), false)
	twin := seedFace(t, db, ev.ID, 2, unitVec(0), false)

	if err := svc.Warm(ctx); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	matches, err := svc.FindSimilarToFace(ctx, query.ID)
	if err != nil {
		t.Fatalf("FindSimilarToFace failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}
	if matches[0].Face.ID != twin.ID {
		t.Errorf("Expected twin, got %s", matches[0].Face.ID)
	}

	// The match must be persisted for later review.
	persisted, err := database.NewMatchRepo(db).ByQueryFace(ctx, query.ID)
	if err != nil {
		t.Fatalf("ByQueryFace failed: %v", err)
	}
	if len(persisted) != 1 || persisted[0].MatchedFaceID != twin.ID {
		t.Errorf("Match not persisted: %+v", persisted)
	}
}

func TestFindSimilarToFaceInvalidEmbedding(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ev := seedEvidence(t, db, "s3")

	invalid := seedFace(t, db, ev.ID, 1, inference.InvalidEmbedding().Vector, false)

	if _, err := svc.FindSimilarToFace(ctx, invalid.ID); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery, got %v", err)
	}
}

func TestPOIMatchRaisesAlert(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ev := seedEvidence(t, db, "s4")

	query := seedFace(t, db, ev.ID, 1, unitVec(0), false)
	seedFace(t, db, ev.ID, 2, unitVec(0), true) // flagged twin

	if err := svc.Warm(ctx); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	if _, err := svc.FindSimilarToFace(ctx, query.ID); err != nil {
		t.Fatalf("FindSimilarToFace failed: %v", err)
	}

	alerts, err := database.NewAlertRepo(db).List(ctx, true, 10)
	if err != nil {
		t.Fatalf("List alerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 POI alert, got %d", len(alerts))
	}
	if alerts[0].Level != models.AlertCritical || alerts[0].Type != "face_match" {
		t.Errorf("Unexpected alert: %+v", alerts[0])
	}
}

func TestIndexFaceLiveUpdate(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ev := seedEvidence(t, db, "s5")

	if err := svc.Warm(ctx); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	// Committed after warm-up; visible only through IndexFace.
	face := seedFace(t, db, ev.ID, 1, unitVec(2), false)
	if err := svc.IndexFace(face.ID, face.Embedding, true); err != nil {
		t.Fatalf("IndexFace failed: %v", err)
	}

	matches, err := svc.FindSimilar(ctx, unitVec(2))
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Face.ID != face.ID {
		t.Errorf("Live-indexed face not found: %+v", matches)
	}
}
