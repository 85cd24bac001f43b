package database

import (
	"context"
	"testing"

	"github.com/forensivid/forensivid/internal/models"
)

func TestMotionSummaryRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMotionRepo(db)
	ctx := context.Background()
	ev := seedEvidence(t, db, "motion1")

	summary := &models.MotionSummary{
		EvidenceID:    ev.ID,
		HeatmapURL:    "heatmaps/m1.png",
		StartTime:     0,
		EndTime:       10,
		MovementScore: 42.5,
		HotspotCount:  2,
		Hotspots:      []models.Hotspot{{X: 100, Y: 50}, {X: 300, Y: 200}},
	}
	if err := repo.Create(ctx, summary); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.ByEvidence(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ByEvidence failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 summary, got %d", len(got))
	}
	if got[0].MovementScore != 42.5 || len(got[0].Hotspots) != 2 {
		t.Errorf("Round trip mismatch: %+v", got[0])
	}
	if got[0].Hotspots[1].X != 300 {
		t.Errorf("Hotspot coordinates lost: %+v", got[0].Hotspots)
	}
}

func TestAlertRepo(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAlertRepo(db)
	ctx := context.Background()

	alerts := []*models.Alert{
		{Title: "Weapon detected", Level: models.AlertHigh, Type: "weapon_detection"},
		{Title: "POI match", Level: models.AlertCritical, Type: "face_match"},
	}
	for _, a := range alerts {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	unread, err := repo.List(ctx, true, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(unread) != 2 {
		t.Fatalf("Expected 2 unread alerts, got %d", len(unread))
	}

	if err := repo.MarkRead(ctx, alerts[0].ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	unread, _ = repo.List(ctx, true, 10)
	if len(unread) != 1 {
		t.Errorf("Expected 1 unread alert after MarkRead, got %d", len(unread))
	}
}

func TestMatchRepo(t *testing.T) {
	db := setupTestDB(t)
	findings := NewFindingRepo(db)
	matches := NewMatchRepo(db)
	ctx := context.Background()
	ev := seedEvidence(t, db, "match1")

	faces := []*models.FaceObservation{
		{EvidenceID: ev.ID, FrameNumber: 1, Embedding: testEmbedding(0.2), EmbeddingValid: true},
		{EvidenceID: ev.ID, FrameNumber: 2, Embedding: testEmbedding(0.21), EmbeddingValid: true},
	}
	if err := findings.CommitBatch(ctx, nil, faces); err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}

	m := &models.FaceMatch{
		QueryFaceID:   faces[0].ID,
		MatchedFaceID: faces[1].ID,
		Distance:      0.12,
	}
	if err := matches.Create(ctx, m); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := matches.ByQueryFace(ctx, faces[0].ID)
	if err != nil {
		t.Fatalf("ByQueryFace failed: %v", err)
	}
	if len(got) != 1 || got[0].Distance != 0.12 {
		t.Errorf("Unexpected matches: %+v", got)
	}

	if err := matches.Confirm(ctx, m.ID, "det. rivera"); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	got, _ = matches.ByQueryFace(ctx, faces[0].ID)
	if !got[0].IsConfirmed || got[0].ConfirmedBy != "det. rivera" {
		t.Errorf("Confirmation not persisted: %+v", got[0])
	}
}
