package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forensivid/forensivid/internal/models"
)

func newTestEvidence(sha256 string) *models.Evidence {
	return models.NewEvidence(
		"scene.mp4", "evidence/abc.mp4", "video/mp4", 1024,
		sha256, "sha512-of-"+sha256,
	)
}

func TestEvidenceCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepo(db)
	ctx := context.Background()

	ev := newTestEvidence("aaa111")
	if err := repo.Create(ctx, ev); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected evidence, got nil")
	}
	if got.SHA256 != "aaa111" || got.Status != models.StatusUploaded {
		t.Errorf("Unexpected evidence: %+v", got)
	}
	if got.ProcessedAt != nil {
		t.Errorf("Expected nil ProcessedAt, got %v", got.ProcessedAt)
	}

	byHash, err := repo.GetBySHA256(ctx, "aaa111")
	if err != nil {
		t.Fatalf("GetBySHA256 failed: %v", err)
	}
	if byHash == nil || byHash.ID != ev.ID {
		t.Errorf("Expected lookup by hash to find the same evidence")
	}
}

func TestEvidenceGetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepo(db)

	got, err := repo.GetByID(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing evidence, got %+v", got)
	}
}

func TestEvidenceDuplicateHash(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepo(db)
	ctx := context.Background()

	if err := repo.Create(ctx, newTestEvidence("samehash")); err != nil {
		t.Fatalf("First create failed: %v", err)
	}

	err := repo.Create(ctx, newTestEvidence("samehash"))
	if !errors.Is(err, ErrDuplicateEvidence) {
		t.Errorf("Expected ErrDuplicateEvidence, got %v", err)
	}
}

func TestEvidenceProgressMonotonic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepo(db)
	ctx := context.Background()

	ev := newTestEvidence("prog1")
	if err := repo.Create(ctx, ev); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, p := range []float64{10, 30, 20, 80, 50} {
		if err := repo.UpdateProgress(ctx, ev.ID, p); err != nil {
			t.Fatalf("UpdateProgress(%f) failed: %v", p, err)
		}
	}

	got, err := repo.GetByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Progress != 80 {
		t.Errorf("Expected progress to hold at 80, got %f", got.Progress)
	}
}

func TestEvidenceLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepo(db)
	ctx := context.Background()

	ev := newTestEvidence("life1")
	if err := repo.Create(ctx, ev); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.UpdateStatus(ctx, ev.ID, models.StatusProcessing); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := repo.UpdateMetadata(ctx, ev.ID, 12.5, 30, "1920x1080"); err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}
	if err := repo.Finalize(ctx, ev.ID, `{"frames":12}`); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	got, err := repo.GetByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("Expected completed status, got %s", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("Expected progress 100, got %f", got.Progress)
	}
	if got.ProcessedAt == nil {
		t.Error("Expected ProcessedAt to be set")
	}
	if got.Duration != 12.5 || got.FPS != 30 || got.Resolution != "1920x1080" {
		t.Errorf("Metadata not persisted: %+v", got)
	}
}

func TestEvidenceFail(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepo(db)
	ctx := context.Background()

	ev := newTestEvidence("fail1")
	if err := repo.Create(ctx, ev); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.UpdateProgress(ctx, ev.ID, 45); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := repo.Fail(ctx, ev.ID, "decoder crashed"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, ev.ID)
	if got.Status != models.StatusFailed {
		t.Errorf("Expected failed status, got %s", got.Status)
	}
	if got.ErrorMessage != "decoder crashed" {
		t.Errorf("Expected error message, got %q", got.ErrorMessage)
	}
	// Progress stays where the run stopped.
	if got.Progress != 45 {
		t.Errorf("Expected progress 45 after failure, got %f", got.Progress)
	}
}

func TestEvidenceList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvidenceRepo(db)
	ctx := context.Background()

	for i, hash := range []string{"l1", "l2", "l3"} {
		ev := newTestEvidence(hash)
		ev.UploadedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if err := repo.Create(ctx, ev); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	list, err := repo.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(list))
	}
	// Newest first.
	if list[0].SHA256 != "l3" {
		t.Errorf("Expected newest first, got %s", list[0].SHA256)
	}
}
