package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/forensivid/forensivid/internal/models"
)

// ErrDuplicateEvidence reports that evidence with the same SHA-256
// content hash already exists. The hash is the deduplication key.
var ErrDuplicateEvidence = errors.New("duplicate evidence")

type EvidenceRepo struct {
	db *DB
}

func NewEvidenceRepo(db *DB) *EvidenceRepo {
	return &EvidenceRepo{db: db}
}

func (r *EvidenceRepo) Create(ctx context.Context, ev *models.Evidence) error {
	existing, err := r.GetBySHA256(ctx, ev.SHA256)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateEvidence, existing.ID)
	}

	query := `
		INSERT INTO evidence (
			id, filename, original_filename, content_type, size,
			duration, fps, resolution, status, progress,
			sha256_hash, sha512_hash, thumbnail_url, analysis_results,
			error_message, uploaded_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = r.db.conn.ExecContext(ctx, query,
		ev.ID, ev.Filename, ev.OriginalFilename, ev.ContentType, ev.Size,
		ev.Duration, ev.FPS, ev.Resolution, string(ev.Status), ev.Progress,
		ev.SHA256, ev.SHA512, ev.ThumbnailURL, ev.AnalysisResults,
		ev.ErrorMessage, ev.UploadedAt, ev.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert evidence: %w", err)
	}
	return nil
}

const evidenceColumns = `
	id, filename, original_filename, content_type, size,
	duration, fps, resolution, status, progress,
	sha256_hash, sha512_hash, thumbnail_url, analysis_results,
	error_message, uploaded_at, processed_at`

func (r *EvidenceRepo) GetByID(ctx context.Context, id string) (*models.Evidence, error) {
	query := `SELECT` + evidenceColumns + ` FROM evidence WHERE id = $1`
	return r.scanOne(r.db.conn.QueryRowContext(ctx, query, id))
}

func (r *EvidenceRepo) GetBySHA256(ctx context.Context, sha256Hex string) (*models.Evidence, error) {
	query := `SELECT` + evidenceColumns + ` FROM evidence WHERE sha256_hash = $1`
	return r.scanOne(r.db.conn.QueryRowContext(ctx, query, sha256Hex))
}

func (r *EvidenceRepo) List(ctx context.Context, limit, offset int) ([]*models.Evidence, error) {
	query := `SELECT` + evidenceColumns + `
		FROM evidence ORDER BY uploaded_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var list []*models.Evidence
	for rows.Next() {
		ev, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

func (r *EvidenceRepo) UpdateStatus(ctx context.Context, id string, status models.EvidenceStatus) error {
	query := `UPDATE evidence SET status = $1 WHERE id = $2`
	_, err := r.db.conn.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// UpdateProgress is monotonic: a stale lower value never overwrites a
// later milestone.
func (r *EvidenceRepo) UpdateProgress(ctx context.Context, id string, progress float64) error {
	query := `
		UPDATE evidence
		SET progress = CASE WHEN progress < $1 THEN $1 ELSE progress END
		WHERE id = $2`
	_, err := r.db.conn.ExecContext(ctx, query, progress, id)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

func (r *EvidenceRepo) UpdateMetadata(ctx context.Context, id string, duration, fps float64, resolution string) error {
	query := `UPDATE evidence SET duration = $1, fps = $2, resolution = $3 WHERE id = $4`
	_, err := r.db.conn.ExecContext(ctx, query, duration, fps, resolution, id)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return nil
}

func (r *EvidenceRepo) SetThumbnail(ctx context.Context, id, url string) error {
	query := `UPDATE evidence SET thumbnail_url = $1 WHERE id = $2`
	_, err := r.db.conn.ExecContext(ctx, query, url, id)
	return err
}

// Finalize marks a run complete: status, summary JSON, full progress,
// and the completion timestamp in one statement.
func (r *EvidenceRepo) Finalize(ctx context.Context, id, analysisResults string) error {
	query := `
		UPDATE evidence
		SET status = $1, analysis_results = $2, progress = 100, processed_at = $3
		WHERE id = $4`
	_, err := r.db.conn.ExecContext(ctx, query,
		string(models.StatusCompleted), analysisResults, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finalize evidence: %w", err)
	}
	return nil
}

// Fail records a terminal failure with its reason. Progress is left
// where it stopped so operators can see how far the run got.
func (r *EvidenceRepo) Fail(ctx context.Context, id, errorMessage string) error {
	query := `UPDATE evidence SET status = $1, error_message = $2 WHERE id = $3`
	_, err := r.db.conn.ExecContext(ctx, query,
		string(models.StatusFailed), errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to mark evidence failed: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *EvidenceRepo) scanOne(row *sql.Row) (*models.Evidence, error) {
	ev, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

func (r *EvidenceRepo) scanRow(row rowScanner) (*models.Evidence, error) {
	ev := &models.Evidence{}
	var status string
	var processedAt sql.NullTime

	err := row.Scan(
		&ev.ID, &ev.Filename, &ev.OriginalFilename, &ev.ContentType, &ev.Size,
		&ev.Duration, &ev.FPS, &ev.Resolution, &status, &ev.Progress,
		&ev.SHA256, &ev.SHA512, &ev.ThumbnailURL, &ev.AnalysisResults,
		&ev.ErrorMessage, &ev.UploadedAt, &processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan evidence: %w", err)
	}

	ev.Status = models.EvidenceStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		ev.ProcessedAt = &t
	}
	return ev, nil
}
