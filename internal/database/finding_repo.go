package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forensivid/forensivid/internal/models"
	"github.com/google/uuid"
)

// FindingRepo persists per-frame findings. Batches commit atomically so
// a crash never leaves a frame half-written; the checkpoint query lets
// a restarted run skip everything already committed.
type FindingRepo struct {
	db *DB
}

func NewFindingRepo(db *DB) *FindingRepo {
	return &FindingRepo{db: db}
}

// CommitBatch writes a batch of detections and face observations in one
// transaction. IDs are assigned here if missing.
func (r *FindingRepo) CommitBatch(ctx context.Context, detections []*models.Detection, faces []*models.FaceObservation) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	detQuery := `
		INSERT INTO detections (
			id, evidence_id, frame_number, timestamp_in_video, object_class,
			confidence, bbox_x, bbox_y, bbox_width, bbox_height,
			snapshot_url, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	for _, d := range detections {
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		if d.DetectedAt.IsZero() {
			d.DetectedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, detQuery,
			d.ID, d.EvidenceID, d.FrameNumber, d.Timestamp, d.ObjectClass,
			d.Confidence, d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height,
			d.SnapshotURL, d.DetectedAt,
		); err != nil {
			return fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	faceQuery := `
		INSERT INTO face_observations (
			id, evidence_id, frame_number, timestamp_in_video, confidence,
			bbox_x, bbox_y, bbox_width, bbox_height,
			embedding, embedding_valid, age, gender, emotion, ethnicity,
			face_image_url, enhanced_face_url,
			is_person_of_interest, poi_label, notes, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	for _, f := range faces {
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		if f.DetectedAt.IsZero() {
			f.DetectedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, faceQuery,
			f.ID, f.EvidenceID, f.FrameNumber, f.Timestamp, f.Confidence,
			f.Box.X, f.Box.Y, f.Box.Width, f.Box.Height,
			encodeVector(f.Embedding), f.EmbeddingValid,
			f.Age, f.Gender, f.Emotion, f.Ethnicity,
			f.FaceImageURL, f.EnhancedFaceURL,
			f.IsPersonOfInterest, f.POILabel, f.Notes, f.DetectedAt,
		); err != nil {
			return fmt.Errorf("failed to insert face observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Checkpoint returns the highest committed frame number for the
// evidence, or -1 when nothing has been committed yet.
func (r *FindingRepo) Checkpoint(ctx context.Context, evidenceID string) (int, error) {
	query := `
		SELECT COALESCE(MAX(frame_number), -1) FROM (
			SELECT frame_number FROM detections WHERE evidence_id = $1
			UNION ALL
			SELECT frame_number FROM face_observations WHERE evidence_id = $2
		) frames`

	var checkpoint int
	if err := r.db.conn.QueryRowContext(ctx, query, evidenceID, evidenceID).Scan(&checkpoint); err != nil {
		return 0, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	return checkpoint, nil
}

func (r *FindingRepo) DetectionsByEvidence(ctx context.Context, evidenceID string) ([]*models.Detection, error) {
	query := `
		SELECT id, evidence_id, frame_number, timestamp_in_video, object_class,
			   confidence, bbox_x, bbox_y, bbox_width, bbox_height,
			   snapshot_url, detected_at
		FROM detections
		WHERE evidence_id = $1
		ORDER BY frame_number`

	rows, err := r.db.conn.QueryContext(ctx, query, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []*models.Detection
	for rows.Next() {
		d := &models.Detection{}
		if err := rows.Scan(
			&d.ID, &d.EvidenceID, &d.FrameNumber, &d.Timestamp, &d.ObjectClass,
			&d.Confidence, &d.Box.X, &d.Box.Y, &d.Box.Width, &d.Box.Height,
			&d.SnapshotURL, &d.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}

const faceColumns = `
	id, evidence_id, frame_number, timestamp_in_video, confidence,
	bbox_x, bbox_y, bbox_width, bbox_height,
	embedding, embedding_valid, age, gender, emotion, ethnicity,
	face_image_url, enhanced_face_url,
	is_person_of_interest, poi_label, notes, detected_at`

func (r *FindingRepo) FacesByEvidence(ctx context.Context, evidenceID string) ([]*models.FaceObservation, error) {
	query := `SELECT` + faceColumns + `
		FROM face_observations
		WHERE evidence_id = $1
		ORDER BY frame_number`

	rows, err := r.db.conn.QueryContext(ctx, query, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query face observations: %w", err)
	}
	defer rows.Close()

	var faces []*models.FaceObservation
	for rows.Next() {
		f, err := scanFace(rows)
		if err != nil {
			return nil, err
		}
		faces = append(faces, f)
	}
	return faces, rows.Err()
}

func (r *FindingRepo) FaceByID(ctx context.Context, id string) (*models.FaceObservation, error) {
	query := `SELECT` + faceColumns + ` FROM face_observations WHERE id = $1`

	f, err := scanFace(r.db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// UpdateAnnotation records investigator judgment on a face observation.
// Annotation fields are the only mutable part of a finding.
func (r *FindingRepo) UpdateAnnotation(ctx context.Context, faceID string, isPOI bool, label, notes string) error {
	query := `
		UPDATE face_observations
		SET is_person_of_interest = $1, poi_label = $2, notes = $3
		WHERE id = $4`

	res, err := r.db.conn.ExecContext(ctx, query, isPOI, label, notes, faceID)
	if err != nil {
		return fmt.Errorf("failed to update annotation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("face observation not found: %s", faceID)
	}
	return nil
}

// EmbeddingRef is the minimal record the in-memory index needs.
type EmbeddingRef struct {
	FaceID     string
	EvidenceID string
	Vector     []float32
}

// AllValidEmbeddings streams every valid embedding for index warm-up.
// Invalid (all-zero) embeddings never enter the index.
func (r *FindingRepo) AllValidEmbeddings(ctx context.Context) ([]EmbeddingRef, error) {
	query := `
		SELECT id, evidence_id, embedding
		FROM face_observations
		WHERE embedding_valid = $1`

	rows, err := r.db.conn.QueryContext(ctx, query, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var refs []EmbeddingRef
	for rows.Next() {
		var ref EmbeddingRef
		var encoded string
		if err := rows.Scan(&ref.FaceID, &ref.EvidenceID, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := decodeVector(encoded)
		if err != nil {
			return nil, fmt.Errorf("corrupt embedding for face %s: %w", ref.FaceID, err)
		}
		ref.Vector = vec
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// FaceDistance is a face observation paired with its cosine distance to
// a query vector.
type FaceDistance struct {
	Face     *models.FaceObservation
	Distance float64
}

// SimilarFaces runs the similarity query inside PostgreSQL using the
// pgvector cosine operator. SQLite deployments use the in-memory index
// instead; calling this there is an error.
func (r *FindingRepo) SimilarFaces(ctx context.Context, query []float32, maxDistance float64, limit int) ([]FaceDistance, error) {
	if r.db.dbType != "postgres" {
		return nil, fmt.Errorf("vector search requires postgres, have %s", r.db.dbType)
	}

	sqlQuery := `SELECT` + faceColumns + `, embedding <=> $1 AS distance
		FROM face_observations
		WHERE embedding_valid = TRUE AND embedding <=> $1 <= $2
		ORDER BY distance
		LIMIT $3`

	rows, err := r.db.conn.QueryContext(ctx, sqlQuery, encodeVector(query), maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	defer rows.Close()

	var results []FaceDistance
	for rows.Next() {
		var fd FaceDistance
		f, err := scanFaceWithDistance(rows, &fd.Distance)
		if err != nil {
			return nil, err
		}
		fd.Face = f
		results = append(results, fd)
	}
	return results, rows.Err()
}

func scanFace(row rowScanner) (*models.FaceObservation, error) {
	return scanFaceWithDistance(row, nil)
}

func scanFaceWithDistance(row rowScanner, distance *float64) (*models.FaceObservation, error) {
	f := &models.FaceObservation{}
	var encoded string

	dest := []interface{}{
		&f.ID, &f.EvidenceID, &f.FrameNumber, &f.Timestamp, &f.Confidence,
		&f.Box.X, &f.Box.Y, &f.Box.Width, &f.Box.Height,
		&encoded, &f.EmbeddingValid, &f.Age, &f.Gender, &f.Emotion, &f.Ethnicity,
		&f.FaceImageURL, &f.EnhancedFaceURL,
		&f.IsPersonOfInterest, &f.POILabel, &f.Notes, &f.DetectedAt,
	}
	if distance != nil {
		dest = append(dest, distance)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan face observation: %w", err)
	}

	vec, err := decodeVector(encoded)
	if err != nil {
		return nil, fmt.Errorf("corrupt embedding for face %s: %w", f.ID, err)
	}
	f.Embedding = vec
	return f, nil
}

// encodeVector renders "[v1,v2,...]", which both pgvector and SQLite
// accept as-is (it is also valid JSON).
func encodeVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func decodeVector(encoded string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(encoded), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
