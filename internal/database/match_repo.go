package database

import (
	"context"
	"fmt"
	"time"

	"github.com/forensivid/forensivid/internal/models"
	"github.com/google/uuid"
)

// MatchRepo persists similarity-search results so investigators can
// review and confirm them later.
type MatchRepo struct {
	db *DB
}

func NewMatchRepo(db *DB) *MatchRepo {
	return &MatchRepo{db: db}
}

func (r *MatchRepo) Create(ctx context.Context, m *models.FaceMatch) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO face_matches (
			id, query_face_id, matched_face_id, distance,
			is_confirmed, confirmed_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.conn.ExecContext(ctx, query,
		m.ID, m.QueryFaceID, m.MatchedFaceID, m.Distance,
		m.IsConfirmed, m.ConfirmedBy, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert face match: %w", err)
	}
	return nil
}

func (r *MatchRepo) ByQueryFace(ctx context.Context, faceID string) ([]*models.FaceMatch, error) {
	query := `
		SELECT id, query_face_id, matched_face_id, distance,
			   is_confirmed, confirmed_by, created_at
		FROM face_matches
		WHERE query_face_id = $1
		ORDER BY distance`

	rows, err := r.db.conn.QueryContext(ctx, query, faceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query face matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.FaceMatch
	for rows.Next() {
		m := &models.FaceMatch{}
		if err := rows.Scan(
			&m.ID, &m.QueryFaceID, &m.MatchedFaceID, &m.Distance,
			&m.IsConfirmed, &m.ConfirmedBy, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan face match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Confirm records an investigator's confirmation of a match.
func (r *MatchRepo) Confirm(ctx context.Context, id, confirmedBy string) error {
	query := `UPDATE face_matches SET is_confirmed = $1, confirmed_by = $2 WHERE id = $3`
	res, err := r.db.conn.ExecContext(ctx, query, true, confirmedBy, id)
	if err != nil {
		return fmt.Errorf("failed to confirm match: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("face match not found: %s", id)
	}
	return nil
}
