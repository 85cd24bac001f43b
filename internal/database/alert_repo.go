package database

import (
	"context"
	"fmt"
	"time"

	"github.com/forensivid/forensivid/internal/models"
	"github.com/google/uuid"
)

type AlertRepo struct {
	db *DB
}

func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

func (r *AlertRepo) Create(ctx context.Context, a *models.Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO alerts (
			id, evidence_id, face_id, title, description,
			alert_level, alert_type, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.conn.ExecContext(ctx, query,
		a.ID, a.EvidenceID, a.FaceID, a.Title, a.Description,
		string(a.Level), a.Type, a.IsRead, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (r *AlertRepo) List(ctx context.Context, unreadOnly bool, limit int) ([]*models.Alert, error) {
	query := `
		SELECT id, evidence_id, face_id, title, description,
			   alert_level, alert_type, is_read, created_at
		FROM alerts`
	args := []interface{}{}
	if unreadOnly {
		query += ` WHERE is_read = $1`
		args = append(args, false)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		a := &models.Alert{}
		var level string
		if err := rows.Scan(
			&a.ID, &a.EvidenceID, &a.FaceID, &a.Title, &a.Description,
			&level, &a.Type, &a.IsRead, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Level = models.AlertLevel(level)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *AlertRepo) MarkRead(ctx context.Context, id string) error {
	query := `UPDATE alerts SET is_read = $1 WHERE id = $2`
	_, err := r.db.conn.ExecContext(ctx, query, true, id)
	return err
}
