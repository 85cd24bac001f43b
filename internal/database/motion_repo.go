package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forensivid/forensivid/internal/models"
	"github.com/google/uuid"
)

type MotionRepo struct {
	db *DB
}

func NewMotionRepo(db *DB) *MotionRepo {
	return &MotionRepo{db: db}
}

func (r *MotionRepo) Create(ctx context.Context, m *models.MotionSummary) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	hotspots, err := json.Marshal(m.Hotspots)
	if err != nil {
		return fmt.Errorf("failed to marshal hotspots: %w", err)
	}

	query := `
		INSERT INTO motion_summaries (
			id, evidence_id, heatmap_url, start_time, end_time,
			movement_score, hotspot_count, hotspots, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.conn.ExecContext(ctx, query,
		m.ID, m.EvidenceID, m.HeatmapURL, m.StartTime, m.EndTime,
		m.MovementScore, m.HotspotCount, string(hotspots), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert motion summary: %w", err)
	}
	return nil
}

func (r *MotionRepo) ByEvidence(ctx context.Context, evidenceID string) ([]*models.MotionSummary, error) {
	query := `
		SELECT id, evidence_id, heatmap_url, start_time, end_time,
			   movement_score, hotspot_count, hotspots, created_at
		FROM motion_summaries
		WHERE evidence_id = $1
		ORDER BY start_time`

	rows, err := r.db.conn.QueryContext(ctx, query, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query motion summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.MotionSummary
	for rows.Next() {
		m := &models.MotionSummary{}
		var hotspots string
		if err := rows.Scan(
			&m.ID, &m.EvidenceID, &m.HeatmapURL, &m.StartTime, &m.EndTime,
			&m.MovementScore, &m.HotspotCount, &hotspots, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan motion summary: %w", err)
		}
		if hotspots != "" {
			if err := json.Unmarshal([]byte(hotspots), &m.Hotspots); err != nil {
				m.Hotspots = nil
			}
		}
		summaries = append(summaries, m)
	}
	return summaries, rows.Err()
}
