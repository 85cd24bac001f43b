package database

import (
	"context"
	"fmt"

	"github.com/forensivid/forensivid/internal/models"
	"github.com/google/uuid"
)

// CustodyRepo writes the append-only chain of custody. There are no
// update or delete methods on purpose.
type CustodyRepo struct {
	db *DB
}

func NewCustodyRepo(db *DB) *CustodyRepo {
	return &CustodyRepo{db: db}
}

func (r *CustodyRepo) Append(ctx context.Context, rec *models.CustodyRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	query := `
		INSERT INTO custody_records (
			id, evidence_id, action, actor, hash_before, hash_after, details, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.conn.ExecContext(ctx, query,
		rec.ID, rec.EvidenceID, rec.Action, rec.Actor,
		rec.HashBefore, rec.HashAfter, rec.Details, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append custody record: %w", err)
	}
	return nil
}

// ChainFor returns the full chain for one evidence item in insertion
// order.
func (r *CustodyRepo) ChainFor(ctx context.Context, evidenceID string) ([]*models.CustodyRecord, error) {
	query := `
		SELECT id, evidence_id, action, actor, hash_before, hash_after, details, timestamp
		FROM custody_records
		WHERE evidence_id = $1
		ORDER BY timestamp, id`

	rows, err := r.db.conn.QueryContext(ctx, query, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query custody chain: %w", err)
	}
	defer rows.Close()

	var chain []*models.CustodyRecord
	for rows.Next() {
		rec := &models.CustodyRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.EvidenceID, &rec.Action, &rec.Actor,
			&rec.HashBefore, &rec.HashAfter, &rec.Details, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan custody record: %w", err)
		}
		chain = append(chain, rec)
	}
	return chain, rows.Err()
}
