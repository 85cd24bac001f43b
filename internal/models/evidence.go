package models

import (
	"time"

	"github.com/google/uuid"
)

type EvidenceStatus string

const (
	StatusUploaded   EvidenceStatus = "uploaded"
	StatusProcessing EvidenceStatus = "processing"
	StatusCompleted  EvidenceStatus = "completed"
	StatusFailed     EvidenceStatus = "failed"
)

// Evidence is a single ingested video. The SHA-256 content hash, not the
// assigned ID, is the deduplication key: identical bytes are one Evidence.
type Evidence struct {
	ID               string         `json:"id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename"`
	ContentType      string         `json:"content_type"`
	Size             int64          `json:"size"`
	Duration         float64        `json:"duration"`
	FPS              float64        `json:"fps"`
	Resolution       string         `json:"resolution"`
	Status           EvidenceStatus `json:"status"`
	Progress         float64        `json:"processing_progress"`
	SHA256           string         `json:"sha256_hash"`
	SHA512           string         `json:"sha512_hash"`
	ThumbnailURL     string         `json:"thumbnail_url,omitempty"`
	AnalysisResults  string         `json:"analysis_results,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	UploadedAt       time.Time      `json:"uploaded_at"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
}

func NewEvidence(originalFilename, storedFilename, contentType string, size int64, sha256Hex, sha512Hex string) *Evidence {
	return &Evidence{
		ID:               uuid.New().String(),
		Filename:         storedFilename,
		OriginalFilename: originalFilename,
		ContentType:      contentType,
		Size:             size,
		Status:           StatusUploaded,
		SHA256:           sha256Hex,
		SHA512:           sha512Hex,
		UploadedAt:       time.Now().UTC(),
	}
}

// CustodyRecord is one immutable entry in an Evidence's chain of custody.
// Records are append-only: once written they are never edited or deleted.
type CustodyRecord struct {
	ID         string    `json:"id"`
	EvidenceID string    `json:"evidence_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	HashBefore string    `json:"hash_before,omitempty"`
	HashAfter  string    `json:"hash_after,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
