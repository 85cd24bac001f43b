package models

import "time"

type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is an object-class finding on a single sampled frame.
type Detection struct {
	ID          string      `json:"id"`
	EvidenceID  string      `json:"evidence_id"`
	FrameNumber int         `json:"frame_number"`
	Timestamp   float64     `json:"timestamp_in_video"`
	ObjectClass string      `json:"object_class"`
	Confidence  float64     `json:"confidence"`
	Box         BoundingBox `json:"bbox"`
	SnapshotURL string      `json:"snapshot_url,omitempty"`
	DetectedAt  time.Time   `json:"detected_at"`
}

// FaceObservation ties a detected face to its biometric embedding. The
// embedding always has exactly the configured dimensionality; when the
// embedder failed, EmbeddingValid is false and the vector is all zeros.
type FaceObservation struct {
	ID              string      `json:"id"`
	EvidenceID      string      `json:"evidence_id"`
	FrameNumber     int         `json:"frame_number"`
	Timestamp       float64     `json:"timestamp_in_video"`
	Confidence      float64     `json:"confidence"`
	Box             BoundingBox `json:"bbox"`
	Embedding       []float32   `json:"-"`
	EmbeddingValid  bool        `json:"embedding_valid"`
	Age             *int        `json:"age,omitempty"`
	Gender          *string     `json:"gender,omitempty"`
	Emotion         *string     `json:"emotion,omitempty"`
	Ethnicity       *string     `json:"ethnicity,omitempty"`
	FaceImageURL    string      `json:"face_image_url,omitempty"`
	EnhancedFaceURL string      `json:"enhanced_face_url,omitempty"`

	// Investigator annotations, owned by an external actor after
	// processing completes.
	IsPersonOfInterest bool   `json:"is_person_of_interest"`
	POILabel           string `json:"poi_label,omitempty"`
	Notes              string `json:"notes,omitempty"`

	DetectedAt time.Time `json:"detected_at"`
}

// FaceMatch pairs two observations with a cosine distance. Matches are
// derived by similarity search, never during ingestion.
type FaceMatch struct {
	ID            string    `json:"id"`
	QueryFaceID   string    `json:"query_face_id"`
	MatchedFaceID string    `json:"matched_face_id"`
	Distance      float64   `json:"similarity_score"`
	IsConfirmed   bool      `json:"is_confirmed"`
	ConfirmedBy   string    `json:"confirmed_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Hotspot struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MotionSummary aggregates frame-difference intensity over a time window.
type MotionSummary struct {
	ID            string    `json:"id"`
	EvidenceID    string    `json:"evidence_id"`
	HeatmapURL    string    `json:"heatmap_image_url,omitempty"`
	StartTime     float64   `json:"start_time"`
	EndTime       float64   `json:"end_time"`
	MovementScore float64   `json:"total_movement_score"`
	HotspotCount  int       `json:"hotspot_count"`
	Hotspots      []Hotspot `json:"hotspot_coordinates,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type AlertLevel string

const (
	AlertLow      AlertLevel = "low"
	AlertMedium   AlertLevel = "medium"
	AlertHigh     AlertLevel = "high"
	AlertCritical AlertLevel = "critical"
)

// Alert is a fire-and-forget notification emitted by the pipeline.
type Alert struct {
	ID          string     `json:"id"`
	EvidenceID  string     `json:"evidence_id,omitempty"`
	FaceID      string     `json:"face_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Level       AlertLevel `json:"alert_level"`
	Type        string     `json:"alert_type"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
}
