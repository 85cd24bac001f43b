package database

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn   *sql.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func NewDB(config Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		conn, err = sql.Open("sqlite3", config.SQLitePath)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, dbType: config.Type}

	// PostgreSQL schema is managed by migrations; SQLite creates its
	// tables directly.
	if config.Type == "sqlite" {
		if err := db.createTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS evidence (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		fps REAL NOT NULL DEFAULT 0,
		resolution TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'uploaded',
		progress REAL NOT NULL DEFAULT 0,
		sha256_hash TEXT NOT NULL UNIQUE,
		sha512_hash TEXT NOT NULL,
		thumbnail_url TEXT NOT NULL DEFAULT '',
		analysis_results TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		uploaded_at DATETIME NOT NULL,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS custody_records (
		id TEXT PRIMARY KEY,
		evidence_id TEXT NOT NULL REFERENCES evidence(id),
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		hash_before TEXT NOT NULL DEFAULT '',
		hash_after TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_custody_evidence ON custody_records(evidence_id, timestamp);

	CREATE TABLE IF NOT EXISTS detections (
		id TEXT PRIMARY KEY,
		evidence_id TEXT NOT NULL REFERENCES evidence(id),
		frame_number INTEGER NOT NULL,
		timestamp_in_video REAL NOT NULL,
		object_class TEXT NOT NULL,
		confidence REAL NOT NULL,
		bbox_x INTEGER NOT NULL,
		bbox_y INTEGER NOT NULL,
		bbox_width INTEGER NOT NULL,
		bbox_height INTEGER NOT NULL,
		snapshot_url TEXT NOT NULL DEFAULT '',
		detected_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_detections_evidence ON detections(evidence_id, frame_number);

	CREATE TABLE IF NOT EXISTS face_observations (
		id TEXT PRIMARY KEY,
		evidence_id TEXT NOT NULL REFERENCES evidence(id),
		frame_number INTEGER NOT NULL,
		timestamp_in_video REAL NOT NULL,
		confidence REAL NOT NULL,
		bbox_x INTEGER NOT NULL,
		bbox_y INTEGER NOT NULL,
		bbox_width INTEGER NOT NULL,
		bbox_height INTEGER NOT NULL,
		embedding TEXT NOT NULL,
		embedding_valid INTEGER NOT NULL DEFAULT 0,
		age INTEGER,
		gender TEXT,
		emotion TEXT,
		ethnicity TEXT,
		face_image_url TEXT NOT NULL DEFAULT '',
		enhanced_face_url TEXT NOT NULL DEFAULT '',
		is_person_of_interest INTEGER NOT NULL DEFAULT 0,
		poi_label TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		detected_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_faces_evidence ON face_observations(evidence_id, frame_number);

	CREATE TABLE IF NOT EXISTS face_matches (
		id TEXT PRIMARY KEY,
		query_face_id TEXT NOT NULL REFERENCES face_observations(id),
		matched_face_id TEXT NOT NULL REFERENCES face_observations(id),
		distance REAL NOT NULL,
		is_confirmed INTEGER NOT NULL DEFAULT 0,
		confirmed_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS motion_summaries (
		id TEXT PRIMARY KEY,
		evidence_id TEXT NOT NULL REFERENCES evidence(id),
		heatmap_url TEXT NOT NULL DEFAULT '',
		start_time REAL NOT NULL,
		end_time REAL NOT NULL,
		movement_score REAL NOT NULL,
		hotspot_count INTEGER NOT NULL DEFAULT 0,
		hotspots TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		evidence_id TEXT NOT NULL DEFAULT '',
		face_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		alert_level TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	`

	_, err := db.conn.Exec(query)
	return err
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Type() string {
	return db.dbType
}
