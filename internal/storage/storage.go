package storage

import (
	"errors"
	"io"
)

// ErrStorageUnavailable reports that the artifact store cannot accept
// writes. Pipeline runs must not start when storage is down.
var ErrStorageUnavailable = errors.New("storage unavailable")

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Store persists evidence sources and derived artifacts (heatmaps,
// enhanced crops, thumbnails, evidence packages).
type Store interface {
	// SaveEvidence streams an uploaded source file and returns its
	// storage path.
	SaveEvidence(r io.Reader, info FileInfo) (string, error)
	// PutArtifact writes a derived artifact under a logical path,
	// creating parent directories as needed.
	PutArtifact(path string, data []byte) (string, error)
	Open(path string) (io.ReadSeekCloser, error)
	Delete(path string) error
	// FullPath resolves a stored path to an absolute filesystem path
	// for tools that read files directly (ffmpeg).
	FullPath(path string) (string, error)
}
