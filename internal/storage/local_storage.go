package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore keeps evidence and artifacts under a base directory.
// Artifact paths are relative to the base and validated against
// traversal; callers never hand absolute paths across this boundary.
type LocalStore struct {
	basePath string
}

func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

func (ls *LocalStore) SaveEvidence(r io.Reader, info FileInfo) (string, error) {
	ext := filepath.Ext(info.Filename)
	if ext == "" {
		ext = ".mp4"
	}

	filename := filepath.Join("evidence", fmt.Sprintf("%s%s", uuid.New().String(), ext))
	fullPath := filepath.Join(ls.basePath, filename)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create evidence directory: %w", err)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return filename, nil
}

func (ls *LocalStore) PutArtifact(path string, data []byte) (string, error) {
	cleanPath, err := ls.safePath(path)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(ls.basePath, cleanPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return cleanPath, nil
}

func (ls *LocalStore) Open(path string) (io.ReadSeekCloser, error) {
	cleanPath, err := ls.safePath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(ls.basePath, cleanPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (ls *LocalStore) Delete(path string) error {
	cleanPath, err := ls.safePath(path)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(ls.basePath, cleanPath)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (ls *LocalStore) FullPath(path string) (string, error) {
	cleanPath, err := ls.safePath(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(ls.basePath, cleanPath), nil
}

func (ls *LocalStore) safePath(path string) (string, error) {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("invalid path")
	}
	return cleanPath, nil
}
