// Package storage manages the temporary upload staging area. Files land
// here after upload and leave when they are archived or discarded.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// UploadStore stages uploaded invoice files on the local filesystem.
type UploadStore struct {
	baseDir string
	logger  *zap.Logger
}

func NewUploadStore(baseDir string, logger *zap.Logger) *UploadStore {
	return &UploadStore{baseDir: baseDir, logger: logger}
}

// Dir returns the staging directory.
func (s *UploadStore) Dir() string {
	return s.baseDir
}

// SaveUpload writes content under the given file name inside the staging
// directory. Name collisions get a numeric suffix rather than overwriting
// an earlier upload. Returns the path the file was written to.
func (s *UploadStore) SaveUpload(fileName string, content []byte) (string, error) {
	if err := s.validateName(fileName); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := s.nextFreePath(fileName)
	if err := os.WriteFile(path, content, 0644); err != nil {
		s.logger.Error("Failed to stage upload",
			zap.String("path", path),
			zap.Error(err))
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}

	s.logger.Debug("Upload staged",
		zap.String("path", path),
		zap.Int("size_bytes", len(content)))
	return path, nil
}

// Remove deletes one staged file. Missing files are not an error; the
// caller may already have archived the file away.
func (s *UploadStore) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove staged upload",
			zap.String("path", path), zap.Error(err))
	}
}

// Cleanup empties the staging directory. Each entry is removed
// independently so one stuck file does not strand the rest.
func (s *UploadStore) Cleanup() error {
	dirEntries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read upload directory: %w", err)
	}

	var failed int
	for _, entry := range dirEntries {
		path := filepath.Join(s.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			failed++
			s.logger.Warn("Failed to remove staged entry",
				zap.String("path", path), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to remove %d staged entries", failed)
	}
	return nil
}

// validateName rejects names that would escape the staging directory.
func (s *UploadStore) validateName(fileName string) error {
	if fileName == "" {
		return fmt.Errorf("empty file name")
	}
	base := filepath.Base(fileName)
	if base != fileName || strings.Contains(fileName, "..") {
		return fmt.Errorf("invalid file name: %s", fileName)
	}
	return nil
}

// nextFreePath appends _1, _2, ... to the stem until the name is free.
func (s *UploadStore) nextFreePath(fileName string) string {
	path := filepath.Join(s.baseDir, fileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(fileName)
	stem := strings.TrimSuffix(fileName, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(s.baseDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
