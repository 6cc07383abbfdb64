package lms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/interfaces"
)

const maxPhotoSize = 10 * 1024 * 1024 // 10MB

// PhotoStorage downloads portal profile photos into the LMS head shot directory
type PhotoStorage struct {
	baseDir string
	client  *http.Client
	logger  arbor.ILogger
}

var _ interfaces.PhotoStore = (*PhotoStorage)(nil)

// NewPhotoStorage creates the photo directory if needed
func NewPhotoStorage(baseDir string, logger arbor.ILogger) (*PhotoStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return &PhotoStorage{
		baseDir: baseDir,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}, nil
}

// Download fetches photoURL and stores it under a fresh <uuid>.jpeg name, returning that name
func (s *PhotoStorage) Download(ctx context.Context, photoURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid photo url: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download photo: HTTP %d", resp.StatusCode)
	}

	name := uuid.NewString() + ".jpeg"
	path := s.Path(name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create photo file: %w", err)
	}

	written, err := io.Copy(file, io.LimitReader(resp.Body, maxPhotoSize+1))
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > maxPhotoSize {
		err = fmt.Errorf("photo exceeds %d bytes", maxPhotoSize)
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to store photo: %w", err)
	}

	s.logger.Debug().
		Str("file", name).
		Int64("size", written).
		Msg("Stored profile photo")
	return name, nil
}

// Path returns the absolute location of a stored photo
func (s *PhotoStorage) Path(name string) string {
	return filepath.Join(s.baseDir, filepath.Base(name))
}
