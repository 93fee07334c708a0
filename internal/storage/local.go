package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourorg/strategy-optimizer/internal/config"
)

// LocalStorage implements the Storage interface for local filesystem
type LocalStorage struct {
	basePath string
	baseURL  string
}

// NewLocalStorage creates a new LocalStorage
func NewLocalStorage(cfg config.LocalStorageConfig) (*LocalStorage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		basePath: cfg.BasePath,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// Store saves a file to the local filesystem
func (s *LocalStorage) Store(ctx context.Context, key, _ string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temporary file first so readers never see a partial report
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	return s.baseURL + "/" + key, nil
}

// Get reads a file from the local filesystem
func (s *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return body, nil
}
