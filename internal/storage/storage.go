package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/yourorg/strategy-optimizer/internal/config"
)

// ErrNotFound is returned when a stored object does not exist
var ErrNotFound = errors.New("object not found")

// Storage stores optimization reports
type Storage interface {
	// Store writes body under key and returns its public location
	Store(ctx context.Context, key, contentType string, body []byte) (string, error)
	// Get reads the object stored under key
	Get(ctx context.Context, key string) ([]byte, error)
}

// New creates the storage backend selected by the configuration
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Storage(cfg.S3)
	case "local", "":
		return NewLocalStorage(cfg.Local)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// ReportKey builds the object key of a run's report
func ReportKey(symbol, runID string) string {
	return path.Join("optimizations", strings.ToUpper(symbol), runID+".json")
}

// cleanKey rejects keys escaping the storage root
func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return cleaned, nil
}
