// Package storage persists rendered invoice documents and hands back a URL
// the order can carry. Sinks are interchangeable: local disk for single-node
// deployments, S3 when the bucket is configured.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Sink interface {
	// Store writes the document and returns a stable URL for it.
	Store(ctx context.Context, data []byte, contentType string) (string, error)
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// LocalSink writes documents under Dir and serves them at BaseURL/<name>.
type LocalSink struct {
	Dir     string
	BaseURL string
}

func NewLocalSink(dir string, baseURL string) (*LocalSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Err: err}
	}
	return &LocalSink{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalSink) Store(_ context.Context, data []byte, contentType string) (string, error) {
	name := uuid.NewString() + extensionFor(contentType)
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &StorageError{Op: "write", Err: err}
	}
	return s.BaseURL + "/" + name, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "text/plain":
		return ".txt"
	default:
		return ""
	}
}
