// Package storage provides temporary file staging and optional S3 hosting.
// LocalStorage backs the transcoding work directory and export staging;
// S3Storage additionally hosts composite images for the video-generation
// service, which requires a fetchable URL.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary file staging.
type Storage interface {
	// TempDir returns the staging directory path.
	TempDir() string

	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error
}
