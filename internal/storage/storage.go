package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var ErrInvalidPath = errors.New("invalid object path")

// BlobStorage stores objects under slash-separated paths such as
// "ticket_images/{id}.jpg".
type BlobStorage interface {
	// Put writes the object at p and returns a stable HTTPS URL for it.
	Put(ctx context.Context, p string, r io.Reader, contentType string) (string, error)
	// Delete removes the object at p. Deleting a missing object is not an error.
	Delete(ctx context.Context, p string) error
}

// cleanPath rejects absolute paths and parent traversal.
func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}
