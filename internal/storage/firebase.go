package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// FirebaseStorage stores objects in the project's Firebase Storage bucket
// and returns token-bearing download URLs like the Firebase client SDKs do.
type FirebaseStorage struct {
	bucket *gcs.BucketHandle
	name   string
}

func NewFirebaseStorage(bucket *gcs.BucketHandle, name string) *FirebaseStorage {
	return &FirebaseStorage{bucket: bucket, name: name}
}

func (s *FirebaseStorage) Put(ctx context.Context, p string, r io.Reader, contentType string) (string, error) {
	key, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()

	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return downloadURL(s.name, key, token), nil
}

func (s *FirebaseStorage) Delete(ctx context.Context, p string) error {
	key, err := cleanPath(p)
	if err != nil {
		return err
	}
	if err := s.bucket.Object(key).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func downloadURL(bucket, key, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(key), token)
}
