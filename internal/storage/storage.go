package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/sirupsen/logrus"
	storage_go "github.com/supabase-community/storage-go"
)

// Bucket names used by the pipelines.
const (
	BucketSourceVideos = "source-videos"
	BucketHookVideos   = "hook-videos"
	BucketMergeVideos  = "merge-videos"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFileName replaces every character that is unsafe in a storage path
// with an underscore.
func SanitizeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

// BlobStore is the object storage surface the pipelines need. Paths are
// relative to the bucket.
type BlobStore interface {
	Upload(bucket, path string, r io.Reader, contentType string) error
	Download(bucket, path, destPath string) error
	Delete(bucket string, paths []string) error
	SignedURL(bucket, path string, expiresInSeconds int) (string, error)
}

// SupabaseStore implements BlobStore on Supabase object storage.
type SupabaseStore struct {
	client *storage_go.Client
	log    *logrus.Logger
}

// NewSupabaseStore creates a BlobStore on the storage facet of the shared
// Supabase client.
func NewSupabaseStore(client *storage_go.Client, log *logrus.Logger) *SupabaseStore {
	return &SupabaseStore{client: client, log: log}
}

// Upload streams r into the bucket at path, replacing any existing object.
func (s *SupabaseStore) Upload(bucket, path string, r io.Reader, contentType string) error {
	upsert := true
	opts := storage_go.FileOptions{Upsert: &upsert}
	if contentType != "" {
		opts.ContentType = &contentType
	}
	if _, err := s.client.UploadFile(bucket, path, r, opts); err != nil {
		return fmt.Errorf("uploading %s/%s: %w", bucket, path, err)
	}
	s.log.WithFields(logrus.Fields{"bucket": bucket, "path": path}).Info("Uploaded object")
	return nil
}

// Download fetches an object into destPath, writing through a temp file so a
// partial download never masquerades as a complete one.
func (s *SupabaseStore) Download(bucket, path, destPath string) error {
	data, err := s.client.DownloadFile(bucket, path)
	if err != nil {
		return fmt.Errorf("downloading %s/%s: %w", bucket, path, err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating download dir: %w", err)
	}
	tmp := destPath + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return fmt.Errorf("finalizing %s: %w", destPath, err)
	}
	return nil
}

// Delete removes objects from a bucket. Missing objects are not an error.
func (s *SupabaseStore) Delete(bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := s.client.RemoveFile(bucket, paths); err != nil {
		return fmt.Errorf("deleting from %s: %w", bucket, err)
	}
	return nil
}

// SignedURL returns a time-limited download URL for an object.
func (s *SupabaseStore) SignedURL(bucket, path string, expiresInSeconds int) (string, error) {
	resp, err := s.client.CreateSignedUrl(bucket, path, expiresInSeconds)
	if err != nil {
		return "", fmt.Errorf("signing %s/%s: %w", bucket, path, err)
	}
	return resp.SignedURL, nil
}
