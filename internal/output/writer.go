// Package output persists pipeline responses, one destination per payload.
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/adt1extractor/internal/failure"
	"github.com/Lllllllleong/adt1extractor/internal/gcp"
)

// Writer stores payload under name and returns where it went.
// Each call replaces whatever was stored there before.
type Writer interface {
	Write(ctx context.Context, name, payload string) (string, error)
}

// FileWriter writes into a local directory. Files are created or truncated in
// place; a crash mid-write can leave a partial file.
type FileWriter struct {
	Dir string
}

// Write creates or truncates Dir/name and writes payload byte for byte.
func (w FileWriter) Write(_ context.Context, name, payload string) (string, error) {
	path := name
	if w.Dir != "" {
		path = filepath.Join(w.Dir, name)
	}
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w: %v", path, failure.ErrFileAccess, err)
	}
	return path, nil
}

// GCSWriter writes objects under Prefix in a Cloud Storage bucket.
type GCSWriter struct {
	Bucket *storage.BucketHandle
	Name   string
	Prefix string
}

// NewGCSWriter returns a writer for gs://bucket/prefix/.
func NewGCSWriter(client *storage.Client, bucket, prefix string) *GCSWriter {
	return &GCSWriter{Bucket: client.Bucket(bucket), Name: bucket, Prefix: prefix}
}

// WithPrefix returns a copy of w that writes under prefix in the same bucket.
func (w *GCSWriter) WithPrefix(prefix string) *GCSWriter {
	c := *w
	c.Prefix = prefix
	return &c
}

// Write overwrites the object for name.
func (w *GCSWriter) Write(ctx context.Context, name, payload string) (string, error) {
	objectName, dest := objectPath(w.Name, w.Prefix, name)
	if err := gcp.WriteObject(ctx, w.Bucket, objectName, payload); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, nil
}

// objectPath returns the object name for name under prefix and its gs:// URI.
// Stray slashes around prefix are dropped so "runs/" and "runs" agree.
func objectPath(bucket, prefix, name string) (object, dest string) {
	object = name
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		object = prefix + "/" + name
	}
	return object, "gs://" + bucket + "/" + object
}
