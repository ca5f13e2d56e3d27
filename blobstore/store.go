// Package blobstore abstracts the staging storage used between
// pipeline stages. Two backends are supported: local filesystem for
// development and S3-compatible object storage for production.
package blobstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andre-dussing/european-public-data-pipeline/config"
)

// ObjectInfo describes one stored object
type ObjectInfo struct {
	Path         string
	LastModified time.Time
}

// Store reads and writes immutable staging objects. Objects are never
// updated in place; each pipeline run writes under a fresh timestamped
// path.
type Store interface {
	// Upload writes an object, creating any intermediate prefix
	Upload(ctx context.Context, path string, data []byte, contentType string) error

	// Download reads an object in full
	Download(ctx context.Context, path string) ([]byte, error)

	// List returns all objects under a prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// NewStore creates the configured backend
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case "filesystem":
		return NewFilesystemStore(cfg.Storage.Bucket)
	case "s3":
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// Latest returns the most recently modified object under a prefix.
// Ties break lexicographically on path, which for timestamped object
// names matches capture order.
func Latest(ctx context.Context, store Store, prefix string) (ObjectInfo, error) {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return ObjectInfo{}, err
	}
	if len(objects) == 0 {
		return ObjectInfo{}, fmt.Errorf("no objects under prefix %s", prefix)
	}
	sort.Slice(objects, func(i, j int) bool {
		if objects[i].LastModified.Equal(objects[j].LastModified) {
			return objects[i].Path < objects[j].Path
		}
		return objects[i].LastModified.Before(objects[j].LastModified)
	})
	return objects[len(objects)-1], nil
}
