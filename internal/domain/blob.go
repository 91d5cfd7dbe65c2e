package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// EvidenceStore archives resolution evidence documents in object storage,
// keyed by content hash. Markets reference documents by that hash only.
type EvidenceStore interface {
	Put(ctx context.Context, hash string, data io.Reader, contentType string) error
	Get(ctx context.Context, hash string) (io.ReadCloser, error)
	Exists(ctx context.Context, hash string) (bool, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
