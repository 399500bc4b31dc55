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

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// DrawArchive stores completed draw results in cold storage.
type DrawArchive interface {
	ArchiveDraw(ctx context.Context, d DrawResult) (path string, err error)
	GetDraw(ctx context.Context, lotteryID string) (DrawResult, error)
	ListDraws(ctx context.Context) ([]BlobInfo, error)
}
