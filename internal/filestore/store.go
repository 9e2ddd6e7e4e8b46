package filestore

import (
	"context"
	"fmt"
	"io"

	"github.com/lwald/semgrade/internal/config"
)

// Store keeps accepted clustering batches around for audit and re-ingestion.
type Store interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

func New(ctx context.Context, cfg config.FileStoreConfig) (Store, error) {
	switch cfg.Type {
	case "local":
		return newLocalStore(cfg.Dir)
	case "s3":
		return newS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported file store type: %s", cfg.Type)
	}
}
