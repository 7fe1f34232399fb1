// Package media abstracts where uploaded recipe photos live. Production uses
// GCS; development and tests use a local directory.
package media

import (
	"context"
	"io"
)

type Store interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
