// Package object abstracts where uploaded document attachments live.
package object

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("object not found")

type Storage interface {
	// Upload stores the object under key and returns a URL the API can hand
	// to clients.
	Upload(ctx context.Context, key string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
