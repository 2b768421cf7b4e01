// Package common provides a chunked-block adapter shared by the
// key/value-backed plugins (memory, s3, badger): each implements the
// small Store interface below, and ChunkedBackend maps NBD's flat
// byte-addressable device onto fixed-size blocks keyed by index,
// the way pkg/store/block's content-addressed stores already do for
// file content chunks.
package common

import (
	"context"
	"errors"
)

// ErrBlockNotFound is returned by a Store when a requested block has
// never been written (a hole).
var ErrBlockNotFound = errors.New("nbd: block not found")

// Store is the minimal key/value contract a chunked plugin backend
// needs. Keys are opaque block identifiers produced by ChunkedBackend;
// implementations need not understand their structure.
type Store interface {
	WriteBlock(ctx context.Context, key string, data []byte) error
	ReadBlock(ctx context.Context, key string) ([]byte, error)
	DeleteBlock(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
	Close() error
}
