// Package lake maps logical (namespace, partition) keys onto Parquet files in
// object storage and moves tables in and out of them.
//
// Lake focuses on the persistence boundary of a batch pipeline: one file per
// (namespace, partition), whole-file replacement on write, and tolerant
// multi-partition reads. It does not implement compaction, transactions,
// schema evolution, or indexing.
package lake

import (
	"context"
	"errors"
	"io"
)

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts the underlying object storage system.
//
// Implementations may target filesystems, S3, or other object stores.
// All implementations must be safe for concurrent use by independent calls.
type Store interface {
	// Put writes data to the given path, replacing any existing object.
	Put(ctx context.Context, path string, r io.Reader) error

	// Get retrieves data from the given path.
	// Returns ErrNotFound if the path does not exist.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the path if it exists.
	Delete(ctx context.Context, path string) error
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values. Callers match them with errors.Is; implementations
// wrap them with context using fmt.Errorf("...: %w", ...).
var (
	// ErrNotFound indicates a requested object does not exist.
	ErrNotFound = errNotFound{}

	// ErrConfiguration indicates missing or invalid connection settings.
	// It is fatal: the process must not proceed.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransient indicates a timeout or transient network failure.
	ErrTransient = errors.New("transient store error")

	// ErrPermission indicates the store rejected the credentials.
	ErrPermission = errors.New("permission denied")

	// ErrTypeMismatch indicates a step produced a payload that is not a table.
	ErrTypeMismatch = errors.New("payload is not a table")

	// ErrParse indicates stored content could not be decoded.
	ErrParse = errors.New("malformed table file")

	// ErrInvalidPath indicates a path that is empty or would escape the store root.
	ErrInvalidPath = errors.New("invalid path")

	// ErrPartitionCollision indicates two partition keys map to the same object.
	ErrPartitionCollision = errors.New("partition key collision")
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }
