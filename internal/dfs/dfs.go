// Package dfs abstracts the distributed file system as an external
// collaborator whose own protocol is out of scope here, touched by the core
// only where GcWorker reaps unreferenced files and where compaction writes
// CellStore files. Two implementations are provided: localfs (a thin os.*
// wrapper, for single-node operation and tests) and badgerfs (an
// embedded-KV-backed stand-in that lets the whole system run with nothing
// but a Badger directory on disk).
//
// © 2025 rangestore authors. MIT License.
package dfs

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned by Open/Length/Remove when the named file is
// absent.
var ErrNotExist = errors.New("dfs: file does not exist")

// FS is the subset of distributed-filesystem operations the core touches:
// compaction writes a CellStore file once and never appends to it again;
// GcWorker only ever removes.
type FS interface {
	// Create opens name for writing, truncating any existing content.
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	// Open opens name for reading. Returns ErrNotExist if absent.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Remove deletes name. Returns ErrNotExist if absent.
	Remove(ctx context.Context, name string) error
	// Exists reports whether name is present.
	Exists(ctx context.Context, name string) (bool, error)
	// Length returns the size in bytes of name. Returns ErrNotExist if absent.
	Length(ctx context.Context, name string) (int64, error)
}
