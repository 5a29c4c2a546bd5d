// Package rsrpc defines the range-server RPC surface SharedMutator talks to.
// The wire protocol itself is explicitly out of scope: only the shape of the
// Update call SharedMutator depends on is specified here. net/rpc is used as
// the transport because it is the one already in the standard library with
// no protocol of its own to design — this collaborator is touched only at
// its interface, never at the wire format.
//
// Grounded on RangeServerProtocol.h (COMMAND_UPDATE) for the operation name
// and TableMutatorShared.{h,cc} for the call shape SharedMutator needs.
//
// © 2025 rangestore authors. MIT License.
package rsrpc

import (
	"context"

	"github.com/hypertable-go/rangestore/internal/key"
)

// RangeSpec identifies the destination range of an Update call.
type RangeSpec struct {
	TableID  string
	StartRow []byte
	EndRow   []byte
}

// Mutation pairs a logical cell key with its value, the unit SharedMutator
// batches and sends.
type Mutation struct {
	Key   key.Key
	Value []byte
}

// ErrorCode classifies a per-cell rejection from the range server.
type ErrorCode int

const (
	// ErrNone indicates the mutation was accepted.
	ErrNone ErrorCode = iota
	// ErrSchema indicates a schema violation (e.g. unknown column family).
	ErrSchema
	// ErrCellLimit indicates the cell exceeded a configured size limit.
	ErrCellLimit
	// ErrRangeNotFound indicates the range has moved or no longer exists on
	// this server. SharedMutator does not re-resolve the location: a cell
	// reported in Failed with this code lands in the failed list and is not
	// retried, like any other code.
	ErrRangeNotFound
)

// FailedMutation records one cell the range server rejected with a
// non-retryable, semantic error.
type FailedMutation struct {
	Index int // index into the Mutations slice passed to Update
	Code  ErrorCode
}

// UpdateResult is the outcome of one Update RPC. A mutation index absent
// from both Failed and Retryable was accepted. Retryable covers per-cell
// transport-level outcomes (e.g. the owning range moved mid-batch, or a
// sub-deadline on that specific cell lapsed) that SharedMutator should
// resend via Retry rather than surface to the caller.
type UpdateResult struct {
	Failed    []FailedMutation
	Retryable []int
}

// Client is the range-server surface SharedMutator depends on.
type Client interface {
	// Update sends a batch of mutations to the range owning spec. A
	// transport-level error (timeout, connection lost) is returned as err;
	// per-cell semantic rejections are reported in the result instead.
	Update(ctx context.Context, spec RangeSpec, mutations []Mutation) (UpdateResult, error)
	Close() error
}
