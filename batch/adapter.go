// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package batch implements the write-coalescing engine that backs every
// entity queue in the SDK. Application-side mutations (creates, patches,
// deletes) are buffered in memory, coalesced for a fixed delay window, and
// then dispatched as chunked bulk calls through an entity adapter. The
// engine is generic over the entity payload and patch types; it never
// branches on entity kind.
package batch

import (
	"context"
	"log/slog"
	"time"
)

// Default tuning values, overridable per queue via Options.
const (
	DefaultFlushInterval  = 300 * time.Millisecond
	DefaultMaxCreateBatch = 1000
	DefaultMaxDeleteBatch = 100
)

// Adapter defines how one entity kind is dispatched to the remote service.
// Implementations are stateless mappings: the queue owns all buffering and
// timing. T is the full entity payload, P the partial patch type.
type Adapter[T, P any] interface {
	// Kind names the entity kind for log context (e.g. "trace").
	Kind() string

	// ID returns the identifier of an entity payload.
	ID(item T) string

	// ApplyPatch merges a patch into a full payload and returns the result.
	// Used when an update arrives while the create for the same identifier
	// is still pending, so that one create call carries the final values.
	ApplyPatch(item T, patch P) T

	// MergePatches combines two patches for the same identifier, with next
	// taking precedence field by field. Metadata-style map fields merge
	// key-by-key rather than overwrite; that rule lives in the adapter.
	MergePatches(base, next P) P

	// CreateBatch sends one chunk of creates. Every chunk produced from a
	// single flush shares the same groupID so the remote side can correlate
	// partial-failure retries.
	CreateBatch(ctx context.Context, groupID string, items []T) error

	// UpdateOne sends a single per-identifier patch call.
	UpdateOne(ctx context.Context, id string, patch P) error

	// DeleteBatch sends one chunk of deletes, sharing groupID per flush.
	DeleteBatch(ctx context.Context, groupID string, ids []string) error
}

// Update pairs an identifier with its coalesced patch for bulk dispatch.
type Update[P any] struct {
	ID    string
	Patch P
}

// BulkUpdater is an optional adapter capability. When implemented, pending
// updates are chunked and dispatched in bulk (like creates) instead of one
// call per identifier.
type BulkUpdater[P any] interface {
	UpdateBatch(ctx context.Context, groupID string, updates []Update[P]) error
}

// Flusher is the queue surface the flush orchestrator fans out over.
type Flusher interface {
	Flush(ctx context.Context)
}

// Options configures a queue. The zero value is usable; unset fields fall
// back to the package defaults.
type Options struct {
	// FlushInterval is the delay window T. It is armed on the first enqueue
	// after the queue becomes non-empty and is not extended by later
	// enqueues: everything accumulated when it fires goes out in one
	// dispatch cycle.
	FlushInterval time.Duration

	// MaxCreateBatch caps the number of items per bulk-create call.
	MaxCreateBatch int

	// MaxDeleteBatch caps the number of identifiers per bulk-delete call.
	MaxDeleteBatch int

	// TrackFlushedIDs records the identifiers of dispatched creates so that
	// deleting a re-created pending entry still issues the remote delete for
	// the copy sent in an earlier flush. Meant for queues whose identifiers
	// are deterministic and re-creatable, like feedback-score keys; leave it
	// off for generated-UUID entities, where an id never recurs.
	TrackFlushedIDs bool

	// Logger receives swallowed dispatch errors. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.MaxCreateBatch <= 0 {
		o.MaxCreateBatch = DefaultMaxCreateBatch
	}
	if o.MaxDeleteBatch <= 0 {
		o.MaxDeleteBatch = DefaultMaxDeleteBatch
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
