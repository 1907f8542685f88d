// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// pendingCreate is a full entity payload not yet acknowledged by the remote
// service. It stays mutable (via Update) until the flush that drains it.
type pendingCreate[T any] struct {
	id   string
	item T
}

// Queue buffers pending creates, updates and deletes for one entity kind
// and dispatches them in chunked bulk calls when the delay window elapses
// or Flush is called explicitly.
//
// All mutations are serialized by an internal mutex; Create, Update and
// Delete never block on I/O. Network dispatch runs outside the lock, so new
// operations arriving during an in-flight dispatch accumulate into fresh
// buffers immediately.
type Queue[T, P any] struct {
	adapter Adapter[T, P]
	opts    Options

	mu      sync.Mutex
	creates []pendingCreate[T]
	updates map[string]P
	deletes map[string]struct{}
	flushed map[string]struct{} // dispatched-create ids; nil unless Options.TrackFlushedIDs
	timer   *time.Timer         // nil when unarmed; arming only transitions nil -> non-nil

	stats queueCounters
}

// NewQueue creates a queue for the given adapter. One queue instance exists
// per entity kind for the lifetime of the owning client.
func NewQueue[T, P any](adapter Adapter[T, P], opts Options) *Queue[T, P] {
	q := &Queue[T, P]{
		adapter: adapter,
		opts:    opts.withDefaults(),
		updates: make(map[string]P),
		deletes: make(map[string]struct{}),
	}
	if q.opts.TrackFlushedIDs {
		q.flushed = make(map[string]struct{})
	}
	return q
}

// Create appends a pending create and arms the delay window if it is not
// already armed. It returns immediately. A full payload supersedes any patch
// still pending for the same identifier: an id is never in both buffers.
func (q *Queue[T, P]) Create(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.adapter.ID(item)
	q.creates = append(q.creates, pendingCreate[T]{id: id, item: item})
	delete(q.updates, id)
	q.stats.created.Add(1)
	q.armLocked()
}

// Update merges a patch for the given identifier. If a create for that
// identifier is still pending, the patch is folded into it directly so that
// create-then-update before the first flush produces exactly one remote
// create call with final field values. Otherwise the patch is merged into
// the pending update entry, creating it if absent.
func (q *Queue[T, P]) Update(id string, patch P) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stats.updated.Add(1)
	for i := range q.creates {
		if q.creates[i].id == id {
			q.creates[i].item = q.adapter.ApplyPatch(q.creates[i].item, patch)
			q.armLocked()
			return
		}
	}
	if base, ok := q.updates[id]; ok {
		q.updates[id] = q.adapter.MergePatches(base, patch)
	} else {
		q.updates[id] = patch
	}
	q.armLocked()
}

// Delete marks identifiers for deletion and drops any pending create or
// update for them. An identifier whose create never reached the remote
// service is dropped locally without a remote call: the remote side has no
// record of it, so there is nothing to delete there. On a tracked queue
// (Options.TrackFlushedIDs) an id whose create went out in an earlier flush
// still gets the remote delete even when a re-created pending entry is
// canceled, so the earlier remote copy does not survive.
func (q *Queue[T, P]) Delete(ids ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		q.stats.deleted.Add(1)
		delete(q.updates, id)
		if q.removeCreateLocked(id) && !q.flushedLocked(id) {
			continue // purely local, nothing exists remotely
		}
		q.deletes[id] = struct{}{}
		if q.flushed != nil {
			delete(q.flushed, id)
		}
	}
	if q.hasPendingLocked() {
		q.armLocked()
	}
}

// Flush cancels any armed timer, drains the current buffer contents into
// local snapshots and dispatches them. Overlapping calls are safe: each
// call only drains what is pending at the moment it runs, so nothing is
// ever double-sent. Dispatch failures are logged and swallowed; they never
// propagate to the calling application.
func (q *Queue[T, P]) Flush(ctx context.Context) {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	creates := q.creates
	updates := q.updates
	deletes := q.deletes
	q.creates = nil
	q.updates = make(map[string]P)
	q.deletes = make(map[string]struct{})
	if q.flushed != nil {
		for _, pc := range creates {
			q.flushed[pc.id] = struct{}{}
		}
	}
	q.mu.Unlock()

	q.stats.flushes.Add(1)
	q.dispatchCreates(ctx, creates)
	q.dispatchUpdates(ctx, updates)
	q.dispatchDeletes(ctx, deletes)
}

// Stats returns a snapshot of the queue's diagnostic counters.
func (q *Queue[T, P]) Stats() Stats {
	return q.stats.snapshot()
}

// armLocked starts the delay window if no timer is armed. The window is
// fixed, not a resetting debounce: later enqueues do not extend it.
func (q *Queue[T, P]) armLocked() {
	if q.timer != nil {
		return
	}
	q.timer = time.AfterFunc(q.opts.FlushInterval, func() {
		q.Flush(context.Background())
	})
}

func (q *Queue[T, P]) removeCreateLocked(id string) bool {
	for i := range q.creates {
		if q.creates[i].id == id {
			q.creates = append(q.creates[:i], q.creates[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue[T, P]) flushedLocked(id string) bool {
	_, ok := q.flushed[id]
	return ok
}

func (q *Queue[T, P]) hasPendingLocked() bool {
	return len(q.creates) > 0 || len(q.updates) > 0 || len(q.deletes) > 0
}

func (q *Queue[T, P]) dispatchCreates(ctx context.Context, creates []pendingCreate[T]) {
	if len(creates) == 0 {
		return
	}
	items := make([]T, len(creates))
	for i, pc := range creates {
		items[i] = pc.item
	}
	// One correlation token shared by every chunk of this snapshot.
	groupID := uuid.NewString()
	for start := 0; start < len(items); start += q.opts.MaxCreateBatch {
		end := min(start+q.opts.MaxCreateBatch, len(items))
		chunk := items[start:end]
		if err := q.adapter.CreateBatch(ctx, groupID, chunk); err != nil {
			q.stats.dispatchFailures.Add(1)
			q.opts.Logger.Error("bulk create failed; dropping chunk",
				"kind", q.adapter.Kind(), "batch_group_id", groupID,
				"chunk_size", len(chunk), "error", err)
		}
	}
}

func (q *Queue[T, P]) dispatchUpdates(ctx context.Context, updates map[string]P) {
	if len(updates) == 0 {
		return
	}
	if bulk, ok := q.adapter.(BulkUpdater[P]); ok {
		pending := make([]Update[P], 0, len(updates))
		for id, patch := range updates {
			pending = append(pending, Update[P]{ID: id, Patch: patch})
		}
		groupID := uuid.NewString()
		for start := 0; start < len(pending); start += q.opts.MaxCreateBatch {
			end := min(start+q.opts.MaxCreateBatch, len(pending))
			chunk := pending[start:end]
			if err := bulk.UpdateBatch(ctx, groupID, chunk); err != nil {
				q.stats.dispatchFailures.Add(1)
				q.opts.Logger.Error("bulk update failed; dropping chunk",
					"kind", q.adapter.Kind(), "batch_group_id", groupID,
					"chunk_size", len(chunk), "error", err)
			}
		}
		return
	}
	// The remote API for mutable-after-create entities has no bulk-update
	// endpoint, so patches go out one call per identifier.
	for id, patch := range updates {
		if err := q.adapter.UpdateOne(ctx, id, patch); err != nil {
			q.stats.dispatchFailures.Add(1)
			q.opts.Logger.Error("update failed; dropping patch",
				"kind", q.adapter.Kind(), "id", id, "error", err)
		}
	}
}

func (q *Queue[T, P]) dispatchDeletes(ctx context.Context, deletes map[string]struct{}) {
	if len(deletes) == 0 {
		return
	}
	ids := make([]string, 0, len(deletes))
	for id := range deletes {
		ids = append(ids, id)
	}
	groupID := uuid.NewString()
	for start := 0; start < len(ids); start += q.opts.MaxDeleteBatch {
		end := min(start+q.opts.MaxDeleteBatch, len(ids))
		chunk := ids[start:end]
		if err := q.adapter.DeleteBatch(ctx, groupID, chunk); err != nil {
			q.stats.dispatchFailures.Add(1)
			q.opts.Logger.Error("bulk delete failed; dropping chunk",
				"kind", q.adapter.Kind(), "batch_group_id", groupID,
				"chunk_size", len(chunk), "error", err)
		}
	}
}

// Stats holds diagnostic counters for one queue. Failures recorded here are
// already swallowed; the counters exist for flush-summary logging and tests,
// not for control flow.
type Stats struct {
	Created          uint64
	Updated          uint64
	Deleted          uint64
	Flushes          uint64
	DispatchFailures uint64
}

type queueCounters struct {
	created          atomic.Uint64
	updated          atomic.Uint64
	deleted          atomic.Uint64
	flushes          atomic.Uint64
	dispatchFailures atomic.Uint64
}

func (c *queueCounters) snapshot() Stats {
	return Stats{
		Created:          c.created.Load(),
		Updated:          c.updated.Load(),
		Deleted:          c.deleted.Load(),
		Flushes:          c.flushes.Load(),
		DispatchFailures: c.dispatchFailures.Load(),
	}
}
