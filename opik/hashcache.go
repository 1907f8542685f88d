// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/comet-ml/opik-sub000/internal/hashing"
)

// hashCache tracks a content hash per known dataset item so duplicate
// inserts are filtered before they ever reach the item queue. It is synced
// lazily from the service via cursor pagination and lives for the lifetime
// of one Dataset handle.
//
// Hashes move through two states: reserved holds provisional entries for
// items whose create is enqueued but not yet acknowledged, known holds
// content confirmed on the service (observed during sync or committed after
// a successful dispatch). A failed dispatch releases its reservations, so
// content that never reached the service can be inserted again.
//
// Invariant: every identifier ever successfully inserted or observed
// remotely has exactly one entry in idToHash, and its hash is in known;
// forgetting an identifier removes both.
type hashCache struct {
	dataset string
	rest    *restClient
	logger  *slog.Logger
	limit   int

	mu       sync.Mutex
	known    map[string]struct{}
	reserved map[string]struct{}
	idToHash map[string]string
	cursor   string
	synced   bool
}

func newHashCache(dataset string, rest *restClient, logger *slog.Logger, limit int) *hashCache {
	return &hashCache{
		dataset:  dataset,
		rest:     rest,
		logger:   logger,
		limit:    limit,
		known:    make(map[string]struct{}),
		reserved: make(map[string]struct{}),
		idToHash: make(map[string]string),
	}
}

// ensureSynced pages the streamed listing until exhausted, hashing each
// observed item's content. A 404 means the dataset does not exist yet and is
// treated as "no existing items"; any other error aborts the sync and is
// surfaced to the caller of Insert/Delete.
func (h *hashCache) ensureSynced(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.synced {
		return nil
	}
	for {
		page, err := h.rest.streamDatasetItems(ctx, h.dataset, h.cursor, h.limit)
		if err != nil {
			if IsNotFound(err) {
				h.synced = true
				return nil
			}
			return fmt.Errorf("failed to sync hashes for dataset %s: %w", h.dataset, err)
		}
		for _, item := range page {
			hash, err := hashing.Content(item.Data)
			if err != nil {
				return fmt.Errorf("failed to hash remote item %s: %w", item.ID, err)
			}
			h.known[hash] = struct{}{}
			h.idToHash[item.ID] = hash
			h.cursor = item.ID
		}
		if len(page) < h.limit {
			h.synced = true
			return nil
		}
	}
}

// filterUnique drops candidates whose content hash is already known and
// provisionally reserves the hashes of the survivors, so two duplicates
// within the same batch collapse to the first occurrence.
func (h *hashCache) filterUnique(items []DatasetItem) ([]DatasetItem, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	unique := make([]DatasetItem, 0, len(items))
	for _, item := range items {
		hash, err := hashing.Content(item.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to hash dataset item: %w", err)
		}
		_, dup := h.known[hash]
		if !dup {
			_, dup = h.reserved[hash]
		}
		if dup {
			h.logger.Debug("skipping duplicate dataset item",
				"dataset", h.dataset, "hash", hash)
			continue
		}
		h.reserved[hash] = struct{}{}
		item.contentHash = hash
		unique = append(unique, item)
	}
	return unique, nil
}

// commit permanently records id-to-hash mappings for items whose create was
// acknowledged by the service, promoting their reservations to known.
func (h *hashCache) commit(items []DatasetItem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, item := range items {
		if item.contentHash == "" {
			continue
		}
		delete(h.reserved, item.contentHash)
		h.known[item.contentHash] = struct{}{}
		h.idToHash[item.ID] = item.contentHash
	}
}

// release drops the provisional reservations of items whose create dispatch
// failed, so the same content can be inserted again later.
func (h *hashCache) release(items []DatasetItem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, item := range items {
		if item.contentHash != "" {
			delete(h.reserved, item.contentHash)
		}
	}
}

// forget removes acknowledged-deleted identifiers so re-inserting identical
// content later is no longer treated as a duplicate.
func (h *hashCache) forget(ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if hash, ok := h.idToHash[id]; ok {
			delete(h.idToHash, id)
			delete(h.known, hash)
		}
	}
}
