// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/comet-ml/opik-sub000/batch"
)

// Dataset is a handle on one remote dataset. Inserts are deduplicated by
// content hash and coalesced through the dataset's own item queue; the hash
// cache is synced lazily on the first insert, delete or explicit SyncHashes.
type Dataset struct {
	name   string
	rest   *restClient
	logger *slog.Logger
	queue  *batch.Queue[DatasetItem, DatasetItemUpdate]
	cache  *hashCache
	limit  int
}

// GetOrCreateDataset returns a handle for the named dataset, creating it on
// the service if it does not exist. The handle's item queue is registered
// with the client so Flush covers it.
func (c *Client) GetOrCreateDataset(ctx context.Context, name, description string) (*Dataset, error) {
	if name == "" {
		return nil, fmt.Errorf("dataset name must be provided")
	}
	if err := c.rest.getOrCreateDataset(ctx, name, description); err != nil {
		return nil, fmt.Errorf("failed to get or create dataset %s: %w", name, err)
	}

	cache := newHashCache(name, c.rest, c.logger, c.cfg.StreamLimit)
	queue := batch.NewQueue[DatasetItem, DatasetItemUpdate](
		datasetItemAdapter{rest: c.rest, dataset: name, cache: cache},
		c.queueOptions(),
	)
	d := &Dataset{
		name:   name,
		rest:   c.rest,
		logger: c.logger,
		queue:  queue,
		cache:  cache,
		limit:  c.cfg.StreamLimit,
	}
	c.registerFlusher(queue)
	return d, nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// Insert enqueues the unique subset of items for creation. Items whose
// content already exists in the dataset (remotely or earlier in the same
// call) are dropped; survivors without an identifier get a generated UUIDv7.
// The only errors surfaced here come from the lazy hash sync, before any
// write is enqueued.
func (d *Dataset) Insert(ctx context.Context, items []DatasetItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := d.cache.ensureSynced(ctx); err != nil {
		return err
	}
	unique, err := d.cache.filterUnique(items)
	if err != nil {
		return err
	}
	for i := range unique {
		if unique[i].ID == "" {
			unique[i].ID = newID()
		}
		if unique[i].Source == "" {
			unique[i].Source = "sdk"
		}
		d.queue.Create(unique[i])
	}
	d.logger.Debug("enqueued dataset items",
		"dataset", d.name, "candidates", len(items), "unique", len(unique))
	return nil
}

// Update enqueues partial patches for existing items. Every item must carry
// an identifier; otherwise the call fails synchronously before any queue
// interaction.
func (d *Dataset) Update(items []DatasetItem) error {
	for i, item := range items {
		if item.ID == "" {
			return fmt.Errorf("dataset item update requires an id on every item (item %d has none)", i)
		}
	}
	for _, item := range items {
		d.queue.Update(item.ID, DatasetItemUpdate{Data: item.Data})
	}
	return nil
}

// Delete enqueues deletes for the given item identifiers. Identifiers whose
// create never reached the service are dropped locally without a remote
// call.
func (d *Dataset) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := d.cache.ensureSynced(ctx); err != nil {
		return err
	}
	d.queue.Delete(ids...)
	return nil
}

// SyncHashes eagerly syncs the content-hash cache from the service.
func (d *Dataset) SyncHashes(ctx context.Context) error {
	return d.cache.ensureSynced(ctx)
}

// Clear reads every item currently in the dataset and enqueues deletes for
// all of them.
func (d *Dataset) Clear(ctx context.Context) error {
	var ids []string
	cursor := ""
	for {
		page, err := d.rest.streamDatasetItems(ctx, d.name, cursor, d.limit)
		if err != nil {
			if IsNotFound(err) {
				break
			}
			return fmt.Errorf("failed to list items for dataset %s: %w", d.name, err)
		}
		for _, item := range page {
			ids = append(ids, item.ID)
			cursor = item.ID
		}
		if len(page) < d.limit {
			break
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return d.Delete(ctx, ids)
}

// Flush dispatches everything pending on the dataset's item queue.
func (d *Dataset) Flush(ctx context.Context) {
	d.queue.Flush(ctx)
}

// Stats returns the item queue's diagnostic counters.
func (d *Dataset) Stats() batch.Stats {
	return d.queue.Stats()
}
