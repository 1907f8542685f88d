// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import (
	"context"
	"strings"
)

// Entity adapters: stateless mappings from the generic queue engine onto the
// wire layer. Patch-merge rules (scalars last-write-wins, metadata merged
// key-by-key) live here, never in the engine.

// mergeMaps returns base overlaid with next, key by key. The result is a
// fresh map so queued payloads never alias caller-owned maps.
func mergeMaps(base, next map[string]any) map[string]any {
	if len(next) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(next))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range next {
		merged[k] = v
	}
	return merged
}

type traceAdapter struct {
	rest *restClient
}

func (traceAdapter) Kind() string { return "trace" }
func (traceAdapter) ID(t Trace) string { return t.ID }

func (traceAdapter) ApplyPatch(t Trace, p TraceUpdate) Trace {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.EndTime != nil {
		t.EndTime = p.EndTime
	}
	if p.Input != nil {
		t.Input = p.Input
	}
	if p.Output != nil {
		t.Output = p.Output
	}
	t.Metadata = mergeMaps(t.Metadata, p.Metadata)
	if p.Tags != nil {
		t.Tags = p.Tags
	}
	if p.ThreadID != nil {
		t.ThreadID = *p.ThreadID
	}
	return t
}

func (traceAdapter) MergePatches(base, next TraceUpdate) TraceUpdate {
	if next.Name != nil {
		base.Name = next.Name
	}
	if next.EndTime != nil {
		base.EndTime = next.EndTime
	}
	if next.Input != nil {
		base.Input = next.Input
	}
	if next.Output != nil {
		base.Output = next.Output
	}
	base.Metadata = mergeMaps(base.Metadata, next.Metadata)
	if next.Tags != nil {
		base.Tags = next.Tags
	}
	if next.ThreadID != nil {
		base.ThreadID = next.ThreadID
	}
	return base
}

func (a traceAdapter) CreateBatch(ctx context.Context, groupID string, items []Trace) error {
	return a.rest.createTraces(ctx, groupID, items)
}

func (a traceAdapter) UpdateOne(ctx context.Context, id string, patch TraceUpdate) error {
	return a.rest.updateTrace(ctx, id, patch)
}

func (a traceAdapter) DeleteBatch(ctx context.Context, groupID string, ids []string) error {
	return a.rest.deleteTraces(ctx, groupID, ids)
}

type spanAdapter struct {
	rest *restClient
}

func (spanAdapter) Kind() string { return "span" }
func (spanAdapter) ID(s Span) string { return s.ID }

func (spanAdapter) ApplyPatch(s Span, p SpanUpdate) Span {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.EndTime != nil {
		s.EndTime = p.EndTime
	}
	if p.Input != nil {
		s.Input = p.Input
	}
	if p.Output != nil {
		s.Output = p.Output
	}
	s.Metadata = mergeMaps(s.Metadata, p.Metadata)
	if p.Tags != nil {
		s.Tags = p.Tags
	}
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.Provider != nil {
		s.Provider = *p.Provider
	}
	if p.Usage != nil {
		s.Usage = p.Usage
	}
	return s
}

func (spanAdapter) MergePatches(base, next SpanUpdate) SpanUpdate {
	if next.Name != nil {
		base.Name = next.Name
	}
	if next.EndTime != nil {
		base.EndTime = next.EndTime
	}
	if next.Input != nil {
		base.Input = next.Input
	}
	if next.Output != nil {
		base.Output = next.Output
	}
	base.Metadata = mergeMaps(base.Metadata, next.Metadata)
	if next.Tags != nil {
		base.Tags = next.Tags
	}
	if next.Model != nil {
		base.Model = next.Model
	}
	if next.Provider != nil {
		base.Provider = next.Provider
	}
	if next.Usage != nil {
		base.Usage = next.Usage
	}
	return base
}

func (a spanAdapter) CreateBatch(ctx context.Context, groupID string, items []Span) error {
	return a.rest.createSpans(ctx, groupID, items)
}

func (a spanAdapter) UpdateOne(ctx context.Context, id string, patch SpanUpdate) error {
	return a.rest.updateSpan(ctx, id, patch)
}

func (a spanAdapter) DeleteBatch(ctx context.Context, groupID string, ids []string) error {
	return a.rest.deleteSpans(ctx, groupID, ids)
}

// scoreAdapter serves both the trace-score and span-score queues; entity is
// the endpoint path segment ("traces" or "spans"). Queue identifiers are
// composite "<entity id>/<score name>" because a score is keyed by both.
type scoreAdapter struct {
	rest   *restClient
	entity string
}

func scoreKey(entityID, name string) string { return entityID + "/" + name }

// splitScoreKey is the inverse of scoreKey. Entity ids are UUIDs, so the
// first separator is unambiguous even when score names contain slashes.
func splitScoreKey(key string) (entityID, name string) {
	entityID, name, _ = strings.Cut(key, "/")
	return entityID, name
}

func (a scoreAdapter) Kind() string { return a.entity[:len(a.entity)-1] + "_feedback_score" }
func (scoreAdapter) ID(s FeedbackScore) string { return scoreKey(s.ID, s.Name) }

// A feedback score has no partial form: re-logging replaces it wholesale.
func (scoreAdapter) ApplyPatch(_ FeedbackScore, p FeedbackScore) FeedbackScore { return p }
func (scoreAdapter) MergePatches(_, next FeedbackScore) FeedbackScore { return next }

func (a scoreAdapter) CreateBatch(ctx context.Context, _ string, items []FeedbackScore) error {
	return a.rest.createScores(ctx, a.entity, items)
}

func (a scoreAdapter) UpdateOne(ctx context.Context, _ string, patch FeedbackScore) error {
	return a.rest.createScores(ctx, a.entity, []FeedbackScore{patch})
}

func (a scoreAdapter) DeleteBatch(ctx context.Context, groupID string, ids []string) error {
	scores := make([]scoreIdentifier, len(ids))
	for i, id := range ids {
		entityID, name := splitScoreKey(id)
		scores[i] = scoreIdentifier{ID: entityID, Name: name}
	}
	return a.rest.deleteScores(ctx, a.entity, groupID, scores)
}

// datasetItemAdapter dispatches one dataset's item queue and settles the
// hash cache per chunk: acknowledged creates are committed, failed creates
// release their reservations, acknowledged deletes are forgotten. Content
// whose create never reached the service stays insertable.
type datasetItemAdapter struct {
	rest    *restClient
	dataset string
	cache   *hashCache
}

func (datasetItemAdapter) Kind() string { return "dataset_item" }
func (datasetItemAdapter) ID(it DatasetItem) string { return it.ID }

func (datasetItemAdapter) ApplyPatch(it DatasetItem, p DatasetItemUpdate) DatasetItem {
	if p.Data != nil {
		it.Data = p.Data
	}
	if p.Source != nil {
		it.Source = *p.Source
	}
	return it
}

func (datasetItemAdapter) MergePatches(base, next DatasetItemUpdate) DatasetItemUpdate {
	if next.Data != nil {
		base.Data = next.Data
	}
	if next.Source != nil {
		base.Source = next.Source
	}
	base.Metadata = mergeMaps(base.Metadata, next.Metadata)
	return base
}

func (a datasetItemAdapter) CreateBatch(ctx context.Context, groupID string, items []DatasetItem) error {
	if err := a.rest.createDatasetItems(ctx, groupID, a.dataset, items); err != nil {
		a.cache.release(items)
		return err
	}
	a.cache.commit(items)
	return nil
}

func (a datasetItemAdapter) UpdateOne(ctx context.Context, id string, patch DatasetItemUpdate) error {
	return a.rest.updateDatasetItem(ctx, id, patch)
}

func (a datasetItemAdapter) DeleteBatch(ctx context.Context, groupID string, ids []string) error {
	if err := a.rest.deleteDatasetItems(ctx, groupID, ids); err != nil {
		return err
	}
	a.cache.forget(ids)
	return nil
}
