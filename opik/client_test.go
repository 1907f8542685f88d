// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTraceFillsDefaultsAndBatches(t *testing.T) {
	f := &fakeAPI{}
	client := newTestClient(t, f, nil)

	h1 := client.StartTrace(Trace{Name: "chat-completion"})
	h2 := client.StartTrace(Trace{Name: "embedding"})
	client.Flush(context.Background())

	require.Len(t, f.traceBatches, 1, "two creates inside one window coalesce")
	traces := f.traceBatches[0].Traces
	require.Len(t, traces, 2)
	assert.Equal(t, h1.ID(), traces[0].ID)
	assert.Equal(t, h2.ID(), traces[1].ID)
	for _, tr := range traces {
		assert.NotEmpty(t, tr.ID)
		assert.Equal(t, "test-project", tr.ProjectName)
		assert.False(t, tr.StartTime.IsZero())
	}
}

func TestTraceEndBeforeFlushFoldsIntoCreate(t *testing.T) {
	f := &fakeAPI{}
	client := newTestClient(t, f, nil)

	h := client.StartTrace(Trace{Name: "chat-completion"})
	h.Update(TraceUpdate{Output: map[string]any{"text": "hi"}})
	h.End()
	client.Flush(context.Background())

	require.Len(t, f.traceBatches, 1)
	require.Len(t, f.traceBatches[0].Traces, 1)
	tr := f.traceBatches[0].Traces[0]
	assert.Equal(t, "hi", tr.Output["text"])
	assert.NotNil(t, tr.EndTime, "end time folded into the pending create")
	assert.Empty(t, f.traceUpdates, "no separate patch call")
}

func TestTraceUpdateAfterFlushSendsPatch(t *testing.T) {
	f := &fakeAPI{}
	client := newTestClient(t, f, nil)
	ctx := context.Background()

	h := client.StartTrace(Trace{Name: "chat-completion"})
	client.Flush(ctx)

	h.Update(TraceUpdate{Metadata: map[string]any{"model": "gpt-4o"}})
	h.Update(TraceUpdate{Metadata: map[string]any{"temperature": 0.2}})
	client.Flush(ctx)

	require.Len(t, f.traceUpdates, 1, "patches for one id merge into one call")
	call := f.traceUpdates[0]
	assert.Equal(t, h.ID(), call.id)
	assert.Equal(t, "gpt-4o", call.patch.Metadata["model"])
	assert.Equal(t, 0.2, call.patch.Metadata["temperature"])
}

func TestSpansAndScoresFlowThroughOwnQueues(t *testing.T) {
	f := &fakeAPI{}
	client := newTestClient(t, f, nil)
	ctx := context.Background()

	trace := client.StartTrace(Trace{Name: "rag-pipeline"})
	span := trace.StartSpan(Span{Name: "retrieve", Type: "tool"})
	child := span.StartSpan(Span{Name: "rerank"})
	trace.LogFeedbackScore(FeedbackScore{Name: "relevance", Value: 0.9})
	span.LogFeedbackScore(FeedbackScore{Name: "precision", Value: 0.7})
	client.Flush(ctx)

	require.Len(t, f.spanBatches, 1)
	spans := f.spanBatches[0].Spans
	require.Len(t, spans, 2)
	assert.Equal(t, trace.ID(), spans[0].TraceID)
	assert.Equal(t, trace.ID(), spans[1].TraceID)
	assert.Equal(t, span.ID(), spans[1].ParentSpanID)
	assert.Equal(t, child.ID(), spans[1].ID)

	require.Len(t, f.traceScorePuts, 1)
	require.Len(t, f.traceScorePuts[0].Scores, 1)
	assert.Equal(t, trace.ID(), f.traceScorePuts[0].Scores[0].ID)
	assert.Equal(t, "relevance", f.traceScorePuts[0].Scores[0].Name)

	require.Len(t, f.spanScorePuts, 1)
	assert.Equal(t, span.ID(), f.spanScorePuts[0].Scores[0].ID)
}

func TestDeleteTraceBeforeFlushSendsNothing(t *testing.T) {
	f := &fakeAPI{}
	client := newTestClient(t, f, nil)

	h := client.StartTrace(Trace{Name: "abandoned"})
	client.DeleteTraces(h.ID())
	client.Flush(context.Background())

	assert.Empty(t, f.traceBatches)
	assert.Empty(t, f.traceDeletes)
}

func TestDeleteTraceAfterFlushSendsBulkDelete(t *testing.T) {
	f := &fakeAPI{}
	client := newTestClient(t, f, nil)
	ctx := context.Background()

	h := client.StartTrace(Trace{Name: "short-lived"})
	client.Flush(ctx)
	client.DeleteTraces(h.ID())
	client.Flush(ctx)

	require.Len(t, f.traceDeletes, 1)
	assert.Equal(t, []string{h.ID()}, f.traceDeletes[0].IDs)
	assert.NotEmpty(t, f.traceDeletes[0].BatchGroupID)
}

func TestDeleteFeedbackScores(t *testing.T) {
	f := &fakeAPI{}
	client := newTestClient(t, f, nil)
	ctx := context.Background()

	h := client.StartTrace(Trace{Name: "scored"})
	h.LogFeedbackScore(FeedbackScore{Name: "relevance", Value: 0.9})
	client.Flush(ctx)

	h.DeleteFeedbackScores("relevance")
	client.Flush(ctx)

	require.Len(t, f.traceScoreWipes, 1)
	require.Len(t, f.traceScoreWipes[0].Scores, 1)
	assert.Equal(t, h.ID(), f.traceScoreWipes[0].Scores[0].ID)
	assert.Equal(t, "relevance", f.traceScoreWipes[0].Scores[0].Name)
}

func TestDeleteFeedbackScoreAfterRelog(t *testing.T) {
	f := &fakeAPI{}
	client := newTestClient(t, f, nil)
	ctx := context.Background()

	h := client.StartTrace(Trace{Name: "scored"})
	h.LogFeedbackScore(FeedbackScore{Name: "relevance", Value: 0.5})
	client.Flush(ctx)

	// Re-log, then delete: the pending re-log is canceled locally, but the
	// score from the first flush still exists remotely and must be deleted.
	h.LogFeedbackScore(FeedbackScore{Name: "relevance", Value: 0.9})
	h.DeleteFeedbackScores("relevance")
	client.Flush(ctx)

	require.Len(t, f.traceScorePuts, 1, "the re-logged score never goes out")
	require.Len(t, f.traceScoreWipes, 1)
	require.Len(t, f.traceScoreWipes[0].Scores, 1)
	assert.Equal(t, h.ID(), f.traceScoreWipes[0].Scores[0].ID)
	assert.Equal(t, "relevance", f.traceScoreWipes[0].Scores[0].Name)
}

func TestClientFlushCoversDatasetQueues(t *testing.T) {
	f := &fakeAPI{}
	client := newTestClient(t, f, nil)
	ctx := context.Background()

	ds, err := client.GetOrCreateDataset(ctx, "eval-set", "")
	require.NoError(t, err)
	require.NoError(t, ds.Insert(ctx, []DatasetItem{
		{Data: map[string]any{"question": "2+2"}},
	}))
	client.StartTrace(Trace{Name: "alongside"})

	// One client-level flush drains entity queues and dataset queues alike.
	client.Flush(ctx)
	assert.Len(t, f.traceBatches, 1)
	assert.Len(t, f.itemBatches, 1)
}

func TestFlushSurvivesDispatchFailures(t *testing.T) {
	f := &fakeAPI{failCreates: true}
	client := newTestClient(t, f, nil)

	client.StartTrace(Trace{Name: "doomed"})
	client.Flush(context.Background())

	// Failures are swallowed but counted.
	var failures uint64
	for _, q := range client.flushers {
		failures += q.Stats().DispatchFailures
	}
	assert.Equal(t, uint64(1), failures)
}

func TestNewClientRequiresConfig(t *testing.T) {
	if _, err := NewClient(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OPIK_URL_OVERRIDE", "http://localhost:5173/api")
	t.Setenv("OPIK_API_KEY", "env-key")
	t.Setenv("OPIK_WORKSPACE", "env-ws")
	t.Setenv("OPIK_PROJECT_NAME", "env-project")

	cfg := ConfigFromEnv()
	assert.Equal(t, "http://localhost:5173/api", cfg.BaseURL)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "env-ws", cfg.Workspace)
	assert.Equal(t, "env-project", cfg.ProjectName)
	assert.Equal(t, DefaultConfig().FlushInterval, cfg.FlushInterval)
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "https://www.comet.com/opik/api", cfg.BaseURL)
	assert.Equal(t, 300*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, 1000, cfg.MaxCreateBatch)
	assert.Equal(t, 100, cfg.MaxDeleteBatch)
	assert.Equal(t, 2000, cfg.StreamLimit)
}
