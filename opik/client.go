// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package opik is the client core of the Opik observability SDK: it creates
// trace, span, feedback-score and dataset-item records and delivers them to
// the collection service through write-coalescing batch queues, without
// blocking the calling application and without one network call per
// mutation.
package opik

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/comet-ml/opik-sub000/batch"
)

// Client owns one batch queue per entity kind. All entity handles delegate
// their mutations to these queues; the client itself performs no I/O outside
// of queue dispatch and dataset management.
type Client struct {
	cfg    *Config
	logger *slog.Logger
	rest   *restClient

	traces      *batch.Queue[Trace, TraceUpdate]
	spans       *batch.Queue[Span, SpanUpdate]
	traceScores *batch.Queue[FeedbackScore, FeedbackScore]
	spanScores  *batch.Queue[FeedbackScore, FeedbackScore]

	mu       sync.Mutex
	flushers []flushQueue
}

// flushQueue is what the flush orchestrator needs from a queue: a flush
// entry point plus counters for the summary line.
type flushQueue interface {
	batch.Flusher
	Stats() batch.Stats
}

// NewClient creates a client from the given configuration. Pass
// ConfigFromEnv() to configure from the standard environment variables.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		rest:   newRESTClient(cfg),
	}
	c.traces = batch.NewQueue[Trace, TraceUpdate](traceAdapter{rest: c.rest}, c.queueOptions())
	c.spans = batch.NewQueue[Span, SpanUpdate](spanAdapter{rest: c.rest}, c.queueOptions())

	// Score keys are deterministic (entity id + score name), so re-logging
	// after a flush re-creates an id the service already has; the score
	// queues track dispatched ids so a later delete always reaches it.
	scoreOpts := c.queueOptions()
	scoreOpts.TrackFlushedIDs = true
	c.traceScores = batch.NewQueue[FeedbackScore, FeedbackScore](
		scoreAdapter{rest: c.rest, entity: "traces"}, scoreOpts)
	c.spanScores = batch.NewQueue[FeedbackScore, FeedbackScore](
		scoreAdapter{rest: c.rest, entity: "spans"}, scoreOpts)

	c.flushers = []flushQueue{c.traces, c.spans, c.traceScores, c.spanScores}
	return c, nil
}

func (c *Client) queueOptions() batch.Options {
	return batch.Options{
		FlushInterval:  c.cfg.FlushInterval,
		MaxCreateBatch: c.cfg.MaxCreateBatch,
		MaxDeleteBatch: c.cfg.MaxDeleteBatch,
		Logger:         c.logger,
	}
}

func (c *Client) registerFlusher(q flushQueue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushers = append(c.flushers, q)
}

// Flush fans out to every live queue concurrently and waits for all of them.
// Individual dispatch failures were already swallowed by the queues, so
// Flush itself cannot fail; it exists to give callers one synchronization
// point before process exit or before relying on remote-visible state. A
// single summary line is logged.
func (c *Client) Flush(ctx context.Context) {
	c.mu.Lock()
	flushers := make([]flushQueue, len(c.flushers))
	copy(flushers, c.flushers)
	c.mu.Unlock()

	before := c.dispatchFailures(flushers)

	var wg sync.WaitGroup
	for _, f := range flushers {
		wg.Add(1)
		go func(f flushQueue) {
			defer wg.Done()
			f.Flush(ctx)
		}(f)
	}
	wg.Wait()

	failed := c.dispatchFailures(flushers) - before
	if failed > 0 {
		c.logger.Warn("flush complete with dispatch failures",
			"queues", len(flushers), "failed_dispatches", failed)
	} else {
		c.logger.Debug("flush complete", "queues", len(flushers))
	}
}

func (c *Client) dispatchFailures(flushers []flushQueue) uint64 {
	var total uint64
	for _, f := range flushers {
		total += f.Stats().DispatchFailures
	}
	return total
}

// DeleteTraces enqueues deletes for the given trace identifiers.
func (c *Client) DeleteTraces(ids ...string) {
	c.traces.Delete(ids...)
}

// DeleteSpans enqueues deletes for the given span identifiers.
func (c *Client) DeleteSpans(ids ...string) {
	c.spans.Delete(ids...)
}

// newID generates a time-ordered UUIDv7, the identifier format the service
// expects for traces, spans and dataset items.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source fails; fall back to v4
		// rather than surface an error on a non-blocking enqueue path.
		return uuid.NewString()
	}
	return id.String()
}
