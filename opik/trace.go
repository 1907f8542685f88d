// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import "time"

// TraceHandle is the application-facing wrapper around one trace. Every
// mutation delegates to the client's trace queue; none of them block or
// return errors — once accepted into a queue, telemetry failures are only
// visible through the logger.
type TraceHandle struct {
	client *Client
	id     string
}

// StartTrace enqueues the creation of a trace and returns its handle.
// Missing fields are filled in: a UUIDv7 identifier, the configured default
// project and the current time.
func (c *Client) StartTrace(t Trace) *TraceHandle {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.ProjectName == "" {
		t.ProjectName = c.cfg.ProjectName
	}
	if t.StartTime.IsZero() {
		t.StartTime = time.Now().UTC()
	}
	c.traces.Create(t)
	return &TraceHandle{client: c, id: t.ID}
}

// ID returns the trace identifier.
func (h *TraceHandle) ID() string { return h.id }

// Update merges a patch into the trace. If the create is still pending the
// patch folds into it, so create-then-update before the first flush sends a
// single create call with the final values.
func (h *TraceHandle) Update(patch TraceUpdate) {
	h.client.traces.Update(h.id, patch)
}

// End marks the trace finished as of now.
func (h *TraceHandle) End() {
	now := time.Now().UTC()
	h.Update(TraceUpdate{EndTime: &now})
}

// StartSpan enqueues the creation of a span under this trace and returns its
// handle.
func (h *TraceHandle) StartSpan(s Span) *SpanHandle {
	s.TraceID = h.id
	return h.client.startSpan(s)
}

// LogFeedbackScore attaches a named score to this trace.
func (h *TraceHandle) LogFeedbackScore(score FeedbackScore) {
	score.ID = h.id
	if score.ProjectName == "" {
		score.ProjectName = h.client.cfg.ProjectName
	}
	h.client.traceScores.Create(score)
}

// DeleteFeedbackScores enqueues deletion of the named scores on this trace.
func (h *TraceHandle) DeleteFeedbackScores(names ...string) {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = scoreKey(h.id, name)
	}
	h.client.traceScores.Delete(keys...)
}
