// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import "time"

// SpanHandle is the application-facing wrapper around one span.
type SpanHandle struct {
	client  *Client
	id      string
	traceID string
}

func (c *Client) startSpan(s Span) *SpanHandle {
	if s.ID == "" {
		s.ID = newID()
	}
	if s.ProjectName == "" {
		s.ProjectName = c.cfg.ProjectName
	}
	if s.StartTime.IsZero() {
		s.StartTime = time.Now().UTC()
	}
	c.spans.Create(s)
	return &SpanHandle{client: c, id: s.ID, traceID: s.TraceID}
}

// ID returns the span identifier.
func (h *SpanHandle) ID() string { return h.id }

// TraceID returns the identifier of the span's trace.
func (h *SpanHandle) TraceID() string { return h.traceID }

// Update merges a patch into the span.
func (h *SpanHandle) Update(patch SpanUpdate) {
	h.client.spans.Update(h.id, patch)
}

// End marks the span finished as of now.
func (h *SpanHandle) End() {
	now := time.Now().UTC()
	h.Update(SpanUpdate{EndTime: &now})
}

// StartSpan enqueues the creation of a child span.
func (h *SpanHandle) StartSpan(s Span) *SpanHandle {
	s.TraceID = h.traceID
	s.ParentSpanID = h.id
	return h.client.startSpan(s)
}

// LogFeedbackScore attaches a named score to this span.
func (h *SpanHandle) LogFeedbackScore(score FeedbackScore) {
	score.ID = h.id
	if score.ProjectName == "" {
		score.ProjectName = h.client.cfg.ProjectName
	}
	h.client.spanScores.Create(score)
}

// DeleteFeedbackScores enqueues deletion of the named scores on this span.
func (h *SpanHandle) DeleteFeedbackScores(names ...string) {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = scoreKey(h.id, name)
	}
	h.client.spanScores.Delete(keys...)
}
