// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import "time"

// REST/JSON models for HTTP API requests and responses.

// Trace is a full trace payload. It is identified locally by a generated
// UUIDv7 before the remote service acknowledges the create, and stays
// mutable in the queue until flushed.
type Trace struct {
	ID          string         `json:"id"`
	ProjectName string         `json:"project_name,omitempty"`
	Name        string         `json:"name,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	ThreadID    string         `json:"thread_id,omitempty"`
}

// TraceUpdate is a partial patch for a trace. Nil fields are left untouched;
// Metadata merges key-by-key rather than overwriting.
type TraceUpdate struct {
	Name     *string        `json:"name,omitempty"`
	EndTime  *time.Time     `json:"end_time,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	ThreadID *string        `json:"thread_id,omitempty"`
}

// Span is a full span payload within a trace.
type Span struct {
	ID           string         `json:"id"`
	TraceID      string         `json:"trace_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	ProjectName  string         `json:"project_name,omitempty"`
	Name         string         `json:"name,omitempty"`
	Type         string         `json:"type,omitempty"` // "general", "llm", "tool"
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Model        string         `json:"model,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	Usage        map[string]int `json:"usage,omitempty"`
}

// SpanUpdate is a partial patch for a span.
type SpanUpdate struct {
	Name     *string        `json:"name,omitempty"`
	EndTime  *time.Time     `json:"end_time,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Model    *string        `json:"model,omitempty"`
	Provider *string        `json:"provider,omitempty"`
	Usage    map[string]int `json:"usage,omitempty"`
}

// FeedbackScore attaches a named numeric score to a trace or span. ID is the
// identifier of the scored entity.
type FeedbackScore struct {
	ID           string  `json:"id"`
	ProjectName  string  `json:"project_name,omitempty"`
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	CategoryName string  `json:"category_name,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	Source       string  `json:"source,omitempty"`
}

// DatasetItem is a single evaluation sample in a dataset. Data is the
// semantic content; only Data participates in the duplicate-detection
// content hash.
type DatasetItem struct {
	ID      string         `json:"id,omitempty"`
	Data    map[string]any `json:"data"`
	Source  string         `json:"source,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
	SpanID  string         `json:"span_id,omitempty"`

	// contentHash is populated by the dedup filter and recorded in the hash
	// cache once the item's create is acknowledged.
	contentHash string
}

// DatasetItemUpdate is a partial patch for a dataset item.
type DatasetItemUpdate struct {
	Data     map[string]any `json:"data,omitempty"`
	Source   *string        `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Wire envelopes. Bulk requests carry the batch-group correlation token so
// the service can tie together every chunk produced from one logical call.

type traceBatchWrite struct {
	BatchGroupID string  `json:"batch_group_id,omitempty"`
	Traces       []Trace `json:"traces"`
}

type spanBatchWrite struct {
	BatchGroupID string `json:"batch_group_id,omitempty"`
	Spans        []Span `json:"spans"`
}

type bulkDelete struct {
	BatchGroupID string   `json:"batch_group_id,omitempty"`
	IDs          []string `json:"ids"`
}

type feedbackScoreBatch struct {
	Scores []FeedbackScore `json:"scores"`
}

// scoreIdentifier names one score to delete: the scored entity plus the
// score name.
type scoreIdentifier struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type feedbackScoreDelete struct {
	BatchGroupID string            `json:"batch_group_id,omitempty"`
	Scores       []scoreIdentifier `json:"scores"`
}

type datasetItemBatchWrite struct {
	BatchGroupID string        `json:"batch_group_id,omitempty"`
	DatasetName  string        `json:"dataset_name"`
	Items        []DatasetItem `json:"items"`
}

type datasetItemsDelete struct {
	BatchGroupID string   `json:"batch_group_id,omitempty"`
	ItemIDs      []string `json:"item_ids"`
}

// datasetItemStreamRequest pages through a dataset's items by "last seen
// identifier" cursor. The field really is named steam_limit on the wire.
type datasetItemStreamRequest struct {
	DatasetName     string `json:"dataset_name"`
	LastRetrievedID string `json:"last_retrieved_id,omitempty"`
	SteamLimit      int    `json:"steam_limit"`
}

// streamedDatasetItem is one newline-delimited JSON record from the item
// stream.
type streamedDatasetItem struct {
	ID     string         `json:"id"`
	Data   map[string]any `json:"data"`
	Source string         `json:"source,omitempty"`
}

type datasetWrite struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
