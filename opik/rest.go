// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/klauspost/compress/gzip"
)

// compressMinBytes is the smallest body worth gzip-encoding. Per-id patch
// calls stay below it; bulk bodies usually do not.
const compressMinBytes = 1024

// restClient is the wire layer for the collection service. It only shapes
// and sends requests; all buffering, batching and failure policy live in the
// queues above it.
type restClient struct {
	baseURL   string
	apiKey    string
	workspace string
	http      *http.Client
	logger    *slog.Logger
	compress  bool
}

func newRESTClient(cfg *Config) *restClient {
	return &restClient{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		workspace: cfg.Workspace,
		http:      cfg.HTTP,
		logger:    cfg.Logger,
		compress:  cfg.CompressRequests,
	}
}

// do sends one JSON request and decodes the response into out (when out is
// non-nil). Non-2xx responses become *APIError.
func (r *restClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	gzipped := false
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		if r.compress && len(jsonData) >= compressMinBytes {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			if _, err := zw.Write(jsonData); err != nil {
				return fmt.Errorf("failed to compress request body: %w", err)
			}
			if err := zw.Close(); err != nil {
				return fmt.Errorf("failed to compress request body: %w", err)
			}
			reqBody = &buf
			gzipped = true
		} else {
			reqBody = bytes.NewReader(jsonData)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if gzipped {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", r.apiKey)
	}
	if r.workspace != "" {
		httpReq.Header.Set("Comet-Workspace", r.workspace)
	}

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Body: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (r *restClient) createTraces(ctx context.Context, groupID string, traces []Trace) error {
	return r.do(ctx, http.MethodPost, "/v1/private/traces/batch",
		traceBatchWrite{BatchGroupID: groupID, Traces: traces}, nil)
}

func (r *restClient) updateTrace(ctx context.Context, id string, patch TraceUpdate) error {
	return r.do(ctx, http.MethodPatch, "/v1/private/traces/"+id, patch, nil)
}

func (r *restClient) deleteTraces(ctx context.Context, groupID string, ids []string) error {
	return r.do(ctx, http.MethodPost, "/v1/private/traces/delete",
		bulkDelete{BatchGroupID: groupID, IDs: ids}, nil)
}

func (r *restClient) createSpans(ctx context.Context, groupID string, spans []Span) error {
	return r.do(ctx, http.MethodPost, "/v1/private/spans/batch",
		spanBatchWrite{BatchGroupID: groupID, Spans: spans}, nil)
}

func (r *restClient) updateSpan(ctx context.Context, id string, patch SpanUpdate) error {
	return r.do(ctx, http.MethodPatch, "/v1/private/spans/"+id, patch, nil)
}

func (r *restClient) deleteSpans(ctx context.Context, groupID string, ids []string) error {
	return r.do(ctx, http.MethodPost, "/v1/private/spans/delete",
		bulkDelete{BatchGroupID: groupID, IDs: ids}, nil)
}

// scoreEntity is the path segment for feedback-score endpoints: "traces" or
// "spans".
func (r *restClient) createScores(ctx context.Context, entity string, scores []FeedbackScore) error {
	return r.do(ctx, http.MethodPut, "/v1/private/"+entity+"/feedback-scores",
		feedbackScoreBatch{Scores: scores}, nil)
}

func (r *restClient) deleteScores(ctx context.Context, entity, groupID string, scores []scoreIdentifier) error {
	return r.do(ctx, http.MethodPost, "/v1/private/"+entity+"/feedback-scores/delete",
		feedbackScoreDelete{BatchGroupID: groupID, Scores: scores}, nil)
}

func (r *restClient) createDatasetItems(ctx context.Context, groupID, dataset string, items []DatasetItem) error {
	return r.do(ctx, http.MethodPut, "/v1/private/datasets/items",
		datasetItemBatchWrite{BatchGroupID: groupID, DatasetName: dataset, Items: items}, nil)
}

func (r *restClient) updateDatasetItem(ctx context.Context, id string, patch DatasetItemUpdate) error {
	return r.do(ctx, http.MethodPatch, "/v1/private/datasets/items/"+id, patch, nil)
}

func (r *restClient) deleteDatasetItems(ctx context.Context, groupID string, ids []string) error {
	return r.do(ctx, http.MethodPost, "/v1/private/datasets/items/delete",
		datasetItemsDelete{BatchGroupID: groupID, ItemIDs: ids}, nil)
}

// getOrCreateDataset creates the dataset, treating "already exists" as
// success.
func (r *restClient) getOrCreateDataset(ctx context.Context, name, description string) error {
	err := r.do(ctx, http.MethodPost, "/v1/private/datasets",
		datasetWrite{Name: name, Description: description}, nil)
	if err != nil && !IsConflict(err) {
		return err
	}
	return nil
}

// streamDatasetItems fetches one page of the newline-delimited JSON item
// stream, starting after lastRetrievedID.
func (r *restClient) streamDatasetItems(ctx context.Context, dataset, lastRetrievedID string, limit int) ([]streamedDatasetItem, error) {
	reqBody, err := json.Marshal(datasetItemStreamRequest{
		DatasetName:     dataset,
		LastRetrievedID: lastRetrievedID,
		SteamLimit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/v1/private/datasets/items/stream", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/octet-stream")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", r.apiKey)
	}
	if r.workspace != "" {
		httpReq.Header.Set("Comet-Workspace", r.workspace)
	}

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodPost,
			Path:       "/v1/private/datasets/items/stream",
			Body:       string(respBody),
		}
	}

	var items []streamedDatasetItem
	dec := json.NewDecoder(resp.Body)
	for {
		var item streamedDatasetItem
		if err := dec.Decode(&item); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode streamed item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}
