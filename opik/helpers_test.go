// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

type patchCall[P any] struct {
	id    string
	patch P
}

// fakeAPI is an in-memory stand-in for the collection service, recording
// every request the SDK dispatches.
type fakeAPI struct {
	mu sync.Mutex

	traceBatches []traceBatchWrite
	traceUpdates []patchCall[TraceUpdate]
	traceDeletes []bulkDelete

	spanBatches []spanBatchWrite
	spanUpdates []patchCall[SpanUpdate]
	spanDeletes []bulkDelete

	traceScorePuts  []feedbackScoreBatch
	spanScorePuts   []feedbackScoreBatch
	traceScoreWipes []feedbackScoreDelete
	spanScoreWipes  []feedbackScoreDelete

	itemBatches []datasetItemBatchWrite
	itemUpdates []patchCall[DatasetItemUpdate]
	itemDeletes []datasetItemsDelete

	// streamItems is the remote dataset content served by the stream
	// endpoint, in cursor order.
	streamItems  []streamedDatasetItem
	streamStatus int // non-zero forces a status code on the stream endpoint
	failCreates  bool

	streamRequests int
}

func (f *fakeAPI) roundTrip(r *http.Request) (*http.Response, error) {
	body, err := decodeBody(r)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/v1/private/traces/batch":
		if f.failCreates {
			return jsonResponse(http.StatusInternalServerError, `{"error":"boom"}`), nil
		}
		var req traceBatchWrite
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		f.traceBatches = append(f.traceBatches, req)

	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/v1/private/traces/"):
		var patch TraceUpdate
		if err := json.Unmarshal(body, &patch); err != nil {
			return nil, err
		}
		id := strings.TrimPrefix(path, "/v1/private/traces/")
		f.traceUpdates = append(f.traceUpdates, patchCall[TraceUpdate]{id: id, patch: patch})

	case r.Method == http.MethodPost && path == "/v1/private/traces/delete":
		var req bulkDelete
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		f.traceDeletes = append(f.traceDeletes, req)

	case r.Method == http.MethodPost && path == "/v1/private/spans/batch":
		var req spanBatchWrite
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		f.spanBatches = append(f.spanBatches, req)

	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/v1/private/spans/"):
		var patch SpanUpdate
		if err := json.Unmarshal(body, &patch); err != nil {
			return nil, err
		}
		id := strings.TrimPrefix(path, "/v1/private/spans/")
		f.spanUpdates = append(f.spanUpdates, patchCall[SpanUpdate]{id: id, patch: patch})

	case r.Method == http.MethodPost && path == "/v1/private/spans/delete":
		var req bulkDelete
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		f.spanDeletes = append(f.spanDeletes, req)

	case r.Method == http.MethodPut && path == "/v1/private/traces/feedback-scores":
		var req feedbackScoreBatch
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		f.traceScorePuts = append(f.traceScorePuts, req)

	case r.Method == http.MethodPut && path == "/v1/private/spans/feedback-scores":
		var req feedbackScoreBatch
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		f.spanScorePuts = append(f.spanScorePuts, req)

	case r.Method == http.MethodPost && path == "/v1/private/traces/feedback-scores/delete":
		var req feedbackScoreDelete
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		f.traceScoreWipes = append(f.traceScoreWipes, req)

	case r.Method == http.MethodPost && path == "/v1/private/spans/feedback-scores/delete":
		var req feedbackScoreDelete
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		f.spanScoreWipes = append(f.spanScoreWipes, req)

	case r.Method == http.MethodPut && path == "/v1/private/datasets/items":
		if f.failCreates {
			return jsonResponse(http.StatusInternalServerError, `{"error":"boom"}`), nil
		}
		var req datasetItemBatchWrite
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		f.itemBatches = append(f.itemBatches, req)

	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/v1/private/datasets/items/") &&
		path != "/v1/private/datasets/items/delete" && path != "/v1/private/datasets/items/stream":
		var patch DatasetItemUpdate
		if err := json.Unmarshal(body, &patch); err != nil {
			return nil, err
		}
		id := strings.TrimPrefix(path, "/v1/private/datasets/items/")
		f.itemUpdates = append(f.itemUpdates, patchCall[DatasetItemUpdate]{id: id, patch: patch})

	case r.Method == http.MethodPost && path == "/v1/private/datasets/items/delete":
		var req datasetItemsDelete
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		f.itemDeletes = append(f.itemDeletes, req)

	case r.Method == http.MethodPost && path == "/v1/private/datasets/items/stream":
		f.streamRequests++
		if f.streamStatus != 0 && f.streamStatus != http.StatusOK {
			return jsonResponse(f.streamStatus, `{"error":"stream failed"}`), nil
		}
		var req datasetItemStreamRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return jsonResponse(http.StatusOK, f.streamPage(req)), nil

	case r.Method == http.MethodPost && path == "/v1/private/datasets":
		// get-or-create: existence is indistinguishable from creation here

	default:
		return nil, fmt.Errorf("unexpected request: %s %s", r.Method, r.URL.String())
	}

	return jsonResponse(http.StatusNoContent, ""), nil
}

// streamPage renders the NDJSON page after the request cursor. Must be
// called with f.mu held.
func (f *fakeAPI) streamPage(req datasetItemStreamRequest) string {
	start := 0
	if req.LastRetrievedID != "" {
		for i, item := range f.streamItems {
			if item.ID == req.LastRetrievedID {
				start = i + 1
				break
			}
		}
	}
	end := start + req.SteamLimit
	if end > len(f.streamItems) {
		end = len(f.streamItems)
	}
	var sb strings.Builder
	for _, item := range f.streamItems[start:end] {
		line, _ := json.Marshal(item)
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func decodeBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	}
	return io.ReadAll(reader)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient wires a client to the fake service with a window long
// enough that only explicit flushes dispatch.
func newTestClient(t *testing.T, f *fakeAPI, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = "http://opik.test"
	cfg.ProjectName = "test-project"
	cfg.FlushInterval = time.Hour
	cfg.HTTP = &http.Client{Transport: roundTripFunc(f.roundTrip)}
	cfg.Logger = discardLogger()
	if mutate != nil {
		mutate(cfg)
	}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func decodeGzipJSON(t *testing.T, data []byte, out any) {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
