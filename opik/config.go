// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	defaultBaseURL = "https://www.comet.com/opik/api"

	// defaultStreamLimit is the page size for dataset item hash sync. The
	// service caps a single streamed listing request at 2000 items.
	defaultStreamLimit = 2000
	maxStreamLimit     = 2000
)

// Config holds configuration for the SDK client.
type Config struct {
	BaseURL     string // e.g. "https://www.comet.com/opik/api"
	APIKey      string // empty for unauthenticated self-hosted deployments
	Workspace   string // workspace name sent with every request
	ProjectName string // default project for traces and spans

	FlushInterval  time.Duration // delay window for write coalescing, default 300ms
	MaxCreateBatch int           // max items per bulk-create call, default 1000
	MaxDeleteBatch int           // max ids per bulk-delete call, default 100
	StreamLimit    int           // page size for dataset hash sync, default 2000

	// CompressRequests enables gzip encoding of bulk request bodies.
	CompressRequests bool

	HTTP   *http.Client // defaults to a client with a 120s timeout
	Logger *slog.Logger // defaults to slog.Default()
}

// DefaultConfig returns a configuration with all tuning values at their
// defaults, pointed at the hosted service.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        defaultBaseURL,
		FlushInterval:  300 * time.Millisecond,
		MaxCreateBatch: 1000,
		MaxDeleteBatch: 100,
		StreamLimit:    defaultStreamLimit,
	}
}

// ConfigFromEnv builds a default configuration overridden by the standard
// environment variables: OPIK_URL_OVERRIDE, OPIK_API_KEY, OPIK_WORKSPACE and
// OPIK_PROJECT_NAME.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("OPIK_URL_OVERRIDE"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("OPIK_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("OPIK_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
	if v := os.Getenv("OPIK_PROJECT_NAME"); v != "" {
		cfg.ProjectName = v
	}
	return cfg
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}
	if out.FlushInterval <= 0 {
		out.FlushInterval = 300 * time.Millisecond
	}
	if out.MaxCreateBatch <= 0 {
		out.MaxCreateBatch = 1000
	}
	if out.MaxDeleteBatch <= 0 {
		out.MaxDeleteBatch = 100
	}
	if out.StreamLimit <= 0 || out.StreamLimit > maxStreamLimit {
		out.StreamLimit = defaultStreamLimit
	}
	if out.HTTP == nil {
		out.HTTP = &http.Client{Timeout: 120 * time.Second}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}
