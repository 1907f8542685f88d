// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package hashing computes canonical content hashes for dataset item
// deduplication. Two items with identical content hash identically no matter
// how their fields were ordered at insertion time or whether the values came
// from local Go code or from a decoded JSON response.
package hashing

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// Content returns the hex-encoded BLAKE3-256 digest of an item's content
// fields. The input is only the semantic content (the item's data map);
// identifiers, source markers and bookkeeping metadata must not be passed in.
func Content(data map[string]any) (string, error) {
	canonical, err := canonicalJSON(data)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize content: %w", err)
	}
	sum := blake3.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON produces a byte-stable encoding of v. encoding/json already
// sorts map keys; the marshal/unmarshal round trip additionally normalizes
// numeric types, so int64(42) built locally and float64(42) decoded from a
// server response encode identically.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}
