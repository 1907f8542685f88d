// Copyright 2025 Comet ML, Inc.
// SPDX-License-Identifier: Apache-2.0

package opik

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned for any non-2xx response from the collection service.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d for %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// IsNotFound reports whether err is a 404 from the service. During dataset
// hash sync a 404 on the listing call means "no existing items", not a
// failure.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the service.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}
