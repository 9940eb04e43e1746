// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// =============================================================================
// ERROR SENTINELS
// =============================================================================

var (
	// ErrProvider matches every vendor failure below.
	ErrProvider = errors.New("provider error")

	// ErrAuthentication means no usable API key: missing locally or
	// rejected by the vendor with 401.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRateLimit means the vendor answered 429.
	ErrRateLimit = errors.New("rate limited")

	// ErrAPI means the vendor answered with any other status >= 400.
	ErrAPI = errors.New("API error")

	// ErrTimeout means the request exceeded the transport timeout.
	ErrTimeout = errors.New("request timed out")
)

// =============================================================================
// TYPED ERRORS
// =============================================================================

// AuthenticationError is returned when a key is missing or rejected.
type AuthenticationError struct {
	Provider string
	Message  string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, ErrAuthentication, e.Message)
}

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication || target == ErrProvider
}

// RateLimitError is returned for HTTP 429. There are no retries.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, ErrRateLimit, e.Message)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimit || target == ErrProvider
}

// APIError is returned for any other HTTP status >= 400.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s (status %d): %s", e.Provider, ErrAPI, e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPI || target == ErrProvider
}

// TimeoutError is returned when the transport deadline passes.
type TimeoutError struct {
	Provider string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Provider, ErrTimeout, e.Err)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == ErrProvider
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// apiErrorResponse is the {"error": {...}} envelope used by every vendor.
type apiErrorResponse struct {
	Error struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// handleErrorResponse converts a non-2xx response to a typed error.
func handleErrorResponse(provider string, statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return &AuthenticationError{Provider: provider, Message: "API key rejected by provider"}
	case http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, Message: "too many requests, try again later"}
	}

	message := strings.TrimSpace(string(body))
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}
	return &APIError{Provider: provider, StatusCode: statusCode, Message: message}
}

// classifyTransportError maps deadline failures to TimeoutError and wraps the
// rest with the provider name. Caller cancellation passes through untouched.
func classifyTransportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Provider: provider, Err: err}
	}
	return fmt.Errorf("[%s] request failed: %w", provider, err)
}
