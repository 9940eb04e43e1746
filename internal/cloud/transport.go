// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the per-request transport timeout.
	DefaultTimeout = 120 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// UserAgent is sent with every vendor request.
	UserAgent = "meei-go/0.1"
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// sharedTransport is used by every adapter that was not given its own client.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
	TLSClientConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
	},
}

// newHTTPClients returns the request client (bounded by timeout end to end)
// and the streaming client (bounded per read by the stream watchdog). Both
// share base's transport.
func newHTTPClients(base *http.Client, timeout time.Duration) (*http.Client, *http.Client) {
	var transport http.RoundTripper = sharedTransport
	if base != nil && base.Transport != nil {
		transport = base.Transport
	}
	return &http.Client{Transport: transport, Timeout: timeout},
		&http.Client{Transport: transport}
}

// readResponse reads the body with a size cap.
func readResponse(resp *http.Response) ([]byte, error) {
	// SECURITY: Limit response size to prevent memory exhaustion
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// keyFingerprint identifies a key in logs without revealing it.
func keyFingerprint(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:4])
}
