// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"encoding/json"
	"net/http"

	"github.com/kaptinlin/jsonrepair"
)

// dialect is a vendor wire format.
type dialect interface {
	// endpoint returns the completion URL. baseURL has no trailing slash.
	endpoint(baseURL, model, apiKey string, stream bool) string
	authorize(req *http.Request, apiKey string)
	buildRequest(messages []Message, model string, p Params, stream bool) any
	// parseResponse never fails; unusable bodies give a zero Completion.
	parseResponse(body []byte) Completion
	// parseChunk decodes one SSE data payload. ok is false for malformed data.
	parseChunk(data []byte) (chunk Completion, ok bool)
	isDone(data []byte) bool
}

// decodeLenient unmarshals data into v, retrying once on a repaired copy when
// the vendor sent almost-JSON (trailing commas, truncated objects).
func decodeLenient(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(string(data))
	if repairErr != nil {
		return err
	}
	return json.Unmarshal([]byte(repaired), v)
}
