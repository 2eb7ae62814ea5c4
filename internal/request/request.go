/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// maxBodySize caps how much of a response body is kept for decoding and diagnostics.
const maxBodySize = 1 << 20

// ErrResponseTooLarge is returned when a response body exceeds 1 MiB.
var ErrResponseTooLarge = errors.New("response too large")

type requestIDKey struct{}

// WithRequestID returns a context whose outgoing requests carry id as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID extracts the id set by WithRequestID, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Call sends the request and returns the status code and the raw response body.
// It sets the request Accept header to application/json and attaches the
// request id and trace context from the request context.
//
// Parameters:
// - client *http.Client: The client used to send the request.
// - req *http.Request: The prepared HTTP request to send.
//
// Returns:
// - int: The HTTP status code. Non-2xx codes are not treated as errors.
// - []byte: The response body.
// - error: An error if the request could not be sent, the body could not be read
//   or the body is larger than 1 MiB (ErrResponseTooLarge).
func Call(client *http.Client, req *http.Request) (int, []byte, error) {
	req.Header.Set("Accept", "application/json")
	if id := RequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if len(body) > maxBodySize {
		return resp.StatusCode, body[:maxBodySize], fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, maxBodySize)
	}
	return resp.StatusCode, body, nil
}

// Decode unmarshals a JSON response body into response.
func Decode(body []byte, response interface{}) error {
	return json.Unmarshal(body, response)
}

// Snapshot renders a body for logs and error messages.
func Snapshot(body []byte) string {
	return strings.TrimSpace(string(body))
}
