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

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/lockverify/internal/request"
	"github.com/jerry-enebeli/lockverify/model"
)

const defaultTimeout = 30 * time.Second

// Client talks to the lock indexing backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// ResyncResponse is the outcome of one resync request.
type ResyncResponse struct {
	URL        string
	StatusCode int
	// Data is true only when the body's data field is the JSON boolean true.
	Data bool
	Body string
}

// LocksResponse is the backend's view of a wallet's locks.
type LocksResponse struct {
	URL        string
	StatusCode int
	Locks      []model.LockRecord
	Body       string
}

// DecodeError is returned when a 200 response carries an unreadable body.
type DecodeError struct {
	URL  string
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response from %s: %v body=%q", e.URL, e.Err, e.Body)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// New creates a backend client. A zero timeout falls back to 30 seconds.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// NewWithHTTPClient creates a backend client around an existing http.Client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		return New(baseURL, 0)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// BaseURL returns the backend root the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResyncURL builds PUT /api/app/locks/{contract}/{lockId}?network=&chainId=.
func (c *Client) ResyncURL(target model.Target, lockID model.LockID) string {
	return fmt.Sprintf("%s/api/app/locks/%s/%s?%s", c.baseURL,
		url.PathEscape(target.ContractAddress), url.PathEscape(lockID.String()), chainQuery(target))
}

// LocksURL builds GET /api/app/mylocks/{wallet}?network=&chainId=.
func (c *Client) LocksURL(wallet string, target model.Target) string {
	return fmt.Sprintf("%s/api/app/mylocks/%s?%s", c.baseURL, url.PathEscape(wallet), chainQuery(target))
}

func chainQuery(target model.Target) string {
	q := url.Values{}
	q.Set("network", target.Network)
	q.Set("chainId", target.ChainID)
	return q.Encode()
}

// ResyncLock asks the backend to re-read a lock from chain and refresh its index.
// Non-2xx responses are returned as a ResyncResponse, not as an error; only
// transport failures produce an error.
func (c *Client) ResyncLock(ctx context.Context, target model.Target, lockID model.LockID) (ResyncResponse, error) {
	endpoint := c.ResyncURL(target, lockID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return ResyncResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	status, body, err := request.Call(c.http, req)
	if err != nil {
		return ResyncResponse{URL: endpoint, StatusCode: status}, fmt.Errorf("failed to execute request: %w", err)
	}

	out := ResyncResponse{URL: endpoint, StatusCode: status, Body: request.Snapshot(body)}
	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if request.Decode(body, &payload) == nil {
		out.Data = bytes.Equal(bytes.TrimSpace(payload.Data), []byte("true"))
	}

	logrus.WithFields(logrus.Fields{
		"method":      http.MethodPut,
		"url":         endpoint,
		"status_code": status,
		"response":    out.Body,
	}).Debug("Resync response received")

	return out, nil
}

// ErrMissingData is returned when a 200 lock listing has no data array.
var ErrMissingData = errors.New(`response has no "data" array`)

// GetLocks fetches every lock the backend has indexed for wallet.
// The body is only decoded for 200 responses; a 200 whose body is undecodable
// or lacks a data array yields a *DecodeError.
func (c *Client) GetLocks(ctx context.Context, wallet string, target model.Target) (LocksResponse, error) {
	endpoint := c.LocksURL(wallet, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return LocksResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	status, body, err := request.Call(c.http, req)
	if err != nil {
		return LocksResponse{URL: endpoint, StatusCode: status}, fmt.Errorf("failed to execute request: %w", err)
	}

	out := LocksResponse{URL: endpoint, StatusCode: status, Body: request.Snapshot(body)}

	logrus.WithFields(logrus.Fields{
		"method":      http.MethodGet,
		"url":         endpoint,
		"status_code": status,
	}).Debug("Locks response received")

	if status != http.StatusOK {
		return out, nil
	}

	var payload struct {
		Data *[]model.LockRecord `json:"data"`
	}
	if err := request.Decode(body, &payload); err != nil {
		return out, &DecodeError{URL: endpoint, Body: out.Body, Err: err}
	}
	if payload.Data == nil {
		return out, &DecodeError{URL: endpoint, Body: out.Body, Err: ErrMissingData}
	}
	out.Locks = *payload.Data
	return out, nil
}
