/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/barnlink/ingress/pkg/logger"
)

const (
	defaultTimeout   = 5 * time.Second
	maxErrorBodySize = 512

	headerRequestID = "x-request-id"
	headerTraceID   = "x-trace-id"
)

var errNilCall = errors.New("downstream call is nil")

// Result is the outcome of one Forward. A failed result is not a pipeline
// error: the message has already been accepted.
type Result struct {
	Route      string
	Succeeded  bool
	StatusCode int
	Reason     string
	Duration   time.Duration
}

// ClientConfig controls how the downstream HTTP client behaves.
type ClientConfig struct {
	Timeout time.Duration
	Logger  logger.Logger
	HTTP    *http.Client
}

// Client POSTs calls built by the Router. It never retries.
type Client struct {
	timeout time.Duration
	client  *http.Client
	logger  logger.Logger
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Client{timeout: timeout, client: httpClient, logger: log}
}

// Forward performs the call within the client timeout.
func (c *Client) Forward(ctx context.Context, call *Call) Result {
	if call == nil {
		return Result{Reason: errNilCall.Error()}
	}

	start := time.Now()
	res := c.do(ctx, call)
	res.Route = call.Route
	res.Duration = time.Since(start)

	ev := c.logger.Debug()
	if !res.Succeeded {
		ev = c.logger.Warn()
	}

	ev.Str("route", call.Route).
		Str("event_id", call.EventID).
		Str("trace_id", call.TraceID).
		Int("status", res.StatusCode).
		Dur("duration", res.Duration).
		Str("reason", res.Reason).
		Msg("downstream call")

	return res
}

func (c *Client) do(ctx context.Context, call *Call) Result {
	payload, err := json.Marshal(call.Body)
	if err != nil {
		return Result{Reason: fmt.Sprintf("encode body: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.URL, bytes.NewReader(payload))
	if err != nil {
		return Result{Reason: fmt.Sprintf("build request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerRequestID, call.EventID)
	req.Header.Set(headerTraceID, call.TraceID)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Reason: fmt.Sprintf("timeout after %s", c.timeout)}
		}

		return Result{Reason: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

		reason := fmt.Sprintf("status %d", resp.StatusCode)
		if trimmed := strings.TrimSpace(string(msg)); trimmed != "" {
			reason += ": " + trimmed
		}

		return Result{StatusCode: resp.StatusCode, Reason: reason}
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return Result{StatusCode: resp.StatusCode, Succeeded: true}
}
