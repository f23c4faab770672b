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

package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barnlink/ingress/pkg/logger"
	"github.com/barnlink/ingress/pkg/models"
	"github.com/barnlink/ingress/pkg/stats"
)

type lastSeenFunc func(ctx context.Context, tenantID, deviceID string) (*models.LastSeenRecord, error)

func (f lastSeenFunc) LastSeen(ctx context.Context, tenantID, deviceID string) (*models.LastSeenRecord, error) {
	return f(ctx, tenantID, deviceID)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	return rr
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := NewServer(&Config{Logger: logger.NewTestLogger()})

	rr := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestReady(t *testing.T) {
	t.Parallel()

	mqttUp := false

	srv := NewServer(&Config{
		Checks: map[string]Check{
			"storage": func(context.Context) error { return nil },
			"mqtt": func(context.Context) error {
				if !mqttUp {
					return errors.New("not connected")
				}

				return nil
			},
		},
	})

	rr := get(t, srv.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"ready":false,"failures":{"mqtt":"not connected"}}`, rr.Body.String())

	mqttUp = true

	rr = get(t, srv.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ready":true}`, rr.Body.String())
}

func TestStats(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	collector := stats.New(started, nil)
	collector.Inc(stats.Received)
	collector.Inc(stats.RouteFail("telemetry"))
	collector.SetLastError("telemetry", "timeout after 5s")
	collector.SetMQTTConnected(true)

	srv := NewServer(&Config{Stats: collector})

	rr := get(t, srv.Handler(), "/stats")
	require.Equal(t, http.StatusOK, rr.Code)

	var snap stats.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.True(t, snap.StartedAt.Equal(started))
	assert.True(t, snap.MQTTConnected)
	assert.Nil(t, snap.LastMessageAt)
	assert.Equal(t, int64(1), snap.Counters["received"])
	assert.Equal(t, int64(1), snap.Counters["route.telemetry.fail"])
	assert.Equal(t, "timeout after 5s", snap.LastErrors["telemetry"])
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics, err := stats.NewMetrics(reg)
	require.NoError(t, err)

	collector := stats.New(time.Now(), metrics)
	collector.Inc(stats.Deduped)

	srv := NewServer(&Config{Stats: collector, Gatherer: reg})

	rr := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `ingress_gateway_events_total{name="deduped"} 1`)

	noMetrics := NewServer(&Config{})
	assert.Equal(t, http.StatusNotFound, get(t, noMetrics.Handler(), "/metrics").Code)
}

func TestLastSeen(t *testing.T) {
	t.Parallel()

	seen := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	srv := NewServer(&Config{
		LastSeen: lastSeenFunc(func(_ context.Context, tenantID, deviceID string) (*models.LastSeenRecord, error) {
			switch deviceID {
			case "d1":
				return &models.LastSeenRecord{
					TenantID: tenantID, DeviceID: deviceID, LastSeenAt: seen,
					LastTopic: "iot/status/t1/f1/b1/d1", LastPayloadHash: "abc",
				}, nil
			case "broken":
				return nil, errors.New("pool closed")
			default:
				return nil, nil
			}
		}),
	})

	rr := get(t, srv.Handler(), "/devices/t1/d1/last-seen")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{
		"tenant_id":"t1","device_id":"d1","last_seen_at":"2025-03-01T10:00:00Z",
		"last_topic":"iot/status/t1/f1/b1/d1","last_payload_hash":"abc"}`, rr.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/devices/t1/d2/last-seen").Code)

	rr = get(t, srv.Handler(), "/devices/t1/broken/last-seen")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "pool closed")
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	srv := NewServer(&Config{ListenAddr: "127.0.0.1:0"})

	require.NoError(t, srv.Start(context.Background()))
	assert.ErrorIs(t, srv.Start(context.Background()), errServerRunning)

	srv.mu.Lock()
	running := srv.srv
	srv.mu.Unlock()
	require.NotNil(t, running)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
}

func TestStartListenFailure(t *testing.T) {
	t.Parallel()

	srv := NewServer(&Config{ListenAddr: "256.0.0.1:bad"})

	err := srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "ops api listen"))
}

func TestRecovererKeepsServing(t *testing.T) {
	t.Parallel()

	srv := NewServer(&Config{
		LastSeen: lastSeenFunc(func(context.Context, string, string) (*models.LastSeenRecord, error) {
			panic("boom")
		}),
	})

	rr := get(t, srv.Handler(), "/devices/t/d/last-seen")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	body, _ := io.ReadAll(get(t, srv.Handler(), "/health").Body)
	assert.Contains(t, string(body), "ok")
}
