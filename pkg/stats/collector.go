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

// Package stats holds the gateway's process-lifetime counters and
// connection state. A Collector is created once and passed to whatever
// needs it.
package stats

import (
	"sync"
	"time"
)

// Counter names.
const (
	Received         = "received"
	Valid            = "valid"
	Invalid          = "invalid"
	Unauthorized     = "unauthorized"
	Deduped          = "deduped"
	NoRoute          = "no_route"
	ProcessingErrors = "processing_errors"
	DedupeCleaned    = "dedupe_cleaned"
)

// RouteSuccess is the per-route success counter name.
func RouteSuccess(route string) string { return "route." + route + ".success" }

// RouteFail is the per-route failure counter name.
func RouteFail(route string) string { return "route." + route + ".fail" }

// Snapshot is a copy of the collector state.
type Snapshot struct {
	StartedAt     time.Time         `json:"started_at"`
	MQTTConnected bool              `json:"mqtt_connected"`
	LastMessageAt *time.Time        `json:"last_message_at,omitempty"`
	Counters      map[string]int64  `json:"counters"`
	LastErrors    map[string]string `json:"last_errors"`
}

// Collector is safe for concurrent use.
type Collector struct {
	mu            sync.RWMutex
	startedAt     time.Time
	mqttConnected bool
	lastMessageAt time.Time
	counters      map[string]int64
	lastErrors    map[string]string
	metrics       *Metrics
}

// New returns a Collector started at now. metrics may be nil.
func New(now time.Time, metrics *Metrics) *Collector {
	return &Collector{
		startedAt:  now,
		counters:   make(map[string]int64),
		lastErrors: make(map[string]string),
		metrics:    metrics,
	}
}

func (c *Collector) Inc(name string) {
	c.Add(name, 1)
}

func (c *Collector) Add(name string, delta int64) {
	if delta <= 0 {
		return
	}

	c.mu.Lock()
	c.counters[name] += delta
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Events.WithLabelValues(name).Add(float64(delta))
	}
}

func (c *Collector) SetMQTTConnected(connected bool) {
	c.mu.Lock()
	c.mqttConnected = connected
	c.mu.Unlock()

	if c.metrics != nil {
		if connected {
			c.metrics.MQTTConnected.Set(1)
		} else {
			c.metrics.MQTTConnected.Set(0)
		}
	}
}

// MQTTConnected reports the last connection state set.
func (c *Collector) MQTTConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.mqttConnected
}

func (c *Collector) MarkMessage(at time.Time) {
	c.mu.Lock()
	if at.After(c.lastMessageAt) {
		c.lastMessageAt = at
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.LastMessage.Set(float64(at.Unix()))
	}
}

// SetLastError records the latest failure reason for a route.
func (c *Collector) SetLastError(route, msg string) {
	c.mu.Lock()
	c.lastErrors[route] = msg
	c.mu.Unlock()
}

// ObserveProcessing records how long one message took, by topic kind and
// outcome. It only feeds the Prometheus histogram.
func (c *Collector) ObserveProcessing(kind, outcome string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.ProcessingDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
	}
}

// Counter returns one counter value.
func (c *Collector) Counter(name string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.counters[name]
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		StartedAt:     c.startedAt,
		MQTTConnected: c.mqttConnected,
		Counters:      make(map[string]int64, len(c.counters)),
		LastErrors:    make(map[string]string, len(c.lastErrors)),
	}

	if !c.lastMessageAt.IsZero() {
		at := c.lastMessageAt
		snap.LastMessageAt = &at
	}

	for k, v := range c.counters {
		snap.Counters[k] = v
	}

	for k, v := range c.lastErrors {
		snap.LastErrors[k] = v
	}

	return snap
}
