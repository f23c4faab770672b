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

package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ingress_gateway"

// Metrics mirrors the collector into Prometheus.
type Metrics struct {
	Events             *prometheus.CounterVec
	MQTTConnected      prometheus.Gauge
	LastMessage        prometheus.Gauge
	ProcessingDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Gateway counters by name (received, valid, invalid, deduped, route.*)",
			},
			[]string{"name"},
		),

		MQTTConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "connected",
				Help:      "MQTT connection status (0=disconnected, 1=connected)",
			},
		),

		LastMessage: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_message_timestamp_seconds",
				Help:      "Unix time of the last inbound message",
			},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Per-message processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "outcome"},
		),
	}

	for _, c := range []prometheus.Collector{m.Events, m.MQTTConnected, m.LastMessage, m.ProcessingDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
