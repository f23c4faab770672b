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

package ingest

import (
	"fmt"

	"github.com/barnlink/ingress/pkg/downstream"
	"github.com/barnlink/ingress/pkg/envelope"
	"github.com/barnlink/ingress/pkg/topic"
)

// InconsistencyError reports a field that differs between topic and envelope.
type InconsistencyError struct {
	Reason string
}

func (e *InconsistencyError) Error() string { return e.Reason }

func mismatch(field, topicValue, envValue string) error {
	return &InconsistencyError{
		Reason: fmt.Sprintf("%s mismatch: topic=%q envelope=%q", field, topicValue, envValue),
	}
}

// CheckConsistency compares the identifiers a topic carries with those in
// its envelope.
func CheckConsistency(t topic.Topic, env *envelope.Envelope) error {
	if t.Tenant() != env.TenantID {
		return mismatch("tenant_id", t.Tenant(), env.TenantID)
	}

	switch v := t.(type) {
	case *topic.Telemetry:
		if v.DeviceID != env.DeviceID {
			return mismatch("device_id", v.DeviceID, env.DeviceID)
		}

		if env.EventType != downstream.TelemetryReadingEvent {
			return &InconsistencyError{
				Reason: fmt.Sprintf("event_type %q is not valid on a telemetry topic", env.EventType),
			}
		}

		return checkMetric(v.Metric, env)
	case *topic.GenericEvent:
		if v.EventType != env.EventType {
			return mismatch("event_type", v.EventType, env.EventType)
		}

		if v.DeviceID != env.DeviceID {
			return mismatch("device_id", v.DeviceID, env.DeviceID)
		}
	case *topic.WeighVisionSession:
		if v.EventType != env.EventType {
			return mismatch("event_type", v.EventType, env.EventType)
		}
	case *topic.Status:
		if v.DeviceID != env.DeviceID {
			return mismatch("device_id", v.DeviceID, env.DeviceID)
		}
	}

	return nil
}

func checkMetric(metric string, env *envelope.Envelope) error {
	payload, err := env.PayloadObject()
	if err != nil {
		return &InconsistencyError{Reason: err.Error()}
	}

	raw, present := payload["metric"]
	if !present {
		return nil
	}

	if s, ok := raw.(string); !ok || s != metric {
		return mismatch("metric", metric, fmt.Sprint(raw))
	}

	return nil
}
