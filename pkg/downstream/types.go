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

// TelemetryReadingsRequest is the body of POST /api/v1/telemetry/readings.
type TelemetryReadingsRequest struct {
	Events []TelemetryEvent `json:"events"`
}

type TelemetryEvent struct {
	SchemaVersion string           `json:"schema_version"`
	EventID       string           `json:"event_id"`
	TraceID       string           `json:"trace_id"`
	TenantID      string           `json:"tenant_id"`
	DeviceID      string           `json:"device_id"`
	EventType     string           `json:"event_type"`
	TS            string           `json:"ts"`
	FarmID        string           `json:"farm_id"`
	BarnID        string           `json:"barn_id"`
	Payload       TelemetryReading `json:"payload"`
}

type TelemetryReading struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
}

// SessionCreateRequest is the body of POST /api/v1/weighvision/sessions.
type SessionCreateRequest struct {
	TenantID  string  `json:"tenantId"`
	FarmID    string  `json:"farmId"`
	BarnID    string  `json:"barnId"`
	DeviceID  string  `json:"deviceId"`
	StationID string  `json:"stationId"`
	SessionID string  `json:"sessionId"`
	BatchID   *string `json:"batchId,omitempty"`
	StartAt   string  `json:"startAt"`
	EventID   string  `json:"eventId"`
}

type BindWeightRequest struct {
	TenantID   string  `json:"tenantId"`
	EventID    string  `json:"eventId"`
	WeightKg   float64 `json:"weightKg"`
	OccurredAt string  `json:"occurredAt"`
}

type BindMediaRequest struct {
	TenantID      string `json:"tenantId"`
	EventID       string `json:"eventId"`
	MediaObjectID string `json:"mediaObjectId"`
	OccurredAt    string `json:"occurredAt"`
}

type FinalizeRequest struct {
	TenantID   string `json:"tenantId"`
	EventID    string `json:"eventId"`
	OccurredAt string `json:"occurredAt"`
}
