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

package models

import "time"

// DedupeRecord is one row of the dedupe ledger, keyed by (TenantID, EventID).
// A record is live while now < ExpiresAt.
type DedupeRecord struct {
	TenantID    string    `json:"tenant_id"`
	EventID     string    `json:"event_id"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Topic       string    `json:"topic"`
	PayloadHash string    `json:"payload_hash,omitempty"`
}

// Live reports whether the record still marks its key as seen at now.
func (r *DedupeRecord) Live(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// AllowlistKind distinguishes device entries from station entries.
type AllowlistKind string

const (
	AllowlistDevice  AllowlistKind = "device"
	AllowlistStation AllowlistKind = "station"
)

// AllowlistEntry permits a device or weigh station to publish for a tenant.
// Nil FarmID/BarnID mean no restriction at that level.
type AllowlistEntry struct {
	Kind      AllowlistKind `json:"kind"`
	TenantID  string        `json:"tenant_id"`
	ID        string        `json:"id"`
	FarmID    *string       `json:"farm_id,omitempty"`
	BarnID    *string       `json:"barn_id,omitempty"`
	Enabled   bool          `json:"enabled"`
	Notes     *string       `json:"notes,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// LastSeenRecord is the latest heartbeat state of a device.
type LastSeenRecord struct {
	TenantID        string    `json:"tenant_id"`
	DeviceID        string    `json:"device_id"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	LastTopic       string    `json:"last_topic"`
	LastPayloadHash string    `json:"last_payload_hash"`
}
