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

// Package envelope decodes and validates the JSON envelope that wraps every
// device message.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/barnlink/ingress/pkg/hashutil"
)

// SchemaVersion is the only envelope schema version accepted.
const SchemaVersion = "1.0"

var (
	ErrUndecodable              = errors.New("envelope is not decodable JSON")
	ErrNotAnObject              = errors.New("envelope must be a JSON object")
	ErrMissingField             = errors.New("missing required envelope field")
	ErrUnsupportedSchemaVersion = errors.New("unsupported schema_version")
	ErrMissingTimestamp         = errors.New("missing ts (and legacy timestamp)")
	ErrInvalidTimestamp         = errors.New("ts is not an ISO 8601 timestamp with a zone offset")
	ErrInvalidField             = errors.New("invalid envelope field")
)

// Envelope is the canonical decoded device message.
type Envelope struct {
	SchemaVersion string          `json:"schema_version"`
	EventID       string          `json:"event_id"`
	TraceID       string          `json:"trace_id"`
	TenantID      string          `json:"tenant_id"`
	DeviceID      string          `json:"device_id"`
	EventType     string          `json:"event_type"`
	TS            string          `json:"ts"`
	Timestamp     time.Time       `json:"-"`
	Payload       json.RawMessage `json:"payload"`
	ContentHash   string          `json:"content_hash,omitempty"`
	RetryCount    *int            `json:"retry_count,omitempty"`
	ProducedAt    string          `json:"produced_at,omitempty"`
}

// Result is the outcome of a successful Parse.
type Result struct {
	Envelope *Envelope
	// TraceGenerated is set when the message carried no trace_id.
	TraceGenerated bool
	// TSFromAlias is set when ts was read from the legacy timestamp field.
	TSFromAlias bool
}

// wireEnvelope mirrors the JSON on the wire. Pointers distinguish absent
// fields from empty ones.
type wireEnvelope struct {
	SchemaVersion *string         `json:"schema_version"`
	EventID       *string         `json:"event_id"`
	TraceID       *string         `json:"trace_id"`
	TenantID      *string         `json:"tenant_id"`
	DeviceID      *string         `json:"device_id"`
	EventType     *string         `json:"event_type"`
	TS            *string         `json:"ts"`
	LegacyTS      *string         `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	ContentHash   *string         `json:"content_hash"`
	RetryCount    *int            `json:"retry_count"`
	ProducedAt    *string         `json:"produced_at"`
}

// Parse decodes raw and validates it against the 1.0 envelope schema.
func Parse(raw []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUndecodable)
	}

	if trimmed[0] != '{' {
		return nil, ErrNotAnObject
	}

	var wire wireEnvelope
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}

	required := []struct {
		name  string
		value *string
	}{
		{"schema_version", wire.SchemaVersion},
		{"event_id", wire.EventID},
		{"tenant_id", wire.TenantID},
		{"device_id", wire.DeviceID},
		{"event_type", wire.EventType},
	}

	for _, field := range required {
		if field.value == nil || strings.TrimSpace(*field.value) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, field.name)
		}
	}

	if *wire.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: schema_version %q (expected %q)",
			ErrUnsupportedSchemaVersion, *wire.SchemaVersion, SchemaVersion)
	}

	res := &Result{}

	ts, fromAlias, err := resolveTimestamp(wire.TS, wire.LegacyTS)
	if err != nil {
		return nil, err
	}

	res.TSFromAlias = fromAlias

	parsedTS, ts, err := parseTimestamp(ts)
	if err != nil {
		return nil, err
	}

	traceID := ""
	if wire.TraceID != nil {
		traceID = strings.TrimSpace(*wire.TraceID)
	}

	if traceID == "" {
		traceID = uuid.NewString()
		res.TraceGenerated = true
	}

	if wire.RetryCount != nil && *wire.RetryCount < 0 {
		return nil, fmt.Errorf("%w: retry_count must not be negative", ErrInvalidField)
	}

	payload := wire.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	res.Envelope = &Envelope{
		SchemaVersion: *wire.SchemaVersion,
		EventID:       *wire.EventID,
		TraceID:       traceID,
		TenantID:      *wire.TenantID,
		DeviceID:      *wire.DeviceID,
		EventType:     *wire.EventType,
		TS:            ts,
		Timestamp:     parsedTS,
		Payload:       payload,
		ContentHash:   deref(wire.ContentHash),
		RetryCount:    wire.RetryCount,
		ProducedAt:    deref(wire.ProducedAt),
	}

	return res, nil
}

// Offsets without a colon ("+0000", "+00") are ISO 8601 but not RFC 3339.
// Such values are rewritten to RFC 3339 so downstream services only ever
// see one form.
var isoOffsetLayouts = []string{
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
}

func parseTimestamp(raw string) (time.Time, string, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, raw, nil
	}

	for _, layout := range isoOffsetLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, t.Format(time.RFC3339Nano), nil
		}
	}

	return time.Time{}, "", fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

func resolveTimestamp(primary, alias *string) (string, bool, error) {
	if primary != nil && strings.TrimSpace(*primary) != "" {
		return strings.TrimSpace(*primary), false, nil
	}

	if alias != nil && strings.TrimSpace(*alias) != "" {
		return strings.TrimSpace(*alias), true, nil
	}

	return "", false, ErrMissingTimestamp
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// PayloadHash returns the digest recorded in the dedupe and last-seen
// ledgers: the normalized content_hash when the device sent one, otherwise
// the SHA-256 of the raw payload.
func (e *Envelope) PayloadHash() string {
	if strings.TrimSpace(e.ContentHash) != "" {
		return hashutil.NormalizeContentHash(e.ContentHash)
	}

	return hashutil.PayloadSHA256(e.Payload)
}

// PayloadObject decodes the payload as a JSON object. Non-object payloads
// yield a nil map and no error.
func (e *Envelope) PayloadObject() (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(e.Payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrInvalidField, err)
	}

	return obj, nil
}
