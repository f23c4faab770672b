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

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/barnlink/ingress/pkg/allowlist"
	"github.com/barnlink/ingress/pkg/dedupe"
	"github.com/barnlink/ingress/pkg/logger"
	"github.com/barnlink/ingress/pkg/models"
)

const (
	// An existing key is only overwritten once its record has expired, so a
	// single affected row means the mark was accepted.
	tryMarkSeenSQL = `
INSERT INTO ingress_dedupe (tenant_id, event_id, first_seen_at, expires_at, topic, payload_hash)
VALUES ($1, $2, now(), now() + make_interval(secs => $3::double precision), $4, NULLIF($5, ''))
ON CONFLICT (tenant_id, event_id) DO UPDATE
SET first_seen_at = EXCLUDED.first_seen_at,
    expires_at    = EXCLUDED.expires_at,
    topic         = EXCLUDED.topic,
    payload_hash  = EXCLUDED.payload_hash
WHERE ingress_dedupe.expires_at <= now()`

	cleanupExpiredSQL = `DELETE FROM ingress_dedupe WHERE expires_at <= now()`

	releaseMarkSQL = `DELETE FROM ingress_dedupe WHERE tenant_id = $1 AND event_id = $2`

	deviceEntrySQL = `
SELECT farm_id, barn_id, enabled, notes, updated_at
FROM ingress_device_allowlist
WHERE tenant_id = $1 AND device_id = $2`

	stationEntrySQL = `
SELECT farm_id, barn_id, enabled, notes, updated_at
FROM ingress_station_allowlist
WHERE tenant_id = $1 AND station_id = $2`

	recordLastSeenSQL = `
INSERT INTO ingress_device_last_seen (tenant_id, device_id, last_seen_at, last_topic, last_payload_hash, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (tenant_id, device_id) DO UPDATE
SET last_seen_at      = EXCLUDED.last_seen_at,
    last_topic        = EXCLUDED.last_topic,
    last_payload_hash = EXCLUDED.last_payload_hash,
    updated_at        = now()`

	lastSeenSQL = `
SELECT last_seen_at, last_topic, last_payload_hash
FROM ingress_device_last_seen
WHERE tenant_id = $1 AND device_id = $2`
)

var (
	_ dedupe.Guard    = (*Store)(nil)
	_ allowlist.Store = (*Store)(nil)
)

// Store implements the dedupe ledger, allowlist lookups and last-seen
// upserts on Postgres.
type Store struct {
	q      Querier
	logger logger.Logger
}

// NewStore wraps a pool (or any Querier).
func NewStore(q Querier, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Store{q: q, logger: log}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.q.Ping(ctx)
}

func buildTryMarkSeenArgs(mark *dedupe.Mark) []interface{} {
	return []interface{}{
		mark.TenantID,
		mark.EventID,
		mark.TTL.Seconds(),
		mark.Topic,
		mark.PayloadHash,
	}
}

// TryMarkSeen implements dedupe.Guard with one conditional upsert.
func (s *Store) TryMarkSeen(ctx context.Context, mark dedupe.Mark) (bool, error) {
	if mark.TenantID == "" || mark.EventID == "" || mark.TTL <= 0 {
		return false, dedupe.ErrInvalidMark
	}

	tag, err := s.q.Exec(ctx, tryMarkSeenSQL, buildTryMarkSeenArgs(&mark)...)
	if err != nil {
		return false, fmt.Errorf("%w: dedupe mark: %w", ErrFailedToInsert, err)
	}

	return tag.RowsAffected() == 1, nil
}

// Release implements dedupe.Guard.
func (s *Store) Release(ctx context.Context, tenantID, eventID string) error {
	if _, err := s.q.Exec(ctx, releaseMarkSQL, tenantID, eventID); err != nil {
		return fmt.Errorf("%w: dedupe release: %w", ErrFailedToDelete, err)
	}

	return nil
}

// CleanupExpired implements dedupe.Guard.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.q.Exec(ctx, cleanupExpiredSQL)
	if err != nil {
		return 0, fmt.Errorf("%w: dedupe cleanup: %w", ErrFailedToDelete, err)
	}

	return tag.RowsAffected(), nil
}

// DeviceEntry implements allowlist.Store.
func (s *Store) DeviceEntry(ctx context.Context, tenantID, deviceID string) (*models.AllowlistEntry, error) {
	return s.allowlistEntry(ctx, deviceEntrySQL, models.AllowlistDevice, tenantID, deviceID)
}

// StationEntry implements allowlist.Store.
func (s *Store) StationEntry(ctx context.Context, tenantID, stationID string) (*models.AllowlistEntry, error) {
	return s.allowlistEntry(ctx, stationEntrySQL, models.AllowlistStation, tenantID, stationID)
}

func (s *Store) allowlistEntry(
	ctx context.Context, query string, kind models.AllowlistKind, tenantID, id string,
) (*models.AllowlistEntry, error) {
	entry := &models.AllowlistEntry{Kind: kind, TenantID: tenantID, ID: id}

	err := s.q.QueryRow(ctx, query, tenantID, id).
		Scan(&entry.FarmID, &entry.BarnID, &entry.Enabled, &entry.Notes, &entry.UpdatedAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %s allowlist: %w", ErrFailedToQuery, kind, err)
	}

	// blank scope columns mean no restriction
	entry.FarmID = nonBlank(entry.FarmID)
	entry.BarnID = nonBlank(entry.BarnID)

	return entry, nil
}

func nonBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}

	return s
}

func buildLastSeenArgs(rec *models.LastSeenRecord) ([]interface{}, error) {
	if rec == nil {
		return nil, ErrLastSeenNil
	}

	if rec.TenantID == "" || rec.DeviceID == "" {
		return nil, ErrLastSeenKey
	}

	seenAt := rec.LastSeenAt
	if seenAt.IsZero() {
		seenAt = time.Now()
	}

	return []interface{}{
		rec.TenantID,
		rec.DeviceID,
		seenAt.UTC(),
		rec.LastTopic,
		rec.LastPayloadHash,
	}, nil
}

// RecordLastSeen upserts the device's heartbeat row.
func (s *Store) RecordLastSeen(ctx context.Context, rec *models.LastSeenRecord) error {
	args, err := buildLastSeenArgs(rec)
	if err != nil {
		return err
	}

	if _, err := s.q.Exec(ctx, recordLastSeenSQL, args...); err != nil {
		return fmt.Errorf("%w: last seen: %w", ErrFailedToInsert, err)
	}

	return nil
}

// LastSeen returns the stored heartbeat row, or nil when the device has
// never reported.
func (s *Store) LastSeen(ctx context.Context, tenantID, deviceID string) (*models.LastSeenRecord, error) {
	rec := &models.LastSeenRecord{TenantID: tenantID, DeviceID: deviceID}

	err := s.q.QueryRow(ctx, lastSeenSQL, tenantID, deviceID).
		Scan(&rec.LastSeenAt, &rec.LastTopic, &rec.LastPayloadHash)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: last seen: %w", ErrFailedToQuery, err)
	}

	return rec, nil
}
