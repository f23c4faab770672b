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

// Package dedupe remembers (tenant_id, event_id) pairs for a TTL so that
// redelivered messages are processed once.
package dedupe

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidMark is returned for marks missing a key part or a positive TTL.
var ErrInvalidMark = errors.New("dedupe: tenant_id, event_id and a positive ttl are required")

// Mark describes one occurrence of an event.
type Mark struct {
	TenantID    string
	EventID     string
	Topic       string
	PayloadHash string
	TTL         time.Duration
}

func (m *Mark) validate() error {
	if m.TenantID == "" || m.EventID == "" || m.TTL <= 0 {
		return ErrInvalidMark
	}

	return nil
}

//go:generate mockgen -destination=mock_dedupe.go -package=dedupe github.com/barnlink/ingress/pkg/dedupe Guard

// Guard is the dedupe ledger.
//
// TryMarkSeen records the mark and reports true when no live record existed
// for its key. The check and the write happen in one atomic operation, so of
// any number of concurrent calls for the same key exactly one is accepted.
// An expired record is reused in place.
//
// Release forgets the record for a key, live or not. It is used when a
// stage after the mark fails on storage and the message must be accepted
// again on redelivery. Releasing an unknown key is not an error.
//
// CleanupExpired removes expired records and returns how many went away.
// Correctness never depends on it running.
type Guard interface {
	TryMarkSeen(ctx context.Context, mark Mark) (bool, error)
	Release(ctx context.Context, tenantID, eventID string) error
	CleanupExpired(ctx context.Context) (int64, error)
}
