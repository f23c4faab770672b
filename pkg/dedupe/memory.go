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

package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/barnlink/ingress/pkg/models"
)

type memKey struct {
	tenant string
	event  string
}

var _ Guard = (*MemoryGuard)(nil)

// MemoryGuard is an in-process Guard for tests and single-node development.
type MemoryGuard struct {
	mu      sync.Mutex
	records map[memKey]models.DedupeRecord
	now     func() time.Time
}

// NewMemoryGuard returns an empty MemoryGuard. A nil clock uses time.Now.
func NewMemoryGuard(now func() time.Time) *MemoryGuard {
	if now == nil {
		now = time.Now
	}

	return &MemoryGuard{
		records: make(map[memKey]models.DedupeRecord),
		now:     now,
	}
}

func (g *MemoryGuard) TryMarkSeen(_ context.Context, mark Mark) (bool, error) {
	if err := mark.validate(); err != nil {
		return false, err
	}

	key := memKey{tenant: mark.TenantID, event: mark.EventID}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if rec, ok := g.records[key]; ok && rec.Live(now) {
		return false, nil
	}

	g.records[key] = models.DedupeRecord{
		TenantID:    mark.TenantID,
		EventID:     mark.EventID,
		FirstSeenAt: now,
		ExpiresAt:   now.Add(mark.TTL),
		Topic:       mark.Topic,
		PayloadHash: mark.PayloadHash,
	}

	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, tenantID, eventID string) error {
	g.mu.Lock()
	delete(g.records, memKey{tenant: tenantID, event: eventID})
	g.mu.Unlock()

	return nil
}

func (g *MemoryGuard) CleanupExpired(context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	var removed int64

	for key, rec := range g.records {
		if !rec.Live(now) {
			delete(g.records, key)
			removed++
		}
	}

	return removed, nil
}

// Len reports the number of stored records, live or not.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.records)
}
