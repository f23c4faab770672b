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

// Package allowlist decides whether a device or weigh station may publish
// on a topic.
package allowlist

import (
	"context"
	"fmt"

	"github.com/barnlink/ingress/pkg/models"
	"github.com/barnlink/ingress/pkg/topic"
)

//go:generate mockgen -destination=mock_allowlist.go -package=allowlist github.com/barnlink/ingress/pkg/allowlist Store

// Store reads allowlist entries. Both lookups return (nil, nil) when no
// entry exists.
type Store interface {
	DeviceEntry(ctx context.Context, tenantID, deviceID string) (*models.AllowlistEntry, error)
	StationEntry(ctx context.Context, tenantID, stationID string) (*models.AllowlistEntry, error)
}

// Decision is the outcome of a Check. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate checks topics against the allowlist. It never writes.
type Gate struct {
	store Store
}

// NewGate returns a Gate reading from store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Check looks up the station entry for weighvision topics and the device
// entry for every other kind. Store errors are returned as-is and carry no
// decision.
func (g *Gate) Check(ctx context.Context, t topic.Topic) (Decision, error) {
	var (
		entry   *models.AllowlistEntry
		subject string
		err     error
	)

	switch v := t.(type) {
	case *topic.WeighVisionSession:
		subject = "station " + v.StationID
		entry, err = g.store.StationEntry(ctx, v.TenantID, v.StationID)
	case *topic.Telemetry:
		subject = "device " + v.DeviceID
		entry, err = g.store.DeviceEntry(ctx, v.TenantID, v.DeviceID)
	case *topic.GenericEvent:
		subject = "device " + v.DeviceID
		entry, err = g.store.DeviceEntry(ctx, v.TenantID, v.DeviceID)
	case *topic.Status:
		subject = "device " + v.DeviceID
		entry, err = g.store.DeviceEntry(ctx, v.TenantID, v.DeviceID)
	default:
		return Decision{}, fmt.Errorf("allowlist: unsupported topic type %T", t)
	}

	if err != nil {
		return Decision{}, fmt.Errorf("allowlist lookup for %s: %w", subject, err)
	}

	return Evaluate(entry, subject, t), nil
}

// Evaluate applies the allow rules to an entry that may be nil.
func Evaluate(entry *models.AllowlistEntry, subject string, t topic.Topic) Decision {
	switch {
	case entry == nil:
		return deny("%s not in allowlist for tenant %s", subject, t.Tenant())
	case !entry.Enabled:
		return deny("%s is disabled", subject)
	case entry.FarmID != nil && *entry.FarmID != t.Farm():
		return deny("%s not allowed on farm %s", subject, t.Farm())
	case entry.BarnID != nil && *entry.BarnID != t.Barn():
		return deny("%s not allowed on barn %s", subject, t.Barn())
	}

	return Decision{Allowed: true}
}

func deny(format string, args ...interface{}) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}
