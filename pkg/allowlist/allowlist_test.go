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

package allowlist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/barnlink/ingress/pkg/models"
	"github.com/barnlink/ingress/pkg/topic"
)

func strPtr(s string) *string { return &s }

func TestCheck_DeviceRules(t *testing.T) {
	telemetry := topic.Parse("iot/telemetry/t1/f1/b1/d1/temperature")
	require.NotNil(t, telemetry)

	tests := []struct {
		name    string
		entry   *models.AllowlistEntry
		allowed bool
		reason  string
	}{
		{
			name:   "missing entry",
			reason: "device d1 not in allowlist for tenant t1",
		},
		{
			name:   "disabled",
			entry:  &models.AllowlistEntry{Enabled: false},
			reason: "device d1 is disabled",
		},
		{
			name:    "unscoped",
			entry:   &models.AllowlistEntry{Enabled: true},
			allowed: true,
		},
		{
			name:    "matching farm and barn",
			entry:   &models.AllowlistEntry{Enabled: true, FarmID: strPtr("f1"), BarnID: strPtr("b1")},
			allowed: true,
		},
		{
			name:   "farm mismatch",
			entry:  &models.AllowlistEntry{Enabled: true, FarmID: strPtr("f2")},
			reason: "device d1 not allowed on farm f1",
		},
		{
			name:   "barn mismatch",
			entry:  &models.AllowlistEntry{Enabled: true, FarmID: strPtr("f1"), BarnID: strPtr("b9")},
			reason: "device d1 not allowed on barn b1",
		},
		{
			name:    "barn-only scope",
			entry:   &models.AllowlistEntry{Enabled: true, BarnID: strPtr("b1")},
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := NewMockStore(ctrl)
			store.EXPECT().DeviceEntry(gomock.Any(), "t1", "d1").Return(tt.entry, nil)

			decision, err := NewGate(store).Check(context.Background(), telemetry)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, decision.Allowed)
			assert.Equal(t, tt.reason, decision.Reason)
		})
	}
}

func TestCheck_WeighVisionUsesStation(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	store.EXPECT().StationEntry(gomock.Any(), "t1", "st-1").
		Return(&models.AllowlistEntry{Kind: models.AllowlistStation, Enabled: true}, nil)

	wv := topic.Parse("iot/weighvision/t1/f1/b1/st-1/session/s-1/weighvision.session.created")
	require.NotNil(t, wv)

	decision, err := NewGate(store).Check(context.Background(), wv)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCheck_StatusAndEventUseDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	store.EXPECT().DeviceEntry(gomock.Any(), "t1", "d1").
		Return(&models.AllowlistEntry{Enabled: true}, nil).Times(2)

	gate := NewGate(store)

	for _, raw := range []string{"iot/status/t1/f1/b1/d1", "iot/event/t1/f1/b1/d1/door.opened"} {
		decision, err := gate.Check(context.Background(), topic.Parse(raw))
		require.NoError(t, err)
		assert.True(t, decision.Allowed, raw)
	}
}

func TestCheck_StoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)

	boom := errors.New("connection refused")
	store.EXPECT().DeviceEntry(gomock.Any(), "t1", "d1").Return(nil, boom)

	_, err := NewGate(store).Check(context.Background(), topic.Parse("iot/status/t1/f1/b1/d1"))
	require.ErrorIs(t, err, boom)
}
