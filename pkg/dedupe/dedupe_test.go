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
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barnlink/ingress/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func mark(eventID string) Mark {
	return Mark{TenantID: "t1", EventID: eventID, Topic: "iot/status/t1/f/b/d", TTL: time.Hour}
}

func TestMemoryGuard_DuplicateWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	guard := NewMemoryGuard(clock.Now)
	ctx := context.Background()

	ok, err := guard.TryMarkSeen(ctx, mark("e1"))
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(59 * time.Minute)

	ok, err = guard.TryMarkSeen(ctx, mark("e1"))
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(time.Minute)

	ok, err = guard.TryMarkSeen(ctx, mark("e1"))
	require.NoError(t, err)
	assert.True(t, ok, "expired record is reusable without cleanup")
}

func TestMemoryGuard_KeyIncludesTenant(t *testing.T) {
	guard := NewMemoryGuard(nil)
	ctx := context.Background()

	m := mark("e1")
	ok, err := guard.TryMarkSeen(ctx, m)
	require.NoError(t, err)
	require.True(t, ok)

	m.TenantID = "t2"
	ok, err = guard.TryMarkSeen(ctx, m)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuard_ConcurrentSingleWinner(t *testing.T) {
	guard := NewMemoryGuard(nil)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)

	for i := 0; i < 64; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if ok, err := guard.TryMarkSeen(context.Background(), mark("same")); err == nil && ok {
				accepted.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
}

func TestMemoryGuard_CleanupExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	guard := NewMemoryGuard(clock.Now)
	ctx := context.Background()

	short := mark("short")
	short.TTL = time.Minute

	_, _ = guard.TryMarkSeen(ctx, short)
	_, _ = guard.TryMarkSeen(ctx, mark("long"))

	clock.Advance(2 * time.Minute)

	removed, err := guard.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 1, guard.Len())
}

func TestMemoryGuard_InvalidMark(t *testing.T) {
	guard := NewMemoryGuard(nil)

	for _, m := range []Mark{
		{EventID: "e", TTL: time.Hour},
		{TenantID: "t", TTL: time.Hour},
		{TenantID: "t", EventID: "e"},
	} {
		_, err := guard.TryMarkSeen(context.Background(), m)
		require.ErrorIs(t, err, ErrInvalidMark)
	}
}

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	vals map[string]interface{}
	err  error
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, exp time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}

	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}

	f.keys[key] = exp
	f.vals[key] = value

	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}

	var n int64

	for _, key := range keys {
		if _, ok := f.keys[key]; ok {
			delete(f.keys, key)
			delete(f.vals, key)
			n++
		}
	}

	return redis.NewIntResult(n, nil)
}

func TestRedisGuard_SetNX(t *testing.T) {
	client := &fakeRedis{keys: map[string]time.Duration{}, vals: map[string]interface{}{}}
	guard := NewRedisGuard(client, "")
	ctx := context.Background()

	m := mark("e1")
	m.PayloadHash = "abc"

	ok, err := guard.TryMarkSeen(ctx, m)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.TryMarkSeen(ctx, m)
	require.NoError(t, err)
	assert.False(t, ok)

	key := models.DefaultRedisKeyPrefix + "t1:e1"
	require.Contains(t, client.keys, key)
	assert.Equal(t, time.Hour, client.keys[key])

	var rec models.DedupeRecord
	require.NoError(t, json.Unmarshal(client.vals[key].([]byte), &rec))
	assert.Equal(t, "abc", rec.PayloadHash)
	assert.Equal(t, "iot/status/t1/f/b/d", rec.Topic)

	removed, err := guard.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRedisGuard_Error(t *testing.T) {
	boom := errors.New("READONLY")
	guard := NewRedisGuard(&fakeRedis{err: boom}, "x:")

	_, err := guard.TryMarkSeen(context.Background(), mark("e1"))
	require.ErrorIs(t, err, boom)

	require.ErrorIs(t, guard.Release(context.Background(), "t1", "e1"), boom)
}

func TestRedisGuard_ReleaseAllowsRemark(t *testing.T) {
	client := &fakeRedis{keys: map[string]time.Duration{}, vals: map[string]interface{}{}}
	guard := NewRedisGuard(client, "x:")
	ctx := context.Background()

	ok, err := guard.TryMarkSeen(ctx, mark("e1"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, guard.Release(ctx, "t1", "e1"))
	assert.NotContains(t, client.keys, "x:t1:e1")

	ok, err = guard.TryMarkSeen(ctx, mark("e1"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuard_ReleaseAllowsRemark(t *testing.T) {
	guard := NewMemoryGuard(nil)
	ctx := context.Background()

	ok, err := guard.TryMarkSeen(ctx, mark("e1"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, guard.Release(ctx, "t1", "e1"))
	require.NoError(t, guard.Release(ctx, "t1", "never-seen"))
	assert.Zero(t, guard.Len())

	ok, err = guard.TryMarkSeen(ctx, mark("e1"))
	require.NoError(t, err)
	assert.True(t, ok)
}
