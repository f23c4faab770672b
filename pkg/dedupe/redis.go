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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/barnlink/ingress/pkg/models"
)

// Commander is the slice of the go-redis client used by RedisGuard.
type Commander interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ Guard = (*RedisGuard)(nil)

// RedisGuard keeps the ledger in Redis using SET NX PX. Expiry is native,
// so CleanupExpired has nothing to do.
type RedisGuard struct {
	client Commander
	prefix string
	now    func() time.Time
}

// NewRedisGuard wraps a go-redis client. Keys are prefix + tenant + ":" + event.
func NewRedisGuard(client Commander, prefix string) *RedisGuard {
	if prefix == "" {
		prefix = models.DefaultRedisKeyPrefix
	}

	return &RedisGuard{client: client, prefix: prefix, now: time.Now}
}

// NewRedisClient opens a go-redis client from configuration.
func NewRedisClient(cfg *models.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func (g *RedisGuard) key(tenantID, eventID string) string {
	return g.prefix + tenantID + ":" + eventID
}

func (g *RedisGuard) TryMarkSeen(ctx context.Context, mark Mark) (bool, error) {
	if err := mark.validate(); err != nil {
		return false, err
	}

	now := g.now()

	value, err := json.Marshal(models.DedupeRecord{
		TenantID:    mark.TenantID,
		EventID:     mark.EventID,
		FirstSeenAt: now,
		ExpiresAt:   now.Add(mark.TTL),
		Topic:       mark.Topic,
		PayloadHash: mark.PayloadHash,
	})
	if err != nil {
		return false, fmt.Errorf("encode dedupe record: %w", err)
	}

	ok, err := g.client.SetNX(ctx, g.key(mark.TenantID, mark.EventID), value, mark.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}

	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, tenantID, eventID string) error {
	if err := g.client.Del(ctx, g.key(tenantID, eventID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

func (*RedisGuard) CleanupExpired(context.Context) (int64, error) {
	return 0, nil
}
