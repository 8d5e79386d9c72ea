// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dedup suppresses repeated triggers for the same alert occurrence
// using Redis SETNX with a TTL. A message that is re-delivered because it
// was left unread must not start a second probe run.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gsit/alertas/internal/models"
)

const (
	// DefaultTTL is how long we remember a triggered alert.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "alert:"
)

// redisClient is the subset of *redis.Client the filter uses.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Filter tracks which alert occurrences have already been dispatched.
type Filter struct {
	rdb redisClient
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis. A non-positive ttl
// selects DefaultTTL.
func NewFilter(rdb redisClient, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		rdb: rdb,
		ttl: ttl,
	}
}

// Key identifies one alert occurrence: the same id can be seen once as
// ACTIVE and once as RESOLVED.
func Key(ev *models.AlertEvent) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, ev.AlertID, ev.AlertState)
}

// IsNew returns true if the event has NOT been seen before.
// If true, the event is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, ev *models.AlertEvent) (bool, error) {
	set, err := f.rdb.SetNX(ctx, Key(ev), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Forget removes the mark so a later re-delivery is dispatched again. Used
// when the dispatch that followed IsNew failed.
func (f *Filter) Forget(ctx context.Context, ev *models.AlertEvent) error {
	if err := f.rdb.Del(ctx, Key(ev)).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
