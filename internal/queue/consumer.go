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

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultBlockTimeout bounds each BRPOP so shutdown is noticed promptly.
const DefaultBlockTimeout = 5 * time.Second

// popper is the subset of *redis.Client the consumer uses.
type popper interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Handler processes one job. A returned error moves the job to the failed
// list.
type Handler func(ctx context.Context, job *Job) error

// Consumer pops runner jobs from a Redis list.
type Consumer struct {
	rdb          popper
	queueName    string
	blockTimeout time.Duration
}

// NewConsumer creates a consumer for the specified queue.
func NewConsumer(rdb popper, queueName string) *Consumer {
	return &Consumer{
		rdb:          rdb,
		queueName:    queueName,
		blockTimeout: DefaultBlockTimeout,
	}
}

// FailedQueue is the list that receives jobs whose handler failed.
func (c *Consumer) FailedQueue() string {
	return c.queueName + ":failed"
}

// Next blocks for up to the block timeout and returns the next job, or nil
// when the queue stayed empty.
func (c *Consumer) Next(ctx context.Context) (*Job, error) {
	res, err := c.rdb.BRPop(ctx, c.blockTimeout, c.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis BRPOP: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("redis BRPOP: unexpected reply of %d elements", len(res))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Run consumes jobs until ctx is cancelled. Handler failures and malformed
// jobs are logged and never stop the loop.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	slog.Info("queue consumer started", "queue", c.queueName)

	for {
		if ctx.Err() != nil {
			slog.Info("queue consumer stopped", "queue", c.queueName)
			return nil
		}

		job, err := c.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Error("failed to read job", "queue", c.queueName, "error", err)
			sleepCtx(ctx, time.Second)
			continue
		}
		if job == nil {
			continue
		}

		if err := handle(ctx, job); err != nil {
			slog.Error("job failed",
				"task_id", job.ID,
				"alert_id", job.Event.AlertID,
				"action", job.Event.Action,
				"error", err,
			)
			c.fail(context.WithoutCancel(ctx), job)
		}
	}
}

func (c *Consumer) fail(ctx context.Context, job *Job) {
	job.Retries++
	body, err := json.Marshal(job)
	if err != nil {
		slog.Error("failed to marshal failed job", "task_id", job.ID, "error", err)
		return
	}
	if err := c.rdb.LPush(ctx, c.FailedQueue(), string(body)).Err(); err != nil {
		slog.Error("failed to park job", "task_id", job.ID, "queue", c.FailedQueue(), "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
