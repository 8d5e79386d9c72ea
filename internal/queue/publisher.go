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

// Package queue carries alert events from the listener to the action runner
// over a Redis list. The listener LPUSHes a JSON job envelope; runner workers
// BRPOP it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gsit/alertas/internal/models"
)

// TaskRunAction is the task name of a probe run request.
const TaskRunAction = "runner.run_action"

// Job is the envelope pushed to Redis.
type Job struct {
	ID         string            `json:"id"`
	Task       string            `json:"task"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	Retries    int               `json:"retries"`
	Event      models.AlertEvent `json:"event"`
}

// pusher is the subset of *redis.Client the publisher uses.
type pusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Publisher sends alert events to Redis as runner jobs.
type Publisher struct {
	rdb       pusher
	queueName string
	now       func() time.Time
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb pusher, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		now:       time.Now,
	}
}

// Dispatch serialises an alert event into a job and publishes it.
func (p *Publisher) Dispatch(ctx context.Context, event *models.AlertEvent) error {
	job := Job{
		ID:         uuid.New().String(),
		Task:       TaskRunAction,
		EnqueuedAt: p.now().UTC(),
		Event:      *event,
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(body)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published alert job to queue",
		"task_id", job.ID,
		"alert_id", event.AlertID,
		"action", event.Action,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
