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
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gsit/alertas/internal/models"
)

// mockList is an in-memory Redis list store.
type mockList struct {
	mu    sync.Mutex
	lists map[string][]string
	err   error
}

func newMockList() *mockList {
	return &mockList{lists: make(map[string][]string)}
}

func (m *mockList) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	for _, v := range values {
		m.lists[key] = append([]string{v.(string)}, m.lists[key]...)
	}
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *mockList) BRPop(_ context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		l := m.lists[k]
		if len(l) == 0 {
			continue
		}
		v := l[len(l)-1]
		m.lists[k] = l[:len(l)-1]
		return redis.NewStringSliceResult([]string{k, v}, nil)
	}
	return redis.NewStringSliceResult(nil, redis.Nil)
}

func (m *mockList) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.err)
}

func sampleEvent(id string) *models.AlertEvent {
	return &models.AlertEvent{
		RuleName:   "Alerta Acces Frontal",
		Action:     "acces_frontal_emd",
		AlertID:    id,
		AlertState: models.StateActive,
		Sender:     "rpinheiro@viewnext.com",
		Subject:    "[GSIT] Alerta Activa",
		Body:       "ACCES_FRONTAL_EMD",
	}
}

func TestPublisher_Dispatch(t *testing.T) {
	rdb := newMockList()
	p := NewPublisher(rdb, "alert_jobs")
	p.now = func() time.Time { return time.Date(2025, 1, 1, 9, 0, 5, 0, time.UTC) }

	if err := p.Dispatch(context.Background(), sampleEvent("20250101_090000")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	items := rdb.lists["alert_jobs"]
	if len(items) != 1 {
		t.Fatalf("queue length = %d, want 1", len(items))
	}
	var job Job
	if err := json.Unmarshal([]byte(items[0]), &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.ID == "" || job.Task != TaskRunAction {
		t.Errorf("job header = %+v", job)
	}
	if job.Event.AlertID != "20250101_090000" || job.Event.Action != "acces_frontal_emd" {
		t.Errorf("job event = %+v", job.Event)
	}
	if !job.EnqueuedAt.Equal(time.Date(2025, 1, 1, 9, 0, 5, 0, time.UTC)) {
		t.Errorf("enqueued_at = %v", job.EnqueuedAt)
	}
}

func TestPublisher_DispatchError(t *testing.T) {
	rdb := newMockList()
	rdb.err = errors.New("READONLY")
	if err := NewPublisher(rdb, "q").Dispatch(context.Background(), sampleEvent("x")); err == nil {
		t.Error("expected LPUSH error")
	}
}

func TestConsumer_NextEmpty(t *testing.T) {
	job, err := NewConsumer(newMockList(), "q").Next(context.Background())
	if err != nil || job != nil {
		t.Errorf("Next on empty queue = %v, %v; want nil, nil", job, err)
	}
}

func TestConsumer_NextMalformed(t *testing.T) {
	rdb := newMockList()
	rdb.lists["q"] = []string{"{not json"}
	if _, err := NewConsumer(rdb, "q").Next(context.Background()); err == nil {
		t.Error("expected unmarshal error")
	}
}

// TestConsumer_Run verifies jobs are handled in FIFO order and a failing job
// is parked on the failed list.
func TestConsumer_Run(t *testing.T) {
	rdb := newMockList()
	p := NewPublisher(rdb, "q")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"first", "second"} {
		if err := p.Dispatch(ctx, sampleEvent(id)); err != nil {
			t.Fatal(err)
		}
	}

	var seen []string
	c := NewConsumer(rdb, "q")
	err := c.Run(ctx, func(_ context.Context, job *Job) error {
		seen = append(seen, job.Event.AlertID)
		if len(seen) == 2 {
			cancel()
			return errors.New("probe crashed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seen) != 2 || seen[0] != "first" || seen[1] != "second" {
		t.Errorf("handled = %v, want [first second]", seen)
	}

	failed := rdb.lists[c.FailedQueue()]
	if len(failed) != 1 {
		t.Fatalf("failed list = %d, want 1", len(failed))
	}
	var job Job
	_ = json.Unmarshal([]byte(failed[0]), &job)
	if job.Event.AlertID != "second" || job.Retries != 1 {
		t.Errorf("parked job = %+v", job)
	}
}
