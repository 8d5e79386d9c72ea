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

// Package poller runs the background loop that periodically reads unseen
// alert emails, classifies them and dispatches the resulting events.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gsit/alertas/internal/mailbox"
	"github.com/gsit/alertas/internal/mimedecode"
	"github.com/gsit/alertas/internal/models"
	"github.com/gsit/alertas/internal/pipeline"
)

// Dispatcher triggers the external action for an alert event.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.AlertEvent) error
}

// Deduper suppresses repeated triggers for one alert occurrence.
type Deduper interface {
	IsNew(ctx context.Context, event *models.AlertEvent) (bool, error)
	Forget(ctx context.Context, event *models.AlertEvent) error
}

// Outcome is what happened to one message.
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeFailed     Outcome = "failed"
)

// Report describes the handling of one message.
type Report struct {
	UID     uint32
	Outcome Outcome
	Result  pipeline.Result
	Err     error
	Seen    bool
}

// Stats summarises one poll.
type Stats struct {
	Fetched    int
	Emitted    int
	Ignored    int
	Failed     int
	Duplicates int
}

// Option customises a Poller.
type Option func(*Poller)

// WithDedup enables duplicate suppression.
func WithDedup(d Deduper) Option {
	return func(p *Poller) { p.dedup = d }
}

// WithObserver registers a callback invoked after each message.
func WithObserver(fn func(Report)) Option {
	return func(p *Poller) { p.observe = fn }
}

// Poller periodically drains the mailbox.
type Poller struct {
	source     mailbox.Source
	classifier *pipeline.Classifier
	dispatcher Dispatcher
	interval   time.Duration
	dedup      Deduper
	observe    func(Report)
	trigger    chan struct{}
}

// NewPoller creates a poller that checks for unseen mail at the given interval.
func NewPoller(source mailbox.Source, classifier *pipeline.Classifier, dispatcher Dispatcher, interval time.Duration, opts ...Option) *Poller {
	p := &Poller{
		source:     source,
		classifier: classifier,
		dispatcher: dispatcher,
		interval:   interval,
		trigger:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("mailbox poller starting", "interval", p.interval)

	// Do an initial poll immediately
	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("mailbox poller stopping")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		case <-p.trigger:
			p.PollOnce(ctx)
			ticker.Reset(p.interval)
		}
	}
}

// Trigger requests an immediate poll from Run. Requests made while one is
// already pending are coalesced. It reports whether a new request was queued.
func (p *Poller) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// PollOnce fetches unseen messages and handles each in mailbox order. A
// failure on one message never stops the others.
func (p *Poller) PollOnce(ctx context.Context) Stats {
	var stats Stats

	envs, err := p.source.FetchUnseen(ctx)
	if err != nil {
		slog.Error("failed to fetch unseen messages", "error", err)
		return stats
	}
	if len(envs) == 0 {
		slog.Debug("no unseen messages")
		return stats
	}

	stats.Fetched = len(envs)
	for _, env := range envs {
		if ctx.Err() != nil {
			break
		}

		rep := p.handle(ctx, env)
		switch rep.Outcome {
		case OutcomeDispatched:
			stats.Emitted++
		case OutcomeDuplicate:
			stats.Duplicates++
		case OutcomeIgnored:
			stats.Ignored++
		default:
			stats.Failed++
		}

		if p.observe != nil {
			p.observe(rep)
		}
	}

	slog.Info("poll complete",
		"fetched", stats.Fetched,
		"emitted", stats.Emitted,
		"ignored", stats.Ignored,
		"failed", stats.Failed,
		"duplicates", stats.Duplicates,
	)
	return stats
}

// handle processes one message and applies the read-marking policy.
func (p *Poller) handle(ctx context.Context, env mailbox.Envelope) (rep Report) {
	rep = Report{UID: env.UID}

	defer func() {
		if r := recover(); r != nil {
			rep.Outcome = OutcomeFailed
			rep.Err = fmt.Errorf("panic: %v", r)
			rep.Seen = false
			slog.Error("panic while processing message", "uid", env.UID, "panic", r)
		}
	}()

	msg, err := mimedecode.Parse(env.Raw)
	if err != nil {
		// An unparseable header block will not parse on re-delivery either.
		rep.Outcome = OutcomeFailed
		rep.Err = err
		slog.Error("failed to parse message", "uid", env.UID, "error", err)
		rep.Seen = p.markSeen(ctx, env.UID)
		return rep
	}
	msg.UID = env.UID

	res := p.classifier.Classify(msg)
	rep.Result = res

	if !res.Emitted() {
		rep.Err = res.Err
		rep.Outcome = OutcomeFailed
		if res.Reason == pipeline.ReasonNoRuleMatched {
			rep.Outcome = OutcomeIgnored
		}
		if res.ShouldMarkSeen(nil) {
			rep.Seen = p.markSeen(ctx, env.UID)
		}
		return rep
	}

	event := res.Event
	if p.dedup != nil {
		isNew, err := p.dedup.IsNew(ctx, event)
		if err != nil {
			slog.Warn("dedup check failed, dispatching anyway",
				"alert_id", event.AlertID,
				"error", err,
			)
			isNew = true
		}
		if !isNew {
			slog.Info("duplicate alert suppressed",
				"uid", env.UID,
				"alert_id", event.AlertID,
				"alert_state", event.AlertState,
			)
			rep.Outcome = OutcomeDuplicate
			rep.Seen = p.markSeen(ctx, env.UID)
			return rep
		}
	}

	dispatchErr := p.dispatcher.Dispatch(ctx, event)
	if dispatchErr != nil {
		slog.Error("failed to dispatch alert",
			"uid", env.UID,
			"alert_id", event.AlertID,
			"action", event.Action,
			"error", dispatchErr,
		)
		rep.Outcome = OutcomeFailed
		rep.Err = dispatchErr
		if p.dedup != nil {
			if err := p.dedup.Forget(ctx, event); err != nil {
				slog.Warn("failed to clear dedup mark", "alert_id", event.AlertID, "error", err)
			}
		}
	} else {
		rep.Outcome = OutcomeDispatched
	}

	if res.ShouldMarkSeen(dispatchErr) {
		rep.Seen = p.markSeen(ctx, env.UID)
	}
	return rep
}

func (p *Poller) markSeen(ctx context.Context, uid uint32) bool {
	if err := p.source.MarkSeen(ctx, uid); err != nil {
		slog.Error("failed to mark message seen", "uid", uid, "error", err)
		return false
	}
	return true
}
