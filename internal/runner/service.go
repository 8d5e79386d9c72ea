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

package runner

import (
	"context"
	"log/slog"

	"github.com/gsit/alertas/internal/models"
)

// Notifier publishes a probe report.
type Notifier interface {
	Notify(ctx context.Context, report models.Report) error
}

// Recorder keeps the alert ledger in step with reports.
type Recorder interface {
	Record(ctx context.Context, report models.Report) error
}

// Service runs a probe and reports its outcome.
type Service struct {
	runner   *Runner
	notifier Notifier
	recorder Recorder
	buildURL string
}

// NewService wires the report stage. notifier and recorder may be nil.
// buildURL links the report to the CI run, e.g. Jenkins' BUILD_URL.
func NewService(r *Runner, notifier Notifier, recorder Recorder, buildURL string) *Service {
	return &Service{runner: r, notifier: notifier, recorder: recorder, buildURL: buildURL}
}

// Handle runs the probe for event and reports the outcome. Report failures
// are logged; only a probe that cannot be started is an error.
func (s *Service) Handle(ctx context.Context, event *models.AlertEvent) (models.Outcome, error) {
	res, err := s.runner.Run(ctx, event)
	if err != nil {
		return models.OutcomeAlarmConfirmed, err
	}

	report := models.Report{Event: *event, Outcome: res.Outcome, BuildURL: s.buildURL}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, report); err != nil {
			slog.Error("failed to notify", "alert_id", event.AlertID, "error", err)
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, report); err != nil {
			slog.Error("failed to update ledger", "alert_id", event.AlertID, "error", err)
		}
	}

	return res.Outcome, nil
}
