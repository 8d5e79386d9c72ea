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

// Package notify reports probe outcomes to humans: a Slack incoming webhook
// and an HTML email for confirmed alarms.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gsit/alertas/internal/models"
)

const (
	colorFalsePositive = "#36a64f"
	colorConfirmed     = "#ff0000"
	footer             = "GSIT_Alertas"
)

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Fallback string       `json:"fallback"`
	Color    string       `json:"color"`
	Title    string       `json:"title"`
	Fields   []slackField `json:"fields"`
	Footer   string       `json:"footer"`
	Ts       int64        `json:"ts"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

// Slack posts reports to an incoming webhook.
type Slack struct {
	httpClient *http.Client
	webhookURL string
	breaker    *gobreaker.CircuitBreaker
	now        func() time.Time
}

// NewSlack creates a Slack notifier. An empty webhookURL disables it.
func NewSlack(httpClient *http.Client, webhookURL string) *Slack {
	return &Slack{
		httpClient: httpClient,
		webhookURL: webhookURL,
		now:        time.Now,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "slack",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (s *Slack) payload(r models.Report) slackPayload {
	ev := r.Event
	alertType := ev.AlertState.AlertType()

	color := colorConfirmed
	if r.Outcome == models.OutcomeFalsePositive {
		color = colorFalsePositive
	}

	att := slackAttachment{
		Fallback: fmt.Sprintf("Alerta %s (%s) - %s", ev.RuleName, alertType, r.Outcome),
		Color:    color,
		Title:    fmt.Sprintf("🚨 Alerta %s (%s)", ev.RuleName, alertType),
		Fields: []slackField{
			{Title: "ID", Value: ev.AlertID, Short: true},
			{Title: "Estado", Value: string(r.Outcome), Short: true},
		},
		Footer: footer,
		Ts:     s.now().Unix(),
	}
	if r.BuildURL != "" {
		att.Fields = append(att.Fields, slackField{
			Title: "Jenkins",
			Value: fmt.Sprintf("<%s|Ver ejecución>", r.BuildURL),
		})
	}
	return slackPayload{Attachments: []slackAttachment{att}}
}

// Notify posts the report. Without a webhook URL it logs and does nothing.
func (s *Slack) Notify(ctx context.Context, r models.Report) error {
	if s.webhookURL == "" {
		slog.Warn("slack webhook not configured, skipping notification", "alert_id", r.Event.AlertID)
		return nil
	}

	body, err := json.Marshal(s.payload(r))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("post slack webhook: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("slack webhook returned HTTP %d: %s", resp.StatusCode, string(msg))
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	slog.Info("slack notification sent", "alert_id", r.Event.AlertID, "status", r.Outcome)
	return nil
}
