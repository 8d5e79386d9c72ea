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

// Package jenkins triggers the probe job for an alert event on a Jenkins
// server using the remote build API.
package jenkins

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gsit/alertas/internal/models"
)

// StatusError is returned when Jenkins answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jenkins returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client triggers builds of a single job.
type Client struct {
	httpClient *http.Client
	baseURL    string
	job        string
	user       string
	token      string
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a Jenkins client. baseURL has no trailing slash.
func NewClient(httpClient *http.Client, baseURL, job, user, token string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		job:        job,
		user:       user,
		token:      token,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "jenkins",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		}),
	}
}

// Dispatch starts the job with the event as build parameters. A job that is
// not parameterized is started with a plain build instead.
func (c *Client) Dispatch(ctx context.Context, event *models.AlertEvent) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.trigger(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("trigger job %s: %w", c.job, err)
	}
	return nil
}

func (c *Client) trigger(ctx context.Context, event *models.AlertEvent) error {
	params := url.Values{}
	for k, v := range event.Params() {
		params.Set(k, v)
	}

	endpoint := fmt.Sprintf("%s/job/%s/buildWithParameters", c.baseURL, url.PathEscape(c.job))
	status, body, location, err := c.post(ctx, endpoint, params)
	if err != nil {
		return err
	}

	if status == http.StatusBadRequest && strings.Contains(body, "is not parameterized") {
		slog.Warn("job is not parameterized, falling back to plain build", "job", c.job)
		endpoint = fmt.Sprintf("%s/job/%s/build", c.baseURL, url.PathEscape(c.job))
		status, body, location, err = c.post(ctx, endpoint, nil)
		if err != nil {
			return err
		}
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return &StatusError{StatusCode: status, Body: body}
	}

	slog.Info("jenkins job triggered",
		"job", c.job,
		"alert_id", event.AlertID,
		"action", event.Action,
		"queue_item", location,
	)
	return nil
}

// post sends form, when non-nil, as an application/x-www-form-urlencoded
// body. Build parameters never go in the URL.
func (c *Client) post(ctx context.Context, u string, form url.Values) (int, string, string, error) {
	var payload io.Reader
	if form != nil {
		payload = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, payload)
	if err != nil {
		return 0, "", "", fmt.Errorf("build request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.SetBasicAuth(c.user, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", "", fmt.Errorf("post %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, strings.TrimSpace(string(body)), resp.Header.Get("Location"), nil
}
