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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gsit/alertas/internal/models"
)

const (
	// StatusFile is written by a probe with its verdict.
	StatusFile = "status.txt"
	// EmailDataFile carries the triggering email to the probe.
	EmailDataFile = "email_data.json"

	outputTail = 2048
)

// Options configures how probes are executed.
type Options struct {
	Workspace   string
	Interpreter string
	Profile     string // passed as the probe's first argument
	Timeout     time.Duration
}

// Result describes one probe run.
type Result struct {
	Outcome  models.Outcome
	Status   string // raw status artifact, "" when missing
	ExitCode int
	Duration time.Duration
}

// Runner executes registered probes.
type Runner struct {
	opts     Options
	registry *Registry
}

// New creates a runner.
func New(opts Options, registry *Registry) *Runner {
	if opts.Workspace == "" {
		opts.Workspace = "."
	}
	if opts.Profile == "" {
		opts.Profile = filepath.Join(opts.Workspace, "profiles", "selenium_cert")
	}
	return &Runner{opts: opts, registry: registry}
}

// emailData is the probe-facing view of the triggering email.
type emailData struct {
	AlertName string `json:"alert_name"`
	AlertID   string `json:"alert_id"`
	AlertType string `json:"alert_type"`
	FromEmail string `json:"from_email"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Run executes the probe registered for the event's action. It returns an
// error only when the probe cannot be located; a probe that crashes, times
// out or leaves no status counts as a confirmed alarm.
func (r *Runner) Run(ctx context.Context, event *models.AlertEvent) (Result, error) {
	rel, err := r.registry.Resolve(event.Action)
	if err != nil {
		return Result{}, err
	}
	script := rel
	if !filepath.IsAbs(script) {
		script = filepath.Join(r.opts.Workspace, rel)
	}
	if _, err := os.Stat(script); err != nil {
		return Result{}, fmt.Errorf("probe script %s: %w", script, err)
	}

	statusPath := filepath.Join(r.opts.Workspace, StatusFile)
	if err := os.Remove(statusPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Result{}, fmt.Errorf("remove stale status: %w", err)
	}
	if err := r.writeEmailData(event); err != nil {
		slog.Warn("could not write email data for probe", "error", err)
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	var args []string
	name := script
	if r.opts.Interpreter != "" {
		name = r.opts.Interpreter
		args = append(args, script)
	}
	args = append(args, r.opts.Profile)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.opts.Workspace
	cmd.Env = append(os.Environ(), "WORKSPACE="+r.opts.Workspace)
	for k, v := range event.Params() {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.WaitDelay = 5 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	slog.Info("running probe",
		"action", event.Action,
		"alert_id", event.AlertID,
		"script", script,
	)

	start := time.Now()
	runErr := cmd.Run()
	res := Result{Duration: time.Since(start), ExitCode: cmd.ProcessState.ExitCode()}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			res.ExitCode = -1
		}
		slog.Warn("probe exited with error",
			"action", event.Action,
			"exit_code", res.ExitCode,
			"error", runErr,
			"output", tail(out.String()),
		)
	} else {
		slog.Debug("probe output", "action", event.Action, "output", tail(out.String()))
	}

	raw, err := os.ReadFile(statusPath)
	switch {
	case err == nil:
		res.Status = strings.TrimSpace(string(raw))
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("probe left no status file", "action", event.Action, "path", statusPath)
	default:
		slog.Warn("could not read status file", "path", statusPath, "error", err)
	}
	res.Outcome = models.ParseOutcome(res.Status)

	slog.Info("probe finished",
		"action", event.Action,
		"alert_id", event.AlertID,
		"status", res.Outcome,
		"exit_code", res.ExitCode,
		"duration", res.Duration,
	)
	return res, nil
}

func (r *Runner) writeEmailData(event *models.AlertEvent) error {
	data, err := json.MarshalIndent(emailData{
		AlertName: event.RuleName,
		AlertID:   event.AlertID,
		AlertType: event.AlertState.AlertType(),
		FromEmail: event.Sender,
		Subject:   event.Subject,
		Body:      event.Body,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.opts.Workspace, EmailDataFile), data, 0o600)
}

func tail(s string) string {
	if len(s) <= outputTail {
		return s
	}
	return "..." + s[len(s)-outputTail:]
}
