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

// GSIT alert runner
//
// Executes the verification probe registered for an alert action and reports
// the outcome to Slack, email and the alert ledger.
//
// Two modes:
//
//	go run ./cmd/runner/ --action acces_frontal_emd   # one-shot, event from env (Jenkins job)
//	go run ./cmd/runner/ --worker                     # consume the Redis job queue
//
// In one-shot mode the exit code is 0 for a false positive and 1 otherwise,
// so a CI job turns red while an alarm stands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gsit/alertas/internal/config"
	"github.com/gsit/alertas/internal/ledger"
	"github.com/gsit/alertas/internal/models"
	"github.com/gsit/alertas/internal/notify"
	"github.com/gsit/alertas/internal/queue"
	"github.com/gsit/alertas/internal/runner"
)

func main() {
	// --- CLI Flags ---
	actionFlag := flag.String("action", "", "Action to run; overrides SCRIPT_NAME from the environment")
	workerFlag := flag.Bool("worker", false, "Consume jobs from the Redis queue instead of running once")
	flag.Parse()

	// Structured JSON logging
	logLevel := config.InstallLogger(os.Stdout)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logLevel.Set(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	registry := runner.NewRegistry(cfg.Actions)
	probe := runner.New(runner.Options{
		Workspace:   cfg.Runner.Workspace,
		Interpreter: cfg.Runner.Interpreter,
		Profile:     cfg.Runner.Profile,
		Timeout:     cfg.Runner.Timeout,
	}, registry)

	// --- Notifiers ---
	var smtpAddr string
	if cfg.SMTP.Host != "" {
		smtpAddr = fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port)
	}
	notifiers := notify.Multi{
		notify.NewSlack(&http.Client{Timeout: 10 * time.Second}, cfg.SlackWebhookURL),
		notify.NewMailer(notify.MailerOptions{
			Addr:        smtpAddr,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			From:        cfg.SMTP.From,
			To:          cfg.SMTP.To,
			TemplateDir: cfg.SMTP.TemplateDir,
		}),
	}

	// --- Ledger ---
	var recorder runner.Recorder
	l, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		slog.Error("failed to open alert ledger", "backend", cfg.Ledger.Backend, "error", err)
		os.Exit(1)
	}
	if l != nil {
		recorder = ledger.NewRecorder(l, ledger.DefaultsFrom(cfg.Ledger))
		slog.Info("alert ledger ready", "backend", cfg.Ledger.Backend)
	}

	service := runner.NewService(probe, notifiers, recorder, os.Getenv("BUILD_URL"))

	var code int
	if *workerFlag {
		code = runWorker(ctx, cfg, service)
	} else {
		code = runOnce(ctx, *actionFlag, service)
	}

	if l != nil {
		if err := l.Close(); err != nil {
			slog.Warn("failed to close alert ledger", "error", err)
		}
	}
	os.Exit(code)
}

// runOnce handles the event described by the job parameters in the
// environment.
func runOnce(ctx context.Context, action string, service *runner.Service) int {
	event := models.EventFromParams(os.Getenv)
	if action != "" {
		event.Action = action
	}
	if event.Action == "" {
		fmt.Fprintf(os.Stderr, "Error: --action or SCRIPT_NAME is required\n\n")
		flag.Usage()
		return 2
	}

	slog.Info("running probe",
		"action", event.Action,
		"alert_id", event.AlertID,
		"state", event.AlertState,
	)

	outcome, err := service.Handle(ctx, event)
	if err != nil {
		slog.Error("probe failed to run", "action", event.Action, "error", err)
		return 1
	}

	slog.Info("probe finished", "action", event.Action, "outcome", outcome)
	if outcome == models.OutcomeFalsePositive {
		return 0
	}
	return 1
}

// runWorker drains the job queue until the process is signalled.
func runWorker(ctx context.Context, cfg *config.Config, service *runner.Service) int {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		return 1
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		return 1
	}
	slog.Info("connected to Redis", "queue", cfg.JobsQueue)

	consumer := queue.NewConsumer(rdb, cfg.JobsQueue)
	err = consumer.Run(ctx, func(ctx context.Context, job *queue.Job) error {
		outcome, err := service.Handle(ctx, &job.Event)
		if err != nil {
			return err
		}
		slog.Info("job complete",
			"job_id", job.ID,
			"alert_id", job.Event.AlertID,
			"outcome", outcome,
		)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker stopped", "error", err)
		return 1
	}

	slog.Info("worker stopped")
	return 0
}
