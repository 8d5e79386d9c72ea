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

// GSIT alert listener
//
// Entry point for the mailbox listener. It:
//  1. Loads rules and settings from config.yaml
//  2. Connects to Redis for duplicate suppression (and the job queue)
//  3. Builds the dispatcher: a Jenkins job trigger or the Redis job queue
//  4. Polls the IMAP inbox, classifying each unseen alert email
//  5. Serves a health endpoint and an on-demand poll trigger
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gsit/alertas/internal/config"
	"github.com/gsit/alertas/internal/dedup"
	"github.com/gsit/alertas/internal/jenkins"
	"github.com/gsit/alertas/internal/mailbox"
	"github.com/gsit/alertas/internal/pipeline"
	"github.com/gsit/alertas/internal/poller"
	"github.com/gsit/alertas/internal/queue"
	"github.com/gsit/alertas/internal/webhook"
)

func main() {
	// Structured JSON logging
	logLevel := config.InstallLogger(os.Stdout)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logLevel.Set(cfg.LogLevel)

	slog.Info("starting GSIT alert listener")

	matcher, err := cfg.Matcher()
	if err != nil {
		slog.Error("invalid rules", "error", err)
		os.Exit(1)
	}
	for _, r := range matcher.Rules() {
		slog.Info("rule loaded",
			"rule", r.Name,
			"sender", r.SenderContains.String(),
			"subject", r.SubjectContains.String(),
			"body", r.BodyContains.String(),
			"action", r.Action,
		)
	}

	if cfg.IMAP.Username == "" || cfg.IMAP.Password == "" {
		slog.Error("EMAIL_USER and EMAIL_PASS are required")
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"rules", matcher.Len(),
		"mailbox", cfg.IMAP.Addr(),
		"folder", cfg.IMAP.Folder,
		"dispatch_mode", cfg.DispatchMode,
		"poll_interval", cfg.PollInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.JobsQueue)
	redisUp := true
	if err := publisher.Ping(ctx); err != nil {
		if cfg.DispatchMode == config.DispatchQueue {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Warn("redis unavailable, duplicate suppression disabled", "error", err)
		redisUp = false
	} else {
		slog.Info("connected to Redis")
	}

	// --- Dispatcher ---
	var dispatcher poller.Dispatcher
	switch cfg.DispatchMode {
	case config.DispatchQueue:
		dispatcher = publisher
	default:
		if cfg.Jenkins.URL == "" {
			slog.Error("JENKINS_URL is required in jenkins dispatch mode")
			os.Exit(1)
		}
		httpClient := &http.Client{Timeout: cfg.Jenkins.Timeout}
		dispatcher = jenkins.NewClient(httpClient, cfg.Jenkins.URL, cfg.Jenkins.Job, cfg.Jenkins.User, cfg.Jenkins.Token)
	}

	// --- Mailbox + Poller ---
	source := mailbox.NewIMAPSource(mailbox.IMAPOptions{
		Addr:         cfg.IMAP.Addr(),
		Username:     cfg.IMAP.Username,
		Password:     cfg.IMAP.Password,
		Folder:       cfg.IMAP.Folder,
		DialTimeout:  cfg.IMAP.DialTimeout,
		MaxRetries:   cfg.IMAP.MaxRetries,
		RetryBackoff: cfg.IMAP.RetryBackoff,
	})

	var opts []poller.Option
	if redisUp {
		opts = append(opts, poller.WithDedup(dedup.NewFilter(rdb, cfg.DedupTTL)))
	}
	p := poller.NewPoller(source, pipeline.NewClassifier(matcher), dispatcher, cfg.PollInterval, opts...)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	// --- Health + Poll Trigger Server ---
	checks := []webhook.Check{{Name: "imap", Ping: source.Ping}}
	if redisUp {
		checks = append(checks, webhook.Check{Name: "redis", Ping: publisher.Ping})
	}
	mux := http.NewServeMux()
	webhook.NewHandler(p, cfg.TriggerToken, checks...).Register(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop the poller
		wg.Wait()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		if err := source.Close(); err != nil {
			slog.Warn("mailbox logout failed", "error", err)
		}
		if err := rdb.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	}()

	slog.Info("alert listener HTTP server listening", "addr", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-stopped
	slog.Info("alert listener stopped")
}
