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

// GSIT alert replay
//
// Runs saved emails (an mbox export or .eml files) through the same
// classification pipeline as the listener and prints one JSON line per
// message. Useful for checking a rule change against historical mail.
//
// Usage:
//
//	go run ./cmd/replay/ --mbox export.mbox
//	go run ./cmd/replay/ alert1.eml alert2.eml
//	go run ./cmd/replay/ --mbox export.mbox --dispatch   # really trigger jobs
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/gsit/alertas/internal/config"
	"github.com/gsit/alertas/internal/jenkins"
	"github.com/gsit/alertas/internal/mailbox"
	"github.com/gsit/alertas/internal/models"
	"github.com/gsit/alertas/internal/pipeline"
	"github.com/gsit/alertas/internal/poller"
	"github.com/gsit/alertas/internal/queue"
)

// line is the printed record for one message.
type line struct {
	UID     uint32             `json:"uid"`
	Outcome poller.Outcome     `json:"outcome"`
	Stage   pipeline.Stage     `json:"stage"`
	Trace   []pipeline.Stage   `json:"trace"`
	Rule    string             `json:"rule,omitempty"`
	Reason  pipeline.Reason    `json:"reason,omitempty"`
	Event   *models.AlertEvent `json:"event,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// dryRun logs events instead of triggering anything.
type dryRun struct{}

func (dryRun) Dispatch(_ context.Context, event *models.AlertEvent) error {
	slog.Info("dry run, not dispatching",
		"action", event.Action,
		"alert_id", event.AlertID,
		"state", event.AlertState,
	)
	return nil
}

func main() {
	// Logs go to stderr so stdout stays machine readable.
	config.InstallLogger(os.Stderr).Set(slog.LevelWarn)

	// --- CLI Flags ---
	mboxFlag := flag.String("mbox", "", "mbox file to replay")
	dispatchFlag := flag.Bool("dispatch", false, "Dispatch matched events using the configured mode")
	flag.Parse()

	if *mboxFlag == "" && flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: --mbox or at least one .eml file is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	matcher, err := cfg.Matcher()
	if err != nil {
		slog.Error("invalid rules", "error", err)
		os.Exit(1)
	}

	// --- Input ---
	var source *mailbox.FileSource
	if *mboxFlag != "" {
		source, err = mailbox.OpenMbox(*mboxFlag)
	} else {
		source, err = mailbox.OpenEML(flag.Args()...)
	}
	if err != nil {
		slog.Error("failed to read input", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// --- Dispatcher ---
	var dispatcher poller.Dispatcher = dryRun{}
	var rdb *redis.Client
	if *dispatchFlag {
		switch cfg.DispatchMode {
		case config.DispatchQueue:
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "error", err)
				os.Exit(1)
			}
			rdb = redis.NewClient(opt)

			publisher := queue.NewPublisher(rdb, cfg.JobsQueue)
			if err := publisher.Ping(ctx); err != nil {
				slog.Error("failed to connect to Redis", "error", err)
				rdb.Close()
				os.Exit(1)
			}
			dispatcher = publisher
		default:
			dispatcher = jenkins.NewClient(&http.Client{Timeout: cfg.Jenkins.Timeout},
				cfg.Jenkins.URL, cfg.Jenkins.Job, cfg.Jenkins.User, cfg.Jenkins.Token)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	observe := func(r poller.Report) {
		l := line{
			UID:     r.UID,
			Outcome: r.Outcome,
			Stage:   r.Result.Final(),
			Trace:   r.Result.Trace,
			Rule:    r.Result.Rule,
			Reason:  r.Result.Reason,
			Event:   r.Result.Event,
		}
		if r.Err != nil {
			l.Error = r.Err.Error()
		}
		if err := enc.Encode(l); err != nil {
			slog.Error("failed to write result", "error", err)
		}
	}

	p := poller.NewPoller(source, pipeline.NewClassifier(matcher), dispatcher, 0, poller.WithObserver(observe))
	stats := p.PollOnce(ctx)

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	}

	// Messages a live listener would leave unread and retry on the next poll.
	var unread []uint32
	for uid := uint32(1); uid <= uint32(source.Len()); uid++ {
		if !source.Seen(uid) {
			unread = append(unread, uid)
		}
	}

	fmt.Fprintf(os.Stderr, "replayed %d messages: %d emitted, %d ignored, %d failed, %d left unread %v\n",
		stats.Fetched, stats.Emitted, stats.Ignored, stats.Failed, len(unread), unread)

	if stats.Failed > 0 {
		os.Exit(1)
	}
}
