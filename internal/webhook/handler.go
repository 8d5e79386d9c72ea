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

// Package webhook serves the listener's HTTP surface: a health check and a
// trigger that makes the poller check the mailbox now instead of waiting for
// the next tick. A mail provider push notification or an operator can call
// the trigger when an alert is known to be waiting.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// TokenHeader carries the shared trigger token.
const TokenHeader = "X-Alertas-Token"

// Triggerer requests an out-of-band poll.
type Triggerer interface {
	Trigger() bool
}

// Check is a named dependency probe run by the health endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler serves /health and /poll.
type Handler struct {
	poller Triggerer
	token  string
	checks []Check
}

// NewHandler creates the handler. An empty token leaves /poll open.
func NewHandler(poller Triggerer, token string, checks ...Check) *Handler {
	return &Handler{poller: poller, token: token, checks: checks}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.ServeHealth)
	mux.HandleFunc("/poll", h.ServePoll)
}

// ServeHealth reports 200 when every check passes and 503 otherwise, with
// the failing checks listed in the body.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}

	if len(failed) > 0 {
		slog.Warn("health check failed", "failed", failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"failed": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

// ServePoll handles poll trigger requests.
//
//   - Only POST is accepted
//   - When a token is configured it must match the X-Alertas-Token header
//   - We respond 202 Accepted immediately; the poll runs on the poller's
//     own goroutine and a request made while one is pending is coalesced
func (h *Handler) ServePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.token != "" {
		got := r.Header.Get(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			slog.Warn("poll trigger rejected: bad token", "remote", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	queued := h.poller.Trigger()
	slog.Info("poll triggered", "queued", queued, "remote", r.RemoteAddr)

	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
