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

package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gsit/alertas/internal/models"
)

// Notifier publishes a report to one channel.
type Notifier interface {
	Notify(ctx context.Context, r models.Report) error
}

// Multi fans a report out to every channel in order. A failing channel does
// not stop the rest; the errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, r models.Report) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, r); err != nil {
			slog.Error("notification channel failed", "alert_id", r.Event.AlertID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
