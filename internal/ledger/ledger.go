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

// Package ledger keeps the alert incident register: one row per alert id,
// opened when the alert goes active and closed when it resolves. Backends
// are a local SQLite file, Postgres, or a shared Google Sheet.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gsit/alertas/internal/fields"
	"github.com/gsit/alertas/internal/models"
)

// Columns are the register headings, in order.
var Columns = []string{"ID", "Inici", "Fi", "Afecta a", "Incidència", "Parcial/Total", "Origen", "Descripció"}

// EndLayout formats a closing time when the email carries none.
const EndLayout = "02/01/2006 15:04"

const unknownStart = "Desconegut"

// ErrNotFound is returned when no row has the requested id.
var ErrNotFound = errors.New("ledger entry not found")

// Entry is one register row.
type Entry struct {
	ID          string
	Start       string // Inici
	End         string // Fi
	AffectedTo  string // Afecta a
	Incident    string // Incidència
	Scope       string // Parcial/Total
	Origin      string // Origen
	Description string // Descripció
}

// Row returns the entry in column order.
func (e Entry) Row() []string {
	return []string{e.ID, e.Start, e.End, e.AffectedTo, e.Incident, e.Scope, e.Origin, e.Description}
}

func entryFromRow(row []string) Entry {
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	return Entry{
		ID: get(0), Start: get(1), End: get(2), AffectedTo: get(3),
		Incident: get(4), Scope: get(5), Origin: get(6), Description: get(7),
	}
}

// Ledger is an alert register backend.
type Ledger interface {
	// Add inserts e unless a row with the same id exists. It reports
	// whether a row was inserted.
	Add(ctx context.Context, e Entry) (bool, error)
	// CloseAlert sets Fi on the row with id. An empty end means now.
	CloseAlert(ctx context.Context, id, end string) error
	// Get returns the row with id.
	Get(ctx context.Context, id string) (Entry, error)
	// Close releases the backend.
	Close() error
}

// Defaults fill the columns the email does not carry.
type Defaults struct {
	AffectedTo  string
	Scope       string
	Origin      string
	Description string
}

// EntryFromReport builds the register row for a probe report. An event
// without an alert id gets a random one so the row is still addressable.
func EntryFromReport(r models.Report, d Defaults) Entry {
	ev := r.Event
	v := fields.ReportSchema.Extract(ev.Body)

	id := ev.AlertID
	if id == "" {
		id = uuid.New().String()
	}

	start := unknownStart
	if v.Has(fields.Start) {
		start = v.Text(fields.Start)
	}

	e := Entry{
		ID:          id,
		Start:       start,
		AffectedTo:  d.AffectedTo,
		Incident:    ev.Action,
		Scope:       d.Scope,
		Origin:      d.Origin,
		Description: d.Description,
	}
	if ev.AlertState == models.StateResolved {
		e.End = v.Text(fields.Recovery)
	}
	return e
}

func resolveEnd(end string, now time.Time) string {
	if end != "" {
		return end
	}
	return now.Format(EndLayout)
}

// Recorder applies reports to a ledger: an active alert opens a row, a
// resolved one closes it.
type Recorder struct {
	ledger   Ledger
	defaults Defaults
}

// NewRecorder creates a recorder.
func NewRecorder(l Ledger, d Defaults) *Recorder {
	return &Recorder{ledger: l, defaults: d}
}

// Record implements the runner's report sink.
func (rec *Recorder) Record(ctx context.Context, r models.Report) error {
	e := EntryFromReport(r, rec.defaults)

	switch r.Event.AlertState {
	case models.StateResolved:
		if err := rec.ledger.CloseAlert(ctx, e.ID, e.End); err != nil {
			return fmt.Errorf("close alert %s: %w", e.ID, err)
		}
		slog.Info("ledger entry closed", "alert_id", e.ID, "fi", e.End)

	case models.StateActive:
		added, err := rec.ledger.Add(ctx, e)
		if err != nil {
			return fmt.Errorf("add alert %s: %w", e.ID, err)
		}
		if added {
			slog.Info("ledger entry added", "alert_id", e.ID, "incidencia", e.Incident)
		} else {
			slog.Info("ledger entry already present", "alert_id", e.ID)
		}

	default:
		slog.Warn("alert state unknown, ledger not updated", "alert_id", e.ID)
	}
	return nil
}
