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

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Sheets stores the register in a Google Sheet shared with the team. Column
// A holds the alert id; the first row holds the headings.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	sheet         string
	now           func() time.Time

	// Serialises find-then-write sequences from this process.
	mu sync.Mutex
}

// OpenSheets authenticates with a service-account key file.
func OpenSheets(ctx context.Context, credentialsFile, spreadsheetID, sheet string) (*Sheets, error) {
	key, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", credentialsFile, err)
	}
	conf, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.Info("ledger store initialised", "backend", "sheets", "spreadsheet_id", spreadsheetID, "sheet", sheet)
	return NewSheets(svc, spreadsheetID, sheet), nil
}

// NewSheets wraps an existing Sheets service.
func NewSheets(svc *sheets.Service, spreadsheetID, sheet string) *Sheets {
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet, now: time.Now}
}

func (s *Sheets) rng(a1 string) string {
	return fmt.Sprintf("%s!%s", s.sheet, a1)
}

// ids returns column A, one element per sheet row.
func (s *Sheets) ids(ctx context.Context) ([]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read id column: %w", err)
	}
	out := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			out[i] = fmt.Sprint(row[0])
		}
	}
	return out, nil
}

// find returns the 1-based sheet row holding id, skipping the heading row.
func find(ids []string, id string) int {
	for i := 1; i < len(ids); i++ {
		if ids[i] == id {
			return i + 1
		}
	}
	return 0
}

func (s *Sheets) append(ctx context.Context, row []string) error {
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:H"), &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

// Add implements Ledger.
func (s *Sheets) Add(ctx context.Context, e Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.ids(ctx)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		if err := s.append(ctx, Columns); err != nil {
			return false, fmt.Errorf("write headings: %w", err)
		}
		ids = []string{Columns[0]}
	}
	if find(ids, e.ID) > 0 {
		return false, nil
	}

	if err := s.append(ctx, e.Row()); err != nil {
		return false, fmt.Errorf("append row: %w", err)
	}
	return true, nil
}

// CloseAlert implements Ledger.
func (s *Sheets) CloseAlert(ctx context.Context, id, end string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.ids(ctx)
	if err != nil {
		return err
	}
	n := find(ids, id)
	if n == 0 {
		return ErrNotFound
	}

	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.rng(fmt.Sprintf("C%d", n)), &sheets.ValueRange{
		Values: [][]interface{}{{resolveEnd(end, s.now())}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update row %d: %w", n, err)
	}
	return nil
}

// Get implements Ledger.
func (s *Sheets) Get(ctx context.Context, id string) (Entry, error) {
	ids, err := s.ids(ctx)
	if err != nil {
		return Entry{}, err
	}
	n := find(ids, id)
	if n == 0 {
		return Entry{}, ErrNotFound
	}

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rng(fmt.Sprintf("A%d:H%d", n, n))).Context(ctx).Do()
	if err != nil {
		return Entry{}, fmt.Errorf("read row %d: %w", n, err)
	}
	if len(resp.Values) == 0 {
		return Entry{}, ErrNotFound
	}
	row := make([]string, len(resp.Values[0]))
	for i, v := range resp.Values[0] {
		row[i] = fmt.Sprint(v)
	}
	return entryFromRow(row), nil
}

// Close implements Ledger.
func (s *Sheets) Close() error { return nil }
