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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite stores the register in a local database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the register at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	slog.Info("ledger store initialised", "backend", "sqlite", "path", path)
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			id          TEXT PRIMARY KEY,
			inici       TEXT NOT NULL DEFAULT '',
			fi          TEXT NOT NULL DEFAULT '',
			afecta_a    TEXT NOT NULL DEFAULT '',
			incidencia  TEXT NOT NULL DEFAULT '',
			abast       TEXT NOT NULL DEFAULT '',
			origen      TEXT NOT NULL DEFAULT '',
			descripcio  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// Add implements Ledger.
func (s *SQLite) Add(ctx context.Context, e Entry) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, inici, fi, afecta_a, incidencia, abast, origen, descripcio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Start, e.End, e.AffectedTo, e.Incident, e.Scope, e.Origin, e.Description)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CloseAlert implements Ledger.
func (s *SQLite) CloseAlert(ctx context.Context, id, end string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET fi = ? WHERE id = ?`, resolveEnd(end, s.now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get implements Ledger.
func (s *SQLite) Get(ctx context.Context, id string) (Entry, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, inici, fi, afecta_a, incidencia, abast, origen, descripcio
		FROM alerts WHERE id = ?
	`, id).Scan(&e.ID, &e.Start, &e.End, &e.AffectedTo, &e.Incident, &e.Scope, &e.Origin, &e.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Close implements Ledger.
func (s *SQLite) Close() error {
	return s.db.Close()
}
