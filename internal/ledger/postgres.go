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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores the register in a shared database.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres creates a register backed by the given pool.
// It ensures the alerts table exists on creation.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	s := &Postgres{pool: pool, now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	slog.Info("ledger store initialised", "backend", "postgres")
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			id          TEXT PRIMARY KEY,
			inici       TEXT NOT NULL DEFAULT '',
			fi          TEXT NOT NULL DEFAULT '',
			afecta_a    TEXT NOT NULL DEFAULT '',
			incidencia  TEXT NOT NULL DEFAULT '',
			abast       TEXT NOT NULL DEFAULT '',
			origen      TEXT NOT NULL DEFAULT '',
			descripcio  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_incidencia ON alerts(incidencia);
	`)
	return err
}

// Add implements Ledger.
func (s *Postgres) Add(ctx context.Context, e Entry) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (id, inici, fi, afecta_a, incidencia, abast, origen, descripcio)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Start, e.End, e.AffectedTo, e.Incident, e.Scope, e.Origin, e.Description)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CloseAlert implements Ledger.
func (s *Postgres) CloseAlert(ctx context.Context, id, end string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts
		SET fi = $1, updated_at = NOW()
		WHERE id = $2
	`, resolveEnd(end, s.now()), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get implements Ledger.
func (s *Postgres) Get(ctx context.Context, id string) (Entry, error) {
	var e Entry
	err := s.pool.QueryRow(ctx, `
		SELECT id, inici, fi, afecta_a, incidencia, abast, origen, descripcio
		FROM alerts
		WHERE id = $1
	`, id).Scan(&e.ID, &e.Start, &e.End, &e.AffectedTo, &e.Incident, &e.Scope, &e.Origin, &e.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Close implements Ledger.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
