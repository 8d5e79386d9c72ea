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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gsit/alertas/internal/config"
)

// Open returns the backend selected by cfg, or nil for "none".
func Open(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	switch cfg.Backend {
	case config.LedgerNone:
		return nil, nil
	case config.LedgerSQLite:
		l, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.LedgerPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		l, err := NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return l, nil
	case config.LedgerSheets:
		l, err := OpenSheets(ctx, cfg.CredentialsFile, cfg.SpreadsheetID, cfg.SheetName)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

// DefaultsFrom extracts the row defaults from cfg.
func DefaultsFrom(cfg config.LedgerConfig) Defaults {
	return Defaults{
		AffectedTo:  cfg.AffectedDefault,
		Scope:       cfg.ScopeDefault,
		Origin:      cfg.OriginDefault,
		Description: cfg.DescDefault,
	}
}
