// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cqdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"

	cqdbmigrations "github.com/cardinalhq/cmdqueue/cqdb/migrations"
	"github.com/cardinalhq/cmdqueue/internal/dbopen"
)

func NewConnectionPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{
		Name: "cqdb",
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// ConnectToCQDB opens a pool from the CQDB_* environment and checks the
// schema version. Only the first Options value is used.
func ConnectToCQDB(ctx context.Context, opts ...dbopen.Options) (*pgxpool.Pool, error) {
	connectionString, err := dbopen.GetDatabaseURLFromEnv(cqdbmigrations.EnvPrefix)
	if err != nil {
		return nil, errors.Join(dbopen.ErrDatabaseNotConfigured, fmt.Errorf("failed to get CQDB connection string: %w", err))
	}

	pool, err := NewConnectionPool(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	var o dbopen.Options
	if len(opts) > 0 {
		o = opts[0]
	}

	if err := cqdbmigrations.CheckVersion(ctx, pool, o.MigrationCheckOptions...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("CQDB migration version check failed: %w", err)
	}

	return pool, nil
}

// CQDBStore connects and waits for the expected schema.
func CQDBStore(ctx context.Context) (*Store, error) {
	pool, err := ConnectToCQDB(ctx)
	if err != nil {
		return nil, err
	}
	return NewStore(pool), nil
}

// CQDBStoreForAdmin connects but only warns on a schema mismatch, so admin
// commands keep working during a rollout.
func CQDBStoreForAdmin(ctx context.Context) (*Store, error) {
	pool, err := ConnectToCQDB(ctx, dbopen.WarnOnMigrationMismatch())
	if err != nil {
		return nil, err
	}
	return NewStore(pool), nil
}
