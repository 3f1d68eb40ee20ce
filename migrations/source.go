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

package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Source describes one database's embedded migration set.
type Source struct {
	// Name is used in log lines and errors, e.g. "cqdb".
	Name string
	// Table is the golang-migrate bookkeeping table.
	Table string
	// Files holds the *.up.sql / *.down.sql files at its root.
	Files fs.FS
}

// LatestVersion returns the highest version number among the up migrations.
func (s Source) LatestVersion() (uint, error) {
	entries, err := fs.ReadDir(s.Files, ".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var maxVersion uint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(entry.Name(), "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		maxVersion = max(maxVersion, uint(version))
	}

	if maxVersion == 0 {
		return 0, errors.New("no valid migration files found")
	}
	return maxVersion, nil
}

// withMigrate builds a migrate instance over the pool and hands it to fn.
// Every connection it opens is closed before returning.
func (s Source) withMigrate(pool *pgxpool.Pool, fn func(*migrate.Migrate) error) error {
	sourceDriver, err := iofs.New(s.Files, ".")
	if err != nil {
		return fmt.Errorf("failed to create iofs driver: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) {
		_ = db.Close()
	}(sqlDB)

	dbDriver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{
		MigrationsTable: s.Table,
	})
	if err != nil {
		return fmt.Errorf("failed to create pgx driver: %w", err)
	}
	defer func() {
		_ = dbDriver.Close()
	}()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx5", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return fn(m)
}

// CurrentVersion reads the applied version. An empty database reports 0.
func (s Source) CurrentVersion(pool *pgxpool.Pool) (version uint, dirty bool, err error) {
	err = s.withMigrate(pool, func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			version, dirty = 0, false
			return nil
		}
		if verr != nil {
			return fmt.Errorf("failed to get current version: %w", verr)
		}
		return nil
	})
	return version, dirty, err
}

// Up applies every pending migration. A dirty database is refused.
func (s Source) Up(ctx context.Context, pool *pgxpool.Pool) error {
	return s.withMigrate(pool, func(m *migrate.Migrate) error {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				select {
				case m.GracefulStop <- true:
				default:
				}
			case <-done:
			}
		}()

		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to get current version: %w", err)
		}
		if dirty {
			return fmt.Errorf("%s migration %d is dirty, please fix it before proceeding", s.Name, version)
		}

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("%s migration failed: %w", s.Name, err)
		}
		slog.Info("Migrations applied", slog.String("database", s.Name))
		return nil
	})
}
