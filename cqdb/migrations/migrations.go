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
	"embed"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/cmdqueue/migrations"
)

//go:embed *.sql
var migrationFiles embed.FS

// EnvPrefix is the environment prefix of the command queue database.
const EnvPrefix = "CQDB"

var source = migrations.Source{
	Name:  "cqdb",
	Table: "gomigrate_cqdb",
	Files: migrationFiles,
}

// RunMigrationsUp applies all pending command queue schema migrations.
func RunMigrationsUp(ctx context.Context, pool *pgxpool.Pool) error {
	return source.Up(ctx, pool)
}

// CheckVersion verifies the schema version, honoring CQDB_MIGRATION_CHECK_ENABLED
// and the MIGRATION_CHECK_* overrides.
func CheckVersion(ctx context.Context, pool *pgxpool.Pool, options ...migrations.CheckOption) error {
	if !migrations.CheckEnabled(EnvPrefix) {
		slog.Debug("Migration version checking disabled for cqdb")
		return nil
	}
	return source.Check(ctx, pool, migrations.NewCheckOptions(options...))
}

// ExpectedVersion is the newest embedded migration version.
func ExpectedVersion() (uint, error) {
	return source.LatestVersion()
}
