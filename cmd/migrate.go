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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/cmdqueue/cqdb"
	cqdbmigrations "github.com/cardinalhq/cmdqueue/cqdb/migrations"
	"github.com/cardinalhq/cmdqueue/internal/catalog"
	"github.com/cardinalhq/cmdqueue/internal/dbopen"
)

var migrateCatalogFile string

func init() {
	MigrateCmd.Flags().StringVar(&migrateCatalogFile, "catalog", "", "Catalog YAML to import after migrating (default catalog.file from config)")
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  "Apply pending cqdb migrations and optionally import a catalog file",
	RunE:  migrate,
}

func migrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := migrateCatalogFile
	if path == "" {
		path = cfg.Catalog.File
	}

	// Parse the catalog up front so a bad file is reported before the
	// schema is touched.
	var file *catalog.File
	if path != "" {
		if file, err = catalog.LoadFile(path); err != nil {
			return err
		}
		if err := file.Validate(); err != nil {
			return fmt.Errorf("invalid catalog %s: %w", path, err)
		}
	}

	ctx, stop := handleSignals(cmd.Context())
	defer stop()
	ctx, cancel := context.WithDeadline(ctx, time.Now().Add(5*time.Minute))
	defer cancel()

	pool, err := cqdb.ConnectToCQDB(ctx, dbopen.SkipMigrationCheck())
	if err != nil {
		return fmt.Errorf("failed to connect to cqdb: %w", err)
	}
	defer pool.Close()

	var result *multierror.Error

	slog.Info("Running cqdb migrations")
	if err := cqdbmigrations.RunMigrationsUp(ctx, pool); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to migrate cqdb: %w", err))
		return result.ErrorOrNil()
	}
	slog.Info("cqdb migrations completed successfully")

	if file != nil {
		if err := catalog.Import(ctx, cqdb.NewStore(pool), file); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to import catalog %s: %w", path, err))
		} else {
			slog.Info("Catalog imported",
				slog.String("file", path),
				slog.Int("commandTypes", len(file.CommandTypes)),
				slog.Int("statuses", len(file.Statuses)),
				slog.Int("identities", len(file.Identities)))
		}
	}

	return result.ErrorOrNil()
}
