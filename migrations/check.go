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
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Check compares the applied schema version against the newest embedded
// migration. In wait mode it polls until the versions match or the timeout
// passes; on timeout it logs a banner and lets the caller continue.
func (s Source) Check(ctx context.Context, pool *pgxpool.Pool, opts CheckOptions) error {
	if opts.Mode == CheckModeSkip {
		slog.Debug("Migration version checking skipped", slog.String("database", s.Name))
		return nil
	}

	expected, err := s.LatestVersion()
	if err != nil {
		return fmt.Errorf("failed to extract expected migration version for %s: %w", s.Name, err)
	}

	current, dirty, err := s.CurrentVersion(pool)
	if err != nil {
		return fmt.Errorf("failed to get current migration version for %s: %w", s.Name, err)
	}

	if dirty {
		switch {
		case opts.AllowDirty:
			slog.Warn("Database migration is dirty but allowed to continue", slog.String("database", s.Name))
		case opts.Mode == CheckModeWarn:
			slog.Warn("Database migration is in dirty state, but continuing anyway", slog.String("database", s.Name))
		default:
			return fmt.Errorf("database %s migration is in dirty state, please fix before proceeding", s.Name)
		}
	}

	if current == expected {
		return nil
	}

	logAttrs := []any{
		slog.String("database", s.Name),
		slog.Uint64("current_version", uint64(current)),
		slog.Uint64("expected_version", uint64(expected)),
	}

	if current > expected {
		if opts.Mode == CheckModeWarn {
			slog.Warn("Database version is newer than expected, but continuing anyway", logAttrs...)
			return nil
		}
		return fmt.Errorf("database %s version %d is newer than expected version %d - you may need to update the application",
			s.Name, current, expected)
	}

	if opts.Mode == CheckModeWarn {
		slog.Warn("Database version is older than expected, but continuing anyway", logAttrs...)
		return nil
	}

	slog.Info("Waiting for migrations", logAttrs...)
	deadline := time.Now().Add(opts.Timeout)
	ticker := time.NewTicker(opts.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for %s migrations: %w", s.Name, ctx.Err())
		case <-ticker.C:
		}

		current, _, err = s.CurrentVersion(pool)
		if err != nil {
			return fmt.Errorf("failed to get current migration version for %s: %w", s.Name, err)
		}
		if current == expected {
			slog.Info("Migration version check passed",
				slog.String("database", s.Name),
				slog.Uint64("version", uint64(current)))
			return nil
		}

		if time.Now().After(deadline) {
			slog.Error("+-------------------------------------------------------------------------------+")
			slog.Error("|                                   WARNING                                     |")
			slog.Error(fmt.Sprintf("|  Migration timeout reached for %-47s|", s.Name+" database!"))
			slog.Error(fmt.Sprintf("|  Current version: %-60d|", current))
			slog.Error(fmt.Sprintf("|  Expected version: %-59d|", expected))
			slog.Error("|  The service will continue to run, but the schema may be inconsistent!       |")
			slog.Error("+-------------------------------------------------------------------------------+")
			return nil
		}

		slog.Info("Waiting for migrations to complete",
			slog.String("database", s.Name),
			slog.Uint64("current_version", uint64(current)),
			slog.Duration("remaining_timeout", time.Until(deadline)))
	}
}
