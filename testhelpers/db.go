//go:build integration

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

package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orlangure/gnomock"
	pgpreset "github.com/orlangure/gnomock/preset/postgres"

	"github.com/cardinalhq/cmdqueue/cqdb"
	cqdbmigrations "github.com/cardinalhq/cmdqueue/cqdb/migrations"
)

const (
	pgUser     = "cmdqueue"
	pgPassword = "cmdqueue"
	pgBaseDB   = "cmdqueue_base"
)

var (
	containerOnce sync.Once
	container     *gnomock.Container
	containerURL  string
	containerErr  error
)

// RunWithPostgres runs the package's tests and stops the shared postgres
// container afterwards. Use it from TestMain.
func RunWithPostgres(m *testing.M) int {
	code := m.Run()
	if container != nil {
		if err := gnomock.Stop(container); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stop postgres container: %v\n", err)
		}
	}
	return code
}

// baseURL is CQDB_TEST_URL when set, otherwise a lazily started gnomock
// postgres shared by every test in the process.
func baseURL(t *testing.T) string {
	t.Helper()
	if u := os.Getenv("CQDB_TEST_URL"); u != "" {
		return u
	}

	containerOnce.Do(func() {
		p := pgpreset.Preset(
			pgpreset.WithVersion("16"),
			pgpreset.WithUser(pgUser, pgPassword),
			pgpreset.WithDatabase(pgBaseDB),
		)
		container, containerErr = gnomock.Start(p, gnomock.WithTimeout(2*time.Minute))
		if containerErr != nil {
			return
		}
		containerURL = fmt.Sprintf("postgresql://%s:%s@%s/%s?sslmode=disable",
			pgUser, pgPassword, container.DefaultAddress(), pgBaseDB)
	})
	if containerErr != nil {
		t.Fatalf("Failed to start postgres container: %v", containerErr)
	}
	return containerURL
}

// SetupTestCQDB creates an empty database, migrates it, and drops it when
// the test ends.
func SetupTestCQDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	dbName := fmt.Sprintf("test_cqdb_%d_%d", time.Now().Unix(), rand.IntN(100000))

	base := baseURL(t)
	basePool, err := pgxpool.New(ctx, base)
	if err != nil {
		t.Fatalf("Failed to connect to base database: %v", err)
	}

	if _, err := basePool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		basePool.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}

	u, err := url.Parse(base)
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to parse base database url: %v", err)
	}
	u.Path = "/" + dbName

	testPool, err := cqdb.NewConnectionPool(ctx, u.String())
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := cqdbmigrations.RunMigrationsUp(ctx, testPool); err != nil {
		testPool.Close()
		basePool.Close()
		t.Fatalf("Failed to run cqdb migrations: %v", err)
	}

	t.Cleanup(func() {
		testPool.Close()
		if _, err := basePool.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName)); err != nil {
			slog.Error("Failed to drop test database", slog.String("dbName", dbName), slog.Any("error", err))
		}
		basePool.Close()
	})

	return testPool
}

// NewTestStore returns a store over a fresh database with a small catalog:
// command types 3 (run-backup) and 4 (rotate-keys), identities 7 and 8, and
// the statuses the migrations seed.
func NewTestStore(t *testing.T) *cqdb.Store {
	t.Helper()
	store := cqdb.NewStore(SetupTestCQDB(t))

	err := store.CatalogImport(context.Background(), cqdb.CatalogImportParams{
		CommandTypes: []cqdb.SubsystemCommandUpsertParams{
			{ID: 3, Name: "run-backup", Description: pgtype.Text{String: "Back up a subsystem", Valid: true}},
			{ID: 4, Name: "rotate-keys"},
		},
		Identities: []cqdb.PersonJwtHistoryUpsertParams{
			{ID: 7, Subject: "alice"},
			{ID: 8, Subject: "bob"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to seed catalog: %v", err)
	}
	return store
}
