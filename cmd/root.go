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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/cmdqueue/config"
	"github.com/cardinalhq/cmdqueue/cqdb"
	"github.com/cardinalhq/cmdqueue/internal/catalog"
	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
)

const adminTimeout = 2 * time.Minute

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cmdqueue",
	Short: "Durable subsystem command queue",
	Long: `Enqueue, inspect and dispatch subsystem commands stored in Postgres.
Database connection settings come from CQDB_URL or CQDB_HOST, CQDB_PORT,
CQDB_USER, CQDB_PASSWORD, CQDB_DBNAME and CQDB_SSLMODE.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupCLILogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./config.yaml if present)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// adminSession is what the one-shot admin commands work against.
type adminSession struct {
	store   *cqdb.Store
	queue   *commandqueue.Queue
	catalog *catalog.Cache
}

func openAdminSession(ctx context.Context) (*adminSession, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := cqdb.CQDBStoreForAdmin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cqdb: %w", err)
	}
	return &adminSession{
		store:   store,
		queue:   commandqueue.New(store),
		catalog: catalog.NewCache(store, cfg.Catalog.CacheTTL),
	}, nil
}

func (s *adminSession) Close() {
	s.catalog.Close()
	s.store.Close()
}

// runAdmin opens a session bounded by adminTimeout and the process signals,
// and hands it to fn.
func runAdmin(cmd *cobra.Command, fn func(ctx context.Context, s *adminSession) error) error {
	ctx, stop := handleSignals(cmd.Context())
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, adminTimeout)
	defer cancel()

	s, err := openAdminSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
