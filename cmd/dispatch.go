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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/cmdqueue/cqdb"
	"github.com/cardinalhq/cmdqueue/internal/catalog"
	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
	"github.com/cardinalhq/cmdqueue/internal/dispatcher"
	"github.com/cardinalhq/cmdqueue/internal/healthcheck"
	"github.com/cardinalhq/cmdqueue/internal/idgen"
)

func init() {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Claim pending commands and run them",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			servicename := "cmdqueue-dispatcher"
			doneCtx, doneFx, err := setupTelemetry(servicename)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			return runDispatcher(doneCtx, cfg.Dispatcher, cfg.Catalog.CacheTTL)
		},
	}

	rootCmd.AddCommand(cmd)
}

// buildRouter wires the configured handlers. The returned closer releases
// any Kafka writer.
func buildRouter(cfg dispatcher.Config) (*dispatcher.Router, io.Closer, error) {
	router := dispatcher.NewRouter()
	var closer io.Closer = nopCloser{}

	if cfg.Kafka.Enabled() {
		w, err := dispatcher.NewKafkaWriter(cfg.Kafka)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kafka writer: %w", err)
		}
		kh := dispatcher.NewKafkaHandler(w)
		closer = kh
		if len(cfg.Kafka.CommandTypes) == 0 {
			router.Fallback(kh)
		}
		for _, ct := range cfg.Kafka.CommandTypes {
			router.Route(commandqueue.CommandTypeRef(ct), kh)
		}
	}

	if cfg.LogUnrouted && !router.HasFallback() {
		router.Fallback(dispatcher.LogHandler{Level: slog.LevelInfo})
	}

	if router.Empty() {
		return nil, nil, errors.New("no command handlers configured: set dispatcher.kafka or dispatcher.log_unrouted")
	}
	return router, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func runDispatcher(ctx context.Context, cfg dispatcher.Config, cacheTTL time.Duration) error {
	healthServer := healthcheck.NewServer(healthcheck.GetConfigFromEnv())
	go func() {
		if err := healthServer.Start(ctx); err != nil {
			slog.Error("Health check server stopped", slog.Any("error", err))
		}
	}()

	store, err := cqdb.CQDBStore(ctx)
	if err != nil {
		healthServer.SetStatus(healthcheck.StatusUnhealthy)
		return fmt.Errorf("failed to connect to cqdb: %w", err)
	}
	defer store.Close()

	cache := catalog.NewCache(store, cacheTTL)
	defer cache.Close()

	if err := cfg.Statuses.CheckStatuses(ctx, cache); err != nil {
		healthServer.SetStatus(healthcheck.StatusUnhealthy)
		return fmt.Errorf("dispatcher statuses do not match the catalog: %w", err)
	}

	router, closer, err := buildRouter(cfg)
	if err != nil {
		healthServer.SetStatus(healthcheck.StatusUnhealthy)
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			slog.Warn("Failed to close handler", slog.Any("error", err))
		}
	}()

	for _, ct := range router.CommandTypes() {
		name, err := cache.CommandTypeName(ctx, int64(ct))
		if err == nil && name == "" {
			slog.Warn("Routed command type is not in the catalog", slog.Int64("commandType", int64(ct)))
		}
	}

	d, err := dispatcher.New(cfg, commandqueue.New(store), router,
		dispatcher.WithLogger(slog.Default()),
		dispatcher.WithInstanceID(idgen.InstanceID("dispatcher")))
	if err != nil {
		healthServer.SetStatus(healthcheck.StatusUnhealthy)
		return err
	}

	healthServer.AddProbe("database", store.Ping)
	healthServer.AddProbe("queue-depth", func(context.Context) error {
		return d.Depth().LastError()
	})
	healthServer.SetStatus(healthcheck.StatusHealthy)
	healthServer.SetReady(true)

	err = d.Run(ctx)
	healthServer.SetReady(false)
	if err != nil {
		healthServer.SetStatus(healthcheck.StatusUnhealthy)
	}
	return err
}
