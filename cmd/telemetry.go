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
	"os"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/cardinalhq/cmdqueue/internal/idgen"
)

var myInstanceID int64

func logLevel() *slog.HandlerOptions {
	if os.Getenv("DEBUG") != "" || os.Getenv("CMDQUEUE_DEBUG") != "" {
		return &slog.HandlerOptions{Level: slog.LevelDebug}
	}
	return nil
}

func otlpEnabled() bool {
	return os.Getenv("OTEL_SERVICE_NAME") != "" && os.Getenv("ENABLE_OTLP_TELEMETRY") == "true"
}

// serviceLogger writes text to stdout and, with OTLP enabled, also ships
// every record through the otelslog bridge.
func serviceLogger(servicename string, otlp bool) *slog.Logger {
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, logLevel())
	if otlp {
		handler = slogmulti.Fanout(handler, otelslog.NewHandler(servicename))
	}
	return slog.New(handler).With(
		slog.String("service", servicename),
		slog.Int64("instanceID", myInstanceID),
	)
}

// setupTelemetry configures the default logger and, when OTLP export is
// enabled, the OpenTelemetry SDK with runtime and host metrics. The returned
// context is cancelled on SIGINT or SIGTERM; the returned function flushes
// telemetry and must be called before exit.
func setupTelemetry(servicename string) (context.Context, func() error, error) {
	myInstanceID = idgen.DefaultFlakeGenerator.NextID()
	doneCtx, doneCancel := handleSignals(context.Background())

	otlp := otlpEnabled()
	slog.SetDefault(serviceLogger(servicename, otlp))
	if !otlp {
		return doneCtx, func() error {
			doneCancel()
			return nil
		}, nil
	}

	slog.Info("OpenTelemetry exporting enabled")
	otelShutdown, err := telemetry.SetupOTelSDK(doneCtx)
	if err != nil {
		doneCancel()
		return doneCtx, nil, fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
	}

	if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(10 * time.Second)); err != nil {
		slog.Warn("Failed to start runtime metrics", slog.Any("error", err))
	}
	if err := host.Start(); err != nil {
		slog.Warn("Failed to start host metrics", slog.Any("error", err))
	}

	return doneCtx, func() error {
		defer doneCancel()
		slog.Info("Shutting down OpenTelemetry SDK")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return otelShutdown(ctx)
	}, nil
}

// setupCLILogging sends logs to stderr so command output on stdout stays
// machine readable.
func setupCLILogging() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, logLevel())))
}
