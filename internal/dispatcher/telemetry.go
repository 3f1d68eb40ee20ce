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

package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
)

var (
	claimedCounter   otelmetric.Int64Counter
	completedCounter otelmetric.Int64Counter
	releasedCounter  otelmetric.Int64Counter
	handleDuration   otelmetric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/cmdqueue/internal/dispatcher")

	var err error
	claimedCounter, err = meter.Int64Counter(
		"cmdqueue.dispatcher.claimed",
		otelmetric.WithDescription("Number of entries claimed by the dispatcher"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create claimed counter: %w", err))
	}

	completedCounter, err = meter.Int64Counter(
		"cmdqueue.dispatcher.completed",
		otelmetric.WithDescription("Number of claimed entries finished, by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create completed counter: %w", err))
	}

	releasedCounter, err = meter.Int64Counter(
		"cmdqueue.dispatcher.released",
		otelmetric.WithDescription("Number of claimed entries returned to the pending status"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create released counter: %w", err))
	}

	handleDuration, err = meter.Float64Histogram(
		"cmdqueue.dispatcher.handle.duration",
		otelmetric.WithDescription("Time spent in the command handler"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create handle duration histogram: %w", err))
	}
}

func recordClaimed(ctx context.Context, ct commandqueue.CommandTypeRef) {
	claimedCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.Int64("command_type", int64(ct))))
}

func recordCompleted(ctx context.Context, ct commandqueue.CommandTypeRef, outcome string, elapsed time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.Int64("command_type", int64(ct)),
		attribute.String("outcome", outcome),
	)
	completedCounter.Add(ctx, 1, attrs)
	handleDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func recordReleased(ctx context.Context, reason string, n int) {
	releasedCounter.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("reason", reason)))
}
