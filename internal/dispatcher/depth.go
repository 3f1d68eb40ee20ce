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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
)

type StatusCounter interface {
	StatusCounts(ctx context.Context) ([]commandqueue.StatusCount, error)
}

// DepthMonitor caches per command type and status counts of active entries
// and reports them as gauges on every metrics collection.
type DepthMonitor struct {
	db  StatusCounter
	now func() time.Time

	mu         sync.RWMutex
	counts     []commandqueue.StatusCount
	lastUpdate time.Time
	lastError  error
}

func NewDepthMonitor(db StatusCounter, now func() time.Time) (*DepthMonitor, error) {
	if now == nil {
		now = time.Now
	}
	m := &DepthMonitor{db: db, now: now}

	meter := otel.Meter("github.com/cardinalhq/cmdqueue/internal/dispatcher")
	if _, err := meter.Int64ObservableGauge(
		"cmdqueue.queue.depth",
		metric.WithDescription("Number of active command queue entries by command type and status"),
		metric.WithInt64Callback(m.observeDepth),
	); err != nil {
		return nil, fmt.Errorf("failed to create queue depth gauge: %w", err)
	}
	if _, err := meter.Float64ObservableGauge(
		"cmdqueue.queue.oldest_age",
		metric.WithDescription("Age of the oldest active entry by command type and status"),
		metric.WithUnit("s"),
		metric.WithFloat64Callback(m.observeOldest),
	); err != nil {
		return nil, fmt.Errorf("failed to create oldest entry gauge: %w", err)
	}
	return m, nil
}

func depthAttributes(c commandqueue.StatusCount) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.Int64("command_type", int64(c.CommandType)),
		attribute.String("status", string(c.Status)),
	)
}

func (m *DepthMonitor) observeDepth(_ context.Context, observer metric.Int64Observer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.counts {
		observer.Observe(c.Entries, depthAttributes(c))
	}
	return nil
}

func (m *DepthMonitor) observeOldest(_ context.Context, observer metric.Float64Observer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	for _, c := range m.counts {
		observer.Observe(now.Sub(c.OldestCreated).Seconds(), depthAttributes(c))
	}
	return nil
}

// Refresh reloads the cached counts. On failure the previous counts are kept.
func (m *DepthMonitor) Refresh(ctx context.Context) error {
	counts, err := m.db.StatusCounts(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = err
	if err != nil {
		return fmt.Errorf("failed to query queue depths: %w", err)
	}
	m.counts = counts
	m.lastUpdate = m.now()
	return nil
}

// Depth returns the cached count for one command type and status.
func (m *DepthMonitor) Depth(ct commandqueue.CommandTypeRef, status commandqueue.StatusRef) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.counts {
		if c.CommandType == ct && c.Status == status {
			return c.Entries
		}
	}
	return 0
}

// LastError returns the error from the most recent refresh, if any.
func (m *DepthMonitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

func (m *DepthMonitor) LastUpdate() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdate
}
