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

// Package heartbeat runs a function on a fixed interval until cancelled.
// The dispatcher uses it both to refresh claimed entries and to sweep
// abandoned claims.
package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

type HeartbeatFunc func(ctx context.Context) error

type Heartbeater struct {
	heartbeatFunc HeartbeatFunc
	ll            *slog.Logger
	interval      time.Duration
}

func New(heartbeatFunc HeartbeatFunc, interval time.Duration, logger *slog.Logger) *Heartbeater {
	if logger == nil {
		logger = slog.Default()
	}

	return &Heartbeater{
		heartbeatFunc: heartbeatFunc,
		ll:            logger.With(slog.String("component", "heartbeater")),
		interval:      interval,
	}
}

// Start calls the function once immediately and then every interval. The
// returned function stops the loop and blocks until any in-progress call
// has returned, so callers can safely act on the same rows afterwards.
func (h *Heartbeater) Start(ctx context.Context) context.CancelFunc {
	heartbeatCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		h.run(heartbeatCtx)
	}()

	return func() {
		cancel()
		<-done
	}
}

func (h *Heartbeater) run(ctx context.Context) {
	h.ll.Debug("Starting heartbeat loop", slog.Duration("interval", h.interval))

	h.beat(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.ll.Debug("Context cancelled, stopping heartbeat loop")
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeater) beat(ctx context.Context) {
	if err := h.heartbeatFunc(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		h.ll.Error("Heartbeat failed (continuing)", slog.Any("error", err))
	}
}
