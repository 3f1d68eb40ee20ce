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

// Package dispatcher claims pending command queue entries, runs them through
// a Handler, and records the outcome. Claimed entries are kept fresh by a
// heartbeat so a sweeper on any instance can return abandoned claims to the
// pending status.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
	"github.com/cardinalhq/cmdqueue/internal/heartbeat"
	"github.com/cardinalhq/cmdqueue/internal/idgen"
	"github.com/cardinalhq/cmdqueue/internal/logctx"
)

// Queue is the part of *commandqueue.Queue the dispatcher drives.
type Queue interface {
	ClaimNext(ctx context.Context, from, to commandqueue.StatusRef, commandTypes []commandqueue.CommandTypeRef, now time.Time) (commandqueue.Entry, error)
	Claim(ctx context.Context, id int64, from, to commandqueue.StatusRef, now time.Time) (commandqueue.Entry, error)
	MarkDeleted(ctx context.Context, id int64, now time.Time) error
	Touch(ctx context.Context, ids []int64, status commandqueue.StatusRef, now time.Time) (int64, error)
	ReleaseStale(ctx context.Context, from, to commandqueue.StatusRef, olderThan, now time.Time) ([]int64, error)
	StatusCounts(ctx context.Context) ([]commandqueue.StatusCount, error)
}

var _ Queue = (*commandqueue.Queue)(nil)

const (
	outcomeDone   = "done"
	outcomeFailed = "failed"
	outcomeLost   = "lost"

	finishTimeout = 30 * time.Second
)

type Dispatcher struct {
	cfg        Config
	queue      Queue
	handler    *Router
	types      []commandqueue.CommandTypeRef
	now        func() time.Time
	ll         *slog.Logger
	instanceID string
	depth      *DepthMonitor

	inflight mapset.Set[int64]
	// touchMu is held for the whole of each heartbeat Touch so finish can
	// wait out a Touch that may still carry an id it is about to settle.
	touchMu sync.Mutex
}

type Option func(*Dispatcher)

// WithClock replaces time.Now for every timestamp the dispatcher writes.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func WithLogger(ll *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.ll = ll
	}
}

func WithInstanceID(id string) Option {
	return func(d *Dispatcher) {
		d.instanceID = id
	}
}

func New(cfg Config, queue Queue, router *Router, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher config: %w", err)
	}
	if router == nil || router.Empty() {
		return nil, errors.New("dispatcher needs at least one route or a fallback handler")
	}

	d := &Dispatcher{
		cfg:      cfg,
		queue:    queue,
		handler:  router,
		now:      time.Now,
		ll:       slog.Default(),
		inflight: mapset.NewSet[int64](),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.instanceID == "" {
		d.instanceID = idgen.InstanceID("dispatcher")
	}
	d.ll = d.ll.With(slog.String("instance", d.instanceID))

	// Without a fallback only routed command types are claimed, so entries
	// for other types stay pending for a dispatcher that can run them.
	if !router.HasFallback() {
		d.types = router.CommandTypes()
	}

	depth, err := NewDepthMonitor(queue, d.now)
	if err != nil {
		return nil, err
	}
	d.depth = depth

	return d, nil
}

func (d *Dispatcher) InstanceID() string {
	return d.instanceID
}

// Depth exposes the queue depth cache refreshed while Run is active.
func (d *Dispatcher) Depth() *DepthMonitor {
	return d.depth
}

// InFlight returns the ids currently being handled by this dispatcher.
func (d *Dispatcher) InFlight() []int64 {
	return d.inflight.ToSlice()
}

// Run starts the workers, the claim heartbeat, the stale claim sweeper and
// the depth poller, and blocks until ctx is cancelled or a worker hits an
// error it cannot recover from. Cancellation is a clean shutdown and
// returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.ll.Info("Starting dispatcher",
		slog.Int("workers", d.cfg.Workers),
		slog.Any("commandTypes", d.types),
		slog.Duration("claimTTL", d.cfg.ClaimTTL))

	g, gctx := errgroup.WithContext(ctx)

	stopTouch := heartbeat.New(d.touchInFlight, d.cfg.HeartbeatInterval, d.ll).Start(gctx)
	stopSweep := heartbeat.New(d.sweep, d.cfg.SweepInterval, d.ll).Start(gctx)
	stopDepth := heartbeat.New(d.depth.Refresh, d.cfg.DepthPollInterval, d.ll).Start(gctx)

	for i := range d.cfg.Workers {
		g.Go(func() error {
			return d.worker(gctx, i)
		})
	}

	err := g.Wait()

	stopDepth()
	stopSweep()
	stopTouch()

	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		d.ll.Error("Dispatcher stopped", slog.Any("error", err))
		return err
	}
	d.ll.Info("Dispatcher stopped")
	return nil
}

func (d *Dispatcher) worker(ctx context.Context, n int) error {
	ctx, ll := logctx.With(ctx, slog.Int("worker", n))
	ll.Debug("Worker started")

	for {
		if ctx.Err() != nil {
			return nil
		}
		handled, err := d.ProcessOne(ctx)
		if err != nil {
			return err
		}
		if handled {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

// ProcessOne claims and handles at most one entry. It reports whether an
// entry was claimed. Store outages are retried and then logged, so only
// errors that retrying cannot fix, such as a status missing from the
// catalog, are returned.
func (d *Dispatcher) ProcessOne(ctx context.Context) (bool, error) {
	ll := logctx.FromContext(ctx)

	entry, err := retry(ctx, d.cfg, "claim next", func() (commandqueue.Entry, error) {
		return d.queue.ClaimNext(ctx, d.cfg.Statuses.pending(), d.cfg.Statuses.inProgress(), d.types, d.now())
	})
	switch {
	case err == nil:
	case errors.Is(err, commandqueue.ErrNotFound):
		return false, nil
	case ctx.Err() != nil:
		return false, nil
	case commandqueue.IsRetryable(err):
		ll.Warn("Command queue unavailable, will poll again", slog.Any("error", err))
		return false, nil
	default:
		return false, fmt.Errorf("failed to claim command: %w", err)
	}

	d.inflight.Add(entry.ID())
	recordClaimed(ctx, entry.CommandType())

	ctx, ll = logctx.With(ctx,
		slog.Int64("entryID", entry.ID()),
		slog.Int64("commandType", int64(entry.CommandType())))
	ll.Debug("Claimed command")

	start := time.Now()
	herr := d.handle(ctx, entry)
	elapsed := time.Since(start)

	d.settle(entry.ID())
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if herr != nil && ctx.Err() != nil {
		d.release(finishCtx, entry)
		return true, nil
	}

	outcome := d.finish(finishCtx, entry, herr)
	recordCompleted(ctx, entry.CommandType(), outcome, elapsed)
	return true, nil
}

func (d *Dispatcher) handle(ctx context.Context, entry commandqueue.Entry) error {
	_, err := retry(ctx, d.cfg, "handle", func() (struct{}, error) {
		return struct{}{}, d.handler.Handle(ctx, entry)
	})
	return err
}

// settle takes the entry out of the heartbeat set and waits for any Touch
// already running, so the next timestamp written for it is not older than
// the one the heartbeat wrote.
func (d *Dispatcher) settle(id int64) {
	d.inflight.Remove(id)
	d.touchMu.Lock()
	d.touchMu.Unlock()
}

// finish records the handler outcome and returns the metric outcome label.
func (d *Dispatcher) finish(ctx context.Context, entry commandqueue.Entry, herr error) string {
	ll := logctx.FromContext(ctx)

	to, outcome := d.cfg.Statuses.done(), outcomeDone
	if herr != nil {
		to, outcome = d.cfg.Statuses.failed(), outcomeFailed
		ll.Warn("Command failed", slog.Any("error", herr))
	}

	_, err := retry(ctx, d.cfg, "finish", func() (commandqueue.Entry, error) {
		return d.queue.Claim(ctx, entry.ID(), d.cfg.Statuses.inProgress(), to, d.now())
	})
	if errors.Is(err, commandqueue.ErrClaimConflict) || errors.Is(err, commandqueue.ErrNotFound) {
		ll.Warn("Claim lost before the outcome was recorded", slog.String("outcome", outcome))
		return outcomeLost
	}
	if err != nil {
		ll.Error("Failed to record command outcome; the sweeper will release it",
			slog.String("outcome", outcome), slog.Any("error", err))
		return outcomeLost
	}

	if herr == nil && d.cfg.DeleteOnSuccess {
		_, err := retry(ctx, d.cfg, "mark deleted", func() (struct{}, error) {
			return struct{}{}, d.queue.MarkDeleted(ctx, entry.ID(), d.now())
		})
		if err != nil {
			ll.Error("Failed to mark finished command deleted", slog.Any("error", err))
		}
	}

	ll.Debug("Command finished", slog.String("outcome", outcome))
	return outcome
}

// release hands an interrupted claim back to the pending status.
func (d *Dispatcher) release(ctx context.Context, entry commandqueue.Entry) {
	ll := logctx.FromContext(ctx)
	_, err := d.queue.Claim(ctx, entry.ID(), d.cfg.Statuses.inProgress(), d.cfg.Statuses.pending(), d.now())
	switch {
	case err == nil:
		recordReleased(ctx, "shutdown", 1)
		ll.Info("Released command on shutdown")
	case errors.Is(err, commandqueue.ErrClaimConflict), errors.Is(err, commandqueue.ErrNotFound):
		ll.Debug("Command already moved on before release")
	default:
		ll.Warn("Failed to release command on shutdown; the sweeper will release it", slog.Any("error", err))
	}
}

func (d *Dispatcher) touchInFlight(ctx context.Context) error {
	d.touchMu.Lock()
	defer d.touchMu.Unlock()

	ids := d.inflight.ToSlice()
	if len(ids) == 0 {
		return nil
	}
	n, err := d.queue.Touch(ctx, ids, d.cfg.Statuses.inProgress(), d.now())
	if err != nil {
		return fmt.Errorf("failed to refresh %d claimed commands: %w", len(ids), err)
	}
	if n < int64(len(ids)) {
		d.ll.Warn("Some claimed commands were not refreshed",
			slog.Int("claimed", len(ids)), slog.Int64("refreshed", n))
	}
	return nil
}

func (d *Dispatcher) sweep(ctx context.Context) error {
	now := d.now()
	ids, err := d.queue.ReleaseStale(ctx, d.cfg.Statuses.inProgress(), d.cfg.Statuses.pending(), now.Add(-d.cfg.ClaimTTL), now)
	if err != nil {
		return fmt.Errorf("failed to release stale claims: %w", err)
	}
	if len(ids) > 0 {
		recordReleased(ctx, "stale", len(ids))
		d.ll.Warn("Released stale claims", slog.Int("count", len(ids)), slog.Any("ids", ids))
	}
	return nil
}

// retry runs fn with exponential backoff while it fails with a store outage
// or a handler error marked Retryable. Any other error stops it at once.
func retry[T any](ctx context.Context, cfg Config, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryInitialInterval
	b.MaxInterval = cfg.RetryMaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !commandqueue.IsRetryable(err) && !isRetryableHandlerError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(cfg.RetryMaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logctx.FromContext(ctx).Warn("Retrying",
				slog.String("op", op), slog.Duration("next", next), slog.Any("error", err))
		}),
	)
}
