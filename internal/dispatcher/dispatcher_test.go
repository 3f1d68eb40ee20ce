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
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/cmdqueue/cqdb"
	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) ClaimNext(ctx context.Context, from, to commandqueue.StatusRef, commandTypes []commandqueue.CommandTypeRef, now time.Time) (commandqueue.Entry, error) {
	args := m.Called(ctx, from, to, commandTypes, now)
	return args.Get(0).(commandqueue.Entry), args.Error(1)
}

func (m *mockQueue) Claim(ctx context.Context, id int64, from, to commandqueue.StatusRef, now time.Time) (commandqueue.Entry, error) {
	args := m.Called(ctx, id, from, to, now)
	return args.Get(0).(commandqueue.Entry), args.Error(1)
}

func (m *mockQueue) MarkDeleted(ctx context.Context, id int64, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *mockQueue) Touch(ctx context.Context, ids []int64, status commandqueue.StatusRef, now time.Time) (int64, error) {
	args := m.Called(ctx, ids, status, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockQueue) ReleaseStale(ctx context.Context, from, to commandqueue.StatusRef, olderThan, now time.Time) ([]int64, error) {
	args := m.Called(ctx, from, to, olderThan, now)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *mockQueue) StatusCounts(ctx context.Context) ([]commandqueue.StatusCount, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).([]commandqueue.StatusCount)
	return counts, args.Error(1)
}

var testNow = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.PollInterval = 5 * time.Millisecond
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.ClaimTTL = time.Minute
	cfg.SweepInterval = 10 * time.Millisecond
	cfg.DepthPollInterval = 10 * time.Millisecond
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 2 * time.Millisecond
	cfg.RetryMaxElapsed = 50 * time.Millisecond
	return cfg
}

func testEntry(id int64, commandType int64) commandqueue.Entry {
	return commandqueue.EntryFromRow(cqdb.SubsystemCommandQueue{
		ID:                       id,
		Payload:                  pgtype.Text{String: fmt.Sprintf(`{"n":%d}`, id), Valid: true},
		MarkedForDelete:          pgtype.Int2{Int16: 0, Valid: true},
		CreatedTs:                testNow.Add(-time.Hour),
		ModifiedTs:               testNow.Add(-time.Hour),
		PersonJwtHistoryID:       7,
		SubsystemCommandID:       commandType,
		SubsystemCommandStatusID: "IN_PROGRESS",
	})
}

func newTestDispatcher(t *testing.T, cfg Config, q Queue, router *Router) *Dispatcher {
	t.Helper()
	d, err := New(cfg, q, router, WithClock(func() time.Time { return testNow }), WithInstanceID("dispatcher-test"))
	require.NoError(t, err)
	return d
}

func okRouter() *Router {
	return NewRouter().Fallback(HandlerFunc(func(context.Context, commandqueue.Entry) error { return nil }))
}

func storeDown() error {
	return fmt.Errorf("claim next: %w: connection refused", commandqueue.ErrStoreUnavailable)
}

func TestNew_Validation(t *testing.T) {
	q := &mockQueue{}

	_, err := New(testConfig(), q, NewRouter())
	assert.Error(t, err, "router without routes")

	cfg := testConfig()
	cfg.Workers = 0
	_, err = New(cfg, q, okRouter())
	assert.Error(t, err)

	d, err := New(testConfig(), q, okRouter())
	require.NoError(t, err)
	assert.Contains(t, d.InstanceID(), "dispatcher-")
}

func TestProcessOne(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name        string
		handlerErrs []error
		finishTo    commandqueue.StatusRef
		finishErr   error
		deleteOnOK  bool
		wantCalls   int
	}{
		{name: "success marks done", handlerErrs: []error{nil}, finishTo: "DONE", wantCalls: 1},
		{name: "failure marks failed", handlerErrs: []error{boom}, finishTo: "FAILED", wantCalls: 1},
		{name: "retryable failure retried then done", handlerErrs: []error{Retryable(boom), Retryable(boom), nil}, finishTo: "DONE", wantCalls: 3},
		{name: "success with delete", handlerErrs: []error{nil}, finishTo: "DONE", deleteOnOK: true, wantCalls: 1},
		{name: "lost claim is not an error", handlerErrs: []error{nil}, finishTo: "DONE", finishErr: commandqueue.ErrClaimConflict, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.DeleteOnSuccess = tt.deleteOnOK
			entry := testEntry(42, 3)

			q := &mockQueue{}
			q.On("ClaimNext", mock.Anything, commandqueue.StatusRef("PENDING"), commandqueue.StatusRef("IN_PROGRESS"), []commandqueue.CommandTypeRef(nil), testNow).
				Return(entry, nil).Once()
			q.On("Claim", mock.Anything, int64(42), commandqueue.StatusRef("IN_PROGRESS"), tt.finishTo, testNow).
				Return(commandqueue.Entry{}, tt.finishErr).Once()
			if tt.deleteOnOK {
				q.On("MarkDeleted", mock.Anything, int64(42), testNow).Return(nil).Once()
			}

			var calls atomic.Int32
			router := NewRouter().Fallback(HandlerFunc(func(_ context.Context, e commandqueue.Entry) error {
				assert.Equal(t, int64(42), e.ID())
				n := calls.Add(1)
				return tt.handlerErrs[n-1]
			}))

			d := newTestDispatcher(t, cfg, q, router)
			handled, err := d.ProcessOne(t.Context())
			require.NoError(t, err)
			assert.True(t, handled)
			assert.Equal(t, int32(tt.wantCalls), calls.Load())
			assert.Empty(t, d.InFlight())
			q.AssertExpectations(t)
		})
	}
}

func TestProcessOne_NothingClaimable(t *testing.T) {
	q := &mockQueue{}
	q.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(commandqueue.Entry{}, fmt.Errorf("claim next: %w", commandqueue.ErrNotFound)).Once()

	d := newTestDispatcher(t, testConfig(), q, okRouter())
	handled, err := d.ProcessOne(t.Context())
	require.NoError(t, err)
	assert.False(t, handled)
	q.AssertExpectations(t)
}

func TestProcessOne_StoreOutageIsRetried(t *testing.T) {
	entry := testEntry(5, 3)
	q := &mockQueue{}
	q.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(commandqueue.Entry{}, storeDown()).Twice()
	q.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(entry, nil).Once()
	q.On("Claim", mock.Anything, int64(5), commandqueue.StatusRef("IN_PROGRESS"), commandqueue.StatusRef("DONE"), testNow).
		Return(commandqueue.Entry{}, nil).Once()

	d := newTestDispatcher(t, testConfig(), q, okRouter())
	handled, err := d.ProcessOne(t.Context())
	require.NoError(t, err)
	assert.True(t, handled)
	q.AssertExpectations(t)
}

func TestProcessOne_PersistentOutageIsNotFatal(t *testing.T) {
	q := &mockQueue{}
	q.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(commandqueue.Entry{}, storeDown())

	d := newTestDispatcher(t, testConfig(), q, okRouter())
	handled, err := d.ProcessOne(t.Context())
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestProcessOne_ConstraintViolationIsFatal(t *testing.T) {
	q := &mockQueue{}
	q.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(commandqueue.Entry{}, fmt.Errorf("claim next: %w: status missing", commandqueue.ErrConstraintViolation)).Once()

	d := newTestDispatcher(t, testConfig(), q, okRouter())
	_, err := d.ProcessOne(t.Context())
	require.ErrorIs(t, err, commandqueue.ErrConstraintViolation)
	q.AssertExpectations(t)
}

func TestProcessOne_ReleasesOnCancel(t *testing.T) {
	entry := testEntry(9, 3)
	q := &mockQueue{}
	q.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(entry, nil).Once()
	q.On("Claim", mock.Anything, int64(9), commandqueue.StatusRef("IN_PROGRESS"), commandqueue.StatusRef("PENDING"), testNow).
		Return(commandqueue.Entry{}, nil).Once()

	ctx, cancel := context.WithCancel(t.Context())
	router := NewRouter().Fallback(HandlerFunc(func(ctx context.Context, _ commandqueue.Entry) error {
		cancel()
		return ctx.Err()
	}))

	d := newTestDispatcher(t, testConfig(), q, router)
	handled, err := d.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	q.AssertExpectations(t)
}

func TestProcessOne_UnroutedCommandTypeFails(t *testing.T) {
	entry := testEntry(11, 4)
	q := &mockQueue{}
	q.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything, []commandqueue.CommandTypeRef{3}, mock.Anything).
		Return(entry, nil).Once()
	q.On("Claim", mock.Anything, int64(11), commandqueue.StatusRef("IN_PROGRESS"), commandqueue.StatusRef("FAILED"), testNow).
		Return(commandqueue.Entry{}, nil).Once()

	router := NewRouter().Route(3, HandlerFunc(func(context.Context, commandqueue.Entry) error { return nil }))
	d := newTestDispatcher(t, testConfig(), q, router)
	handled, err := d.ProcessOne(t.Context())
	require.NoError(t, err)
	assert.True(t, handled)
	q.AssertExpectations(t)
}

func TestSweep(t *testing.T) {
	cfg := testConfig()
	q := &mockQueue{}
	q.On("ReleaseStale", mock.Anything, commandqueue.StatusRef("IN_PROGRESS"), commandqueue.StatusRef("PENDING"), testNow.Add(-cfg.ClaimTTL), testNow).
		Return([]int64{1, 2}, nil).Once()

	d := newTestDispatcher(t, cfg, q, okRouter())
	require.NoError(t, d.sweep(t.Context()))
	q.AssertExpectations(t)
}

func TestTouchInFlight(t *testing.T) {
	q := &mockQueue{}
	d := newTestDispatcher(t, testConfig(), q, okRouter())

	// Nothing in flight, nothing touched.
	require.NoError(t, d.touchInFlight(t.Context()))

	d.inflight.Add(4)
	q.On("Touch", mock.Anything, []int64{4}, commandqueue.StatusRef("IN_PROGRESS"), testNow).Return(int64(1), nil).Once()
	require.NoError(t, d.touchInFlight(t.Context()))

	q.On("Touch", mock.Anything, []int64{4}, commandqueue.StatusRef("IN_PROGRESS"), testNow).Return(int64(0), storeDown()).Once()
	assert.ErrorIs(t, d.touchInFlight(t.Context()), commandqueue.ErrStoreUnavailable)

	q.AssertExpectations(t)
}

func TestRun_StopsCleanlyOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2
	entry := testEntry(1, 3)

	q := &mockQueue{}
	q.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(entry, nil).Once()
	q.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(commandqueue.Entry{}, commandqueue.ErrNotFound)
	q.On("Claim", mock.Anything, int64(1), commandqueue.StatusRef("IN_PROGRESS"), commandqueue.StatusRef("DONE"), testNow).
		Return(commandqueue.Entry{}, nil).Once()
	q.On("Touch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(1), nil).Maybe()
	q.On("ReleaseStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]int64(nil), nil)
	q.On("StatusCounts", mock.Anything).Return([]commandqueue.StatusCount{
		{CommandType: 3, Status: "DONE", Entries: 1, OldestCreated: testNow.Add(-time.Hour)},
	}, nil)

	var handled atomic.Bool
	router := NewRouter().Route(3, HandlerFunc(func(context.Context, commandqueue.Entry) error {
		handled.Store(true)
		return nil
	}))

	d := newTestDispatcher(t, cfg, q, router)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return handled.Load() && d.Depth().Depth(3, "DONE") == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	q.AssertExpectations(t)
}

func TestRun_ReturnsFatalError(t *testing.T) {
	q := &mockQueue{}
	q.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(commandqueue.Entry{}, fmt.Errorf("claim next: %w", commandqueue.ErrConstraintViolation))
	q.On("ReleaseStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]int64(nil), nil).Maybe()
	q.On("StatusCounts", mock.Anything).Return([]commandqueue.StatusCount(nil), nil).Maybe()

	d := newTestDispatcher(t, testConfig(), q, okRouter())
	err := d.Run(t.Context())
	assert.ErrorIs(t, err, commandqueue.ErrConstraintViolation)
}
