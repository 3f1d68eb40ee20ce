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
	"log/slog"
	"slices"

	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
	"github.com/cardinalhq/cmdqueue/internal/logctx"
)

// ErrNoHandler is recorded when an entry's command type has no route.
var ErrNoHandler = errors.New("no handler for command type")

// Handler carries out one claimed command. A nil return marks the entry
// done; any error marks it failed unless it was wrapped with Retryable and
// a later attempt succeeds.
type Handler interface {
	Handle(ctx context.Context, entry commandqueue.Entry) error
}

type HandlerFunc func(ctx context.Context, entry commandqueue.Entry) error

func (f HandlerFunc) Handle(ctx context.Context, entry commandqueue.Entry) error {
	return f(ctx, entry)
}

type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Retryable marks a handler error as transient; the dispatcher retries the
// handler with backoff before giving up.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

func isRetryableHandlerError(err error) bool {
	var r retryableError
	return errors.As(err, &r)
}

// Router picks a handler by command type.
type Router struct {
	routes   map[commandqueue.CommandTypeRef]Handler
	fallback Handler
}

func NewRouter() *Router {
	return &Router{routes: map[commandqueue.CommandTypeRef]Handler{}}
}

func (r *Router) Route(ct commandqueue.CommandTypeRef, h Handler) *Router {
	r.routes[ct] = h
	return r
}

// Fallback handles every command type without its own route.
func (r *Router) Fallback(h Handler) *Router {
	r.fallback = h
	return r
}

func (r *Router) HasFallback() bool {
	return r.fallback != nil
}

func (r *Router) Empty() bool {
	return len(r.routes) == 0 && r.fallback == nil
}

// CommandTypes lists the routed command types in ascending order.
func (r *Router) CommandTypes() []commandqueue.CommandTypeRef {
	types := make([]commandqueue.CommandTypeRef, 0, len(r.routes))
	for ct := range r.routes {
		types = append(types, ct)
	}
	slices.Sort(types)
	return types
}

func (r *Router) Handle(ctx context.Context, entry commandqueue.Entry) error {
	if h, ok := r.routes[entry.CommandType()]; ok {
		return h.Handle(ctx, entry)
	}
	if r.fallback != nil {
		return r.fallback.Handle(ctx, entry)
	}
	return fmt.Errorf("%w %d", ErrNoHandler, entry.CommandType())
}

// LogHandler logs the command and reports success.
type LogHandler struct {
	Level slog.Level
}

func (h LogHandler) Handle(ctx context.Context, entry commandqueue.Entry) error {
	logctx.FromContext(ctx).Log(ctx, h.Level, "Handled command",
		slog.Int64("identity", int64(entry.Identity())),
		slog.Int("payloadBytes", len(entry.Payload())))
	return nil
}
