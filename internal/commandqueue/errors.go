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

package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cardinalhq/cmdqueue/cqdb"
)

var (
	// ErrNotFound means the referenced id does not exist.
	ErrNotFound = errors.New("command queue entry not found")

	// ErrConstraintViolation means a referenced catalog row does not exist,
	// a required field is missing, or a mutation would move modified_ts
	// backwards.
	ErrConstraintViolation = errors.New("command queue constraint violation")

	// ErrStoreUnavailable means the database could not be reached or the
	// transaction could not commit. Callers should retry with backoff.
	ErrStoreUnavailable = errors.New("command queue store unavailable")

	// ErrClaimConflict means a conditional status transition found the
	// entry soft-deleted or in a different status.
	ErrClaimConflict = errors.New("command queue entry not claimable")
)

// IsRetryable reports whether err is worth retrying unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// classify maps a persistence error onto the queue's error taxonomy. The
// original error stays in the chain. Context errors are not classified so
// callers see their own cancellation.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var kind error
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		kind = ErrNotFound
	case errors.Is(err, cqdb.ErrStaleTimestamp):
		kind = ErrConstraintViolation
	case errors.Is(err, cqdb.ErrClaimConflict):
		kind = ErrClaimConflict
	default:
		kind = classifyDriverError(err)
	}

	if kind == nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

func classifyDriverError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code),
			pgerrcode.IsDataException(pgErr.Code):
			return ErrConstraintViolation
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code),
			pgErr.Code == pgerrcode.SerializationFailure,
			pgErr.Code == pgerrcode.DeadlockDetected:
			return ErrStoreUnavailable
		}
		if errors.Is(err, cqdb.ErrCommitFailed) {
			return ErrStoreUnavailable
		}
		return nil
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.Is(err, cqdb.ErrCommitFailed),
		errors.Is(err, pgx.ErrTxCommitRollback),
		errors.As(err, &connectErr),
		errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err):
		return ErrStoreUnavailable
	}
	return nil
}
