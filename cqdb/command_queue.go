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

package cqdb

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCommitFailed wraps any error returned while committing a transaction.
	ErrCommitFailed = errors.New("transaction commit failed")

	// ErrStaleTimestamp is returned when a mutation would move modified_ts
	// backwards for a row.
	ErrStaleTimestamp = errors.New("timestamp is older than the row's modified_ts")

	// ErrClaimConflict is returned when a conditional status transition finds
	// the row soft-deleted or in a status other than the expected one.
	ErrClaimConflict = errors.New("row is not in the expected status")
)

// CommandQueueClaimParams describes a conditional status transition.
type CommandQueueClaimParams struct {
	ID         int64
	FromStatus string
	ToStatus   string
	Now        time.Time
}

func isActiveRow(row SubsystemCommandQueue) bool {
	return !row.MarkedForDelete.Valid || row.MarkedForDelete.Int16 == 0
}

func checkTimestamp(row SubsystemCommandQueue, now time.Time) error {
	if now.Before(row.ModifiedTs) {
		return fmt.Errorf("%w: id %d modified_ts %s, requested %s",
			ErrStaleTimestamp, row.ID, row.ModifiedTs.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	}
	return nil
}

// CommandQueueUpdateStatus replaces the status and modified_ts of a row in a
// single transaction. The row is locked first so concurrent writers to the
// same id serialize.
func (q *Store) CommandQueueUpdateStatus(ctx context.Context, params CommandQueueSetStatusParams) (SubsystemCommandQueue, error) {
	var result SubsystemCommandQueue
	err := q.execTx(ctx, func(s *Store) error {
		row, err := s.CommandQueueGetForUpdate(ctx, params.ID)
		if err != nil {
			return err
		}
		if err := checkTimestamp(row, params.Now); err != nil {
			return err
		}
		result, err = s.CommandQueueSetStatus(ctx, params)
		return err
	})
	return result, err
}

// CommandQueueMarkDeleted sets marked_for_delete to 1 and refreshes
// modified_ts. Marking an already deleted row only refreshes the timestamp.
func (q *Store) CommandQueueMarkDeleted(ctx context.Context, params CommandQueueSetMarkedForDeleteParams) (SubsystemCommandQueue, error) {
	var result SubsystemCommandQueue
	err := q.execTx(ctx, func(s *Store) error {
		row, err := s.CommandQueueGetForUpdate(ctx, params.ID)
		if err != nil {
			return err
		}
		if err := checkTimestamp(row, params.Now); err != nil {
			return err
		}
		result, err = s.CommandQueueSetMarkedForDelete(ctx, params)
		return err
	})
	return result, err
}

// CommandQueueClaim moves an active row from FromStatus to ToStatus. If the
// row exists but is deleted or in another status, ErrClaimConflict is returned
// and nothing changes.
func (q *Store) CommandQueueClaim(ctx context.Context, params CommandQueueClaimParams) (SubsystemCommandQueue, error) {
	var result SubsystemCommandQueue
	err := q.execTx(ctx, func(s *Store) error {
		row, err := s.CommandQueueGetForUpdate(ctx, params.ID)
		if err != nil {
			return err
		}
		if !isActiveRow(row) || row.SubsystemCommandStatusID != params.FromStatus {
			return fmt.Errorf("%w: id %d has status %q", ErrClaimConflict, row.ID, row.SubsystemCommandStatusID)
		}
		if err := checkTimestamp(row, params.Now); err != nil {
			return err
		}
		result, err = s.CommandQueueSetStatus(ctx, CommandQueueSetStatusParams{
			SubsystemCommandStatusID: params.ToStatus,
			Now:                      params.Now,
			ID:                       params.ID,
		})
		return err
	})
	return result, err
}

// CommandQueueClaimNext picks the lowest id active row in the candidate
// status, skipping rows locked by other transactions, and moves it to
// toStatus. pgx.ErrNoRows is returned when nothing is claimable.
func (q *Store) CommandQueueClaimNext(ctx context.Context, params CommandQueueClaimNextCandidateParams, toStatus string) (SubsystemCommandQueue, error) {
	var result SubsystemCommandQueue
	err := q.execTx(ctx, func(s *Store) error {
		row, err := s.CommandQueueClaimNextCandidate(ctx, params)
		if err != nil {
			return err
		}
		result, err = s.CommandQueueSetStatus(ctx, CommandQueueSetStatusParams{
			SubsystemCommandStatusID: toStatus,
			Now:                      params.Now,
			ID:                       row.ID,
		})
		return err
	})
	return result, err
}
