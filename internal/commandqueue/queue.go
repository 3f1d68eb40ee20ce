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

// Package commandqueue is the durable subsystem command queue: producers
// enqueue commands, consumers move them through status codes, and entries
// are soft-deleted rather than removed.
//
// Every mutation runs in a single database transaction, refreshes the
// entry's modified timestamp to the caller-supplied now, and refuses a now
// that is earlier than the timestamp already stored.
package commandqueue

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/cardinalhq/cmdqueue/cqdb"
)

// DB is the subset of cqdb.StoreFull the queue needs.
type DB interface {
	CommandQueueInsert(ctx context.Context, arg cqdb.CommandQueueInsertParams) (cqdb.SubsystemCommandQueue, error)
	CommandQueueGet(ctx context.Context, id int64) (cqdb.SubsystemCommandQueue, error)
	CommandQueueListActivePage(ctx context.Context, arg cqdb.CommandQueueListActivePageParams) ([]cqdb.SubsystemCommandQueue, error)
	CommandQueueFindByPayload(ctx context.Context, payload pgtype.Text) ([]cqdb.SubsystemCommandQueue, error)
	CommandQueueFindByModifiedTs(ctx context.Context, modifiedTs time.Time) ([]cqdb.SubsystemCommandQueue, error)
	CommandQueueFindByCreatedTs(ctx context.Context, createdTs time.Time) ([]cqdb.SubsystemCommandQueue, error)
	CommandQueueFindByMarkedForDelete(ctx context.Context, markedForDelete pgtype.Int2) ([]cqdb.SubsystemCommandQueue, error)
	CommandQueueFindUnmarked(ctx context.Context) ([]cqdb.SubsystemCommandQueue, error)
	CommandQueueUpdateStatus(ctx context.Context, params cqdb.CommandQueueSetStatusParams) (cqdb.SubsystemCommandQueue, error)
	CommandQueueMarkDeleted(ctx context.Context, params cqdb.CommandQueueSetMarkedForDeleteParams) (cqdb.SubsystemCommandQueue, error)
	CommandQueueClaim(ctx context.Context, params cqdb.CommandQueueClaimParams) (cqdb.SubsystemCommandQueue, error)
	CommandQueueClaimNext(ctx context.Context, params cqdb.CommandQueueClaimNextCandidateParams, toStatus string) (cqdb.SubsystemCommandQueue, error)
	CommandQueueTouch(ctx context.Context, arg cqdb.CommandQueueTouchParams) (int64, error)
	CommandQueueReleaseStale(ctx context.Context, arg cqdb.CommandQueueReleaseStaleParams) ([]int64, error)
	CommandQueueStatusCounts(ctx context.Context) ([]cqdb.CommandQueueStatusCountsRow, error)
}

var _ DB = (cqdb.StoreFull)(nil)

const DefaultPageSize = 500

type Queue struct {
	db       DB
	pageSize int32
}

type Option func(*Queue)

// WithPageSize sets how many rows FindAllActive fetches per query.
func WithPageSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.pageSize = int32(min(n, 1<<20))
		}
	}
}

func New(db DB, opts ...Option) *Queue {
	q := &Queue{db: db, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// normalizeTime is the exact value written: UTC, truncated to the
// microsecond resolution of TIMESTAMPTZ.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func checkNow(now time.Time) (time.Time, error) {
	if now.IsZero() {
		return now, fmt.Errorf("%w: timestamp is required", ErrConstraintViolation)
	}
	return normalizeTime(now), nil
}

// Enqueue stores a new command with created and modified set to now and
// the delete mark unset.
func (q *Queue) Enqueue(ctx context.Context, d Draft, now time.Time) (Entry, error) {
	if err := d.Validate(); err != nil {
		return Entry{}, err
	}
	now, err := checkNow(now)
	if err != nil {
		return Entry{}, err
	}

	row, err := q.db.CommandQueueInsert(ctx, cqdb.CommandQueueInsertParams{
		Payload:                  pgtype.Text{String: d.Payload, Valid: true},
		Now:                      now,
		PersonJwtHistoryID:       int64(d.Identity),
		SubsystemCommandID:       int64(d.CommandType),
		SubsystemCommandStatusID: string(d.Status),
	})
	if err != nil {
		return Entry{}, classify("enqueue", err)
	}
	return EntryFromRow(row), nil
}

// FindByID returns the entry whether or not it has been soft-deleted.
func (q *Queue) FindByID(ctx context.Context, id int64) (Entry, error) {
	row, err := q.db.CommandQueueGet(ctx, id)
	if err != nil {
		return Entry{}, classify(fmt.Sprintf("find id %d", id), err)
	}
	return EntryFromRow(row), nil
}

// FindAllActive lazily yields every entry that is not soft-deleted, in id
// order. Rows are read a page at a time and each range starts a fresh
// query, so an entry is yielded at most once per range and entries added
// behind the cursor are picked up. A failed page is yielded as an error
// and ends the sequence.
func (q *Queue) FindAllActive(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		var afterID int64
		for {
			rows, err := q.db.CommandQueueListActivePage(ctx, cqdb.CommandQueueListActivePageParams{
				AfterID:  afterID,
				PageSize: q.pageSize,
			})
			if err != nil {
				yield(Entry{}, classify("find active", err))
				return
			}
			for _, row := range rows {
				if !yield(EntryFromRow(row), nil) {
					return
				}
				afterID = row.ID
			}
			if len(rows) < int(q.pageSize) {
				return
			}
		}
	}
}

// FindByPayload matches the payload exactly. NULL payloads never match.
func (q *Queue) FindByPayload(ctx context.Context, payload string) ([]Entry, error) {
	rows, err := q.db.CommandQueueFindByPayload(ctx, pgtype.Text{String: payload, Valid: true})
	if err != nil {
		return nil, classify("find by payload", err)
	}
	return entriesFromRows(rows), nil
}

func (q *Queue) FindByModifiedTimestamp(ctx context.Context, ts time.Time) ([]Entry, error) {
	rows, err := q.db.CommandQueueFindByModifiedTs(ctx, normalizeTime(ts))
	if err != nil {
		return nil, classify("find by modified timestamp", err)
	}
	return entriesFromRows(rows), nil
}

func (q *Queue) FindByCreatedTimestamp(ctx context.Context, ts time.Time) ([]Entry, error) {
	rows, err := q.db.CommandQueueFindByCreatedTs(ctx, normalizeTime(ts))
	if err != nil {
		return nil, classify("find by created timestamp", err)
	}
	return entriesFromRows(rows), nil
}

// FindByMarkedForDelete matches the flag exactly; DeleteMarkUnset matches
// rows whose flag is NULL.
func (q *Queue) FindByMarkedForDelete(ctx context.Context, mark DeleteMark) ([]Entry, error) {
	var (
		rows []cqdb.SubsystemCommandQueue
		err  error
	)
	if mark == DeleteMarkUnset {
		rows, err = q.db.CommandQueueFindUnmarked(ctx)
	} else {
		rows, err = q.db.CommandQueueFindByMarkedForDelete(ctx, mark.int2())
	}
	if err != nil {
		return nil, classify("find by delete mark", err)
	}
	return entriesFromRows(rows), nil
}

// UpdateStatus replaces the status and sets modified to now in one
// transaction. Any status code known to the catalog is accepted.
func (q *Queue) UpdateStatus(ctx context.Context, id int64, status StatusRef, now time.Time) error {
	_, err := q.updateStatus(ctx, id, status, now)
	return err
}

func (q *Queue) updateStatus(ctx context.Context, id int64, status StatusRef, now time.Time) (Entry, error) {
	if status == "" {
		return Entry{}, fmt.Errorf("%w: status is required", ErrConstraintViolation)
	}
	now, err := checkNow(now)
	if err != nil {
		return Entry{}, err
	}
	row, err := q.db.CommandQueueUpdateStatus(ctx, cqdb.CommandQueueSetStatusParams{
		SubsystemCommandStatusID: string(status),
		Now:                      now,
		ID:                       id,
	})
	if err != nil {
		return Entry{}, classify(fmt.Sprintf("update status of id %d", id), err)
	}
	return EntryFromRow(row), nil
}

// MarkDeleted soft-deletes the entry. Repeating it only refreshes modified.
func (q *Queue) MarkDeleted(ctx context.Context, id int64, now time.Time) error {
	now, err := checkNow(now)
	if err != nil {
		return err
	}
	_, err = q.db.CommandQueueMarkDeleted(ctx, cqdb.CommandQueueSetMarkedForDeleteParams{
		Now: now,
		ID:  id,
	})
	if err != nil {
		return classify(fmt.Sprintf("mark id %d deleted", id), err)
	}
	return nil
}

// Claim moves an active entry from one status to another only if it is
// currently in from. ErrClaimConflict means someone else got there first.
func (q *Queue) Claim(ctx context.Context, id int64, from, to StatusRef, now time.Time) (Entry, error) {
	if from == "" || to == "" {
		return Entry{}, fmt.Errorf("%w: from and to statuses are required", ErrConstraintViolation)
	}
	now, err := checkNow(now)
	if err != nil {
		return Entry{}, err
	}
	row, err := q.db.CommandQueueClaim(ctx, cqdb.CommandQueueClaimParams{
		ID:         id,
		FromStatus: string(from),
		ToStatus:   string(to),
		Now:        now,
	})
	if err != nil {
		return Entry{}, classify(fmt.Sprintf("claim id %d", id), err)
	}
	return EntryFromRow(row), nil
}

// ClaimNext claims the lowest id active entry in from, limited to the given
// command types when any are passed. Entries locked by a concurrent claimer
// are skipped. ErrNotFound means nothing is claimable right now.
func (q *Queue) ClaimNext(ctx context.Context, from, to StatusRef, commandTypes []CommandTypeRef, now time.Time) (Entry, error) {
	if from == "" || to == "" {
		return Entry{}, fmt.Errorf("%w: from and to statuses are required", ErrConstraintViolation)
	}
	now, err := checkNow(now)
	if err != nil {
		return Entry{}, err
	}
	types := make([]int64, 0, len(commandTypes))
	for _, ct := range commandTypes {
		types = append(types, int64(ct))
	}
	row, err := q.db.CommandQueueClaimNext(ctx, cqdb.CommandQueueClaimNextCandidateParams{
		FromStatus:   string(from),
		CommandTypes: types,
		Now:          now,
	}, string(to))
	if err != nil {
		return Entry{}, classify("claim next", err)
	}
	return EntryFromRow(row), nil
}

// Touch refreshes modified on the given entries that are still active and
// in status, and returns how many were refreshed.
func (q *Queue) Touch(ctx context.Context, ids []int64, status StatusRef, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now, err := checkNow(now)
	if err != nil {
		return 0, err
	}
	n, err := q.db.CommandQueueTouch(ctx, cqdb.CommandQueueTouchParams{
		Now:    now,
		Ids:    ids,
		Status: string(status),
	})
	if err != nil {
		return 0, classify("touch", err)
	}
	return n, nil
}

// ReleaseStale moves active entries that have sat in from since before
// olderThan over to to, and returns their ids.
func (q *Queue) ReleaseStale(ctx context.Context, from, to StatusRef, olderThan, now time.Time) ([]int64, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: from and to statuses are required", ErrConstraintViolation)
	}
	now, err := checkNow(now)
	if err != nil {
		return nil, err
	}
	ids, err := q.db.CommandQueueReleaseStale(ctx, cqdb.CommandQueueReleaseStaleParams{
		ToStatus:   string(to),
		Now:        now,
		FromStatus: string(from),
		OlderThan:  normalizeTime(olderThan),
	})
	if err != nil {
		return nil, classify("release stale", err)
	}
	return ids, nil
}

// StatusCounts groups active entries by command type and status.
func (q *Queue) StatusCounts(ctx context.Context) ([]StatusCount, error) {
	rows, err := q.db.CommandQueueStatusCounts(ctx)
	if err != nil {
		return nil, classify("status counts", err)
	}
	counts := make([]StatusCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, StatusCount{
			CommandType:   CommandTypeRef(row.SubsystemCommandID),
			Status:        StatusRef(row.SubsystemCommandStatusID),
			Entries:       row.Entries,
			OldestCreated: row.OldestCreatedTs.UTC(),
		})
	}
	return counts, nil
}
