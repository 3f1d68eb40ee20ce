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
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/cardinalhq/cmdqueue/cqdb"
)

// fakeDB is an in-memory stand-in for cqdb.Store that enforces the same
// foreign keys, row checks and transactional wrappers.
type fakeDB struct {
	mu         sync.Mutex
	nextID     int64
	rows       map[int64]cqdb.SubsystemCommandQueue
	identities map[int64]bool
	commands   map[int64]bool
	statuses   map[string]bool

	// pageCalls counts CommandQueueListActivePage calls.
	pageCalls int
	// failWith, when set, is returned by every call.
	failWith error
}

var _ DB = (*fakeDB)(nil)

func newFakeDB() *fakeDB {
	return &fakeDB{
		rows:       map[int64]cqdb.SubsystemCommandQueue{},
		identities: map[int64]bool{7: true, 8: true},
		commands:   map[int64]bool{3: true, 4: true},
		statuses:   map[string]bool{"PENDING": true, "IN_PROGRESS": true, "DONE": true, "FAILED": true},
	}
}

func fkViolation(constraint string) error {
	return &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: constraint, Message: "violates foreign key constraint"}
}

func active(row cqdb.SubsystemCommandQueue) bool {
	return !row.MarkedForDelete.Valid || row.MarkedForDelete.Int16 == 0
}

func (f *fakeDB) sorted(keep func(cqdb.SubsystemCommandQueue) bool) []cqdb.SubsystemCommandQueue {
	var out []cqdb.SubsystemCommandQueue
	for _, row := range f.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b cqdb.SubsystemCommandQueue) int { return int(a.ID - b.ID) })
	return out
}

func (f *fakeDB) CommandQueueInsert(_ context.Context, arg cqdb.CommandQueueInsertParams) (cqdb.SubsystemCommandQueue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return cqdb.SubsystemCommandQueue{}, f.failWith
	}
	switch {
	case !f.identities[arg.PersonJwtHistoryID]:
		return cqdb.SubsystemCommandQueue{}, fkViolation("subsystem_command_queue_person_jwt_history_id_fkey")
	case !f.commands[arg.SubsystemCommandID]:
		return cqdb.SubsystemCommandQueue{}, fkViolation("subsystem_command_queue_subsystem_command_id_fkey")
	case !f.statuses[arg.SubsystemCommandStatusID]:
		return cqdb.SubsystemCommandQueue{}, fkViolation("subsystem_command_queue_subsystem_command_status_id_fkey")
	}
	f.nextID++
	row := cqdb.SubsystemCommandQueue{
		ID:                       f.nextID,
		Payload:                  arg.Payload,
		ModifiedTs:               arg.Now,
		CreatedTs:                arg.Now,
		PersonJwtHistoryID:       arg.PersonJwtHistoryID,
		SubsystemCommandID:       arg.SubsystemCommandID,
		SubsystemCommandStatusID: arg.SubsystemCommandStatusID,
	}
	f.rows[row.ID] = row
	return row, nil
}

func (f *fakeDB) CommandQueueGet(_ context.Context, id int64) (cqdb.SubsystemCommandQueue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return cqdb.SubsystemCommandQueue{}, f.failWith
	}
	row, ok := f.rows[id]
	if !ok {
		return cqdb.SubsystemCommandQueue{}, pgx.ErrNoRows
	}
	return row, nil
}

func (f *fakeDB) CommandQueueListActivePage(_ context.Context, arg cqdb.CommandQueueListActivePageParams) ([]cqdb.SubsystemCommandQueue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	rows := f.sorted(func(r cqdb.SubsystemCommandQueue) bool { return active(r) && r.ID > arg.AfterID })
	if len(rows) > int(arg.PageSize) {
		rows = rows[:arg.PageSize]
	}
	return rows, nil
}

func (f *fakeDB) find(keep func(cqdb.SubsystemCommandQueue) bool) ([]cqdb.SubsystemCommandQueue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.sorted(keep), nil
}

func (f *fakeDB) CommandQueueFindByPayload(_ context.Context, payload pgtype.Text) ([]cqdb.SubsystemCommandQueue, error) {
	return f.find(func(r cqdb.SubsystemCommandQueue) bool {
		return r.Payload.Valid && payload.Valid && r.Payload.String == payload.String
	})
}

func (f *fakeDB) CommandQueueFindByModifiedTs(_ context.Context, ts time.Time) ([]cqdb.SubsystemCommandQueue, error) {
	return f.find(func(r cqdb.SubsystemCommandQueue) bool { return r.ModifiedTs.Equal(ts) })
}

func (f *fakeDB) CommandQueueFindByCreatedTs(_ context.Context, ts time.Time) ([]cqdb.SubsystemCommandQueue, error) {
	return f.find(func(r cqdb.SubsystemCommandQueue) bool { return r.CreatedTs.Equal(ts) })
}

func (f *fakeDB) CommandQueueFindByMarkedForDelete(_ context.Context, mark pgtype.Int2) ([]cqdb.SubsystemCommandQueue, error) {
	return f.find(func(r cqdb.SubsystemCommandQueue) bool {
		return r.MarkedForDelete.Valid && mark.Valid && r.MarkedForDelete.Int16 == mark.Int16
	})
}

func (f *fakeDB) CommandQueueFindUnmarked(_ context.Context) ([]cqdb.SubsystemCommandQueue, error) {
	return f.find(func(r cqdb.SubsystemCommandQueue) bool { return !r.MarkedForDelete.Valid })
}

// lockedRow mirrors GetForUpdate plus the timestamp check of the cqdb
// transactional wrappers. Callers hold f.mu.
func (f *fakeDB) lockedRow(id int64, now time.Time) (cqdb.SubsystemCommandQueue, error) {
	if f.failWith != nil {
		return cqdb.SubsystemCommandQueue{}, f.failWith
	}
	row, ok := f.rows[id]
	if !ok {
		return row, pgx.ErrNoRows
	}
	if now.Before(row.ModifiedTs) {
		return row, fmt.Errorf("%w: id %d", cqdb.ErrStaleTimestamp, id)
	}
	return row, nil
}

func (f *fakeDB) setStatus(row cqdb.SubsystemCommandQueue, status string, now time.Time) (cqdb.SubsystemCommandQueue, error) {
	if !f.statuses[status] {
		return row, fkViolation("subsystem_command_queue_subsystem_command_status_id_fkey")
	}
	row.SubsystemCommandStatusID = status
	row.ModifiedTs = now
	f.rows[row.ID] = row
	return row, nil
}

func (f *fakeDB) CommandQueueUpdateStatus(_ context.Context, params cqdb.CommandQueueSetStatusParams) (cqdb.SubsystemCommandQueue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, err := f.lockedRow(params.ID, params.Now)
	if err != nil {
		return cqdb.SubsystemCommandQueue{}, err
	}
	return f.setStatus(row, params.SubsystemCommandStatusID, params.Now)
}

func (f *fakeDB) CommandQueueMarkDeleted(_ context.Context, params cqdb.CommandQueueSetMarkedForDeleteParams) (cqdb.SubsystemCommandQueue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, err := f.lockedRow(params.ID, params.Now)
	if err != nil {
		return cqdb.SubsystemCommandQueue{}, err
	}
	row.MarkedForDelete = pgtype.Int2{Int16: 1, Valid: true}
	row.ModifiedTs = params.Now
	f.rows[row.ID] = row
	return row, nil
}

func (f *fakeDB) CommandQueueClaim(_ context.Context, params cqdb.CommandQueueClaimParams) (cqdb.SubsystemCommandQueue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return cqdb.SubsystemCommandQueue{}, f.failWith
	}
	row, ok := f.rows[params.ID]
	if !ok {
		return row, pgx.ErrNoRows
	}
	if !active(row) || row.SubsystemCommandStatusID != params.FromStatus {
		return cqdb.SubsystemCommandQueue{}, fmt.Errorf("%w: id %d", cqdb.ErrClaimConflict, row.ID)
	}
	if _, err := f.lockedRow(params.ID, params.Now); err != nil {
		return cqdb.SubsystemCommandQueue{}, err
	}
	return f.setStatus(row, params.ToStatus, params.Now)
}

func (f *fakeDB) CommandQueueClaimNext(_ context.Context, params cqdb.CommandQueueClaimNextCandidateParams, toStatus string) (cqdb.SubsystemCommandQueue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return cqdb.SubsystemCommandQueue{}, f.failWith
	}
	rows := f.sorted(func(r cqdb.SubsystemCommandQueue) bool {
		return active(r) &&
			r.SubsystemCommandStatusID == params.FromStatus &&
			(len(params.CommandTypes) == 0 || slices.Contains(params.CommandTypes, r.SubsystemCommandID)) &&
			!r.ModifiedTs.After(params.Now)
	})
	if len(rows) == 0 {
		return cqdb.SubsystemCommandQueue{}, pgx.ErrNoRows
	}
	return f.setStatus(rows[0], toStatus, params.Now)
}

func (f *fakeDB) CommandQueueTouch(_ context.Context, arg cqdb.CommandQueueTouchParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	var n int64
	for _, id := range arg.Ids {
		row, ok := f.rows[id]
		if !ok || !active(row) || row.SubsystemCommandStatusID != arg.Status || row.ModifiedTs.After(arg.Now) {
			continue
		}
		row.ModifiedTs = arg.Now
		f.rows[id] = row
		n++
	}
	return n, nil
}

func (f *fakeDB) CommandQueueReleaseStale(_ context.Context, arg cqdb.CommandQueueReleaseStaleParams) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var ids []int64
	for _, row := range f.sorted(func(r cqdb.SubsystemCommandQueue) bool {
		return active(r) && r.SubsystemCommandStatusID == arg.FromStatus &&
			r.ModifiedTs.Before(arg.OlderThan) && !r.ModifiedTs.After(arg.Now)
	}) {
		row.SubsystemCommandStatusID = arg.ToStatus
		row.ModifiedTs = arg.Now
		f.rows[row.ID] = row
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (f *fakeDB) CommandQueueStatusCounts(_ context.Context) ([]cqdb.CommandQueueStatusCountsRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	type key struct {
		ct     int64
		status string
	}
	counts := map[key]*cqdb.CommandQueueStatusCountsRow{}
	for _, row := range f.sorted(active) {
		k := key{row.SubsystemCommandID, row.SubsystemCommandStatusID}
		c, ok := counts[k]
		if !ok {
			c = &cqdb.CommandQueueStatusCountsRow{SubsystemCommandID: k.ct, SubsystemCommandStatusID: k.status, OldestCreatedTs: row.CreatedTs}
			counts[k] = c
		}
		c.Entries++
		if row.CreatedTs.Before(c.OldestCreatedTs) {
			c.OldestCreatedTs = row.CreatedTs
		}
	}
	out := make([]cqdb.CommandQueueStatusCountsRow, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b cqdb.CommandQueueStatusCountsRow) int {
		if a.SubsystemCommandID != b.SubsystemCommandID {
			return int(a.SubsystemCommandID - b.SubsystemCommandID)
		}
		if a.SubsystemCommandStatusID < b.SubsystemCommandStatusID {
			return -1
		}
		if a.SubsystemCommandStatusID > b.SubsystemCommandStatusID {
			return 1
		}
		return 0
	})
	return out, nil
}
