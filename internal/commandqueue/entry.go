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
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/cardinalhq/cmdqueue/cqdb"
)

// IdentityRef points at the identity (person_jwt_history) that issued a command.
type IdentityRef int64

// CommandTypeRef points at a row of the command type catalog.
type CommandTypeRef int64

// StatusRef is a status catalog code such as "PENDING". The queue does not
// interpret it.
type StatusRef string

// DeleteMark is the tri-state soft delete flag. The zero value is unset,
// which is stored as NULL.
type DeleteMark uint8

const (
	DeleteMarkUnset DeleteMark = iota
	DeleteMarkActive
	DeleteMarkDeleted
)

func (m DeleteMark) String() string {
	switch m {
	case DeleteMarkActive:
		return "0"
	case DeleteMarkDeleted:
		return "1"
	default:
		return "unset"
	}
}

// IsDeleted reports whether the entry is excluded from active queries.
func (m DeleteMark) IsDeleted() bool {
	return m == DeleteMarkDeleted
}

// ParseDeleteMark accepts "unset", "null", "0" and "1".
func ParseDeleteMark(s string) (DeleteMark, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unset", "null":
		return DeleteMarkUnset, nil
	case "0":
		return DeleteMarkActive, nil
	case "1":
		return DeleteMarkDeleted, nil
	default:
		return DeleteMarkUnset, fmt.Errorf("invalid delete mark %q (want unset, 0 or 1)", s)
	}
}

func (m DeleteMark) int2() pgtype.Int2 {
	switch m {
	case DeleteMarkActive:
		return pgtype.Int2{Int16: 0, Valid: true}
	case DeleteMarkDeleted:
		return pgtype.Int2{Int16: 1, Valid: true}
	default:
		return pgtype.Int2{}
	}
}

func deleteMarkFromInt2(v pgtype.Int2) DeleteMark {
	switch {
	case !v.Valid:
		return DeleteMarkUnset
	case v.Int16 == 0:
		return DeleteMarkActive
	default:
		return DeleteMarkDeleted
	}
}

// Draft is a command that has not been stored yet. It has no identity and
// therefore no equality; store it with Queue.Enqueue to obtain an Entry.
type Draft struct {
	Payload     string
	Identity    IdentityRef
	CommandType CommandTypeRef
	Status      StatusRef

	_ [0]func()
}

// Validate checks the fields the store requires. Failures wrap
// ErrConstraintViolation.
func (d Draft) Validate() error {
	var missing []string
	if d.Identity == 0 {
		missing = append(missing, "identity")
	}
	if d.CommandType == 0 {
		missing = append(missing, "command type")
	}
	if d.Status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConstraintViolation, strings.Join(missing, ", "))
	}
	return validPayload(d.Payload)
}

func validPayload(p string) error {
	if !utf8.ValidString(p) {
		return fmt.Errorf("%w: payload is not valid UTF-8", ErrConstraintViolation)
	}
	if strings.IndexByte(p, 0) >= 0 {
		return fmt.Errorf("%w: payload contains a NUL byte", ErrConstraintViolation)
	}
	return nil
}

// Entry is a stored command. Its id is assigned by the database and cannot
// be changed; entries compare with Equal, never with ==.
type Entry struct {
	id          int64
	payload     string
	hasPayload  bool
	deleteMark  DeleteMark
	created     time.Time
	modified    time.Time
	identity    IdentityRef
	commandType CommandTypeRef
	status      StatusRef

	_ [0]func()
}

// EntryFromRow rebuilds an Entry from a stored row.
func EntryFromRow(row cqdb.SubsystemCommandQueue) Entry {
	return Entry{
		id:          row.ID,
		payload:     row.Payload.String,
		hasPayload:  row.Payload.Valid,
		deleteMark:  deleteMarkFromInt2(row.MarkedForDelete),
		created:     row.CreatedTs.UTC(),
		modified:    row.ModifiedTs.UTC(),
		identity:    IdentityRef(row.PersonJwtHistoryID),
		commandType: CommandTypeRef(row.SubsystemCommandID),
		status:      StatusRef(row.SubsystemCommandStatusID),
	}
}

func entriesFromRows(rows []cqdb.SubsystemCommandQueue) []Entry {
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, EntryFromRow(row))
	}
	return entries
}

func (e Entry) ID() int64 { return e.id }

// Key returns the id for use as a map key, and false for a zero Entry.
func (e Entry) Key() (int64, bool) { return e.id, e.id != 0 }

// Payload returns the payload text. A NULL payload reads as "".
func (e Entry) Payload() string { return e.payload }

// HasPayload distinguishes an empty payload from a NULL one.
func (e Entry) HasPayload() bool { return e.hasPayload }

func (e Entry) DeleteMark() DeleteMark      { return e.deleteMark }
func (e Entry) Created() time.Time          { return e.created }
func (e Entry) Modified() time.Time         { return e.modified }
func (e Entry) Identity() IdentityRef       { return e.identity }
func (e Entry) CommandType() CommandTypeRef { return e.commandType }
func (e Entry) Status() StatusRef           { return e.status }

// Active reports whether the entry is returned by FindAllActive.
func (e Entry) Active() bool { return !e.deleteMark.IsDeleted() }

// Equal is true only when both entries carry the same assigned id. A zero
// Entry is not equal to anything, itself included.
func (e Entry) Equal(other Entry) bool {
	return e.id != 0 && other.id != 0 && e.id == other.id
}

type entryJSON struct {
	ID              int64          `json:"id"`
	Payload         *string        `json:"payload"`
	MarkedForDelete *int16         `json:"marked_for_delete"`
	Created         time.Time      `json:"created_ts"`
	Modified        time.Time      `json:"modified_ts"`
	Identity        IdentityRef    `json:"identity_ref"`
	CommandType     CommandTypeRef `json:"command_type_ref"`
	Status          StatusRef      `json:"status_ref"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		ID:          e.id,
		Created:     e.created,
		Modified:    e.modified,
		Identity:    e.identity,
		CommandType: e.commandType,
		Status:      e.status,
	}
	if e.hasPayload {
		p := e.payload
		out.Payload = &p
	}
	if v := e.deleteMark.int2(); v.Valid {
		out.MarkedForDelete = &v.Int16
	}
	return json.Marshal(out)
}

// StatusCount is the number of active entries for one command type and
// status, with the creation time of the oldest.
type StatusCount struct {
	CommandType   CommandTypeRef `json:"command_type_ref"`
	Status        StatusRef      `json:"status_ref"`
	Entries       int64          `json:"entries"`
	OldestCreated time.Time      `json:"oldest_created_ts"`
}
