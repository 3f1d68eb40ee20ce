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

package cmd

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
)

const payloadColumnWidth = 60

// commandNamer resolves a command type id to its catalog name, or "".
type commandNamer func(id int64) string

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatCommandType(ct commandqueue.CommandTypeRef, names commandNamer) string {
	id := strconv.FormatInt(int64(ct), 10)
	if names == nil {
		return id
	}
	if name := names(int64(ct)); name != "" {
		return id + " (" + name + ")"
	}
	return id
}

// truncate shortens s to at most n runes for table display.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func formatPayload(e commandqueue.Entry) string {
	if !e.HasPayload() {
		return "<null>"
	}
	return strconv.Quote(truncate(e.Payload(), payloadColumnWidth))
}

// writeEntries renders entries as a table or, with asJSON, as one JSON
// object per line. It stops at the first error from the sequence and
// returns how many entries were written.
func writeEntries(w io.Writer, entries iter.Seq2[commandqueue.Entry, error], asJSON bool, names commandNamer) (int, error) {
	if asJSON {
		enc := json.NewEncoder(w)
		n := 0
		for e, err := range entries {
			if err != nil {
				return n, err
			}
			if err := enc.Encode(e); err != nil {
				return n, err
			}
			n++
		}
		return n, nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tCOMMAND\tIDENTITY\tSTATUS\tDELETED\tCREATED\tMODIFIED\tPAYLOAD")
	n := 0
	for e, err := range entries {
		if err != nil {
			_ = tw.Flush()
			return n, err
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID(),
			formatCommandType(e.CommandType(), names),
			e.Identity(),
			e.Status(),
			e.DeleteMark(),
			formatTime(e.Created()),
			formatTime(e.Modified()),
			formatPayload(e))
		n++
	}
	return n, tw.Flush()
}

// sliceEntries adapts a materialized result to the streaming writer.
func sliceEntries(entries []commandqueue.Entry) iter.Seq2[commandqueue.Entry, error] {
	return func(yield func(commandqueue.Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func writeEntryDetail(w io.Writer, e commandqueue.Entry, asJSON bool, names commandNamer) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(e)
	}
	payload := "<null>"
	if e.HasPayload() {
		payload = e.Payload()
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "ID:\t%d\n", e.ID())
	fmt.Fprintf(tw, "Command type:\t%s\n", formatCommandType(e.CommandType(), names))
	fmt.Fprintf(tw, "Identity:\t%d\n", e.Identity())
	fmt.Fprintf(tw, "Status:\t%s\n", e.Status())
	fmt.Fprintf(tw, "Marked for delete:\t%s\n", e.DeleteMark())
	fmt.Fprintf(tw, "Created:\t%s\n", formatTime(e.Created()))
	fmt.Fprintf(tw, "Modified:\t%s\n", formatTime(e.Modified()))
	fmt.Fprintf(tw, "Payload:\t%s\n", payload)
	return tw.Flush()
}

func writeStatusCounts(w io.Writer, counts []commandqueue.StatusCount, now time.Time, asJSON bool, names commandNamer) error {
	counts = slices.Clone(counts)
	slices.SortFunc(counts, func(a, b commandqueue.StatusCount) int {
		return cmp.Or(cmp.Compare(a.CommandType, b.CommandType), cmp.Compare(a.Status, b.Status))
	})

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if counts == nil {
			counts = []commandqueue.StatusCount{}
		}
		return enc.Encode(counts)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "COMMAND\tSTATUS\tENTRIES\tOLDEST")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			formatCommandType(c.CommandType, names),
			c.Status,
			c.Entries,
			now.Sub(c.OldestCreated).Truncate(time.Second))
	}
	return tw.Flush()
}

// parseTimestamp accepts RFC 3339 with optional fractional seconds.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q (want RFC 3339, e.g. 2025-01-02T15:04:05.123456Z): %w", s, err)
	}
	return t, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
