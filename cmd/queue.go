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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
)

func init() {
	rootCmd.AddCommand(
		newEnqueueCmd(),
		newShowCmd(),
		newListCmd(),
		newUpdateStatusCmd(),
		newDeleteCmd(),
		newStatusCmd(),
	)
}

func (s *adminSession) namer(ctx context.Context) commandNamer {
	return func(id int64) string {
		name, err := s.catalog.CommandTypeName(ctx, id)
		if err != nil {
			slog.Debug("Command type name lookup failed", slog.Int64("commandType", id), slog.Any("error", err))
			return ""
		}
		return name
	}
}

// resolveCommandType accepts a numeric id or a catalog name.
func (s *adminSession) resolveCommandType(ctx context.Context, v string) (commandqueue.CommandTypeRef, error) {
	if id, err := strconv.ParseInt(v, 10, 64); err == nil {
		return commandqueue.CommandTypeRef(id), nil
	}
	id, ok, err := s.catalog.CommandTypeID(ctx, v)
	if err != nil {
		return 0, fmt.Errorf("failed to look up command type %q: %w", v, err)
	}
	if !ok {
		return 0, fmt.Errorf("unknown command type %q", v)
	}
	return commandqueue.CommandTypeRef(id), nil
}

func (s *adminSession) requireStatus(ctx context.Context, status string) error {
	ok, err := s.catalog.StatusExists(ctx, status)
	if err != nil {
		return fmt.Errorf("failed to look up status %q: %w", status, err)
	}
	if !ok {
		return fmt.Errorf("unknown status %q", status)
	}
	return nil
}

func readPayloadFile(path string, stdin io.Reader) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read payload: %w", err)
	}
	return string(b), nil
}

func newEnqueueCmd() *cobra.Command {
	var (
		payload     string
		payloadFile string
		identity    int64
		commandType string
		status      string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Store a new command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if payloadFile != "" {
				p, err := readPayloadFile(payloadFile, cmd.InOrStdin())
				if err != nil {
					return err
				}
				payload = p
			}
			return runAdmin(cmd, func(ctx context.Context, s *adminSession) error {
				ct, err := s.resolveCommandType(ctx, commandType)
				if err != nil {
					return err
				}
				entry, err := s.queue.Enqueue(ctx, commandqueue.Draft{
					Payload:     payload,
					Identity:    commandqueue.IdentityRef(identity),
					CommandType: ct,
					Status:      commandqueue.StatusRef(status),
				}, time.Now())
				if err != nil {
					return err
				}
				return writeEntryDetail(cmd.OutOrStdout(), entry, asJSON, s.namer(ctx))
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "Command payload")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Read the payload from a file, or - for stdin")
	cmd.Flags().Int64Var(&identity, "identity", 0, "Requesting identity id")
	cmd.Flags().StringVar(&commandType, "command-type", "", "Command type id or catalog name")
	cmd.Flags().StringVar(&status, "status", "PENDING", "Initial status code")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored entry as JSON")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-file")
	_ = cmd.MarkFlagRequired("identity")
	_ = cmd.MarkFlagRequired("command-type")
	return cmd
}

func newShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one entry, including soft-deleted ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runAdmin(cmd, func(ctx context.Context, s *adminSession) error {
				entry, err := s.queue.FindByID(ctx, id)
				if errors.Is(err, commandqueue.ErrNotFound) {
					return fmt.Errorf("entry %d not found", id)
				}
				if err != nil {
					return err
				}
				return writeEntryDetail(cmd.OutOrStdout(), entry, asJSON, s.namer(ctx))
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newListCmd() *cobra.Command {
	var (
		payload  string
		created  string
		modified string
		marked   string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries",
		Long: `List entries. Without a filter every active entry is listed in id order.
--payload matches the payload exactly, --created and --modified match a
timestamp exactly, and --marked selects by delete mark (unset, 0 or 1).
Filters other than the default include soft-deleted entries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			return runAdmin(cmd, func(ctx context.Context, s *adminSession) error {
				var (
					entries []commandqueue.Entry
					err     error
				)
				switch {
				case flags.Changed("payload"):
					entries, err = s.queue.FindByPayload(ctx, payload)
				case flags.Changed("created"):
					var ts time.Time
					if ts, err = parseTimestamp(created); err == nil {
						entries, err = s.queue.FindByCreatedTimestamp(ctx, ts)
					}
				case flags.Changed("modified"):
					var ts time.Time
					if ts, err = parseTimestamp(modified); err == nil {
						entries, err = s.queue.FindByModifiedTimestamp(ctx, ts)
					}
				case flags.Changed("marked"):
					var mark commandqueue.DeleteMark
					if mark, err = commandqueue.ParseDeleteMark(marked); err == nil {
						entries, err = s.queue.FindByMarkedForDelete(ctx, mark)
					}
				default:
					n, err := writeEntries(cmd.OutOrStdout(), s.queue.FindAllActive(ctx), asJSON, s.namer(ctx))
					slog.Debug("Listed active entries", slog.Int("count", n))
					return err
				}
				if err != nil {
					return err
				}
				_, err = writeEntries(cmd.OutOrStdout(), sliceEntries(entries), asJSON, s.namer(ctx))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "Exact payload to match")
	cmd.Flags().StringVar(&created, "created", "", "Exact created timestamp (RFC 3339)")
	cmd.Flags().StringVar(&modified, "modified", "", "Exact modified timestamp (RFC 3339)")
	cmd.Flags().StringVar(&marked, "marked", "", "Delete mark: unset, 0 or 1")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per line")
	cmd.MarkFlagsMutuallyExclusive("payload", "created", "modified", "marked")
	return cmd
}

func newUpdateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-status ID STATUS",
		Short: "Set the status of an active entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status := args[1]
			return runAdmin(cmd, func(ctx context.Context, s *adminSession) error {
				if err := s.requireStatus(ctx, status); err != nil {
					return err
				}
				if err := s.queue.UpdateStatus(ctx, id, commandqueue.StatusRef(status), time.Now()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "entry %d status set to %s\n", id, status)
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Soft-delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runAdmin(cmd, func(ctx context.Context, s *adminSession) error {
				if err := s.queue.MarkDeleted(ctx, id, time.Now()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "entry %d marked for delete\n", id)
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Count active entries by command type and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAdmin(cmd, func(ctx context.Context, s *adminSession) error {
				counts, err := s.queue.StatusCounts(ctx)
				if err != nil {
					return err
				}
				return writeStatusCounts(cmd.OutOrStdout(), counts, time.Now(), asJSON, s.namer(ctx))
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
