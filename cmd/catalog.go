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
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/cmdqueue/internal/catalog"
)

func init() {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the command type, status and identity catalogs",
	}
	catalogCmd.AddCommand(newCatalogImportCmd(), newCatalogValidateCmd(), newCatalogListCmd())
	rootCmd.AddCommand(catalogCmd)
}

func loadValidCatalog(path string) (*catalog.File, error) {
	f, err := catalog.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return f, nil
}

func newCatalogImportCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert every row of a catalog file in one transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := loadValidCatalog(path)
			if err != nil {
				return err
			}
			return runAdmin(cmd, func(ctx context.Context, s *adminSession) error {
				if err := catalog.Import(ctx, s.store, f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d command types, %d statuses, %d identities\n",
					len(f.CommandTypes), len(f.Statuses), len(f.Identities))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Catalog YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newCatalogValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a catalog file without touching the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := loadValidCatalog(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d command types, %d statuses, %d identities\n",
				path, len(f.CommandTypes), len(f.Statuses), len(f.Identities))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Catalog YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type catalogListing struct {
	CommandTypes []catalog.CommandType `json:"command_types"`
	Statuses     []catalog.Status      `json:"statuses"`
}

func writeCatalog(w io.Writer, l catalogListing, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "COMMAND TYPE\tNAME\tDESCRIPTION")
	for _, ct := range l.CommandTypes {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", ct.ID, ct.Name, ct.Description)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "STATUS\tDESCRIPTION")
	for _, st := range l.Statuses {
		fmt.Fprintf(tw, "%s\t%s\n", st.ID, st.Description)
	}
	return tw.Flush()
}

func newCatalogListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List command types and statuses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAdmin(cmd, func(ctx context.Context, s *adminSession) error {
				types, err := s.catalog.CommandTypes(ctx)
				if err != nil {
					return err
				}
				statuses, err := s.catalog.Statuses(ctx)
				if err != nil {
					return err
				}
				return writeCatalog(cmd.OutOrStdout(), catalogListing{CommandTypes: types, Statuses: statuses}, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
