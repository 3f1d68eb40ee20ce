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

// Package catalog loads the command type, status and identity catalogs the
// queue's foreign keys point at, and caches them for lookups.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgtype"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/cmdqueue/cqdb"
)

type CommandType struct {
	ID          int64  `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type Status struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type Identity struct {
	ID      int64  `yaml:"id" json:"id"`
	Subject string `yaml:"subject" json:"subject"`
}

// File is the on-disk catalog:
//
//	command_types:
//	  - {id: 3, name: run-backup}
//	statuses:
//	  - {id: PENDING}
//	identities:
//	  - {id: 7, subject: alice}
type File struct {
	CommandTypes []CommandType `yaml:"command_types"`
	Statuses     []Status      `yaml:"statuses"`
	Identities   []Identity    `yaml:"identities"`
}

// Parse decodes a catalog and rejects unknown keys.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &f, nil
}

func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	f, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate reports every problem in the file at once.
func (f *File) Validate() error {
	var result *multierror.Error

	typeIDs := map[int64]bool{}
	typeNames := map[string]bool{}
	for i, ct := range f.CommandTypes {
		if ct.ID == 0 {
			result = multierror.Append(result, fmt.Errorf("command_types[%d]: id is required", i))
		} else if typeIDs[ct.ID] {
			result = multierror.Append(result, fmt.Errorf("command_types[%d]: duplicate id %d", i, ct.ID))
		}
		typeIDs[ct.ID] = true

		name := strings.TrimSpace(ct.Name)
		if name == "" {
			result = multierror.Append(result, fmt.Errorf("command_types[%d]: name is required", i))
		} else if typeNames[name] {
			result = multierror.Append(result, fmt.Errorf("command_types[%d]: duplicate name %q", i, name))
		}
		typeNames[name] = true
	}

	statusIDs := map[string]bool{}
	for i, s := range f.Statuses {
		id := strings.TrimSpace(s.ID)
		switch {
		case id == "":
			result = multierror.Append(result, fmt.Errorf("statuses[%d]: id is required", i))
		case id != s.ID:
			result = multierror.Append(result, fmt.Errorf("statuses[%d]: id %q has surrounding whitespace", i, s.ID))
		case statusIDs[id]:
			result = multierror.Append(result, fmt.Errorf("statuses[%d]: duplicate id %q", i, id))
		}
		statusIDs[id] = true
	}

	identityIDs := map[int64]bool{}
	for i, ident := range f.Identities {
		if ident.ID == 0 {
			result = multierror.Append(result, fmt.Errorf("identities[%d]: id is required", i))
		} else if identityIDs[ident.ID] {
			result = multierror.Append(result, fmt.Errorf("identities[%d]: duplicate id %d", i, ident.ID))
		}
		identityIDs[ident.ID] = true
		if strings.TrimSpace(ident.Subject) == "" {
			result = multierror.Append(result, fmt.Errorf("identities[%d]: subject is required", i))
		}
	}

	return result.ErrorOrNil()
}

func optionalText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// Params converts the file into a single import.
func (f *File) Params() cqdb.CatalogImportParams {
	var p cqdb.CatalogImportParams
	for _, s := range f.Statuses {
		p.Statuses = append(p.Statuses, cqdb.SubsystemCommandStatusUpsertParams{
			ID:          s.ID,
			Description: optionalText(s.Description),
		})
	}
	for _, ct := range f.CommandTypes {
		p.CommandTypes = append(p.CommandTypes, cqdb.SubsystemCommandUpsertParams{
			ID:          ct.ID,
			Name:        strings.TrimSpace(ct.Name),
			Description: optionalText(ct.Description),
		})
	}
	for _, ident := range f.Identities {
		p.Identities = append(p.Identities, cqdb.PersonJwtHistoryUpsertParams{
			ID:      ident.ID,
			Subject: ident.Subject,
		})
	}
	return p
}

type Importer interface {
	CatalogImport(ctx context.Context, params cqdb.CatalogImportParams) error
}

// Import validates the file and upserts every row in one transaction.
func Import(ctx context.Context, db Importer, f *File) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	if err := db.CatalogImport(ctx, f.Params()); err != nil {
		return fmt.Errorf("failed to import catalog: %w", err)
	}
	return nil
}
