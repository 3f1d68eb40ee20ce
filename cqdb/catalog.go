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

import "context"

// CatalogImportParams carries every catalog row to upsert in one import.
type CatalogImportParams struct {
	Statuses     []SubsystemCommandStatusUpsertParams
	CommandTypes []SubsystemCommandUpsertParams
	Identities   []PersonJwtHistoryUpsertParams
}

// CatalogImport upserts all catalog rows in a single transaction, so a
// partially applied catalog file is never visible.
func (q *Store) CatalogImport(ctx context.Context, params CatalogImportParams) error {
	return q.execTx(ctx, func(s *Store) error {
		for _, st := range params.Statuses {
			if err := s.SubsystemCommandStatusUpsert(ctx, st); err != nil {
				return err
			}
		}
		for _, ct := range params.CommandTypes {
			if err := s.SubsystemCommandUpsert(ctx, ct); err != nil {
				return err
			}
		}
		for _, id := range params.Identities {
			if err := s.PersonJwtHistoryUpsert(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}
