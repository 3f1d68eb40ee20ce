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

package catalog

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/cmdqueue/cqdb"
)

// Lister reads the catalog tables.
type Lister interface {
	SubsystemCommandStatusList(ctx context.Context) ([]cqdb.SubsystemCommandStatus, error)
	SubsystemCommandList(ctx context.Context) ([]cqdb.SubsystemCommand, error)
}

// errorTTL bounds how long a failed load is remembered.
const errorTTL = time.Second

const (
	keyStatuses = "statuses"
	keyCommands = "command_types"
)

type snapshot struct {
	statuses []Status
	commands map[int64]CommandType
	err      error
}

// Cache holds the status and command type catalogs for a TTL. Both are
// small, so each is loaded whole.
type Cache struct {
	db    Lister
	cache *ttlcache.Cache[string, snapshot]
}

func NewCache(db Lister, ttl time.Duration) *Cache {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, snapshot](ttl),
	)
	go cache.Start()
	return &Cache{db: db, cache: cache}
}

func (c *Cache) Close() {
	c.cache.Stop()
}

// Invalidate drops everything so the next lookup reloads.
func (c *Cache) Invalidate() {
	c.cache.DeleteAll()
}

func (c *Cache) get(ctx context.Context, key string) (snapshot, error) {
	loader := ttlcache.LoaderFunc[string, snapshot](
		func(cache *ttlcache.Cache[string, snapshot], key string) *ttlcache.Item[string, snapshot] {
			s := c.load(ctx, key)
			ttl := ttlcache.DefaultTTL
			if s.err != nil {
				ttl = errorTTL
			}
			return cache.Set(key, s, ttl)
		},
	)
	item := c.cache.Get(key, ttlcache.WithLoader(loader))
	if item == nil {
		return snapshot{}, errors.New("failed to load catalog from cache")
	}
	return item.Value(), item.Value().err
}

func (c *Cache) load(ctx context.Context, key string) snapshot {
	switch key {
	case keyStatuses:
		rows, err := c.db.SubsystemCommandStatusList(ctx)
		if err != nil {
			return snapshot{err: err}
		}
		s := snapshot{statuses: make([]Status, 0, len(rows))}
		for _, row := range rows {
			s.statuses = append(s.statuses, Status{ID: row.ID, Description: row.Description.String})
		}
		return s
	default:
		rows, err := c.db.SubsystemCommandList(ctx)
		if err != nil {
			return snapshot{err: err}
		}
		s := snapshot{commands: make(map[int64]CommandType, len(rows))}
		for _, row := range rows {
			s.commands[row.ID] = CommandType{ID: row.ID, Name: row.Name, Description: row.Description.String}
		}
		return s
	}
}

func (c *Cache) Statuses(ctx context.Context) ([]Status, error) {
	s, err := c.get(ctx, keyStatuses)
	if err != nil {
		return nil, err
	}
	return slices.Clone(s.statuses), nil
}

// CommandTypes returns the command type catalog ordered by id.
func (c *Cache) CommandTypes(ctx context.Context) ([]CommandType, error) {
	s, err := c.get(ctx, keyCommands)
	if err != nil {
		return nil, err
	}
	out := make([]CommandType, 0, len(s.commands))
	for _, ct := range s.commands {
		out = append(out, ct)
	}
	slices.SortFunc(out, func(a, b CommandType) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// StatusExists reports whether code is a row of the status catalog.
func (c *Cache) StatusExists(ctx context.Context, code string) (bool, error) {
	s, err := c.get(ctx, keyStatuses)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(s.statuses, func(st Status) bool { return st.ID == code }), nil
}

// CommandTypeName returns the catalog name for id, or "" if there is none.
func (c *Cache) CommandTypeName(ctx context.Context, id int64) (string, error) {
	s, err := c.get(ctx, keyCommands)
	if err != nil {
		return "", err
	}
	return s.commands[id].Name, nil
}

// CommandTypeID resolves a command type by name.
func (c *Cache) CommandTypeID(ctx context.Context, name string) (int64, bool, error) {
	s, err := c.get(ctx, keyCommands)
	if err != nil {
		return 0, false, err
	}
	for id, ct := range s.commands {
		if ct.Name == name {
			return id, true, nil
		}
	}
	return 0, false, nil
}
