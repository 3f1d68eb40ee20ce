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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/cmdqueue/cqdb"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) SubsystemCommandStatusList(ctx context.Context) ([]cqdb.SubsystemCommandStatus, error) {
	args := m.Called(ctx)
	rows, _ := args.Get(0).([]cqdb.SubsystemCommandStatus)
	return rows, args.Error(1)
}

func (m *mockLister) SubsystemCommandList(ctx context.Context) ([]cqdb.SubsystemCommand, error) {
	args := m.Called(ctx)
	rows, _ := args.Get(0).([]cqdb.SubsystemCommand)
	return rows, args.Error(1)
}

func TestCache_StatusExists(t *testing.T) {
	db := &mockLister{}
	db.On("SubsystemCommandStatusList", mock.Anything).Return([]cqdb.SubsystemCommandStatus{
		{ID: "PENDING"}, {ID: "DONE"},
	}, nil).Once()

	c := NewCache(db, time.Minute)
	defer c.Close()
	ctx := context.Background()

	ok, err := c.StatusExists(ctx, "PENDING")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.StatusExists(ctx, "NOPE")
	require.NoError(t, err)
	assert.False(t, ok)

	statuses, err := c.Statuses(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 2)

	db.AssertNumberOfCalls(t, "SubsystemCommandStatusList", 1)
}

func TestCache_Invalidate(t *testing.T) {
	db := &mockLister{}
	db.On("SubsystemCommandStatusList", mock.Anything).Return([]cqdb.SubsystemCommandStatus{{ID: "PENDING"}}, nil).Once()
	db.On("SubsystemCommandStatusList", mock.Anything).Return([]cqdb.SubsystemCommandStatus{{ID: "PENDING"}, {ID: "ARCHIVED"}}, nil).Once()

	c := NewCache(db, time.Minute)
	defer c.Close()
	ctx := context.Background()

	ok, err := c.StatusExists(ctx, "ARCHIVED")
	require.NoError(t, err)
	assert.False(t, ok)

	c.Invalidate()
	ok, err = c.StatusExists(ctx, "ARCHIVED")
	require.NoError(t, err)
	assert.True(t, ok)
	db.AssertExpectations(t)
}

func TestCache_Error(t *testing.T) {
	db := &mockLister{}
	db.On("SubsystemCommandStatusList", mock.Anything).Return(nil, errors.New("boom"))

	c := NewCache(db, time.Minute)
	defer c.Close()

	_, err := c.StatusExists(context.Background(), "PENDING")
	require.EqualError(t, err, "boom")
}

func TestCache_CommandTypes(t *testing.T) {
	db := &mockLister{}
	db.On("SubsystemCommandList", mock.Anything).Return([]cqdb.SubsystemCommand{
		{ID: 4, Name: "rotate-keys"},
		{ID: 3, Name: "run-backup"},
	}, nil).Once()

	c := NewCache(db, time.Minute)
	defer c.Close()
	ctx := context.Background()

	name, err := c.CommandTypeName(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "run-backup", name)

	name, err = c.CommandTypeName(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, name)

	id, ok, err := c.CommandTypeID(ctx, "rotate-keys")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4), id)

	_, ok, err = c.CommandTypeID(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	types, err := c.CommandTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []CommandType{{ID: 3, Name: "run-backup"}, {ID: 4, Name: "rotate-keys"}}, types)

	db.AssertNumberOfCalls(t, "SubsystemCommandList", 1)
}
