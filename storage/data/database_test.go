// Copyright 2025 Dataflix Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"context"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataflix/dataflix/dataset"
)

func TestOpenUnknownDatabase(t *testing.T) {
	_, err := Open("unknown://server")
	assert.Error(t, err)
}

func TestNoDatabase(t *testing.T) {
	ctx := context.Background()
	var database NoDatabase
	assert.ErrorIs(t, database.Init(), ErrNoDatabase)
	assert.ErrorIs(t, database.Ping(), ErrNoDatabase)
	assert.ErrorIs(t, database.Close(), ErrNoDatabase)
	assert.ErrorIs(t, database.Purge(), ErrNoDatabase)
	assert.ErrorIs(t, database.BatchInsertInteractions(ctx, nil), ErrNoDatabase)
	_, err := database.CountInteractions(ctx)
	assert.ErrorIs(t, err, ErrNoDatabase)
	_, err = database.ListInteractions(ctx)
	assert.ErrorIs(t, err, ErrNoDatabase)
	_, err = database.ListWatched(ctx, 1)
	assert.ErrorIs(t, err, ErrNoDatabase)
}

func newSQLiteDatabase(t *testing.T) Database {
	database, err := Open("sqlite://" + path.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	require.NoError(t, database.Init())
	t.Cleanup(func() {
		assert.NoError(t, database.Close())
	})
	return database
}

func TestSQLiteInteractions(t *testing.T) {
	ctx := context.Background()
	database := newSQLiteDatabase(t)
	require.NoError(t, database.Ping())

	// rows inserted out of order come back ordered by (user_id, item_id)
	err := database.BatchInsertInteractions(ctx, []dataset.Interaction{
		{UserId: 2, ItemId: 200, Watched: true, Rating: 3, Liked: false},
		{UserId: 1, ItemId: 200, Watched: false, Rating: 0, Liked: false},
		{UserId: 1, ItemId: 100, Watched: true, Rating: 4, Liked: true},
	})
	require.NoError(t, err)
	count, err := database.CountInteractions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	interactions, err := database.ListInteractions(ctx)
	require.NoError(t, err)
	require.Len(t, interactions, 3)
	assert.Equal(t, dataset.Interaction{UserId: 1, ItemId: 100, Watched: true, Rating: 4, Liked: true}, interactions[0])
	assert.Equal(t, dataset.Interaction{UserId: 1, ItemId: 200}, interactions[1])
	assert.Equal(t, dataset.Interaction{UserId: 2, ItemId: 200, Watched: true, Rating: 3}, interactions[2])

	// re-inserting a (user_id, item_id) pair overwrites the previous row
	err = database.BatchInsertInteractions(ctx, []dataset.Interaction{
		{UserId: 1, ItemId: 200, Watched: true, Rating: 5, Liked: true},
	})
	require.NoError(t, err)
	count, err = database.CountInteractions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	interactions, err = database.ListInteractions(ctx)
	require.NoError(t, err)
	assert.Equal(t, dataset.Interaction{UserId: 1, ItemId: 200, Watched: true, Rating: 5, Liked: true}, interactions[1])
}

func TestSQLiteListWatched(t *testing.T) {
	ctx := context.Background()
	database := newSQLiteDatabase(t)
	err := database.BatchInsertInteractions(ctx, []dataset.Interaction{
		{UserId: 1, ItemId: 300, Watched: true, Rating: 2},
		{UserId: 1, ItemId: 100, Watched: true, Rating: 4},
		{UserId: 1, ItemId: 200, Watched: false},
		{UserId: 2, ItemId: 100, Watched: true, Rating: 5},
	})
	require.NoError(t, err)

	watched, err := database.ListWatched(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 300}, watched)
	watched, err = database.ListWatched(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, watched)
}

func TestSQLitePurge(t *testing.T) {
	ctx := context.Background()
	database := newSQLiteDatabase(t)
	err := database.BatchInsertInteractions(ctx, []dataset.Interaction{
		{UserId: 1, ItemId: 100, Watched: true, Rating: 4},
	})
	require.NoError(t, err)
	require.NoError(t, database.Purge())
	count, err := database.CountInteractions(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
