// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for session-state persistence

package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/TrajectoryStudio/services/studio/datatypes"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/storage/badger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestSaveAndLoad(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	editing := 3
	st := &datatypes.SessionState{
		Trajectory:        json.RawMessage(`[{"originalIndex": 1, "clustered": false}]`),
		FileName:          "acme__widget-42.json",
		SearchQuery:       "render",
		EditingStep:       &editing,
		HasUnsavedChanges: true,
		SelectedSteps:     []int{1, 2},
		StartTimestamp:    "2025-06-01T10:00:00.000Z",
	}
	require.NoError(t, store.Save(ctx, "user-1", st))

	got, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, st.FileName, got.FileName)
	assert.Equal(t, st.SearchQuery, got.SearchQuery)
	require.NotNil(t, got.EditingStep)
	assert.Equal(t, 3, *got.EditingStep)
	assert.True(t, got.HasUnsavedChanges)
	assert.JSONEq(t, string(st.Trajectory), string(got.Trajectory))
}

func TestSaveOverwrites(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "user-1", &datatypes.SessionState{FileName: "first.json"}))
	require.NoError(t, store.Save(ctx, "user-1", &datatypes.SessionState{FileName: "second.json"}))

	got, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "second.json", got.FileName)
}

func TestLoadMissingSession(t *testing.T) {
	store := testStore(t)
	_, err := store.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionsAreScopedPerUser(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "user-1", &datatypes.SessionState{FileName: "mine.json"}))

	_, err := store.Load(ctx, "user-2")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestClear(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "user-1", &datatypes.SessionState{FileName: "x.json"}))
	require.NoError(t, store.Clear(ctx, "user-1"))

	_, err := store.Load(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNoSession)

	assert.NoError(t, store.Clear(ctx, "user-1"), "clearing a missing session is not an error")
}
