// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(DBConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_UpsertAndGet(t *testing.T) {
	store := testStore(t)

	entity := datatypes.NewEntity("report.pdf", "/tmp/report.pdf",
		datatypes.KindFile, datatypes.ProvenanceUserExplicit, 1)
	require.NoError(t, store.Upsert("conv-1", entity))

	t.Run("by id", func(t *testing.T) {
		got, err := store.Get("conv-1", entity.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "report.pdf", got.DisplayName)
	})

	t.Run("by path", func(t *testing.T) {
		got, err := store.GetByPath("conv-1", "/tmp/report.pdf")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, entity.ID, got.ID)
	})

	t.Run("missing id", func(t *testing.T) {
		got, err := store.Get("conv-1", "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("other conversation does not see it", func(t *testing.T) {
		got, err := store.Get("conv-2", entity.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestStore_PathIndexFollowsMove(t *testing.T) {
	store := testStore(t)

	entity := datatypes.NewEntity("draft.txt", "/tmp/draft.txt",
		datatypes.KindFile, datatypes.ProvenanceUserExplicit, 1)
	require.NoError(t, store.Upsert("conv", entity))

	// Rename: same id, new path.
	entity.AbsolutePath = "/tmp/final.txt"
	entity.DisplayName = "final.txt"
	require.NoError(t, store.Upsert("conv", entity))

	got, err := store.GetByPath("conv", "/tmp/final.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.ID, got.ID)

	stale, err := store.GetByPath("conv", "/tmp/draft.txt")
	require.NoError(t, err)
	assert.Nil(t, stale, "old path index must be dropped")
}

func TestStore_All(t *testing.T) {
	store := testStore(t)

	for _, name := range []string{"a.txt", "b.txt"} {
		e := datatypes.NewEntity(name, "/tmp/"+name,
			datatypes.KindFile, datatypes.ProvenanceListResult, 1)
		require.NoError(t, store.Upsert("conv", e))
		time.Sleep(2 * time.Millisecond) // distinct timestamps
	}
	folder := datatypes.NewEntity("docs", "/tmp/docs",
		datatypes.KindFolder, datatypes.ProvenanceUserExplicit, 1)
	require.NoError(t, store.Upsert("conv", folder))

	t.Run("newest first", func(t *testing.T) {
		all, err := store.All("conv", "", 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "docs", all[0].DisplayName)
	})

	t.Run("kind filter", func(t *testing.T) {
		files, err := store.All("conv", datatypes.KindFile, 0)
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})

	t.Run("limit", func(t *testing.T) {
		limited, err := store.All("conv", "", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestStore_StatePointers(t *testing.T) {
	store := testStore(t)

	file := datatypes.NewEntity("n.txt", "/tmp/n.txt",
		datatypes.KindFile, datatypes.ProvenanceToolOutput, 1)
	require.NoError(t, store.Upsert("conv", file))
	require.NoError(t, store.SetLastActiveFile("conv", file.ID))

	got, err := store.LastActiveFile("conv")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, file.ID, got.ID)

	t.Run("turn counter increments", func(t *testing.T) {
		turn, err := store.IncrementTurn("conv")
		require.NoError(t, err)
		assert.Equal(t, 1, turn)
		turn, err = store.IncrementTurn("conv")
		require.NoError(t, err)
		assert.Equal(t, 2, turn)
	})

	t.Run("zero state for fresh conversation", func(t *testing.T) {
		state, err := store.State("fresh")
		require.NoError(t, err)
		assert.Empty(t, state.LastActiveFileID)
		assert.Zero(t, state.TurnIndex)
	})
}

func TestStore_SelectionItems(t *testing.T) {
	store := testStore(t)

	var ids []string
	for _, name := range []string{"one.txt", "two.txt", "three.txt"} {
		e := datatypes.NewEntity(name, "/tmp/"+name,
			datatypes.KindFile, datatypes.ProvenanceListResult, 1)
		require.NoError(t, store.Upsert("conv", e))
		ids = append(ids, e.ID)
	}
	selection := datatypes.NewEntity("listing", "",
		datatypes.KindSelection, datatypes.ProvenanceListResult, 1)
	selection.SelectionIDs = ids
	require.NoError(t, store.Upsert("conv", selection))
	require.NoError(t, store.SetCurrentSelection("conv", selection.ID))

	items, err := store.SelectionItems("conv", selection.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "one.txt", items[0].DisplayName)
	assert.Equal(t, "three.txt", items[2].DisplayName)

	t.Run("deleted member skipped", func(t *testing.T) {
		require.NoError(t, store.Delete("conv", ids[1]))
		items, err := store.SelectionItems("conv", selection.ID)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})
}

func TestStore_Clear(t *testing.T) {
	store := testStore(t)

	keep := datatypes.NewEntity("keep.txt", "/tmp/keep.txt",
		datatypes.KindFile, datatypes.ProvenanceUserExplicit, 1)
	require.NoError(t, store.Upsert("other", keep))

	gone := datatypes.NewEntity("gone.txt", "/tmp/gone.txt",
		datatypes.KindFile, datatypes.ProvenanceUserExplicit, 1)
	require.NoError(t, store.Upsert("conv", gone))
	require.NoError(t, store.SetLastActiveFile("conv", gone.ID))

	require.NoError(t, store.Clear("conv"))

	got, err := store.Get("conv", gone.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	state, err := store.State("conv")
	require.NoError(t, err)
	assert.Empty(t, state.LastActiveFileID)

	// Other conversations survive.
	kept, err := store.Get("other", keep.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
