// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/conversation"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

func testTracker(t *testing.T) (*Tracker, *conversation.Context) {
	t.Helper()
	store, err := conversation.NewStore(conversation.DBConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := conversation.NewContext(store)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTracker(ctx, log), ctx
}

func listResult(path string, items ...datatypes.ListItem) *datatypes.ToolResult {
	return &datatypes.ToolResult{
		Status: datatypes.StatusSuccess,
		Action: datatypes.ActionList,
		Output: datatypes.ListOutput{Path: path, Items: items},
	}
}

func TestTracker_List(t *testing.T) {
	tracker, ctx := testTracker(t)
	store := ctx.Store()

	tracker.Track("conv", listResult("/tmp/proj",
		datatypes.ListItem{Name: "a.txt", Type: "file", SizeBytes: 10},
		datatypes.ListItem{Name: "sub", Type: "folder"},
	))

	t.Run("folder becomes last active", func(t *testing.T) {
		folder, err := store.LastActiveFolder("conv")
		require.NoError(t, err)
		require.NotNil(t, folder)
		assert.Equal(t, "/tmp/proj", folder.AbsolutePath)
		assert.Equal(t, datatypes.KindFolder, folder.Kind)
	})

	t.Run("children are tracked with kinds", func(t *testing.T) {
		file, err := store.GetByPath("conv", "/tmp/proj/a.txt")
		require.NoError(t, err)
		require.NotNil(t, file)
		assert.Equal(t, datatypes.KindFile, file.Kind)

		sub, err := store.GetByPath("conv", "/tmp/proj/sub")
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, datatypes.KindFolder, sub.Kind)
	})

	t.Run("listing becomes the current selection", func(t *testing.T) {
		selection, err := store.CurrentSelection("conv")
		require.NoError(t, err)
		require.NotNil(t, selection)
		items, err := store.SelectionItems("conv", selection.ID)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "a.txt", items[0].DisplayName)
	})

	t.Run("repeated listing keeps entity ids stable", func(t *testing.T) {
		first, err := store.GetByPath("conv", "/tmp/proj/a.txt")
		require.NoError(t, err)

		tracker.Track("conv", listResult("/tmp/proj",
			datatypes.ListItem{Name: "a.txt", Type: "file", SizeBytes: 10},
			datatypes.ListItem{Name: "sub", Type: "folder"},
		))

		second, err := store.GetByPath("conv", "/tmp/proj/a.txt")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})
}

func TestTracker_ReadAndSearch(t *testing.T) {
	tracker, ctx := testTracker(t)
	store := ctx.Store()

	tracker.Track("conv", &datatypes.ToolResult{
		Status: datatypes.StatusSuccess,
		Action: datatypes.ActionRead,
		Output: datatypes.ReadOutput{Path: "/tmp/notes.txt", Lines: []string{"x"}},
	})
	active, err := store.LastActiveFile("conv")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "/tmp/notes.txt", active.AbsolutePath)

	tracker.Track("conv", &datatypes.ToolResult{
		Status: datatypes.StatusSuccess,
		Action: datatypes.ActionSearch,
		Output: datatypes.SearchOutput{
			Matches: []string{"/tmp/a.pdf", "/tmp/b.pdf"},
			Count:   2,
		},
	})
	selection, err := store.CurrentSelection("conv")
	require.NoError(t, err)
	require.NotNil(t, selection)
	items, err := store.SelectionItems("conv", selection.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestTracker_MoveRewritesInPlace(t *testing.T) {
	tracker, ctx := testTracker(t)
	store := ctx.Store()

	original := datatypes.NewEntity("draft.txt", "/tmp/draft.txt",
		datatypes.KindFile, datatypes.ProvenanceToolOutput, 1)
	require.NoError(t, ctx.TrackEntity("conv", original, true))

	tracker.Track("conv", &datatypes.ToolResult{
		Status:       datatypes.StatusSuccess,
		Action:       datatypes.ActionMove,
		BeforePaths:  []string{"/tmp/draft.txt"},
		AfterPaths:   []string{"/tmp/final.txt"},
		Verification: &datatypes.Verification{Passed: true},
	})

	moved, err := store.GetByPath("conv", "/tmp/final.txt")
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, original.ID, moved.ID, "a later 'it' must keep resolving")
	assert.Equal(t, "final.txt", moved.DisplayName)

	active, err := store.LastActiveFile("conv")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, original.ID, active.ID)
}

func TestTracker_WriteAndDelete(t *testing.T) {
	tracker, ctx := testTracker(t)
	store := ctx.Store()

	tracker.Track("conv", &datatypes.ToolResult{
		Status:       datatypes.StatusSuccess,
		Action:       datatypes.ActionWrite,
		AfterPaths:   []string{"/tmp/new.txt"},
		Verification: &datatypes.Verification{Passed: true},
	})
	created, err := store.GetByPath("conv", "/tmp/new.txt")
	require.NoError(t, err)
	require.NotNil(t, created)

	tracker.Track("conv", &datatypes.ToolResult{
		Status:       datatypes.StatusSuccess,
		Action:       datatypes.ActionDelete,
		BeforePaths:  []string{"/tmp/new.txt"},
		Verification: &datatypes.Verification{Passed: true},
	})
	gone, err := store.GetByPath("conv", "/tmp/new.txt")
	require.NoError(t, err)
	assert.Nil(t, gone)

	active, err := store.LastActiveFile("conv")
	require.NoError(t, err)
	assert.Nil(t, active, "deleted entity must not stay referenceable")
}

func TestTracker_IgnoresFailures(t *testing.T) {
	tracker, ctx := testTracker(t)

	tracker.Track("conv", &datatypes.ToolResult{
		Status:       datatypes.StatusError,
		Action:       datatypes.ActionWrite,
		AfterPaths:   []string{"/tmp/ghost.txt"},
		Error:        "disk full",
		Verification: &datatypes.Verification{Passed: false, Details: "file missing after write"},
	})

	ghost, err := ctx.Store().GetByPath("conv", "/tmp/ghost.txt")
	require.NoError(t, err)
	assert.Nil(t, ghost)

	all, err := ctx.Store().All("conv", "", 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
