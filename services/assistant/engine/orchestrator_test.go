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
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/conversation"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/guard"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/tools"
)

// testOrchestrator wires a full tool pipeline over a sandboxed home. No
// model backends are configured; tests stay on the planner/tool paths.
func testOrchestrator(t *testing.T) (*Orchestrator, string) {
	t.Helper()
	home, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	store, err := conversation.NewStore(conversation.DBConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pathGuard := tools.NewPathGuardWithRoots(home, []string{home})
	registry := tools.NewRegistry()
	ops := tools.NewFileOps(pathGuard, nil)
	shell := tools.NewShellRunner(5*time.Second, nil)

	claimGuard, err := guard.New()
	require.NoError(t, err)

	o := NewOrchestrator(Config{
		Conversation: conversation.NewContext(store),
		Executor:     tools.NewExecutor(registry, ops, shell, nil),
		PathGuard:    pathGuard,
		Guard:        claimGuard,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return o, home
}

func chat(t *testing.T, o *Orchestrator, conversationID, message string) string {
	t.Helper()
	resp, err := o.Chat(context.Background(), conversationID, message)
	require.NoError(t, err)
	return resp.Content
}

func TestOrchestrator_ExplicitDeleteRunsImmediately(t *testing.T) {
	o, home := testOrchestrator(t)
	path := filepath.Join(home, "x.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	resp, err := o.Chat(context.Background(), "c1", "delete "+path)
	require.NoError(t, err)
	require.NotNil(t, resp.ToolUsed)
	assert.True(t, resp.ToolUsed.OK(), "delete failed: %s", resp.ToolUsed.Error)
	assert.Nil(t, o.convo.Pending("c1"), "explicit paths need no confirmation")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOrchestrator_PronounDeleteConfirms(t *testing.T) {
	o, home := testOrchestrator(t)
	path := filepath.Join(home, "draft.txt")

	content := chat(t, o, "c1", `create a file `+path+` with content "hello"`)
	assert.Contains(t, content, "draft.txt")
	require.FileExists(t, path)

	t.Run("delete it parks a confirmation", func(t *testing.T) {
		content := chat(t, o, "c1", "delete it")
		assert.Contains(t, content, "(yes/no)")
		assert.Contains(t, content, "draft.txt")
		require.NotNil(t, o.convo.Pending("c1"))
		require.FileExists(t, path, "nothing may be deleted before confirmation")
	})

	t.Run("yes executes", func(t *testing.T) {
		resp, err := o.Chat(context.Background(), "c1", "yes")
		require.NoError(t, err)
		require.NotNil(t, resp.ToolUsed)
		assert.True(t, resp.ToolUsed.OK())
		assert.Nil(t, o.convo.Pending("c1"))

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestOrchestrator_CancellationKeepsFile(t *testing.T) {
	o, home := testOrchestrator(t)
	path := filepath.Join(home, "keep.txt")

	chat(t, o, "c1", `create a file `+path+` with content "hold on"`)
	chat(t, o, "c1", "delete it")
	require.NotNil(t, o.convo.Pending("c1"))

	content := chat(t, o, "c1", "no")
	assert.Contains(t, content, "won't")
	assert.Nil(t, o.convo.Pending("c1"))
	assert.FileExists(t, path)
}

func TestOrchestrator_UnrelatedMessageAbandonsPending(t *testing.T) {
	o, home := testOrchestrator(t)
	path := filepath.Join(home, "stale.txt")

	chat(t, o, "c1", `create a file `+path+` with content "x"`)
	chat(t, o, "c1", "delete it")
	require.NotNil(t, o.convo.Pending("c1"))

	resp, err := o.Chat(context.Background(), "c1", "list the files in "+home)
	require.NoError(t, err)
	require.NotNil(t, resp.ToolUsed, "new intent should plan normally")
	assert.Nil(t, o.convo.Pending("c1"), "stale pending action is dropped")
	assert.FileExists(t, path)
}

func TestOrchestrator_OrdinalDelete(t *testing.T) {
	o, home := testOrchestrator(t)
	dir := filepath.Join(home, "notes")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"alpha.txt", "beta.txt", "gamma.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}

	content := chat(t, o, "c1", "list the files in "+dir)
	assert.Contains(t, content, "alpha.txt")
	assert.Contains(t, content, "gamma.txt")

	t.Run("ordinal picks the listed item and confirms", func(t *testing.T) {
		content := chat(t, o, "c1", "delete the second one")
		assert.Contains(t, content, "beta.txt")
		assert.Contains(t, content, "(yes/no)")
		require.NotNil(t, o.convo.Pending("c1"))
	})

	t.Run("yes deletes only that file", func(t *testing.T) {
		chat(t, o, "c1", "yes")
		assert.NoFileExists(t, filepath.Join(dir, "beta.txt"))
		assert.FileExists(t, filepath.Join(dir, "alpha.txt"))
		assert.FileExists(t, filepath.Join(dir, "gamma.txt"))
	})
}

func TestOrchestrator_DisambiguationFlow(t *testing.T) {
	o, home := testOrchestrator(t)
	docs := filepath.Join(home, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	for _, name := range []string{"report_v1.pdf", "report_v2.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(docs, name), []byte("pdf"), 0o644))
	}

	chat(t, o, "c1", "list the files in "+docs)

	t.Run("ambiguous name offers candidates", func(t *testing.T) {
		content := chat(t, o, "c1", "delete the report")
		assert.Contains(t, content, "I found 2 files")
		assert.Contains(t, content, "report_v1.pdf")
		assert.Contains(t, content, "report_v2.pdf")
		require.NotNil(t, o.convo.Pending("c1"))
	})

	t.Run("out of range number re-asks", func(t *testing.T) {
		content := chat(t, o, "c1", "9")
		assert.Contains(t, content, "between 1 and 2")
		require.NotNil(t, o.convo.Pending("c1"), "slot survives a bad pick")
	})

	t.Run("number picks then confirms", func(t *testing.T) {
		content := chat(t, o, "c1", "2")
		assert.Contains(t, content, "(yes/no)")
		require.NotNil(t, o.convo.Pending("c1"), "destructive rebind re-parks")
	})

	t.Run("yes deletes exactly one", func(t *testing.T) {
		resp, err := o.Chat(context.Background(), "c1", "yes")
		require.NoError(t, err)
		require.NotNil(t, resp.ToolUsed)
		assert.True(t, resp.ToolUsed.OK())

		entries, err := os.ReadDir(docs)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestOrchestrator_ProtectedPathFailsClosed(t *testing.T) {
	o, _ := testOrchestrator(t)

	resp, err := o.Chat(context.Background(), "c1", "delete /etc/hosts")
	require.NoError(t, err)
	require.NotNil(t, resp.ToolUsed)
	assert.False(t, resp.ToolUsed.OK())
	require.NotNil(t, resp.ToolUsed.Verification)
	assert.False(t, resp.ToolUsed.Verification.Passed)
	assert.Nil(t, o.convo.Pending("c1"), "a refused action leaves nothing pending")
}

func TestOrchestrator_ConversationIsolation(t *testing.T) {
	o, home := testOrchestrator(t)
	path := filepath.Join(home, "private.txt")

	chat(t, o, "a", `create a file `+path+` with content "mine"`)

	content := chat(t, o, "b", "delete it")
	assert.Contains(t, content, "not sure which file")
	assert.Nil(t, o.convo.Pending("b"))
	assert.FileExists(t, path)
}

func TestOrchestrator_ClearConversation(t *testing.T) {
	o, home := testOrchestrator(t)
	path := filepath.Join(home, "gone.txt")

	chat(t, o, "a", `create a file `+path+` with content "x"`)
	require.NoError(t, o.ClearConversation("a"))

	content := chat(t, o, "a", "delete it")
	assert.Contains(t, content, "not sure which file")
	assert.FileExists(t, path)
}

func TestOrchestrator_MoveConfirmsAsRename(t *testing.T) {
	o, home := testOrchestrator(t)
	path := filepath.Join(home, "old.txt")

	chat(t, o, "c1", `create a file `+path+` with content "v1"`)

	content := chat(t, o, "c1", "rename it to final")
	assert.Contains(t, content, "Rename")
	assert.Contains(t, content, "(yes/no)")
	require.NotNil(t, o.convo.Pending("c1"))

	resp, err := o.Chat(context.Background(), "c1", "yes")
	require.NoError(t, err)
	require.NotNil(t, resp.ToolUsed)
	assert.True(t, resp.ToolUsed.OK())
	assert.FileExists(t, filepath.Join(home, "final.txt"))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
