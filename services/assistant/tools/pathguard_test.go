// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGuard builds a guard sandboxed inside a temp directory that stands in
// for the user home.
func testGuard(t *testing.T) (*PathGuard, string) {
	t.Helper()
	home, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return NewPathGuardWithRoots(home, []string{home}), home
}

func TestPathGuard_EnsureAllowed(t *testing.T) {
	guard, home := testGuard(t)

	t.Run("path inside root", func(t *testing.T) {
		resolved, err := guard.EnsureAllowed(filepath.Join(home, "notes.txt"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "notes.txt"), resolved)
	})

	t.Run("root itself", func(t *testing.T) {
		resolved, err := guard.EnsureAllowed(home)
		require.NoError(t, err)
		assert.Equal(t, home, resolved)
	})

	t.Run("tilde expansion", func(t *testing.T) {
		resolved, err := guard.EnsureAllowed("~/docs/report.pdf")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "docs", "report.pdf"), resolved)
	})

	t.Run("outside every root", func(t *testing.T) {
		_, err := guard.EnsureAllowed("/etc/hosts")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outside allowed roots")
	})

	t.Run("traversal escapes the root", func(t *testing.T) {
		_, err := guard.EnsureAllowed(filepath.Join(home, "..", "..", "etc", "passwd"))
		require.Error(t, err)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := guard.EnsureAllowed("   ")
		require.Error(t, err)
	})

	t.Run("sibling prefix does not match", func(t *testing.T) {
		// /tmp/home-abc must not satisfy a /tmp/home root.
		_, err := guard.EnsureAllowed(home + "-evil/file.txt")
		require.Error(t, err)
	})
}

func TestPathGuard_IsProtected(t *testing.T) {
	guard, home := testGuard(t)

	assert.True(t, guard.IsProtected("/"))
	assert.True(t, guard.IsProtected("/etc"))
	assert.True(t, guard.IsProtected(home), "home itself is protected from destructive ops")
	assert.False(t, guard.IsProtected(filepath.Join(home, "scratch.txt")))
}

func TestPathGuard_ShortPath(t *testing.T) {
	guard, home := testGuard(t)

	assert.Equal(t, "~", guard.ShortPath(home))
	assert.Equal(t, "~/docs/a.txt", guard.ShortPath(filepath.Join(home, "docs", "a.txt")))
	assert.Equal(t, "/tmp/other", guard.ShortPath("/tmp/other"))
}
