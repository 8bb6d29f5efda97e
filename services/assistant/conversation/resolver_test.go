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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

func trackFile(t *testing.T, store *Store, conversationID, name, path string) *datatypes.Entity {
	t.Helper()
	entity := datatypes.NewEntity(name, path,
		datatypes.KindFile, datatypes.ProvenanceToolOutput, 1)
	require.NoError(t, store.Upsert(conversationID, entity))
	return entity
}

func TestResolver_ExplicitPath(t *testing.T) {
	store := testStore(t)
	resolver := NewResolver(store)

	entity := trackFile(t, store, "conv", "report.pdf", "/tmp/report.pdf")

	t.Run("tracked path", func(t *testing.T) {
		ref, err := resolver.Resolve("conv", "delete /tmp/report.pdf", "", true)
		require.NoError(t, err)
		require.NotNil(t, ref.Entity)
		assert.Equal(t, entity.ID, ref.Entity.ID)
		assert.Equal(t, datatypes.ConfidenceHigh, ref.Confidence,
			"explicit paths are never downgraded, even for destructive intent")
	})

	t.Run("untracked path is still authoritative", func(t *testing.T) {
		ref, err := resolver.Resolve("conv", "read /tmp/unknown.txt", "", false)
		require.NoError(t, err)
		assert.Nil(t, ref.Entity)
		assert.Equal(t, datatypes.ConfidenceHigh, ref.Confidence)
	})
}

func TestResolver_Pronoun(t *testing.T) {
	store := testStore(t)
	resolver := NewResolver(store)

	file := trackFile(t, store, "conv", "notes.txt", "/tmp/notes.txt")
	require.NoError(t, store.SetLastActiveFile("conv", file.ID))

	folder := datatypes.NewEntity("docs", "/tmp/docs",
		datatypes.KindFolder, datatypes.ProvenanceUserExplicit, 1)
	require.NoError(t, store.Upsert("conv", folder))
	require.NoError(t, store.SetLastActiveFolder("conv", folder.ID))

	t.Run("it resolves to last active file", func(t *testing.T) {
		ref, err := resolver.Resolve("conv", "read it", "", false)
		require.NoError(t, err)
		require.NotNil(t, ref.Entity)
		assert.Equal(t, file.ID, ref.Entity.ID)
		assert.Equal(t, datatypes.ConfidenceHigh, ref.Confidence)
	})

	t.Run("the folder resolves to last active folder", func(t *testing.T) {
		ref, err := resolver.Resolve("conv", "list the folder", "", false)
		require.NoError(t, err)
		require.NotNil(t, ref.Entity)
		assert.Equal(t, folder.ID, ref.Entity.ID)
	})

	t.Run("destructive downgrades pronoun confidence", func(t *testing.T) {
		ref, err := resolver.Resolve("conv", "delete it", "", true)
		require.NoError(t, err)
		require.NotNil(t, ref.Entity)
		assert.Equal(t, datatypes.ConfidenceMedium, ref.Confidence)
		assert.Less(t, ref.Score, 0.9)
	})

	t.Run("empty conversation gives none", func(t *testing.T) {
		ref, err := resolver.Resolve("empty", "delete it", "", true)
		require.NoError(t, err)
		assert.Nil(t, ref.Entity)
		assert.Equal(t, datatypes.ConfidenceNone, ref.Confidence)
	})
}

func TestResolver_Ordinal(t *testing.T) {
	store := testStore(t)
	resolver := NewResolver(store)

	var ids []string
	names := []string{"alpha.txt", "beta.txt", "gamma.txt"}
	for _, name := range names {
		e := trackFile(t, store, "conv", name, "/tmp/"+name)
		ids = append(ids, e.ID)
	}
	selection := datatypes.NewEntity("listing", "",
		datatypes.KindSelection, datatypes.ProvenanceListResult, 1)
	selection.SelectionIDs = ids
	require.NoError(t, store.Upsert("conv", selection))
	require.NoError(t, store.SetCurrentSelection("conv", selection.ID))

	t.Run("the second one", func(t *testing.T) {
		ref, err := resolver.Resolve("conv", "delete the second one", "", true)
		require.NoError(t, err)
		require.NotNil(t, ref.Entity)
		assert.Equal(t, "beta.txt", ref.Entity.DisplayName)
		assert.Equal(t, datatypes.ConfidenceHigh, ref.Confidence,
			"ordinals are never downgraded")
	})

	t.Run("last", func(t *testing.T) {
		ref, err := resolver.Resolve("conv", "read the last one", "", false)
		require.NoError(t, err)
		require.NotNil(t, ref.Entity)
		assert.Equal(t, "gamma.txt", ref.Entity.DisplayName)
	})

	t.Run("out of range", func(t *testing.T) {
		ref, err := resolver.Resolve("conv", "open the fifth one", "", false)
		require.NoError(t, err)
		assert.Nil(t, ref.Entity)
		assert.Equal(t, datatypes.ConfidenceLow, ref.Confidence)
		assert.Len(t, ref.Alternatives, 3)
	})

	t.Run("ordinal without selection", func(t *testing.T) {
		ref, err := resolver.Resolve("bare", "delete the first one", "", true)
		require.NoError(t, err)
		assert.Nil(t, ref.Entity)
		assert.Equal(t, datatypes.ConfidenceLow, ref.Confidence)
	})
}

func TestResolver_NameMatch(t *testing.T) {
	store := testStore(t)
	resolver := NewResolver(store)

	trackFile(t, store, "conv", "budget_2024.xlsx", "/tmp/budget_2024.xlsx")
	trackFile(t, store, "conv", "notes.txt", "/tmp/notes.txt")

	t.Run("exact name", func(t *testing.T) {
		ref, err := resolver.Resolve("conv", "open notes.txt please", "", false)
		require.NoError(t, err)
		require.NotNil(t, ref.Entity)
		assert.Equal(t, "notes.txt", ref.Entity.DisplayName)
	})

	t.Run("quoted partial name", func(t *testing.T) {
		ref, err := resolver.Resolve("conv", `open "budget_2024"`, "", false)
		require.NoError(t, err)
		require.NotNil(t, ref.Entity)
		assert.Equal(t, "budget_2024.xlsx", ref.Entity.DisplayName)
	})

	t.Run("two equal matches are ambiguous", func(t *testing.T) {
		trackFile(t, store, "amb", "report_v1.pdf", "/tmp/report_v1.pdf")
		trackFile(t, store, "amb", "report_v2.pdf", "/tmp/report_v2.pdf")

		ref, err := resolver.Resolve("amb", "open the report", "", false)
		require.NoError(t, err)
		assert.Equal(t, datatypes.ConfidenceAmbiguous, ref.Confidence)
		assert.Len(t, ref.Alternatives, 2)
	})
}

func TestNameMatchScore(t *testing.T) {
	cases := []struct {
		query, name string
		want        float64
	}{
		{"notes.txt", "notes.txt", 1.0},
		{"notes", "notes.txt", 0.95},
		{"not", "notes.txt", 0.85},
		{"otes", "notes.txt", 0.7},
		{"zzz", "notes.txt", 0.0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, NameMatchScore(tc.query, tc.name), 0.001,
			"query=%q name=%q", tc.query, tc.name)
	}
}

func TestConfirmationVocabulary(t *testing.T) {
	for _, word := range []string{"yes", "Y", "ok", "sure", "proceed", "Sì", "conferma", "yes."} {
		assert.True(t, IsConfirmation(word), "%q should confirm", word)
	}
	for _, word := range []string{"no", "Cancel", "stop", "nevermind", "annulla", "no!"} {
		assert.True(t, IsCancellation(word), "%q should cancel", word)
	}
	for _, word := range []string{"yes delete the other one", "maybe", "", "okay then do it"} {
		assert.False(t, IsConfirmation(word), "%q is not a bare confirmation", word)
	}
}

func TestExtractExplicitPath(t *testing.T) {
	assert.Equal(t, "/tmp/a.txt", ExtractExplicitPath("delete /tmp/a.txt"))
	assert.Equal(t, "~/docs/b.txt", ExtractExplicitPath("read ~/docs/b.txt"))
	assert.Equal(t, "/tmp/q.txt", ExtractExplicitPath(`move "/tmp/q.txt" somewhere`))
	assert.Empty(t, ExtractExplicitPath("delete it"))
}

func TestHasOrdinal(t *testing.T) {
	index, ok := HasOrdinal("delete the second one")
	assert.True(t, ok)
	assert.Equal(t, 1, index)

	index, ok = HasOrdinal("the last file")
	assert.True(t, ok)
	assert.Equal(t, -1, index)

	_, ok = HasOrdinal("delete it")
	assert.False(t, ok)
}
