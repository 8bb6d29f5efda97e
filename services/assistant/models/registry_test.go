// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package models

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/llm"
)

func testRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.json")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := NewRegistry(path, log)
	require.NoError(t, err)
	return registry, path
}

func TestRegistry_RouterAlwaysExists(t *testing.T) {
	registry, _ := testRegistry(t)

	router := registry.Router()
	require.NotNil(t, router)
	assert.Equal(t, RoleRouter, router.Role)
	assert.True(t, router.IsDownloaded)

	t.Run("router cannot be deleted", func(t *testing.T) {
		assert.Error(t, registry.Delete(router.ID))
		assert.NotNil(t, registry.Get(router.ID))
	})
}

func TestRegistry_Register(t *testing.T) {
	registry, _ := testRegistry(t)

	model, err := registry.Register("Qwen 2.5 7B", llm.ProviderOllama, "qwen2.5:7b",
		map[datatypes.Capability]float64{datatypes.CapGeneral: 0.9}, 32768)
	require.NoError(t, err)
	assert.Equal(t, "qwen-2-5-7b", model.ID)
	assert.Equal(t, RoleWorker, model.Role)

	t.Run("duplicate names get suffixed ids", func(t *testing.T) {
		dup, err := registry.Register("Qwen 2.5 7B", llm.ProviderOllama, "qwen2.5:7b", nil, 0)
		require.NoError(t, err)
		assert.Equal(t, "qwen-2-5-7b-1", dup.ID)
	})

	t.Run("delete removes a worker", func(t *testing.T) {
		require.NoError(t, registry.Delete("qwen-2-5-7b-1"))
		assert.Nil(t, registry.Get("qwen-2-5-7b-1"))
	})
}

func TestRegistry_Workers(t *testing.T) {
	registry, _ := testRegistry(t)

	coder, err := registry.Register("Coder", llm.ProviderOllama, "qwen2.5-coder:7b",
		map[datatypes.Capability]float64{datatypes.CapCoding: 0.95, datatypes.CapGeneral: 0.7}, 0)
	require.NoError(t, err)
	generalist, err := registry.Register("Generalist", llm.ProviderOllama, "llama3.1:8b",
		map[datatypes.Capability]float64{datatypes.CapGeneral: 0.9}, 0)
	require.NoError(t, err)

	t.Run("only downloaded workers are available", func(t *testing.T) {
		assert.Empty(t, registry.AvailableWorkers())

		require.NoError(t, registry.SetDownloadStatus(coder.ID, true, ""))
		require.NoError(t, registry.SetDownloadStatus(generalist.ID, true, ""))
		workers := registry.AvailableWorkers()
		require.Len(t, workers, 2)
		assert.Equal(t, "coder", workers[0].ID, "sorted by id")
	})

	t.Run("best for capability", func(t *testing.T) {
		best := registry.BestForCapability(datatypes.CapCoding)
		require.NotNil(t, best)
		assert.Equal(t, coder.ID, best.ID)

		best = registry.BestForCapability(datatypes.CapGeneral)
		require.NotNil(t, best)
		assert.Equal(t, generalist.ID, best.ID)
	})
}

func TestRegistry_Persistence(t *testing.T) {
	registry, path := testRegistry(t)

	model, err := registry.Register("Keeper", llm.ProviderOllama, "keeper:1b", nil, 4096)
	require.NoError(t, err)
	require.NoError(t, registry.SetDownloadStatus(model.ID, true, "/models/keeper.gguf"))
	require.NoError(t, registry.SetDownloadState(model.ID,
		&DownloadState{Status: "done", Progress: 1.0}))

	reloaded, err := NewRegistry(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	got := reloaded.Get(model.ID)
	require.NotNil(t, got)
	assert.True(t, got.IsDownloaded)
	assert.Equal(t, "/models/keeper.gguf", got.LocalPath)
	require.NotNil(t, got.DownloadState)
	assert.Equal(t, "done", got.DownloadState.Status)
}
