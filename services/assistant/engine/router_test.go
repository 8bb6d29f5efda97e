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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/models"
	"github.com/AleutianAI/AleutianAssistant/services/llm"
)

func testWorkers() []*models.RegisteredModel {
	return []*models.RegisteredModel{
		{
			ID: "coder", Name: "Coder", Role: models.RoleWorker,
			Capabilities: map[datatypes.Capability]float64{
				datatypes.CapCoding:  0.95,
				datatypes.CapGeneral: 0.6,
			},
		},
		{
			ID: "generalist", Name: "Generalist", Role: models.RoleWorker,
			Capabilities: map[datatypes.Capability]float64{
				datatypes.CapGeneral: 0.9,
			},
		},
	}
}

func testRouter(t *testing.T) *Router {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.json")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := models.NewRegistry(path, log)
	require.NoError(t, err)
	return NewRouter(registry, nil, log)
}

func TestParseRoutingResponse(t *testing.T) {
	r := testRouter(t)
	available := testWorkers()

	t.Run("clean json", func(t *testing.T) {
		decision := r.parseRoutingResponse(
			`{"model_id": "coder", "capability": "coding", "reason": "code question", "confidence": 0.9}`,
			available)
		assert.Equal(t, "coder", decision.ModelID)
		assert.Equal(t, datatypes.CapCoding, decision.Capability)
		assert.Equal(t, 0.9, decision.Confidence)
	})

	t.Run("fenced json", func(t *testing.T) {
		decision := r.parseRoutingResponse(
			"```json\n{\"model_id\": \"generalist\", \"capability\": \"general\"}\n```",
			available)
		assert.Equal(t, "generalist", decision.ModelID)
	})

	t.Run("garbage falls back to best general", func(t *testing.T) {
		decision := r.parseRoutingResponse("I think the coder model", available)
		assert.Equal(t, "generalist", decision.ModelID)
		assert.Equal(t, "Fallback to best general model", decision.Reason)
	})

	t.Run("unknown model id matches by name or defaults", func(t *testing.T) {
		decision := r.parseRoutingResponse(`{"model_id": "the Coder model"}`, available)
		assert.Equal(t, "coder", decision.ModelID, "name fragment should match")

		decision = r.parseRoutingResponse(`{"model_id": "nonexistent"}`, available)
		assert.Equal(t, "coder", decision.ModelID, "first available is the last resort")
	})

	t.Run("invalid capability becomes general", func(t *testing.T) {
		decision := r.parseRoutingResponse(
			`{"model_id": "coder", "capability": "wizardry"}`, available)
		assert.Equal(t, datatypes.CapGeneral, decision.Capability)
	})
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, stripFences("```json\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripFences("```\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripFences(`{"a": 1}`))
}

func TestDirectRoute(t *testing.T) {
	r := testRouter(t)

	model, err := r.registry.Register("Picked", llm.ProviderOllama, "picked:7b", nil, 0)
	require.NoError(t, err)

	t.Run("not downloaded yet", func(t *testing.T) {
		assert.Nil(t, r.DirectRoute(model.ID))
	})

	t.Run("downloaded", func(t *testing.T) {
		require.NoError(t, r.registry.SetDownloadStatus(model.ID, true, ""))
		decision := r.DirectRoute(model.ID)
		require.NotNil(t, decision)
		assert.Equal(t, model.ID, decision.ModelID)
		assert.Equal(t, 1.0, decision.Confidence)
	})

	t.Run("unknown model", func(t *testing.T) {
		assert.Nil(t, r.DirectRoute("ghost"))
	})
}
