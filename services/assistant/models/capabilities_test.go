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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/llm"
)

func TestDetectCapabilities(t *testing.T) {
	t.Run("coder model", func(t *testing.T) {
		scores := DetectCapabilities("Qwen2.5 Coder 7B", "qwen2.5-coder:7b")
		assert.Equal(t, 0.9, scores[datatypes.CapCoding])
		assert.Equal(t, 0.5, scores[datatypes.CapGeneral])
	})

	t.Run("math model", func(t *testing.T) {
		scores := DetectCapabilities("Mathstral 7B", "mathstral:7b")
		assert.Equal(t, 0.9, scores[datatypes.CapMath])
	})

	t.Run("plain chat model is a generalist", func(t *testing.T) {
		scores := DetectCapabilities("Llama 3.1 8B", "llama3.1:8b")
		require.Len(t, scores, 1)
		assert.Equal(t, 0.7, scores[datatypes.CapGeneral])
	})

	t.Run("instruct is a weak analysis signal", func(t *testing.T) {
		scores := DetectCapabilities("Mistral 7B Instruct", "mistral:7b-instruct")
		assert.Equal(t, 0.6, scores[datatypes.CapAnalysis])
	})
}

func TestRegisterDetectsCapabilities(t *testing.T) {
	registry, _ := testRegistry(t)

	model, err := registry.Register("DeepSeek Coder 6.7B", llm.ProviderOllama,
		"deepseek-coder:6.7b", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.9, model.Capabilities[datatypes.CapCoding])
}
