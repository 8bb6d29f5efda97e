// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm wraps the inference backends the assistant can talk to:
// an Ollama server, a llama.cpp server, and any OpenAI-compatible endpoint.
// All backends speak the same Client interface so the orchestrator never
// cares which one serves a given model.
package llm

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

// GenerationParams tunes one inference call. Nil fields take backend
// defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// NumCtx is the context window to load the model with. Must be sent on
	// every Ollama request or the server resets to its 4096 default.
	NumCtx *int `json:"num_ctx,omitempty"`

	// KeepAlive controls how long the backend keeps the model resident
	// after this call ("-1" = forever, "0" = unload now). Ollama only.
	KeepAlive string `json:"keep_alive,omitempty"`
}

// StreamFunc receives one content chunk; returning an error stops the
// stream.
type StreamFunc func(chunk string) error

// Client is the standard interface for any inference backend.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, fn StreamFunc) error
}

// Provider names an inference backend kind in the model registry.
type Provider string

const (
	ProviderOllama   Provider = "ollama"
	ProviderLlamaCpp Provider = "llamacpp"
	ProviderOpenAI   Provider = "openai"
)

// NewClient builds a client for the given provider from environment
// configuration.
func NewClient(provider Provider) (Client, error) {
	switch provider {
	case ProviderOllama:
		return NewOllamaClient()
	case ProviderLlamaCpp:
		return NewLlamaCppClient()
	case ProviderOpenAI:
		return NewOpenAICompatClient()
	}
	return nil, fmt.Errorf("unknown llm provider: %s", provider)
}
