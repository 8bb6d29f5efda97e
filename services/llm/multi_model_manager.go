// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Multi-Model Manager
// =============================================================================

// MultiModelManager coordinates multiple Ollama models so the router model
// and the worker models stay resident together.
//
// # Description
//
// Ollama by default unloads a model when a different one is requested, which
// causes thrashing when alternating between the router and a worker.
// MultiModelManager uses keep_alive to keep several models loaded at once.
// The router model is warmed at startup with keep_alive=-1 and never
// implicitly unloaded.
//
// # Thread Safety
//
// MultiModelManager is safe for concurrent use. Chat calls on different
// models run concurrently; model lifecycle changes (warm/unload) take the
// write lock.
type MultiModelManager struct {
	baseURL    string
	httpClient *http.Client
	models     map[string]*ManagedModel
	mu         sync.RWMutex
	logger     *slog.Logger
}

// ManagedModel tracks one model's residency state.
type ManagedModel struct {
	// Name is the model identifier (e.g. "qwen2.5:1.5b").
	Name string `json:"name"`

	// KeepAlive is the keep_alive setting for this model.
	// "-1" = infinite, "5m" = 5 minutes, "0" = unload immediately.
	KeepAlive string `json:"keep_alive"`

	// IsLoaded indicates whether the model is currently resident.
	IsLoaded bool `json:"is_loaded"`

	// LoadedAt is when the model was loaded.
	LoadedAt time.Time `json:"loaded_at"`

	// LastUsed is when the model last served an inference call.
	LastUsed time.Time `json:"last_used"`

	// LoadDuration is how long the warmup took.
	LoadDuration time.Duration `json:"load_duration"`

	// WarmupError contains any error from the warmup attempt.
	WarmupError error `json:"-"`
}

// ModelWarmupConfig specifies how to warm one model.
type ModelWarmupConfig struct {
	// Model is the model name.
	Model string

	// KeepAlive controls how long the model stays loaded.
	// "-1" is recommended for the router.
	KeepAlive string

	// Priority determines loading order. Higher loads first.
	Priority int

	// NumCtx is the context window size for this model. Must be set to
	// keep Ollama from falling back to its 4096 default.
	NumCtx int
}

// NewMultiModelManager creates a manager against one Ollama server.
func NewMultiModelManager(baseURL string) *MultiModelManager {
	return &MultiModelManager{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // model loading can be slow
		},
		models: make(map[string]*ManagedModel),
		logger: slog.Default(),
	}
}

// WarmModels pre-loads models in priority order (highest first), so the
// first real request pays no cold-start latency.
func (m *MultiModelManager) WarmModels(ctx context.Context, configs []ModelWarmupConfig) error {
	if len(configs) == 0 {
		return nil
	}

	sorted := make([]ModelWarmupConfig, len(configs))
	copy(sorted, configs)
	for i := 0; i < len(sorted)-1; i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Priority > sorted[i].Priority {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	m.logger.Info("Warming models", slog.Int("count", len(configs)))

	// Sequential to avoid VRAM contention between loads.
	for _, cfg := range sorted {
		if err := m.WarmModel(ctx, cfg.Model, cfg.KeepAlive, cfg.NumCtx); err != nil {
			m.logger.Error("Failed to warm model",
				slog.String("model", cfg.Model),
				slog.String("error", err.Error()),
			)
			m.mu.Lock()
			if managed, ok := m.models[cfg.Model]; ok {
				managed.WarmupError = err
			}
			m.mu.Unlock()
			return fmt.Errorf("warming model %s: %w", cfg.Model, err)
		}
	}
	return nil
}

// WarmModel loads one model with keep_alive via a minimal ping request.
func (m *MultiModelManager) WarmModel(ctx context.Context, model, keepAlive string, numCtx int) error {
	startTime := time.Now()

	m.logger.Info("Warming model",
		slog.String("model", model),
		slog.String("keep_alive", keepAlive),
		slog.Int("num_ctx", numCtx),
	)

	options := make(map[string]interface{})
	if numCtx > 0 {
		options["num_ctx"] = numCtx
	}
	req := ollamaChatRequest{
		Model:     model,
		Messages:  []datatypes.Message{{Role: "user", Content: "ping"}},
		Stream:    false,
		KeepAlive: keepAlive,
		Options:   options,
	}
	if _, err := m.post(ctx, req); err != nil {
		return err
	}

	loadDuration := time.Since(startTime)
	m.mu.Lock()
	m.models[model] = &ManagedModel{
		Name:         model,
		KeepAlive:    keepAlive,
		IsLoaded:     true,
		LoadedAt:     time.Now(),
		LastUsed:     time.Now(),
		LoadDuration: loadDuration,
	}
	m.mu.Unlock()

	m.logger.Info("Model warmed successfully",
		slog.String("model", model),
		slog.Duration("load_duration", loadDuration),
	)
	return nil
}

// Chat sends a chat request to a specific model, preserving its keep_alive.
func (m *MultiModelManager) Chat(ctx context.Context, model string,
	messages []datatypes.Message, params GenerationParams) (string, error) {

	ctx, span := tracer.Start(ctx, "MultiModelManager.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))

	payload := ollamaChatRequest{
		Model:     model,
		Messages:  messages,
		Stream:    false,
		Options:   buildOllamaOptions(params),
		KeepAlive: m.keepAliveFor(model, params.KeepAlive),
	}
	respBody, err := m.post(ctx, payload)
	if err != nil {
		return "", err
	}
	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	m.touch(model)
	return chatResp.Message.Content, nil
}

// ChatStream streams a chat response from a specific model, delivering one
// content delta per callback.
func (m *MultiModelManager) ChatStream(ctx context.Context, model string,
	messages []datatypes.Message, params GenerationParams, fn StreamFunc) error {

	ctx, span := tracer.Start(ctx, "MultiModelManager.ChatStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))

	payload := ollamaChatRequest{
		Model:     model,
		Messages:  messages,
		Stream:    true,
		Options:   buildOllamaOptions(params),
		KeepAlive: m.keepAliveFor(model, params.KeepAlive),
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/api/chat",
		bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat failed with status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			m.logger.Warn("Skipping malformed stream chunk", slog.Any("error", err))
			continue
		}
		if chunk.Message.Content != "" {
			if err := fn(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			break
		}
	}
	m.touch(model)
	return scanner.Err()
}

// GetLoadedModels returns a snapshot of tracked model states.
func (m *MultiModelManager) GetLoadedModels() []ManagedModel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	models := make([]ManagedModel, 0, len(m.models))
	for _, managed := range m.models {
		models = append(models, *managed)
	}
	return models
}

// IsLoaded reports whether a model has been warmed and not unloaded.
func (m *MultiModelManager) IsLoaded(model string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	managed, ok := m.models[model]
	return ok && managed.IsLoaded
}

// UnloadModel sends keep_alive=0 to evict a model immediately.
func (m *MultiModelManager) UnloadModel(ctx context.Context, model string) error {
	m.logger.Info("Unloading model", slog.String("model", model))

	req := ollamaChatRequest{
		Model:     model,
		Messages:  []datatypes.Message{{Role: "user", Content: "bye"}},
		Stream:    false,
		KeepAlive: "0",
	}
	if _, err := m.post(ctx, req); err != nil {
		return err
	}

	m.mu.Lock()
	if managed, ok := m.models[model]; ok {
		managed.IsLoaded = false
	}
	m.mu.Unlock()
	return nil
}

func (m *MultiModelManager) keepAliveFor(model, override string) string {
	if override != "" {
		return override
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if managed, ok := m.models[model]; ok {
		return managed.KeepAlive
	}
	return ""
}

func (m *MultiModelManager) touch(model string) {
	m.mu.Lock()
	if managed, ok := m.models[model]; ok {
		managed.LastUsed = time.Now()
	}
	m.mu.Unlock()
}

func (m *MultiModelManager) post(ctx context.Context, payload ollamaChatRequest) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/api/chat",
		bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
