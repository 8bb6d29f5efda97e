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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/models"
	"github.com/AleutianAI/AleutianAssistant/services/llm"
)

// routingPrompt asks the router model for a strict-JSON worker choice.
const routingPrompt = `You are a routing assistant. Your job is to analyze the user's message and decide which AI model should handle it.

Available models:
%s

User message: %s

Analyze the message and respond with a JSON object:
{
    "model_id": "id of the best model to use",
    "capability": "the main capability needed (general/coding/reasoning/creative/math/analysis)",
    "reason": "brief explanation of why this model",
    "confidence": 0.0 to 1.0
}

If no specialized model fits well, use the model with highest "general" capability.
Respond ONLY with the JSON object, no other text.`

// Router picks the worker model for each message using a small,
// always-resident router model.
//
// # Limitations
//
//   - Routing quality is bounded by the router model; unparseable output
//     falls back to the best general worker.
type Router struct {
	registry *models.Registry
	manager  *llm.MultiModelManager
	log      *slog.Logger
}

func NewRouter(registry *models.Registry, manager *llm.MultiModelManager, log *slog.Logger) *Router {
	return &Router{registry: registry, manager: manager, log: log}
}

// EnsureReady warms the router model with infinite keep-alive.
func (r *Router) EnsureReady(ctx context.Context) error {
	router := r.registry.Router()
	if r.manager.IsLoaded(router.ModelRef) {
		return nil
	}
	return r.manager.WarmModel(ctx, router.ModelRef, "-1", router.ContextLength)
}

// Route analyzes one user message and picks a worker.
func (r *Router) Route(ctx context.Context, userMessage string) (*datatypes.RoutingDecision, error) {
	if err := r.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("router model not ready: %w", err)
	}

	available := r.registry.AvailableWorkers()
	if len(available) == 0 {
		r.log.Warn("no worker models available, using router as fallback")
		router := r.registry.Router()
		return &datatypes.RoutingDecision{
			ModelID:    router.ID,
			ModelName:  router.Name,
			Reason:     "No other models available",
			Capability: datatypes.CapGeneral,
			Confidence: 0.5,
		}, nil
	}

	prompt := fmt.Sprintf(routingPrompt, describeModels(available), userMessage)

	var lowTemp float32 = 0.1
	maxTokens := 200
	response, err := r.manager.Chat(ctx, r.registry.Router().ModelRef,
		[]datatypes.Message{{Role: "user", Content: prompt}},
		llm.GenerationParams{Temperature: &lowTemp, MaxTokens: &maxTokens})
	if err != nil {
		r.log.Error("routing failed, falling back to best general model",
			slog.Any("error", err))
		return fallbackRouting(available), nil
	}

	decision := r.parseRoutingResponse(response, available)
	r.log.Info("routing decision",
		slog.String("model_id", decision.ModelID),
		slog.String("reason", decision.Reason))
	return decision, nil
}

// DirectRoute skips routing and uses a specific model, when the user picked
// one explicitly. Returns nil when the model is unknown or not downloaded.
func (r *Router) DirectRoute(modelID string) *datatypes.RoutingDecision {
	model := r.registry.Get(modelID)
	if model == nil || !model.IsDownloaded {
		return nil
	}
	return &datatypes.RoutingDecision{
		ModelID:    model.ID,
		ModelName:  model.Name,
		Reason:     "User selected this model",
		Capability: datatypes.CapGeneral,
		Confidence: 1.0,
	}
}

func describeModels(workers []*models.RegisteredModel) string {
	var lines []string
	for _, m := range workers {
		var caps []string
		for _, capability := range datatypes.AllCapabilities {
			if score, ok := m.Capabilities[capability]; ok {
				caps = append(caps, fmt.Sprintf("%s: %.1f", capability, score))
			}
		}
		lines = append(lines, fmt.Sprintf("- %s: %s (capabilities: %s)",
			m.ID, m.Name, strings.Join(caps, ", ")))
	}
	return strings.Join(lines, "\n")
}

func (r *Router) parseRoutingResponse(response string,
	available []*models.RegisteredModel) *datatypes.RoutingDecision {

	cleaned := stripFences(response)

	var data struct {
		ModelID    string  `json:"model_id"`
		Capability string  `json:"capability"`
		Reason     string  `json:"reason"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		r.log.Warn("failed to parse routing response", slog.Any("error", err))
		return fallbackRouting(available)
	}

	chosen := matchModel(data.ModelID, available)

	capability := datatypes.Capability(data.Capability)
	if !validCapability(capability) {
		capability = datatypes.CapGeneral
	}
	reason := data.Reason
	if reason == "" {
		reason = "Selected by router"
	}
	confidence := data.Confidence
	if confidence == 0 {
		confidence = 0.7
	}
	return &datatypes.RoutingDecision{
		ModelID:    chosen.ID,
		ModelName:  chosen.Name,
		Capability: capability,
		Reason:     reason,
		Confidence: confidence,
	}
}

// matchModel resolves the router's model_id against the worker list: exact
// id, then name fragment, then the first available.
func matchModel(modelID string, available []*models.RegisteredModel) *models.RegisteredModel {
	for _, m := range available {
		if m.ID == modelID {
			return m
		}
	}
	lowered := strings.ToLower(modelID)
	for _, m := range available {
		name := strings.ToLower(m.Name)
		if strings.Contains(lowered, name) || strings.Contains(name, lowered) {
			return m
		}
	}
	return available[0]
}

func fallbackRouting(available []*models.RegisteredModel) *datatypes.RoutingDecision {
	best := available[0]
	for _, m := range available[1:] {
		if m.Capabilities[datatypes.CapGeneral] > best.Capabilities[datatypes.CapGeneral] {
			best = m
		}
	}
	return &datatypes.RoutingDecision{
		ModelID:    best.ID,
		ModelName:  best.Name,
		Reason:     "Fallback to best general model",
		Capability: datatypes.CapGeneral,
		Confidence: 0.5,
	}
}

func validCapability(capability datatypes.Capability) bool {
	for _, c := range datatypes.AllCapabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// stripFences unwraps a fenced model reply ("```json ... ```").
func stripFences(response string) string {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```") {
		parts := strings.SplitN(cleaned, "```", 3)
		if len(parts) >= 2 {
			cleaned = parts[1]
		}
		cleaned = strings.TrimPrefix(cleaned, "json")
	}
	return strings.TrimSpace(cleaned)
}
