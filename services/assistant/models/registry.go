// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package models tracks the registered model descriptors: which models
// exist, their per-capability scores, their download state, and which one
// is the always-resident router.
package models

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/llm"
)

// Role places a model in the orchestration system.
type Role string

const (
	// RoleRouter marks the small always-resident model that picks workers.
	RoleRouter Role = "router"
	// RoleWorker marks models that produce user-facing replies.
	RoleWorker Role = "worker"
)

// RouterModelID is the fixed id of the router entry.
const RouterModelID = "assistant-router"

// RegisteredModel is one model descriptor in the registry file.
//
// # Fields
//
//   - ID: Unique id, e.g. "qwen2-5-7b".
//   - Name: Display name.
//   - Role: router or worker.
//   - Provider: Inference backend serving this model.
//   - ModelRef: Backend-side model reference (an Ollama tag, a GGUF path).
//   - Capabilities: Per-capability scores, 0.0-1.0.
//   - ContextLength: Maximum context window.
//   - IsDownloaded: Whether the model is present locally.
//   - LocalPath: On-disk location for file-backed models.
type RegisteredModel struct {
	ID            string                           `json:"id"`
	Name          string                           `json:"name"`
	Role          Role                             `json:"role"`
	Provider      llm.Provider                     `json:"provider"`
	ModelRef      string                           `json:"model_ref"`
	Capabilities  map[datatypes.Capability]float64 `json:"capabilities"`
	ContextLength int                              `json:"context_length"`
	IsDownloaded  bool                             `json:"is_downloaded"`
	LocalPath     string                           `json:"local_path,omitempty"`
	DownloadState *DownloadState                   `json:"download_state,omitempty"`
}

// DownloadState tracks an in-flight or finished model download.
type DownloadState struct {
	Status     string  `json:"status"` // pending, downloading, done, failed, cancelled
	Progress   float64 `json:"progress"`
	Error      string  `json:"error,omitempty"`
	TotalBytes int64   `json:"total_bytes,omitempty"`
}

// defaultRouterModel is registered whenever the file lacks a router entry.
func defaultRouterModel() *RegisteredModel {
	return &RegisteredModel{
		ID:       RouterModelID,
		Name:     "Assistant Router",
		Role:     RoleRouter,
		Provider: llm.ProviderOllama,
		ModelRef: "qwen2.5:1.5b",
		Capabilities: map[datatypes.Capability]float64{
			datatypes.CapGeneral:   0.8,
			datatypes.CapReasoning: 0.85,
		},
		ContextLength: 32768,
		IsDownloaded:  true,
	}
}

type registryFile struct {
	Models []*RegisteredModel `json:"models"`
}

// Registry persists model descriptors to a JSON file and reloads them when
// the file changes on disk (e.g. edited by the user or another process).
//
// # Thread Safety
//
// Reads are concurrent; mutations take the exclusive lock and write through
// to disk.
type Registry struct {
	path    string
	log     *slog.Logger
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	models map[string]*RegisteredModel
}

// NewRegistry loads (or creates) the registry file and guarantees the
// router entry exists.
func NewRegistry(path string, log *slog.Logger) (*Registry, error) {
	r := &Registry{
		path:   path,
		log:    log,
		models: make(map[string]*RegisteredModel),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	if err := r.ensureRouter(); err != nil {
		return nil, err
	}
	return r, nil
}

// Watch starts reloading the registry when its file changes. Call Close to
// stop the watcher.
func (r *Registry) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create registry watcher: %w", err)
	}
	// Watch the directory: editors replace the file, which swaps inodes.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch registry dir: %w", err)
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(r.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := r.load(); err != nil {
					r.log.Error("registry reload failed", slog.Any("error", err))
					continue
				}
				r.log.Info("registry reloaded", slog.String("path", r.path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.log.Error("registry watcher error", slog.Any("error", err))
			}
		}
	}()
	return nil
}

// Close stops the file watcher.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry file: %w", err)
	}
	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse registry file: %w", err)
	}
	models := make(map[string]*RegisteredModel, len(file.Models))
	for _, model := range file.Models {
		models[model.ID] = model
	}
	r.mu.Lock()
	r.models = models
	r.mu.Unlock()
	r.log.Info("loaded model registry", slog.Int("models", len(models)))
	return nil
}

// save writes the registry under the lock held by the caller.
func (r *Registry) save() error {
	file := registryFile{Models: make([]*RegisteredModel, 0, len(r.models))}
	for _, model := range r.models {
		file.Models = append(file.Models, model)
	}
	sort.Slice(file.Models, func(i, j int) bool {
		return file.Models[i].ID < file.Models[j].ID
	})
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o640); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	return nil
}

func (r *Registry) ensureRouter() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, model := range r.models {
		if model.Role == RoleRouter {
			return nil
		}
	}
	router := defaultRouterModel()
	r.models[router.ID] = router
	return r.save()
}

// Register adds a worker model, deriving a unique id from its name. When
// no capability scores are supplied they are inferred from the model name.
func (r *Registry) Register(name string, provider llm.Provider, modelRef string,
	capabilities map[datatypes.Capability]float64, contextLength int) (*RegisteredModel, error) {

	if len(capabilities) == 0 {
		capabilities = DetectCapabilities(name, modelRef)
	}

	id := strings.ToLower(name)
	id = strings.NewReplacer(" ", "-", ".", "-", ":", "-").Replace(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	baseID := id
	for counter := 1; ; counter++ {
		if _, taken := r.models[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s-%d", baseID, counter)
	}

	model := &RegisteredModel{
		ID:            id,
		Name:          name,
		Role:          RoleWorker,
		Provider:      provider,
		ModelRef:      modelRef,
		Capabilities:  capabilities,
		ContextLength: contextLength,
	}
	r.models[id] = model
	if err := r.save(); err != nil {
		return nil, err
	}
	r.log.Info("registered model", slog.String("model_id", id))
	return model, nil
}

// Get returns a model by id, or nil.
func (r *Registry) Get(modelID string) *RegisteredModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[modelID]
}

// Router returns the router entry. ensureRouter guarantees one exists.
func (r *Registry) Router() *RegisteredModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, model := range r.models {
		if model.Role == RoleRouter {
			return model
		}
	}
	return defaultRouterModel()
}

// AvailableWorkers returns all downloaded worker models, sorted by id for
// deterministic prompt construction.
func (r *Registry) AvailableWorkers() []*RegisteredModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var workers []*RegisteredModel
	for _, model := range r.models {
		if model.Role == RoleWorker && model.IsDownloaded {
			workers = append(workers, model)
		}
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return workers
}

// BestForCapability returns the downloaded worker with the highest score
// for a capability, or nil when no workers are available.
func (r *Registry) BestForCapability(capability datatypes.Capability) *RegisteredModel {
	workers := r.AvailableWorkers()
	if len(workers) == 0 {
		return nil
	}
	best := workers[0]
	for _, w := range workers[1:] {
		if w.Capabilities[capability] > best.Capabilities[capability] {
			best = w
		}
	}
	return best
}

// List returns every registered model.
func (r *Registry) List() []*RegisteredModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	models := make([]*RegisteredModel, 0, len(r.models))
	for _, model := range r.models {
		models = append(models, model)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models
}

// SetDownloadStatus updates a model's download state and persists it.
func (r *Registry) SetDownloadStatus(modelID string, downloaded bool, localPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	model, ok := r.models[modelID]
	if !ok {
		return fmt.Errorf("model %s not found", modelID)
	}
	model.IsDownloaded = downloaded
	model.LocalPath = localPath
	return r.save()
}

// SetDownloadState replaces a model's download progress record.
func (r *Registry) SetDownloadState(modelID string, state *DownloadState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	model, ok := r.models[modelID]
	if !ok {
		return fmt.Errorf("model %s not found", modelID)
	}
	model.DownloadState = state
	return r.save()
}

// Delete removes a worker model. The router entry cannot be deleted.
func (r *Registry) Delete(modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	model, ok := r.models[modelID]
	if !ok {
		return fmt.Errorf("model %s not found", modelID)
	}
	if model.Role == RoleRouter {
		return fmt.Errorf("cannot delete the router model")
	}
	delete(r.models, modelID)
	if err := r.save(); err != nil {
		return err
	}
	r.log.Info("deleted model from registry", slog.String("model_id", modelID))
	return nil
}
