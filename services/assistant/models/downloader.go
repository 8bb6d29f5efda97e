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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianAssistant/services/llm"
)

// Download status values stored in DownloadState.Status.
const (
	DownloadPending   = "pending"
	DownloadRunning   = "downloading"
	DownloadDone      = "done"
	DownloadFailed    = "failed"
	DownloadCancelled = "cancelled"
)

// Downloader fetches models in the background. Ollama-served models are
// pulled through the server's /api/pull; file-backed models are fetched
// over HTTP into the models directory.
//
// One download per model id at a time; a second request while one is in
// flight is an error.
type Downloader struct {
	registry      *Registry
	ollamaBaseURL string
	modelsDir     string
	httpClient    *http.Client
	log           *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewDownloader builds a downloader writing file-backed models under
// modelsDir.
func NewDownloader(registry *Registry, ollamaBaseURL, modelsDir string, log *slog.Logger) *Downloader {
	return &Downloader{
		registry:      registry,
		ollamaBaseURL: strings.TrimSuffix(ollamaBaseURL, "/"),
		modelsDir:     modelsDir,
		httpClient:    &http.Client{Timeout: 2 * time.Hour},
		log:           log,
		cancels:       make(map[string]context.CancelFunc),
	}
}

// Start begins a background download for a registered model. Returns an
// error if the model is unknown or a download is already running for it.
func (d *Downloader) Start(modelID string) error {
	model := d.registry.Get(modelID)
	if model == nil {
		return fmt.Errorf("model %s not found", modelID)
	}

	d.mu.Lock()
	if _, running := d.cancels[modelID]; running {
		d.mu.Unlock()
		return fmt.Errorf("download already in progress for %s", modelID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancels[modelID] = cancel
	d.mu.Unlock()

	if err := d.registry.SetDownloadState(modelID, &DownloadState{Status: DownloadPending}); err != nil {
		d.finish(modelID)
		return err
	}

	go func() {
		defer d.finish(modelID)
		err := d.run(ctx, model)
		switch {
		case err == nil:
			_ = d.registry.SetDownloadState(modelID, &DownloadState{Status: DownloadDone, Progress: 1.0})
			_ = d.registry.SetDownloadStatus(modelID, true, model.LocalPath)
			d.log.Info("model download complete", slog.String("model_id", modelID))
		case ctx.Err() != nil:
			_ = d.registry.SetDownloadState(modelID, &DownloadState{Status: DownloadCancelled})
			d.log.Info("model download cancelled", slog.String("model_id", modelID))
		default:
			_ = d.registry.SetDownloadState(modelID, &DownloadState{Status: DownloadFailed, Error: err.Error()})
			d.log.Error("model download failed",
				slog.String("model_id", modelID), slog.Any("error", err))
		}
	}()
	return nil
}

// Cancel aborts an in-flight download. Returns false when none is running.
func (d *Downloader) Cancel(modelID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cancel, ok := d.cancels[modelID]
	if ok {
		cancel()
	}
	return ok
}

// Status returns the model's recorded download state, or nil.
func (d *Downloader) Status(modelID string) *DownloadState {
	model := d.registry.Get(modelID)
	if model == nil {
		return nil
	}
	return model.DownloadState
}

func (d *Downloader) finish(modelID string) {
	d.mu.Lock()
	delete(d.cancels, modelID)
	d.mu.Unlock()
}

func (d *Downloader) run(ctx context.Context, model *RegisteredModel) error {
	if model.Provider == llm.ProviderOllama {
		return d.pullOllama(ctx, model)
	}
	return d.fetchFile(ctx, model)
}

// pullOllama streams /api/pull progress lines and mirrors them into the
// registry's download state.
func (d *Downloader) pullOllama(ctx context.Context, model *RegisteredModel) error {
	payload, err := json.Marshal(map[string]any{"name": model.ModelRef, "stream": true})
	if err != nil {
		return fmt.Errorf("marshal pull request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", d.ollamaBaseURL+"/api/pull",
		bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("create pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send pull request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var progress struct {
			Status    string `json:"status"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &progress); err != nil {
			continue
		}
		state := &DownloadState{Status: DownloadRunning, TotalBytes: progress.Total}
		if progress.Total > 0 {
			state.Progress = float64(progress.Completed) / float64(progress.Total)
		}
		_ = d.registry.SetDownloadState(model.ID, state)
	}
	return scanner.Err()
}

// fetchFile downloads a file-backed model (ModelRef is a URL) into the
// models directory, then records its local path.
func (d *Downloader) fetchFile(ctx context.Context, model *RegisteredModel) error {
	if err := os.MkdirAll(d.modelsDir, 0o750); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}
	dest := filepath.Join(d.modelsDir, filepath.Base(model.ModelRef))

	req, err := http.NewRequestWithContext(ctx, "GET", model.ModelRef, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send download request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(d.modelsDir, ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_ = d.registry.SetDownloadState(model.ID, &DownloadState{
		Status:     DownloadRunning,
		TotalBytes: resp.ContentLength,
	})
	written, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", model.ModelRef, err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("short download: got %d of %d bytes", written, resp.ContentLength)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	model.LocalPath = dest
	return nil
}
