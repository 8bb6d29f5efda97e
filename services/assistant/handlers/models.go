// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/models"
	"github.com/AleutianAI/AleutianAssistant/services/llm"
)

// ModelRegisterRequest is the body of POST /models.
type ModelRegisterRequest struct {
	Name          string                           `json:"name" binding:"required"`
	Provider      llm.Provider                     `json:"provider" binding:"required"`
	ModelRef      string                           `json:"model_ref" binding:"required"`
	Capabilities  map[datatypes.Capability]float64 `json:"capabilities"`
	ContextLength int                              `json:"context_length"`
}

// HandleListModels serves GET /models.
func HandleListModels(registry *models.Registry, manager *llm.MultiModelManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"models": registry.List(),
			"loaded": manager.GetLoadedModels(),
		})
	}
}

// HandleRegisterModel serves POST /models.
func HandleRegisterModel(registry *models.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request ModelRegisterRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		model, err := registry.Register(request.Name, request.Provider,
			request.ModelRef, request.Capabilities, request.ContextLength)
		if err != nil {
			slog.Error("failed to register model", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
			return
		}
		c.JSON(http.StatusCreated, model)
	}
}

// HandleDeleteModel serves DELETE /models/:id. The router entry is
// protected; deleting it is a 400.
func HandleDeleteModel(registry *models.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		modelID := c.Param("id")
		if registry.Get(modelID) == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
			return
		}
		if err := registry.Delete(modelID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "model_id": modelID})
	}
}

// HandleStartDownload serves POST /models/download.
func HandleStartDownload(downloader *models.Downloader) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request datatypes.ModelDownloadRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := request.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := downloader.Start(request.ModelID); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "model_id": request.ModelID})
	}
}

// HandleCancelDownload serves POST /models/download/:id/cancel.
func HandleCancelDownload(downloader *models.Downloader) gin.HandlerFunc {
	return func(c *gin.Context) {
		modelID := c.Param("id")
		if !downloader.Cancel(modelID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no download in progress"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelling", "model_id": modelID})
	}
}

// HandleDownloadStatus serves GET /models/download/:id/status.
func HandleDownloadStatus(downloader *models.Downloader) gin.HandlerFunc {
	return func(c *gin.Context) {
		modelID := c.Param("id")
		state := downloader.Status(modelID)
		if state == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no download recorded"})
			return
		}
		c.JSON(http.StatusOK, state)
	}
}
