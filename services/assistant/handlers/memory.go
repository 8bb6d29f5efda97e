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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/memory"
)

// HandleMemoryStatus serves GET /memory/status.
func HandleMemoryStatus(retriever memory.Retriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, retriever.Status())
	}
}

// HandleMemoryToggle serves POST /memory/toggle.
func HandleMemoryToggle(retriever memory.Retriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request datatypes.MemoryToggleRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		retriever.SetEnabled(request.Enabled)
		c.JSON(http.StatusOK, retriever.Status())
	}
}

// HandleMemoryReindex serves POST /memory/reindex, delegating to the
// out-of-process indexer when one is configured.
func HandleMemoryReindex(reindexer *memory.Reindexer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := reindexer.Reindex(c.Request.Context()); err != nil {
			if errors.Is(err, memory.ErrNoIndexer) {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unavailable",
					"error":  "no indexer service configured",
				})
				return
			}
			slog.Error("reindex request failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"status": "error", "error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "reindexing"})
	}
}
