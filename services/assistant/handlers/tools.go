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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/engine"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/tools"
)

// HandleChatTools serves GET /chat/tools: the tool list plus the global
// switch.
func HandleChatTools(orch *engine.Orchestrator, registry *tools.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"tools":   registry.List(),
			"enabled": orch.ToolsEnabled(),
		})
	}
}

// HandleChatToolsToggle serves POST /chat/tools/toggle: the global tool
// switch.
func HandleChatToolsToggle(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request datatypes.ToolsToggleRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		orch.SetToolsEnabled(request.Enabled)
		message := "Tools enabled"
		if !request.Enabled {
			message = "Tools disabled"
		}
		c.JSON(http.StatusOK, gin.H{"enabled": request.Enabled, "message": message})
	}
}

// HandleListTools serves GET /tools: the tool descriptors with their
// parameter schemas.
func HandleListTools(registry *tools.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tools": registry.List()})
	}
}

// HandleSetToolEnabled serves PUT /tools/:id: per-tool enable flag.
func HandleSetToolEnabled(registry *tools.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request datatypes.ToolEnableRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		name := c.Param("id")
		if err := registry.SetEnabled(name, request.Enabled); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tool": name, "enabled": request.Enabled})
	}
}
