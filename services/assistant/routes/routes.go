// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/engine"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/handlers"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/memory"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/models"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/observability"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/tools"
	"github.com/AleutianAI/AleutianAssistant/services/llm"
)

// Deps carries everything the route table needs.
type Deps struct {
	Orchestrator *engine.Orchestrator
	ToolRegistry *tools.Registry
	Registry     *models.Registry
	Downloader   *models.Downloader
	Manager      *llm.MultiModelManager
	Retriever    memory.Retriever
	Reindexer    *memory.Reindexer
	Metrics      *observability.AssistantMetrics
}

// SetupRoutes registers the assistant API on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/chat", handlers.HandleChat(deps.Orchestrator, deps.Metrics))
	router.POST("/chat/clear", handlers.HandleChatClear(deps.Orchestrator))
	router.GET("/chat/routing", handlers.HandleChatRouting(deps.Orchestrator))
	router.GET("/chat/tools", handlers.HandleChatTools(deps.Orchestrator, deps.ToolRegistry))
	router.POST("/chat/tools/toggle", handlers.HandleChatToolsToggle(deps.Orchestrator))

	router.GET("/tools", handlers.HandleListTools(deps.ToolRegistry))
	router.PUT("/tools/:id", handlers.HandleSetToolEnabled(deps.ToolRegistry))

	router.GET("/memory/status", handlers.HandleMemoryStatus(deps.Retriever))
	router.POST("/memory/toggle", handlers.HandleMemoryToggle(deps.Retriever))
	router.POST("/memory/reindex", handlers.HandleMemoryReindex(deps.Reindexer))

	modelRoutes := router.Group("/models")
	{
		modelRoutes.GET("", handlers.HandleListModels(deps.Registry, deps.Manager))
		modelRoutes.POST("", handlers.HandleRegisterModel(deps.Registry))
		modelRoutes.DELETE("/:id", handlers.HandleDeleteModel(deps.Registry))
		modelRoutes.POST("/download", handlers.HandleStartDownload(deps.Downloader))
		modelRoutes.POST("/download/:id/cancel", handlers.HandleCancelDownload(deps.Downloader))
		modelRoutes.GET("/download/:id/status", handlers.HandleDownloadStatus(deps.Downloader))
	}
}
