// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the assistant's HTTP endpoints.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/engine"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/observability"
)

var chatTracer = otel.Tracer("aleutian.assistant.handlers")

// HandleChat serves POST /chat: one turn through the orchestrator, as JSON
// or as an SSE stream when the request asks for one.
func HandleChat(orch *engine.Orchestrator, metrics *observability.AssistantMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var request datatypes.ChatRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := request.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		request.EnsureDefaults()
		span.SetAttributes(
			attribute.String("conversation.id", request.ConversationID),
			attribute.Bool("stream", request.Stream),
		)

		if request.Stream {
			streamChat(c, orch, &request, metrics)
			return
		}

		resp, err := orch.Chat(ctx, request.ConversationID, request.Message)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("chat turn failed", "error", err,
				"conversation_id", request.ConversationID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "chat failed"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// streamChat delivers the turn as "data: <chunk>" SSE events terminated by
// "data: [DONE]". Multi-line chunks become multi-line data events.
func streamChat(c *gin.Context, orch *engine.Orchestrator,
	request *datatypes.ChatRequest, metrics *observability.AssistantMetrics) {

	if metrics != nil {
		metrics.StreamStarted()
		defer metrics.StreamEnded()
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	_, err := orch.ChatStream(c.Request.Context(), request.ConversationID, request.Message,
		func(chunk string) error {
			for _, line := range strings.Split(chunk, "\n") {
				if _, werr := fmt.Fprintf(c.Writer, "data: %s\n", line); werr != nil {
					return werr
				}
			}
			if _, werr := fmt.Fprint(c.Writer, "\n"); werr != nil {
				return werr
			}
			flusher.Flush()
			return nil
		})
	if err != nil {
		slog.Error("chat stream failed", "error", err,
			"conversation_id", request.ConversationID)
		fmt.Fprintf(c.Writer, "data: %s\n\n", "Something went wrong. Please retry.")
	}
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	flusher.Flush()
}

// HandleChatClear serves POST /chat/clear. With a conversation_id it clears
// that conversation; without one it clears everything.
func HandleChatClear(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			ConversationID string `json:"conversation_id"`
		}
		// Body is optional.
		_ = c.ShouldBindJSON(&request)

		var err error
		if request.ConversationID != "" {
			err = orch.ClearConversation(request.ConversationID)
		} else {
			err = orch.ClearAll()
		}
		if err != nil {
			slog.Error("failed to clear conversation", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "clear failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleChatRouting serves GET /chat/routing: the last routing decision.
func HandleChatRouting(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := orch.LastRouting()
		if decision == nil {
			c.JSON(http.StatusOK, gin.H{"routing": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"routing": decision})
	}
}
