// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for the chat endpoints.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single chat message.
	// Checks byte length, not rune count.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxConversationIDBytes bounds client-supplied conversation ids.
	MaxConversationIDBytes = 128
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for assistant datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the message byte-size limit on string fields.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Request / Response
// =============================================================================

// Message is one transcript entry.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// ChatRequest is the body of POST /chat.
//
// # Fields
//
//   - Message: Required. The user's utterance, limited to 32KB.
//   - ConversationID: Optional. Client-chosen conversation key; a fresh
//     UUID is generated when absent.
//   - Stream: Optional. When true the response is an SSE stream of
//     "data: <chunk>" lines terminated by "data: [DONE]".
type ChatRequest struct {
	Message        string `json:"message" validate:"required,maxbytes"`
	ConversationID string `json:"conversation_id" validate:"max=128"`
	Stream         bool   `json:"stream"`
}

// Validate validates the ChatRequest fields.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults generates a conversation id when the client omitted one.
func (r *ChatRequest) EnsureDefaults() {
	if r.ConversationID == "" {
		r.ConversationID = uuid.NewString()
	}
}

// ChatResponse is the non-streaming body of POST /chat.
//
// ToolUsed carries the structured tool result when a tool ran on this turn;
// it is nil for pure model replies.
type ChatResponse struct {
	ID            string      `json:"id"`
	Content       string      `json:"content"`
	Role          string      `json:"role"`
	ModelUsed     string      `json:"model_used,omitempty"`
	ModelName     string      `json:"model_name,omitempty"`
	RoutingReason string      `json:"routing_reason,omitempty"`
	ToolUsed      *ToolResult `json:"tool_used,omitempty"`
}

// NewChatResponse creates an assistant-role response with a fresh id.
func NewChatResponse(content string) *ChatResponse {
	return &ChatResponse{
		ID:      uuid.NewString(),
		Content: content,
		Role:    "assistant",
	}
}

// =============================================================================
// Toggle / Control Request Types
// =============================================================================

// ToolsToggleRequest is the body of POST /chat/tools/toggle.
type ToolsToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// ToolEnableRequest is the body of PUT /tools/{id}.
type ToolEnableRequest struct {
	Enabled bool `json:"enabled"`
}

// MemoryToggleRequest is the body of POST /memory/toggle.
type MemoryToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// ModelDownloadRequest is the body of POST /models/download.
type ModelDownloadRequest struct {
	ModelID string `json:"model_id" validate:"required,max=256"`
}

// Validate validates the ModelDownloadRequest fields.
func (r *ModelDownloadRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Turn Record
// =============================================================================

// TurnRecord is one persisted transcript entry with its timestamp.
type TurnRecord struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
