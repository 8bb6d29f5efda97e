// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the conversation-scoped entity model: tracked files,
// folders and selections, the per-conversation state row, and the pending
// action slot used by the confirmation protocol.
package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Entity Kinds and Provenance
// =============================================================================

// EntityKind classifies a tracked entity.
type EntityKind string

const (
	KindFile       EntityKind = "file"
	KindFolder     EntityKind = "folder"
	KindSelection  EntityKind = "selection"
	KindIndex      EntityKind = "index"
	KindToolResult EntityKind = "tool_result"
)

// EntityProvenance records how an entity entered the conversation.
type EntityProvenance string

const (
	ProvenanceUserExplicit EntityProvenance = "user_explicit"
	ProvenanceSearchResult EntityProvenance = "search_result"
	ProvenanceListResult   EntityProvenance = "list_result"
	ProvenanceToolOutput   EntityProvenance = "tool_output"
	ProvenanceToolRead     EntityProvenance = "tool_read"
	ProvenanceToolMove     EntityProvenance = "tool_move"
	ProvenanceToolCopy     EntityProvenance = "tool_copy"
	ProvenanceInferred     EntityProvenance = "inferred"
)

// ExistsState is the tri-state existence knowledge for an entity's path.
type ExistsState string

const (
	ExistsTrue      ExistsState = "true"
	ExistsFalse     ExistsState = "false"
	ExistsUnchecked ExistsState = "unchecked"
)

// =============================================================================
// Entity
// =============================================================================

// Entity is a stable, conversation-scoped handle for a file, folder, or
// ordered set thereof.
//
// # Description
//
// Entities are the nouns the reference resolver works over: every path a tool
// touches or a user mentions becomes an Entity, and later utterances like
// "it" or "the second one" resolve back to one of them. The ID is the sole
// cross-turn handle and never changes once assigned; a rename or move
// rewrites AbsolutePath and DisplayName in place on the same record.
//
// # Fields
//
//   - ID: Opaque unique identifier (UUID v4). Stable across rename/move.
//   - DisplayName: Human-readable label, usually the basename.
//   - AbsolutePath: Canonical resolved path. Always stored canonicalized
//     (home expanded, symlinks followed) by the store.
//   - Kind: file, folder, selection, index, or tool_result.
//   - Provenance: How the entity entered the conversation.
//   - Timestamp: When introduced or last updated.
//   - TurnIndex: Conversation turn on which it was introduced.
//   - Metadata: Optional size/mtime/mime/item-count details.
//   - SelectionIDs: For Kind=selection, the ordered member entity ids.
//   - VerifiedExists: Tri-state existence knowledge.
//
// # Assumptions
//
//   - A selection's SelectionIDs all resolve within the same conversation.
type Entity struct {
	ID             string           `json:"id"`
	DisplayName    string           `json:"display_name"`
	AbsolutePath   string           `json:"absolute_path"`
	Kind           EntityKind       `json:"kind"`
	Provenance     EntityProvenance `json:"provenance"`
	Timestamp      time.Time        `json:"timestamp"`
	TurnIndex      int              `json:"turn_index"`
	Metadata       *EntityMetadata  `json:"metadata,omitempty"`
	SelectionIDs   []string         `json:"selection_ids,omitempty"`
	VerifiedExists ExistsState      `json:"verified_exists"`
}

// EntityMetadata carries optional filesystem details about an entity.
type EntityMetadata struct {
	SizeBytes int64     `json:"size_bytes,omitempty"`
	ModTime   time.Time `json:"mod_time,omitempty"`
	MimeType  string    `json:"mime_type,omitempty"`
	ItemCount int       `json:"item_count,omitempty"`
}

// NewEntity creates an Entity with a fresh id and the current timestamp.
//
// The caller is expected to pass an already-canonicalized path; the store
// canonicalizes again on write as a backstop.
func NewEntity(displayName, absolutePath string, kind EntityKind,
	provenance EntityProvenance, turnIndex int) *Entity {

	return &Entity{
		ID:             uuid.NewString(),
		DisplayName:    displayName,
		AbsolutePath:   absolutePath,
		Kind:           kind,
		Provenance:     provenance,
		Timestamp:      time.Now().UTC(),
		TurnIndex:      turnIndex,
		VerifiedExists: ExistsUnchecked,
	}
}

// IsSelection reports whether the entity is an ordered multi-item selection.
func (e *Entity) IsSelection() bool {
	return e.Kind == KindSelection
}

// =============================================================================
// Conversation State
// =============================================================================

// ConversationState is the per-conversation pointer row.
//
// # Fields
//
//   - LastActiveFileID: Entity id of the most recently touched file.
//   - LastActiveFolderID: Entity id of the most recently touched folder.
//   - CurrentSelectionID: Entity id of the current list/search selection.
//   - TurnIndex: Monotonically non-decreasing turn counter.
//
// All ids reference entities belonging to the same conversation.
type ConversationState struct {
	LastActiveFileID   string `json:"last_active_file_id,omitempty"`
	LastActiveFolderID string `json:"last_active_folder_id,omitempty"`
	CurrentSelectionID string `json:"current_selection_id,omitempty"`
	TurnIndex          int    `json:"turn_index"`
}

// =============================================================================
// Pending Action
// =============================================================================

// PendingAction is the one-shot "execute this if the user confirms" slot.
//
// At most one PendingAction exists per conversation at any time. It is
// consumed on confirmation, cancellation, or an ordinal reply that rebinds
// the target and executes.
type PendingAction struct {
	ToolName  string            `json:"tool_name"`
	Params    map[string]string `json:"params"`
	Entity    *Entity           `json:"entity,omitempty"`
	Reason    string            `json:"reason"`
	Timestamp time.Time         `json:"timestamp"`
	// Alternatives holds the candidate entities offered for an ordinal
	// reply, in the order they were presented to the user.
	Alternatives []*Entity `json:"alternatives,omitempty"`
	// RebindParam names the parameter an ordinal reply rebinds ("path",
	// "source", ...). Empty means ordinal replies are not accepted.
	RebindParam string `json:"rebind_param,omitempty"`
}

// =============================================================================
// Resolved Reference
// =============================================================================

// Confidence grades how sure the resolver is about a reference.
type Confidence string

const (
	ConfidenceHigh      Confidence = "high"
	ConfidenceMedium    Confidence = "medium"
	ConfidenceLow       Confidence = "low"
	ConfidenceAmbiguous Confidence = "ambiguous"
	ConfidenceNone      Confidence = "none"
)

// ResolvedReference is the resolver's answer for one utterance.
//
// Entity is nil when nothing matched. Alternatives is the ordered candidate
// list offered to the user when the result is ambiguous or out of range.
type ResolvedReference struct {
	Entity       *Entity    `json:"entity,omitempty"`
	Confidence   Confidence `json:"confidence"`
	Score        float64    `json:"score"`
	Reason       string     `json:"reason"`
	Alternatives []*Entity  `json:"alternatives,omitempty"`
}

// ConfidenceForScore maps a resolver score onto the confidence ladder.
//
// Thresholds: >=0.9 high, >=0.6 medium, >=0.3 low, else none.
func ConfidenceForScore(score float64) Confidence {
	switch {
	case score >= 0.9:
		return ConfidenceHigh
	case score >= 0.6:
		return ConfidenceMedium
	case score >= 0.3:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}
