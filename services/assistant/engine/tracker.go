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
	"log/slog"
	"path/filepath"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/conversation"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

// Tracker applies a successful tool result to the conversation's entity
// store: new entities are inserted, moved entities are rewritten in place,
// deleted entities are pruned, and list/search results become the current
// selection. It switches on the typed output variant, never on strings.
type Tracker struct {
	ctx *conversation.Context
	log *slog.Logger
}

func NewTracker(ctx *conversation.Context, log *slog.Logger) *Tracker {
	return &Tracker{ctx: ctx, log: log}
}

// Track updates the store from one tool result. Failed results are ignored:
// an unverified effect must not pollute the conversation context.
func (t *Tracker) Track(conversationID string, result *datatypes.ToolResult) {
	if result == nil || !result.OK() {
		return
	}
	var err error
	switch output := result.Output.(type) {
	case datatypes.ListOutput:
		err = t.trackList(conversationID, output)
	case datatypes.ReadOutput:
		err = t.trackRead(conversationID, output)
	case datatypes.SearchOutput:
		err = t.trackSearch(conversationID, output)
	default:
		err = t.trackMutation(conversationID, result)
	}
	if err != nil {
		t.log.Error("entity tracking failed",
			slog.String("conversation_id", conversationID),
			slog.String("action", string(result.Action)),
			slog.Any("error", err))
	}
}

func (t *Tracker) trackList(conversationID string, output datatypes.ListOutput) error {
	folder := t.entityFor(conversationID, output.Path, datatypes.KindFolder, datatypes.ProvenanceToolOutput)
	if err := t.ctx.TrackEntity(conversationID, folder, true); err != nil {
		return err
	}

	memberIDs := make([]string, 0, len(output.Items))
	for _, item := range output.Items {
		kind := datatypes.KindFile
		if item.Type == "folder" {
			kind = datatypes.KindFolder
		}
		child := t.entityFor(conversationID, filepath.Join(output.Path, item.Name), kind, datatypes.ProvenanceListResult)
		if err := t.ctx.TrackEntity(conversationID, child, false); err != nil {
			return err
		}
		memberIDs = append(memberIDs, child.ID)
	}
	if len(memberIDs) == 0 {
		return nil
	}
	return t.trackSelection(conversationID, output.Path, memberIDs)
}

func (t *Tracker) trackRead(conversationID string, output datatypes.ReadOutput) error {
	file := t.entityFor(conversationID, output.Path, datatypes.KindFile, datatypes.ProvenanceToolRead)
	return t.ctx.TrackEntity(conversationID, file, true)
}

func (t *Tracker) trackSearch(conversationID string, output datatypes.SearchOutput) error {
	memberIDs := make([]string, 0, len(output.Matches))
	for _, match := range output.Matches {
		file := t.entityFor(conversationID, match, datatypes.KindFile, datatypes.ProvenanceSearchResult)
		if err := t.ctx.TrackEntity(conversationID, file, false); err != nil {
			return err
		}
		memberIDs = append(memberIDs, file.ID)
	}
	if len(memberIDs) == 0 {
		return nil
	}
	return t.trackSelection(conversationID, "search results", memberIDs)
}

func (t *Tracker) trackMutation(conversationID string, result *datatypes.ToolResult) error {
	switch result.Action {
	case datatypes.ActionWrite, datatypes.ActionAppend:
		for _, path := range result.AfterPaths {
			file := t.entityFor(conversationID, path, datatypes.KindFile, datatypes.ProvenanceToolOutput)
			if err := t.ctx.TrackEntity(conversationID, file, true); err != nil {
				return err
			}
		}
	case datatypes.ActionCreate:
		for _, path := range result.AfterPaths {
			folder := t.entityFor(conversationID, path, datatypes.KindFolder, datatypes.ProvenanceToolOutput)
			if err := t.ctx.TrackEntity(conversationID, folder, true); err != nil {
				return err
			}
		}
	case datatypes.ActionMove, datatypes.ActionOrganize:
		return t.trackMoves(conversationID, result)
	case datatypes.ActionCopy:
		for _, path := range result.AfterPaths {
			duplicate := t.entityFor(conversationID, path, datatypes.KindFile, datatypes.ProvenanceToolCopy)
			if err := t.ctx.TrackEntity(conversationID, duplicate, true); err != nil {
				return err
			}
		}
	case datatypes.ActionDelete:
		return t.ctx.PruneDeleted(conversationID, result.BeforePaths)
	}
	return nil
}

// trackMoves rewrites existing entities in place so that a later "it" keeps
// referring to the same id. Destinations never seen before are inserted.
func (t *Tracker) trackMoves(conversationID string, result *datatypes.ToolResult) error {
	store := t.ctx.Store()
	for i, before := range result.BeforePaths {
		if i >= len(result.AfterPaths) {
			break
		}
		after := result.AfterPaths[i]
		existing, err := store.GetByPath(conversationID, before)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := t.ctx.UpdateEntityPath(conversationID, existing.ID, after); err != nil {
				return err
			}
			if existing.Kind == datatypes.KindFile {
				if err := store.SetLastActiveFile(conversationID, existing.ID); err != nil {
					return err
				}
			}
			continue
		}
		dest := t.entityFor(conversationID, after, datatypes.KindFile, datatypes.ProvenanceToolMove)
		if err := t.ctx.TrackEntity(conversationID, dest, result.Action == datatypes.ActionMove); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) trackSelection(conversationID, label string, memberIDs []string) error {
	turn := t.currentTurn(conversationID)
	selection := datatypes.NewEntity(label, label, datatypes.KindSelection,
		datatypes.ProvenanceToolOutput, turn)
	selection.SelectionIDs = memberIDs
	return t.ctx.TrackEntity(conversationID, selection, true)
}

// entityFor reuses the tracked entity for a path when one exists, refreshing
// its provenance, so repeated listings do not mint new ids.
func (t *Tracker) entityFor(conversationID, path string, kind datatypes.EntityKind, provenance datatypes.EntityProvenance) *datatypes.Entity {
	if existing, err := t.ctx.Store().GetByPath(conversationID, path); err == nil && existing != nil {
		existing.Provenance = provenance
		existing.VerifiedExists = datatypes.ExistsTrue
		return existing
	}
	entity := datatypes.NewEntity(filepath.Base(path), path, kind, provenance,
		t.currentTurn(conversationID))
	entity.VerifiedExists = datatypes.ExistsTrue
	return entity
}

func (t *Tracker) currentTurn(conversationID string) int {
	state, err := t.ctx.Store().State(conversationID)
	if err != nil || state == nil {
		return 0
	}
	return state.TurnIndex
}
