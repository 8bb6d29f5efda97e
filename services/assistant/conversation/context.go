// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

// confirmationWords is the closed multilingual confirmation vocabulary.
var confirmationWords = map[string]struct{}{
	"yes": {}, "y": {}, "ok": {}, "sure": {}, "proceed": {}, "confirm": {},
	"sì": {}, "si": {}, "vai": {}, "fallo": {}, "conferma": {}, "procedi": {},
}

// cancellationWords is the closed multilingual cancellation vocabulary.
var cancellationWords = map[string]struct{}{
	"no": {}, "n": {}, "cancel": {}, "stop": {}, "abort": {}, "nevermind": {},
	"never mind": {}, "annulla": {}, "ferma": {},
}

// IsConfirmation reports whether the utterance is a bare confirmation word.
func IsConfirmation(utterance string) bool {
	norm := strings.ToLower(strings.TrimRight(strings.TrimSpace(utterance), ".!"))
	_, ok := confirmationWords[norm]
	return ok
}

// IsCancellation reports whether the utterance is a bare cancellation word.
func IsCancellation(utterance string) bool {
	norm := strings.ToLower(strings.TrimRight(strings.TrimSpace(utterance), ".!"))
	_, ok := cancellationWords[norm]
	return ok
}

// Context owns the entity store, the resolver, and the per-conversation
// pending-action slot.
//
// Pending actions are held in memory: a restart drops an unconfirmed
// destructive action, which fails safe (the user just repeats the request).
type Context struct {
	store    *Store
	resolver *Resolver

	mu      sync.Mutex
	pending map[string]*datatypes.PendingAction
}

// NewContext builds the conversation context over an opened store.
func NewContext(store *Store) *Context {
	return &Context{
		store:    store,
		resolver: NewResolver(store),
		pending:  make(map[string]*datatypes.PendingAction),
	}
}

// Store exposes the underlying entity store.
func (c *Context) Store() *Store { return c.store }

// Resolver exposes the reference resolver.
func (c *Context) Resolver() *Resolver { return c.resolver }

// ===== Pending action slot =====

// SetPending parks a deferred tool execution. Setting over an existing
// pending action is a hard error: the previous one must be consumed first.
func (c *Context) SetPending(conversationID string, action *datatypes.PendingAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[conversationID]; exists {
		return fmt.Errorf("conversation %s already has a pending action", conversationID)
	}
	action.Timestamp = time.Now().UTC()
	c.pending[conversationID] = action
	return nil
}

// Pending returns the current pending action without consuming it.
func (c *Context) Pending(conversationID string) *datatypes.PendingAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[conversationID]
}

// TakePending consumes and returns the pending action, or nil.
func (c *Context) TakePending(conversationID string) *datatypes.PendingAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	action := c.pending[conversationID]
	delete(c.pending, conversationID)
	return action
}

// ClearPending drops any pending action without executing it.
func (c *Context) ClearPending(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, conversationID)
}

// ===== Entity helpers =====

// TrackEntity upserts an entity and optionally promotes it to the matching
// last-active pointer.
func (c *Context) TrackEntity(conversationID string, entity *datatypes.Entity, setActive bool) error {
	if err := c.store.Upsert(conversationID, entity); err != nil {
		return err
	}
	if !setActive {
		return nil
	}
	switch entity.Kind {
	case datatypes.KindFile:
		return c.store.SetLastActiveFile(conversationID, entity.ID)
	case datatypes.KindFolder:
		return c.store.SetLastActiveFolder(conversationID, entity.ID)
	case datatypes.KindSelection:
		return c.store.SetCurrentSelection(conversationID, entity.ID)
	}
	return nil
}

// UpdateEntityPath rewrites an entity's path and display name in place
// after a rename or move. The id is preserved so that a later "it" still
// refers to the same entity.
func (c *Context) UpdateEntityPath(conversationID, entityID, newPath string) error {
	entity, err := c.store.Get(conversationID, entityID)
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("entity %s not found in conversation %s", entityID, conversationID)
	}
	entity.AbsolutePath = newPath
	entity.DisplayName = filepath.Base(newPath)
	entity.Provenance = datatypes.ProvenanceToolMove
	entity.VerifiedExists = datatypes.ExistsTrue
	return c.store.Upsert(conversationID, entity)
}

// PruneDeleted removes the entities whose paths were deleted on disk and
// clears any pointers that referenced them.
func (c *Context) PruneDeleted(conversationID string, paths []string) error {
	state, err := c.store.State(conversationID)
	if err != nil {
		return err
	}
	for _, path := range paths {
		entity, err := c.store.GetByPath(conversationID, path)
		if err != nil {
			return err
		}
		if entity == nil {
			continue
		}
		if err := c.store.Delete(conversationID, entity.ID); err != nil {
			return err
		}
		if state.LastActiveFileID == entity.ID {
			if err := c.store.SetLastActiveFile(conversationID, ""); err != nil {
				return err
			}
		}
		if state.LastActiveFolderID == entity.ID {
			if err := c.store.SetLastActiveFolder(conversationID, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clear wipes the conversation's entities, state row and pending action.
func (c *Context) Clear(conversationID string) error {
	c.ClearPending(conversationID)
	return c.store.Clear(conversationID)
}
