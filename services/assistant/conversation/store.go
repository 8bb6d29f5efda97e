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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

// Key layout:
//
//	entity/<conversation>/<entity-id> -> Entity JSON
//	path/<conversation>/<canonical-path> -> entity id
//	state/<conversation> -> ConversationState JSON
const (
	entityPrefix = "entity/"
	pathPrefix   = "path/"
	statePrefix  = "state/"
)

// Store is the durable per-conversation entity store.
//
// Writes for one conversation are serialized through a per-conversation
// mutex; readers and writes for different conversations do not block each
// other (Badger transactions are already safe for concurrent use, the mutex
// only protects read-modify-write sequences like the path index swap).
type Store struct {
	db *badger.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore opens the entity database.
func NewStore(cfg DBConfig) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// lockFor returns the write lock for one conversation.
func (s *Store) lockFor(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[conversationID] = l
	}
	return l
}

func entityKey(conversationID, id string) []byte {
	return []byte(entityPrefix + conversationID + "/" + id)
}

func pathKey(conversationID, path string) []byte {
	return []byte(pathPrefix + conversationID + "/" + path)
}

func stateKey(conversationID string) []byte {
	return []byte(statePrefix + conversationID)
}

// CanonicalPath makes a path absolute, cleans it, and follows symlinks when
// the path exists. Entities are always stored under canonical paths.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	abs = filepath.Clean(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	} else if !os.IsNotExist(err) {
		return abs
	}
	// Not on disk yet: canonicalize the deepest existing ancestor.
	dir := filepath.Dir(abs)
	if dir == abs {
		return abs
	}
	return filepath.Join(CanonicalPath(dir), filepath.Base(abs))
}

// Upsert inserts or updates an entity by id, maintaining the path index.
// A path change (rename/move) drops the old index key in the same
// transaction.
func (s *Store) Upsert(conversationID string, entity *datatypes.Entity) error {
	if entity.ID == "" {
		return fmt.Errorf("entity has no id")
	}
	if entity.Kind != datatypes.KindSelection {
		entity.AbsolutePath = CanonicalPath(entity.AbsolutePath)
	}
	entity.Timestamp = time.Now().UTC()

	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		// Drop the stale path index when the entity moved.
		if item, err := txn.Get(entityKey(conversationID, entity.ID)); err == nil {
			var previous datatypes.Entity
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &previous)
			}); err == nil && previous.AbsolutePath != "" &&
				previous.AbsolutePath != entity.AbsolutePath {
				if err := txn.Delete(pathKey(conversationID, previous.AbsolutePath)); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(entity)
		if err != nil {
			return fmt.Errorf("marshal entity %s: %w", entity.ID, err)
		}
		if err := txn.Set(entityKey(conversationID, entity.ID), data); err != nil {
			return err
		}
		if entity.Kind != datatypes.KindSelection && entity.AbsolutePath != "" {
			return txn.Set(pathKey(conversationID, entity.AbsolutePath), []byte(entity.ID))
		}
		return nil
	})
}

// Get looks an entity up by id. Returns nil when absent.
func (s *Store) Get(conversationID, id string) (*datatypes.Entity, error) {
	var entity *datatypes.Entity
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entityKey(conversationID, id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entity = &datatypes.Entity{}
			return json.Unmarshal(val, entity)
		})
	})
	return entity, err
}

// GetByPath looks an entity up by its canonical path within a conversation.
func (s *Store) GetByPath(conversationID, path string) (*datatypes.Entity, error) {
	canonical := CanonicalPath(path)
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pathKey(conversationID, canonical))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil || id == "" {
		return nil, err
	}
	return s.Get(conversationID, id)
}

// All returns every entity in the conversation, newest first, optionally
// filtered by kind. limit <= 0 means unbounded.
func (s *Store) All(conversationID string, kind datatypes.EntityKind, limit int) ([]*datatypes.Entity, error) {
	var entities []*datatypes.Entity
	prefix := []byte(entityPrefix + conversationID + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var entity datatypes.Entity
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entity)
			}); err != nil {
				return err
			}
			if kind != "" && entity.Kind != kind {
				continue
			}
			e := entity
			entities = append(entities, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].Timestamp.After(entities[j].Timestamp)
	})
	if limit > 0 && len(entities) > limit {
		entities = entities[:limit]
	}
	return entities, nil
}

// Delete removes an entity and its path index entry.
func (s *Store) Delete(conversationID, id string) error {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(entityKey(conversationID, id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var entity datatypes.Entity
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entity)
		}); err != nil {
			return err
		}
		if entity.AbsolutePath != "" && entity.Kind != datatypes.KindSelection {
			if err := txn.Delete(pathKey(conversationID, entity.AbsolutePath)); err != nil {
				return err
			}
		}
		return txn.Delete(entityKey(conversationID, id))
	})
}

// State reads the conversation state row; a missing row yields the zero
// state.
func (s *Store) State(conversationID string) (*datatypes.ConversationState, error) {
	state := &datatypes.ConversationState{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(conversationID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, state)
		})
	})
	return state, err
}

// mutateState applies fn to the state row under the conversation lock.
func (s *Store) mutateState(conversationID string, fn func(*datatypes.ConversationState)) error {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.State(conversationID)
	if err != nil {
		return err
	}
	fn(state)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(conversationID), data)
	})
}

// SetLastActiveFile points the conversation at its most recently touched
// file.
func (s *Store) SetLastActiveFile(conversationID, entityID string) error {
	return s.mutateState(conversationID, func(st *datatypes.ConversationState) {
		st.LastActiveFileID = entityID
	})
}

// SetLastActiveFolder points the conversation at its most recently touched
// folder.
func (s *Store) SetLastActiveFolder(conversationID, entityID string) error {
	return s.mutateState(conversationID, func(st *datatypes.ConversationState) {
		st.LastActiveFolderID = entityID
	})
}

// SetCurrentSelection points the conversation at its current selection.
func (s *Store) SetCurrentSelection(conversationID, entityID string) error {
	return s.mutateState(conversationID, func(st *datatypes.ConversationState) {
		st.CurrentSelectionID = entityID
	})
}

// IncrementTurn bumps the turn counter and returns the new value.
func (s *Store) IncrementTurn(conversationID string) (int, error) {
	var turn int
	err := s.mutateState(conversationID, func(st *datatypes.ConversationState) {
		st.TurnIndex++
		turn = st.TurnIndex
	})
	return turn, err
}

// LastActiveFile dereferences the last-active-file pointer.
func (s *Store) LastActiveFile(conversationID string) (*datatypes.Entity, error) {
	state, err := s.State(conversationID)
	if err != nil || state.LastActiveFileID == "" {
		return nil, err
	}
	return s.Get(conversationID, state.LastActiveFileID)
}

// LastActiveFolder dereferences the last-active-folder pointer.
func (s *Store) LastActiveFolder(conversationID string) (*datatypes.Entity, error) {
	state, err := s.State(conversationID)
	if err != nil || state.LastActiveFolderID == "" {
		return nil, err
	}
	return s.Get(conversationID, state.LastActiveFolderID)
}

// CurrentSelection dereferences the current-selection pointer.
func (s *Store) CurrentSelection(conversationID string) (*datatypes.Entity, error) {
	state, err := s.State(conversationID)
	if err != nil || state.CurrentSelectionID == "" {
		return nil, err
	}
	return s.Get(conversationID, state.CurrentSelectionID)
}

// SelectionItems dereferences a selection's member ids in order, skipping
// members that no longer exist.
func (s *Store) SelectionItems(conversationID, selectionID string) ([]*datatypes.Entity, error) {
	selection, err := s.Get(conversationID, selectionID)
	if err != nil || selection == nil {
		return nil, err
	}
	items := make([]*datatypes.Entity, 0, len(selection.SelectionIDs))
	for _, id := range selection.SelectionIDs {
		entity, err := s.Get(conversationID, id)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			items = append(items, entity)
		}
	}
	return items, nil
}

// Clear removes all entities and state for one conversation. Other
// conversations are untouched.
func (s *Store) Clear(conversationID string) error {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	prefixes := [][]byte{
		[]byte(entityPrefix + conversationID + "/"),
		[]byte(pathPrefix + conversationID + "/"),
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range prefixes {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			var keys [][]byte
			for it.Rewind(); it.Valid(); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		return txn.Delete(stateKey(conversationID))
	})
}
