// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory supplies conversational context retrieved from the user's
// indexed documents. The retriever is consulted before a message goes to a
// worker model; its output is injected into the prompt as a context block.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// DocumentChunkClassName is the Weaviate class holding indexed document
// chunks.
const DocumentChunkClassName = "DocumentChunk"

// contextHeader opens the injected context block in the worker prompt.
const contextHeader = "# Relevant Context from User's Documents"

// Retriever supplies document context for a user query.
//
// # Outputs
//
// RetrieveContext returns a ready-to-inject prompt block, or "" when there
// is nothing relevant (callers must treat "" as "no context").
type Retriever interface {
	RetrieveContext(ctx context.Context, query string) (string, error)
	Status() Status
	SetEnabled(enabled bool)
}

// Status describes the retriever for the /memory/status endpoint.
type Status struct {
	Enabled   bool   `json:"enabled"`
	Backend   string `json:"backend"`
	Available bool   `json:"available"`
	Chunks    int    `json:"indexed_chunks"`
}

// WeaviateRetriever pulls document chunks from Weaviate with a nearText
// semantic query.
//
// # Thread Safety
//
// Safe for concurrent use; the enabled flag is guarded by a mutex, queries
// go straight to the Weaviate client.
type WeaviateRetriever struct {
	client    *weaviate.Client
	maxChunks int
	log       *slog.Logger

	mu      sync.RWMutex
	enabled bool
}

// NewWeaviateRetriever connects to a Weaviate instance at url (scheme
// optional, http assumed).
func NewWeaviateRetriever(url string, maxChunks int, log *slog.Logger) (*WeaviateRetriever, error) {
	cfg := weaviate.Config{
		Host:   url,
		Scheme: "http",
	}
	if strings.HasPrefix(url, "https://") {
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(url, "https://")
	} else if strings.HasPrefix(url, "http://") {
		cfg.Host = strings.TrimPrefix(url, "http://")
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	if maxChunks <= 0 {
		maxChunks = 5
	}
	return &WeaviateRetriever{
		client:    client,
		maxChunks: maxChunks,
		log:       log,
		enabled:   true,
	}, nil
}

// RetrieveContext runs a nearText query over DocumentChunk and assembles
// the matches into one prompt block. Returns "" when disabled, when nothing
// matches, or when the query is empty.
func (w *WeaviateRetriever) RetrieveContext(ctx context.Context, query string) (string, error) {
	w.mu.RLock()
	enabled := w.enabled
	w.mu.RUnlock()
	if !enabled || strings.TrimSpace(query) == "" {
		return "", nil
	}

	nearText := w.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional { certainty }"},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(DocumentChunkClassName).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(w.maxChunks).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("document search: %w", err)
	}
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("document search: %s", result.Errors[0].Message)
	}

	chunks := parseChunks(result.Data)
	if len(chunks) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	b.WriteString("\n\n")
	for _, chunk := range chunks {
		if chunk.Source != "" {
			fmt.Fprintf(&b, "[%s]\n", chunk.Source)
		}
		b.WriteString(strings.TrimSpace(chunk.Content))
		b.WriteString("\n\n")
	}
	w.log.Debug("retrieved document context",
		slog.Int("chunks", len(chunks)))
	return strings.TrimSpace(b.String()), nil
}

// Status reports availability by counting indexed chunks with an aggregate
// query. A failed aggregate marks the backend unavailable but leaves the
// enabled flag alone.
func (w *WeaviateRetriever) Status() Status {
	status := Status{Backend: "weaviate"}
	w.mu.RLock()
	status.Enabled = w.enabled
	w.mu.RUnlock()

	result, err := w.client.GraphQL().Aggregate().
		WithClassName(DocumentChunkClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(context.Background())
	if err != nil || len(result.Errors) > 0 {
		return status
	}
	status.Available = true
	status.Chunks = parseAggregateCount(result.Data)
	return status
}

// SetEnabled toggles retrieval without touching the backend.
func (w *WeaviateRetriever) SetEnabled(enabled bool) {
	w.mu.Lock()
	w.enabled = enabled
	w.mu.Unlock()
	w.log.Info("memory retrieval toggled", slog.Bool("enabled", enabled))
}

type documentChunk struct {
	Content string
	Source  string
}

func parseChunks(data map[string]models.JSONObject) []documentChunk {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[DocumentChunkClassName].([]interface{})
	if !ok {
		return nil
	}
	chunks := make([]documentChunk, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := m["content"].(string)
		if strings.TrimSpace(content) == "" {
			continue
		}
		source, _ := m["source"].(string)
		chunks = append(chunks, documentChunk{Content: content, Source: source})
	}
	return chunks
}

func parseAggregateCount(data map[string]models.JSONObject) int {
	agg, ok := data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0
	}
	objects, ok := agg[DocumentChunkClassName].([]interface{})
	if !ok || len(objects) == 0 {
		return 0
	}
	m, ok := objects[0].(map[string]interface{})
	if !ok {
		return 0
	}
	meta, ok := m["meta"].(map[string]interface{})
	if !ok {
		return 0
	}
	count, _ := meta["count"].(float64)
	return int(count)
}
