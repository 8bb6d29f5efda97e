// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoIndexer is returned by Reindex when no indexer service is configured.
var ErrNoIndexer = fmt.Errorf("no indexer service configured")

// Reindexer forwards reindex requests to the document indexer service.
// Indexing runs out of process; this type only triggers it.
type Reindexer struct {
	indexerURL string
	httpClient *http.Client
}

// NewReindexer builds a reindexer against the indexer's base URL. An empty
// URL yields a reindexer that always returns ErrNoIndexer.
func NewReindexer(indexerURL string) *Reindexer {
	return &Reindexer{
		indexerURL: strings.TrimSuffix(indexerURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether an indexer service URL is set.
func (r *Reindexer) Configured() bool {
	return r.indexerURL != ""
}

// Reindex asks the indexer service to rebuild the document index.
func (r *Reindexer) Reindex(ctx context.Context) error {
	if r.indexerURL == "" {
		return ErrNoIndexer
	}
	req, err := http.NewRequestWithContext(ctx, "POST", r.indexerURL+"/reindex", nil)
	if err != nil {
		return fmt.Errorf("create reindex request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send reindex request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reindex failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
