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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReindexer_Unconfigured(t *testing.T) {
	r := NewReindexer("")
	assert.False(t, r.Configured())
	assert.ErrorIs(t, r.Reindex(context.Background()), ErrNoIndexer)
}

func TestReindexer_Delegates(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	r := NewReindexer(server.URL + "/")
	require.True(t, r.Configured())
	require.NoError(t, r.Reindex(context.Background()))
	assert.Equal(t, "/reindex", gotPath)
}

func TestReindexer_IndexerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "index store offline", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewReindexer(server.URL).Reindex(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "index store offline")
}

func TestNoopRetriever(t *testing.T) {
	n := NewNoopRetriever()

	text, err := n.RetrieveContext(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, text)

	status := n.Status()
	assert.Equal(t, "none", status.Backend)
	assert.False(t, status.Available)

	// Toggling is accepted and ignored.
	n.SetEnabled(true)
	assert.False(t, n.Status().Enabled)
}
