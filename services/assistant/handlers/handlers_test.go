// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/conversation"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/engine"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/guard"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/memory"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/models"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/tools"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	orch     *engine.Orchestrator
	registry *tools.Registry
	home     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	store, err := conversation.NewStore(conversation.DBConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pathGuard := tools.NewPathGuardWithRoots(home, []string{home})
	registry := tools.NewRegistry()
	ops := tools.NewFileOps(pathGuard, nil)
	shell := tools.NewShellRunner(5*time.Second, nil)

	claimGuard, err := guard.New()
	require.NoError(t, err)

	orch := engine.NewOrchestrator(engine.Config{
		Conversation: conversation.NewContext(store),
		Executor:     tools.NewExecutor(registry, ops, shell, nil),
		PathGuard:    pathGuard,
		Guard:        claimGuard,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &testEnv{orch: orch, registry: registry, home: home}
}

func perform(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := perform(router, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, Version, body["version"])
}

func TestHandleChat(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.POST("/chat", HandleChat(env.orch, nil))

	t.Run("tool turn returns the result", func(t *testing.T) {
		path := filepath.Join(env.home, "x.txt")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		w := perform(router, "POST", "/chat",
			`{"message": "delete `+path+`", "conversation_id": "c1"}`)
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		assert.Equal(t, "assistant", body["role"])
		assert.NotEmpty(t, body["content"])
		require.NotNil(t, body["tool_used"])
		toolUsed := body["tool_used"].(map[string]any)
		assert.Equal(t, "success", toolUsed["status"])
	})

	t.Run("conversation id is generated when omitted", func(t *testing.T) {
		w := perform(router, "POST", "/chat", `{"message": "show me your system info"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, decode(t, w)["id"])
	})

	t.Run("missing message is a 400", func(t *testing.T) {
		w := perform(router, "POST", "/chat", `{"conversation_id": "c1"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		w := perform(router, "POST", "/chat", `{"message": `)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleChatStream(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.POST("/chat", HandleChat(env.orch, nil))

	w := perform(router, "POST", "/chat",
		`{"message": "show me your system info", "stream": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	payload := w.Body.String()
	assert.True(t, strings.HasPrefix(payload, "data: "), payload)
	assert.Contains(t, payload, "data: [DONE]")
}

func TestHandleChatClear(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.POST("/chat", HandleChat(env.orch, nil))
	router.POST("/chat/clear", HandleChatClear(env.orch))

	path := filepath.Join(env.home, "note.txt")
	w := perform(router, "POST", "/chat",
		`{"message": "create a file `+path+` with content \"hi\"", "conversation_id": "c1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("clears one conversation", func(t *testing.T) {
		w := perform(router, "POST", "/chat/clear", `{"conversation_id": "c1"}`)
		require.Equal(t, http.StatusOK, w.Code)

		// The tracked file is forgotten: "delete it" finds nothing.
		w = perform(router, "POST", "/chat",
			`{"message": "delete it", "conversation_id": "c1"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, decode(t, w)["content"], "not sure which file")
	})

	t.Run("empty body clears everything", func(t *testing.T) {
		w := perform(router, "POST", "/chat/clear", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestToolEndpoints(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.GET("/chat/tools", HandleChatTools(env.orch, env.registry))
	router.POST("/chat/tools/toggle", HandleChatToolsToggle(env.orch))
	router.GET("/tools", HandleListTools(env.registry))
	router.PUT("/tools/:id", HandleSetToolEnabled(env.registry))

	t.Run("list with global switch", func(t *testing.T) {
		w := perform(router, "GET", "/chat/tools", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["enabled"])
		assert.NotEmpty(t, body["tools"])
	})

	t.Run("global toggle", func(t *testing.T) {
		w := perform(router, "POST", "/chat/tools/toggle", `{"enabled": false}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, env.orch.ToolsEnabled())

		w = perform(router, "POST", "/chat/tools/toggle", `{"enabled": true}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, env.orch.ToolsEnabled())
	})

	t.Run("per-tool toggle", func(t *testing.T) {
		w := perform(router, "PUT", "/tools/run_command", `{"enabled": false}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, env.registry.IsEnabled("run_command"))

		w = perform(router, "PUT", "/tools/run_command", `{"enabled": true}`)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown tool is a 404", func(t *testing.T) {
		w := perform(router, "PUT", "/tools/nope", `{"enabled": true}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestMemoryEndpoints(t *testing.T) {
	retriever := memory.NewNoopRetriever()
	router := gin.New()
	router.GET("/memory/status", HandleMemoryStatus(retriever))
	router.POST("/memory/toggle", HandleMemoryToggle(retriever))
	router.POST("/memory/reindex", HandleMemoryReindex(memory.NewReindexer("")))

	t.Run("status", func(t *testing.T) {
		w := perform(router, "GET", "/memory/status", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "none", decode(t, w)["backend"])
	})

	t.Run("toggle", func(t *testing.T) {
		w := perform(router, "POST", "/memory/toggle", `{"enabled": true}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("reindex without indexer is a 503", func(t *testing.T) {
		w := perform(router, "POST", "/memory/reindex", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestModelEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	registry, err := models.NewRegistry(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	router := gin.New()
	router.POST("/models", HandleRegisterModel(registry))
	router.DELETE("/models/:id", HandleDeleteModel(registry))

	t.Run("register", func(t *testing.T) {
		w := perform(router, "POST", "/models",
			`{"name": "Llama 3.1 8B", "provider": "ollama", "model_ref": "llama3.1:8b"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "llama-3-1-8b", decode(t, w)["id"])
	})

	t.Run("register without required fields", func(t *testing.T) {
		w := perform(router, "POST", "/models", `{"name": "No Ref"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete worker", func(t *testing.T) {
		w := perform(router, "DELETE", "/models/llama-3-1-8b", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("delete unknown is a 404", func(t *testing.T) {
		w := perform(router, "DELETE", "/models/ghost", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("router entry is protected", func(t *testing.T) {
		w := perform(router, "DELETE", "/models/"+models.RouterModelID, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
