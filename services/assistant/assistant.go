// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant assembles the local assistant service: tool layer,
// conversation store, model registry, router, and the turn orchestrator,
// exposed over a loopback HTTP API.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/conversation"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/engine"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/guard"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/memory"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/models"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/observability"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/routes"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/tools"
	"github.com/AleutianAI/AleutianAssistant/services/llm"
)

// Config holds the service configuration, typically from the environment.
type Config struct {
	// Port is the loopback HTTP port.
	Port string

	// DataDir holds the entity database, the model registry file, and
	// downloaded model files.
	DataDir string

	// OllamaBaseURL is the Ollama server serving the router and Ollama
	// workers.
	OllamaBaseURL string

	// WeaviateURL enables document memory when set.
	WeaviateURL string

	// IndexerURL is the out-of-process document indexer, for /memory/reindex.
	IndexerURL string

	// ShellTimeout bounds run_command executions.
	ShellTimeout time.Duration

	// Metrics is optional; nil disables Prometheus instrumentation.
	Metrics *observability.AssistantMetrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ConfigFromEnv reads the service configuration from the environment.
func ConfigFromEnv() Config {
	cfg := Config{
		Port:          os.Getenv("ASSISTANT_PORT"),
		DataDir:       os.Getenv("ASSISTANT_DATA_DIR"),
		OllamaBaseURL: os.Getenv("OLLAMA_BASE_URL"),
		WeaviateURL:   strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' "),
		IndexerURL:    os.Getenv("INDEXER_SERVICE_URL"),
	}
	if cfg.Port == "" {
		cfg.Port = "12230"
	}
	if cfg.OllamaBaseURL == "" {
		cfg.OllamaBaseURL = "http://localhost:11434"
	}
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, ".aleutian", "assistant")
		} else {
			cfg.DataDir = filepath.Join(os.TempDir(), "aleutian-assistant")
		}
	}
	return cfg
}

// Service owns every long-lived component of the assistant.
type Service struct {
	cfg          Config
	log          *slog.Logger
	orchestrator *engine.Orchestrator
	toolRegistry *tools.Registry
	registry     *models.Registry
	downloader   *models.Downloader
	manager      *llm.MultiModelManager
	retriever    memory.Retriever
	reindexer    *memory.Reindexer
	router       *engine.Router
	store        *conversation.Store
	metrics      *observability.AssistantMetrics
}

// New wires the service. Weaviate being unreachable is not fatal: memory
// degrades to the no-op retriever.
func New(cfg Config) (*Service, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	pathGuard, err := tools.NewPathGuard()
	if err != nil {
		return nil, fmt.Errorf("init path guard: %w", err)
	}

	store, err := conversation.NewStore(
		conversation.DefaultDBConfig(filepath.Join(cfg.DataDir, "entities")))
	if err != nil {
		return nil, fmt.Errorf("open entity store: %w", err)
	}
	convo := conversation.NewContext(store)

	toolRegistry := tools.NewRegistry()
	fileOps := tools.NewFileOps(pathGuard, log)
	shell := tools.NewShellRunner(cfg.ShellTimeout, log)
	executor := tools.NewExecutor(toolRegistry, fileOps, shell, log)

	claimGuard, err := guard.New()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init claim guard: %w", err)
	}

	registry, err := models.NewRegistry(filepath.Join(cfg.DataDir, "registry.json"), log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init model registry: %w", err)
	}
	if err := registry.Watch(); err != nil {
		log.Warn("registry hot-reload unavailable", slog.Any("error", err))
	}
	downloader := models.NewDownloader(registry, cfg.OllamaBaseURL,
		filepath.Join(cfg.DataDir, "models"), log)

	manager := llm.NewMultiModelManager(cfg.OllamaBaseURL)
	router := engine.NewRouter(registry, manager, log)

	var retriever memory.Retriever
	if cfg.WeaviateURL != "" {
		weaviateRetriever, werr := memory.NewWeaviateRetriever(cfg.WeaviateURL, 5, log)
		if werr != nil {
			log.Warn("weaviate unavailable, memory disabled", slog.Any("error", werr))
			retriever = memory.NewNoopRetriever()
		} else {
			retriever = weaviateRetriever
		}
	} else {
		log.Info("WEAVIATE_SERVICE_URL not set, memory disabled")
		retriever = memory.NewNoopRetriever()
	}

	orchestrator := engine.NewOrchestrator(engine.Config{
		Conversation: convo,
		Executor:     executor,
		PathGuard:    pathGuard,
		Guard:        claimGuard,
		Router:       router,
		Registry:     registry,
		Manager:      manager,
		Retriever:    retriever,
		Metrics:      cfg.Metrics,
		Logger:       log,
	})

	return &Service{
		cfg:          cfg,
		log:          log,
		orchestrator: orchestrator,
		toolRegistry: toolRegistry,
		registry:     registry,
		downloader:   downloader,
		manager:      manager,
		retriever:    retriever,
		reindexer:    memory.NewReindexer(cfg.IndexerURL),
		router:       router,
		store:        store,
		metrics:      cfg.Metrics,
	}, nil
}

// Orchestrator exposes the turn pipeline, mainly for tests.
func (s *Service) Orchestrator() *engine.Orchestrator { return s.orchestrator }

// Engine builds the HTTP router with tracing middleware and all routes.
func (s *Service) Engine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("assistant-service"))
	routes.SetupRoutes(router, routes.Deps{
		Orchestrator: s.orchestrator,
		ToolRegistry: s.toolRegistry,
		Registry:     s.registry,
		Downloader:   s.downloader,
		Manager:      s.manager,
		Retriever:    s.retriever,
		Reindexer:    s.reindexer,
		Metrics:      s.metrics,
	})
	return router
}

// Run warms the router model and serves HTTP until the server exits.
func (s *Service) Run(ctx context.Context) error {
	// Best effort: the first chat turn retries the warmup anyway.
	warmCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	if err := s.router.EnsureReady(warmCtx); err != nil {
		s.log.Warn("router model warmup failed", slog.Any("error", err))
	}
	cancel()

	addr := ":" + s.cfg.Port
	s.log.Info("starting assistant server", slog.String("addr", addr))
	return s.Engine().Run(addr)
}

// Close releases the registry watcher and the entity store.
func (s *Service) Close() error {
	if err := s.registry.Close(); err != nil {
		s.log.Warn("closing registry watcher", slog.Any("error", err))
	}
	return s.store.Close()
}
