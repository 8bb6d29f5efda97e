// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command assistant starts the Aleutian local assistant daemon.
//
// The daemon serves a loopback HTTP API for chat with entity-aware tool
// execution, model routing over Ollama, and optional document memory via
// Weaviate.
//
// Usage:
//
//	go run ./cmd/assistant serve
//	ASSISTANT_PORT=12230 OLLAMA_BASE_URL=http://localhost:11434 go run ./cmd/assistant serve
//
// Example requests:
//
//	curl http://localhost:12230/health
//	curl -X POST http://localhost:12230/chat \
//	  -H "Content-Type: application/json" \
//	  -d '{"message": "list my downloads folder"}'
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianAssistant/pkg/logging"
	"github.com/AleutianAI/AleutianAssistant/services/assistant"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/observability"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Aleutian local assistant daemon",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assistant HTTP server",
	RunE:  runServe,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging and Gin debug mode")
	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

// initTracer wires the OTLP exporter when a collector endpoint is set;
// without one, tracing stays on the no-op provider.
func initTracer(ctx context.Context) (func(context.Context), error) {
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if debug {
		level = logging.LevelDebug
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logging.New(logging.Config{Level: level, Service: "assistant"})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx := context.Background()
	cleanup, err := initTracer(ctx)
	if err != nil {
		return err
	}
	defer cleanup(ctx)

	cfg := assistant.ConfigFromEnv()
	cfg.Metrics = observability.InitMetrics()
	cfg.Logger = logger.Slog()

	svc, err := assistant.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("shutting down assistant")
		svc.Close()
		os.Exit(0)
	}()

	return svc.Run(ctx)
}
