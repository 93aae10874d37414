// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/TrajectoryStudio/services/llm"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/auth"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/observability"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/routes"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/state"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/storage/badger"

	"github.com/prometheus/client_golang/prometheus"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

var globalChatClient llm.ChatClient

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "studio-otel-collector:4317"
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
		resource.WithAttributes(semconv.ServiceNameKey.String("studio-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("STUDIO_PORT")
	if port == "" {
		port = "9091"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	dbPath := os.Getenv("STUDIO_DB_PATH")
	if dbPath == "" {
		dbPath = "data/studio-db"
	}
	dbCfg := badger.DefaultConfig()
	dbCfg.Path = dbPath
	dbCfg.Logger = logger
	db, err := badger.OpenDB(dbCfg)
	if err != nil {
		log.Fatalf("FATAL: Could not open the studio database: %v", err)
	}
	defer db.Close()

	tokenSecret := os.Getenv("JWT_SECRET_KEY")
	if tokenSecret == "" {
		slog.Warn("JWT_SECRET_KEY not set, using development secret")
		tokenSecret = "dev-jwt-secret-key"
	}
	authService := auth.NewService(auth.NewUserStore(db), tokenSecret,
		os.Getenv("ALLOWED_EMAIL_SUFFIX"))

	log.Println("Configuring the LLM Client")
	llmBackendType := os.Getenv("LLM_BACKEND_TYPE")

	switch llmBackendType {
	case "ollama":
		globalChatClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	case "openai":
		globalChatClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "anthropic":
		globalChatClient, err = llm.NewAnthropicClient()
		slog.Info("Using Anthropic LLM backend")
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to openai")
		globalChatClient, err = llm.NewOpenAIClient()
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	dataDir := os.Getenv("STUDIO_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	metrics := observability.NewStudioMetrics(prometheus.DefaultRegisterer)

	// One upstream chat request per second with small bursts keeps a
	// single user from draining the API budget.
	chatLimiter := rate.NewLimiter(rate.Limit(1), 3)

	router := gin.Default()
	router.Use(otelgin.Middleware("studio-service"))

	routes.SetupRoutes(router, routes.Deps{
		ChatClient:  globalChatClient,
		ChatLimiter: chatLimiter,
		AuthService: authService,
		StateStore:  state.NewStore(db),
		Metrics:     metrics,
		DataDir:     dataDir,
	})
	log.Println("started up the container")

	log.Println("Starting the studio server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
