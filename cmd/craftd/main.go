// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command craftd starts the Craft Quality Engine API server.
//
// craftd exposes the Scene Analyzer, Scaffold Generator, Multi-Model
// Tournament Orchestrator, and Enhancement Engine over HTTP, with the
// Settings Resolver and Model Router wired underneath every call.
//
// Usage:
//
//	go run ./cmd/craftd -port 8090 -projects-dir ~/.craftengine/projects
//
// Example requests:
//
//	curl http://localhost:8090/v1/craft/health
//
//	curl -X POST http://localhost:8090/v1/craft/analyze \
//	  -H "Content-Type: application/json" \
//	  -d '{"project_id":"demo","scene_id":"s1","model_id":"claude-haiku-4-5-20251001","text":"..."}'
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/craftquality/craftengine/internal/api"
	"github.com/craftquality/craftengine/internal/llmtransport"
	"github.com/craftquality/craftengine/internal/modelrouter"
	"github.com/craftquality/craftengine/internal/obs"
	"github.com/craftquality/craftengine/internal/patterns"
	"github.com/craftquality/craftengine/internal/research"
	"github.com/craftquality/craftengine/internal/settings"
	"github.com/craftquality/craftengine/internal/store"
	"github.com/craftquality/craftengine/internal/voicebundle"
)

func main() {
	port := flag.Int("port", 8090, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	dataDir := flag.String("data-dir", defaultDataDir(), "Directory holding settings.db and workorders.db")
	projectsDir := flag.String("projects-dir", defaultProjectsDir(), "Directory of per-project subdirectories, each containing voice_bundle.yaml")
	ollamaURL := flag.String("ollama-url", envOr("OLLAMA_BASE_URL", "http://localhost:11434"), "Ollama base URL")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	settingsStore, err := store.OpenBadgerStore(filepath.Join(*dataDir, "settings"))
	if err != nil {
		obs.Logger().Error("opening settings store", "error", err)
		os.Exit(1)
	}
	defer settingsStore.Close()

	workOrderStore, err := store.OpenBadgerStore(filepath.Join(*dataDir, "workorders"))
	if err != nil {
		obs.Logger().Error("opening work order store", "error", err)
		os.Exit(1)
	}
	defer workOrderStore.Close()

	resolver := settings.New(settings.DefaultSpecs(), settingsStore, settingsStore)

	registry := modelrouter.NewRegistry(modelrouter.DefaultCapabilities())
	costEstimator := modelrouter.NewCostEstimator()
	router := modelrouter.NewRouter(registry, costEstimator)

	transport := llmtransport.New(
		os.Getenv("ANTHROPIC_API_KEY"),
		os.Getenv("OPENAI_API_KEY"),
		os.Getenv("GEMINI_API_KEY"),
		*ollamaURL,
		retryPolicyFromSettings(resolver),
	)

	projects, err := loadProjectBindings(*projectsDir)
	if err != nil {
		obs.Logger().Warn("loading project bindings", "projects_dir", *projectsDir, "error", err)
	}
	obs.Logger().Info("loaded project bindings", "count", len(projects))

	engine := api.NewEngine(resolver, router, transport, workOrderStore, research.NoopClient{}, projects)

	handlers := &Handlers{
		Engine:   engine,
		Upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }},
	}

	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(otelgin.Middleware("craftd"))
	if *debug {
		ginRouter.Use(gin.Logger())
	}

	v1 := ginRouter.Group("/v1/craft")
	RegisterRoutes(v1, handlers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		obs.Logger().Info("shutting down craftd")
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	obs.Logger().Info("starting craftd", "address", addr, "projects", len(projects))
	if err := ginRouter.Run(addr); err != nil {
		obs.Logger().Error("craftd server stopped", "error", err)
		os.Exit(1)
	}
}

func retryPolicyFromSettings(r *settings.Resolver) llmtransport.RetryPolicy {
	maxAttempts, _ := r.GetNumber("transport.retry.max_attempts", "")
	baseBackoff, _ := r.GetNumber("transport.retry.base_backoff_ms", "")
	maxBackoff, _ := r.GetNumber("transport.retry.max_backoff_ms", "")
	callTimeout, _ := r.GetNumber("transport.call_timeout_ms", "")
	tokenStall, _ := r.GetNumber("transport.token_stall_timeout_ms", "")
	return llmtransport.RetryPolicy{
		MaxAttempts:       int(maxAttempts),
		BaseBackoff:       millis(baseBackoff),
		MaxBackoff:        millis(maxBackoff),
		CallTimeout:       millis(callTimeout),
		TokenStallTimeout: millis(tokenStall),
	}
}

// loadProjectBindings discovers every subdirectory of dir containing a
// voice_bundle.yaml and binds it into a ProjectBinding keyed by directory
// name (the project_id).
func loadProjectBindings(dir string) (map[string]api.ProjectBinding, error) {
	projects := make(map[string]api.ProjectBinding)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return projects, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectID := entry.Name()
		bundlePath := filepath.Join(dir, projectID, "voice_bundle.yaml")
		if _, err := os.Stat(bundlePath); err != nil {
			continue
		}
		bundleStore, err := voicebundle.Load(bundlePath)
		if err != nil {
			obs.Logger().Warn("skipping project with invalid voice bundle", "project_id", projectID, "error", err)
			continue
		}
		library := patterns.Compile(bundleStore.Current(), patterns.Options{
			SimileDensitySuppressionThreshold: 0.02,
			SimileContextWindow:               8,
		})
		projects[projectID] = api.ProjectBinding{Bundle: bundleStore, Library: library}
	}
	return projects, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./craftengine-data"
	}
	return filepath.Join(home, ".craftengine", "data")
}

func defaultProjectsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./craftengine-projects"
	}
	return filepath.Join(home, ".craftengine", "projects")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func millis(n float64) time.Duration {
	return time.Duration(n) * time.Millisecond
}
