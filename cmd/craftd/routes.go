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
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/craftquality/craftengine/internal/analyzer"
	"github.com/craftquality/craftengine/internal/api"
	"github.com/craftquality/craftengine/internal/enhancement"
	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/modelrouter"
	"github.com/craftquality/craftengine/internal/obs"
	"github.com/craftquality/craftengine/internal/scaffold"
	"github.com/craftquality/craftengine/internal/settings"
	"github.com/craftquality/craftengine/internal/tournament"
)

// Handlers binds internal/api.Engine methods to gin handler funcs.
type Handlers struct {
	Engine   *api.Engine
	Upgrader websocket.Upgrader
}

// RegisterRoutes registers every /v1/craft/* endpoint on rg, mirroring the
// teacher's RegisterRoutes(rg, handlers) shape in services/trace/routes.go.
//
// Endpoints:
//
//	POST /v1/craft/analyze
//	POST /v1/craft/detect_patterns
//	POST /v1/craft/analyze_metaphors
//	POST /v1/craft/compare
//	POST /v1/craft/scaffold/draft
//	POST /v1/craft/scaffold/enrich
//	POST /v1/craft/scaffold/generate
//	POST /v1/craft/write_structure_variants
//	POST /v1/craft/tournament/run
//	GET  /v1/craft/tournament/stream (WebSocket)
//	POST /v1/craft/tournament/hybrid
//	POST /v1/craft/enhance
//	POST /v1/craft/enhance/apply_action_prompt
//	GET  /v1/craft/settings
//	POST /v1/craft/settings
//	POST /v1/craft/orchestrator/estimate_cost
//	GET  /v1/craft/health
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.GET("/health", h.health)

	rg.POST("/analyze", h.analyze)
	rg.POST("/detect_patterns", h.detectPatterns)
	rg.POST("/analyze_metaphors", h.analyzeMetaphors)
	rg.POST("/compare", h.compare)

	rg.POST("/scaffold/draft", h.scaffoldDraft)
	rg.POST("/scaffold/enrich", h.scaffoldEnrich)
	rg.POST("/scaffold/generate", h.scaffoldGenerate)

	rg.POST("/write_structure_variants", h.writeStructureVariants)
	rg.POST("/tournament/run", h.runTournament)
	rg.GET("/tournament/stream", h.streamTournament)
	rg.POST("/tournament/hybrid", h.createHybrid)

	rg.POST("/enhance", h.enhance)
	rg.POST("/enhance/apply_action_prompt", h.applyActionPrompt)

	rg.GET("/settings", h.settingsGet)
	rg.POST("/settings", h.settingsSet)

	rg.POST("/orchestrator/estimate_cost", h.estimateCost)
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respond writes env as JSON, using 200 for ok and statusFor's mapping for a
// failure: 400 for a caller-correctable error (InvalidSetting,
// VoiceBundleInvalid, SchemaViolation), 402 for BudgetExceeded, 503 for
// ModelUnavailable/ProviderTransient/RateLimited, 504 for Timeout/Cancelled,
// and 500 for every other kind.
func respond(c *gin.Context, value any, err error) {
	if err != nil {
		env := errs.Fail(err)
		c.JSON(statusFor(err), env)
		return
	}
	env, encErr := errs.Ok(value)
	if encErr != nil {
		c.JSON(http.StatusInternalServerError, errs.Fail(errs.Wrap(errs.KindInternal, encErr, "encoding response")))
		return
	}
	c.JSON(http.StatusOK, env)
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindInvalidSetting, errs.KindVoiceBundleInvalid, errs.KindSchemaViolation:
		return http.StatusBadRequest
	case errs.KindBudgetExceeded:
		return http.StatusPaymentRequired
	case errs.KindModelUnavailable, errs.KindProviderTransient, errs.KindRateLimited:
		return http.StatusServiceUnavailable
	case errs.KindTimeout, errs.KindCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type analyzeRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	SceneID   string `json:"scene_id" binding:"required"`
	ModelID   string `json:"model_id" binding:"required"`
	Text      string `json:"text" binding:"required"`
	Phase     string `json:"phase"`
}

func (h *Handlers) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid analyze request"))
		return
	}
	score, err := h.Engine.Analyze(c.Request.Context(), req.ProjectID, req.SceneID, req.ModelID, req.Text, req.Phase)
	respond(c, score, err)
}

type patternRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	Text      string `json:"text" binding:"required"`
}

func (h *Handlers) detectPatterns(c *gin.Context) {
	var req patternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid detect_patterns request"))
		return
	}
	matches, err := h.Engine.DetectPatterns(c.Request.Context(), req.ProjectID, req.Text)
	respond(c, matches, err)
}

func (h *Handlers) analyzeMetaphors(c *gin.Context) {
	var req patternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid analyze_metaphors request"))
		return
	}
	report, err := h.Engine.AnalyzeMetaphors(c.Request.Context(), req.ProjectID, req.Text)
	respond(c, report, err)
}

type compareRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	ModelID   string `json:"model_id" binding:"required"`
	TextA     string `json:"text_a" binding:"required"`
	TextB     string `json:"text_b" binding:"required"`
	Phase     string `json:"phase"`
}

func (h *Handlers) compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid compare request"))
		return
	}
	result, err := h.Engine.Compare(c.Request.Context(), req.ProjectID, req.ModelID, req.TextA, req.TextB, req.Phase)
	respond(c, result, err)
}

type scaffoldDraftRequest struct {
	ModelID string                `json:"model_id" binding:"required"`
	State   scaffold.ProjectState `json:"state"`
	Intent  scaffold.Intent       `json:"intent"`
}

func (h *Handlers) scaffoldDraft(c *gin.Context) {
	var req scaffoldDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid scaffold draft request"))
		return
	}
	sc, err := h.Engine.ScaffoldDraft(c.Request.Context(), req.ModelID, req.State, req.Intent)
	respond(c, sc, err)
}

type scaffoldEnrichRequest struct {
	Scaffold scaffold.Scaffold `json:"scaffold"`
	Handle   string            `json:"handle"`
}

func (h *Handlers) scaffoldEnrich(c *gin.Context) {
	var req scaffoldEnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid scaffold enrich request"))
		return
	}
	sc := h.Engine.ScaffoldEnrich(c.Request.Context(), &req.Scaffold, req.Handle)
	respond(c, sc, nil)
}

type scaffoldGenerateRequest struct {
	ModelID      string                `json:"model_id" binding:"required"`
	State        scaffold.ProjectState `json:"state"`
	Intent       scaffold.Intent       `json:"intent"`
	EnrichHandle string                `json:"enrich_handle"`
}

func (h *Handlers) scaffoldGenerate(c *gin.Context) {
	var req scaffoldGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid scaffold generate request"))
		return
	}
	sc, err := h.Engine.ScaffoldGenerate(c.Request.Context(), req.ModelID, req.State, req.Intent, req.EnrichHandle)
	respond(c, sc, err)
}

type structureVariantsRequest struct {
	ModelID        string `json:"model_id" binding:"required"`
	N              int    `json:"n" binding:"required"`
	ScaffoldPrompt string `json:"scaffold_prompt" binding:"required"`
}

func (h *Handlers) writeStructureVariants(c *gin.Context) {
	var req structureVariantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid write_structure_variants request"))
		return
	}
	variants := h.Engine.WriteStructureVariants(c.Request.Context(), req.ModelID, req.N, req.ScaffoldPrompt)
	respond(c, variants, nil)
}

type tournamentRunRequest struct {
	ProjectID              string            `json:"project_id" binding:"required"`
	ScoringModelID         string            `json:"scoring_model_id" binding:"required"`
	Tasks                  []tournament.Task `json:"tasks" binding:"required"`
	ScaffoldPrompt         string            `json:"scaffold_prompt" binding:"required"`
	Phase                  string            `json:"phase"`
	ConcurrencyPerProvider int               `json:"concurrency_per_provider"`
}

// runTournament drains the streaming channel into one response. Prefer
// /tournament/stream for incremental delivery.
func (h *Handlers) runTournament(c *gin.Context) {
	var req tournamentRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid run_tournament request"))
		return
	}
	ch, err := h.Engine.RunTournament(c.Request.Context(), req.ProjectID, req.ScoringModelID, req.Tasks, req.ScaffoldPrompt, req.Phase, req.ConcurrencyPerProvider)
	if err != nil {
		respond(c, nil, err)
		return
	}
	var variants []tournament.Variant
	for v := range ch {
		variants = append(variants, v)
	}
	respond(c, tournament.Rank(variants), nil)
}

// streamTournament upgrades to a WebSocket and pushes each Variant as soon
// as it completes, for live tournament-progress UIs. The request body is a
// tournamentRunRequest JSON document passed in the "payload" query
// parameter, since the WebSocket handshake carries no HTTP body.
func (h *Handlers) streamTournament(c *gin.Context) {
	var req tournamentRunRequest
	if err := json.Unmarshal([]byte(c.Query("payload")), &req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid tournament stream payload"))
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		obs.Logger().Warn("tournament websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, err := h.Engine.RunTournament(c.Request.Context(), req.ProjectID, req.ScoringModelID, req.Tasks, req.ScaffoldPrompt, req.Phase, req.ConcurrencyPerProvider)
	if err != nil {
		_ = conn.WriteJSON(errs.Fail(err))
		return
	}
	for v := range ch {
		if err := conn.WriteJSON(v); err != nil {
			return
		}
	}
}

type createHybridRequest struct {
	Variants []tournament.Variant        `json:"variants" binding:"required"`
	Segments []tournament.HybridSegment `json:"segments" binding:"required"`
}

func (h *Handlers) createHybrid(c *gin.Context) {
	var req createHybridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid create_hybrid request"))
		return
	}
	text, err := h.Engine.CreateHybrid(req.Variants, req.Segments)
	respond(c, gin.H{"text": text}, err)
}

type enhanceRequest struct {
	ProjectID string                `json:"project_id" binding:"required"`
	SceneID   string                `json:"scene_id" binding:"required"`
	ModelID   string                `json:"model_id" binding:"required"`
	Text      string                `json:"text" binding:"required"`
	Score     *analyzer.SceneScore  `json:"score" binding:"required"`
	Phase     string                `json:"phase"`
}

func (h *Handlers) enhance(c *gin.Context) {
	var req enhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid enhance request"))
		return
	}
	outcome, err := h.Engine.Enhance(c.Request.Context(), req.ProjectID, req.SceneID, req.ModelID, req.Text, req.Score, req.Phase)
	respond(c, outcome, err)
}

type applyActionPromptRequest struct {
	Text  string              `json:"text" binding:"required"`
	Fixes []enhancement.Fix   `json:"fixes" binding:"required"`
}

func (h *Handlers) applyActionPrompt(c *gin.Context) {
	var req applyActionPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid apply_action_prompt request"))
		return
	}
	text := h.Engine.ApplyActionPrompt(req.Text, req.Fixes)
	respond(c, gin.H{"text": text}, nil)
}

func (h *Handlers) settingsGet(c *gin.Context) {
	path := c.Query("path")
	projectID := c.Query("project_id")
	if path == "" {
		respond(c, nil, errs.New(errs.KindInvalidSetting, "missing required query parameter %q", "path"))
		return
	}
	value, err := h.Engine.SettingsGet(path, projectID)
	respond(c, value, err)
}

type settingsSetRequest struct {
	Path      string          `json:"path" binding:"required"`
	Value     any             `json:"value"`
	Scope     settings.Scope  `json:"scope" binding:"required"`
	ProjectID string          `json:"project_id"`
}

func (h *Handlers) settingsSet(c *gin.Context) {
	var req settingsSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid settings set request"))
		return
	}
	err := h.Engine.SettingsSet(req.Path, req.Value, req.Scope, req.ProjectID)
	respond(c, gin.H{"ok": err == nil}, err)
}

type estimateCostRequest struct {
	ProjectID             string              `json:"project_id" binding:"required"`
	TaskType              modelrouter.TaskType `json:"task_type" binding:"required"`
	EstimatedInputTokens  int                  `json:"estimated_input_tokens"`
	EstimatedOutputTokens int                  `json:"estimated_output_tokens"`
}

func (h *Handlers) estimateCost(c *gin.Context) {
	var req estimateCostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, errs.Wrap(errs.KindInvalidSetting, err, "invalid estimate_cost request"))
		return
	}
	sel, err := h.Engine.EstimateCost(req.ProjectID, req.TaskType, req.EstimatedInputTokens, req.EstimatedOutputTokens)
	respond(c, sel, err)
}
