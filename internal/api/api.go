// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api implements Engine, the plain-Go surface realizing every §6 RPC
// contract (analyze, detect_patterns, analyze_metaphors, compare,
// scaffold_draft/enrich/generate, write_structure_variants, run_tournament,
// create_hybrid, enhance, apply_action_prompt, settings.get/set,
// orchestrator.estimate_cost). cmd/craftd binds this interface to HTTP; tests
// call it directly with no transport involved.
//
// Grounded on the teacher's own separation between services/trace/routes.go
// (HTTP binding) and the plain-Go service methods it calls into.
package api

import (
	"context"

	"github.com/craftquality/craftengine/internal/analyzer"
	"github.com/craftquality/craftengine/internal/enhancement"
	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/llmtransport"
	"github.com/craftquality/craftengine/internal/modelrouter"
	"github.com/craftquality/craftengine/internal/patterns"
	"github.com/craftquality/craftengine/internal/research"
	"github.com/craftquality/craftengine/internal/scaffold"
	"github.com/craftquality/craftengine/internal/settings"
	"github.com/craftquality/craftengine/internal/store"
	"github.com/craftquality/craftengine/internal/tournament"
	"github.com/craftquality/craftengine/internal/voicebundle"
)

// ProjectBinding is the set of per-project resources a caller registers
// before Engine can serve RPCs for that project: its Voice Bundle store and
// the Pattern Library compiled from it.
type ProjectBinding struct {
	Bundle  *voicebundle.Store
	Library *patterns.Library
}

// Engine wires every subsystem package into the full RPC surface. It holds
// no per-call state beyond what's passed as arguments; Analyzer/Scaffold
// Generator/Tournament/Enhancement Engine instances are built fresh per call
// from the current settings snapshot, so a settings change takes effect on
// the very next call with no cache to invalidate.
type Engine struct {
	Resolver   *settings.Resolver
	Router     *modelrouter.Router
	Transport  *llmtransport.Transport
	WorkOrders store.WorkOrderStore
	Research   research.Client

	projects map[string]ProjectBinding
}

// NewEngine builds an Engine. projects maps project_id to its Voice
// Bundle/Pattern Library binding; register every known project up front
// (cmd/craftd's startup wiring does this from on-disk project discovery).
func NewEngine(resolver *settings.Resolver, router *modelrouter.Router, transport *llmtransport.Transport, workOrders store.WorkOrderStore, researchClient research.Client, projects map[string]ProjectBinding) *Engine {
	if researchClient == nil {
		researchClient = research.NoopClient{}
	}
	return &Engine{
		Resolver:   resolver,
		Router:     router,
		Transport:  transport,
		WorkOrders: workOrders,
		Research:   researchClient,
		projects:   projects,
	}
}

func (e *Engine) binding(projectID string) (ProjectBinding, error) {
	b, ok := e.projects[projectID]
	if !ok {
		return ProjectBinding{}, errs.New(errs.KindInvalidSetting, "unknown project_id %q", projectID)
	}
	return b, nil
}

func (e *Engine) weights(projectID string) (analyzer.Weights, error) {
	return analyzer.WeightsFromSettings(e.Resolver, projectID)
}

func (e *Engine) thresholds(projectID string) (enhancement.Thresholds, error) {
	return enhancement.ThresholdsFromSettings(e.Resolver, projectID)
}

// analyzerFor builds an Analyzer bound to projectID's current Voice Bundle,
// Pattern Library, and resolved rubric Weights.
func (e *Engine) analyzerFor(projectID string) (*analyzer.Analyzer, error) {
	b, err := e.binding(projectID)
	if err != nil {
		return nil, err
	}
	w, err := e.weights(projectID)
	if err != nil {
		return nil, err
	}
	judge := analyzer.NewLLMJudge(e.Transport)
	return analyzer.New(b.Library, b.Bundle.Current(), w, judge), nil
}

// Analyze runs the Scene Analyzer over text and persists the resulting
// Scene Score as a work order keyed by sceneID. phase is the scene's
// declared narrative phase (empty skips the deterministic phase check).
func (e *Engine) Analyze(ctx context.Context, projectID, sceneID, modelID, text, phase string) (*analyzer.SceneScore, error) {
	an, err := e.analyzerFor(projectID)
	if err != nil {
		return nil, err
	}
	score, err := an.Analyze(ctx, modelID, text, phase)
	if err != nil {
		return nil, err
	}
	if e.WorkOrders != nil {
		if err := persistWorkOrder(e.WorkOrders, sceneID, "scene_score", score); err != nil {
			obsLogWorkOrderFailure(sceneID, err)
		}
	}
	return score, nil
}

// DetectPatterns runs only the deterministic Pattern Library anti-pattern
// scan, with no LLM call.
func (e *Engine) DetectPatterns(ctx context.Context, projectID, text string) ([]patterns.Match, error) {
	b, err := e.binding(projectID)
	if err != nil {
		return nil, err
	}
	return b.Library.ScanAntiPatterns(text), nil
}

// AnalyzeMetaphors runs only the deterministic metaphor-domain scan, with no
// LLM call.
func (e *Engine) AnalyzeMetaphors(ctx context.Context, projectID, text string) (patterns.MetaphorReport, error) {
	b, err := e.binding(projectID)
	if err != nil {
		return patterns.MetaphorReport{}, err
	}
	return b.Library.ScanMetaphors(text), nil
}

// CompareResult is the outcome of scoring two candidate scenes against the
// same rubric.
type CompareResult struct {
	ScoreA  *analyzer.SceneScore
	ScoreB  *analyzer.SceneScore
	Winner  string // "a" | "b" | "tie"
}

// Compare scores two texts against the same declared phase and reports
// which scored higher overall.
func (e *Engine) Compare(ctx context.Context, projectID, modelID, textA, textB, phase string) (*CompareResult, error) {
	an, err := e.analyzerFor(projectID)
	if err != nil {
		return nil, err
	}
	scoreA, err := an.Analyze(ctx, modelID, textA, phase)
	if err != nil {
		return nil, err
	}
	scoreB, err := an.Analyze(ctx, modelID, textB, phase)
	if err != nil {
		return nil, err
	}
	winner := "tie"
	switch {
	case scoreA.Overall > scoreB.Overall:
		winner = "a"
	case scoreB.Overall > scoreA.Overall:
		winner = "b"
	}
	return &CompareResult{ScoreA: scoreA, ScoreB: scoreB, Winner: winner}, nil
}

func (e *Engine) scaffoldGenerator() *scaffold.Generator {
	return scaffold.New(e.Transport, e.Research)
}

// ScaffoldDraft runs Scaffold Generator Stage 1.
func (e *Engine) ScaffoldDraft(ctx context.Context, modelID string, state scaffold.ProjectState, intent scaffold.Intent) (*scaffold.Scaffold, error) {
	return e.scaffoldGenerator().Draft(ctx, modelID, state, intent)
}

// ScaffoldEnrich runs Scaffold Generator Stage 2 over an already-drafted
// Scaffold.
func (e *Engine) ScaffoldEnrich(ctx context.Context, sc *scaffold.Scaffold, handle string) *scaffold.Scaffold {
	return e.scaffoldGenerator().Enrich(ctx, sc, handle)
}

// ScaffoldGenerate runs both stages; enrichHandle == "" skips Stage 2.
func (e *Engine) ScaffoldGenerate(ctx context.Context, modelID string, state scaffold.ProjectState, intent scaffold.Intent, enrichHandle string) (*scaffold.Scaffold, error) {
	return e.scaffoldGenerator().Generate(ctx, modelID, state, intent, enrichHandle)
}

// WriteStructureVariants produces n distinct outlines from one model.
func (e *Engine) WriteStructureVariants(ctx context.Context, modelID string, n int, scaffoldPrompt string) []string {
	return tournament.New(e.Transport, nil, 0).GenerateStructureVariants(ctx, modelID, n, scaffoldPrompt)
}

// RunTournament fans a task grid out across models/strategies, streaming
// scored Variants as they complete.
func (e *Engine) RunTournament(ctx context.Context, projectID, scoringModelID string, tasks []tournament.Task, scaffoldPrompt, phase string, concurrencyPerProvider int) (<-chan tournament.Variant, error) {
	an, err := e.analyzerFor(projectID)
	if err != nil {
		return nil, err
	}
	t := tournament.New(e.Transport, an, concurrencyPerProvider)
	return t.Run(ctx, tasks, scoringModelID, scaffoldPrompt, phase), nil
}

// CreateHybrid mechanically composes a scene from named paragraphs of
// already-scored tournament variants.
func (e *Engine) CreateHybrid(variants []tournament.Variant, segments []tournament.HybridSegment) (string, error) {
	return tournament.CreateHybrid(variants, segments)
}

func (e *Engine) enhancementEngine(projectID string) (*enhancement.Engine, error) {
	an, err := e.analyzerFor(projectID)
	if err != nil {
		return nil, err
	}
	th, err := e.thresholds(projectID)
	if err != nil {
		return nil, err
	}
	fixer := enhancement.NewLLMFixer(e.Transport)
	passes := enhancement.NewLLMPassRunner(e.Transport)
	return enhancement.New(an, fixer, passes, th), nil
}

// Enhance routes a scored scene through the Enhancement Engine state
// machine and persists the outcome as a work order. phase is the scene's
// declared narrative phase, reused for every re-score the engine runs.
func (e *Engine) Enhance(ctx context.Context, projectID, sceneID, modelID, text string, score *analyzer.SceneScore, phase string) (*enhancement.Outcome, error) {
	eng, err := e.enhancementEngine(projectID)
	if err != nil {
		return nil, err
	}
	outcome, err := eng.Enhance(ctx, modelID, text, score, phase)
	if err != nil {
		return nil, err
	}
	if e.WorkOrders != nil {
		if err := persistWorkOrder(e.WorkOrders, sceneID, "enhancement_outcome", outcome); err != nil {
			obsLogWorkOrderFailure(sceneID, err)
		}
	}
	return outcome, nil
}

// ApplyActionPrompt commits a caller-reviewed fix list verbatim, with no
// re-scoring or rollback.
func (e *Engine) ApplyActionPrompt(text string, fixes []enhancement.Fix) string {
	return enhancement.ApplyFixes(text, fixes)
}

// SettingsGet resolves one dotted path for projectID.
func (e *Engine) SettingsGet(path, projectID string) (any, error) {
	return e.Resolver.Get(path, projectID)
}

// SettingsSet validates and writes one dotted path at the given scope.
func (e *Engine) SettingsSet(path string, value any, scope settings.Scope, projectID string) error {
	return e.Resolver.Set(path, value, scope, projectID)
}

// EstimateCost resolves the routing decision and estimated cost for one
// prospective call, without invoking the LLM transport and without
// reserving or recording any cost against the project's budget.
func (e *Engine) EstimateCost(projectID string, taskType modelrouter.TaskType, estimatedInputTokens, estimatedOutputTokens int) (*modelrouter.Selection, error) {
	return e.Router.Select(projectID, taskType, estimatedInputTokens, estimatedOutputTokens)
}
