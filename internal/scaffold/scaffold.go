// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scaffold implements the two-stage Scaffold Generator: a mandatory
// Draft Summary stage and a skippable Enrichment stage, per §4.6.
//
// Grounded on services/trace/agent/phases/execute_synthesis.go and
// execute_extract_params.go's two-stage LLM pipeline shape (extract/plan,
// then synthesize), generalized from code-review planning to scene
// scaffolding, with mechanical (never LLM-regenerated) chapter/scene IDs,
// word targets, and continuity-checklist assembly.
package scaffold

import (
	"context"
	"fmt"

	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/llmtransport"
	"github.com/craftquality/craftengine/internal/obs"
	"github.com/craftquality/craftengine/internal/research"
	"github.com/craftquality/craftengine/internal/voicebundle"
)

// StrategicContext captures why the scene exists.
type StrategicContext struct {
	Goals    []string
	Stakes   []string
	Conflict []string
}

// ProjectState is the project-level context Stage 1 consumes: beat sheet,
// character dossiers, prior-scene continuity notes, world rules.
type ProjectState struct {
	ChapterID            string
	SceneIndex            int
	BeatSheet             []string
	CharacterDossiers     []string
	PriorSceneContinuity  []string
	WorldRules            []string
}

// Intent is the minimal user-supplied steer for Stage 1.
type Intent struct {
	Title      string
	Phase      string
	POV        string
	WordTarget int
	Summary    string
}

// Scaffold is the structured scene plan produced by the Generator (§3).
// Invariants: WordTarget > 0, Beats non-empty, Phase references a phase
// defined in the active Voice Bundle — enforced in Validate.
type Scaffold struct {
	ChapterID           string
	SceneIndex          int
	Title               string
	Phase               string
	POV                 string
	WordTarget          int
	Beats               []string
	StrategicContext    StrategicContext
	SuccessCriteria     map[string]float64
	ContinuityChecklist []string
	SourceEnrichment    string

	stage1Done bool
}

// Validate enforces the Scaffold invariants from §3.
func (s *Scaffold) Validate(bundle *voicebundle.Bundle) error {
	if s.WordTarget <= 0 {
		return errs.New(errs.KindInvalidSetting, "scaffold word_target must be > 0, got %d", s.WordTarget)
	}
	if len(s.Beats) == 0 {
		return errs.New(errs.KindInvalidSetting, "scaffold beats must be non-empty")
	}
	if _, ok := bundle.PhaseByName(s.Phase); !ok {
		return errs.New(errs.KindInvalidSetting, "scaffold phase %q is not defined in the voice bundle", s.Phase)
	}
	return nil
}

// Generator runs the two Scaffold stages over an LLM transport. Every LLM
// call uses the modelID the caller passes in; Generator does not consult the
// Model Router.
type Generator struct {
	transport *llmtransport.Transport
	research  research.Client
}

// New builds a Generator. researchClient may be research.NoopClient{} when
// no collaborator is configured.
func New(transport *llmtransport.Transport, researchClient research.Client) *Generator {
	if researchClient == nil {
		researchClient = research.NoopClient{}
	}
	return &Generator{transport: transport, research: researchClient}
}

// Draft runs Stage 1: produces a compact, prose-free scene plan (one
// paragraph per beat) from project state and a minimal user intent.
// Deterministic elements (chapter ID, scene index, word target, continuity
// checklist) are
// assembled mechanically and never generated by the LLM.
func (g *Generator) Draft(ctx context.Context, modelID string, state ProjectState, intent Intent) (*Scaffold, error) {
	ctx, span := obs.StartSpan(ctx, "scaffold.Draft")
	defer span.End()

	prompt := buildDraftPrompt(state, intent)
	res, err := g.transport.Complete(ctx, modelID, []llmtransport.Message{
		{Role: "system", Content: draftSystemPrompt},
		{Role: "user", Content: prompt},
	}, llmtransport.Params{})
	if err != nil {
		return nil, err
	}

	beats := splitBeats(res.Text, len(state.BeatSheet))

	sc := &Scaffold{
		ChapterID:           state.ChapterID,
		SceneIndex:          state.SceneIndex,
		Title:               intent.Title,
		Phase:               intent.Phase,
		POV:                 intent.POV,
		WordTarget:          intent.WordTarget,
		Beats:               beats,
		StrategicContext:    deriveStrategicContext(intent),
		SuccessCriteria:     defaultSuccessCriteria(),
		ContinuityChecklist: buildContinuityChecklist(state.PriorSceneContinuity),
		stage1Done:          true,
	}
	return sc, nil
}

// Enrich runs Stage 2: optionally queries research collaborators for
// domain-specific detail and merges returned passages into
// SourceEnrichment. Non-fatal on failure or timeout — enrichment is best
// effort (§4.6, §9).
func (g *Generator) Enrich(ctx context.Context, sc *Scaffold, handle string) *Scaffold {
	ctx, span := obs.StartSpan(ctx, "scaffold.Enrich")
	defer span.End()

	query := fmt.Sprintf("%s: %s", sc.Title, joinBeats(sc.Beats))
	passages, err := g.research.Query(ctx, handle, query)
	if err != nil {
		obs.Logger().Warn("scaffold enrichment query failed, proceeding without enrichment", "error", err)
		return sc
	}
	for _, p := range passages {
		if sc.SourceEnrichment != "" {
			sc.SourceEnrichment += "\n\n"
		}
		sc.SourceEnrichment += fmt.Sprintf("[%s] %s", p.Source, p.Text)
	}
	return sc
}

// Generate is the one-shot Stage1+Stage2 combination (§6 scaffold_generate).
// enrichHandle == "" skips Stage 2 entirely.
func (g *Generator) Generate(ctx context.Context, modelID string, state ProjectState, intent Intent, enrichHandle string) (*Scaffold, error) {
	sc, err := g.Draft(ctx, modelID, state, intent)
	if err != nil {
		return nil, err
	}
	if enrichHandle != "" {
		sc = g.Enrich(ctx, sc, enrichHandle)
	}
	return sc, nil
}

const draftSystemPrompt = "You produce a compact scene scaffold: one short paragraph per beat, no finished prose."

func buildDraftPrompt(state ProjectState, intent Intent) string {
	return fmt.Sprintf(
		"Beat sheet:\n%s\n\nCharacter dossiers:\n%s\n\nPrior-scene continuity:\n%s\n\nWorld rules:\n%s\n\nIntent: %s\n",
		joinBeats(state.BeatSheet), joinBeats(state.CharacterDossiers), joinBeats(state.PriorSceneContinuity), joinBeats(state.WorldRules), intent.Summary)
}

func splitBeats(text string, expected int) []string {
	lines := splitNonEmptyLines(text)
	if len(lines) == 0 {
		return []string{text}
	}
	return lines
}

func splitNonEmptyLines(text string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			line := trimSpace(text[start:i])
			if line != "" {
				out = append(out, line)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' }

func joinBeats(beats []string) string {
	out := ""
	for i, b := range beats {
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("- %s", b)
	}
	return out
}

func deriveStrategicContext(intent Intent) StrategicContext {
	return StrategicContext{Goals: []string{intent.Summary}}
}

func defaultSuccessCriteria() map[string]float64 {
	return map[string]float64{"min_tier_score": 70}
}

func buildContinuityChecklist(priorContinuity []string) []string {
	out := make([]string, len(priorContinuity))
	copy(out, priorContinuity)
	return out
}
