// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enhancement implements the Enhancement Engine state machine
// (§4.2): a Scene Score of 85 or above gets a surgical Action Prompt pass
// (OLD->NEW fixes applied in reverse line order, rolled back on regression);
// 70-84 gets the Six-Pass sequence (six constrained LLM passes, each followed
// by a full re-score, with fast exit once the A- tier is reached); below 70
// is rejected outright with no LLM call.
//
// Grounded on services/trace/agent/phases/execute_execution.go's sequential
// constrained-pass execution over an ordered plan, generalized from code
// edits to prose passes.
package enhancement

import (
	"context"
	"sort"
	"strings"

	"github.com/craftquality/craftengine/internal/analyzer"
	"github.com/craftquality/craftengine/internal/obs"
)

// Mode is the state the engine entered for one Enhance call.
type Mode string

const (
	ModeActionPrompt Mode = "action_prompt"
	ModeSixPass      Mode = "six_pass"
	ModeReject       Mode = "reject"
)

// Fix is one surgical OLD->NEW replacement on a single line.
type Fix struct {
	LineIndex int
	Old       string
	New       string
}

// Thresholds gates which mode a Scene Score enters, resolved from
// enhancement.* settings paths so no rubric constant is hardcoded (§9).
type Thresholds struct {
	ActionPromptThreshold float64           // >= enters action_prompt
	SixPassFloor          float64           // >= (and < ActionPromptThreshold) enters six_pass; below rejects
	RegressionTolerance   float64           // action_prompt rolls back if overall drops by more than this
	FastExitTier          analyzer.Tier     // six_pass exits early once this tier (or better) is reached
}

// Outcome is the result of one Enhance call.
type Outcome struct {
	Mode         Mode
	FinalText    string
	AppliedFixes []Fix
	RolledBack   bool
	PassesRun    []string
	InitialScore *analyzer.SceneScore
	FinalScore   *analyzer.SceneScore
}

// fixer proposes Action Prompt fixes for a high-scoring scene. Implemented
// by llmFixer; tests substitute a stub.
type fixer interface {
	proposeFixes(ctx context.Context, modelID, text string, score *analyzer.SceneScore) ([]Fix, error)
}

// passRunner executes one constrained Six-Pass step. Implemented by
// llmPassRunner; tests substitute a stub.
type passRunner interface {
	runPass(ctx context.Context, modelID, passName, text string) (string, error)
}

// sixPasses is the fixed, sequential Six-Pass order (§4.2).
var sixPasses = []string{
	"sensory_anchoring",
	"verb_promotion",
	"metaphor_rotation",
	"voice_embedding",
	"italics_emphasis_gating",
	"authenticity_recheck",
}

var tierRank = map[analyzer.Tier]int{
	analyzer.TierA:           0,
	analyzer.TierAMinus:      1,
	analyzer.TierBPlus:       2,
	analyzer.TierB:           3,
	analyzer.TierNeedsRework: 4,
}

// ApplyFixes mechanically applies a caller-supplied fix list in descending
// line-index order, with no re-scoring or rollback — used by the
// apply_action_prompt RPC when the caller has already reviewed/edited the
// proposed fixes and wants them committed verbatim.
func ApplyFixes(text string, fixes []Fix) string {
	ordered := make([]Fix, len(fixes))
	copy(ordered, fixes)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].LineIndex > ordered[j].LineIndex })

	lines := strings.Split(text, "\n")
	for _, fx := range ordered {
		if fx.LineIndex < 0 || fx.LineIndex >= len(lines) {
			continue
		}
		if !strings.Contains(lines[fx.LineIndex], fx.Old) {
			continue
		}
		lines[fx.LineIndex] = strings.Replace(lines[fx.LineIndex], fx.Old, fx.New, 1)
	}
	return strings.Join(lines, "\n")
}

// Engine composes the Analyzer with a fixer and a passRunner into the full
// enhancement state machine.
type Engine struct {
	analyzer   *analyzer.Analyzer
	fixer      fixer
	passes     passRunner
	thresholds Thresholds
}

// New builds an Engine.
func New(an *analyzer.Analyzer, f fixer, p passRunner, thresholds Thresholds) *Engine {
	return &Engine{analyzer: an, fixer: f, passes: p, thresholds: thresholds}
}

// Enhance routes a scored scene into the appropriate mode and runs it to
// completion. phase is carried through to every internal re-score so a
// regression/fast-exit check is judged against the same declared phase as
// the original score.
func (e *Engine) Enhance(ctx context.Context, modelID, text string, score *analyzer.SceneScore, phase string) (*Outcome, error) {
	switch {
	case score.Overall >= e.thresholds.ActionPromptThreshold:
		return e.runActionPrompt(ctx, modelID, text, score, phase)
	case score.Overall >= e.thresholds.SixPassFloor:
		return e.runSixPass(ctx, modelID, text, score, phase)
	default:
		obs.M().EnhancementTotal.WithLabelValues(string(ModeReject)).Inc()
		return &Outcome{Mode: ModeReject, FinalText: text, InitialScore: score, FinalScore: score}, nil
	}
}

// runActionPrompt proposes surgical fixes, applies them in reverse line
// order so earlier line indices stay valid, re-scores, and rolls back to
// the original text if the overall score regresses.
func (e *Engine) runActionPrompt(ctx context.Context, modelID, text string, score *analyzer.SceneScore, phase string) (*Outcome, error) {
	obs.M().EnhancementTotal.WithLabelValues(string(ModeActionPrompt)).Inc()

	fixes, err := e.fixer.proposeFixes(ctx, modelID, text, score)
	if err != nil {
		return nil, err
	}

	ordered := make([]Fix, len(fixes))
	copy(ordered, fixes)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].LineIndex > ordered[j].LineIndex })

	lines := strings.Split(text, "\n")
	var applied []Fix
	for _, fx := range ordered {
		if fx.LineIndex < 0 || fx.LineIndex >= len(lines) {
			continue
		}
		if !strings.Contains(lines[fx.LineIndex], fx.Old) {
			continue
		}
		lines[fx.LineIndex] = strings.Replace(lines[fx.LineIndex], fx.Old, fx.New, 1)
		applied = append(applied, fx)
	}
	candidate := strings.Join(lines, "\n")

	newScore, err := e.analyzer.Analyze(ctx, modelID, candidate, phase)
	if err != nil {
		return nil, err
	}

	if newScore.Overall < score.Overall-e.thresholds.RegressionTolerance {
		obs.Logger().Warn("action prompt regressed score, rolling back", "before", score.Overall, "after", newScore.Overall)
		return &Outcome{
			Mode:         ModeActionPrompt,
			FinalText:    text,
			AppliedFixes: applied,
			RolledBack:   true,
			InitialScore: score,
			FinalScore:   score,
		}, nil
	}

	return &Outcome{
		Mode:         ModeActionPrompt,
		FinalText:    candidate,
		AppliedFixes: applied,
		InitialScore: score,
		FinalScore:   newScore,
	}, nil
}

// runSixPass runs the fixed pass sequence, re-scoring after each pass with
// a full Analyze call and exiting early once the running text
// reaches the A- tier or better.
func (e *Engine) runSixPass(ctx context.Context, modelID, text string, score *analyzer.SceneScore, phase string) (*Outcome, error) {
	obs.M().EnhancementTotal.WithLabelValues(string(ModeSixPass)).Inc()

	current := text
	var run []string
	latestScore := score

	for _, pass := range sixPasses {
		next, err := e.passes.runPass(ctx, modelID, pass, current)
		if err != nil {
			obs.Logger().Warn("six-pass step failed, keeping prior text", "pass", pass, "error", err)
			break
		}
		current = next
		run = append(run, pass)

		rescored, err := e.analyzer.Analyze(ctx, modelID, current, phase)
		if err != nil {
			obs.Logger().Warn("six-pass re-score failed, continuing without fast-exit check", "pass", pass, "error", err)
			continue
		}
		latestScore = rescored
		if tierRank[rescored.Tier] <= tierRank[e.thresholds.FastExitTier] {
			break
		}
	}

	return &Outcome{
		Mode:         ModeSixPass,
		FinalText:    current,
		PassesRun:    run,
		InitialScore: score,
		FinalScore:   latestScore,
	}, nil
}
