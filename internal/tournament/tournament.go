// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tournament implements the Scene Writer / Multi-Model Tournament
// Orchestrator: optional structure-variant generation, parallel (model,
// strategy) fan-out bounded by per-provider concurrency, scoring via
// internal/analyzer, deterministic ranking, a streaming results channel,
// mechanical hybrid composition, and cancellation with partial results.
//
// Grounded on services/trace/agent/routing/escalating_router.go's
// primary-plus-escalation concurrent dispatch with metrics, and egress's
// rate_limiter.go per-provider semaphore gating, generalized to a
// per-provider concurrency cap across an arbitrary (model, strategy) grid.
package tournament

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftquality/craftengine/internal/analyzer"
	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/llmtransport"
	"github.com/craftquality/craftengine/internal/modelrouter"
	"github.com/craftquality/craftengine/internal/obs"
	"github.com/craftquality/craftengine/internal/voicebundle"
)

// Strategy is the closed set of generation directives a Task may request
// (§3 Variant, GLOSSARY).
type Strategy string

const (
	StrategyAction      Strategy = "ACTION"
	StrategyCharacter   Strategy = "CHARACTER"
	StrategyDialogue    Strategy = "DIALOGUE"
	StrategyAtmospheric Strategy = "ATMOSPHERIC"
	StrategyBalanced    Strategy = "BALANCED"
)

// Task is one (model, strategy) pair to run in a tournament round.
type Task struct {
	ModelID  string
	Strategy Strategy
}

// Variant is one completed (or failed/cancelled) tournament entry.
type Variant struct {
	ID       string
	ModelID  string
	Strategy Strategy
	Text     string
	Score    *analyzer.SceneScore
	WallTime time.Duration
	Err      error
}

// strategyPrompts maps each closed Strategy value to its generation steer.
// An unrecognized Strategy (e.g. a caller bypassing the typed constants)
// falls back to a neutral instruction rather than failing the task.
var strategyPrompts = map[Strategy]string{
	StrategyAction:      "Write the scene prioritizing plot momentum and external action over interiority.",
	StrategyCharacter:   "Write the scene prioritizing interiority, motivation, and character reflection within the scaffold's beats.",
	StrategyDialogue:    "Write the scene carrying as much of the scaffold's beats as possible through spoken dialogue and subtext rather than narration.",
	StrategyAtmospheric: "Write the scene foregrounding sensory detail, setting, and mood, with plot and dialogue kept spare.",
	StrategyBalanced:    "Write the scene closely following the scaffold's beats in order, balancing action, interiority, dialogue, and atmosphere.",
}

func strategyPrompt(strategy Strategy) string {
	if p, ok := strategyPrompts[strategy]; ok {
		return p
	}
	return "Write the scene following the scaffold's beats."
}

// Tournament composes an LLM transport and a Scene Analyzer into a bounded,
// cancellable fan-out over (model, strategy) pairs.
type Tournament struct {
	transport              *llmtransport.Transport
	analyzer               *analyzer.Analyzer
	concurrencyPerProvider int
}

// New builds a Tournament. concurrencyPerProvider <= 0 defaults to 2,
// matching the teacher's conservative default semaphore width in
// egress/rate_limiter.go.
func New(transport *llmtransport.Transport, an *analyzer.Analyzer, concurrencyPerProvider int) *Tournament {
	if concurrencyPerProvider <= 0 {
		concurrencyPerProvider = 2
	}
	return &Tournament{transport: transport, analyzer: an, concurrencyPerProvider: concurrencyPerProvider}
}

// GenerateStructureVariants produces n distinct outlines from a single model
// by varying the structural steer per call; each call is independent and
// runs concurrently. A failed call yields an empty string at its index
// rather than aborting the remaining variants.
func (t *Tournament) GenerateStructureVariants(ctx context.Context, modelID string, n int, scaffoldPrompt string) []string {
	out := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			steer := fmt.Sprintf("Produce structural outline variant %d of %d: a distinct beat-level approach to the same scaffold, different from the other variants in emphasis or ordering of emotional beats (not plot beats).", idx+1, n)
			res, err := t.transport.Complete(ctx, modelID, []llmtransport.Message{
				{Role: "system", Content: steer},
				{Role: "user", Content: scaffoldPrompt},
			}, llmtransport.Params{})
			if err != nil {
				obs.Logger().Warn("structure variant generation failed", "model_id", modelID, "variant", idx, "error", err)
				return
			}
			out[idx] = res.Text
		}(i)
	}
	wg.Wait()
	return out
}

// Run fans Task pairs out across a per-provider-bounded worker pool,
// generating a scene per task and scoring it via the Analyzer, emitting
// each completed Variant on the returned channel as soon as it is scored.
// The channel is closed once every task has terminated (success, error, or
// cancellation). Cancelling ctx stops dispatching new work and lets
// in-flight tasks drain or fail fast; already-emitted Variants are not
// retracted, giving the caller a partial result set.
func (t *Tournament) Run(ctx context.Context, tasks []Task, scoringModelID, scaffoldPrompt, phase string) <-chan Variant {
	results := make(chan Variant, len(tasks))

	sems := make(map[string]chan struct{})
	for _, task := range tasks {
		provider := modelrouter.InferProvider(task.ModelID)
		if _, ok := sems[provider]; !ok {
			sems[provider] = make(chan struct{}, t.concurrencyPerProvider)
		}
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		provider := modelrouter.InferProvider(task.ModelID)
		sem := sems[provider]

		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- Variant{ID: uuid.NewString(), ModelID: task.ModelID, Strategy: task.Strategy, Err: errs.Wrap(errs.KindCancelled, ctx.Err(), "tournament task cancelled before dispatch")}
				return
			}
			defer func() { <-sem }()

			results <- t.runOne(ctx, task, scoringModelID, scaffoldPrompt, phase)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func (t *Tournament) runOne(ctx context.Context, task Task, scoringModelID, scaffoldPrompt, phase string) Variant {
	start := time.Now()
	id := uuid.NewString()

	genRes, err := t.transport.Complete(ctx, task.ModelID, []llmtransport.Message{
		{Role: "system", Content: strategyPrompt(task.Strategy)},
		{Role: "user", Content: scaffoldPrompt},
	}, llmtransport.Params{})
	if err != nil {
		obs.M().TournamentVariants.WithLabelValues(outcomeFor(err)).Inc()
		return Variant{ID: id, ModelID: task.ModelID, Strategy: task.Strategy, WallTime: time.Since(start), Err: err}
	}

	score, err := t.analyzer.Analyze(ctx, scoringModelID, genRes.Text, phase)
	if err != nil {
		obs.M().TournamentVariants.WithLabelValues(outcomeFor(err)).Inc()
		return Variant{ID: id, ModelID: task.ModelID, Strategy: task.Strategy, Text: genRes.Text, WallTime: time.Since(start), Err: err}
	}

	obs.M().TournamentVariants.WithLabelValues("scored").Inc()
	return Variant{ID: id, ModelID: task.ModelID, Strategy: task.Strategy, Text: genRes.Text, Score: score, WallTime: time.Since(start)}
}

func outcomeFor(err error) string {
	if errs.KindOf(err) == errs.KindCancelled {
		return "timed_out"
	}
	return "error"
}

// Rank orders scored variants by descending overall score, then descending
// voice_authenticity, then ascending zero-tolerance violation count, then
// ascending wall time. Errored variants (Score == nil) sort after every
// scored variant, in task-submission-stable order.
func Rank(variants []Variant) []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants)

	sort.SliceStable(out, func(i, j int) bool {
		vi, vj := out[i], out[j]
		if (vi.Score == nil) != (vj.Score == nil) {
			return vi.Score != nil
		}
		if vi.Score == nil {
			return false
		}
		if vi.Score.Overall != vj.Score.Overall {
			return vi.Score.Overall > vj.Score.Overall
		}
		va, vb := vi.Score.CategoryScores["voice_authenticity"], vj.Score.CategoryScores["voice_authenticity"]
		if va.Awarded != vb.Awarded {
			return va.Awarded > vb.Awarded
		}
		zi, zj := zeroToleranceCount(vi.Score), zeroToleranceCount(vj.Score)
		if zi != zj {
			return zi < zj
		}
		return vi.WallTime < vj.WallTime
	})
	return out
}

func zeroToleranceCount(s *analyzer.SceneScore) int {
	n := 0
	for _, v := range s.Violations {
		if v.Severity == voicebundle.SeverityZeroTolerance {
			n++
		}
	}
	return n
}

// HybridSegment names one paragraph of the composed hybrid: which variant
// index to pull paragraph ParagraphIndex from.
type HybridSegment struct {
	VariantIndex  int
	ParagraphIndex int
}

// CreateHybrid mechanically assembles a new scene by concatenating the
// named paragraphs from the given variants, in segment order. Composition
// is never LLM-regenerated — it is a pure selection-and-splice over
// already-scored text, per §4.6/§9.
func CreateHybrid(variants []Variant, segments []HybridSegment) (string, error) {
	paragraphsByVariant := make([][]string, len(variants))
	for i, v := range variants {
		paragraphsByVariant[i] = splitParagraphs(v.Text)
	}

	var b strings.Builder
	for i, seg := range segments {
		if seg.VariantIndex < 0 || seg.VariantIndex >= len(variants) {
			return "", errs.New(errs.KindInvalidSetting, "hybrid segment %d: variant index %d out of range", i, seg.VariantIndex)
		}
		paras := paragraphsByVariant[seg.VariantIndex]
		if seg.ParagraphIndex < 0 || seg.ParagraphIndex >= len(paras) {
			return "", errs.New(errs.KindInvalidSetting, "hybrid segment %d: paragraph index %d out of range for variant %d", i, seg.ParagraphIndex, seg.VariantIndex)
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(paras[seg.ParagraphIndex])
	}
	return b.String(), nil
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
