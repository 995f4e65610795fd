// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer implements the Scene Analyzer: a 100-point five-category
// rubric combining deterministic Pattern Library scans with LLM-judged
// sub-tests, strict JSON-schema decoding with a retry-then-degrade fallback,
// and deterministic-overrides-LLM conflict resolution (§4.5).
//
// Grounded on services/trace/agent/phases/execute_synthesis.go's
// LLM-call-plus-deterministic-merge phase shape, generalized from code
// synthesis review to prose scoring.
package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/llmtransport"
	"github.com/craftquality/craftengine/internal/obs"
	"github.com/craftquality/craftengine/internal/patterns"
	"github.com/craftquality/craftengine/internal/voicebundle"
)

// Tier is the classification bucket a Scene Score falls into.
type Tier string

const (
	TierA           Tier = "A"
	TierAMinus      Tier = "A-"
	TierBPlus       Tier = "B+"
	TierB           Tier = "B"
	TierNeedsRework Tier = "needs_rework"
)

// CategoryScore is one rubric category's awarded/max with notes.
type CategoryScore struct {
	Awarded       float64 `json:"awarded"`
	Max           float64 `json:"max"`
	Notes         string  `json:"notes,omitempty"`
	Indeterminate bool    `json:"indeterminate,omitempty"`
}

// Violation is one reported pattern hit, ordered by (severity desc, line asc).
type Violation struct {
	LineIndex     int                  `json:"line_index"`
	Severity      voicebundle.Severity `json:"severity"`
	PatternID     string               `json:"pattern_id"`
	Excerpt       string               `json:"excerpt"`
	SuggestedFix  string               `json:"suggested_fix,omitempty"`
}

// MetaphorReport summarizes domain saturation for one Scene Score.
type MetaphorReport struct {
	TotalCount         int                `json:"total_count"`
	PerDomainCounts     map[string]float64 `json:"per_domain_counts"`
	PerDomainPercentages map[string]float64 `json:"per_domain_percentages"`
	SaturatedDomains    []string           `json:"saturated_domains"`
}

// SceneScore is the immutable output of a single Analyzer run (§3).
type SceneScore struct {
	Overall        float64                  `json:"overall"`
	CategoryScores map[string]CategoryScore `json:"category_scores"`
	Violations     []Violation              `json:"violations"`
	MetaphorReport MetaphorReport           `json:"metaphor_report"`
	Tier           Tier                     `json:"tier"`
	PhaseFlags     []string                 `json:"phase_flags,omitempty"`
	ModelUsed      string                   `json:"model_used"`
	WallTimeMS     int64                    `json:"wall_time_ms"`
	LowConfidence  bool                     `json:"low_confidence,omitempty"`
}

// Category weight/threshold constants, overridable per-project via the
// Settings Resolver; Analyzer callers pass resolved values through Weights.
type Weights struct {
	VoiceAuthenticity   float64
	CharacterConsistency float64
	MetaphorDiscipline  float64
	AntiPattern         float64
	PhaseAppropriateness float64

	ZeroToleranceDeduction float64
	FormulaicDeduction     float64
	FormulaicCap           float64

	TierAThreshold      float64
	TierAMinusThreshold float64
	TierBPlusThreshold  float64
	TierBThreshold      float64
}

// judge is the minimal seam the Analyzer needs from the LLM transport: one
// schema-constrained call per rubric category. Implemented by llmJudge
// below; tests substitute a stub.
type judge interface {
	judgeCategory(ctx context.Context, modelID, category, text string, bundle *voicebundle.Bundle) (categoryJudgment, error)
}

// categoryJudgment is the strict JSON-schema response shape an LLM call
// must produce for one rubric category.
type categoryJudgment struct {
	Awarded   float64 `json:"awarded"`
	Rationale string  `json:"rationale"`
}

// Analyzer composes the Pattern Library and an LLM judge into full Scene
// Score computation.
type Analyzer struct {
	library *patterns.Library
	bundle  *voicebundle.Bundle
	weights Weights
	judge   judge
}

// New builds an Analyzer bound to one compiled Pattern Library / Voice
// Bundle pair and a judge implementation.
func New(library *patterns.Library, bundle *voicebundle.Bundle, weights Weights, j judge) *Analyzer {
	return &Analyzer{library: library, bundle: bundle, weights: weights, judge: j}
}

// Analyze scores text against the active Voice Bundle on the 100-point
// rubric, per §4.5. phase is the scene's declared narrative phase (Scaffold
// field, §3); an empty phase or one absent from the Voice Bundle skips the
// deterministic forbidden-construct check and leaves Phase Appropriateness
// entirely to the LLM judge.
func (a *Analyzer) Analyze(ctx context.Context, modelID, text, phase string) (*SceneScore, error) {
	start := time.Now()
	ctx, span := obs.StartSpan(ctx, "analyzer.Analyze")
	defer span.End()

	scan := a.library.Scan(text)
	metaphorReport := a.library.ScanMetaphors(text)
	var similes []patterns.Match
	for _, m := range scan {
		if m.Kind == patterns.KindSimile {
			similes = append(similes, m)
		}
	}

	categories := map[string]float64{
		"voice_authenticity":    a.weights.VoiceAuthenticity,
		"character_consistency": a.weights.CharacterConsistency,
		"metaphor_discipline":   a.weights.MetaphorDiscipline,
		"anti_pattern":          a.weights.AntiPattern,
		"phase_appropriateness": a.weights.PhaseAppropriateness,
	}

	categoryScores := make(map[string]CategoryScore, len(categories))
	lowConfidence := false
	var phaseFlags []string

	for cat, max := range categories {
		switch cat {
		case "anti_pattern":
			categoryScores[cat] = a.scoreAntiPatterns(scan, max)
		case "metaphor_discipline":
			cs, err := a.scoreMetaphorDiscipline(ctx, modelID, text, metaphorReport, similes, max)
			if err != nil {
				return nil, err
			}
			if cs.Indeterminate {
				lowConfidence = true
			}
			categoryScores[cat] = cs
		case "phase_appropriateness":
			cs, flags, err := a.scorePhaseAppropriateness(ctx, modelID, text, phase, max)
			if err != nil {
				return nil, err
			}
			if cs.Indeterminate {
				lowConfidence = true
			}
			categoryScores[cat] = cs
			phaseFlags = flags
		default:
			cs, err := a.scoreViaJudge(ctx, modelID, cat, text, max)
			if err != nil {
				return nil, err
			}
			if cs.Indeterminate {
				lowConfidence = true
			}
			categoryScores[cat] = cs
		}
	}

	var overall float64
	for _, cs := range categoryScores {
		overall += cs.Awarded
	}

	mr := buildMetaphorReport(metaphorReport, a.bundle)

	violations := buildViolations(scan, a.bundle, mr)
	sortViolations(violations)

	score := &SceneScore{
		Overall:        clamp(overall, 0, 100),
		CategoryScores: categoryScores,
		Violations:     violations,
		MetaphorReport: mr,
		Tier:           classifyTier(overall, a.weights),
		PhaseFlags:     phaseFlags,
		ModelUsed:      modelID,
		WallTimeMS:     time.Since(start).Milliseconds(),
		LowConfidence:  lowConfidence,
	}

	outcome := "ok"
	if lowConfidence {
		outcome = "degraded"
	}
	obs.M().AnalyzeTotal.WithLabelValues(outcome).Inc()
	obs.M().AnalyzeLatency.Observe(time.Since(start).Seconds())

	return score, nil
}

// scoreAntiPatterns is fully deterministic: zero-tolerance hits deduct
// ZeroToleranceDeduction each (floor 0), formulaic hits deduct
// FormulaicDeduction each up to FormulaicCap (§9 open question resolved:
// the cap is explicit and configurable rather than implicit).
func (a *Analyzer) scoreAntiPatterns(scan []patterns.Match, max float64) CategoryScore {
	deduction := 0.0
	formulaicDeducted := 0.0
	for _, m := range scan {
		if m.Kind != patterns.KindAntiPattern {
			continue
		}
		switch m.Severity {
		case voicebundle.SeverityZeroTolerance:
			deduction += a.weights.ZeroToleranceDeduction
		case voicebundle.SeverityFormulaic:
			if formulaicDeducted < a.weights.FormulaicCap {
				deduction += a.weights.FormulaicDeduction
				formulaicDeducted += a.weights.FormulaicDeduction
			}
		}
	}
	awarded := max - deduction
	if awarded < 0 {
		awarded = 0
	}
	return CategoryScore{Awarded: awarded, Max: max}
}

// scoreMetaphorDiscipline combines deterministic domain-rotation/simile
// counts with an LLM judgment of direct-transformation ratio; deterministic
// results override the LLM where they conflict, per §4.5. similes is the
// Pattern Library's already-scanned simile hits (empty when simile_policy is
// "allow"): the LLM cannot claim a clean simile count the library
// contradicts.
func (a *Analyzer) scoreMetaphorDiscipline(ctx context.Context, modelID, text string, mr patterns.MetaphorReport, similes []patterns.Match, max float64) (CategoryScore, error) {
	deterministic := max
	for domain, pct := range mr.DomainPercent {
		cap := domainCap(a.bundle, domain)
		if cap > 0 && pct > cap {
			deterministic -= max * 0.3 // saturation penalty share
		}
	}

	switch a.bundle.SimilePolicy {
	case voicebundle.SimileForbid:
		if len(similes) > 0 {
			deterministic -= max * 0.3
		}
	case voicebundle.SimileLimit:
		if len(similes) > a.bundle.SimileLimitN {
			deterministic -= max * 0.3
		}
	}
	if deterministic < 0 {
		deterministic = 0
	}

	judgment, err := a.judgeWithRetry(ctx, modelID, "metaphor_discipline", text)
	if err != nil {
		return CategoryScore{Max: max, Indeterminate: true, Notes: "LLM judgment unavailable: " + err.Error()}, nil
	}

	llmAwarded := clamp(judgment.Awarded, 0, max)
	// Deterministic saturation/simile findings cannot be overridden upward by the LLM.
	awarded := llmAwarded
	if deterministic < llmAwarded {
		awarded = deterministic
	}
	notes := judgment.Rationale
	if len(similes) > 0 {
		notes = fmt.Sprintf("%s (pattern library counted %d simile hit(s))", notes, len(similes))
	}
	return CategoryScore{Awarded: awarded, Max: max, Notes: notes}, nil
}

// scorePhaseAppropriateness deterministically scans the declared phase's
// forbidden constructs and caps the category award on any hit; the LLM
// judges only technical-vocabulary earned-ness against the phase's allowed
// vocabulary, never the forbidden-construct check itself, per §4.5's
// mechanical-sub-tests-override-the-LLM rule.
func (a *Analyzer) scorePhaseAppropriateness(ctx context.Context, modelID, text, phase string, max float64) (CategoryScore, []string, error) {
	deterministic := max
	var flags []string

	if profile, ok := a.bundle.PhaseByName(phase); ok {
		lower := strings.ToLower(text)
		for _, construct := range profile.ForbiddenConstructs {
			if construct == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(construct)) {
				flags = append(flags, construct)
				deterministic -= max * 0.34 // forbidden-construct penalty share
			}
		}
		if deterministic < 0 {
			deterministic = 0
		}
	}

	judgment, err := a.judgeWithRetry(ctx, modelID, "phase_appropriateness", text)
	if err != nil {
		return CategoryScore{Max: max, Indeterminate: true, Notes: "LLM judgment unavailable: " + err.Error()}, flags, nil
	}

	llmAwarded := clamp(judgment.Awarded, 0, max)
	awarded := llmAwarded
	if deterministic < llmAwarded {
		awarded = deterministic
	}
	return CategoryScore{Awarded: awarded, Max: max, Notes: judgment.Rationale}, flags, nil
}

// scoreViaJudge delegates a category entirely to the LLM (Voice
// Authenticity, Character Consistency), retrying once on schema failure
// before degrading per §4.5/§7 SchemaViolation.
func (a *Analyzer) scoreViaJudge(ctx context.Context, modelID, category, text string, max float64) (CategoryScore, error) {
	judgment, err := a.judgeWithRetry(ctx, modelID, category, text)
	if err != nil {
		return CategoryScore{Max: max, Indeterminate: true, Notes: "LLM judgment unavailable: " + err.Error()}, nil
	}
	return CategoryScore{Awarded: clamp(judgment.Awarded, 0, max), Max: max, Notes: judgment.Rationale}, nil
}

// judgeWithRetry calls the judge once, and on a SchemaViolation retries
// exactly once with the same inputs (the judge's own stricter re-prompt is
// its responsibility) before surfacing the failure to the caller, who
// degrades the category to indeterminate.
func (a *Analyzer) judgeWithRetry(ctx context.Context, modelID, category, text string) (categoryJudgment, error) {
	j, err := a.judge.judgeCategory(ctx, modelID, category, text, a.bundle)
	if err == nil {
		return j, nil
	}
	if errs.KindOf(err) != errs.KindSchemaViolation {
		return categoryJudgment{}, err
	}
	return a.judge.judgeCategory(ctx, modelID, category, text, a.bundle)
}

func domainCap(b *voicebundle.Bundle, domain string) float64 {
	for _, d := range b.MetaphorDomains {
		if d.Name == domain {
			return d.MaxPercentage
		}
	}
	return 0
}

func buildMetaphorReport(mr patterns.MetaphorReport, b *voicebundle.Bundle) MetaphorReport {
	counts := make(map[string]float64, len(mr.DomainPercent))
	total := 0.0
	for _, m := range mr.Matches {
		counts[m.DomainName] += m.Fraction
		total += m.Fraction
	}
	var saturated []string
	for domain, pct := range mr.DomainPercent {
		if cap := domainCap(b, domain); cap > 0 && pct > cap {
			saturated = append(saturated, domain)
		}
	}
	sort.Strings(saturated)
	return MetaphorReport{
		TotalCount:           int(total),
		PerDomainCounts:      counts,
		PerDomainPercentages: mr.DomainPercent,
		SaturatedDomains:     saturated,
	}
}

// buildViolations converts anti-pattern and simile scan hits plus saturation
// findings into the Scene Score's violation list. Metaphor-saturation
// violations use a synthetic pattern_id of "metaphor_saturation:<domain>"
// per §8 property 3. Simile hits within a "limit:N" allowance are not
// violations; hits beyond it, or any hit under "forbid", are.
func buildViolations(scan []patterns.Match, b *voicebundle.Bundle, mr MetaphorReport) []Violation {
	var out []Violation
	simileSeen := 0
	for _, m := range scan {
		switch m.Kind {
		case patterns.KindAntiPattern:
			out = append(out, Violation{
				LineIndex: m.Line,
				Severity:  m.Severity,
				PatternID: m.PatternID,
				Excerpt:   m.Text,
			})
		case patterns.KindSimile:
			simileSeen++
			var severity voicebundle.Severity
			switch {
			case b.SimilePolicy == voicebundle.SimileForbid:
				severity = voicebundle.SeverityZeroTolerance
			case b.SimilePolicy == voicebundle.SimileLimit && simileSeen > b.SimileLimitN:
				severity = voicebundle.SeverityFormulaic
			default:
				continue
			}
			out = append(out, Violation{
				LineIndex: m.Line,
				Severity:  severity,
				PatternID: "simile",
				Excerpt:   m.Text,
			})
		}
	}

	for _, domain := range mr.SaturatedDomains {
		pct := mr.PerDomainPercentages[domain]
		out = append(out, Violation{
			PatternID: "metaphor_saturation:" + domain,
			Severity:  voicebundle.SeverityFormulaic,
			Excerpt:   fmt.Sprintf("%s metaphor domain at %.0f%% of tokens", domain, pct*100),
		})
	}
	return out
}

func sortViolations(v []Violation) {
	severityRank := map[voicebundle.Severity]int{
		voicebundle.SeverityZeroTolerance: 0,
		voicebundle.SeverityFormulaic:     1,
		voicebundle.SeverityAdvisory:      2,
	}
	sort.SliceStable(v, func(i, j int) bool {
		ri, rj := severityRank[v[i].Severity], severityRank[v[j].Severity]
		if ri != rj {
			return ri < rj
		}
		return v[i].LineIndex < v[j].LineIndex
	})
}

func classifyTier(overall float64, w Weights) Tier {
	switch {
	case overall >= w.TierAThreshold:
		return TierA
	case overall >= w.TierAMinusThreshold:
		return TierAMinus
	case overall >= w.TierBPlusThreshold:
		return TierBPlus
	case overall >= w.TierBThreshold:
		return TierB
	default:
		return TierNeedsRework
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
