// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/patterns"
	"github.com/craftquality/craftengine/internal/voicebundle"
)

const testBundleYAML = `
simile_policy: "forbid"
anti_patterns:
  - pattern: "suddenly"
    description: "stock adverb opener"
    severity: formulaic
  - pattern: "it was a dark and stormy"
    description: "cliche opener"
    severity: zero_tolerance
metaphor_domains:
  - name: "nautical"
    keywords: ["anchor", "tide"]
    max_percentage: 0.1
`

const limitSimileBundleYAML = `
simile_policy: "limit:1"
`

const phaseBundleYAML = `
simile_policy: "allow"
phase_profiles:
  - phase_name: "opening"
    forbidden_constructs: ["flashback", "info dump"]
    allowed_technical_vocab: ["warrant"]
  - phase_name: "climax"
    forbidden_constructs: []
`

func testWeights() Weights {
	return Weights{
		VoiceAuthenticity: 25, CharacterConsistency: 20, MetaphorDiscipline: 20,
		AntiPattern: 20, PhaseAppropriateness: 15,
		ZeroToleranceDeduction: 20, FormulaicDeduction: 5, FormulaicCap: 10,
		TierAThreshold: 90, TierAMinusThreshold: 80, TierBPlusThreshold: 70, TierBThreshold: 60,
	}
}

// stubJudge returns a fixed award per category, or fails for categories
// listed in failFor, optionally as a SchemaViolation.
type stubJudge struct {
	award       float64
	failFor     map[string]bool
	failKind    errs.Kind
	calls       map[string]int
}

func newStubJudge(award float64) *stubJudge {
	return &stubJudge{award: award, failFor: map[string]bool{}, failKind: errs.KindSchemaViolation, calls: map[string]int{}}
}

func (s *stubJudge) judgeCategory(ctx context.Context, modelID, category, text string, bundle *voicebundle.Bundle) (categoryJudgment, error) {
	s.calls[category]++
	if s.failFor[category] {
		return categoryJudgment{}, errs.New(s.failKind, "judge unavailable for %s", category)
	}
	return categoryJudgment{Awarded: s.award, Rationale: "stub rationale"}, nil
}

func newAnalyzer(t *testing.T, j judge, w Weights) *Analyzer {
	t.Helper()
	b, err := voicebundle.Parse([]byte(testBundleYAML))
	require.NoError(t, err)
	lib := patterns.Compile(b, patterns.Options{SimileDensitySuppressionThreshold: 1, SimileContextWindow: 8})
	return New(lib, b, w, j)
}

func TestAnalyze_CleanTextScoresMaxAntiPatternCategory(t *testing.T) {
	a := newAnalyzer(t, newStubJudge(10), testWeights())
	score, err := a.Analyze(context.Background(), "claude-haiku-4-5-20251001", "A quiet morning passed without incident.", "")
	require.NoError(t, err)
	assert.Equal(t, 20.0, score.CategoryScores["anti_pattern"].Awarded)
}

func TestAnalyze_ZeroToleranceHitDeductsFullWeight(t *testing.T) {
	a := newAnalyzer(t, newStubJudge(10), testWeights())
	score, err := a.Analyze(context.Background(), "m", "It was a dark and stormy night.", "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.CategoryScores["anti_pattern"].Awarded)
}

func TestAnalyze_FormulaicDeductionsCapOut(t *testing.T) {
	w := testWeights()
	a := newAnalyzer(t, newStubJudge(10), w)
	text := "Suddenly this. Suddenly that. Suddenly again and suddenly more suddenly still."
	score, err := a.Analyze(context.Background(), "m", text, "")
	require.NoError(t, err)
	// 5 deduction per hit capped at FormulaicCap=10, so max deduction is 10.
	assert.Equal(t, w.AntiPattern-10, score.CategoryScores["anti_pattern"].Awarded)
}

func TestAnalyze_JudgeSchemaViolationRetriesOnceThenDegrades(t *testing.T) {
	j := newStubJudge(10)
	j.failFor["voice_authenticity"] = true
	a := newAnalyzer(t, j, testWeights())

	score, err := a.Analyze(context.Background(), "m", "plain text", "")
	require.NoError(t, err)
	assert.True(t, score.LowConfidence)
	assert.True(t, score.CategoryScores["voice_authenticity"].Indeterminate)
	assert.Equal(t, 2, j.calls["voice_authenticity"], "a SchemaViolation must be retried exactly once")
}

func TestAnalyze_NonSchemaJudgeErrorAlsoDegradesWithoutRetry(t *testing.T) {
	j := newStubJudge(10)
	j.failFor["voice_authenticity"] = true
	j.failKind = errs.KindProviderPermanent
	a := newAnalyzer(t, j, testWeights())

	score, err := a.Analyze(context.Background(), "m", "plain text", "")
	require.NoError(t, err, "a non-schema judge failure degrades the category rather than failing the whole scene")
	assert.True(t, score.CategoryScores["voice_authenticity"].Indeterminate)
	assert.Equal(t, 1, j.calls["voice_authenticity"], "only a SchemaViolation is retried")
}

func TestAnalyze_MetaphorSaturationCapsDeterministicScoreBelowLLM(t *testing.T) {
	a := newAnalyzer(t, newStubJudge(20), testWeights())
	// "anchor"/"tide" both in the nautical domain; max_percentage is 0.1, so
	// a short, anchor/tide-heavy passage saturates it.
	score, err := a.Analyze(context.Background(), "m", "anchor tide anchor tide plain words here filler filler", "")
	require.NoError(t, err)
	assert.Less(t, score.CategoryScores["metaphor_discipline"].Awarded, 20.0,
		"a saturated domain must cap the category below the LLM's own (unsaturated) award")
}

func TestAnalyze_TierClassificationThresholds(t *testing.T) {
	cases := []struct {
		overall float64
		want    Tier
	}{
		{95, TierA},
		{85, TierAMinus},
		{75, TierBPlus},
		{65, TierB},
		{40, TierNeedsRework},
	}
	w := testWeights()
	for _, c := range cases {
		assert.Equal(t, c.want, classifyTier(c.overall, w), c.overall)
	}
}

func TestAnalyze_ViolationsSortedBySeverityThenLine(t *testing.T) {
	a := newAnalyzer(t, newStubJudge(10), testWeights())
	text := "Suddenly line two.\nIt was a dark and stormy night on line three."
	score, err := a.Analyze(context.Background(), "m", text, "")
	require.NoError(t, err)
	require.Len(t, score.Violations, 2)
	assert.Equal(t, voicebundle.SeverityZeroTolerance, score.Violations[0].Severity, "zero_tolerance must sort before formulaic regardless of line order")
}

func TestAnalyze_SaturatedDomainEmitsASyntheticMetaphorSaturationViolation(t *testing.T) {
	a := newAnalyzer(t, newStubJudge(20), testWeights())
	score, err := a.Analyze(context.Background(), "m", "anchor tide anchor tide plain words here filler filler", "")
	require.NoError(t, err)

	var found *Violation
	for i := range score.Violations {
		if score.Violations[i].PatternID == "metaphor_saturation:nautical" {
			found = &score.Violations[i]
		}
	}
	require.NotNil(t, found, "a saturated domain must produce a metaphor_saturation:<domain> violation per the concrete saturation scenario")
	assert.Equal(t, voicebundle.SeverityFormulaic, found.Severity)
}

func TestAnalyze_SimileHitUnderForbidPolicyIsDeterministicallyCappedAndReported(t *testing.T) {
	b, err := voicebundle.Parse([]byte(testBundleYAML))
	require.NoError(t, err)
	lib := patterns.Compile(b, patterns.Options{})
	a := New(lib, b, testWeights(), newStubJudge(20))

	score, err := a.Analyze(context.Background(), "m", "She smiled as if the sun itself had risen just for her.", "")
	require.NoError(t, err)
	assert.Less(t, score.CategoryScores["metaphor_discipline"].Awarded, 20.0,
		"the pattern library's simile count must cap the category even when the LLM claims a clean score")

	var found bool
	for _, v := range score.Violations {
		if v.PatternID == "simile" {
			found = true
			assert.Equal(t, voicebundle.SeverityZeroTolerance, v.Severity, "simile_policy: forbid makes any hit zero_tolerance")
		}
	}
	assert.True(t, found, "a simile hit must appear in the violation list, not just the score cap")
}

func TestAnalyze_SimileLimitPolicyOnlyFlagsHitsBeyondN(t *testing.T) {
	b, err := voicebundle.Parse([]byte(limitSimileBundleYAML))
	require.NoError(t, err)
	lib := patterns.Compile(b, patterns.Options{})
	a := New(lib, b, testWeights(), newStubJudge(20))

	text := "She moved as if weightless. He spoke as though certain. She paused like a held breath."
	score, err := a.Analyze(context.Background(), "m", text, "")
	require.NoError(t, err)

	simileViolations := 0
	for _, v := range score.Violations {
		if v.PatternID == "simile" {
			simileViolations++
		}
	}
	assert.Equal(t, 2, simileViolations, "limit:1 allows the first hit through and flags the rest")
}

func TestAnalyze_PhaseForbiddenConstructCapsPhaseAppropriatenessAndSetsPhaseFlags(t *testing.T) {
	b, err := voicebundle.Parse([]byte(phaseBundleYAML))
	require.NoError(t, err)
	lib := patterns.Compile(b, patterns.Options{})
	a := New(lib, b, testWeights(), newStubJudge(15))

	score, err := a.Analyze(context.Background(), "m", "The scene opens with a flashback to her childhood.", "opening")
	require.NoError(t, err)
	assert.Less(t, score.CategoryScores["phase_appropriateness"].Awarded, 15.0,
		"a forbidden construct for the declared phase must cap the category below the LLM's own award")
	require.Len(t, score.PhaseFlags, 1)
	assert.Equal(t, "flashback", score.PhaseFlags[0])
}

func TestAnalyze_UnknownOrEmptyPhaseSkipsTheDeterministicCheck(t *testing.T) {
	b, err := voicebundle.Parse([]byte(phaseBundleYAML))
	require.NoError(t, err)
	lib := patterns.Compile(b, patterns.Options{})
	a := New(lib, b, testWeights(), newStubJudge(15))

	score, err := a.Analyze(context.Background(), "m", "The scene opens with a flashback to her childhood.", "")
	require.NoError(t, err)
	assert.Equal(t, 15.0, score.CategoryScores["phase_appropriateness"].Awarded)
	assert.Empty(t, score.PhaseFlags)
}
