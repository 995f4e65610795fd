// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enhancement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftquality/craftengine/internal/analyzer"
	"github.com/craftquality/craftengine/internal/llmtransport"
	"github.com/craftquality/craftengine/internal/patterns"
	"github.com/craftquality/craftengine/internal/voicebundle"
)

const testBundleYAML = `
simile_policy: "allow"
anti_patterns:
  - pattern: "suddenly"
    description: "stock adverb opener"
    severity: formulaic
  - pattern: "curséd doom"
    description: "purple-prose cliche"
    severity: zero_tolerance
`

func testWeights() analyzer.Weights {
	return analyzer.Weights{
		VoiceAuthenticity: 25, CharacterConsistency: 20, MetaphorDiscipline: 20,
		AntiPattern: 20, PhaseAppropriateness: 15,
		ZeroToleranceDeduction: 20, FormulaicDeduction: 10, FormulaicCap: 10,
		TierAThreshold: 90, TierAMinusThreshold: 80, TierBPlusThreshold: 70, TierBThreshold: 60,
	}
}

// judgeServer answers every /api/chat call with a fixed "awarded" value,
// giving every judged category (everything but anti_pattern) the same
// clamped score so overall is controlled entirely through anti-pattern hits
// planted in the test text.
func judgeServer(t *testing.T, awarded float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"message": map[string]string{
				"role":    "assistant",
				"content": `{"awarded": ` + jsonNum(awarded) + `, "rationale": "stub"}`,
			},
			"done": true,
		})
		w.Header().Set("content-type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func jsonNum(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func newTestAnalyzer(t *testing.T, judgeAward float64) *analyzer.Analyzer {
	t.Helper()
	srv := judgeServer(t, judgeAward)
	transport := llmtransport.New("", "", "", srv.URL, llmtransport.RetryPolicy{MaxAttempts: 1})
	b, err := voicebundle.Parse([]byte(testBundleYAML))
	require.NoError(t, err)
	lib := patterns.Compile(b, patterns.Options{})
	return analyzer.New(lib, b, testWeights(), analyzer.NewLLMJudge(transport))
}

func testThresholds() Thresholds {
	return Thresholds{
		ActionPromptThreshold: 85,
		SixPassFloor:          70,
		RegressionTolerance:   5,
		FastExitTier:          analyzer.TierAMinus,
	}
}

type stubFixer struct {
	fixes []Fix
	err   error
}

func (f *stubFixer) proposeFixes(ctx context.Context, modelID, text string, score *analyzer.SceneScore) ([]Fix, error) {
	return f.fixes, f.err
}

type stubPassRunner struct {
	transform func(pass, text string) string
	err       error
}

func (p *stubPassRunner) runPass(ctx context.Context, modelID, passName, text string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.transform(passName, text), nil
}

func TestEnhance_HighScoreEntersActionPromptAndKeepsImprovingFix(t *testing.T) {
	an := newTestAnalyzer(t, 1000) // clamps to max on every judged category
	text := "The quiet morning continued. Suddenly the bells rang."

	fixer := &stubFixer{fixes: []Fix{{LineIndex: 0, Old: "Suddenly", New: "Then"}}}
	e := New(an, fixer, &stubPassRunner{}, testThresholds())

	score, err := an.Analyze(context.Background(), "local-test-model", text, "")
	require.NoError(t, err)
	require.GreaterOrEqual(t, score.Overall, testThresholds().ActionPromptThreshold)

	outcome, err := e.Enhance(context.Background(), "local-test-model", text, score, "")
	require.NoError(t, err)
	assert.Equal(t, ModeActionPrompt, outcome.Mode)
	assert.False(t, outcome.RolledBack)
	assert.Contains(t, outcome.FinalText, "Then the bells rang.")
	assert.NotContains(t, outcome.FinalText, "Suddenly")
}

func TestEnhance_ActionPromptRollsBackOnRegression(t *testing.T) {
	an := newTestAnalyzer(t, 1000)
	text := "The quiet morning continued. Suddenly the bells rang."

	// This "fix" introduces the zero-tolerance phrase, which must regress the
	// re-scored text enough to trigger a rollback to the original.
	fixer := &stubFixer{fixes: []Fix{{LineIndex: 0, Old: "Suddenly", New: "The curséd doom arrived as"}}}
	e := New(an, fixer, &stubPassRunner{}, testThresholds())

	score, err := an.Analyze(context.Background(), "local-test-model", text, "")
	require.NoError(t, err)

	outcome, err := e.Enhance(context.Background(), "local-test-model", text, score, "")
	require.NoError(t, err)
	assert.Equal(t, ModeActionPrompt, outcome.Mode)
	assert.True(t, outcome.RolledBack)
	assert.Equal(t, text, outcome.FinalText)
}

func TestEnhance_MidScoreEntersSixPassAndExitsEarlyAtFastExitTier(t *testing.T) {
	an := newTestAnalyzer(t, 1000)
	// The zero-tolerance hit pins anti_pattern to 0, pulling overall into the
	// six_pass band without reaching the action-prompt threshold.
	text := "The curséd doom arrived as evening fell."

	score, err := an.Analyze(context.Background(), "local-test-model", text, "")
	require.NoError(t, err)
	require.Less(t, score.Overall, testThresholds().ActionPromptThreshold)
	require.GreaterOrEqual(t, score.Overall, testThresholds().SixPassFloor)

	var ran []string
	passes := &stubPassRunner{transform: func(pass, in string) string {
		ran = append(ran, pass)
		if pass == "sensory_anchoring" {
			// Strip the zero-tolerance phrase so the next re-score clears the
			// fast-exit tier and the remaining passes never run.
			return "The evening fell quietly."
		}
		return in
	}}
	e := New(an, &stubFixer{}, passes, testThresholds())

	outcome, err := e.Enhance(context.Background(), "local-test-model", text, score, "")
	require.NoError(t, err)
	assert.Equal(t, ModeSixPass, outcome.Mode)
	assert.Equal(t, []string{"sensory_anchoring"}, outcome.PassesRun, "must fast-exit after the first pass clears the tier")
	assert.Equal(t, "The evening fell quietly.", outcome.FinalText)
}

func TestEnhance_SixPassKeepsPriorTextWhenAPassFails(t *testing.T) {
	an := newTestAnalyzer(t, 1000)
	text := "The curséd doom arrived as evening fell."

	score, err := an.Analyze(context.Background(), "local-test-model", text, "")
	require.NoError(t, err)

	passes := &stubPassRunner{err: assertAnError()}
	e := New(an, &stubFixer{}, passes, testThresholds())

	outcome, err := e.Enhance(context.Background(), "local-test-model", text, score, "")
	require.NoError(t, err)
	assert.Equal(t, ModeSixPass, outcome.Mode)
	assert.Empty(t, outcome.PassesRun, "a failing first pass must leave PassesRun empty")
	assert.Equal(t, text, outcome.FinalText)
}

func TestEnhance_LowScoreRejectsWithoutAnyLLMCall(t *testing.T) {
	an := newTestAnalyzer(t, 0)
	text := "Plain unremarkable sentence."

	score, err := an.Analyze(context.Background(), "local-test-model", text, "")
	require.NoError(t, err)
	require.Less(t, score.Overall, testThresholds().SixPassFloor)

	e := New(an, &stubFixer{}, &stubPassRunner{}, testThresholds())
	outcome, err := e.Enhance(context.Background(), "local-test-model", text, score, "")
	require.NoError(t, err)
	assert.Equal(t, ModeReject, outcome.Mode)
	assert.Equal(t, text, outcome.FinalText)
}

func TestApplyFixes_AppliesInReverseLineOrderSoEarlierIndicesStayValid(t *testing.T) {
	text := "line zero\nline one\nline two"
	fixes := []Fix{
		{LineIndex: 0, Old: "zero", New: "ZERO"},
		{LineIndex: 2, Old: "two", New: "TWO"},
	}
	got := ApplyFixes(text, fixes)
	assert.Equal(t, "line ZERO\nline one\nline TWO", got)
}

func TestApplyFixes_SkipsFixesWhoseOldTextIsNoLongerPresent(t *testing.T) {
	text := "line zero\nline one"
	fixes := []Fix{{LineIndex: 0, Old: "missing", New: "replacement"}}
	got := ApplyFixes(text, fixes)
	assert.Equal(t, text, got)
}

func assertAnError() error {
	return &testPassError{}
}

type testPassError struct{}

func (e *testPassError) Error() string { return "pass failed" }
