// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftquality/craftengine/internal/voicebundle"
)

const bundleYAML = `
simile_policy: "limit:2"
anti_patterns:
  - pattern: "suddenly"
    description: "stock adverb opener"
    severity: formulaic
metaphor_domains:
  - name: "nautical"
    keywords: ["anchor", "tide", "helm"]
    max_percentage: 0.4
  - name: "combat"
    keywords: ["anchor", "strike"]
    max_percentage: 0.3
`

func mustBundle(t *testing.T) *voicebundle.Bundle {
	t.Helper()
	b, err := voicebundle.Parse([]byte(bundleYAML))
	require.NoError(t, err)
	return b
}

func TestScanAntiPatterns_FindsCaseInsensitiveMatchWithLineCol(t *testing.T) {
	lib := Compile(mustBundle(t), Options{})
	matches := lib.ScanAntiPatterns("Line one.\nHe SUDDENLY stopped.")
	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].Line)
	assert.Equal(t, "SUDDENLY", matches[0].Text)
	assert.Equal(t, voicebundle.SeverityFormulaic, matches[0].Severity)
}

func TestScanMetaphors_AmbiguousTokenSplitsFractionAcrossDomains(t *testing.T) {
	lib := Compile(mustBundle(t), Options{})
	report := lib.ScanMetaphors("the anchor held fast")

	var fractionsForAnchor []float64
	for _, m := range report.Matches {
		if m.Text == "anchor" {
			fractionsForAnchor = append(fractionsForAnchor, m.Fraction)
		}
	}
	require.Len(t, fractionsForAnchor, 2, "anchor is in both the nautical and combat lexicons")
	for _, f := range fractionsForAnchor {
		assert.Equal(t, 0.5, f)
	}
}

func TestScanMetaphors_UnambiguousTokenGetsFullAttribution(t *testing.T) {
	lib := Compile(mustBundle(t), Options{})
	report := lib.ScanMetaphors("the tide rose")
	require.Len(t, report.Matches, 1)
	assert.Equal(t, 1.0, report.Matches[0].Fraction)
	assert.Equal(t, "nautical", report.Matches[0].DomainName)
}

func TestScanMetaphors_DomainPercentIsAttributionOverTokenCount(t *testing.T) {
	lib := Compile(mustBundle(t), Options{})
	// 4 tokens total, "tide" contributes 1.0 to nautical.
	report := lib.ScanMetaphors("the tide rose high")
	assert.InDelta(t, 0.25, report.DomainPercent["nautical"], 1e-9)
}

func TestScanSimiles_IgnoresIdiomaticLike(t *testing.T) {
	lib := Compile(mustBundle(t), Options{SimileDensitySuppressionThreshold: 0, SimileContextWindow: 8})
	matches := lib.ScanSimiles("I like my coffee black. I would like to leave.")
	assert.Empty(t, matches, "idiomatic uses of 'like' must not be flagged as similes")
}

func TestScanSimiles_FlagsFigurativeLikeAboveDensityThreshold(t *testing.T) {
	lib := Compile(mustBundle(t), Options{SimileDensitySuppressionThreshold: 0, SimileContextWindow: 8})
	matches := lib.ScanSimiles("Her voice cracked like dry bark underfoot.")
	require.Len(t, matches, 1)
	assert.Equal(t, KindSimile, matches[0].Kind)
}

func TestScanSimiles_SuppressedBelowDensityThreshold(t *testing.T) {
	lib := Compile(mustBundle(t), Options{SimileDensitySuppressionThreshold: 0.9, SimileContextWindow: 8})
	matches := lib.ScanSimiles("Her voice cracked like dry bark underfoot, but otherwise the scene carried on quietly for many more words than this single marker could ever saturate.")
	assert.Empty(t, matches, "a single marker in a long passage must fall below a high density threshold")
}

func TestScanSimiles_AllowPolicyNeverFlags(t *testing.T) {
	b, err := voicebundle.Parse([]byte(`simile_policy: "allow"`))
	require.NoError(t, err)
	lib := Compile(b, Options{SimileDensitySuppressionThreshold: 0})
	matches := lib.ScanSimiles("It crashed like thunder.")
	assert.Empty(t, matches)
}

func TestScan_OrdersAllMatchKindsByLineThenColumn(t *testing.T) {
	lib := Compile(mustBundle(t), Options{SimileDensitySuppressionThreshold: 0, SimileContextWindow: 8})
	matches := lib.Scan("The tide rose. He SUDDENLY fell like a stone.")
	require.NotEmpty(t, matches)
	for i := 1; i < len(matches); i++ {
		prev, cur := matches[i-1], matches[i]
		if prev.Line == cur.Line {
			assert.LessOrEqual(t, prev.Col, cur.Col)
		} else {
			assert.Less(t, prev.Line, cur.Line)
		}
	}
}

func TestRecompile_SwapsLibraryStateAtomically(t *testing.T) {
	lib := Compile(mustBundle(t), Options{})
	assert.Len(t, lib.ScanAntiPatterns("He SUDDENLY stopped."), 1)

	empty, err := voicebundle.Parse([]byte(`simile_policy: "allow"`))
	require.NoError(t, err)
	lib.Recompile(empty, Options{})

	assert.Empty(t, lib.ScanAntiPatterns("He SUDDENLY stopped."), "recompiled library must no longer use the old anti-pattern set")
}
