// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package voicebundle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftquality/craftengine/internal/errs"
)

const validYAML = `
gold_standard: "a lean, present-tense POV"
pov: "first_person"
tense: "present"
simile_policy: "limit:2"
anti_patterns:
  - pattern: "suddenly"
    description: "stock adverb opener"
    severity: formulaic
  - pattern: "it was a dark and stormy"
    description: "cliche opener"
    severity: zero_tolerance
metaphor_domains:
  - name: "nautical"
    keywords: ["anchor", "tide", "helm"]
    max_percentage: 0.4
  - name: "combat"
    keywords: ["parry", "strike"]
    max_percentage: 0.3
phase_profiles:
  - phase_name: "setup"
    allowed_technical_vocab: ["register"]
    forbidden_constructs: ["infodump"]
  - phase_name: "climax"
    allowed_technical_vocab: []
    forbidden_constructs: []
`

func TestParse_ValidBundleCompilesPatternsAndOrdersPhases(t *testing.T) {
	b, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, SimileLimit, b.SimilePolicy)
	assert.Equal(t, 2, b.SimileLimitN)

	require.Len(t, b.AntiPatterns, 2)
	assert.True(t, b.AntiPatterns[0].AntiPatternRegexp().MatchString("He SUDDENLY stopped."))

	setup, ok := b.PhaseByName("setup")
	require.True(t, ok)
	assert.Equal(t, 0, setup.Order)
	climax, ok := b.PhaseByName("climax")
	require.True(t, ok)
	assert.Equal(t, 1, climax.Order)
}

func TestParse_RejectsMetaphorDomainCapOutOfRange(t *testing.T) {
	raw := `
simile_policy: "allow"
metaphor_domains:
  - name: "nautical"
    keywords: ["tide"]
    max_percentage: 1.5
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
	assert.Equal(t, errs.KindVoiceBundleInvalid, errs.KindOf(err))
}

func TestParse_RejectsDuplicateMetaphorDomain(t *testing.T) {
	raw := `
simile_policy: "allow"
metaphor_domains:
  - name: "nautical"
    keywords: ["tide"]
    max_percentage: 0.5
  - name: "nautical"
    keywords: ["helm"]
    max_percentage: 0.5
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParse_RejectsDuplicatePhaseName(t *testing.T) {
	raw := `
simile_policy: "allow"
phase_profiles:
  - phase_name: "setup"
  - phase_name: "setup"
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParse_RejectsUnknownSeverity(t *testing.T) {
	raw := `
simile_policy: "forbid"
anti_patterns:
  - pattern: "x"
    severity: "catastrophic"
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParse_RejectsUncompilableRegex(t *testing.T) {
	raw := `
simile_policy: "forbid"
anti_patterns:
  - pattern: "(unclosed"
    severity: "advisory"
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParse_RejectsUnknownSimilePolicy(t *testing.T) {
	_, err := Parse([]byte(`simile_policy: "sometimes"`))
	require.Error(t, err)
}

func TestLoad_WatchesFileAndReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voice_bundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	store, err := Load(path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, SimileLimit, store.Current().SimilePolicy)

	sub := store.Subscribe(1)
	updated := validYAML + "\n# touch\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case <-sub:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a reload notification after the watched file changed")
	}
	assert.Equal(t, SimileLimit, store.Current().SimilePolicy)
}

func TestLoad_KeepsPreviousBundleOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voice_bundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	store, err := Load(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, os.WriteFile(path, []byte("simile_policy: \"nonsense\""), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, SimileLimit, store.Current().SimilePolicy, "an invalid reload must not replace the last-good bundle")
}
