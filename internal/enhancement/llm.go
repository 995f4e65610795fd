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
	"fmt"
	"strings"

	"github.com/craftquality/craftengine/internal/analyzer"
	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/llmtransport"
)

// llmFixer is the production fixer: one llmtransport.Complete call
// constrained to a strict JSON object whose "fixes" array holds
// {line_index, old, new} entries,
// grounded on analyzer.llmJudge's schema-gated response handling.
type llmFixer struct {
	transport *llmtransport.Transport
}

// NewLLMFixer builds a fixer bound to a Transport.
func NewLLMFixer(t *llmtransport.Transport) *llmFixer {
	return &llmFixer{transport: t}
}

type fixEnvelope struct {
	Fixes []struct {
		LineIndex int    `json:"line_index"`
		Old       string `json:"old"`
		New       string `json:"new"`
	} `json:"fixes"`
}

func (f *llmFixer) proposeFixes(ctx context.Context, modelID, text string, score *analyzer.SceneScore) ([]Fix, error) {
	res, err := f.transport.Complete(ctx, modelID, []llmtransport.Message{
		{Role: "system", Content: "You propose surgical OLD->NEW fixes for the weakest violations in a scene already scoring well. " +
			"Respond with a single strict JSON object: {\"fixes\": [{\"line_index\": <int>, \"old\": <string>, \"new\": <string>}]}. " +
			"Each \"old\" must appear verbatim on the named line. No prose outside the JSON object."},
		{Role: "user", Content: buildFixPrompt(text, score)},
	}, llmtransport.Params{})
	if err != nil {
		return nil, err
	}

	env, err := parseFixEnvelope(res.Text)
	if err != nil {
		return nil, errs.Wrap(errs.KindSchemaViolation, err, "action prompt fix response did not match schema")
	}

	fixes := make([]Fix, 0, len(env.Fixes))
	for _, ef := range env.Fixes {
		fixes = append(fixes, Fix{LineIndex: ef.LineIndex, Old: ef.Old, New: ef.New})
	}
	return fixes, nil
}

func buildFixPrompt(text string, score *analyzer.SceneScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene (line-indexed):\n")
	for i, line := range strings.Split(text, "\n") {
		fmt.Fprintf(&b, "%d: %s\n", i, line)
	}
	fmt.Fprintf(&b, "\nKnown violations:\n")
	for _, v := range score.Violations {
		fmt.Fprintf(&b, "- line %d: %s (%s)\n", v.LineIndex, v.PatternID, v.Severity)
	}
	return b.String()
}

func parseFixEnvelope(raw string) (fixEnvelope, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()
	var env fixEnvelope
	if err := dec.Decode(&env); err != nil {
		return fixEnvelope{}, err
	}
	if dec.More() {
		return fixEnvelope{}, fmt.Errorf("trailing content after JSON object")
	}
	return env, nil
}

// llmPassRunner is the production passRunner: one constrained-rewrite
// llmtransport.Complete call per Six-Pass step.
type llmPassRunner struct {
	transport *llmtransport.Transport
}

// NewLLMPassRunner builds a passRunner bound to a Transport.
func NewLLMPassRunner(t *llmtransport.Transport) *llmPassRunner {
	return &llmPassRunner{transport: t}
}

var passInstructions = map[string]string{
	"sensory_anchoring":       "Rewrite the scene adding concrete sensory detail (sight, sound, touch, smell, taste) wherever it is currently abstract. Preserve every plot beat and line of dialogue verbatim.",
	"verb_promotion":          "Rewrite the scene replacing weak verb+adverb constructions with single strong verbs. Preserve every plot beat and line of dialogue verbatim.",
	"metaphor_rotation":       "Rewrite the scene varying any repeated or saturated metaphor domain with a fresh comparison drawn from a different domain. Preserve every plot beat and line of dialogue verbatim.",
	"voice_embedding":         "Rewrite the scene tightening narration toward the established voice's characteristic diction and rhythm. Preserve every plot beat and line of dialogue verbatim.",
	"italics_emphasis_gating": "Rewrite the scene removing italics or emphasis markup used for unearned emotional punctuation, keeping only emphasis load-bearing to meaning. Preserve every plot beat and line of dialogue verbatim.",
	"authenticity_recheck":    "Rewrite the scene correcting any remaining voice inconsistency against the established POV and tense. Preserve every plot beat and line of dialogue verbatim.",
}

func (p *llmPassRunner) runPass(ctx context.Context, modelID, passName, text string) (string, error) {
	instruction, ok := passInstructions[passName]
	if !ok {
		return text, errs.New(errs.KindInternal, "unknown six-pass step %q", passName)
	}
	res, err := p.transport.Complete(ctx, modelID, []llmtransport.Message{
		{Role: "system", Content: instruction},
		{Role: "user", Content: text},
	}, llmtransport.Params{})
	if err != nil {
		return text, err
	}
	return res.Text, nil
}
