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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/llmtransport"
	"github.com/craftquality/craftengine/internal/voicebundle"
)

// llmJudge is the production judge implementation: one llmtransport.Complete
// call per category, constrained to a strict JSON object response. A
// malformed or non-conforming response is classified SchemaViolation so
// Analyzer.judgeWithRetry can apply the one-retry-then-degrade policy.
type llmJudge struct {
	transport *llmtransport.Transport
}

// NewLLMJudge builds a judge bound to a Transport.
func NewLLMJudge(t *llmtransport.Transport) *llmJudge {
	return &llmJudge{transport: t}
}

func (j *llmJudge) judgeCategory(ctx context.Context, modelID, category, text string, bundle *voicebundle.Bundle) (categoryJudgment, error) {
	prompt := buildJudgePrompt(category, text, bundle)
	res, err := j.transport.Complete(ctx, modelID, []llmtransport.Message{
		{Role: "system", Content: judgeSystemPrompt(category)},
		{Role: "user", Content: prompt},
	}, llmtransport.Params{})
	if err != nil {
		return categoryJudgment{}, err
	}

	judgment, parseErr := parseJudgment(res.Text)
	if parseErr != nil {
		return categoryJudgment{}, errs.Wrap(errs.KindSchemaViolation, parseErr, "judge response for category %q did not match schema", category)
	}
	return judgment, nil
}

func judgeSystemPrompt(category string) string {
	return fmt.Sprintf(
		"You are a prose-craft rubric judge scoring the %q category. "+
			"Respond with a single strict JSON object: {\"awarded\": <number>, \"rationale\": <string>}. "+
			"No prose outside the JSON object.", category)
}

func buildJudgePrompt(category, text string, bundle *voicebundle.Bundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\n", category)
	fmt.Fprintf(&b, "POV: %s Tense: %s\n", bundle.POV, bundle.Tense)
	if bundle.GoldStandard != "" {
		excerpt := bundle.GoldStandard
		if len(excerpt) > 600 {
			excerpt = excerpt[:600]
		}
		fmt.Fprintf(&b, "Gold standard excerpt:\n%s\n\n", excerpt)
	}
	fmt.Fprintf(&b, "Passage to score:\n%s\n", text)
	return b.String()
}

// parseJudgment strictly decodes the judge's JSON response. A surrounding
// markdown code fence is stripped first; after that, trailing content and
// unknown fields are rejected, so a model that wraps its answer in prose
// fails schema validation rather than silently succeeding on a partial parse.
func parseJudgment(raw string) (categoryJudgment, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()
	var j categoryJudgment
	if err := dec.Decode(&j); err != nil {
		return categoryJudgment{}, err
	}
	if dec.More() {
		return categoryJudgment{}, fmt.Errorf("trailing content after JSON object")
	}
	return j, nil
}
