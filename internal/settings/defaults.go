// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

// DefaultSpecs returns the compiled-in Spec set for every path the Craft
// Quality Engine resolves. The core ships no domain-specific craft rules as
// code (§9); these are engine-level weights and thresholds only — actual
// voice rules live exclusively in the Voice Bundle.
func DefaultSpecs() []Spec {
	return []Spec{
		// Scoring category maxima (§4.5).
		{Path: "scoring.voice_authenticity_weight", Kind: KindNumber, Default: float64(30), Min: 0, Max: 100},
		{Path: "scoring.character_consistency_weight", Kind: KindNumber, Default: float64(20), Min: 0, Max: 100},
		{Path: "scoring.metaphor_discipline_weight", Kind: KindNumber, Default: float64(20), Min: 0, Max: 100},
		{Path: "scoring.anti_pattern_weight", Kind: KindNumber, Default: float64(15), Min: 0, Max: 100},
		{Path: "scoring.phase_appropriateness_weight", Kind: KindNumber, Default: float64(15), Min: 0, Max: 100},

		// Anti-pattern deduction policy (§9 open question: formulaic cap made explicit).
		{Path: "scoring.anti_pattern.zero_tolerance_deduction", Kind: KindNumber, Default: float64(2), Min: 0, Max: 100},
		{Path: "scoring.anti_pattern.formulaic_deduction", Kind: KindNumber, Default: float64(1), Min: 0, Max: 100},
		{Path: "scoring.anti_pattern.formulaic_cap", Kind: KindNumber, Default: float64(5), Min: 0, Max: 100},

		// Tier thresholds (§4.5, GLOSSARY).
		{Path: "scoring.tier.a_threshold", Kind: KindNumber, Default: float64(92), Min: 0, Max: 100},
		{Path: "scoring.tier.a_minus_threshold", Kind: KindNumber, Default: float64(85), Min: 0, Max: 100},
		{Path: "scoring.tier.b_plus_threshold", Kind: KindNumber, Default: float64(80), Min: 0, Max: 100},
		{Path: "scoring.tier.b_threshold", Kind: KindNumber, Default: float64(70), Min: 0, Max: 100},

		// Simile policy noise suppression (§4.2).
		{Path: "patterns.simile_density_suppression_threshold", Kind: KindNumber, Default: float64(0.02), Min: 0, Max: 1},
		{Path: "patterns.simile_context_window", Kind: KindNumber, Default: float64(8), Min: 1, Max: 64},

		// Enhancement Engine (§4.8).
		{Path: "enhancement.action_prompt_threshold", Kind: KindNumber, Default: float64(85), Min: 0, Max: 100},
		{Path: "enhancement.six_pass_floor", Kind: KindNumber, Default: float64(70), Min: 0, Max: 100},
		{Path: "enhancement.regression_tolerance", Kind: KindNumber, Default: float64(2), Min: 0, Max: 100},
		{Path: "enhancement.six_pass_fast_exit_tier", Kind: KindString, Default: "A-", Choices: []string{"A", "A-", "B+", "B"}},

		// Model Router (§4.3).
		{Path: "router.quality_tier", Kind: KindString, Default: "balanced", Choices: []string{"budget", "balanced", "premium"}},
		{Path: "router.monthly_budget_cents", Kind: KindNumber, Default: float64(0), Min: 0, Max: 1e12},

		// Tournament (§4.7).
		{Path: "tournament.structure_variants_enabled", Kind: KindBool, Default: true},
		{Path: "tournament.structure_variant_count", Kind: KindNumber, Default: float64(3), Min: 1, Max: 10},
		{Path: "tournament.generation_timeout_ms", Kind: KindNumber, Default: float64(120000), Min: 1000, Max: 600000},
		{Path: "tournament.per_provider_concurrency", Kind: KindNumber, Default: float64(4), Min: 1, Max: 64},

		// Scaffold Generator (§4.6).
		{Path: "scaffold.enrichment_enabled", Kind: KindBool, Default: true},
		{Path: "scaffold.enrichment_timeout_ms", Kind: KindNumber, Default: float64(15000), Min: 1000, Max: 120000},

		// LLM Transport retry policy (§4.4).
		{Path: "transport.retry.max_attempts", Kind: KindNumber, Default: float64(4), Min: 1, Max: 10},
		{Path: "transport.retry.base_backoff_ms", Kind: KindNumber, Default: float64(250), Min: 1, Max: 60000},
		{Path: "transport.retry.max_backoff_ms", Kind: KindNumber, Default: float64(8000), Min: 1, Max: 120000},
		{Path: "transport.call_timeout_ms", Kind: KindNumber, Default: float64(60000), Min: 1000, Max: 600000},
		{Path: "transport.token_stall_timeout_ms", Kind: KindNumber, Default: float64(20000), Min: 1000, Max: 300000},
	}
}
