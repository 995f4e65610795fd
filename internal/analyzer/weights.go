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

import "github.com/craftquality/craftengine/internal/settings"

// WeightsFromSettings resolves every scoring.* path for projectID into a
// Weights value, so callers never hardcode rubric constants.
func WeightsFromSettings(r *settings.Resolver, projectID string) (Weights, error) {
	get := func(path string) (float64, error) { return r.GetNumber(path, projectID) }

	var w Weights
	var err error
	if w.VoiceAuthenticity, err = get("scoring.voice_authenticity_weight"); err != nil {
		return Weights{}, err
	}
	if w.CharacterConsistency, err = get("scoring.character_consistency_weight"); err != nil {
		return Weights{}, err
	}
	if w.MetaphorDiscipline, err = get("scoring.metaphor_discipline_weight"); err != nil {
		return Weights{}, err
	}
	if w.AntiPattern, err = get("scoring.anti_pattern_weight"); err != nil {
		return Weights{}, err
	}
	if w.PhaseAppropriateness, err = get("scoring.phase_appropriateness_weight"); err != nil {
		return Weights{}, err
	}
	if w.ZeroToleranceDeduction, err = get("scoring.anti_pattern.zero_tolerance_deduction"); err != nil {
		return Weights{}, err
	}
	if w.FormulaicDeduction, err = get("scoring.anti_pattern.formulaic_deduction"); err != nil {
		return Weights{}, err
	}
	if w.FormulaicCap, err = get("scoring.anti_pattern.formulaic_cap"); err != nil {
		return Weights{}, err
	}
	if w.TierAThreshold, err = get("scoring.tier.a_threshold"); err != nil {
		return Weights{}, err
	}
	if w.TierAMinusThreshold, err = get("scoring.tier.a_minus_threshold"); err != nil {
		return Weights{}, err
	}
	if w.TierBPlusThreshold, err = get("scoring.tier.b_plus_threshold"); err != nil {
		return Weights{}, err
	}
	if w.TierBThreshold, err = get("scoring.tier.b_threshold"); err != nil {
		return Weights{}, err
	}
	return w, nil
}
