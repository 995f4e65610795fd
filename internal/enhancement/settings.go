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
	"github.com/craftquality/craftengine/internal/analyzer"
	"github.com/craftquality/craftengine/internal/settings"
)

// ThresholdsFromSettings resolves enhancement.* paths for projectID into a
// Thresholds value, so the action_prompt/six_pass/reject cutoffs, the
// regression-rollback tolerance, and the six-pass fast-exit tier are never
// hardcoded.
func ThresholdsFromSettings(r *settings.Resolver, projectID string) (Thresholds, error) {
	actionThreshold, err := r.GetNumber("enhancement.action_prompt_threshold", projectID)
	if err != nil {
		return Thresholds{}, err
	}
	sixPassFloor, err := r.GetNumber("enhancement.six_pass_floor", projectID)
	if err != nil {
		return Thresholds{}, err
	}
	tolerance, err := r.GetNumber("enhancement.regression_tolerance", projectID)
	if err != nil {
		return Thresholds{}, err
	}
	fastExitTier, err := r.GetString("enhancement.six_pass_fast_exit_tier", projectID)
	if err != nil {
		return Thresholds{}, err
	}
	return Thresholds{
		ActionPromptThreshold: actionThreshold,
		SixPassFloor:          sixPassFloor,
		RegressionTolerance:   tolerance,
		FastExitTier:          analyzer.Tier(fastExitTier),
	}, nil
}
