// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package modelrouter

import (
	"os"
	"sort"

	"github.com/craftquality/craftengine/internal/obs"
)

// Registry holds the immutable Capability Matrix, loaded once from
// configuration at startup.
//
// Thread Safety: read-only after construction; safe for concurrent use.
type Registry struct {
	models []Capability
}

// NewRegistry constructs a Registry from a loaded Capability list.
func NewRegistry(models []Capability) *Registry {
	cp := make([]Capability, len(models))
	copy(cp, models)
	return &Registry{models: cp}
}

// All returns every registered Capability.
func (r *Registry) All() []Capability {
	out := make([]Capability, len(r.models))
	copy(out, r.models)
	return out
}

// ByModelID looks up a single Capability by exact model_id.
func (r *Registry) ByModelID(modelID string) (Capability, bool) {
	for _, c := range r.models {
		if c.ModelID == modelID {
			return c, true
		}
	}
	return Capability{}, false
}

// IsAvailable reports whether a model's required API key (if any) is
// present in the environment. Local (Ollama) models are always available,
// mirroring provider_policy.go's "Ollama always passes" rule.
func IsAvailable(c Capability) bool {
	if c.IsLocal() {
		return true
	}
	if !c.RequiresAPIKey {
		return true
	}
	return os.Getenv(c.EnvVarName) != ""
}

// Available filters the registry down to models whose API key (if any) is
// present in the environment.
func (r *Registry) Available() []Capability {
	var out []Capability
	for _, c := range r.models {
		if IsAvailable(c) {
			out = append(out, c)
		}
	}
	return out
}

// minQualityForTask is the minimum quality_score a model must meet to serve
// a given task type under every tier; the balanced tier's local-first path
// for simple tasks does not apply it.
var minQualityForTask = map[TaskType]float64{
	TaskCoordinator:        2,
	TaskStrategicReasoning: 7,
	TaskSceneGeneration:    6,
	TaskAnalysis:           6,
	TaskEnhancement:        6,
	TaskEmbedding:          1,
}

// simpleTasks are tasks the balanced tier prefers to route to local models.
var simpleTasks = map[TaskType]bool{
	TaskCoordinator: true,
}

// DegradationEvent is emitted when a task's candidate list is empty after
// filtering and the router substitutes the nearest available alternative.
type DegradationEvent struct {
	TaskType     TaskType
	Reason       string
	Substitute   string
}

// Candidates returns an ordered candidate list for taskType under the given
// QualityTier, per §4.3's three policies. ok is false only when no model at
// all is available, in which case a DegradationEvent has already been
// recorded via obs metrics.
func (r *Registry) Candidates(taskType TaskType, tier QualityTier) (candidates []Capability, ok bool) {
	available := r.Available()
	minQuality := minQualityForTask[taskType]

	switch tier {
	case TierBudget:
		candidates = budgetCandidates(available, minQuality)
	case TierBalanced:
		candidates = balancedCandidates(available, taskType, minQuality)
	case TierPremium:
		candidates = premiumCandidates(available, minQuality)
	default:
		candidates = balancedCandidates(available, taskType, minQuality)
	}

	if len(candidates) > 0 {
		return candidates, true
	}

	// Degrade to nearest available substitute: any local model, else any
	// available model regardless of quality floor.
	obs.M().ModelDegradeTotal.WithLabelValues(string(taskType)).Inc()
	obs.Logger().Warn("model router: no candidates met policy, degrading", "task_type", taskType, "tier", tier)

	for _, c := range available {
		if c.IsLocal() {
			return []Capability{c}, true
		}
	}
	if len(available) > 0 {
		return available[:1], true
	}
	return nil, false
}

func budgetCandidates(available []Capability, minQuality float64) []Capability {
	var local []Capability
	for _, c := range available {
		if c.IsLocal() && c.QualityScore >= minQuality {
			local = append(local, c)
		}
	}
	if len(local) > 0 {
		sortByQualityDesc(local)
		return local
	}
	var cloud []Capability
	for _, c := range available {
		if !c.IsLocal() && c.QualityScore >= minQuality {
			cloud = append(cloud, c)
		}
	}
	sortByCostAsc(cloud)
	return cloud
}

func balancedCandidates(available []Capability, taskType TaskType, minQuality float64) []Capability {
	if simpleTasks[taskType] {
		var local []Capability
		for _, c := range available {
			if c.IsLocal() {
				local = append(local, c)
			}
		}
		if len(local) > 0 {
			sortByQualityDesc(local)
			return local
		}
	}
	var eligible []Capability
	for _, c := range available {
		if c.QualityScore >= minQuality {
			eligible = append(eligible, c)
		}
	}
	sortByCostPerQuality(eligible)
	return eligible
}

func premiumCandidates(available []Capability, minQuality float64) []Capability {
	var eligible []Capability
	for _, c := range available {
		if c.QualityScore >= minQuality {
			eligible = append(eligible, c)
		}
	}
	sortByQualityDesc(eligible)
	return eligible
}

func sortByQualityDesc(c []Capability) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].QualityScore > c[j].QualityScore })
}

func sortByCostAsc(c []Capability) {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].InputCostPerMToken+c[i].OutputCostPerMToken < c[j].InputCostPerMToken+c[j].OutputCostPerMToken
	})
}

func sortByCostPerQuality(c []Capability) {
	sort.SliceStable(c, func(i, j int) bool {
		ci := (c[i].InputCostPerMToken + c[i].OutputCostPerMToken) / maxFloat(c[i].QualityScore, 0.1)
		cj := (c[j].InputCostPerMToken + c[j].OutputCostPerMToken) / maxFloat(c[j].QualityScore, 0.1)
		return ci < cj
	})
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
