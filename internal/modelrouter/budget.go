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
	"sync"

	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/obs"
)

// QualityTier is the current routing policy, resolved per project from the
// Settings Resolver's router.quality_tier path.
type QualityTier string

const (
	TierBudget   QualityTier = "budget"
	TierBalanced QualityTier = "balanced"
	TierPremium  QualityTier = "premium"
)

// CostEstimator tracks cumulative per-project spend and enforces a monthly
// cap, grounded directly on egress.CostEstimator's CanAfford/Record
// reservation pattern: CanAfford is a pre-flight check against the running
// total, Record commits the actual usage after the call completes.
//
// Thread Safety: safe for concurrent use via mu.
type CostEstimator struct {
	mu sync.Mutex

	// limitCentsByProject holds the monthly cap in US cents per project.
	// A missing or zero entry means unlimited.
	limitCentsByProject map[string]float64
	totalCentsByProject map[string]float64
}

// NewCostEstimator builds an estimator with no configured limits; callers
// set per-project limits via SetLimit as settings resolve.
func NewCostEstimator() *CostEstimator {
	return &CostEstimator{
		limitCentsByProject: make(map[string]float64),
		totalCentsByProject: make(map[string]float64),
	}
}

// SetLimit configures the monthly cap (in cents) for a project. 0 means
// unlimited.
func (c *CostEstimator) SetLimit(projectID string, limitCents float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limitCentsByProject[projectID] = limitCents
}

// estimateCents computes the cost of a call in US cents from per-million
// token pricing, same arithmetic as the teacher's estimateCostCentsLocked.
func estimateCents(cap Capability, inputTokens, outputTokens int) float64 {
	inputCost := float64(inputTokens) * cap.InputCostPerMToken / 1_000_000
	outputCost := float64(outputTokens) * cap.OutputCostPerMToken / 1_000_000
	return (inputCost + outputCost) * 100
}

// CanAfford reports whether a call against model with the given estimated
// token counts fits the project's monthly budget, and returns the estimated
// cost in cents either way. Call this before invoking the LLM transport.
func (c *CostEstimator) CanAfford(projectID string, cap Capability, estimatedInputTokens, estimatedOutputTokens int) (bool, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	estimated := estimateCents(cap, estimatedInputTokens, estimatedOutputTokens)
	limit := c.limitCentsByProject[projectID]
	if limit == 0 {
		return true, estimated
	}
	if c.totalCentsByProject[projectID]+estimated > limit {
		return false, estimated
	}
	return true, estimated
}

// Record commits actual token usage to the running total after a call
// completes, returning the cost charged in cents.
func (c *CostEstimator) Record(projectID string, cap Capability, inputTokens, outputTokens int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	cost := estimateCents(cap, inputTokens, outputTokens)
	c.totalCentsByProject[projectID] += cost
	return cost
}

// TotalCents returns the cumulative recorded spend for a project.
func (c *CostEstimator) TotalCents(projectID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCentsByProject[projectID]
}

// Router composes the Registry, the current per-project QualityTier, and
// the CostEstimator into the single entry point Scaffold/Tournament/Analyzer
// callers use to pick and pay for a model.
type Router struct {
	registry *Registry
	cost     *CostEstimator

	mu    sync.RWMutex
	tiers map[string]QualityTier
}

// NewRouter builds a Router over the given Registry and CostEstimator.
func NewRouter(registry *Registry, cost *CostEstimator) *Router {
	return &Router{registry: registry, cost: cost, tiers: make(map[string]QualityTier)}
}

// SetTier records the active QualityTier for a project, normally driven by
// a settings.ChangeEvent on router.quality_tier.
func (rt *Router) SetTier(projectID string, tier QualityTier) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.tiers[projectID] = tier
}

func (rt *Router) tierFor(projectID string) QualityTier {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if t, ok := rt.tiers[projectID]; ok {
		return t
	}
	return TierBalanced
}

// Selection is the result of routing one call: the chosen model plus the
// estimated cost of the call. Select does not reserve or record that cost
// against the project's budget; only Record adds to the running total.
type Selection struct {
	Model         Capability
	EstimatedCost float64
}

// Select resolves taskType to a single best candidate for projectID,
// enforcing the monthly budget cap. Returns BudgetExceeded if the cheapest
// affordable candidate still exceeds the remaining budget, ModelUnavailable
// if the registry has no candidates at all for the task.
func (rt *Router) Select(projectID string, taskType TaskType, estimatedInputTokens, estimatedOutputTokens int) (*Selection, error) {
	tier := rt.tierFor(projectID)
	candidates, ok := rt.registry.Candidates(taskType, tier)
	if !ok {
		return nil, errs.New(errs.KindModelUnavailable, "no model available for task %q", taskType)
	}

	var lastErr error
	for _, cand := range candidates {
		affordable, estimated := rt.cost.CanAfford(projectID, cand, estimatedInputTokens, estimatedOutputTokens)
		if !affordable {
			lastErr = errs.New(errs.KindBudgetExceeded, "model %q would exceed monthly budget for project %q", cand.ModelID, projectID)
			continue
		}
		return &Selection{Model: cand, EstimatedCost: estimated}, nil
	}

	if lastErr != nil {
		obs.M().BudgetRefusedTotal.WithLabelValues(projectID).Inc()
		return nil, lastErr
	}
	return nil, errs.New(errs.KindModelUnavailable, "no affordable candidate for task %q", taskType)
}
