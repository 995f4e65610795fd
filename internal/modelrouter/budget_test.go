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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftquality/craftengine/internal/errs"
)

var cheapModel = Capability{ModelID: "cheap", InputCostPerMToken: 1, OutputCostPerMToken: 2, QualityScore: 6, Provider: ProviderOllama, Strengths: []string{"analysis"}}

func TestCostEstimator_UnlimitedByDefault(t *testing.T) {
	c := NewCostEstimator()
	ok, cost := c.CanAfford("demo", cheapModel, 1_000_000, 1_000_000)
	assert.True(t, ok)
	assert.Equal(t, 300.0, cost) // (1*1 + 1*2) * 100 cents
}

func TestCostEstimator_RefusesOverLimit(t *testing.T) {
	c := NewCostEstimator()
	c.SetLimit("demo", 100) // 100 cents monthly cap
	ok, _ := c.CanAfford("demo", cheapModel, 1_000_000, 1_000_000)
	assert.False(t, ok, "a $3 call must not fit a $1 monthly cap")
}

func TestCostEstimator_RecordAccumulatesAcrossCalls(t *testing.T) {
	c := NewCostEstimator()
	c.Record("demo", cheapModel, 500_000, 0) // 0.5 * 1 * 100 = 50 cents
	c.Record("demo", cheapModel, 500_000, 0)
	assert.Equal(t, 100.0, c.TotalCents("demo"))
}

func TestCostEstimator_LimitsAreIsolatedPerProject(t *testing.T) {
	c := NewCostEstimator()
	c.SetLimit("a", 10)
	c.Record("b", cheapModel, 1_000_000, 1_000_000)
	ok, _ := c.CanAfford("a", cheapModel, 1, 1)
	assert.True(t, ok, "project b's spend must not count against project a's budget")
}

func TestRouter_SelectReturnsBudgetExceededWhenNoCandidateFitsBudget(t *testing.T) {
	r := NewRegistry([]Capability{cheapModel})
	c := NewCostEstimator()
	c.SetLimit("demo", 1) // 1 cent cap, far below any real call
	router := NewRouter(r, c)

	_, err := router.Select("demo", TaskAnalysis, 1_000_000, 1_000_000)
	require.Error(t, err)
	assert.Equal(t, errs.KindBudgetExceeded, errs.KindOf(err))
}

func TestRouter_SelectReturnsModelUnavailableWhenRegistryEmpty(t *testing.T) {
	router := NewRouter(NewRegistry(nil), NewCostEstimator())
	_, err := router.Select("demo", TaskAnalysis, 100, 100)
	require.Error(t, err)
	assert.Equal(t, errs.KindModelUnavailable, errs.KindOf(err))
}

func TestRouter_SelectRespectsConfiguredTier(t *testing.T) {
	local := Capability{ModelID: "local", Provider: ProviderOllama, QualityScore: 5, Strengths: []string{"coordinator"}}
	cloud := Capability{ModelID: "cloud", Provider: ProviderAnthropic, QualityScore: 9, Strengths: []string{"coordinator"}}
	router := NewRouter(NewRegistry([]Capability{local, cloud}), NewCostEstimator())

	router.SetTier("demo", TierBudget)
	sel, err := router.Select("demo", TaskCoordinator, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, "local", sel.Model.ModelID, "budget tier prefers the free local model")
}
