// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package modelrouter holds the Capability Matrix and Quality Tier policy
// that resolve a task type to an ordered candidate model list, with
// availability filtering, degradation, and budget-gated cost enforcement.
//
// Grounded on services/trace/agent/providers/config.go (ProviderConfig,
// InferProvider prefix matching, RoleConfig-per-role selection),
// services/trace/agent/providers/egress/cost_estimator.go (CanAfford/Record
// reservation pattern), and provider_policy.go (allow/deny resolution).
package modelrouter

import "strings"

// Provider name constants, carried over from the teacher's provider set.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// TaskType is the closed set of task types the router schedules for.
type TaskType string

const (
	TaskCoordinator        TaskType = "coordinator"
	TaskStrategicReasoning TaskType = "strategic_reasoning"
	TaskSceneGeneration    TaskType = "scene_generation"
	TaskAnalysis           TaskType = "analysis"
	TaskEnhancement        TaskType = "enhancement"
	TaskEmbedding          TaskType = "embedding"
)

// PromptTier indicates how much of the system prompt a model can consume
// before truncation is required.
type PromptTier string

const (
	PromptTierFull    PromptTier = "full"
	PromptTierMedium  PromptTier = "medium"
	PromptTierMinimal PromptTier = "minimal"
)

// Capability is a Model Capability Record: an immutable, configuration-loaded
// description of one model. Ownership: loaded once at startup; never
// mutated at runtime (§3).
type Capability struct {
	ModelID              string
	Provider             string
	ContextWindow        int
	InputCostPerMToken   float64
	OutputCostPerMToken  float64
	QualityScore         float64 // 1-10
	Strengths            []string
	PromptTier           PromptTier
	SupportsEmbeddings   bool
	SupportsStreaming    bool
	RequiresAPIKey       bool
	EnvVarName           string
	EmbeddingDims        int
	RateLimitPerMin      int
}

// IsLocal reports whether this model runs with no per-token cost (Ollama).
func (c Capability) IsLocal() bool { return c.Provider == ProviderOllama }

// HasStrength reports whether tag is among this model's declared strengths.
func (c Capability) HasStrength(tag string) bool {
	for _, s := range c.Strengths {
		if s == tag {
			return true
		}
	}
	return false
}

// InferProvider infers the provider from a model_id prefix, mirroring the
// teacher's config.InferProvider: claude-* -> anthropic, gpt-* -> openai,
// gemini-* -> gemini, any other model_id -> ollama (local).
func InferProvider(modelID string) string {
	switch {
	case strings.HasPrefix(modelID, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(modelID, "gpt-"):
		return ProviderOpenAI
	case strings.HasPrefix(modelID, "gemini-"):
		return ProviderGemini
	default:
		return ProviderOllama
	}
}
