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

// DefaultCapabilities returns the compiled-in Capability Matrix for the
// models the core ships adapters for. Pricing mirrors published per-million
// token rates as of late 2025, in the same spirit as the teacher's
// egress.defaultPricing table, extended with quality/strength/prompt-tier
// metadata the router needs beyond raw cost.
func DefaultCapabilities() []Capability {
	return []Capability{
		{
			ModelID: "claude-sonnet-4-20250514", Provider: ProviderAnthropic,
			ContextWindow: 200000, InputCostPerMToken: 3.0, OutputCostPerMToken: 15.0,
			QualityScore: 9, Strengths: []string{"strategic_reasoning", "scene_generation", "analysis"},
			PromptTier: PromptTierFull, SupportsStreaming: true,
			RequiresAPIKey: true, EnvVarName: "ANTHROPIC_API_KEY", RateLimitPerMin: 50,
		},
		{
			ModelID: "claude-haiku-4-5-20251001", Provider: ProviderAnthropic,
			ContextWindow: 200000, InputCostPerMToken: 1.0, OutputCostPerMToken: 5.0,
			QualityScore: 6, Strengths: []string{"coordinator", "enhancement"},
			PromptTier: PromptTierFull, SupportsStreaming: true,
			RequiresAPIKey: true, EnvVarName: "ANTHROPIC_API_KEY", RateLimitPerMin: 80,
		},
		{
			ModelID: "gpt-4o", Provider: ProviderOpenAI,
			ContextWindow: 128000, InputCostPerMToken: 2.50, OutputCostPerMToken: 10.0,
			QualityScore: 8, Strengths: []string{"scene_generation", "analysis"},
			PromptTier: PromptTierFull, SupportsStreaming: true, SupportsEmbeddings: false,
			RequiresAPIKey: true, EnvVarName: "OPENAI_API_KEY", RateLimitPerMin: 60,
		},
		{
			ModelID: "gpt-4o-mini", Provider: ProviderOpenAI,
			ContextWindow: 128000, InputCostPerMToken: 0.15, OutputCostPerMToken: 0.60,
			QualityScore: 5, Strengths: []string{"coordinator"},
			PromptTier: PromptTierMedium, SupportsStreaming: true,
			RequiresAPIKey: true, EnvVarName: "OPENAI_API_KEY", RateLimitPerMin: 120,
		},
		{
			ModelID: "text-embedding-3-large", Provider: ProviderOpenAI,
			ContextWindow: 8191, InputCostPerMToken: 0.13, OutputCostPerMToken: 0,
			QualityScore: 7, Strengths: []string{"embedding"},
			PromptTier: PromptTierMinimal, SupportsEmbeddings: true, EmbeddingDims: 3072,
			RequiresAPIKey: true, EnvVarName: "OPENAI_API_KEY", RateLimitPerMin: 300,
		},
		{
			ModelID: "gemini-1.5-flash", Provider: ProviderGemini,
			ContextWindow: 1000000, InputCostPerMToken: 0.075, OutputCostPerMToken: 0.30,
			QualityScore: 6, Strengths: []string{"coordinator", "analysis"},
			PromptTier: PromptTierMedium, SupportsStreaming: true,
			RequiresAPIKey: true, EnvVarName: "GEMINI_API_KEY", RateLimitPerMin: 100,
		},
		{
			ModelID: "gemini-1.5-pro", Provider: ProviderGemini,
			ContextWindow: 2000000, InputCostPerMToken: 1.25, OutputCostPerMToken: 5.0,
			QualityScore: 8, Strengths: []string{"strategic_reasoning", "scene_generation"},
			PromptTier: PromptTierFull, SupportsStreaming: true,
			RequiresAPIKey: true, EnvVarName: "GEMINI_API_KEY", RateLimitPerMin: 40,
		},
		{
			ModelID: "granite4:micro-h", Provider: ProviderOllama,
			ContextWindow: 32000, InputCostPerMToken: 0, OutputCostPerMToken: 0,
			QualityScore: 4, Strengths: []string{"coordinator", "enhancement"},
			PromptTier: PromptTierMinimal, SupportsStreaming: true,
			RequiresAPIKey: false, RateLimitPerMin: 0,
		},
		{
			ModelID: "llama3.1:8b", Provider: ProviderOllama,
			ContextWindow: 128000, InputCostPerMToken: 0, OutputCostPerMToken: 0,
			QualityScore: 5, Strengths: []string{"coordinator", "scene_generation"},
			PromptTier: PromptTierMedium, SupportsStreaming: true,
			RequiresAPIKey: false, RateLimitPerMin: 0,
		},
		{
			ModelID: "nomic-embed-text", Provider: ProviderOllama,
			ContextWindow: 8192, InputCostPerMToken: 0, OutputCostPerMToken: 0,
			QualityScore: 4, Strengths: []string{"embedding"},
			PromptTier: PromptTierMinimal, SupportsEmbeddings: true, EmbeddingDims: 768,
			RequiresAPIKey: false,
		},
	}
}
