// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llmtransport implements the uniform complete/embed surface over
// heterogeneous LLM providers (§4.4). Provider quirks are isolated behind
// adapters selected by model_id prefix; failures are normalized to the
// closed error taxonomy; retries use exponential backoff with jitter.
//
// Grounded on services/llm/anthropic_llm.go (hand-rolled net/http client,
// per-provider request/response envelopes, env-var key loading) and
// services/trace/agent/providers/egress/guard.go's pre-flight decorator
// chain, reused here as the retry/normalize wrapper around each adapter.
package llmtransport

import (
	"context"
	"math/rand"
	"time"

	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/modelrouter"
	"github.com/craftquality/craftengine/internal/obs"
)

// Message is one turn in a chat-style prompt.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Params carries generation parameters common across providers. Fields left
// nil use the provider's default.
type Params struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
}

// Result is the normalized outcome of a non-streaming Complete call.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// StreamDelta is one incremental chunk of a streaming Complete call.
type StreamDelta struct {
	Text string
	Done bool
}

// adapter is the per-provider seam: one HTTP round trip, no retry logic.
// Concrete adapters (anthropicAdapter, openAIAdapter, geminiAdapter,
// ollamaAdapter) each implement this against their own wire format.
type adapter interface {
	complete(ctx context.Context, modelID string, messages []Message, params Params) (Result, error)
	completeStream(ctx context.Context, modelID string, messages []Message, params Params) (<-chan StreamDelta, error)
	embed(ctx context.Context, modelID string, texts []string) ([][]float64, error)
}

// RetryPolicy configures the exponential-backoff-with-jitter retry loop,
// resolved from transport.retry.* settings.
type RetryPolicy struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	CallTimeout    time.Duration
	TokenStallTimeout time.Duration
}

// Transport dispatches complete/embed calls to the adapter selected by
// model_id prefix and applies the shared retry/timeout/normalization chain.
type Transport struct {
	adapters map[string]adapter // provider name -> adapter
	policy   RetryPolicy
}

// New builds a Transport wired with one adapter per provider.
func New(anthropicKey, openAIKey, geminiKey, ollamaBaseURL string, policy RetryPolicy) *Transport {
	return &Transport{
		adapters: map[string]adapter{
			modelrouter.ProviderAnthropic: newAnthropicAdapter(anthropicKey),
			modelrouter.ProviderOpenAI:    newOpenAIAdapter(openAIKey),
			modelrouter.ProviderGemini:    newGeminiAdapter(geminiKey),
			modelrouter.ProviderOllama:    newOllamaAdapter(ollamaBaseURL),
		},
		policy: policy,
	}
}

func (t *Transport) adapterFor(modelID string) (adapter, string, error) {
	provider := modelrouter.InferProvider(modelID)
	a, ok := t.adapters[provider]
	if !ok {
		return nil, provider, errs.New(errs.KindModelUnavailable, "no transport adapter for provider %q", provider)
	}
	return a, provider, nil
}

// Complete performs a non-streaming generation call, retrying transient
// failures with exponential backoff and jitter up to policy.MaxAttempts.
// 4xx errors other than 429 are never retried, per §4.4.
func (t *Transport) Complete(ctx context.Context, modelID string, messages []Message, params Params) (Result, error) {
	a, provider, err := t.adapterFor(modelID)
	if err != nil {
		return Result{}, err
	}

	ctx, span := obs.StartSpan(ctx, "llmtransport.Complete")
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < maxInt(t.policy.MaxAttempts, 1); attempt++ {
		if attempt > 0 {
			obs.M().RetryTotal.WithLabelValues(provider, string(errs.KindOf(lastErr))).Inc()
			if err := sleepBackoff(ctx, t.policy, attempt); err != nil {
				return Result{}, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeoutOrDefault(t.policy))
		res, err := a.complete(callCtx, modelID, messages, params)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return Result{}, err
		}
	}
	return Result{}, lastErr
}

// CompleteStream performs a streaming generation call. Cancelling ctx aborts
// the underlying connection and frees the provider slot; the returned
// channel is closed when the stream ends or ctx is cancelled. Streaming
// calls are not retried: a failure to open the stream is returned as the
// error, and StreamDelta carries no error value, so a stream that breaks
// mid-way simply ends with its channel closed.
func (t *Transport) CompleteStream(ctx context.Context, modelID string, messages []Message, params Params) (<-chan StreamDelta, error) {
	a, _, err := t.adapterFor(modelID)
	if err != nil {
		return nil, err
	}
	return a.completeStream(ctx, modelID, messages, params)
}

// Embed computes embedding vectors for texts, retried identically to
// Complete. Returns ModelUnavailable if the model doesn't support
// embeddings; callers should check modelrouter.Capability.SupportsEmbeddings
// before calling to avoid the round trip.
func (t *Transport) Embed(ctx context.Context, modelID string, texts []string) ([][]float64, error) {
	a, provider, err := t.adapterFor(modelID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxInt(t.policy.MaxAttempts, 1); attempt++ {
		if attempt > 0 {
			obs.M().RetryTotal.WithLabelValues(provider, string(errs.KindOf(lastErr))).Inc()
			if err := sleepBackoff(ctx, t.policy, attempt); err != nil {
				return nil, err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, callTimeoutOrDefault(t.policy))
		vecs, err := a.embed(callCtx, modelID, texts)
		cancel()
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	if e, ok := errs.As(err); ok {
		return e.Retryable
	}
	return false
}

func callTimeoutOrDefault(p RetryPolicy) time.Duration {
	if p.CallTimeout > 0 {
		return p.CallTimeout
	}
	return 60 * time.Second
}

// sleepBackoff waits base*2^(attempt-1) capped at max, plus up to 20% jitter,
// or returns the context's error if it is cancelled first.
func sleepBackoff(ctx context.Context, p RetryPolicy, attempt int) error {
	base := p.BaseBackoff
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	max := p.MaxBackoff
	if max <= 0 {
		max = 8 * time.Second
	}
	d := base << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5 + 1))
	select {
	case <-time.After(d + jitter):
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.KindCancelled, ctx.Err(), "llm transport retry wait cancelled")
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
