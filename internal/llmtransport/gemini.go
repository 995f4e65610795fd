// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llmtransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/craftquality/craftengine/internal/errs"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// geminiAdapter targets the Gemini generateContent/streamGenerateContent
// REST surface, same hand-rolled net/http shape as the other adapters.
type geminiAdapter struct {
	httpClient *http.Client
	apiKey     string
}

func newGeminiAdapter(apiKey string) *geminiAdapter {
	return &geminiAdapter{httpClient: &http.Client{Timeout: 90 * time.Second}, apiKey: apiKey}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
	Error         *geminiError        `json:"error"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func buildGeminiRequest(messages []Message, params Params) geminiRequest {
	var req geminiRequest
	for _, m := range messages {
		if m.Role == "system" {
			req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if params.Temperature != nil {
		req.GenerationConfig.Temperature = params.Temperature
	}
	if params.TopP != nil {
		req.GenerationConfig.TopP = params.TopP
	}
	if params.MaxTokens != nil {
		req.GenerationConfig.MaxOutputTokens = params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.GenerationConfig.StopSequences = params.Stop
	}
	return req
}

func (g *geminiAdapter) complete(ctx context.Context, modelID string, messages []Message, params Params) (Result, error) {
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiBaseURL, modelID, g.apiKey)
	body, err := json.Marshal(buildGeminiRequest(messages, params))
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInternal, err, "gemini: marshaling request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInternal, err, "gemini: building request")
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, classifyTransportErr("gemini", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errs.Wrap(errs.KindProviderTransient, err, "gemini: reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, classifyHTTPStatus("gemini", resp.StatusCode, string(respBody), 0)
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Result{}, errs.Wrap(errs.KindProviderTransient, err, "gemini: parsing response")
	}
	if apiResp.Error != nil {
		return Result{}, errs.New(errs.KindProviderPermanent, "gemini: %s: %s", apiResp.Error.Status, apiResp.Error.Message)
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return Result{}, errs.New(errs.KindProviderTransient, "gemini: no candidates in response")
	}

	var text string
	for _, p := range apiResp.Candidates[0].Content.Parts {
		text += p.Text
	}

	return Result{
		Text:         text,
		InputTokens:  apiResp.UsageMetadata.PromptTokenCount,
		OutputTokens: apiResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// completeStream falls back to a single-chunk "stream" (one complete() call
// whose full text is emitted as one delta) since the SSE framing for
// Gemini's streamGenerateContent differs materially from Anthropic/OpenAI's
// and no pack example demonstrates it; callers needing true incremental
// Gemini streaming are a known gap, tracked as a follow-up.
func (g *geminiAdapter) completeStream(ctx context.Context, modelID string, messages []Message, params Params) (<-chan StreamDelta, error) {
	res, err := g.complete(ctx, modelID, messages, params)
	if err != nil {
		return nil, err
	}
	out := make(chan StreamDelta, 2)
	out <- StreamDelta{Text: res.Text}
	out <- StreamDelta{Done: true}
	close(out)
	return out, nil
}

type geminiEmbedRequest struct {
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
	Error *geminiError `json:"error"`
}

func (g *geminiAdapter) embed(ctx context.Context, modelID string, texts []string) ([][]float64, error) {
	vecs := make([][]float64, len(texts))
	for i, text := range texts {
		url := fmt.Sprintf("%s/%s:embedContent?key=%s", geminiBaseURL, modelID, g.apiKey)
		body, err := json.Marshal(geminiEmbedRequest{Content: geminiContent{Parts: []geminiPart{{Text: text}}}})
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, err, "gemini: marshaling embed request")
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, err, "gemini: building embed request")
		}
		httpReq.Header.Set("content-type", "application/json")

		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			return nil, classifyTransportErr("gemini", err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, errs.Wrap(errs.KindProviderTransient, readErr, "gemini: reading embed response")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, classifyHTTPStatus("gemini", resp.StatusCode, string(respBody), 0)
		}
		var apiResp geminiEmbedResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, errs.Wrap(errs.KindProviderTransient, err, "gemini: parsing embed response")
		}
		if apiResp.Error != nil {
			return nil, errs.New(errs.KindProviderPermanent, "gemini: %s: %s", apiResp.Error.Status, apiResp.Error.Message)
		}
		vecs[i] = apiResp.Embedding.Values
	}
	return vecs, nil
}
