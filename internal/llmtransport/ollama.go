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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/obs"
)

// ollamaAdapter talks to a local Ollama server. Grounded on
// services/trace/agent/providers/config.go's ResolveOllamaURL tiered
// env-var resolution (OLLAMA_BASE_URL -> deprecated OLLAMA_URL ->
// localhost default).
type ollamaAdapter struct {
	httpClient *http.Client
	baseURL    string
}

func newOllamaAdapter(baseURL string) *ollamaAdapter {
	if baseURL == "" {
		baseURL = resolveOllamaURL()
	}
	return &ollamaAdapter{httpClient: &http.Client{Timeout: 120 * time.Second}, baseURL: strings.TrimRight(baseURL, "/")}
}

func resolveOllamaURL() string {
	if url := os.Getenv("OLLAMA_BASE_URL"); url != "" {
		return url
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		obs.Logger().Warn("OLLAMA_URL is deprecated, use OLLAMA_BASE_URL instead", "ollama_url", url)
		return url
	}
	return "http://localhost:11434"
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaChatOptions   `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message        ollamaChatMessage `json:"message"`
	Done           bool              `json:"done"`
	PromptEvalCount int              `json:"prompt_eval_count"`
	EvalCount      int               `json:"eval_count"`
}

func buildOllamaRequest(modelID string, messages []Message, params Params, stream bool) ollamaChatRequest {
	apiMessages := make([]ollamaChatMessage, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}
	req := ollamaChatRequest{Model: modelID, Messages: apiMessages, Stream: stream}
	req.Options.Temperature = params.Temperature
	req.Options.TopP = params.TopP
	req.Options.Stop = params.Stop
	return req
}

func (o *ollamaAdapter) complete(ctx context.Context, modelID string, messages []Message, params Params) (Result, error) {
	body, err := json.Marshal(buildOllamaRequest(modelID, messages, params, false))
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInternal, err, "ollama: marshaling request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInternal, err, "ollama: building request")
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, classifyTransportErr("ollama", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errs.Wrap(errs.KindProviderTransient, err, "ollama: reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, classifyHTTPStatus("ollama", resp.StatusCode, string(respBody), 0)
	}

	var apiResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Result{}, errs.Wrap(errs.KindProviderTransient, err, "ollama: parsing response")
	}

	return Result{
		Text:         apiResp.Message.Content,
		InputTokens:  apiResp.PromptEvalCount,
		OutputTokens: apiResp.EvalCount,
	}, nil
}

func (o *ollamaAdapter) completeStream(ctx context.Context, modelID string, messages []Message, params Params) (<-chan StreamDelta, error) {
	body, err := json.Marshal(buildOllamaRequest(modelID, messages, params, true))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "ollama: marshaling stream request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "ollama: building stream request")
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr("ollama", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, classifyHTTPStatus("ollama", resp.StatusCode, string(respBody), 0)
	}

	out := make(chan StreamDelta, 16)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var frame ollamaChatResponse
			if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
				continue
			}
			if frame.Message.Content != "" {
				out <- StreamDelta{Text: frame.Message.Content}
			}
			if frame.Done {
				out <- StreamDelta{Done: true}
				return
			}
		}
	}()
	return out, nil
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (o *ollamaAdapter) embed(ctx context.Context, modelID string, texts []string) ([][]float64, error) {
	vecs := make([][]float64, len(texts))
	for i, text := range texts {
		body, err := json.Marshal(ollamaEmbedRequest{Model: modelID, Input: text})
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, err, "ollama: marshaling embed request")
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, err, "ollama: building embed request")
		}
		httpReq.Header.Set("content-type", "application/json")

		resp, err := o.httpClient.Do(httpReq)
		if err != nil {
			return nil, classifyTransportErr("ollama", err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, errs.Wrap(errs.KindProviderTransient, readErr, "ollama: reading embed response")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, classifyHTTPStatus("ollama", resp.StatusCode, string(respBody), 0)
		}
		var apiResp ollamaEmbedResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, errs.Wrap(errs.KindProviderTransient, err, "ollama: parsing embed response")
		}
		vecs[i] = apiResp.Embedding
	}
	return vecs, nil
}
