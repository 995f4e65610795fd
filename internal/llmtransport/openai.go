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
	"strings"
	"time"

	"github.com/craftquality/craftengine/internal/errs"
)

const (
	openAIChatURL  = "https://api.openai.com/v1/chat/completions"
	openAIEmbedURL = "https://api.openai.com/v1/embeddings"
)

// openAIAdapter mirrors anthropicAdapter's hand-rolled net/http shape,
// targeting the OpenAI chat-completions and embeddings endpoints.
type openAIAdapter struct {
	httpClient *http.Client
	apiKey     string
}

func newOpenAIAdapter(apiKey string) *openAIAdapter {
	return &openAIAdapter{httpClient: &http.Client{Timeout: 90 * time.Second}, apiKey: apiKey}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float32        `json:"temperature,omitempty"`
	TopP        *float32        `json:"top_p,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIChatChoice struct {
	Message      openAIMessage `json:"message"`
	Delta        openAIMessage `json:"delta"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openAIChatResponse struct {
	Choices []openAIChatChoice `json:"choices"`
	Usage   openAIUsage        `json:"usage"`
	Error   *openAIError       `json:"error"`
}

type openAIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func buildOpenAIRequest(modelID string, messages []Message, params Params, stream bool) openAIChatRequest {
	apiMessages := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, openAIMessage{Role: m.Role, Content: m.Content})
	}
	req := openAIChatRequest{Model: modelID, Messages: apiMessages, Stream: stream}
	if params.Temperature != nil {
		req.Temperature = params.Temperature
	}
	if params.TopP != nil {
		req.TopP = params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

func (o *openAIAdapter) doJSON(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "openai: marshaling request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "openai: building request")
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("content-type", "application/json")
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr("openai", err)
	}
	return resp, nil
}

func (o *openAIAdapter) complete(ctx context.Context, modelID string, messages []Message, params Params) (Result, error) {
	resp, err := o.doJSON(ctx, openAIChatURL, buildOpenAIRequest(modelID, messages, params, false))
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errs.Wrap(errs.KindProviderTransient, err, "openai: reading response")
	}
	if resp.StatusCode != http.StatusOK {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return Result{}, classifyHTTPStatus("openai", resp.StatusCode, string(respBody), retryAfter)
	}

	var apiResp openAIChatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Result{}, errs.Wrap(errs.KindProviderTransient, err, "openai: parsing response")
	}
	if apiResp.Error != nil {
		return Result{}, errs.New(errs.KindProviderPermanent, "openai: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return Result{}, errs.New(errs.KindProviderTransient, "openai: no choices in response")
	}

	return Result{
		Text:         apiResp.Choices[0].Message.Content,
		InputTokens:  apiResp.Usage.PromptTokens,
		OutputTokens: apiResp.Usage.CompletionTokens,
	}, nil
}

func (o *openAIAdapter) completeStream(ctx context.Context, modelID string, messages []Message, params Params) (<-chan StreamDelta, error) {
	resp, err := o.doJSON(ctx, openAIChatURL, buildOpenAIRequest(modelID, messages, params, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, classifyHTTPStatus("openai", resp.StatusCode, string(respBody), retryAfter)
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
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				out <- StreamDelta{Done: true}
				return
			}
			var frame openAIChatResponse
			if err := json.Unmarshal([]byte(payload), &frame); err != nil {
				continue
			}
			if len(frame.Choices) == 0 {
				continue
			}
			if text := frame.Choices[0].Delta.Content; text != "" {
				out <- StreamDelta{Text: text}
			}
		}
	}()
	return out, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *openAIError `json:"error"`
}

func (o *openAIAdapter) embed(ctx context.Context, modelID string, texts []string) ([][]float64, error) {
	resp, err := o.doJSON(ctx, openAIEmbedURL, openAIEmbedRequest{Model: modelID, Input: texts})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindProviderTransient, err, "openai: reading embed response")
	}
	if resp.StatusCode != http.StatusOK {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, classifyHTTPStatus("openai", resp.StatusCode, string(respBody), retryAfter)
	}

	var apiResp openAIEmbedResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, errs.Wrap(errs.KindProviderTransient, err, "openai: parsing embed response")
	}
	if apiResp.Error != nil {
		return nil, errs.New(errs.KindProviderPermanent, "openai: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	vecs := make([][]float64, len(apiResp.Data))
	for i, d := range apiResp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
