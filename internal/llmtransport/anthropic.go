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
	"strconv"
	"strings"
	"time"

	"github.com/craftquality/craftengine/internal/errs"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
)

// anthropicAdapter talks to the Anthropic Messages API directly over
// net/http, the same hand-rolled-client shape as services/llm/anthropic_llm.go
// rather than an SDK dependency.
type anthropicAdapter struct {
	httpClient *http.Client
	apiKey     string
}

func newAnthropicAdapter(apiKey string) *anthropicAdapter {
	return &anthropicAdapter{httpClient: &http.Client{Timeout: 90 * time.Second}, apiKey: apiKey}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   anthropicUsage          `json:"usage"`
	Error   *anthropicError         `json:"error"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func buildAnthropicRequest(modelID string, messages []Message, params Params, stream bool) anthropicRequest {
	var system string
	var apiMessages []anthropicMessage
	for _, m := range messages {
		if strings.EqualFold(m.Role, "system") {
			system = m.Content
			continue
		}
		apiMessages = append(apiMessages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	req := anthropicRequest{Model: modelID, Messages: apiMessages, System: system, MaxTokens: 4096, Stream: stream}
	if params.Temperature != nil {
		req.Temperature = params.Temperature
	}
	if params.TopP != nil {
		req.TopP = params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.StopSeqs = params.Stop
	}
	return req
}

func (a *anthropicAdapter) complete(ctx context.Context, modelID string, messages []Message, params Params) (Result, error) {
	reqPayload := buildAnthropicRequest(modelID, messages, params, false)
	body, err := json.Marshal(reqPayload)
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInternal, err, "anthropic: marshaling request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInternal, err, "anthropic: building request")
	}
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, classifyTransportErr("anthropic", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errs.Wrap(errs.KindProviderTransient, err, "anthropic: reading response")
	}

	if resp.StatusCode != http.StatusOK {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return Result{}, classifyHTTPStatus("anthropic", resp.StatusCode, string(respBody), retryAfter)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Result{}, errs.Wrap(errs.KindProviderTransient, err, "anthropic: parsing response")
	}
	if apiResp.Error != nil {
		return Result{}, errs.New(errs.KindProviderPermanent, "anthropic: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Result{}, errs.New(errs.KindProviderTransient, "anthropic: empty content in response")
	}

	return Result{Text: text.String(), InputTokens: apiResp.Usage.InputTokens, OutputTokens: apiResp.Usage.OutputTokens}, nil
}

// completeStream issues a server-sent-events request and relays text deltas.
// Anthropic's stream frames are "event: ...\ndata: {...}\n\n"; only
// content_block_delta text deltas are surfaced here.
func (a *anthropicAdapter) completeStream(ctx context.Context, modelID string, messages []Message, params Params) (<-chan StreamDelta, error) {
	reqPayload := buildAnthropicRequest(modelID, messages, params, true)
	body, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "anthropic: marshaling stream request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "anthropic: building stream request")
	}
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("accept", "text/event-stream")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr("anthropic", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, classifyHTTPStatus("anthropic", resp.StatusCode, string(respBody), retryAfter)
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
			var frame struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
				continue
			}
			if frame.Type == "content_block_delta" && frame.Delta.Text != "" {
				out <- StreamDelta{Text: frame.Delta.Text}
			}
			if frame.Type == "message_stop" {
				out <- StreamDelta{Done: true}
				return
			}
		}
	}()
	return out, nil
}

func (a *anthropicAdapter) embed(ctx context.Context, modelID string, texts []string) ([][]float64, error) {
	return nil, errs.New(errs.KindModelUnavailable, "anthropic: embeddings are not supported")
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
