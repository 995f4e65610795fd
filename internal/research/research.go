// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package research defines the external Research-collaborator boundary the
// Scaffold Generator's Stage 2 (Enrichment) queries. Research-notebook
// integration itself is out of scope (spec.md §1 OUT OF SCOPE); this
// package only declares the client contract the core calls through.
package research

import (
	"context"
	"time"
)

// Passage is one returned snippet of domain-specific detail.
type Passage struct {
	Source string
	Text   string
}

// Client queries an external research collaborator. A failing or
// timed-out query is non-fatal to Scaffold Stage 2 — the caller proceeds
// with source_enrichment left empty.
type Client interface {
	Query(ctx context.Context, handle string, text string) ([]Passage, error)
}

// NoopClient always returns no passages, used when no research collaborator
// is configured; Stage 2 becomes a pure skip.
type NoopClient struct{}

func (NoopClient) Query(ctx context.Context, handle, text string) ([]Passage, error) {
	return nil, nil
}

// WithTimeout wraps a Client so Stage 2 never blocks scaffold_generate
// beyond a bounded research query window, per §9 suspension-point rules.
type WithTimeout struct {
	Client  Client
	Timeout time.Duration
}

func (w WithTimeout) Query(ctx context.Context, handle, text string) ([]Passage, error) {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return w.Client.Query(ctx, handle, text)
}
