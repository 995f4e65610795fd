// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package concurrency provides Root, a structured-concurrency scope
// instantiated once per top-level call (analyze, run_tournament, enhance),
// per §9's redesign flag: every goroutine a call spawns is tied to that
// call's lifetime, so a cancelled or returned top-level call can never leak
// a background goroutine still holding provider connections or files open.
//
// Grounded on the teacher's own concurrency idiom throughout
// services/trace/agent and services/trace/agent/routing: hand-rolled
// context.WithCancel plus sync.WaitGroup rather than a structured-concurrency
// library (no pack example imports golang.org/x/sync/errgroup for this
// purpose, and this module's go.mod does not require golang.org/x/sync),
// so Root is the same pattern formalized into one reusable
// type instead of being re-derived ad hoc at each call site.
package concurrency

import (
	"context"
	"sync"
)

// Root is a cancellation scope bound to one top-level call. Go launches a
// tracked goroutine; Cancel or Wait ensures none outlive the
// call. The zero value is not usable — construct with New.
type Root struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	firstErr error
}

// New derives a cancellable scope from parent, returning the Root and the
// context goroutines launched via Go should observe.
func New(parent context.Context) (*Root, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Root{ctx: ctx, cancel: cancel}, ctx
}

// Go launches fn as a tracked goroutine. If fn returns a non-nil error, the
// Root cancels its context (stopping sibling goroutines that check
// ctx.Done()) and records the first such error for Wait to return.
func (r *Root) Go(fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := fn(r.ctx); err != nil {
			r.mu.Lock()
			if r.firstErr == nil {
				r.firstErr = err
			}
			r.mu.Unlock()
			r.cancel()
		}
	}()
}

// Wait blocks until every tracked goroutine has returned, then releases the
// scope's resources and returns the first error recorded by Go, if any.
func (r *Root) Wait() error {
	r.wg.Wait()
	r.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr
}

// Cancel ends the scope immediately without waiting for goroutines to
// finish; callers that need goroutines to have fully drained should call
// Wait instead. Safe to call multiple times and safe to call before Wait.
func (r *Root) Cancel() {
	r.cancel()
}
