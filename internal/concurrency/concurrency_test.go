// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_WaitReturnsNilWhenAllGoroutinesSucceed(t *testing.T) {
	r, _ := New(context.Background())
	var ran int32
	for i := 0; i < 5; i++ {
		r.Go(func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}
	require.NoError(t, r.Wait())
	assert.EqualValues(t, 5, atomic.LoadInt32(&ran))
}

func TestRoot_GoCancelsSiblingsOnFirstError(t *testing.T) {
	r, _ := New(context.Background())
	boom := errors.New("boom")

	siblingSawCancel := make(chan struct{})
	r.Go(func(ctx context.Context) error {
		return boom
	})
	r.Go(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			close(siblingSawCancel)
		case <-time.After(2 * time.Second):
		}
		return nil
	})

	err := r.Wait()
	require.Error(t, err)
	assert.Equal(t, boom, err)

	select {
	case <-siblingSawCancel:
	default:
		t.Fatal("expected the sibling goroutine's context to be cancelled")
	}
}

func TestRoot_WaitKeepsFirstErrorOnly(t *testing.T) {
	r, _ := New(context.Background())
	first := errors.New("first")
	second := errors.New("second")

	r.Go(func(ctx context.Context) error {
		return first
	})
	r.Go(func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return second
	})

	err := r.Wait()
	assert.Equal(t, first, err)
}

func TestRoot_CancelStopsGoroutinesBeforeWait(t *testing.T) {
	r, ctx := New(context.Background())
	done := make(chan struct{})
	r.Go(func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return nil
	})

	r.Cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Cancel to unblock the goroutine waiting on ctx.Done()")
	}
	assert.NoError(t, r.Wait())
	assert.Error(t, ctx.Err())
}

func TestRoot_WaitCancelsContextEvenOnSuccess(t *testing.T) {
	r, ctx := New(context.Background())
	r.Go(func(ctx context.Context) error { return nil })
	require.NoError(t, r.Wait())
	assert.Error(t, ctx.Err(), "Wait must cancel the scope's context once all goroutines finish")
}
