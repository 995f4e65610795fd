// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SetsRetryableFromKind(t *testing.T) {
	transient := New(KindProviderTransient, "upstream reset")
	assert.True(t, transient.Retryable)

	permanent := New(KindProviderPermanent, "bad request")
	assert.False(t, permanent.Retryable)
}

func TestWrap_PreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(KindModelUnavailable, cause, "model %s unreachable", "claude-haiku")

	assert.Equal(t, KindModelUnavailable, wrapped.Kind)
	assert.Same(t, cause, errors.Unwrap(wrapped))
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestAs_RecognizesWrappedError(t *testing.T) {
	original := New(KindRateLimited, "too many requests")
	wrappedOnce := errors.New("context: " + original.Error())

	_, ok := As(wrappedOnce)
	assert.False(t, ok, "a plain error string must not be mistaken for *Error")

	chained := fmt.Errorf("handler: %w", original)
	got, ok := As(chained)
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, got.Kind)
}

func TestKindOf_DefaultsToInternalForForeignErrors(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("some foreign error")))
	assert.Equal(t, KindBudgetExceeded, KindOf(New(KindBudgetExceeded, "over monthly cap")))
}

func TestOk_RoundTripsValueThroughEnvelope(t *testing.T) {
	env, err := Ok(map[string]any{"overall": 92.5, "tier": "A"})
	require.NoError(t, err)
	assert.True(t, env.OK)
	assert.Nil(t, env.Err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(env.Value, &decoded))
	assert.Equal(t, 92.5, decoded["overall"])
}

func TestFail_ClassifiesKnownErrorWithoutLeakingCause(t *testing.T) {
	cause := errors.New("postgres: connection reset by peer")
	domainErr := Wrap(KindProviderTransient, cause, "anthropic call failed")

	env := Fail(domainErr)
	assert.False(t, env.OK)
	require.NotNil(t, env.Err)
	assert.Equal(t, KindProviderTransient, env.Err.Kind)
	assert.True(t, env.Err.Retryable)
	assert.NotContains(t, env.Err.Message, "postgres", "envelope must not leak the internal cause's text")
}

func TestFail_ClassifiesForeignErrorAsInternalGenericMessage(t *testing.T) {
	env := Fail(errors.New("runtime: out of memory"))
	assert.False(t, env.OK)
	require.NotNil(t, env.Err)
	assert.Equal(t, KindInternal, env.Err.Kind)
	assert.Equal(t, "internal error", env.Err.Message)
}
