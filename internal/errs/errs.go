// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package errs defines the Craft Quality Engine's closed error taxonomy and
// the structured envelope every RPC result is returned in.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind enumerates the closed taxonomy from the error handling design.
type Kind string

const (
	KindInvalidSetting    Kind = "InvalidSetting"
	KindVoiceBundleInvalid Kind = "VoiceBundleInvalid"
	KindPatternCompile    Kind = "PatternCompileError"
	KindModelUnavailable  Kind = "ModelUnavailable"
	KindProviderTransient Kind = "ProviderTransient"
	KindProviderPermanent Kind = "ProviderPermanent"
	KindRateLimited       Kind = "RateLimited"
	KindSchemaViolation   Kind = "SchemaViolation"
	KindBudgetExceeded    Kind = "BudgetExceeded"
	KindCancelled         Kind = "Cancelled"
	KindTimeout           Kind = "Timeout"
	KindInternal          Kind = "Internal"
)

// retryableKinds holds the kinds that are retryable by default.
var retryableKinds = map[Kind]bool{
	KindProviderTransient: true,
	KindRateLimited:       true,
	KindTimeout:           true,
}

// Error is the Craft Quality Engine's structured error type. It carries a
// closed-taxonomy Kind, a one-line actionable Message, a Retryable hint, and
// optional Details for programmatic callers. Error never embeds a stack
// trace; §7 requires that no stack traces leak to callers.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Details   map[string]any
	cause     error
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryableKinds[kind],
	}
}

// Wrap attaches a Kind and message to an underlying cause while preserving it
// for errors.Unwrap / errors.Is chains without leaking the cause's text into
// Message unless the caller includes it explicitly.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryableKinds[kind],
		cause:     cause,
	}
}

// WithDetails attaches structured details and returns the receiver for
// chaining at construction sites.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// As reports whether err is (or wraps) an *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is a Craft Quality Engine *Error,
// otherwise KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Envelope is the wire format every RPC result is returned in, per §6:
// {ok: true, value} | {ok: false, error: {...}}.
type Envelope struct {
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value,omitempty"`
	Err   *EnvelopeError  `json:"error,omitempty"`
}

// EnvelopeError is the serialized form of Error inside an Envelope.
type EnvelopeError struct {
	Kind      Kind           `json:"kind"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// Ok wraps a successful value into an Envelope.
func Ok(value any) (*Envelope, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("errs: marshaling envelope value: %w", err)
	}
	return &Envelope{OK: true, Value: raw}, nil
}

// Fail wraps an error into a failure Envelope. Non-*Error values are
// classified as KindInternal with a generic, non-leaking message.
func Fail(err error) *Envelope {
	if e, ok := As(err); ok {
		return &Envelope{
			OK: false,
			Err: &EnvelopeError{
				Kind:      e.Kind,
				Message:   e.Message,
				Retryable: e.Retryable,
				Details:   e.Details,
			},
		}
	}
	return &Envelope{
		OK: false,
		Err: &EnvelopeError{
			Kind:    KindInternal,
			Message: "internal error",
		},
	}
}
