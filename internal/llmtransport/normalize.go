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
	"net/http"
	"time"

	"github.com/craftquality/craftengine/internal/errs"
)

// classifyHTTPStatus maps a provider HTTP response to the closed error
// taxonomy, per §4.4: never retry 4xx except 429, retry 5xx and network
// errors. retryAfter is honored when the provider sends one on a 429.
func classifyHTTPStatus(provider string, status int, body string, retryAfter time.Duration) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		e := errs.New(errs.KindRateLimited, "%s: rate limited", provider)
		if retryAfter > 0 {
			e = e.WithDetails(map[string]any{"retry_after_ms": retryAfter.Milliseconds()})
		}
		return e
	case status >= 500:
		return errs.New(errs.KindProviderTransient, "%s: server error (status %d)", provider, status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.New(errs.KindProviderPermanent, "%s: authentication failed (status %d)", provider, status)
	case status >= 400:
		return errs.New(errs.KindProviderPermanent, "%s: request rejected (status %d): %s", provider, status, truncate(body, 200))
	default:
		return errs.New(errs.KindInternal, "%s: unexpected status %d", provider, status)
	}
}

// classifyTransportErr wraps a network-level (non-HTTP-status) failure,
// e.g. dial/timeout errors, as a retryable ProviderTransient.
func classifyTransportErr(provider string, err error) error {
	return errs.Wrap(errs.KindProviderTransient, err, "%s: transport error", provider)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
