// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch fans a completion request out to every configured
// provider in parallel and aggregates the results by provider identity.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianComplete/services/providers"
	"golang.org/x/sync/errgroup"
)

// Dispatcher invokes all configured providers concurrently.
//
// # Description
//
// One Dispatch call is one synchronous batch: every provider is invoked
// with the same trimmed prefix and raw suffix, and the call returns only
// once the whole fan-out has settled. There are no retries and no
// streaming of partial results.
//
// Failure semantics split in two:
//   - providers.ErrResourceExhausted is fatal and aborts the batch; the
//     error is propagated unwrapped for the orchestrator to act on.
//   - Any other provider error degrades to an empty prediction for that
//     provider; the rest of the batch is unaffected.
//
// # Thread Safety
//
// Safe for concurrent use; Dispatcher holds no per-call state.
type Dispatcher struct {
	providers []providers.Provider

	// perProviderTimeout bounds each provider call so one stalled backend
	// cannot stall the whole fan-out. Zero means no bound.
	perProviderTimeout time.Duration
}

// New creates a Dispatcher over the given providers.
//
// Inputs:
//
//	provs - Providers to fan out to. Must not be empty.
//	perProviderTimeout - Per-call bound; zero disables it.
//
// Outputs:
//
//	*Dispatcher - Ready for concurrent use.
//	error - Non-nil if provs is empty.
func New(provs []providers.Provider, perProviderTimeout time.Duration) (*Dispatcher, error) {
	if len(provs) == 0 {
		return nil, errors.New("dispatch: at least one provider is required")
	}
	return &Dispatcher{
		providers:          provs,
		perProviderTimeout: perProviderTimeout,
	}, nil
}

// Dispatch runs the provider fan-out for one request.
//
// # Description
//
// Trailing whitespace is stripped from the prefix before dispatch;
// completion models tokenize with leading spaces attached to tokens, so
// a trailing space in the prompt degrades accuracy. The suffix is passed
// through raw. Elapsed is the wall-clock span of the whole fan-out, not
// the sum of individual latencies.
//
// # Inputs
//
//   - ctx: Request context. Cancellation aborts outstanding calls.
//   - prefix, suffix: Editor context around the cursor.
//
// # Outputs
//
//   - time.Duration: Wall-clock span of the fan-out.
//   - map[string]string: Prediction per provider name. A provider that
//     failed non-fatally maps to the empty string.
//   - error: providers.ErrResourceExhausted on the fatal exhaustion
//     condition; nil otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, prefix, suffix string) (time.Duration, map[string]string, error) {
	trimmed := strings.TrimRight(prefix, " \t\n\r")

	start := time.Now()
	results := make([]string, len(d.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range d.providers {
		g.Go(func() error {
			callCtx := gctx
			if d.perProviderTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, d.perProviderTimeout)
				defer cancel()
			}

			prediction, err := p.Generate(callCtx, trimmed, suffix)
			if err != nil {
				if errors.Is(err, providers.ErrResourceExhausted) {
					// Fatal: cancel the rest of the batch and surface it.
					return err
				}
				slog.Warn("provider call failed", "provider", p.Name(), "error", err)
				return nil
			}
			results[i] = prediction
			return nil
		})
	}

	err := g.Wait()
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, nil, err
	}

	predictions := make(map[string]string, len(d.providers))
	for i, p := range d.providers {
		predictions[p.Name()] = results[i]
	}
	return elapsed, predictions, nil
}

// Providers returns the provider names in dispatch order.
func (d *Dispatcher) Providers() []string {
	names := make([]string, len(d.providers))
	for i, p := range d.providers {
		names[i] = p.Name()
	}
	return names
}
