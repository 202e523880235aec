// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocoding turns Brazilian postal addresses into coordinates.
//
// A Resolver walks an ordered chain of Providers (CEP coordinates, then free
// text geocoders) and stops at the first success. PostalCodeLookup prefills
// addresses from a CEP, and BulkReresolve refreshes stored records against a
// single named provider.
package geocoding

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

// Resolver runs the provider fallback chain. It holds no mutable state and
// is safe for concurrent use.
type Resolver struct {
	providers      []Provider
	attemptTimeout time.Duration
	bulkDelay      time.Duration
	progress       bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithAttemptTimeout bounds each provider attempt.
func WithAttemptTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.attemptTimeout = d }
}

// WithBulkDelay sets the pause between records in BulkReresolve.
func WithBulkDelay(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.bulkDelay = d }
}

// WithProgressBar enables a terminal progress bar in BulkReresolve.
func WithProgressBar(enabled bool) ResolverOption {
	return func(r *Resolver) { r.progress = enabled }
}

// NewResolver creates a resolver that tries providers in the given order.
func NewResolver(providers []Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		providers: providers,
		bulkDelay: DefaultBulkDelay,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Providers returns the provider names in chain order.
func (r *Resolver) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}

	return names
}

// Provider returns the provider registered under name.
func (r *Resolver) Provider(name string) (Provider, bool) {
	for _, p := range r.providers {
		if p.Name() == name {
			return p, true
		}
	}

	return nil, false
}

// Resolve turns addr into a coordinate. The returned error is only set for
// an incomplete address, in which case no provider is contacted. Every other
// failure is reported through the Result outcome.
func (r *Resolver) Resolve(ctx context.Context, addr Address) (Result, error) {
	return r.resolve(ctx, addr, r.providers)
}

func (r *Resolver) resolve(ctx context.Context, addr Address, chain []Provider) (Result, error) {
	if err := addr.Validate(); err != nil {
		return Result{}, err
	}

	if len(chain) == 0 {
		return failure(OutcomeProviderError, "", errors.New("no providers configured")), nil
	}

	var (
		errs       []error
		reasons    []string
		anyMissing bool
	)

	for _, p := range chain {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			reasons = append(reasons, err.Error())

			break
		}

		if f, ok := p.(addressFilter); ok && !f.Applies(addr) {
			continue
		}

		res := r.attempt(ctx, p, addr)
		if res.Outcome == OutcomeSuccess {
			if res.Point == nil || !res.Point.Valid() {
				res = failure(OutcomeProviderError, p.Name(), &GeocodingError{
					Type:     ErrorTypeMalformedResponse,
					Provider: p.Name(),
					Message:  "invalid coordinate",
				})
			} else {
				return res, nil
			}
		}

		log.Printf("⚠️  geocoding %q: %s %s: %s", BuildQuery(addr, QueryFull), p.Name(), res.Outcome, res.Reason)

		if res.Outcome == OutcomeNotFound {
			anyMissing = true
		}

		if res.Err != nil {
			errs = append(errs, res.Err)
		}

		reasons = append(reasons, reasonFor(p.Name(), res.Reason))
	}

	if len(reasons) == 0 {
		return failure(OutcomeNotFound, "", errors.New("no provider applies to the address")), nil
	}

	outcome := OutcomeProviderError
	if anyMissing {
		outcome = OutcomeNotFound
	}

	return Result{
		Outcome: outcome,
		Reason:  strings.Join(reasons, "; "),
		Err:     errors.Join(errs...),
	}, nil
}

func (r *Resolver) attempt(ctx context.Context, p Provider, addr Address) Result {
	if r.attemptTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.attemptTimeout)
		defer cancel()
	}

	return p.TryResolve(ctx, addr)
}

// reasonFor prefixes reason with the provider name unless the provider
// error already carries it.
func reasonFor(provider, reason string) string {
	if strings.HasPrefix(reason, provider+": ") {
		return reason
	}

	return provider + ": " + reason
}
