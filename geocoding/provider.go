// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ProviderPostalCode identifies the CEP based coordinate provider.
const ProviderPostalCode = "cep"

// Provider is one step of the resolution chain.
type Provider interface {
	Name() string
	TryResolve(ctx context.Context, addr Address) Result
}

// addressFilter is implemented by providers that only handle some
// addresses. The resolver neither calls nor counts a provider that doesn't
// apply.
type addressFilter interface {
	Applies(addr Address) bool
}

// TextProvider resolves addresses through a free text Geocoder. It sends the
// full query first and, only when that has no match, a single street level
// query without the house number.
type TextProvider struct {
	geocoder Geocoder
}

// NewTextProvider wraps a Geocoder into a Provider.
func NewTextProvider(g Geocoder) *TextProvider {
	return &TextProvider{geocoder: g}
}

// Name implements Provider.
func (p *TextProvider) Name() string {
	return p.geocoder.Name()
}

// TryResolve implements Provider.
func (p *TextProvider) TryResolve(ctx context.Context, addr Address) Result {
	full := BuildQuery(addr, QueryFull)

	res, err := p.geocoder.Geocode(ctx, full)
	if err == nil {
		return p.accept(res, full)
	}

	if !IsNotFoundError(err) {
		return failureFor(p.Name(), err)
	}

	street := BuildQuery(addr, QueryStreet)
	if street == full {
		return failureFor(p.Name(), err)
	}

	res, err = p.geocoder.Geocode(ctx, street)
	if err != nil {
		return failureFor(p.Name(), err)
	}

	return p.accept(res, street)
}

func (p *TextProvider) accept(res *GeocodingResult, query string) Result {
	if res == nil {
		return failure(OutcomeProviderError, p.Name(), malformed(p.Name(), fmt.Errorf("empty result")))
	}

	if err := checkRange(res); err != nil {
		return failureFor(p.Name(), err)
	}

	out := *res
	if out.Query == "" {
		out.Query = query
	}

	return success(p.Name(), &out)
}

// PostalCodeProvider takes the coordinates BrasilAPI v2 attaches to some
// CEPs. It is cheap and precise where covered, so it goes first.
type PostalCodeProvider struct {
	source *BrasilAPISource
}

// NewPostalCodeProvider creates the provider over a BrasilAPI v2 source.
func NewPostalCodeProvider(source *BrasilAPISource) *PostalCodeProvider {
	return &PostalCodeProvider{source: source}
}

// Name implements Provider.
func (p *PostalCodeProvider) Name() string {
	return ProviderPostalCode
}

// Applies reports whether addr carries a valid CEP.
func (p *PostalCodeProvider) Applies(addr Address) bool {
	_, ok := NormalizePostalCode(addr.PostalCode)

	return ok
}

// TryResolve implements Provider.
func (p *PostalCodeProvider) TryResolve(ctx context.Context, addr Address) Result {
	cep, ok := NormalizePostalCode(addr.PostalCode)
	if !ok {
		return failure(OutcomeNotFound, ProviderPostalCode, notFound(ProviderPostalCode, "address has no valid CEP"))
	}

	resp, err := p.source.fetch(ctx, cep)
	if err != nil {
		return failureFor(ProviderPostalCode, err)
	}

	coords := resp.Location.Coordinates
	if strings.TrimSpace(coords.Latitude) == "" || strings.TrimSpace(coords.Longitude) == "" {
		return failure(OutcomeNotFound, ProviderPostalCode, notFound(ProviderPostalCode, "no coordinates for CEP %s", cep))
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(coords.Latitude), 64)
	if err != nil {
		return failureFor(ProviderPostalCode, malformed(ProviderPostalCode, fmt.Errorf("latitude %q: %w", coords.Latitude, err)))
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(coords.Longitude), 64)
	if err != nil {
		return failureFor(ProviderPostalCode, malformed(ProviderPostalCode, fmt.Errorf("longitude %q: %w", coords.Longitude, err)))
	}

	res := &GeocodingResult{
		Latitude:   lat,
		Longitude:  lng,
		Confidence: "medium",
		Provider:   ProviderPostalCode,
		Query:      cep,
	}

	if err := checkRange(res); err != nil {
		return failureFor(ProviderPostalCode, err)
	}

	return success(ProviderPostalCode, res)
}
