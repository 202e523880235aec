// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GeocodingResult represents a geocoding result from any provider.
type GeocodingResult struct {
	Latitude    float64
	Longitude   float64
	Confidence  string // high, medium, low
	Provider    string
	DisplayName string
	Query       string
}

// Geocoder resolves a free text query. It returns an error of type
// ErrorTypeNotFound when the provider has no match.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, query string) (*GeocodingResult, error)
}

// getJSON performs a GET and decodes a JSON body into v. Non 2xx answers
// are classified with ClassifyHTTPError.
func getJSON(ctx context.Context, client *http.Client, provider, reqURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &GeocodingError{Type: ErrorTypeInvalidRequest, Provider: provider, Message: "building request", Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(err, provider)
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)

		return ClassifyHTTPError(resp.StatusCode, provider)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		if ctx.Err() != nil {
			return classifyTransportError(ctx.Err(), provider)
		}

		return malformed(provider, err)
	}

	return nil
}

// checkRange rejects coordinates outside WGS84 bounds.
func checkRange(res *GeocodingResult) error {
	if res.Latitude < -90 || res.Latitude > 90 || res.Longitude < -180 || res.Longitude > 180 {
		return &GeocodingError{
			Type:     ErrorTypeMalformedResponse,
			Provider: res.Provider,
			Message:  fmt.Sprintf("coordinate out of range (%f, %f)", res.Latitude, res.Longitude),
		}
	}

	return nil
}
