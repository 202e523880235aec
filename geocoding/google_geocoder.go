// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// ProviderGoogleMaps identifies the Google Maps geocoder.
const ProviderGoogleMaps = "google_maps"

const defaultGoogleMapsURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsGeocoder uses Google Maps Geocoding API.
type GoogleMapsGeocoder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogleMapsGeocoder creates a new Google Maps geocoder. An empty baseURL
// selects the public endpoint.
func NewGoogleMapsGeocoder(apiKey, baseURL string, client *http.Client) *GoogleMapsGeocoder {
	if baseURL == "" {
		baseURL = defaultGoogleMapsURL
	}

	return &GoogleMapsGeocoder{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: client,
	}
}

type googleMapsResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string `json:"error_message"`
}

// Name implements Geocoder.
func (g *GoogleMapsGeocoder) Name() string {
	return ProviderGoogleMaps
}

// Geocode implements Geocoder.
func (g *GoogleMapsGeocoder) Geocode(ctx context.Context, query string) (*GeocodingResult, error) {
	if g.apiKey == "" {
		return nil, &GeocodingError{
			Type:     ErrorTypeQuotaExceeded,
			Provider: ProviderGoogleMaps,
			Message:  "missing API key",
		}
	}

	params := url.Values{}
	params.Set("address", query)
	params.Set("key", g.apiKey)
	params.Set("region", "br") // Bias to Brazil
	params.Set("language", "pt-BR")

	var gmResp googleMapsResponse
	if err := getJSON(ctx, g.httpClient, ProviderGoogleMaps, g.baseURL+"?"+params.Encode(), &gmResp); err != nil {
		return nil, err
	}

	switch gmResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, notFound(ProviderGoogleMaps, "no results found for %q", query)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return nil, &GeocodingError{
			Type:     ErrorTypeQuotaExceeded,
			Provider: ProviderGoogleMaps,
			Message:  "status " + gmResp.Status,
		}
	case "REQUEST_DENIED":
		return nil, &GeocodingError{
			Type:     ErrorTypeQuotaExceeded,
			Provider: ProviderGoogleMaps,
			Message:  strings.TrimSpace("request denied " + gmResp.ErrorMessage),
		}
	default:
		return nil, &GeocodingError{
			Type:     ErrorTypeUnknown,
			Provider: ProviderGoogleMaps,
			Message:  "status " + gmResp.Status,
		}
	}

	if len(gmResp.Results) == 0 {
		return nil, notFound(ProviderGoogleMaps, "no results found for %q", query)
	}

	// Results are ranked by the provider; the first one wins.
	result := gmResp.Results[0]

	confidence := "low"

	switch result.Geometry.LocationType {
	case "ROOFTOP":
		confidence = "high"
	case "RANGE_INTERPOLATED":
		confidence = "high"
	case "GEOMETRIC_CENTER":
		confidence = "medium"
	case "APPROXIMATE":
		confidence = "low"
	}

	res := &GeocodingResult{
		Latitude:    result.Geometry.Location.Lat,
		Longitude:   result.Geometry.Location.Lng,
		Confidence:  confidence,
		Provider:    ProviderGoogleMaps,
		DisplayName: result.FormattedAddress,
		Query:       query,
	}

	if err := checkRange(res); err != nil {
		return nil, err
	}

	return res, nil
}
