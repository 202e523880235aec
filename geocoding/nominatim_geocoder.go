// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ProviderNominatim identifies the OpenStreetMap Nominatim geocoder.
const ProviderNominatim = "nominatim"

const defaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// NominatimGeocoder queries an OpenStreetMap Nominatim instance. The public
// instance requires an identifying User-Agent, which the http.Client is
// expected to send.
type NominatimGeocoder struct {
	baseURL    string
	httpClient *http.Client
}

// NewNominatimGeocoder creates a Nominatim geocoder.
func NewNominatimGeocoder(baseURL string, client *http.Client) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}

	return &NominatimGeocoder{baseURL: baseURL, httpClient: client}
}

// nominatimPlace mirrors the relevant parts of the search payload.
type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Class       string  `json:"class"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
	PlaceRank   int     `json:"place_rank"`
}

// Name implements Geocoder.
func (g *NominatimGeocoder) Name() string {
	return ProviderNominatim
}

// Geocode implements Geocoder.
func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (*GeocodingResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("countrycodes", "br")
	params.Set("limit", "1")

	var places []nominatimPlace
	if err := getJSON(ctx, g.httpClient, ProviderNominatim, g.baseURL+"?"+params.Encode(), &places); err != nil {
		return nil, err
	}

	if len(places) == 0 {
		return nil, notFound(ProviderNominatim, "no results found for %q", query)
	}

	place := places[0]

	lat, err := strconv.ParseFloat(place.Lat, 64)
	if err != nil {
		return nil, malformed(ProviderNominatim, fmt.Errorf("latitude %q: %w", place.Lat, err))
	}

	lng, err := strconv.ParseFloat(place.Lon, 64)
	if err != nil {
		return nil, malformed(ProviderNominatim, fmt.Errorf("longitude %q: %w", place.Lon, err))
	}

	res := &GeocodingResult{
		Latitude:    lat,
		Longitude:   lng,
		Confidence:  nominatimConfidence(place.PlaceRank),
		Provider:    ProviderNominatim,
		DisplayName: place.DisplayName,
		Query:       query,
	}

	if err := checkRange(res); err != nil {
		return nil, err
	}

	return res, nil
}

// place_rank 30 is a building, 26-27 a street, anything coarser is at
// best a neighborhood centroid.
func nominatimConfidence(rank int) string {
	switch {
	case rank >= 28:
		return "high"
	case rank >= 26:
		return "medium"
	default:
		return "low"
	}
}
