// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

// Package records stores the people and organizations registered in
// Mobiliza together with their resolved coordinates.
package records

import (
	"fmt"
	"time"

	"github.com/mobilizabr/mobiliza/geocoding"
	"github.com/mobilizabr/mobiliza/spatial"
	"github.com/uber/h3-go/v4"
)

// h3Resolution is roughly a city block.
const h3Resolution = 8

// Kind is the type of registered entity.
type Kind string

// Known kinds.
const (
	KindCoordinator  Kind = "coordinator"
	KindLeader       Kind = "leader"
	KindTeam         Kind = "team"
	KindOrganization Kind = "organization"
	KindSupporter    Kind = "supporter"
)

// Kinds lists every known kind.
var Kinds = []Kind{KindCoordinator, KindLeader, KindTeam, KindOrganization, KindSupporter}

// ParseKind validates a kind name. The empty string is not a kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}

	return "", fmt.Errorf("unknown kind %q", s)
}

// Record is a registered entity with its address.
type Record struct {
	ID                string            `json:"id"`
	Kind              Kind              `json:"kind"`
	Name              string            `json:"name"`
	Address           geocoding.Address `json:"address"`
	Point             *spatial.Point    `json:"point,omitempty"`
	GeocodingProvider string            `json:"geocoding_provider,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	H3Cell            int64             `json:"-"`
}

func h3Cell(p *spatial.Point) (int64, error) {
	if p == nil {
		return 0, nil
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), h3Resolution)
	if err != nil {
		return 0, fmt.Errorf("error converting to h3 cell at res %d: %w", h3Resolution, err)
	}

	return int64(cell), nil
}

// ToGeocodingRecords adapts stored records for geocoding.BulkReresolve.
func ToGeocodingRecords(recs []*Record) []geocoding.Record {
	out := make([]geocoding.Record, len(recs))
	for i, r := range recs {
		out[i] = geocoding.Record{ID: r.ID, Address: r.Address, Point: r.Point}
	}

	return out
}
