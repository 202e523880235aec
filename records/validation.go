// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mobilizabr/mobiliza/spatial"
)

const maxNameLength = 200

// validateCoordinates checks the point falls inside Brazil.
func validateCoordinates(p spatial.Point) error {
	if !p.Valid() {
		return fmt.Errorf("coordinates out of range: %s", p)
	}

	// Brazil spans roughly 5.3°N to 33.8°S and 34.8°W to 74°W.
	// A one degree margin absorbs provider precision errors.
	const (
		brazilMinLat = -34.8
		brazilMaxLat = 6.3
		brazilMinLng = -75.0
		brazilMaxLng = -33.8
	)

	if p.Lat < brazilMinLat || p.Lat > brazilMaxLat || p.Lng < brazilMinLng || p.Lng > brazilMaxLng {
		return fmt.Errorf("coordinates outside Brazil: %s", p)
	}

	return nil
}

// Validate checks a record before it is stored.
func (r *Record) Validate() error {
	if r == nil {
		return errors.New("record can't be nil")
	}

	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}

	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name can't be empty")
	}

	if len(r.Name) > maxNameLength {
		return fmt.Errorf("name too long (max %d characters)", maxNameLength)
	}

	if err := r.Address.Validate(); err != nil {
		return err
	}

	if r.Point != nil {
		if err := validateCoordinates(*r.Point); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
	}

	return nil
}

// sanitize trims the free text fields typed by users.
func (r *Record) sanitize() {
	r.Name = strings.TrimSpace(r.Name)

	a := &r.Address
	for _, s := range []*string{&a.PostalCode, &a.Street, &a.Number, &a.Neighborhood, &a.City, &a.State} {
		*s = strings.TrimSpace(*s)
	}

	a.State = strings.ToUpper(a.State)
}
