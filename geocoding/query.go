// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"strings"

	"github.com/mobilizabr/mobiliza/utils/textutils"
)

// QueryMode selects how an Address is rendered for free text geocoders.
type QueryMode int

const (
	// QueryFull includes house number and neighborhood.
	QueryFull QueryMode = iota
	// QueryStreet drops house number and neighborhood. Providers usually
	// index addresses at the street level.
	QueryStreet
)

func (m QueryMode) String() string {
	if m == QueryStreet {
		return "street"
	}

	return "full"
}

const country = "Brazil"

// BuildQuery renders the address as a single line search query. Blank
// components are omitted.
func BuildQuery(addr Address, mode QueryMode) string {
	street := strings.TrimSpace(addr.Street)

	switch mode {
	case QueryStreet:
		return textutils.JoinNonEmpty(", ", street, addr.City, addr.State, country)
	default:
		streetLine := textutils.JoinNonEmpty(" ", street, addr.Number)

		return textutils.JoinNonEmpty(", ", streetLine, addr.Neighborhood, addr.City, addr.State, country)
	}
}
