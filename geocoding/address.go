// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"strings"

	"github.com/mobilizabr/mobiliza/spatial"
	"github.com/mobilizabr/mobiliza/utils/textutils"
)

// Address is a Brazilian postal address as typed in a registration form.
// It is a value: edits produce a new Address.
type Address struct {
	PostalCode   string `json:"postal_code,omitempty"`
	Street       string `json:"street"`
	Number       string `json:"number,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// PartialAddress is what a postal code lookup knows about a CEP. The house
// number always comes from the user.
type PartialAddress struct {
	PostalCode   string `json:"postal_code"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	Source       string `json:"source"`
}

// WithNumber completes the partial address with the user supplied number.
func (p PartialAddress) WithNumber(number string) Address {
	return Address{
		PostalCode:   p.PostalCode,
		Street:       p.Street,
		Number:       number,
		Neighborhood: p.Neighborhood,
		City:         p.City,
		State:        p.State,
	}
}

// Validate checks the fields every resolution needs before any network call.
func (a Address) Validate() error {
	var missing []string

	if strings.TrimSpace(a.Street) == "" {
		missing = append(missing, "street")
	}

	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}

	if strings.TrimSpace(a.State) == "" {
		missing = append(missing, "state")
	}

	if len(missing) == 0 {
		return nil
	}

	return &GeocodingError{
		Type:    ErrorTypeInvalidRequest,
		Message: "incomplete address, missing " + strings.Join(missing, ", "),
	}
}

// Usable reports whether a stored address can be re-resolved in bulk.
func (a Address) Usable() bool {
	return strings.TrimSpace(a.Street) != "" && strings.TrimSpace(a.City) != ""
}

// NormalizePostalCode strips formatting from a CEP. It reports false unless
// exactly eight digits remain.
func NormalizePostalCode(code string) (string, bool) {
	digits := textutils.DigitsOnly(code)
	if len(digits) != 8 {
		return "", false
	}

	return digits, true
}

// Outcome classifies a resolution attempt.
type Outcome int

const (
	// OutcomeSuccess a provider produced a valid coordinate.
	OutcomeSuccess Outcome = iota
	// OutcomeNotFound providers were reached but had no match.
	OutcomeNotFound
	// OutcomeProviderError network, timeout, 5xx or malformed response.
	OutcomeProviderError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeProviderError:
		return "provider_error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the outcome of resolving an Address. Point is set if and only
// if Outcome is OutcomeSuccess.
type Result struct {
	Outcome    Outcome        `json:"outcome"`
	Point      *spatial.Point `json:"point,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Confidence string         `json:"confidence,omitempty"`
	Query      string         `json:"query,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Err        error          `json:"-"`
}

// OK reports whether the result carries a coordinate.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess && r.Point != nil
}

func success(provider string, res *GeocodingResult) Result {
	p := spatial.Point{Lat: res.Latitude, Lng: res.Longitude}

	return Result{
		Outcome:    OutcomeSuccess,
		Point:      &p,
		Provider:   provider,
		Confidence: res.Confidence,
		Query:      res.Query,
	}
}

func failure(outcome Outcome, provider string, err error) Result {
	reason := "no match"
	if err != nil {
		reason = err.Error()
	}

	return Result{
		Outcome:  outcome,
		Provider: provider,
		Reason:   reason,
		Err:      err,
	}
}

// failureFor maps an error into a NotFound or ProviderError result.
func failureFor(provider string, err error) Result {
	if IsNotFoundError(err) {
		return failure(OutcomeNotFound, provider, err)
	}

	return failure(OutcomeProviderError, provider, err)
}
