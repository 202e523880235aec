// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"
)

// Postal code sources.
const (
	SourceBrasilAPIV2 = "brasilapi_v2"
	SourceBrasilAPIV1 = "brasilapi_v1"
	SourceViaCEP      = "viacep"
)

const (
	defaultBrasilAPIURL = "https://brasilapi.com.br"
	defaultViaCEPURL    = "https://viacep.com.br"
)

// PostalCodeSource fetches the canonical address for a normalized CEP.
type PostalCodeSource interface {
	Name() string
	Lookup(ctx context.Context, cep string) (*PartialAddress, error)
}

// PostalCodeLookup tries each source in order, bounding every attempt
// with its own timeout.
type PostalCodeLookup struct {
	sources []PostalCodeSource
	timeout time.Duration
}

// NewPostalCodeLookup creates a lookup over the given sources. A zero
// timeout disables the per attempt bound.
func NewPostalCodeLookup(timeout time.Duration, sources ...PostalCodeSource) *PostalCodeLookup {
	return &PostalCodeLookup{sources: sources, timeout: timeout}
}

// Lookup returns the address registered for code. It returns nil without
// error when the code is not an 8 digit CEP or when no source knows it;
// the caller should then ask for a manual address. An error is only
// returned when ctx itself is done.
func (l *PostalCodeLookup) Lookup(ctx context.Context, code string) (*PartialAddress, error) {
	cep, ok := NormalizePostalCode(code)
	if !ok {
		return nil, nil
	}

	for _, src := range l.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		addr, err := l.try(ctx, src, cep)
		if err != nil {
			log.Printf("CEP %s: %s failed: %v", cep, src.Name(), err)

			continue
		}

		return addr, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Printf("CEP %s: not found in any source", cep)

	return nil, nil
}

func (l *PostalCodeLookup) try(ctx context.Context, src PostalCodeSource, cep string) (*PartialAddress, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	addr, err := src.Lookup(ctx, cep)
	if err != nil {
		return nil, err
	}

	if addr == nil || strings.TrimSpace(addr.City) == "" || strings.TrimSpace(addr.State) == "" {
		return nil, notFound(src.Name(), "incomplete answer for %s", cep)
	}

	addr.PostalCode = cep
	addr.Source = src.Name()

	return addr, nil
}

/////////////////////////////////////////
/// BrasilAPI

type brasilAPIResponse struct {
	CEP          string `json:"cep"`
	State        string `json:"state"`
	City         string `json:"city"`
	Neighborhood string `json:"neighborhood"`
	Street       string `json:"street"`
	Service      string `json:"service"`
	Location     struct {
		Type        string `json:"type"`
		Coordinates struct {
			Longitude string `json:"longitude"`
			Latitude  string `json:"latitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

// BrasilAPISource looks CEPs up in BrasilAPI. Version 2 also carries
// coordinates, which PostalCodeProvider uses.
type BrasilAPISource struct {
	baseURL    string
	version    int
	httpClient *http.Client
}

// NewBrasilAPISource creates a source for API version 1 or 2.
func NewBrasilAPISource(baseURL string, version int, client *http.Client) *BrasilAPISource {
	if baseURL == "" {
		baseURL = defaultBrasilAPIURL
	}

	if version != 1 {
		version = 2
	}

	return &BrasilAPISource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		version:    version,
		httpClient: client,
	}
}

// Name implements PostalCodeSource.
func (s *BrasilAPISource) Name() string {
	if s.version == 1 {
		return SourceBrasilAPIV1
	}

	return SourceBrasilAPIV2
}

func (s *BrasilAPISource) fetch(ctx context.Context, cep string) (*brasilAPIResponse, error) {
	path := "/api/cep/v2/"
	if s.version == 1 {
		path = "/api/cep/v1/"
	}

	var resp brasilAPIResponse
	if err := getJSON(ctx, s.httpClient, s.Name(), s.baseURL+path+cep, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Lookup implements PostalCodeSource.
func (s *BrasilAPISource) Lookup(ctx context.Context, cep string) (*PartialAddress, error) {
	resp, err := s.fetch(ctx, cep)
	if err != nil {
		return nil, err
	}

	return &PartialAddress{
		Street:       resp.Street,
		Neighborhood: resp.Neighborhood,
		City:         resp.City,
		State:        resp.State,
	}, nil
}

/////////////////////////////////////////
/// ViaCEP

type viaCEPResponse struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
	// ViaCEP answers 200 with {"erro": true} (older versions "true") for
	// unknown codes.
	Erro any `json:"erro"`
}

// ViaCEPSource looks CEPs up in ViaCEP.
type ViaCEPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewViaCEPSource creates a ViaCEP source.
func NewViaCEPSource(baseURL string, client *http.Client) *ViaCEPSource {
	if baseURL == "" {
		baseURL = defaultViaCEPURL
	}

	return &ViaCEPSource{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

// Name implements PostalCodeSource.
func (s *ViaCEPSource) Name() string {
	return SourceViaCEP
}

// Lookup implements PostalCodeSource.
func (s *ViaCEPSource) Lookup(ctx context.Context, cep string) (*PartialAddress, error) {
	var resp viaCEPResponse
	if err := getJSON(ctx, s.httpClient, SourceViaCEP, s.baseURL+"/ws/"+cep+"/json/", &resp); err != nil {
		return nil, err
	}

	switch v := resp.Erro.(type) {
	case nil:
	case bool:
		if v {
			return nil, notFound(SourceViaCEP, "unknown CEP %s", cep)
		}
	default:
		return nil, notFound(SourceViaCEP, "unknown CEP %s", cep)
	}

	return &PartialAddress{
		Street:       resp.Logradouro,
		Neighborhood: resp.Bairro,
		City:         resp.Localidade,
		State:        resp.UF,
	}, nil
}
