// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/mobilizabr/mobiliza/utils/httputils"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPostalCodeTimeout = 3 * time.Second
	DefaultGeocodeTimeout    = 10 * time.Second
	DefaultBulkDelay         = 200 * time.Millisecond
	DefaultUserAgent         = "mobiliza/unknown"
)

// Config holds provider endpoints, keys and timeouts. It is read once at
// startup and treated as immutable afterwards.
type Config struct {
	// UserAgent identifies the application to every provider
	UserAgent string `yaml:"user_agent"`

	// Providers is the resolution chain, in order
	Providers []string `yaml:"providers"`

	// PostalCodeSources is the CEP lookup order
	PostalCodeSources []string `yaml:"postal_code_sources"`

	GoogleMapsAPIKey string `yaml:"google_maps_api_key"`
	GoogleMapsURL    string `yaml:"google_maps_url"`
	NominatimURL     string `yaml:"nominatim_url"`
	BrasilAPIURL     string `yaml:"brasilapi_url"`
	ViaCEPURL        string `yaml:"viacep_url"`

	PostalCodeTimeout time.Duration `yaml:"postal_code_timeout"`
	GeocodeTimeout    time.Duration `yaml:"geocode_timeout"`
	BulkDelay         time.Duration `yaml:"bulk_delay"`

	// Enables light tracing of HTTP requests and responses
	TraceHTTP bool `yaml:"trace_http"`

	// Enables full HTTP body tracing
	TraceHTTPBody bool `yaml:"trace_http_body"`
}

// DefaultConfig returns the production provider order.
func DefaultConfig() *Config {
	return &Config{
		UserAgent:         DefaultUserAgent,
		Providers:         []string{ProviderPostalCode, ProviderGoogleMaps, ProviderNominatim},
		PostalCodeSources: []string{SourceBrasilAPIV2, SourceBrasilAPIV1, SourceViaCEP},
		PostalCodeTimeout: DefaultPostalCodeTimeout,
		GeocodeTimeout:    DefaultGeocodeTimeout,
		BulkDelay:         DefaultBulkDelay,
	}
}

// LoadConfig reads a YAML file over the defaults. An empty path only
// applies the environment. GOOGLE_MAPS_API_KEY overrides the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path) // #nosec G304 - path is provided by the operator
		if err != nil {
			return nil, fmt.Errorf("opening config: %w", err)
		}
		defer f.Close()

		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if key := os.Getenv("GOOGLE_MAPS_API_KEY"); key != "" {
		cfg.GoogleMapsAPIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// Validate checks provider names and durations.
func (c *Config) Validate() error {
	var errs []error

	known := []string{ProviderPostalCode, ProviderGoogleMaps, ProviderNominatim}
	for _, p := range c.Providers {
		if !slices.Contains(known, p) {
			errs = append(errs, fmt.Errorf("unknown provider %q", p))
		}
	}

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("at least one provider is required"))
	}

	sources := []string{SourceBrasilAPIV2, SourceBrasilAPIV1, SourceViaCEP}
	for _, s := range c.PostalCodeSources {
		if !slices.Contains(sources, s) {
			errs = append(errs, fmt.Errorf("unknown postal code source %q", s))
		}
	}

	if c.PostalCodeTimeout < 0 || c.GeocodeTimeout < 0 || c.BulkDelay < 0 {
		errs = append(errs, errors.New("durations can't be negative"))
	}

	return errors.Join(errs...)
}

func (c *Config) httpClient() *http.Client {
	var trace io.Writer
	if c.TraceHTTP || c.TraceHTTPBody {
		trace = os.Stderr
	}

	return httputils.NewClient(httputils.ClientOptions{
		UserAgent: c.UserAgent,
		Trace:     trace,
		TraceBody: c.TraceHTTPBody,
	})
}

// NewResolverFromConfig builds the provider chain described by cfg.
// Google Maps is left out, with a warning, when no API key is available.
func NewResolverFromConfig(cfg *Config, opts ...ResolverOption) *Resolver {
	client := cfg.httpClient()

	var providers []Provider

	for _, name := range cfg.Providers {
		switch name {
		case ProviderPostalCode:
			providers = append(providers, NewPostalCodeProvider(NewBrasilAPISource(cfg.BrasilAPIURL, 2, client)))
		case ProviderGoogleMaps:
			if cfg.GoogleMapsAPIKey == "" {
				log.Println("⚠️  GOOGLE_MAPS_API_KEY is not set, google_maps left out of the chain")

				continue
			}

			providers = append(providers, NewTextProvider(NewGoogleMapsGeocoder(cfg.GoogleMapsAPIKey, cfg.GoogleMapsURL, client)))
		case ProviderNominatim:
			providers = append(providers, NewTextProvider(NewNominatimGeocoder(cfg.NominatimURL, client)))
		}
	}

	base := []ResolverOption{
		WithAttemptTimeout(cfg.GeocodeTimeout),
		WithBulkDelay(cfg.BulkDelay),
	}

	return NewResolver(providers, append(base, opts...)...)
}

// NewPostalCodeLookupFromConfig builds the CEP lookup described by cfg.
func NewPostalCodeLookupFromConfig(cfg *Config) *PostalCodeLookup {
	client := cfg.httpClient()

	var sources []PostalCodeSource

	for _, name := range cfg.PostalCodeSources {
		switch name {
		case SourceBrasilAPIV2:
			sources = append(sources, NewBrasilAPISource(cfg.BrasilAPIURL, 2, client))
		case SourceBrasilAPIV1:
			sources = append(sources, NewBrasilAPISource(cfg.BrasilAPIURL, 1, client))
		case SourceViaCEP:
			sources = append(sources, NewViaCEPSource(cfg.ViaCEPURL, client))
		}
	}

	return NewPostalCodeLookup(cfg.PostalCodeTimeout, sources...)
}
