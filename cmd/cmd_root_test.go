// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mobilizabr/mobiliza/geocoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubKeyDiscovery(t *testing.T) *int {
	t.Helper()

	calls := 0
	orig := resolveGoogleMapsAPIKey
	resolveGoogleMapsAPIKey = func(_ context.Context, cfg *geocoding.Config, _ string) {
		calls++
		cfg.GoogleMapsAPIKey = "discovered"
	}

	t.Cleanup(func() { resolveGoogleMapsAPIKey = orig })

	return &calls
}

func withConfigFile(t *testing.T, content string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mobiliza.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	orig := *options
	options.ConfigPath = path

	t.Cleanup(func() { *options = orig })
}

func TestLoadConfigDoesNotDiscoverKey(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "")
	calls := stubKeyDiscovery(t)
	withConfigFile(t, "providers: [cep, google_maps, nominatim]\n")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Zero(t, *calls)
	assert.Empty(t, cfg.GoogleMapsAPIKey)
}

func TestNewResolverDiscoversKey(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "")
	calls := stubKeyDiscovery(t)
	withConfigFile(t, "providers: [cep, google_maps, nominatim]\n")

	cfg, err := loadConfig()
	require.NoError(t, err)

	r := newResolver(context.Background(), cfg)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, []string{geocoding.ProviderPostalCode, geocoding.ProviderGoogleMaps, geocoding.ProviderNominatim}, r.Providers())
}

func TestNewResolverSkipsDiscoveryWithoutGoogle(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "")
	calls := stubKeyDiscovery(t)
	withConfigFile(t, "providers: [cep, nominatim]\n")

	cfg, err := loadConfig()
	require.NoError(t, err)

	r := newResolver(context.Background(), cfg)
	assert.Zero(t, *calls)
	assert.Equal(t, []string{geocoding.ProviderPostalCode, geocoding.ProviderNominatim}, r.Providers())
}
