// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"log"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
)

// GoogleMapsKeyDisplayName is the display name of the API key provisioned
// for geocoding in the Google Cloud project.
const GoogleMapsKeyDisplayName = "Mobiliza Geocoding Key"

// ResolveGoogleMapsAPIKey fills cfg.GoogleMapsAPIKey from the API Keys
// service using Application Default Credentials when it is not set yet.
// Failing to find a key is not fatal: the chain runs without Google Maps.
func ResolveGoogleMapsAPIKey(ctx context.Context, cfg *Config, projectID string) {
	if cfg.GoogleMapsAPIKey != "" {
		return
	}

	log.Println("GOOGLE_MAPS_API_KEY is not set. Attempting to retrieve via ADC...")

	key, err := apiKeyFromADC(ctx, projectID)
	if err != nil {
		log.Printf("Failed to retrieve API key via ADC: %v", err)

		return
	}

	log.Println("✅ Successfully retrieved Google Maps API Key via ADC")

	cfg.GoogleMapsAPIKey = key
}

func apiKeyFromADC(ctx context.Context, projectID string) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("finding default credentials: %w", err)
	}

	if creds.ProjectID != "" {
		projectID = creds.ProjectID
	}

	if projectID == "" {
		return "", errors.New("no project ID in credentials, use --gcp-project")
	}

	client, err := apikeys.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	it := client.ListKeys(ctx, &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", projectID),
	})

	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("listing keys: %w", err)
		}

		if key.DisplayName != GoogleMapsKeyDisplayName {
			continue
		}

		// ListKeys redacts the secret, GetKeyString returns it.
		resp, err := client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: key.Name})
		if err != nil {
			return "", fmt.Errorf("getting key string: %w", err)
		}

		if resp.KeyString == "" {
			return "", fmt.Errorf("key '%s' found but KeyString is empty", GoogleMapsKeyDisplayName)
		}

		return resp.KeyString, nil
	}

	return "", fmt.Errorf("key with display name '%s' not found in project %s", GoogleMapsKeyDisplayName, projectID)
}
