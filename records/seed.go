// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SeedData represents the JSON seed file format.
type SeedData struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
	Records     []*Record `json:"records"`
}

// ExportJSON exports all records to a JSON file.
func ExportJSON(ctx context.Context, repo Repository, filepath string) (int, error) {
	recs, err := repo.List(ctx, Filter{})
	if err != nil {
		return 0, fmt.Errorf("listing records: %w", err)
	}

	seed := &SeedData{
		Version:     "1.0",
		LastUpdated: time.Now(),
		Records:     recs,
	}

	data, err := json.MarshalIndent(seed, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling JSON: %w", err)
	}

	err = os.WriteFile(filepath, data, 0o600)
	if err != nil {
		return 0, fmt.Errorf("writing file: %w", err)
	}

	return len(recs), nil
}

// ImportJSON imports records from a JSON file. Records without an id get
// a new one.
func ImportJSON(ctx context.Context, repo Repository, filepath string) (int, error) {
	data, err := os.ReadFile(filepath) // #nosec G304 - filepath is provided by admin
	if err != nil {
		return 0, fmt.Errorf("reading file: %w", err)
	}

	var seed SeedData
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parsing JSON: %w", err)
	}

	imported := 0

	for _, rec := range seed.Records {
		if err := repo.Save(ctx, rec); err != nil {
			return imported, fmt.Errorf("saving record %q: %w", rec.Name, err)
		}

		imported++
	}

	return imported, nil
}

// SeedIfEmpty seeds the database from a JSON file if no records exist.
func SeedIfEmpty(ctx context.Context, repo Repository, filepath string) (bool, int, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("counting records: %w", err)
	}

	if count > 0 {
		return false, count, nil
	}
	// Database is empty, try to seed
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		// No seed file exists, that's okay
		return false, 0, nil
	}

	imported, err := ImportJSON(ctx, repo, filepath)
	if err != nil {
		return false, 0, err
	}

	return true, imported, nil
}
