// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mobilizabr/mobiliza/spatial"
	"github.com/schollz/progressbar/v3"
)

// Fields written back onto a record by BulkReresolve.
const (
	FieldPoint             = "point"
	FieldGeocodingProvider = "geocoding_provider"
)

// Fields is a set of column updates for a stored record.
type Fields map[string]any

// RecordUpdater persists field updates on a stored record. It is the data
// access layer of whoever owns the records.
type RecordUpdater interface {
	Update(ctx context.Context, id string, fields Fields) error
}

// Record is a stored entity carrying an address.
type Record struct {
	ID      string
	Address Address
	Point   *spatial.Point
}

// BulkSummary counts what a bulk run did. Skipped records are not part of
// Refreshed or Failed.
type BulkSummary struct {
	Total     int `json:"total"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ErrUnknownProvider is returned when a bulk run names a provider that is
// not part of the chain.
type ErrUnknownProvider struct {
	Name      string
	Available []string
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("unknown provider %q (available: %v)", e.Name, e.Available)
}

// BulkReresolve refreshes the coordinates of records using only the named
// provider. Records are processed one at a time with the configured delay
// between provider calls. A failing record is counted and never aborts the
// run. Records without street or city are skipped. When ctx is done the run
// stops between records and returns the partial summary with ctx.Err().
func (r *Resolver) BulkReresolve(ctx context.Context, records []Record, providerName string, updater RecordUpdater) (BulkSummary, error) {
	summary := BulkSummary{Total: len(records)}

	p, ok := r.Provider(providerName)
	if !ok {
		return summary, &ErrUnknownProvider{Name: providerName, Available: r.Providers()}
	}

	var bar *progressbar.ProgressBar
	if r.progress && isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(records),
			progressbar.OptionSetDescription("Geocoding with "+providerName),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	chain := []Provider{p}
	called := false

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if bar != nil {
			_ = bar.Add(1)
		}

		if !rec.Address.Usable() {
			summary.Skipped++

			continue
		}

		if called && r.bulkDelay > 0 {
			if err := sleep(ctx, r.bulkDelay); err != nil {
				return summary, err
			}
		}

		called = true

		if err := r.refresh(ctx, rec, chain, updater); err != nil {
			summary.Failed++

			if bar == nil {
				log.Printf("[%d/%d] %s failed: %v", i+1, len(records), rec.ID, err)
			}

			continue
		}

		summary.Refreshed++
	}

	log.Printf(
		"Bulk geocoding with %s completed - %d refreshed, %d failed, %d skipped",
		providerName,
		summary.Refreshed,
		summary.Failed,
		summary.Skipped,
	)

	return summary, nil
}

func (r *Resolver) refresh(ctx context.Context, rec Record, chain []Provider, updater RecordUpdater) error {
	res, err := r.resolve(ctx, rec.Address, chain)
	if err != nil {
		return err
	}

	if !res.OK() {
		return fmt.Errorf("%s: %s", res.Outcome, res.Reason)
	}

	if rec.Point != nil {
		if moved := rec.Point.HaversineDistance(res.Point); moved > 1000 {
			log.Printf("📍 %s moved %.0fm with %s", rec.ID, moved, res.Provider)
		}
	}

	return updater.Update(ctx, rec.ID, Fields{
		FieldPoint:             *res.Point,
		FieldGeocodingProvider: res.Provider,
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
