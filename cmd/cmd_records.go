// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"

	"github.com/mobilizabr/mobiliza/geocoding"
	"github.com/mobilizabr/mobiliza/records"
	"github.com/mobilizabr/mobiliza/utils/textutils"
	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage registered records",
}

var recordsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Imports records from a JSON seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeDB, err := openRepository()
		if err != nil {
			return err
		}
		defer closeDB()

		n, err := records.ImportJSON(cmd.Context(), repo, args[0])
		if err != nil {
			return fmt.Errorf("importing %s: %w", args[0], err)
		}

		log.Printf("✅ Imported %s records from %s", textutils.FormatInt(int64(n)), args[0])

		return nil
	},
}

var recordsExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Exports every record to a JSON seed file",
	Long:  `Exports all records to a local JSON file sorted by id to minimize diffs when checking into version control.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeDB, err := openRepository()
		if err != nil {
			return err
		}
		defer closeDB()

		n, err := records.ExportJSON(cmd.Context(), repo, args[0])
		if err != nil {
			return fmt.Errorf("exporting %s: %w", args[0], err)
		}

		log.Printf("✅ Exported %s records to %s", textutils.FormatInt(int64(n)), args[0])

		return nil
	},
}

var recordsFilter struct {
	Kind string
	City string
}

func buildFilter() (records.Filter, error) {
	f := records.Filter{City: recordsFilter.City}

	if recordsFilter.Kind != "" {
		kind, err := records.ParseKind(recordsFilter.Kind)
		if err != nil {
			return f, err
		}

		f.Kind = kind
	}

	return f, nil
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, err := buildFilter()
		if err != nil {
			return err
		}

		repo, closeDB, err := openRepository()
		if err != nil {
			return err
		}
		defer closeDB()

		recs, err := repo.List(cmd.Context(), f)
		if err != nil {
			return err
		}

		for _, r := range recs {
			point := "-"
			if r.Point != nil {
				point = r.Point.String()
			}

			fmt.Printf("%-36s %-12s %-30s %-40s %s\n", r.ID, r.Kind, r.Name, geocoding.BuildQuery(r.Address, geocoding.QueryFull), point)
		}

		return nil
	},
}

var regeocodeProvider string

var recordsRegeocodeCmd = &cobra.Command{
	Use:   "regeocode",
	Short: "Refreshes record coordinates using a single provider",
	Long: `Re-resolves the coordinates of every matching record using only the
provider named by --provider, pausing between calls to respect its rate
limits. A failing record is counted and never aborts the run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := buildFilter()
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		repo, closeDB, err := openRepository()
		if err != nil {
			return err
		}
		defer closeDB()

		recs, err := repo.List(ctx, f)
		if err != nil {
			return fmt.Errorf("listing records: %w", err)
		}

		resolver := newResolver(ctx, cfg, geocoding.WithProgressBar(true))

		summary, err := resolver.BulkReresolve(ctx, records.ToGeocodingRecords(recs), regeocodeProvider, repo)

		fmt.Printf("📊 %s records: %s refreshed, %s failed, %s skipped\n",
			textutils.FormatInt(int64(summary.Total)),
			textutils.FormatInt(int64(summary.Refreshed)),
			textutils.FormatInt(int64(summary.Failed)),
			textutils.FormatInt(int64(summary.Skipped)),
		)

		return err
	},
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsImportCmd)
	recordsCmd.AddCommand(recordsExportCmd)
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsRegeocodeCmd)

	for _, c := range []*cobra.Command{recordsListCmd, recordsRegeocodeCmd} {
		c.Flags().StringVar(&recordsFilter.Kind, "kind", "", "Only records of this kind (coordinator, leader, team, organization, supporter)")
		c.Flags().StringVar(&recordsFilter.City, "city", "", "Only records in this city")
	}

	recordsRegeocodeCmd.Flags().StringVar(
		&regeocodeProvider,
		"provider",
		"",
		"Provider to use: cep, google_maps or nominatim",
	)
	_ = recordsRegeocodeCmd.MarkFlagRequired("provider")
}
