// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"

	"github.com/mobilizabr/mobiliza/geocoding"
	"github.com/mobilizabr/mobiliza/records"
	"github.com/spf13/cobra"
)

var serveOptions struct {
	Addr     string
	SeedFile string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the address resolution API (local only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		repo, closeDB, err := openRepository()
		if err != nil {
			return err
		}
		defer closeDB()

		if serveOptions.SeedFile != "" {
			seeded, n, err := records.SeedIfEmpty(ctx, repo, serveOptions.SeedFile)
			if err != nil {
				return fmt.Errorf("seeding records: %w", err)
			}

			if seeded {
				log.Printf("🌱 Seeded %d records from %s", n, serveOptions.SeedFile)
			}
		}

		server := records.NewServer(
			repo,
			newResolver(ctx, cfg),
			geocoding.NewPostalCodeLookupFromConfig(cfg),
		)

		fmt.Println("🗺️  Address resolution server starting...")
		fmt.Printf("📍 Listening on http://%s\n", serveOptions.Addr)

		return server.Run(serveOptions.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveOptions.Addr, "addr", "localhost:8080", "Listen address")
	serveCmd.Flags().StringVar(&serveOptions.SeedFile, "seed", "", "JSON seed file loaded when the database is empty")
}
