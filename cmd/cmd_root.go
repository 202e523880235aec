// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/mobilizabr/mobiliza/geocoding"
	"github.com/mobilizabr/mobiliza/records"
	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

type rootOptions struct {
	ConfigPath          string
	DbPath              string
	GCPProject          string
	EnableHTTPTrace     bool
	EnableHTTPBodyTrace bool
}

var options = &rootOptions{}

var rootCmd = &cobra.Command{
	Use:   "mobiliza",
	Short: "address resolution for Brazilian registration forms",
	Long: `
mobiliza turns a CEP and a street address into coordinates, falling back
across postal code data and free text geocoders, and keeps the coordinates
of registered records up to date.
`,
	SilenceUsage: true,
}

var Version = "dev"

func Execute(version string) {
	Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the command line overrides.
func loadConfig() (*geocoding.Config, error) {
	cfg, err := geocoding.LoadConfig(options.ConfigPath)
	if err != nil {
		return nil, err
	}

	if options.EnableHTTPTrace {
		cfg.TraceHTTP = true
	}

	if options.EnableHTTPBodyTrace {
		cfg.TraceHTTPBody = true
	}

	if cfg.UserAgent == geocoding.DefaultUserAgent {
		cfg.UserAgent = "mobiliza/" + Version
	}

	return cfg, nil
}

// resolveGoogleMapsAPIKey is replaced in tests.
var resolveGoogleMapsAPIKey = geocoding.ResolveGoogleMapsAPIKey

// newResolver builds the provider chain, looking the Google Maps key up via
// ADC first when that provider is enabled without one.
func newResolver(ctx context.Context, cfg *geocoding.Config, opts ...geocoding.ResolverOption) *geocoding.Resolver {
	if slices.Contains(cfg.Providers, geocoding.ProviderGoogleMaps) {
		resolveGoogleMapsAPIKey(ctx, cfg, options.GCPProject)
	}

	return geocoding.NewResolverFromConfig(cfg, opts...)
}

// openRepository opens the DuckDB file under --db-path and makes sure the
// schema exists.
func openRepository() (records.Repository, func(), error) {
	if err := os.MkdirAll(options.DbPath, 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("duckdb", filepath.Join(options.DbPath, "mobiliza.duckdb"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	repo := records.NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		db.Close()

		return nil, nil, fmt.Errorf("creating records schema: %w", err)
	}

	return repo, func() { db.Close() }, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&options.ConfigPath,
		"config",
		"",
		"YAML file with provider endpoints, keys and timeouts",
	)
	rootCmd.PersistentFlags().StringVar(
		&options.DbPath,
		"db-path",
		"db",
		"Directory where the records database is stored",
	)
	rootCmd.PersistentFlags().StringVar(
		&options.GCPProject,
		"gcp-project",
		"",
		"Google Cloud project holding the Maps API key, used when GOOGLE_MAPS_API_KEY is not set",
	)
	rootCmd.PersistentFlags().BoolVar(
		&options.EnableHTTPTrace,
		"trace-http",
		false,
		"Display HTTP requests-responses",
	)
	rootCmd.PersistentFlags().BoolVar(
		&options.EnableHTTPBodyTrace,
		"trace-http-body",
		false,
		"Display HTTP requests-responses bodies",
	)
}
