// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mobilizabr/mobiliza/geocoding"
	"github.com/spf13/cobra"
)

var cepCmd = &cobra.Command{
	Use:   "cep <code>",
	Short: "Looks up the address registered for a CEP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		addr, err := geocoding.NewPostalCodeLookupFromConfig(cfg).Lookup(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if addr == nil {
			fmt.Fprintln(os.Stderr, "❌ CEP not found, enter the address manually")

			return errors.New("cep not found")
		}

		return printJSON(addr)
	},
}

var geocodeAddress geocoding.Address

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolves an address into coordinates",
	Long: `Resolves an address into coordinates using the configured provider chain.
When only --cep and --number are given, the street, neighborhood, city and
state are prefilled from the CEP lookup.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		addr := geocodeAddress
		if addr.PostalCode != "" && addr.Street == "" {
			partial, err := geocoding.NewPostalCodeLookupFromConfig(cfg).Lookup(ctx, addr.PostalCode)
			if err != nil {
				return err
			}

			if partial != nil {
				addr = partial.WithNumber(addr.Number)
			}
		}

		res, err := newResolver(ctx, cfg).Resolve(ctx, addr)
		if err != nil {
			return err
		}

		if !res.OK() {
			fmt.Fprintln(os.Stderr, "❌", geocoding.UserMessage)
		}

		if err := printJSON(res); err != nil {
			return err
		}

		if !res.OK() {
			return fmt.Errorf("geocoding %s: %s", res.Outcome, res.Reason)
		}

		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(cepCmd)
	rootCmd.AddCommand(geocodeCmd)

	flags := geocodeCmd.Flags()
	flags.StringVar(&geocodeAddress.PostalCode, "cep", "", "Postal code (CEP)")
	flags.StringVar(&geocodeAddress.Street, "street", "", "Street name")
	flags.StringVar(&geocodeAddress.Number, "number", "", "House number")
	flags.StringVar(&geocodeAddress.Neighborhood, "neighborhood", "", "Neighborhood (bairro)")
	flags.StringVar(&geocodeAddress.City, "city", "", "City")
	flags.StringVar(&geocodeAddress.State, "state", "", "State abbreviation, e.g. SP")
}
