package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/crashify360/totalloss/internal/report"
	"github.com/crashify360/totalloss/internal/validate"
	"github.com/crashify360/totalloss/internal/valuation"
	"github.com/crashify360/totalloss/pkg/autograp"
)

var (
	valuateVIN     string
	valuateDetails bool
	valuateNoCache bool
	valuateJSON    bool
)

var valuateCmd = &cobra.Command{
	Use:   "valuate",
	Short: "Look up the market value of a vehicle",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("valuate"); err != nil {
			return err
		}
		if !validate.ValidVIN(valuateVIN) {
			return eris.Errorf("invalid VIN %q", valuateVIN)
		}

		var cache valuation.Cache
		if !valuateNoCache {
			st, err := initStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			cache = st
		}

		out := struct {
			Valuation *autograp.Valuation `json:"valuation"`
			Vehicle   *autograp.Vehicle   `json:"vehicle,omitempty"`
		}{}
		v, err := newValuationService(cfg, cache).Lookup(ctx, valuateVIN)
		if err != nil {
			return err
		}
		out.Valuation = v

		if valuateDetails {
			out.Vehicle, err = newAutoGrapClient(cfg).VehicleDetails(ctx, valuateVIN)
			if err != nil {
				return err
			}
		}

		if valuateJSON {
			return printJSON(cmd.OutOrStdout(), out)
		}
		return printValuation(cmd.OutOrStdout(), out.Valuation, out.Vehicle)
	},
}

func init() {
	valuateCmd.Flags().StringVar(&valuateVIN, "vin", "", "vehicle identification number")
	valuateCmd.Flags().BoolVar(&valuateDetails, "details", false, "also fetch vehicle registration details")
	valuateCmd.Flags().BoolVar(&valuateNoCache, "no-cache", false, "skip the valuation cache")
	valuateCmd.Flags().BoolVar(&valuateJSON, "json", false, "print JSON")
	_ = valuateCmd.MarkFlagRequired("vin")
	rootCmd.AddCommand(valuateCmd)
}

func printValuation(w io.Writer, v *autograp.Valuation, d *autograp.Vehicle) error {
	p := &linePrinter{w: w}
	p.line("VIN:            %s", v.VIN)
	if v.Year > 0 || v.Make != "" {
		p.line("Vehicle:        %d %s %s %s", v.Year, v.Make, v.Model, v.Variant)
	}
	p.line("Market value:   %s", report.Money(v.MarketValue))
	p.line("Trade-in value: %s", report.Money(v.TradeInValue))
	p.line("Retail value:   %s", report.Money(v.RetailValue))
	p.line("Confidence:     %s", v.Confidence)
	if v.LastUpdated != "" {
		p.line("Last updated:   %s", v.LastUpdated)
	}
	if d != nil {
		p.line("Body type:      %s", d.BodyType)
		p.line("Transmission:   %s", d.Transmission)
		p.line("Fuel type:      %s", d.FuelType)
		p.line("Registration:   %s %s", d.Registration, d.State)
	}
	return p.err
}

// linePrinter writes lines until the first error.
type linePrinter struct {
	w   io.Writer
	err error
}

func (p *linePrinter) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, err := fmt.Fprintf(p.w, format+"\n", args...)
	p.err = eris.Wrap(err, "write output")
}
