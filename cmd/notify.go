package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crashify360/totalloss/internal/model"
	"github.com/crashify360/totalloss/internal/notify"
	"github.com/crashify360/totalloss/internal/validate"
	"github.com/crashify360/totalloss/pkg/autograp"
)

var (
	notifyDecision string
	notifyFile     string
	notifyTo       []string
	notifyCc       []string
	notifyVehicle  notify.Vehicle
	notifyLossType string
	notifyPolicy   string
	notifyInfo     string
	notifyLookup   bool
	notifyDryRun   bool
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send a salvage request to salvage partners",
	Long:  "Renders the salvage request template for the loss type and emails it. Vehicle and policy details come from --decision or from flags; --file sends a JSON array of requests in bulk.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("notify"); err != nil {
			return err
		}
		n := newNotifier(cfg, notifyDryRun)
		w := cmd.OutOrStdout()

		if notifyFile != "" {
			reqs, err := readRequests(notifyFile)
			if err != nil {
				return err
			}
			return printOutcomes(w, n.SendBulk(ctx, reqs))
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return err
		}
		msg, err := n.Send(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Sent %q (%s) to %v\n", msg.Subject, msg.Template, msg.Recipients())
		return nil
	},
}

func init() {
	f := notifyCmd.Flags()
	f.StringVar(&notifyDecision, "decision", "", "stored decision to request salvage for")
	f.StringVar(&notifyFile, "file", "", "JSON array of requests to send in bulk")
	f.StringSliceVar(&notifyTo, "to", nil, "recipient address (repeatable)")
	f.StringSliceVar(&notifyCc, "cc", nil, "cc address (repeatable)")
	f.StringVar(&notifyVehicle.VIN, "vin", "", "vehicle VIN when no --decision is given")
	f.IntVar(&notifyVehicle.Year, "year", 0, "vehicle year")
	f.StringVar(&notifyVehicle.Make, "make", "", "vehicle make")
	f.StringVar(&notifyVehicle.Model, "model", "", "vehicle model")
	f.StringVar(&notifyVehicle.Variant, "variant", "", "vehicle variant")
	f.IntVar(&notifyVehicle.Odometer, "odometer", 0, "odometer reading in km")
	f.StringVar(&notifyVehicle.Location, "location", "", "vehicle location")
	f.StringVar(&notifyLossType, "loss-type", "client", "loss type when no --decision is given")
	f.StringVar(&notifyPolicy, "policy-value", "", "policy value when no --decision is given")
	f.StringVar(&notifyInfo, "info", "", "additional information for the partner")
	f.BoolVar(&notifyLookup, "lookup", false, "fill missing vehicle details from AutoGrap")
	f.BoolVar(&notifyDryRun, "dry-run", false, "log the message instead of sending it")
	rootCmd.AddCommand(notifyCmd)
}

func buildRequest(ctx context.Context) (notify.Request, error) {
	req := notify.Request{
		To:             notifyTo,
		Cc:             notifyCc,
		Vehicle:        notifyVehicle,
		LossType:       model.LossType(notifyLossType),
		AdditionalInfo: notifyInfo,
	}

	if notifyDecision != "" {
		st, err := initStore(ctx, cfg)
		if err != nil {
			return req, err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetDecision(ctx, notifyDecision)
		if err != nil {
			return req, eris.Wrapf(err, "load decision %s", notifyDecision)
		}
		applyDecision(&req, rec.Decision)
	} else {
		v, err := validate.ParseMoney(notifyPolicy)
		if err != nil {
			return req, eris.Wrap(err, "parse --policy-value")
		}
		req.PolicyValue = v
	}

	if notifyLookup {
		details, err := newAutoGrapClient(cfg).VehicleDetails(ctx, req.Vehicle.VIN)
		if err != nil {
			zap.L().Warn("vehicle lookup failed, sending without details", zap.String("vin", req.Vehicle.VIN), zap.Error(err))
		} else {
			fillVehicle(&req.Vehicle, details)
		}
	}
	return req, nil
}

// applyDecision copies the VIN, loss type and policy value of d into req.
func applyDecision(req *notify.Request, d model.Decision) {
	req.Vehicle.VIN = d.Case.VIN
	req.LossType = d.Case.LossType
	req.PolicyValue = d.Case.PolicyValue
}

// fillVehicle sets fields of v that are still empty from the AutoGrap
// details.
func fillVehicle(v *notify.Vehicle, d *autograp.Vehicle) {
	if v.Year == 0 {
		v.Year = d.Year
	}
	if v.Make == "" {
		v.Make = d.Make
	}
	if v.Model == "" {
		v.Model = d.Model
	}
	if v.Variant == "" {
		v.Variant = d.Variant
	}
}

func readRequests(path string) ([]notify.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read requests file")
	}
	var reqs []notify.Request
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, eris.Wrap(err, "parse requests file")
	}
	return reqs, nil
}

func printOutcomes(w io.Writer, outcomes []notify.Outcome) error {
	failed := 0
	for _, o := range outcomes {
		status := "sent"
		if !o.OK() {
			failed++
			status = fmt.Sprintf("failed (%s): %v", o.Class, o.Err)
		}
		if _, err := fmt.Fprintf(w, "%-4d %-17s %v  %s\n", o.Index+1, o.VIN, o.To, status); err != nil {
			return eris.Wrap(err, "write outcomes")
		}
	}
	_, err := fmt.Fprintf(w, "\n%d sent, %d failed\n", len(outcomes)-failed, failed)
	return eris.Wrap(err, "write outcomes")
}
