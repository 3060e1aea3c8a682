package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crashify360/totalloss/internal/model"
	"github.com/crashify360/totalloss/internal/report"
	"github.com/crashify360/totalloss/internal/validate"
)

var (
	evalRaw     validate.RawCase
	evalPrefill bool
	evalSave    bool
	evalJSON    bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a single vehicle for total loss",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("evaluate"); err != nil {
			return err
		}
		env, err := initEnv(ctx, cfg, evalSave || evalPrefill)
		if err != nil {
			return err
		}
		defer env.Close()

		raw := evalRaw
		if evalPrefill {
			filled, err := newValuationService(cfg, env.Store).Prefill(ctx, &raw)
			if err != nil {
				return err
			}
			if filled {
				fmt.Fprintf(cmd.OutOrStdout(), "Policy value pre-filled from market value: %s\n", raw.PolicyValue)
			}
		}

		ev, err := evaluateRaw(ctx, env, raw, evalSave)
		if err != nil {
			return err
		}
		return printEvaluation(cmd.OutOrStdout(), ev, evalJSON)
	},
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evalRaw.VIN, "vin", "", "17-character vehicle identification number")
	f.StringVar(&evalRaw.PolicyType, "policy-type", "comprehensive", "policy type")
	f.StringVar(&evalRaw.LossType, "loss-type", "client", "loss type (client or third_party)")
	f.StringVar(&evalRaw.PolicyValue, "policy-value", "", "insured policy value")
	f.StringVar(&evalRaw.SalvageValue, "salvage-value", "0", "salvage value")
	f.StringVar(&evalRaw.RepairQuote, "repair-quote", "", "repair quote")
	f.StringVar(&evalRaw.OwnerEmail, "email", "", "owner email (optional)")
	f.StringVar(&evalRaw.OwnerPhone, "phone", "", "owner phone (optional)")
	f.BoolVar(&evalPrefill, "prefill", false, "fill an empty policy value from the AutoGrap market value")
	f.BoolVar(&evalSave, "save", false, "save the decision to the store")
	f.BoolVar(&evalJSON, "json", false, "print JSON instead of the report")
	_ = evaluateCmd.MarkFlagRequired("vin")
	_ = evaluateCmd.MarkFlagRequired("repair-quote")
	rootCmd.AddCommand(evaluateCmd)
}

// evaluation is the outcome of validating, evaluating and optionally
// saving one case.
type evaluation struct {
	ID        string                `json:"id,omitempty"`
	CreatedAt *time.Time            `json:"created_at,omitempty"`
	Decision  *model.Decision       `json:"decision"`
	Warnings  []validate.FieldError `json:"warnings,omitempty"`
}

// validationError carries the field errors of a rejected case.
type validationError struct {
	res validate.Result
}

func (e *validationError) Error() string {
	return e.res.Err().Error()
}

// evaluateRaw validates raw, evaluates it and saves the decision when save
// is set. Validation failures return a *validationError.
func evaluateRaw(ctx context.Context, env *appEnv, raw validate.RawCase, save bool) (*evaluation, error) {
	c, res := env.Validator.ValidateCase(raw)
	if !res.Valid() {
		return nil, &validationError{res: res}
	}

	d, err := env.Evaluator.Evaluate(c)
	if err != nil {
		return nil, eris.Wrap(err, "evaluate case")
	}
	ev := &evaluation{Decision: d, Warnings: res.Warnings}

	if save {
		if env.Store == nil {
			return nil, eris.New("evaluate: no store configured")
		}
		rec, err := env.Store.SaveDecision(ctx, d)
		if err != nil {
			return nil, eris.Wrap(err, "save decision")
		}
		ev.ID = rec.ID
		ev.CreatedAt = &rec.CreatedAt
	}

	logDecision(ev)
	return ev, nil
}

func logDecision(ev *evaluation) {
	d := ev.Decision
	zap.L().Info("decision made",
		zap.String("id", ev.ID),
		zap.String("vin", d.Case.VIN),
		zap.String("loss_type", string(d.Case.LossType)),
		zap.String("threshold", d.Threshold.StringFixed(2)),
		zap.String("repair_quote", d.RepairQuote.StringFixed(2)),
		zap.Bool("total_loss", d.IsTotalLoss),
	)
}

func printEvaluation(w io.Writer, ev *evaluation, asJSON bool) error {
	if asJSON {
		return printJSON(w, ev)
	}
	for _, warn := range ev.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	meta := report.Meta{CaseID: ev.ID, EvaluatedAt: time.Now()}
	if ev.CreatedAt != nil {
		meta.EvaluatedAt = *ev.CreatedAt
	}
	return report.Render(w, ev.Decision, meta)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}
