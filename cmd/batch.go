package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crashify360/totalloss/internal/intake"
	"github.com/crashify360/totalloss/internal/model"
	"github.com/crashify360/totalloss/internal/report"
)

var (
	batchFile string
	batchSave bool
	batchJSON bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate every case in a CSV, XLSX or JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}
		rows, err := intake.ReadFile(batchFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, cfg, batchSave)
		if err != nil {
			return err
		}
		defer env.Close()

		sum := processBatch(ctx, env, rows, batchSave)
		if batchJSON {
			return printJSON(cmd.OutOrStdout(), sum)
		}
		return printBatch(cmd.OutOrStdout(), sum)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "batch file (.csv, .xlsx or .json)")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "save decisions to the store")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print JSON instead of a table")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

// batchLine is the outcome of one input row.
type batchLine struct {
	Line     int             `json:"line"`
	VIN      string          `json:"vin"`
	ID       string          `json:"id,omitempty"`
	Decision *model.Decision `json:"decision,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// OK reports whether the row produced a decision.
func (l batchLine) OK() bool {
	return l.Decision != nil && len(l.Errors) == 0
}

type batchSummary struct {
	Total       int         `json:"total"`
	TotalLosses int         `json:"total_losses"`
	Repairable  int         `json:"repairable"`
	Invalid     int         `json:"invalid"`
	Saved       int         `json:"saved"`
	Lines       []batchLine `json:"lines"`
}

// processBatch validates every row, evaluates the valid ones in parallel
// and optionally saves the decisions in one bulk write. A bad row never
// stops the batch.
func processBatch(ctx context.Context, env *appEnv, rows []intake.Row, save bool) *batchSummary {
	sum := &batchSummary{Total: len(rows), Lines: make([]batchLine, len(rows))}

	var (
		cases []model.Case
		index []int
	)
	for i, row := range rows {
		line := batchLine{Line: row.Line, VIN: strings.ToUpper(strings.TrimSpace(row.Case.VIN))}
		c, res := env.Validator.ValidateCase(row.Case)
		for _, w := range res.Warnings {
			line.Warnings = append(line.Warnings, w.String())
		}
		if !res.Valid() {
			for _, e := range res.Errors {
				line.Errors = append(line.Errors, e.String())
			}
		} else {
			cases = append(cases, c)
			index = append(index, i)
		}
		sum.Lines[i] = line
	}

	var (
		decided []*model.Decision
		lines   []*batchLine
	)
	for _, r := range env.Evaluator.EvaluateBatch(cases) {
		line := &sum.Lines[index[r.Index]]
		if !r.OK() {
			line.Errors = append(line.Errors, r.Err.Error())
			continue
		}
		line.Decision = r.Decision
		decided = append(decided, r.Decision)
		lines = append(lines, line)
	}

	if save && env.Store != nil && len(decided) > 0 {
		recs, err := env.Store.SaveDecisions(ctx, decided)
		if err != nil {
			msg := eris.Wrap(err, "save decisions").Error()
			for _, line := range lines {
				line.Errors = append(line.Errors, msg)
			}
		} else {
			for i, line := range lines {
				line.ID = recs[i].ID
			}
			sum.Saved = len(recs)
		}
	}
	for _, line := range lines {
		logDecision(&evaluation{ID: line.ID, Decision: line.Decision})
	}

	for _, l := range sum.Lines {
		switch {
		case l.Decision == nil:
			sum.Invalid++
		case l.Decision.IsTotalLoss:
			sum.TotalLosses++
		default:
			sum.Repairable++
		}
	}

	zap.L().Info("batch complete",
		zap.Int("total", sum.Total),
		zap.Int("total_losses", sum.TotalLosses),
		zap.Int("repairable", sum.Repairable),
		zap.Int("invalid", sum.Invalid),
		zap.Int("saved", sum.Saved),
	)
	return sum
}

func printBatch(w io.Writer, sum *batchSummary) error {
	for _, l := range sum.Lines {
		var err error
		switch {
		case l.OK():
			d := l.Decision
			_, err = fmt.Fprintf(w, "row %-4d %-17s  %-10s  repair %s vs threshold %s  %s\n",
				l.Line, l.VIN, d.Label(), report.Money(d.RepairQuote), report.Money(d.Threshold), l.ID)
		case l.Decision != nil:
			_, err = fmt.Fprintf(w, "row %-4d %-17s  %-10s  %s\n", l.Line, l.VIN, l.Decision.Label(), strings.Join(l.Errors, "; "))
		default:
			_, err = fmt.Fprintf(w, "row %-4d %-17s  %-10s  %s\n", l.Line, l.VIN, "INVALID", strings.Join(l.Errors, "; "))
		}
		if err != nil {
			return eris.Wrap(err, "write batch line")
		}
	}
	_, err := fmt.Fprintf(w, "\nProcessed %d case(s): %d total loss, %d repairable, %d invalid, %d saved\n",
		sum.Total, sum.TotalLosses, sum.Repairable, sum.Invalid, sum.Saved)
	return eris.Wrap(err, "write batch summary")
}
