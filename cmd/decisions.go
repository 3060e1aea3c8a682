package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/crashify360/totalloss/internal/export"
	"github.com/crashify360/totalloss/internal/model"
	"github.com/crashify360/totalloss/internal/report"
	"github.com/crashify360/totalloss/internal/store"
)

var (
	decLossType  string
	decVIN       string
	decTotalLoss string
	decSince     string
	decUntil     string
	decListLimit int
	decExpLimit  int
	decOffset    int
	decJSON      bool
	decFormat    string
	decOut       string
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Query stored decisions",
}

var decisionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List decisions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := parseFilter(decLossType, decVIN, decTotalLoss, decSince, decUntil)
		if err != nil {
			return err
		}
		filter.Limit = decListLimit
		filter.Offset = decOffset

		st, err := initStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListDecisions(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if decJSON {
			return printJSON(cmd.OutOrStdout(), recs)
		}
		return printDecisionTable(cmd.OutOrStdout(), recs)
	},
}

var decisionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the report for a decision and its salvage replies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetDecision(cmd.Context(), args[0])
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				return eris.Errorf("decision %s not found", args[0])
			}
			return err
		}
		responses, err := st.ListSalvageResponses(cmd.Context(), rec.ID)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if decJSON {
			return printJSON(w, struct {
				Record    *model.DecisionRecord   `json:"record"`
				Responses []model.SalvageResponse `json:"salvage_responses"`
			}{rec, responses})
		}
		if err := report.Render(w, &rec.Decision, report.Meta{CaseID: rec.ID, EvaluatedAt: rec.CreatedAt}); err != nil {
			return err
		}
		for _, r := range responses {
			fmt.Fprintf(w, "\nSalvage reply %s from %s at %s\n", r.ID, orDash(r.Sender), r.CreatedAt.Format("2006-01-02 15:04"))
			if err := report.RenderExtraction(w, &r.Result); err != nil {
				return err
			}
		}
		return nil
	},
}

var decisionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := parseFilter(decLossType, decVIN, decTotalLoss, decSince, decUntil)
		if err != nil {
			return err
		}

		st, err := initStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.DecisionStats(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if decJSON {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		return printStats(cmd.OutOrStdout(), stats)
	},
}

var decisionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export decisions as CSV or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := parseFilter(decLossType, decVIN, decTotalLoss, decSince, decUntil)
		if err != nil {
			return err
		}
		filter.Limit = decExpLimit

		format := exportFormat(decFormat, decOut)
		if format == "xlsx" && decOut == "" {
			return eris.New("xlsx export requires --out")
		}

		st, err := initStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListDecisions(cmd.Context(), filter)
		if err != nil {
			return err
		}

		switch format {
		case "xlsx":
			if err := export.WriteXLSX(decOut, recs); err != nil {
				return err
			}
		case "csv":
			if decOut == "" {
				return export.WriteCSV(cmd.OutOrStdout(), recs)
			}
			f, err := os.Create(decOut)
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer f.Close() //nolint:errcheck
			if err := export.WriteCSV(f, recs); err != nil {
				return err
			}
		default:
			return eris.Errorf("unsupported export format %q", format)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d decision(s) to %s\n", len(recs), decOut)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{decisionsListCmd, decisionsStatsCmd, decisionsExportCmd} {
		c.Flags().StringVar(&decLossType, "loss-type", "", "filter by loss type")
		c.Flags().StringVar(&decVIN, "vin", "", "filter by VIN")
		c.Flags().StringVar(&decTotalLoss, "total-loss", "", "filter by outcome (true or false)")
		c.Flags().StringVar(&decSince, "since", "", "only decisions on or after this date (YYYY-MM-DD)")
		c.Flags().StringVar(&decUntil, "until", "", "only decisions before this date (YYYY-MM-DD)")
	}
	for _, c := range []*cobra.Command{decisionsListCmd, decisionsShowCmd, decisionsStatsCmd} {
		c.Flags().BoolVar(&decJSON, "json", false, "print JSON")
	}
	decisionsListCmd.Flags().IntVar(&decListLimit, "limit", 20, "max decisions to list")
	decisionsListCmd.Flags().IntVar(&decOffset, "offset", 0, "decisions to skip")
	decisionsExportCmd.Flags().IntVar(&decExpLimit, "limit", 10000, "max decisions to export")
	decisionsExportCmd.Flags().StringVar(&decFormat, "format", "", "csv or xlsx (default from --out extension, else csv)")
	decisionsExportCmd.Flags().StringVar(&decOut, "out", "", "output path (csv defaults to stdout)")

	decisionsCmd.AddCommand(decisionsListCmd, decisionsShowCmd, decisionsStatsCmd, decisionsExportCmd)
	rootCmd.AddCommand(decisionsCmd)
}

// parseFilter builds a DecisionFilter from flag values. Empty values are
// ignored.
func parseFilter(lossType, vin, totalLoss, since, until string) (store.DecisionFilter, error) {
	var f store.DecisionFilter

	if lossType != "" {
		lt := model.LossType(strings.ToLower(lossType))
		if !lt.Valid() {
			return f, eris.Errorf("invalid loss type %q", lossType)
		}
		f.LossType = lt
	}
	f.VIN = strings.TrimSpace(vin)

	if totalLoss != "" {
		b, err := strconv.ParseBool(totalLoss)
		if err != nil {
			return f, eris.Errorf("invalid total-loss value %q", totalLoss)
		}
		f.TotalLoss = &b
	}

	var err error
	if f.Since, err = parseDate(since); err != nil {
		return f, err
	}
	if f.Until, err = parseDate(until); err != nil {
		return f, err
	}
	return f, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("invalid date %q (want YYYY-MM-DD)", s)
}

func exportFormat(format, out string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	if strings.EqualFold(filepath.Ext(out), ".xlsx") {
		return "xlsx"
	}
	return "csv"
}

func printDecisionTable(w io.Writer, recs []model.DecisionRecord) error {
	p := &linePrinter{w: w}
	if len(recs) == 0 {
		p.line("No decisions found.")
		return p.err
	}
	p.line("%-28s %-17s %-11s %-10s %14s %14s  %s", "ID", "VIN", "LOSS TYPE", "DECISION", "REPAIR", "THRESHOLD", "CREATED")
	for _, r := range recs {
		d := r.Decision
		p.line("%-28s %-17s %-11s %-10s %14s %14s  %s",
			r.ID, d.Case.VIN, d.Case.LossType, d.Label(),
			report.Money(d.RepairQuote), report.Money(d.Threshold),
			r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return p.err
}

func printStats(w io.Writer, s *model.DecisionStats) error {
	p := &linePrinter{w: w}
	p.line("Total decisions:  %d", s.Total)
	p.line("Total losses:     %d (%.1f%%)", s.TotalLosses, s.TotalLossPercent)
	p.line("Repairable:       %d", s.Repairable)
	if s.Total > 0 {
		p.line("Avg policy value: %s", report.Money(s.AvgPolicyValue))
		p.line("Avg repair quote: %s", report.Money(s.AvgRepairQuote))
	}
	keys := make([]string, 0, len(s.ByLossType))
	for lt := range s.ByLossType {
		keys = append(keys, string(lt))
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.line("  %-15s %d", model.LossType(k).DisplayName()+":", s.ByLossType[model.LossType(k)])
	}
	if s.FirstDecisionAt != nil && s.LastDecisionAt != nil {
		p.line("Period:           %s to %s", s.FirstDecisionAt.Format("2006-01-02"), s.LastDecisionAt.Format("2006-01-02"))
	}
	return p.err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
