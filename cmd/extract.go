package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crashify360/totalloss/internal/model"
	"github.com/crashify360/totalloss/internal/report"
	"github.com/crashify360/totalloss/internal/salvage"
	"github.com/crashify360/totalloss/internal/validate"
)

// maxReplyLen bounds the reply text accepted for extraction.
const maxReplyLen = 50000

var (
	extractFile     string
	extractPolicy   string
	extractDecision string
	extractSender   string
	extractSave     bool
	extractSections bool
	extractJSON     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract the salvage offer from a partner reply",
	Long:  "Reads a salvage partner reply from --file or stdin and extracts the offered amount. With --decision the policy value is taken from the stored decision and --save attaches the parsed reply to it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		text, err := readReply(extractFile, cmd.InOrStdin())
		if err != nil {
			return err
		}

		if extractSave && extractDecision == "" {
			return eris.New("--save requires --decision")
		}
		env, err := initEnv(ctx, cfg, extractDecision != "")
		if err != nil {
			return err
		}
		defer env.Close()

		policy, err := resolvePolicyValue(ctx, env, extractPolicy, extractDecision)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if extractSections {
			offers := env.Extractor.ExtractSections(text, policy)
			if extractJSON {
				return printJSON(w, offers)
			}
			return printSections(w, offers)
		}

		result := env.Extractor.Extract(text, policy)
		logExtraction(extractDecision, &result)

		if extractSave {
			resp := &model.SalvageResponse{
				DecisionID: extractDecision,
				Sender:     extractSender,
				Text:       text,
				Result:     result,
			}
			if err := env.Store.SaveSalvageResponse(ctx, resp); err != nil {
				return err
			}
			fmt.Fprintf(w, "Saved salvage response %s for decision %s\n", resp.ID, extractDecision)
		}

		if extractJSON {
			return printJSON(w, result)
		}
		return report.RenderExtraction(w, &result)
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractFile, "file", "", "reply text file (default stdin)")
	f.StringVar(&extractPolicy, "policy-value", "", "policy value used for plausibility warnings")
	f.StringVar(&extractDecision, "decision", "", "decision ID the reply belongs to")
	f.StringVar(&extractSender, "sender", "", "reply sender address")
	f.BoolVar(&extractSave, "save", false, "attach the parsed reply to --decision")
	f.BoolVar(&extractSections, "sections", false, "extract one offer per section of a multi-offer reply")
	f.BoolVar(&extractJSON, "json", false, "print JSON")
	rootCmd.AddCommand(extractCmd)
}

func readReply(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(io.LimitReader(stdin, maxReplyLen*4))
	}
	if err != nil {
		return "", eris.Wrap(err, "read reply")
	}
	text := validate.Sanitize(string(data), maxReplyLen)
	if text == "" {
		return "", eris.New("reply text is empty")
	}
	return text, nil
}

// resolvePolicyValue parses raw, falling back to the stored decision's
// policy value. A decisionID must name a stored decision even when raw is
// set. Zero disables the policy checks.
func resolvePolicyValue(ctx context.Context, env *appEnv, raw, decisionID string) (decimal.Decimal, error) {
	policy := decimal.Zero
	if decisionID != "" {
		rec, err := env.Store.GetDecision(ctx, decisionID)
		if err != nil {
			return decimal.Zero, eris.Wrapf(err, "load decision %s", decisionID)
		}
		policy = rec.Decision.Case.PolicyValue
	}
	if strings.TrimSpace(raw) != "" {
		v, err := validate.ParseMoney(raw)
		if err != nil {
			return decimal.Zero, eris.Wrap(err, "parse --policy-value")
		}
		return v, nil
	}
	return policy, nil
}

func logExtraction(decisionID string, r *model.ExtractionResult) {
	fields := []zap.Field{
		zap.String("decision_id", decisionID),
		zap.Int("candidates", len(r.Candidates)),
		zap.Strings("warnings", r.Warnings),
	}
	if r.Found() {
		fields = append(fields,
			zap.String("best_value", r.BestValue.Decimal.StringFixed(2)),
			zap.Float64("confidence", r.BestConfidence),
			zap.String("method", string(r.BestMethod)),
		)
	}
	zap.L().Info("salvage response parsed", fields...)
}

func printSections(w io.Writer, offers []salvage.SectionOffer) error {
	if len(offers) == 0 {
		_, err := fmt.Fprintln(w, "No sections long enough to contain an offer.")
		return eris.Wrap(err, "write sections")
	}
	for _, o := range offers {
		if _, err := fmt.Fprintf(w, "\nSection %d: %s\n", o.Section, o.Snippet); err != nil {
			return eris.Wrap(err, "write sections")
		}
		if err := report.RenderExtraction(w, &o.Result); err != nil {
			return err
		}
	}
	return nil
}
