// Package export writes stored decisions as CSV or XLSX.
package export

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"

	"github.com/crashify360/totalloss/internal/model"
)

// Header is the column order of every export.
var Header = []string{
	"id",
	"created_at",
	"vin",
	"loss_type",
	"policy_type",
	"policy_value",
	"salvage_value",
	"repair_quote",
	"rate",
	"threshold",
	"net_value",
	"threshold_percentage",
	"decision_margin",
	"decision",
}

// money columns are written as numbers in XLSX.
var moneyColumns = map[int]bool{5: true, 6: true, 7: true, 9: true, 10: true, 12: true}

// Row returns the export columns for r.
func Row(r model.DecisionRecord) []string {
	d := r.Decision
	netValue := ""
	if d.NetValue.Valid {
		netValue = d.NetValue.Decimal.StringFixed(2)
	}
	pct := ""
	if d.ThresholdPercentage.Defined {
		pct = d.ThresholdPercentage.Value.StringFixed(2)
	}
	return []string{
		r.ID,
		r.CreatedAt.UTC().Format(time.RFC3339),
		d.Case.VIN,
		string(d.Case.LossType),
		string(d.Case.PolicyType),
		d.Case.PolicyValue.StringFixed(2),
		d.Case.SalvageValue.StringFixed(2),
		d.RepairQuote.StringFixed(2),
		d.Rate.String(),
		d.Threshold.StringFixed(2),
		netValue,
		pct,
		d.DecisionMargin.StringFixed(2),
		d.Label(),
	}
}

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, records []model.DecisionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", r.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes records to a single-sheet workbook at path.
func WriteXLSX(path string, records []model.DecisionRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Decisions")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hdr := sheet.AddRow()
	for _, h := range Header {
		hdr.AddCell().SetString(h)
	}
	for _, r := range records {
		row := sheet.AddRow()
		for i, v := range Row(r) {
			cell := row.AddCell()
			if moneyColumns[i] && v != "" {
				n, _ := decimal.RequireFromString(v).Float64()
				cell.SetFloat(n)
				continue
			}
			cell.SetString(v)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save xlsx")
	}
	return nil
}
