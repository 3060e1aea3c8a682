// Package intake reads batch case files (CSV, XLSX or JSON) into raw cases
// for validation.
package intake

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/crashify360/totalloss/internal/validate"
)

// Row is one case read from a batch file. Line is the source line or sheet
// row (the header is line 1), or the 1-based array index for JSON.
type Row struct {
	Line int
	Case validate.RawCase
}

// Required columns for CSV and XLSX files.
var requiredColumns = []string{"vin", "policy_type", "loss_type", "policy_value", "salvage_value", "repair_quote"}

var aliases = map[string]string{
	"email":   "owner_email",
	"phone":   "owner_phone",
	"policy":  "policy_type",
	"loss":    "loss_type",
	"salvage": "salvage_value",
	"repair":  "repair_quote",
	"quote":   "repair_quote",
}

// ReadFile reads path, choosing the format from its extension.
func ReadFile(path string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "intake: open file")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(path)
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "intake: open file")
		}
		defer f.Close() //nolint:errcheck
		return ReadJSON(f)
	default:
		return nil, eris.Errorf("intake: unsupported file type %q (want .csv, .xlsx or .json)", filepath.Ext(path))
	}
}

// ReadCSV reads a CSV file whose first row is a header.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		table [][]string
		lines []int
	)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "intake: read csv")
		}
		line, _ := reader.FieldPos(0)
		table = append(table, rec)
		lines = append(lines, line)
	}
	return fromTable(table, lines)
}

// ReadXLSX reads the first sheet of an XLSX file whose first row is a header.
func ReadXLSX(path string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "intake: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("intake: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	table := make([][]string, 0, len(sheet.Rows))
	lines := make([]int, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		table = append(table, rowToStrings(row))
		lines = append(lines, i+1)
	}
	return fromTable(table, lines)
}

// ReadJSON reads a JSON array of objects keyed by column name. Values may be
// strings or numbers.
func ReadJSON(r io.Reader) ([]Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, eris.Wrap(err, "intake: decode json")
	}

	rows := make([]Row, 0, len(items))
	for i, item := range items {
		fields := make(map[string]string, len(item))
		for k, v := range item {
			fields[column(k)] = stringify(v)
		}
		rows = append(rows, Row{Line: i + 1, Case: toRaw(fields)})
	}
	return rows, nil
}

// fromTable maps rows under the header in table[0]. lines holds the source
// line of each table row.
func fromTable(table [][]string, lines []int) ([]Row, error) {
	if len(table) == 0 {
		return nil, eris.New("intake: file is empty")
	}

	header := make([]string, len(table[0]))
	seen := make(map[string]bool, len(header))
	for i, h := range table[0] {
		header[i] = column(h)
		seen[header[i]] = true
	}
	for _, col := range requiredColumns {
		if !seen[col] {
			return nil, eris.Errorf("intake: missing column %q", col)
		}
	}

	var rows []Row
	for i, rec := range table[1:] {
		if blank(rec) {
			continue
		}
		fields := make(map[string]string, len(header))
		for j, v := range rec {
			if j < len(header) {
				fields[header[j]] = strings.TrimSpace(v)
			}
		}
		rows = append(rows, Row{Line: lines[i+1], Case: toRaw(fields)})
	}
	return rows, nil
}

// column normalizes a header name: "Policy Value" becomes "policy_value".
func column(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	if a, ok := aliases[h]; ok {
		return a
	}
	return h
}

func toRaw(f map[string]string) validate.RawCase {
	return validate.RawCase{
		VIN:          f["vin"],
		PolicyType:   f["policy_type"],
		LossType:     f["loss_type"],
		PolicyValue:  f["policy_value"],
		SalvageValue: f["salvage_value"],
		RepairQuote:  f["repair_quote"],
		OwnerEmail:   f["owner_email"],
		OwnerPhone:   f["owner_phone"],
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
