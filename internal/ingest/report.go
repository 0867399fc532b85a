package ingest

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ReportHeader lists the export columns in order.
var ReportHeader = []string{"Code", "Result", "Message"}

const reportSheet = "Results"

// Summary is the count-based outcome of a batch run.
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []FailedEntry `json:"failures,omitempty"`
}

// SummarizeBatch condenses a batch result into counts plus failure reasons.
func SummarizeBatch(r BatchResult, total int) Summary {
	failed := len(r.FailedEntries)
	if total < r.SuccessCount+failed {
		total = r.SuccessCount + failed
	}
	return Summary{
		Total:     total,
		Succeeded: r.SuccessCount,
		Failed:    failed,
		Failures:  append([]FailedEntry(nil), r.FailedEntries...),
	}
}

// ReportRow is one line of the exported outcome table.
type ReportRow struct {
	Code    string `json:"code"`
	Result  string `json:"result"`
	Message string `json:"message"`
}

var upper = cases.Upper(language.Und)

// ReportRows projects per-record statuses onto export rows, preserving order.
func ReportRows(records []RecordStatus) []ReportRow {
	out := make([]ReportRow, len(records))
	for i, r := range records {
		out[i] = ReportRow{
			Code:    r.Code,
			Result:  upper.String(string(r.Status)),
			Message: r.Message,
		}
	}
	return out
}

// WriteXLSX writes rows as a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []ReportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(reportSheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	header := make([]any, len(ReportHeader))
	for i, h := range ReportHeader {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, []any{r.Code, r.Result, r.Message}); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// WriteCSV writes rows as CSV with the same columns as WriteXLSX.
func WriteCSV(w io.Writer, rows []ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Code, r.Result, r.Message}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
