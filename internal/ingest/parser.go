package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is the encoding of an uploaded source.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Column headers recognized in a source file (exact match).
const (
	ColCode    = "code"
	ColMRP     = "mrp"
	ColCompany = "company"
	ColPoints  = "points"
)

var zipMagic = []byte("PK\x03\x04")

// Source is an uploaded file.
type Source struct {
	Name string
	Body io.Reader
}

// DetectFormat picks a format from the file name, falling back to the leading
// bytes of the content.
func DetectFormat(name string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return "", fmt.Errorf("%w: legacy .xls", ErrUnsupportedFormat)
	}
	if bytes.HasPrefix(head, zipMagic) {
		return FormatXLSX, nil
	}
	return FormatCSV, nil
}

// Parse reads src into raw rows. The first line (CSV) or the first row of the
// first worksheet (XLSX) is the header.
func Parse(src Source) ([]RawRow, error) {
	if src.Body == nil {
		return nil, ErrEmptySource
	}
	data, err := io.ReadAll(src.Body)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	format, err := DetectFormat(src.Name, data)
	if err != nil {
		return nil, err
	}

	var table []record
	switch format {
	case FormatXLSX:
		table, err = readXLSX(data)
	default:
		table, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}

	rows := project(table)
	if len(rows) == 0 {
		return nil, ErrEmptySource
	}
	return rows, nil
}

// record is one decoded source row and the 1-based line it starts on.
type record struct {
	line  int
	cells []string
}

func readCSV(data []byte) ([]record, error) {
	// Excel likes to prepend a UTF-8 BOM.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var table []record
	for {
		cells, err := r.Read()
		if err == io.EOF {
			return table, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decode csv: %w", ErrMalformedSource, err)
		}
		// the reader skips empty lines, so count from where the record starts
		line, _ := r.FieldPos(0)
		table = append(table, record{line: line, cells: cells})
	}
}

func readXLSX(data []byte) ([]record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode xlsx: %w", ErrMalformedSource, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySource
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	// GetRows keeps empty rows in place, so the index is the sheet row
	table := make([]record, len(rows))
	for i, cells := range rows {
		table[i] = record{line: i + 1, cells: cells}
	}
	return table, nil
}

// project maps a header-keyed table onto RawRow, dropping blank lines.
func project(table []record) []RawRow {
	if len(table) == 0 {
		return nil
	}
	idx := map[string]int{}
	for i, h := range table[0].cells {
		h = strings.TrimSpace(h)
		if _, seen := idx[h]; !seen {
			idx[h] = i
		}
	}
	cell := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	out := make([]RawRow, 0, len(table)-1)
	for _, rec := range table[1:] {
		if blank(rec.cells) {
			continue
		}
		out = append(out, RawRow{
			Line:    rec.line,
			Code:    cell(rec.cells, ColCode),
			MRP:     cell(rec.cells, ColMRP),
			Company: cell(rec.cells, ColCompany),
			Points:  cell(rec.cells, ColPoints),
		})
	}
	return out
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
