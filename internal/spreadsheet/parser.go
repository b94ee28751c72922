// Package spreadsheet reads uploaded Excel workbooks into header-keyed rows.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMalformedFile     = errors.New("malformed spreadsheet")
	ErrEmptySheet        = errors.New("spreadsheet has no columns")
	ErrDuplicateHeader   = errors.New("duplicate column header")
	ErrTooLarge          = errors.New("spreadsheet has too many rows")
)

// SupportedExtensions lists the accepted upload extensions
var SupportedExtensions = []string{".xlsx", ".xls"}

// Column identifies one column of the header row
type Column struct {
	Index  int    `json:"index"`
	Header string `json:"header"`
}

// Row is one data row keyed by header. Number is the 1-based row in the
// original sheet, so the first data row under the header is row 2.
type Row struct {
	Number int               `json:"number"`
	Cells  map[string]string `json:"cells"`
}

// Cell returns the trimmed value under header, or "" when absent
func (r Row) Cell(header string) string {
	return r.Cells[header]
}

// Sheet is the parsed first worksheet of a workbook
type Sheet struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Preview is the read-only snapshot that drives the mapping step
type Preview struct {
	Columns       []Column            `json:"columns"`
	PreviewRows   []map[string]string `json:"previewRows"`
	TotalRowCount int                 `json:"totalRowCount"`
}

// Options bounds what Parse accepts
type Options struct {
	// MaxRows caps the number of data rows; zero means unbounded
	MaxRows int
}

// Headers returns the header strings in sheet order
func (s *Sheet) Headers() []string {
	headers := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		headers[i] = col.Header
	}
	return headers
}

// HasColumn reports whether header is one of the sheet's columns
func (s *Sheet) HasColumn(header string) bool {
	for _, col := range s.Columns {
		if col.Header == header {
			return true
		}
	}
	return false
}

// Preview returns every column, the first n rows and the total row count
func (s *Sheet) Preview(n int) Preview {
	if n < 0 {
		n = 0
	}
	if n > len(s.Rows) {
		n = len(s.Rows)
	}
	rows := make([]map[string]string, 0, n)
	for _, row := range s.Rows[:n] {
		cells := make(map[string]string, len(row.Cells))
		for k, v := range row.Cells {
			cells[k] = v
		}
		rows = append(rows, cells)
	}
	return Preview{
		Columns:       append([]Column(nil), s.Columns...),
		PreviewRows:   rows,
		TotalRowCount: len(s.Rows),
	}
}

// CheckExtension validates the upload file name before any bytes are read
func CheckExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return nil
		}
	}
	return fmt.Errorf("%w: %q, only .xlsx and .xls files are supported", ErrUnsupportedFormat, filename)
}

// Parse reads the first worksheet of the workbook in r. OOXML workbooks and
// legacy BIFF8 workbooks are told apart by content, not by extension. It
// never returns a partially parsed sheet: any failure yields a nil sheet and
// an error.
func Parse(filename string, r io.Reader, opts Options) (*Sheet, error) {
	if err := CheckExtension(filename); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read upload: %v", ErrMalformedFile, err)
	}

	var (
		sheetName string
		cells     [][]string
	)
	if isCompoundFile(data) {
		sheetName, cells, err = readXLS(data)
	} else {
		sheetName, cells, err = readXLSX(data)
	}
	if err != nil {
		return nil, err
	}
	return buildSheet(sheetName, cells, opts)
}

func readXLSX(data []byte) (string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("%w: failed to open Excel file: %v", ErrMalformedFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, fmt.Errorf("%w: no sheets found in Excel file", ErrEmptySheet)
	}

	sheetName := sheets[0]
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", nil, fmt.Errorf("%w: failed to read sheet %q: %v", ErrMalformedFile, sheetName, err)
	}
	return sheetName, rows, nil
}

// buildSheet keys the rows under the header row. Blank rows are dropped but
// keep their place in the numbering.
func buildSheet(sheetName string, cells [][]string, opts Options) (*Sheet, error) {
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", ErrEmptySheet, sheetName)
	}

	columns, err := parseHeader(cells[0])
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: sheet %q has an empty header row", ErrEmptySheet, sheetName)
	}

	sheet := &Sheet{Name: sheetName, Columns: columns}
	for rowIdx, values := range cells[1:] {
		row := Row{Number: rowIdx + 2, Cells: make(map[string]string, len(columns))}
		blank := true
		for _, col := range columns {
			value := ""
			if col.Index < len(values) {
				value = strings.TrimSpace(values[col.Index])
			}
			if value != "" {
				blank = false
			}
			row.Cells[col.Header] = value
		}
		if blank {
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
		if opts.MaxRows > 0 && len(sheet.Rows) > opts.MaxRows {
			return nil, fmt.Errorf("%w: more than %d data rows", ErrTooLarge, opts.MaxRows)
		}
	}

	return sheet, nil
}

// parseHeader turns the header cells into columns. Trailing blank cells are
// dropped; blank cells between named ones get a positional name.
func parseHeader(cells []string) ([]Column, error) {
	last := -1
	for i, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			last = i
		}
	}

	columns := make([]Column, 0, last+1)
	seen := make(map[string]bool, last+1)
	for i := 0; i <= last; i++ {
		header := strings.TrimSpace(cells[i])
		if header == "" {
			name, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
			}
			header = "Column " + name
		}
		if seen[header] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateHeader, header)
		}
		seen[header] = true
		columns = append(columns, Column{Index: i, Header: header})
	}
	return columns, nil
}
