package spreadsheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// SampleColumn describes one header of the downloadable sample workbook
type SampleColumn struct {
	Name        string
	Description string
	Required    bool
	Example     string
}

const sampleSheetName = "Import"

// WriteSample writes an xlsx workbook with a styled header row, one example
// row and an Instructions sheet describing every column.
func WriteSample(w io.Writer, columns []SampleColumn) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sampleSheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	requiredStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("required style: %w", err)
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sampleSheetName, cell, col.Name)
		if col.Required {
			f.SetCellStyle(sampleSheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sampleSheetName, cell, cell, headerStyle)
		}

		example, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(sampleSheetName, example, col.Example)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sampleSheetName, colName, colName, 18)
	}

	if _, err := f.NewSheet("Instructions"); err != nil {
		return fmt.Errorf("instructions sheet: %w", err)
	}
	f.SetCellValue("Instructions", "A1", "Price and inventory import")
	f.SetCellValue("Instructions", "A2", "Only existing products are updated; rows with unknown SKUs are reported and skipped.")
	f.SetCellValue("Instructions", "A3", "Blank price cells keep the current price. Quantities replace the current stock.")
	f.SetCellValue("Instructions", "A5", "Column")
	f.SetCellValue("Instructions", "B5", "Description")
	f.SetCellValue("Instructions", "C5", "Required")
	for i, col := range columns {
		row := i + 6
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue("Instructions", fmt.Sprintf("B%d", row), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue("Instructions", fmt.Sprintf("C%d", row), required)
	}
	f.SetColWidth("Instructions", "A", "A", 22)
	f.SetColWidth("Instructions", "B", "B", 70)
	f.SetColWidth("Instructions", "C", "C", 12)

	sheetIdx, _ := f.GetSheetIndex(sampleSheetName)
	f.SetActiveSheet(sheetIdx)

	return f.Write(w)
}
