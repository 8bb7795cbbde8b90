package store

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// ExportSheet is the worksheet written by ExportXLSX.
const ExportSheet = "Detections"

// ExportHeader is the first row of the exported sheet.
var ExportHeader = []string{
	"ID", "Source", "Name", "Persons", "Fallen", "Unique", "Congestion", "Simulated", "Created At",
}

var exportWidths = []float64{8, 26, 22, 10, 10, 10, 12, 11, 22}

// ExportXLSX writes detections as a spreadsheet.
//
// Arguments:
//   - w: The destination.
//   - detections: The rows, written in order.
//
// Returns:
//   - error: An error if the workbook cannot be built or written.
func ExportXLSX(w io.Writer, detections []Detection) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ExportSheet)
	if err != nil {
		return errors.Wrap(err, "error creating sheet")
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return errors.Wrap(err, "error removing default sheet")
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return errors.Wrap(err, "error creating header style")
	}

	for i, h := range ExportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return errors.Wrap(err, "error converting coordinates")
		}
		if err := f.SetCellValue(ExportSheet, cell, h); err != nil {
			return errors.Wrapf(err, "error setting header %s", cell)
		}
		if err := f.SetCellStyle(ExportSheet, cell, cell, headerStyle); err != nil {
			return errors.Wrap(err, "error styling header")
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return errors.Wrap(err, "error converting column number")
		}
		if err := f.SetColWidth(ExportSheet, col, col, exportWidths[i]); err != nil {
			return errors.Wrap(err, "error setting column width")
		}
	}

	for r, d := range detections {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return errors.Wrap(err, "error converting coordinates")
		}
		row := []interface{}{
			d.ID, d.Source, d.Name, d.PersonCount, d.FallenCount, d.UniqueCount,
			d.Congestion.String(), d.Simulated, d.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return errors.Wrapf(err, "error writing row %d", r+2)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "error writing workbook")
	}
	return nil
}
