// Package export renders reminders as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Writer builds a workbook sheet by sheet, row by row.
type Writer struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

// NewWriter creates an empty workbook.
func NewWriter() *Writer {
	return &Writer{file: excelize.NewFile()}
}

// AddSheet starts a new sheet and makes it current.
func (w *Writer) AddSheet(name string) error {
	// Excel limit
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column headers and freezes them.
func (w *Writer) WriteHeader(columns []string) error {
	if err := w.WriteRow(toRow(columns)); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return w.file.SetPanes(w.currentSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// WriteRow writes a data row to the current sheet.
func (w *Writer) WriteRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}

	w.currentRow++
	return nil
}

// Save writes the workbook to wr.
func (w *Writer) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

// Close releases resources.
func (w *Writer) Close() error {
	return w.file.Close()
}

func toRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
