package excel

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const ResultSheet = "Results"

// RowReader streams the rows of the first sheet of a workbook. Read returns
// io.EOF after the last row.
type RowReader struct {
	f    *excelize.File
	rows *excelize.Rows
}

func OpenRows(filename string) (*RowReader, error) {
	f, err := excelize.OpenFile(filename)
	if err != nil {
		return nil, err
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("%s: workbook has no sheets", filename)
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, err
	}
	return &RowReader{f: f, rows: rows}, nil
}

// Read returns the stored cell values. Number formats are not applied, so a
// coordinate shown as 28.61 still reads back as 28.612345.
func (r *RowReader) Read() ([]string, error) {
	if !r.rows.Next() {
		if err := r.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return r.rows.Columns(excelize.Options{RawCellValue: true})
}

func (r *RowReader) Close() error {
	r.rows.Close()
	return r.f.Close()
}

// WriteRows writes header and data to a single sheet using the stream writer.
func WriteRows(path string, sheetName string, header []interface{}, data [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}

	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, row := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}

	if err := sw.Flush(); err != nil {
		return err
	}

	f.SetActiveSheet(index)
	if sheetName != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}
