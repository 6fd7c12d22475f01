// Package export writes transaction lists as downloadable files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"financeflow/internal/core"

	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const SheetName = "Transactions"

var Header = []string{"id", "date", "type", "category", "amount", "description", "created_at"}

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename is the download name for an export produced on day.
func (f Format) Filename(day core.Date) string {
	return fmt.Sprintf("transactions_%s.%s", day.Format("20060102"), f)
}

// Write dispatches to the writer for f.
func Write(w io.Writer, f Format, txs []core.Transaction) error {
	if f == FormatXLSX {
		return WriteXLSX(w, txs)
	}
	return WriteCSV(w, txs)
}

func row(t core.Transaction) []string {
	created := ""
	if !t.CreatedAt.IsZero() {
		created = t.CreatedAt.Format("2006-01-02 15:04:05")
	}
	return []string{
		strconv.FormatInt(t.ID, 10),
		t.Date.String(),
		string(t.Type),
		t.Category,
		t.Amount.StringFixed(2),
		t.Description,
		created,
	}
}

func WriteCSV(w io.Writer, txs []core.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		if err := cw.Write(row(t)); err != nil {
			return fmt.Errorf("write csv row %d: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, txs []core.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(SheetName, cell, h)
	}

	for i, t := range txs {
		r := i + 2
		values := row(t)
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r)
			switch c {
			case 0:
				f.SetCellInt(SheetName, cell, int(t.ID))
			case 4:
				f.SetCellFloat(SheetName, cell, t.Amount.InexactFloat64(), 2, 64)
			default:
				f.SetCellStr(SheetName, cell, v)
			}
		}
	}

	f.SetColWidth(SheetName, "B", "B", 12)
	f.SetColWidth(SheetName, "D", "D", 16)
	f.SetColWidth(SheetName, "E", "E", 12)
	f.SetColWidth(SheetName, "F", "F", 40)
	f.SetColWidth(SheetName, "G", "G", 20)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
