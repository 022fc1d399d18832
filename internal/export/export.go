// Package export renders tabular reports as CSV or XLSX downloads.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/xuri/excelize/v2"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const timeLayout = "2006-01-02 15:04:05"

// utf8BOM lets spreadsheet applications detect the CSV encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a header row followed by data rows.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]string
}

// ContentType returns the MIME type of format, or "" when unsupported.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return ""
}

// Write renders t in format to w.
func Write(w io.Writer, format string, t Table) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// WriteCSV writes t as UTF-8 CSV with a byte order mark.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes t as a single-sheet workbook.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", toCells(t.Headers)); err != nil {
		return err
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(row)); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func toCells(row []string) []any {
	cells := make([]any, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}

// HistoryTable lays out a user's paper history for export.
func HistoryTable(items []model.HistoryItem) Table {
	t := Table{
		Sheet: "Riwayat",
		Headers: []string{
			"ID Lembar",
			"Tingkat Kesulitan",
			"Status",
			"Skor",
			"Persentase Skor",
			"Status Kelulusan",
			"Waktu Pengumpulan",
		},
		Rows: make([][]string, 0, len(items)),
	}
	for _, item := range items {
		t.Rows = append(t.Rows, []string{
			item.PaperID,
			item.Difficulty,
			string(item.Status),
			formatFloat(item.Score, -1),
			formatFloat(item.ScorePercentage, 2),
			passLabel(item),
			formatTime(item.SubmittedAt),
		})
	}
	return t
}

func passLabel(item model.HistoryItem) string {
	if item.Status != model.PaperStatusCompleted || item.PassStatus == nil {
		return "Belum Selesai"
	}
	if *item.PassStatus {
		return "Lulus"
	}
	return "Tidak Lulus"
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
