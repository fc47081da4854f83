package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

// Row is one data row of a guest sheet. Number is the spreadsheet row
// number, so the first data row under the header is 2.
type Row struct {
	Number int
	Cells  []string
}

// ReadFile reads a .csv or .xlsx guest list.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".xlsx", ".xlsm":
		return ReadXLSX(f)
	}
	return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
}

// ReadCSV reads comma separated rows, dropping the header.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		records = append(records, rec)
	}
	return toRows(records), nil
}

// ReadXLSX reads the first sheet of a workbook, dropping the header.
func ReadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return toRows(records), nil
}

func toRows(records [][]string) []Row {
	if len(records) <= 1 {
		return nil
	}
	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		cells := make([]string, len(rec))
		for j, c := range rec {
			cells[j] = strings.TrimSpace(norm.NFC.String(c))
		}
		rows = append(rows, Row{Number: i + 2, Cells: cells})
	}
	return rows
}
