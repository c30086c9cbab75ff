/*
xlsx.go - Spreadsheet reader

PURPOSE:
  Reads terminal exports that arrive as .xlsx workbooks. The first sheet's
  first non-empty row is the header; matching is case- and separator-
  insensitive ("Employee Number", "employee_number" and "EMPLOYEENUMBER"
  all match). The sheet must expose at least an employee-number column and
  a date or datetime column; time and scan-type columns are optional.
*/
package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/forgeline/payroll-engine/payroll"
)

// Header aliases after normalization (lowercase, alphanumerics only).
var headerAliases = map[string]string{
	"employeenumber": "employee",
	"employeeno":     "employee",
	"employeeid":     "employee",
	"empno":          "employee",
	"workerid":       "employee",
	"date":           "date",
	"workdate":       "date",
	"datetime":       "datetime",
	"timestamp":      "datetime",
	"time":           "time",
	"scantime":       "time",
	"scantype":       "code",
	"scancode":       "code",
	"type":           "code",
}

// ReadWorkbook reads the first sheet of an .xlsx stream into raw rows.
func ReadWorkbook(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(io.LimitReader(r, MaxFileBytes))
	if err != nil {
		return nil, &payroll.ValidationError{Field: "file", Message: fmt.Sprintf("cannot open workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &payroll.ValidationError{Field: "file", Message: "workbook has no sheets"}
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}

	columns, headerLine, err := findHeader(cells)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for i := headerLine; i < len(cells); i++ {
		record := cells[i]
		if emptyRecord(record) {
			continue
		}
		row := Row{Line: i + 1}
		for col, field := range columns {
			if col >= len(record) {
				continue
			}
			value := strings.TrimSpace(record[col])
			switch field {
			case "employee":
				row.EmployeeNumber = value
			case "date":
				row.Date = value
			case "datetime":
				row.DateTime = value
			case "time":
				row.Time = value
			case "code":
				row.ScanCode = value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// findHeader locates the header row and maps column index to field name.
// Returns the index of the first data row.
func findHeader(cells [][]string) (map[int]string, int, error) {
	for i, record := range cells {
		if emptyRecord(record) {
			continue
		}
		columns := make(map[int]string)
		for col, raw := range record {
			if field, ok := headerAliases[normalizeHeader(raw)]; ok {
				columns[col] = field
			}
		}

		hasEmployee := false
		hasDate := false
		for _, field := range columns {
			switch field {
			case "employee":
				hasEmployee = true
			case "date", "datetime":
				hasDate = true
			}
		}
		if hasEmployee && hasDate {
			return columns, i + 1, nil
		}
		return nil, 0, &payroll.ValidationError{
			Field:   "file",
			Message: "header must include an EmployeeNumber column and a Date or DateTime column",
		}
	}
	return nil, 0, &payroll.ValidationError{Field: "file", Message: "workbook is empty"}
}

// normalizeHeader lowercases and strips separators so "Employee Number",
// "employee_number" and "EMPLOYEE-NUMBER" all compare equal.
func normalizeHeader(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func emptyRecord(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
