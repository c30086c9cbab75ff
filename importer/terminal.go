/*
terminal.go - Delimited terminal-log reader

PURPOSE:
  Parses the positional log format terminals write to disk, one scan per
  line. Two shapes are accepted, whitespace- or comma-delimited:

    EMP001  2026-01-05  07:58  3        (employee, date, time, code)
    EMP001  2026-01-05T07:58  3         (employee, datetime, code)

  Blank lines and '#' comments are skipped and do not count toward the
  batch total. Structural problems (too few fields) are NOT rejected here:
  the fields are passed through empty and the pipeline reports them as row
  errors, keeping all row accounting in one place.
*/
package importer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/forgeline/payroll-engine/payroll"
)

// ReadTerminalLog reads the delimited terminal format into raw rows.
// Enforces the batch byte limit while scanning.
func ReadTerminalLog(r io.Reader) ([]Row, error) {
	scanner := bufio.NewScanner(io.LimitReader(r, MaxFileBytes+1))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var rows []Row
	read := int64(0)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		read += int64(len(text)) + 1
		if read > MaxFileBytes {
			return nil, &payroll.ValidationError{
				Field:   "file",
				Message: fmt.Sprintf("file exceeds %d bytes", int64(MaxFileBytes)),
			}
		}

		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		rows = append(rows, splitTerminalLine(line, trimmed))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading terminal log: %w", err)
	}
	return rows, nil
}

func splitTerminalLine(line int, text string) Row {
	var fields []string
	if strings.Contains(text, ",") {
		for _, f := range strings.Split(text, ",") {
			fields = append(fields, strings.TrimSpace(f))
		}
	} else {
		fields = strings.Fields(text)
	}

	row := Row{Line: line}
	switch {
	case len(fields) >= 4:
		row.EmployeeNumber = fields[0]
		row.Date = fields[1]
		row.Time = fields[2]
		row.ScanCode = fields[3]
	case len(fields) == 3:
		row.EmployeeNumber = fields[0]
		if strings.Contains(fields[1], "T") {
			row.DateTime = fields[1]
		} else {
			row.Date = fields[1]
		}
		row.ScanCode = fields[2]
	case len(fields) == 2:
		row.EmployeeNumber = fields[0]
		if strings.Contains(fields[1], "T") {
			row.DateTime = fields[1]
		} else {
			row.Date = fields[1]
		}
	case len(fields) == 1:
		row.EmployeeNumber = fields[0]
	}
	return row
}
