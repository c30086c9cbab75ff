/*
Package importer ingests raw terminal attendance files into scan events.

PURPOSE:
  Bulk import of biometric terminal output - either the delimited terminal
  log format or a spreadsheet - into individual ScanEvents, with row-level
  validation that never lets one bad row abort the batch.

PARTIAL FAILURE IS THE NORMAL OUTCOME:
  Real terminal exports contain garbage rows. The pipeline validates each
  row independently, records failures with their row number and reason,
  and persists every valid event regardless. The result enumerates both
  sides; callers decide what to do with the failures.

CONCURRENCY:
  Row validation is embarrassingly parallel: rows fan out to a bounded
  worker pool, each worker keeps its own partial result (events, errors,
  warnings, counters), and partials are merged after the pool drains, so
  no counter is ever shared between goroutines.

TRACEABILITY:
  Every run gets a batch id (uuid) stamped on each event it creates.

SEE ALSO:
  - terminal.go: delimited terminal-log reader
  - xlsx.go:     spreadsheet reader (header matching rules)
*/
package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/forgeline/payroll-engine/payroll"
)

// Batch limits, enforced before any row work starts.
const (
	MaxRows      = 100_000
	MaxFileBytes = 100 << 20 // 100 MB
)

// =============================================================================
// ROWS AND RESULTS
// =============================================================================

// Row is one raw data row as read from a file, before validation. Empty
// fields are reported by validation, not by the readers.
type Row struct {
	Line           int // 1-based position in the source file
	EmployeeNumber string
	Date           string // "2006-01-02", or empty when DateTime is set
	Time           string // "15:04", or empty when DateTime is set
	DateTime       string // combined timestamp, when the source has one column
	ScanCode       string // terminal category; empty defaults to regular-in
}

// RowError is one failed row: `{row, employeeNumber?, error}`.
type RowError struct {
	Row            int    `json:"row"`
	EmployeeNumber string `json:"employeeNumber,omitempty"`
	Error          string `json:"error"`
}

// Result is the structured outcome of a batch import.
type Result struct {
	BatchID    string     `json:"batchId"`
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Errors     []RowError `json:"errors"`
	Warnings   []string   `json:"warnings"`
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline turns raw rows into persisted scan events.
type Pipeline struct {
	Events payroll.ScanEventStore
	Log    *logrus.Logger

	// KnownWorker, when set, is the roster check. Rows for unknown
	// employee numbers are skipped with a warning, not an error.
	KnownWorker func(employeeNumber string) bool

	// Workers bounds the validation pool. Zero means serial.
	Workers int
}

type partial struct {
	events     []payroll.ScanEvent
	errors     []RowError
	warnings   []string
	successful int
}

// Run validates every row, persists the valid events under a fresh batch
// id, and returns the full accounting. Row failures are data, not errors;
// the error return is reserved for batch-level problems (store failure,
// cancelled context, oversized batch).
func (p *Pipeline) Run(ctx context.Context, rows []Row) (*Result, error) {
	if len(rows) > MaxRows {
		return nil, &payroll.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("batch has %d rows, limit is %d", len(rows), MaxRows),
		}
	}

	batchID := uuid.NewString()
	now := time.Now().UTC()

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan Row)
	partials := make([]partial, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for row := range jobs {
				p.processRow(row, batchID, now, &partials[w])
			}
		}(w)
	}

	for _, row := range rows {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- row:
		}
	}
	close(jobs)
	wg.Wait()

	result := &Result{BatchID: batchID, Total: len(rows)}
	var events []payroll.ScanEvent
	for w := range partials {
		events = append(events, partials[w].events...)
		result.Errors = append(result.Errors, partials[w].errors...)
		result.Warnings = append(result.Warnings, partials[w].warnings...)
		result.Successful += partials[w].successful
	}
	result.Failed = len(result.Errors)
	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Row < result.Errors[j].Row })
	sort.Strings(result.Warnings)
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	if len(events) > 0 {
		if err := p.Events.BulkInsertScanEvents(ctx, events); err != nil {
			return nil, fmt.Errorf("persisting scan events: %w", err)
		}
	}

	if p.Log != nil {
		p.Log.WithFields(logrus.Fields{
			"batch":      batchID,
			"total":      result.Total,
			"successful": result.Successful,
			"failed":     result.Failed,
			"warnings":   len(result.Warnings),
		}).Info("scan data import finished")
	}
	return result, nil
}

// processRow validates one row into the worker's partial result.
func (p *Pipeline) processRow(row Row, batchID string, now time.Time, out *partial) {
	fail := func(msg string) {
		out.errors = append(out.errors, RowError{Row: row.Line, EmployeeNumber: row.EmployeeNumber, Error: msg})
	}

	empNo := strings.TrimSpace(row.EmployeeNumber)
	if empNo == "" {
		fail("missing employee number")
		return
	}

	ts, err := rowTimestamp(row)
	if err != nil {
		fail(err.Error())
		return
	}

	code := strings.TrimSpace(row.ScanCode)
	scanType := payroll.ScanRegularIn
	if code != "" {
		parsed, ok := payroll.ParseScanType(code)
		if !ok {
			fail(fmt.Sprintf("unknown scan type %q", code))
			return
		}
		scanType = parsed
	}

	if p.KnownWorker != nil && !p.KnownWorker(empNo) {
		out.warnings = append(out.warnings,
			fmt.Sprintf("row %d: unknown worker id %q ignored", row.Line, empNo))
		return
	}

	out.events = append(out.events, payroll.ScanEvent{
		ID:             fmt.Sprintf("%s-%06d", batchID, row.Line),
		EmployeeNumber: empNo,
		Timestamp:      ts,
		Type:           scanType,
		BatchID:        batchID,
		CreatedAt:      now,
	})
	out.successful++
}

// Accepted timestamp layouts, tried in order.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04",
}

var dateLayouts = []string{"2006-01-02", "02/01/2006"}

func rowTimestamp(row Row) (time.Time, error) {
	if dt := strings.TrimSpace(row.DateTime); dt != "" {
		for _, layout := range timestampLayouts {
			if ts, err := time.ParseInLocation(layout, dt, time.UTC); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable datetime %q", dt)
	}

	date := strings.TrimSpace(row.Date)
	if date == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	var day time.Time
	parsed := false
	for _, layout := range dateLayouts {
		if d, err := time.ParseInLocation(layout, date, time.UTC); err == nil {
			day, parsed = d, true
			break
		}
	}
	if !parsed {
		return time.Time{}, fmt.Errorf("unparseable date %q", date)
	}

	clock := strings.TrimSpace(row.Time)
	if clock == "" {
		return day, nil
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable time %q", clock)
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}
