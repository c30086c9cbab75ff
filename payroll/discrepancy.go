/*
discrepancy.go - Attendance discrepancy detection

PURPOSE:
  Compares each worker's submitted daily report against the scan session
  derived from terminal events for the same (worker, date) and classifies
  any disagreement.

CLASSIFICATION (per identity):
  Type1: both sources exist and report hours < scanned hours (any gap)
  Type2: a report exists but no usable scan session (nothing scanned, or
         every scan half unmatched)
  Type3: a session with non-zero hours exists but no report was submitted

SEVERITY from |hours difference|:
  > 2 high, (1, 2] medium, <= 1 low

RE-RUNS:
  Detection is idempotent and re-runnable over a project/date-range scope.
  Each run produces fresh candidates that are MERGED into the existing
  record by (worker, date) identity: a record in a terminal status keeps
  its classification and audit fields untouched (whether a fresh gap after
  an edit should reopen it is a product decision, deliberately not taken
  here); a pending record is re-classified in place, keeping its identity.

CONCURRENCY:
  Identities are processed by a bounded worker pool. Writes to the same
  identity serialize through a keyed mutex; counters are accumulated as
  per-worker partials and merged at the end.
*/
package payroll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	severityMediumFloor = decimal.NewFromInt(1)
	severityHighFloor   = decimal.NewFromInt(2)
)

// ClassifySeverity maps an absolute hours difference to a severity band.
func ClassifySeverity(diff decimal.Decimal) Severity {
	abs := diff.Abs()
	switch {
	case abs.GreaterThan(severityHighFloor):
		return SeverityHigh
	case abs.GreaterThan(severityMediumFloor):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Classify applies the type rules to one identity's two hour sources.
// Returns ok=false when the sources agree well enough that no discrepancy
// exists (report covers the scanned hours, or neither source has data).
func Classify(reportHours, scanHours *decimal.Decimal) (DiscrepancyType, Severity, decimal.Decimal, bool) {
	hasReport := reportHours != nil
	hasScan := scanHours != nil && scanHours.IsPositive()

	switch {
	case hasReport && hasScan:
		diff := scanHours.Sub(*reportHours)
		if !diff.IsPositive() {
			return "", "", decimal.Zero, false
		}
		return DiscrepancyType1, ClassifySeverity(diff), diff, true

	case hasReport && !hasScan:
		return DiscrepancyType2, ClassifySeverity(*reportHours), *reportHours, true

	case !hasReport && hasScan:
		return DiscrepancyType3, ClassifySeverity(*scanHours), *scanHours, true
	}
	return "", "", decimal.Zero, false
}

// =============================================================================
// DETECTOR
// =============================================================================

// DetectionResult summarizes one detector run.
type DetectionResult struct {
	Examined        int
	Created         int
	Updated         int
	SkippedTerminal int
	LateRecords     int
}

func (r *DetectionResult) merge(other DetectionResult) {
	r.Examined += other.Examined
	r.Created += other.Created
	r.Updated += other.Updated
	r.SkippedTerminal += other.SkippedTerminal
	r.LateRecords += other.LateRecords
}

// Detector cross-references daily reports with scan sessions. Worker ids in
// this system ARE the terminal employee numbers, so the two sources join
// directly on (worker id, work date).
type Detector struct {
	Reports       DailyReportStore
	Scans         ScanEventStore
	Discrepancies DiscrepancyStore
	LateRecords   LateRecordStore
	Sessions      *SessionBuilder
	Log           *logrus.Logger

	// Concurrency bounds the identity worker pool. Zero means serial.
	Concurrency int

	locks     *keyedMutex
	locksOnce sync.Once
}

// identityInput is everything one pool worker needs for one identity.
type identityInput struct {
	workerID WorkerID
	date     Date
	report   *DailyReport
	session  *ScanSession
}

// Run detects discrepancies for every (worker, date) identity in the
// project/date-range scope. Idempotent: re-running over unchanged data
// changes nothing.
func (d *Detector) Run(ctx context.Context, projectID ProjectID, span DateRange) (*DetectionResult, error) {
	d.locksOnce.Do(func() { d.locks = newKeyedMutex() })

	reports, err := d.Reports.ListDailyReports(ctx, projectID, span)
	if err != nil {
		return nil, fmt.Errorf("listing daily reports: %w", err)
	}
	events, err := d.Scans.ListScanEvents(ctx, span)
	if err != nil {
		return nil, fmt.Errorf("listing scan events: %w", err)
	}

	inputs, err := d.buildInputs(projectID, reports, events)
	if err != nil {
		return nil, err
	}

	workers := d.Concurrency
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan identityInput)
	partials := make([]DetectionResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for in := range jobs {
				if errs[w] != nil {
					continue // drain after failure
				}
				errs[w] = d.processIdentity(ctx, projectID, in, &partials[w])
			}
		}(w)
	}

	for _, in := range inputs {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- in:
		}
	}
	close(jobs)
	wg.Wait()

	result := &DetectionResult{}
	for w := 0; w < workers; w++ {
		if errs[w] != nil {
			return nil, errs[w]
		}
		result.merge(partials[w])
	}

	if d.Log != nil {
		d.Log.WithFields(logrus.Fields{
			"project":  projectID,
			"span":     span.String(),
			"examined": result.Examined,
			"created":  result.Created,
			"updated":  result.Updated,
			"terminal": result.SkippedTerminal,
		}).Info("discrepancy detection finished")
	}
	return result, nil
}

// buildInputs joins reports and sessions into per-identity work items,
// ordered deterministically.
func (d *Detector) buildInputs(projectID ProjectID, reports []*DailyReport, events []ScanEvent) ([]identityInput, error) {
	byIdentity := make(map[identityKey]*identityInput)
	var order []identityKey

	get := func(workerID WorkerID, date Date) *identityInput {
		key := identityKey{WorkerID: workerID, Date: date.String()}
		in, ok := byIdentity[key]
		if !ok {
			in = &identityInput{workerID: workerID, date: date}
			byIdentity[key] = in
			order = append(order, key)
		}
		return in
	}

	for _, r := range reports {
		get(r.WorkerID, r.WorkDate).report = r
	}

	eventsByIdentity := make(map[identityKey][]ScanEvent)
	for _, ev := range events {
		workerID := WorkerID(ev.EmployeeNumber)
		date := DateOf(ev.Timestamp)
		get(workerID, date)
		key := identityKey{WorkerID: workerID, Date: date.String()}
		eventsByIdentity[key] = append(eventsByIdentity[key], ev)
	}

	for key, evs := range eventsByIdentity {
		in := byIdentity[key]
		session, err := d.Sessions.Build(in.workerID, in.date, evs)
		if err != nil {
			return nil, fmt.Errorf("building session for %s/%s: %w", in.workerID, in.date, err)
		}
		in.session = session
	}

	inputs := make([]identityInput, 0, len(order))
	for _, key := range order {
		inputs = append(inputs, *byIdentity[key])
	}
	return inputs, nil
}

// processIdentity classifies one identity and merges the candidate into the
// stored record under the identity lock.
func (d *Detector) processIdentity(ctx context.Context, projectID ProjectID, in identityInput, partial *DetectionResult) error {
	partial.Examined++

	if in.session != nil && d.LateRecords != nil {
		late, err := d.Sessions.LateRecordFor(in.session)
		if err != nil {
			return err
		}
		if late != nil {
			late.ID = lateRecordID(late.WorkerID, late.Date)
			if err := d.LateRecords.UpsertLateRecord(ctx, late); err != nil {
				return fmt.Errorf("upserting late record: %w", err)
			}
			partial.LateRecords++
		}
	}

	var reportHours, scanHours *decimal.Decimal
	if in.report != nil {
		h, err := in.report.Hours()
		if err != nil {
			return fmt.Errorf("report %s has undefined hours: %w", in.report.ID, err)
		}
		reportHours = &h
	}
	if in.session.HasScannedHours() {
		h := in.session.ScannedHours
		scanHours = &h
	}

	dtype, severity, diff, ok := Classify(reportHours, scanHours)
	if !ok {
		return nil
	}

	unlock := d.locks.lock(in.workerID, in.date)
	defer unlock()

	existing, err := d.Discrepancies.GetDiscrepancy(ctx, in.workerID, in.date)
	switch {
	case err == nil && existing.Terminal():
		// Already resolved: preserve the audit record untouched.
		partial.SkippedTerminal++
		return nil

	case err == nil:
		// Pending: re-classify in place, keeping identity and detection id.
		existing.Type = dtype
		existing.Severity = severity
		existing.ReportHours = reportHours
		existing.ScanHours = scanHours
		existing.HoursDiff = diff
		existing.DetectedAt = time.Now().UTC()
		if err := d.Discrepancies.UpsertDiscrepancy(ctx, existing); err != nil {
			return err
		}
		partial.Updated++
		return nil

	case IsNotFound(err):
		created := &Discrepancy{
			ID:          uuid.NewString(),
			WorkerID:    in.workerID,
			ProjectID:   projectID,
			WorkDate:    in.date,
			Type:        dtype,
			Severity:    severity,
			ReportHours: reportHours,
			ScanHours:   scanHours,
			HoursDiff:   diff,
			Status:      DiscrepancyPending,
			DetectedAt:  time.Now().UTC(),
		}
		if err := d.Discrepancies.UpsertDiscrepancy(ctx, created); err != nil {
			return err
		}
		partial.Created++
		return nil

	default:
		return err
	}
}

func lateRecordID(workerID WorkerID, date Date) string {
	return fmt.Sprintf("late-%s-%s", workerID, date)
}
