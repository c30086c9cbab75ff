/*
Package sqlite provides the SQLite-backed implementation of the payroll
storage interfaces.

PURPOSE:
  Implements every store interface the engine consumes (daily reports,
  scan events, discrepancies, late records, rate cards, wage periods,
  audit log) on database/sql + mattn/go-sqlite3. The same patterns apply
  to PostgreSQL; only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - scan_events: INSERT and SELECT only; no UPDATE/DELETE statements exist
  - audit_log:   same
  - discrepancies: upsert by identity, never DELETE

LOCKED PERIODS:
  Period writes go through a transaction that re-reads the STORED status
  first; a locked row refuses the write with payroll.ErrPeriodLocked no
  matter what the caller passes in.

EMBEDDED SUMMARIES:
  A period's summary list and totals are serialized to one JSON column and
  replaced wholesale with the rest of the row, the atomic whole-document
  replace the calculator's idempotence depends on.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/payroll.db")   // ":memory:" for tests
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payroll/store.go: interface definitions
  - payroll/store/memory.go: in-memory implementation for unit tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/forgeline/payroll-engine/payroll"
)

// Store implements all payroll storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a store backed by the database at dbPath. Use ":memory:"
// for an ephemeral database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS daily_reports (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		work_date TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		work_type TEXT NOT NULL,
		overnight INTEGER NOT NULL DEFAULT 0,
		manual_hours TEXT,
		task_description TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reports_identity
		ON daily_reports(worker_id, work_date, project_id);
	CREATE INDEX IF NOT EXISTS idx_reports_project_date
		ON daily_reports(project_id, work_date);

	-- Raw terminal events: append-only, the attendance audit trail.
	CREATE TABLE IF NOT EXISTS scan_events (
		id TEXT PRIMARY KEY,
		employee_number TEXT NOT NULL,
		ts TEXT NOT NULL,
		scan_type TEXT NOT NULL,
		batch_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scan_events_employee_ts
		ON scan_events(employee_number, ts);
	CREATE INDEX IF NOT EXISTS idx_scan_events_ts ON scan_events(ts);
	CREATE INDEX IF NOT EXISTS idx_scan_events_batch ON scan_events(batch_id);

	-- One discrepancy per (worker, work date); status transitions only.
	CREATE TABLE IF NOT EXISTS discrepancies (
		id TEXT NOT NULL UNIQUE,
		worker_id TEXT NOT NULL,
		work_date TEXT NOT NULL,
		project_id TEXT NOT NULL,
		dtype TEXT NOT NULL,
		severity TEXT NOT NULL,
		report_hours TEXT,
		scan_hours TEXT,
		hours_diff TEXT NOT NULL,
		status TEXT NOT NULL,
		resolution_method TEXT,
		resolution_note TEXT,
		resolved_by TEXT,
		resolved_at TEXT,
		detected_at TEXT NOT NULL,
		PRIMARY KEY (worker_id, work_date)
	);
	CREATE INDEX IF NOT EXISTS idx_discrepancies_project_date
		ON discrepancies(project_id, work_date);
	CREATE INDEX IF NOT EXISTS idx_discrepancies_status
		ON discrepancies(status);

	CREATE TABLE IF NOT EXISTS late_records (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		work_date TEXT NOT NULL,
		scanned_arrival TEXT NOT NULL,
		expected_arrival TEXT NOT NULL,
		minutes_late INTEGER NOT NULL,
		deduction TEXT NOT NULL,
		included INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_late_records_date
		ON late_records(work_date, worker_id);

	CREATE TABLE IF NOT EXISTS income_profiles (
		worker_id TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		professional_rate TEXT NOT NULL,
		phone_allowance TEXT NOT NULL,
		PRIMARY KEY (worker_id, effective_date)
	);

	CREATE TABLE IF NOT EXISTS expense_profiles (
		worker_id TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		accommodation TEXT NOT NULL,
		follower_count INTEGER NOT NULL,
		follower_rate TEXT NOT NULL,
		utilities TEXT NOT NULL,
		PRIMARY KEY (worker_id, effective_date)
	);

	-- Summaries and totals live in one JSON document column so a
	-- calculation run replaces them atomically with the status row.
	CREATE TABLE IF NOT EXISTS wage_periods (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		code TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		document_json TEXT NOT NULL,
		has_unresolved INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_periods_project_code
		ON wage_periods(project_id, code);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		worker_id TEXT,
		project_id TEXT,
		work_date TEXT,
		detail_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

const tsLayout = time.RFC3339Nano

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullDec(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanDec(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface{ Scan(dest ...any) error }

// =============================================================================
// DAILY REPORTS
// =============================================================================

const reportColumns = `id, worker_id, project_id, work_date, start_time, end_time,
	work_type, overnight, manual_hours, task_description, created_by, created_at, updated_at`

func (s *Store) CreateDailyReport(ctx context.Context, r *payroll.DailyReport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.WorkerID), string(r.ProjectID), r.WorkDate.String(),
		r.StartTime, r.EndTime, string(r.WorkType), boolInt(r.Overnight),
		nullDec(r.ManualHours), r.TaskDescription, r.CreatedBy,
		r.CreatedAt.UTC().Format(tsLayout), r.UpdatedAt.UTC().Format(tsLayout))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: report exists for worker %s on %s", payroll.ErrConflict, r.WorkerID, r.WorkDate)
	}
	return err
}

func (s *Store) GetDailyReport(ctx context.Context, workerID payroll.WorkerID, date payroll.Date, projectID payroll.ProjectID) (*payroll.DailyReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reportColumns+` FROM daily_reports
		WHERE worker_id = ? AND work_date = ? AND project_id = ?`,
		string(workerID), date.String(), string(projectID))
	return scanReport(row)
}

func (s *Store) UpdateDailyReport(ctx context.Context, r *payroll.DailyReport) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE daily_reports
		SET start_time = ?, end_time = ?, work_type = ?, overnight = ?,
			manual_hours = ?, task_description = ?, updated_at = ?
		WHERE id = ?`,
		r.StartTime, r.EndTime, string(r.WorkType), boolInt(r.Overnight),
		nullDec(r.ManualHours), r.TaskDescription,
		r.UpdatedAt.UTC().Format(tsLayout), r.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return payroll.ErrNotFound
	}
	return nil
}

func (s *Store) ListDailyReports(ctx context.Context, projectID payroll.ProjectID, span payroll.DateRange) ([]*payroll.DailyReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reportColumns+` FROM daily_reports
		WHERE project_id = ? AND work_date >= ? AND work_date < ?
		ORDER BY work_date, worker_id`,
		string(projectID), span.From.String(), span.To.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*payroll.DailyReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanReport(row rowScanner) (*payroll.DailyReport, error) {
	var (
		r                    payroll.DailyReport
		workerID, projectID  string
		workDate, workType   string
		overnight            int
		manualHours          sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &workerID, &projectID, &workDate, &r.StartTime, &r.EndTime,
		&workType, &overnight, &manualHours, &r.TaskDescription, &r.CreatedBy,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.WorkerID = payroll.WorkerID(workerID)
	r.ProjectID = payroll.ProjectID(projectID)
	r.WorkType = payroll.WorkType(workType)
	r.Overnight = overnight != 0
	if r.WorkDate, err = payroll.ParseDate(workDate); err != nil {
		return nil, err
	}
	if r.ManualHours, err = scanDec(manualHours); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = time.Parse(tsLayout, createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = time.Parse(tsLayout, updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// =============================================================================
// SCAN EVENTS (append-only: insert and select, nothing else)
// =============================================================================

func (s *Store) BulkInsertScanEvents(ctx context.Context, events []payroll.ScanEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scan_events (id, employee_number, ts, scan_type, batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.EmployeeNumber, ev.Timestamp.UTC().Format(tsLayout),
			string(ev.Type), ev.BatchID, ev.CreatedAt.UTC().Format(tsLayout)); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: scan event %s already recorded", payroll.ErrConflict, ev.ID)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListScanEvents(ctx context.Context, span payroll.DateRange) ([]payroll.ScanEvent, error) {
	return s.queryScanEvents(ctx, `
		SELECT id, employee_number, ts, scan_type, batch_id, created_at FROM scan_events
		WHERE ts >= ? AND ts < ?
		ORDER BY employee_number, ts`,
		span.From.String(), span.To.String())
}

func (s *Store) ListScanEventsForWorker(ctx context.Context, employeeNumber string, span payroll.DateRange) ([]payroll.ScanEvent, error) {
	return s.queryScanEvents(ctx, `
		SELECT id, employee_number, ts, scan_type, batch_id, created_at FROM scan_events
		WHERE employee_number = ? AND ts >= ? AND ts < ?
		ORDER BY ts`,
		employeeNumber, span.From.String(), span.To.String())
}

func (s *Store) queryScanEvents(ctx context.Context, query string, args ...any) ([]payroll.ScanEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payroll.ScanEvent
	for rows.Next() {
		var (
			ev            payroll.ScanEvent
			ts, createdAt string
			scanType      string
		)
		if err := rows.Scan(&ev.ID, &ev.EmployeeNumber, &ts, &scanType, &ev.BatchID, &createdAt); err != nil {
			return nil, err
		}
		ev.Type = payroll.ScanType(scanType)
		if ev.Timestamp, err = time.Parse(tsLayout, ts); err != nil {
			return nil, err
		}
		if ev.CreatedAt, err = time.Parse(tsLayout, createdAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

// =============================================================================
// DISCREPANCIES
// =============================================================================

const discrepancyColumns = `id, worker_id, work_date, project_id, dtype, severity,
	report_hours, scan_hours, hours_diff, status, resolution_method,
	resolution_note, resolved_by, resolved_at, detected_at`

func (s *Store) GetDiscrepancy(ctx context.Context, workerID payroll.WorkerID, date payroll.Date) (*payroll.Discrepancy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+discrepancyColumns+` FROM discrepancies
		WHERE worker_id = ? AND work_date = ?`,
		string(workerID), date.String())
	return scanDiscrepancy(row)
}

func (s *Store) GetDiscrepancyByID(ctx context.Context, id string) (*payroll.Discrepancy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+discrepancyColumns+` FROM discrepancies WHERE id = ?`, id)
	return scanDiscrepancy(row)
}

func (s *Store) UpsertDiscrepancy(ctx context.Context, d *payroll.Discrepancy) error {
	var resolvedAt any
	if d.ResolvedAt != nil {
		resolvedAt = d.ResolvedAt.UTC().Format(tsLayout)
	}
	var method any
	if d.ResolutionMethod != nil {
		method = string(*d.ResolutionMethod)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discrepancies (`+discrepancyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, work_date) DO UPDATE SET
			dtype = excluded.dtype,
			severity = excluded.severity,
			report_hours = excluded.report_hours,
			scan_hours = excluded.scan_hours,
			hours_diff = excluded.hours_diff,
			status = excluded.status,
			resolution_method = excluded.resolution_method,
			resolution_note = excluded.resolution_note,
			resolved_by = excluded.resolved_by,
			resolved_at = excluded.resolved_at,
			detected_at = excluded.detected_at`,
		d.ID, string(d.WorkerID), d.WorkDate.String(), string(d.ProjectID),
		string(d.Type), string(d.Severity),
		nullDec(d.ReportHours), nullDec(d.ScanHours), d.HoursDiff.String(),
		string(d.Status), method, nullStr(d.ResolutionNote), nullStr(d.ResolvedBy),
		resolvedAt, d.DetectedAt.UTC().Format(tsLayout))
	return err
}

func (s *Store) ListDiscrepancies(ctx context.Context, projectID payroll.ProjectID, span payroll.DateRange, status payroll.DiscrepancyStatus) ([]*payroll.Discrepancy, error) {
	query := `
		SELECT ` + discrepancyColumns + ` FROM discrepancies
		WHERE project_id = ? AND work_date >= ? AND work_date < ?`
	args := []any{string(projectID), span.From.String(), span.To.String()}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY work_date, worker_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*payroll.Discrepancy
	for rows.Next() {
		d, err := scanDiscrepancy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) CountPendingDiscrepancies(ctx context.Context, projectID payroll.ProjectID, span payroll.DateRange) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM discrepancies
		WHERE project_id = ? AND work_date >= ? AND work_date < ? AND status = ?`,
		string(projectID), span.From.String(), span.To.String(),
		string(payroll.DiscrepancyPending)).Scan(&count)
	return count, err
}

func scanDiscrepancy(row rowScanner) (*payroll.Discrepancy, error) {
	var (
		d                          payroll.Discrepancy
		workerID, workDate         string
		projectID, dtype, severity string
		reportHours, scanHours     sql.NullString
		hoursDiff, status          string
		method, note, resolvedBy   sql.NullString
		resolvedAt                 sql.NullString
		detectedAt                 string
	)
	err := row.Scan(&d.ID, &workerID, &workDate, &projectID, &dtype, &severity,
		&reportHours, &scanHours, &hoursDiff, &status, &method, &note, &resolvedBy,
		&resolvedAt, &detectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.WorkerID = payroll.WorkerID(workerID)
	d.ProjectID = payroll.ProjectID(projectID)
	d.Type = payroll.DiscrepancyType(dtype)
	d.Severity = payroll.Severity(severity)
	d.Status = payroll.DiscrepancyStatus(status)
	if d.WorkDate, err = payroll.ParseDate(workDate); err != nil {
		return nil, err
	}
	if d.ReportHours, err = scanDec(reportHours); err != nil {
		return nil, err
	}
	if d.ScanHours, err = scanDec(scanHours); err != nil {
		return nil, err
	}
	if d.HoursDiff, err = decimal.NewFromString(hoursDiff); err != nil {
		return nil, err
	}
	if method.Valid {
		m := payroll.ResolutionMethod(method.String)
		d.ResolutionMethod = &m
	}
	if note.Valid {
		n := note.String
		d.ResolutionNote = &n
	}
	if resolvedBy.Valid {
		by := resolvedBy.String
		d.ResolvedBy = &by
	}
	if resolvedAt.Valid {
		at, err := time.Parse(tsLayout, resolvedAt.String)
		if err != nil {
			return nil, err
		}
		d.ResolvedAt = &at
	}
	if d.DetectedAt, err = time.Parse(tsLayout, detectedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// =============================================================================
// LATE RECORDS
// =============================================================================

func (s *Store) UpsertLateRecord(ctx context.Context, l *payroll.LateRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO late_records
			(id, worker_id, work_date, scanned_arrival, expected_arrival, minutes_late, deduction, included)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scanned_arrival = excluded.scanned_arrival,
			expected_arrival = excluded.expected_arrival,
			minutes_late = excluded.minutes_late,
			deduction = excluded.deduction,
			included = excluded.included`,
		l.ID, string(l.WorkerID), l.Date.String(), l.ScannedArrival, l.ExpectedArrival,
		l.MinutesLate, l.Deduction.String(), boolInt(l.IncludedInWageCalculation))
	return err
}

func (s *Store) ListLateRecords(ctx context.Context, span payroll.DateRange) ([]*payroll.LateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, work_date, scanned_arrival, expected_arrival, minutes_late, deduction, included
		FROM late_records
		WHERE work_date >= ? AND work_date < ?
		ORDER BY work_date, worker_id`,
		span.From.String(), span.To.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*payroll.LateRecord
	for rows.Next() {
		var (
			l                  payroll.LateRecord
			workerID, workDate string
			deduction          string
			included           int
		)
		if err := rows.Scan(&l.ID, &workerID, &workDate, &l.ScannedArrival,
			&l.ExpectedArrival, &l.MinutesLate, &deduction, &included); err != nil {
			return nil, err
		}
		l.WorkerID = payroll.WorkerID(workerID)
		if l.Date, err = payroll.ParseDate(workDate); err != nil {
			return nil, err
		}
		if l.Deduction, err = decimal.NewFromString(deduction); err != nil {
			return nil, err
		}
		l.IncludedInWageCalculation = included != 0
		result = append(result, &l)
	}
	return result, rows.Err()
}

// =============================================================================
// RATE CARDS
// =============================================================================

// SaveIncomeProfile upserts a rate card entry. Administrative path, not
// used by the calculator.
func (s *Store) SaveIncomeProfile(ctx context.Context, p *payroll.IncomeProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO income_profiles (worker_id, effective_date, hourly_rate, professional_rate, phone_allowance)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, effective_date) DO UPDATE SET
			hourly_rate = excluded.hourly_rate,
			professional_rate = excluded.professional_rate,
			phone_allowance = excluded.phone_allowance`,
		string(p.WorkerID), p.EffectiveDate.String(), p.HourlyRate.String(),
		p.ProfessionalRate.String(), p.PhoneAllowance.String())
	return err
}

func (s *Store) SaveExpenseProfile(ctx context.Context, p *payroll.ExpenseProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_profiles (worker_id, effective_date, accommodation, follower_count, follower_rate, utilities)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, effective_date) DO UPDATE SET
			accommodation = excluded.accommodation,
			follower_count = excluded.follower_count,
			follower_rate = excluded.follower_rate,
			utilities = excluded.utilities`,
		string(p.WorkerID), p.EffectiveDate.String(), p.Accommodation.String(),
		p.FollowerCount, p.FollowerRate.String(), p.Utilities.String())
	return err
}

func (s *Store) IncomeProfileAsOf(ctx context.Context, workerID payroll.WorkerID, asOf payroll.Date) (*payroll.IncomeProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT worker_id, effective_date, hourly_rate, professional_rate, phone_allowance
		FROM income_profiles
		WHERE worker_id = ? AND effective_date <= ?
		ORDER BY effective_date DESC LIMIT 1`,
		string(workerID), asOf.String())

	var (
		p                       payroll.IncomeProfile
		worker, effective       string
		hourly, prof, allowance string
	)
	err := row.Scan(&worker, &effective, &hourly, &prof, &allowance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.WorkerID = payroll.WorkerID(worker)
	if p.EffectiveDate, err = payroll.ParseDate(effective); err != nil {
		return nil, err
	}
	if p.HourlyRate, err = decimal.NewFromString(hourly); err != nil {
		return nil, err
	}
	if p.ProfessionalRate, err = decimal.NewFromString(prof); err != nil {
		return nil, err
	}
	if p.PhoneAllowance, err = decimal.NewFromString(allowance); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ExpenseProfileAsOf(ctx context.Context, workerID payroll.WorkerID, asOf payroll.Date) (*payroll.ExpenseProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT worker_id, effective_date, accommodation, follower_count, follower_rate, utilities
		FROM expense_profiles
		WHERE worker_id = ? AND effective_date <= ?
		ORDER BY effective_date DESC LIMIT 1`,
		string(workerID), asOf.String())

	var (
		p                 payroll.ExpenseProfile
		worker, effective string
		accom, rate, util string
	)
	err := row.Scan(&worker, &effective, &accom, &p.FollowerCount, &rate, &util)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.WorkerID = payroll.WorkerID(worker)
	if p.EffectiveDate, err = payroll.ParseDate(effective); err != nil {
		return nil, err
	}
	if p.Accommodation, err = decimal.NewFromString(accom); err != nil {
		return nil, err
	}
	if p.FollowerRate, err = decimal.NewFromString(rate); err != nil {
		return nil, err
	}
	if p.Utilities, err = decimal.NewFromString(util); err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// WAGE PERIODS
// =============================================================================

// periodDocument is the JSON shape of the embedded, wholly-replaced part
// of a wage period row.
type periodDocument struct {
	Summaries    []payroll.WageSummary `json:"summaries"`
	Totals       payroll.PeriodTotals  `json:"totals"`
	CalculatedAt *time.Time            `json:"calculatedAt,omitempty"`
	ApprovedAt   *time.Time            `json:"approvedAt,omitempty"`
	PaidAt       *time.Time            `json:"paidAt,omitempty"`
	LockedAt     *time.Time            `json:"lockedAt,omitempty"`
}

func (s *Store) CreatePeriod(ctx context.Context, p *payroll.WagePeriod) error {
	if err := p.ValidateSpan(); err != nil {
		return err
	}
	doc, err := marshalPeriodDocument(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wage_periods
			(id, project_id, code, start_date, end_date, status, document_json, has_unresolved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.ProjectID), p.Code, p.Start.String(), p.End.String(),
		string(p.Status), doc, boolInt(p.HasUnresolvedDiscrepancies),
		p.CreatedAt.UTC().Format(tsLayout), p.UpdatedAt.UTC().Format(tsLayout))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: period %s already exists for project %s", payroll.ErrConflict, p.Code, p.ProjectID)
	}
	return err
}

func (s *Store) GetPeriod(ctx context.Context, id string) (*payroll.WagePeriod, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, code, start_date, end_date, status, document_json, has_unresolved, created_at, updated_at
		FROM wage_periods WHERE id = ?`, id)
	return scanPeriod(row)
}

func scanPeriod(row rowScanner) (*payroll.WagePeriod, error) {
	var (
		p                    payroll.WagePeriod
		projectID            string
		start, end, status   string
		doc                  string
		unresolved           int
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &projectID, &p.Code, &start, &end, &status, &doc,
		&unresolved, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.ProjectID = payroll.ProjectID(projectID)
	p.Status = payroll.PeriodStatus(status)
	p.HasUnresolvedDiscrepancies = unresolved != 0
	if p.Start, err = payroll.ParseDate(start); err != nil {
		return nil, err
	}
	if p.End, err = payroll.ParseDate(end); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = time.Parse(tsLayout, createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = time.Parse(tsLayout, updatedAt); err != nil {
		return nil, err
	}

	var document periodDocument
	if err := json.Unmarshal([]byte(doc), &document); err != nil {
		return nil, fmt.Errorf("decoding period document: %w", err)
	}
	p.Summaries = document.Summaries
	p.Totals = document.Totals
	p.CalculatedAt = document.CalculatedAt
	p.ApprovedAt = document.ApprovedAt
	p.PaidAt = document.PaidAt
	p.LockedAt = document.LockedAt
	return &p, nil
}

// ReplacePeriod rewrites the whole period row atomically. The stored
// status is re-read inside the transaction; a locked row refuses the
// write regardless of what the caller passes in.
func (s *Store) ReplacePeriod(ctx context.Context, p *payroll.WagePeriod) error {
	if err := p.ValidateSpan(); err != nil {
		return err
	}
	doc, err := marshalPeriodDocument(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkNotLocked(ctx, tx, p.ID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wage_periods
		SET status = ?, document_json = ?, has_unresolved = ?, updated_at = ?
		WHERE id = ?`,
		string(p.Status), doc, boolInt(p.HasUnresolvedDiscrepancies),
		p.UpdatedAt.UTC().Format(tsLayout), p.ID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeletePeriod(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkNotLocked(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM wage_periods WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func checkNotLocked(ctx context.Context, tx *sql.Tx, id string) error {
	var storedStatus string
	err := tx.QueryRowContext(ctx, `SELECT status FROM wage_periods WHERE id = ?`, id).Scan(&storedStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.ErrNotFound
	}
	if err != nil {
		return err
	}
	if payroll.PeriodStatus(storedStatus) == payroll.PeriodLocked {
		return payroll.ErrPeriodLocked
	}
	return nil
}

func (s *Store) ListPeriods(ctx context.Context, projectID payroll.ProjectID) ([]*payroll.WagePeriod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, code, start_date, end_date, status, document_json, has_unresolved, created_at, updated_at
		FROM wage_periods WHERE project_id = ? ORDER BY start_date`,
		string(projectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*payroll.WagePeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func marshalPeriodDocument(p *payroll.WagePeriod) (string, error) {
	doc, err := json.Marshal(periodDocument{
		Summaries:    p.Summaries,
		Totals:       p.Totals,
		CalculatedAt: p.CalculatedAt,
		ApprovedAt:   p.ApprovedAt,
		PaidAt:       p.PaidAt,
		LockedAt:     p.LockedAt,
	})
	if err != nil {
		return "", fmt.Errorf("encoding period document: %w", err)
	}
	return string(doc), nil
}

// =============================================================================
// AUDIT LOG (append-only)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e payroll.AuditEntry) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return err
	}
	var workDate any
	if !e.WorkDate.Time.IsZero() {
		workDate = e.WorkDate.String()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, worker_id, project_id, work_date, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(tsLayout), e.ActorID, string(e.Action),
		string(e.WorkerID), string(e.ProjectID), workDate, string(detail))
	return err
}

func (s *Store) QueryAudit(ctx context.Context, filter payroll.AuditFilter) ([]payroll.AuditEntry, error) {
	query := `SELECT id, ts, actor_id, action, worker_id, project_id, work_date, detail_json FROM audit_log WHERE 1=1`
	var args []any
	if filter.WorkerID != nil {
		query += ` AND worker_id = ?`
		args = append(args, string(*filter.WorkerID))
	}
	if filter.ProjectID != nil {
		query += ` AND project_id = ?`
		args = append(args, string(*filter.ProjectID))
	}
	if filter.ActorID != nil {
		query += ` AND actor_id = ?`
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		placeholders := strings.Repeat("?,", len(filter.Actions))
		query += ` AND action IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, a := range filter.Actions {
			args = append(args, string(a))
		}
	}
	if filter.From != nil {
		query += ` AND ts >= ?`
		args = append(args, filter.From.UTC().Format(tsLayout))
	}
	if filter.To != nil {
		query += ` AND ts <= ?`
		args = append(args, filter.To.UTC().Format(tsLayout))
	}
	query += ` ORDER BY ts`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payroll.AuditEntry
	for rows.Next() {
		var (
			e                   payroll.AuditEntry
			ts, action          string
			workerID, projectID string
			workDate            sql.NullString
			detail              sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &workerID, &projectID, &workDate, &detail); err != nil {
			return nil, err
		}
		e.Action = payroll.AuditAction(action)
		e.WorkerID = payroll.WorkerID(workerID)
		e.ProjectID = payroll.ProjectID(projectID)
		if e.Timestamp, err = time.Parse(tsLayout, ts); err != nil {
			return nil, err
		}
		if workDate.Valid {
			if e.WorkDate, err = payroll.ParseDate(workDate.String); err != nil {
				return nil, err
			}
		}
		if detail.Valid && detail.String != "" && detail.String != "null" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, err
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
