/*
store.go - Persistence interfaces for the payroll engine

PURPOSE:
  Defines the contract between the engine and whatever stores the data.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage; the engine only sees these interfaces.

KEY INTERFACES:
  DailyReportStore: Human attendance records
  ScanEventStore:   Raw terminal events (APPEND-ONLY: bulk insert + reads,
                    no update, no delete - this is the audit trail)
  DiscrepancyStore: Source disagreements (status transitions only, never
                    deleted)
  LateRecordStore:  Deductible late arrivals
  RateCardStore:    Effective-dated income/expense profiles (read-only here)
  PeriodStore:      Wage periods with embedded summaries; the summary list
                    is replaced wholesale and atomically, never patched
  AuditLog:         Append-only record of who resolved what, when

LOCKED PERIODS:
  Implementations must refuse any write to a period whose stored status is
  "locked" (ErrPeriodLocked), regardless of what the caller asks for.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - payroll/store: in-memory for tests and development
*/
package payroll

import (
	"context"
	"time"
)

// =============================================================================
// DAILY REPORTS
// =============================================================================

type DailyReportStore interface {
	CreateDailyReport(ctx context.Context, report *DailyReport) error

	// GetDailyReport returns the report for one (worker, date, project)
	// identity, or ErrNotFound.
	GetDailyReport(ctx context.Context, workerID WorkerID, date Date, projectID ProjectID) (*DailyReport, error)

	// UpdateDailyReport replaces the stored report by ID.
	UpdateDailyReport(ctx context.Context, report *DailyReport) error

	// ListDailyReports returns a project's reports with work date in the
	// half-open range, ordered by (work date, worker id).
	ListDailyReports(ctx context.Context, projectID ProjectID, span DateRange) ([]*DailyReport, error)
}

// =============================================================================
// SCAN EVENTS (append-only)
// =============================================================================

type ScanEventStore interface {
	// BulkInsertScanEvents persists a batch of events atomically.
	BulkInsertScanEvents(ctx context.Context, events []ScanEvent) error

	// ListScanEvents returns events with timestamp date in the half-open
	// range, ordered by (employee number, timestamp).
	ListScanEvents(ctx context.Context, span DateRange) ([]ScanEvent, error)

	// ListScanEventsForWorker narrows to one employee number.
	ListScanEventsForWorker(ctx context.Context, employeeNumber string, span DateRange) ([]ScanEvent, error)
}

// =============================================================================
// DISCREPANCIES (never deleted)
// =============================================================================

type DiscrepancyStore interface {
	// GetDiscrepancy returns the record for one (worker, date) identity,
	// or ErrNotFound.
	GetDiscrepancy(ctx context.Context, workerID WorkerID, date Date) (*Discrepancy, error)

	GetDiscrepancyByID(ctx context.Context, id string) (*Discrepancy, error)

	// UpsertDiscrepancy inserts or replaces by (worker, date) identity.
	UpsertDiscrepancy(ctx context.Context, d *Discrepancy) error

	// ListDiscrepancies returns a project's discrepancies in the range,
	// optionally filtered by status (empty = all), ordered by
	// (work date, worker id).
	ListDiscrepancies(ctx context.Context, projectID ProjectID, span DateRange, status DiscrepancyStatus) ([]*Discrepancy, error)

	// CountPendingDiscrepancies counts status=pending in scope.
	CountPendingDiscrepancies(ctx context.Context, projectID ProjectID, span DateRange) (int, error)
}

// =============================================================================
// LATE RECORDS
// =============================================================================

type LateRecordStore interface {
	UpsertLateRecord(ctx context.Context, record *LateRecord) error

	// ListLateRecords returns every late record with date in the half-open
	// range, ordered by (date, worker id).
	ListLateRecords(ctx context.Context, span DateRange) ([]*LateRecord, error)
}

// =============================================================================
// RATE CARDS (read-only to this engine)
// =============================================================================

type RateCardStore interface {
	// IncomeProfileAsOf returns the worker's income profile with the most
	// recent effective date on or before asOf, or ErrNotFound.
	IncomeProfileAsOf(ctx context.Context, workerID WorkerID, asOf Date) (*IncomeProfile, error)

	// ExpenseProfileAsOf is the expense-side counterpart. A worker with no
	// expense profile simply has no deductible expenses; implementations
	// return ErrNotFound and the calculator treats it as zero.
	ExpenseProfileAsOf(ctx context.Context, workerID WorkerID, asOf Date) (*ExpenseProfile, error)
}

// =============================================================================
// WAGE PERIODS
// =============================================================================

type PeriodStore interface {
	CreatePeriod(ctx context.Context, period *WagePeriod) error
	GetPeriod(ctx context.Context, id string) (*WagePeriod, error)

	// ReplacePeriod writes the whole period document - status, flags and
	// the full summary list - in one atomic operation. Must fail with
	// ErrPeriodLocked when the STORED status is locked.
	ReplacePeriod(ctx context.Context, period *WagePeriod) error

	// DeletePeriod removes a period. The lifecycle layer restricts this to
	// draft/calculated; the store still refuses locked.
	DeletePeriod(ctx context.Context, id string) error

	ListPeriods(ctx context.Context, projectID ProjectID) ([]*WagePeriod, error)
}

// =============================================================================
// AUDIT LOG - Append-only, separate from the records it describes
// =============================================================================

type AuditAction string

const (
	AuditDiscrepancyDetected AuditAction = "discrepancy_detected"
	AuditDiscrepancyResolved AuditAction = "discrepancy_resolved"
	AuditReportRewritten     AuditAction = "report_rewritten"
	AuditReportSynthesized   AuditAction = "report_synthesized"
	AuditPeriodCalculated    AuditAction = "period_calculated"
	AuditPeriodApproved      AuditAction = "period_approved"
	AuditPeriodPaid          AuditAction = "period_paid"
	AuditPeriodLocked        AuditAction = "period_locked"
)

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string
	Action    AuditAction
	WorkerID  WorkerID
	ProjectID ProjectID
	WorkDate  Date
	Detail    map[string]string
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	WorkerID  *WorkerID
	ProjectID *ProjectID
	ActorID   *string
	Actions   []AuditAction
	From      *time.Time
	To        *time.Time
}
