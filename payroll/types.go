/*
Package payroll provides the reconciliation and wage-computation engine for
daily-contract labor.

PURPOSE:
  This package contains the domain types and algorithms for administering
  twice-monthly payroll: deriving worked hours from manual daily reports and
  biometric scan events, surfacing disagreements between the two sources,
  resolving them with a full audit trail, and computing gross/net wages with
  statutory deductions per 15-day wage period.

KEY CONCEPTS IN THIS FILE (types.go):
  - DailyReport: A human-submitted attendance record (one worker, one day)
  - ScanEvent:   One raw terminal clock event with a sub-period tag
  - ScanSession: Derived, paired in/out intervals for one worker/day
  - Discrepancy: A classified disagreement between the two sources
  - LateRecord:  A deductible late arrival derived from scan data
  - IncomeProfile / ExpenseProfile: Effective-dated per-worker rate cards
  - WageSummary: The per-worker result of a period calculation

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all hours and money; no float64 leaks
  2. Auditability: discrepancies and scan events are never deleted
  3. Type safety: distinct ID types prevent mixing worker/project ids
  4. Determinism: every derived value is reproducible from its inputs

SEE ALSO:
  - timecalc.go: Hour normalization (5-minute floor, overnight handling)
  - session.go:  Pairing scan events into sessions
  - discrepancy.go: Classification rules
  - wages.go:    Period wage computation
  - period.go:   WagePeriod and its lifecycle
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type ProjectID string

// =============================================================================
// WORK TYPES - The four payable sub-periods of a working day
// =============================================================================

type WorkType string

const (
	WorkRegular   WorkType = "regular"
	WorkOTMorning WorkType = "ot_morning" // ~03:00-08:00 window
	WorkOTNoon    WorkType = "ot_noon"    // ~12:00-13:00 window (worked lunch)
	WorkOTEvening WorkType = "ot_evening" // ~17:00 onward
)

// OvertimeTypes lists the three overtime sub-periods, paid at the OT multiplier.
var OvertimeTypes = []WorkType{WorkOTMorning, WorkOTNoon, WorkOTEvening}

// IsOvertime reports whether the work type is paid at the overtime multiplier.
func (w WorkType) IsOvertime() bool {
	return w == WorkOTMorning || w == WorkOTNoon || w == WorkOTEvening
}

// =============================================================================
// SCAN TYPES - The nine terminal-assigned event categories
// =============================================================================

// ScanType is the raw category stamped by the biometric terminal. Each
// category belongs to exactly one sub-period; "late" is a regular-in variant
// that additionally produces a LateRecord.
type ScanType string

const (
	ScanMorningOTIn   ScanType = "morning_ot_in"
	ScanMorningOTOut  ScanType = "morning_ot_out"
	ScanRegularIn     ScanType = "regular_in"
	ScanLate          ScanType = "late" // regular-in recorded after the expected arrival
	ScanRegularOut    ScanType = "regular_out"
	ScanLunchBreakIn  ScanType = "lunch_break_in" // worked-through-lunch window
	ScanLunchBreakOut ScanType = "lunch_break_out"
	ScanEveningOTIn   ScanType = "evening_ot_in"
	ScanEveningOTOut  ScanType = "evening_ot_out"
)

// SubPeriod returns the work type whose session this scan belongs to.
func (s ScanType) SubPeriod() (WorkType, bool) {
	switch s {
	case ScanMorningOTIn, ScanMorningOTOut:
		return WorkOTMorning, true
	case ScanRegularIn, ScanLate, ScanRegularOut:
		return WorkRegular, true
	case ScanLunchBreakIn, ScanLunchBreakOut:
		return WorkOTNoon, true
	case ScanEveningOTIn, ScanEveningOTOut:
		return WorkOTEvening, true
	}
	return "", false
}

// IsIn reports whether the scan opens a session (clock-in side).
func (s ScanType) IsIn() bool {
	switch s {
	case ScanMorningOTIn, ScanRegularIn, ScanLate, ScanLunchBreakIn, ScanEveningOTIn:
		return true
	}
	return false
}

// IsOut reports whether the scan closes a session (clock-out side).
func (s ScanType) IsOut() bool {
	switch s {
	case ScanMorningOTOut, ScanRegularOut, ScanLunchBreakOut, ScanEveningOTOut:
		return true
	}
	return false
}

// ParseScanType maps a terminal code to a ScanType. Terminals emit either
// the symbolic name or a positional digit 1-9.
func ParseScanType(raw string) (ScanType, bool) {
	switch raw {
	case "1", string(ScanMorningOTIn):
		return ScanMorningOTIn, true
	case "2", string(ScanMorningOTOut):
		return ScanMorningOTOut, true
	case "3", string(ScanRegularIn):
		return ScanRegularIn, true
	case "4", string(ScanLate):
		return ScanLate, true
	case "5", string(ScanRegularOut):
		return ScanRegularOut, true
	case "6", string(ScanLunchBreakIn):
		return ScanLunchBreakIn, true
	case "7", string(ScanLunchBreakOut):
		return ScanLunchBreakOut, true
	case "8", string(ScanEveningOTIn):
		return ScanEveningOTIn, true
	case "9", string(ScanEveningOTOut):
		return ScanEveningOTOut, true
	}
	return "", false
}

// =============================================================================
// DAILY REPORT - Human-submitted attendance
// =============================================================================

// DailyReport is one worker's submitted attendance for one day. Once the
// covering wage period is locked the report is immutable; before that it may
// be rewritten by the resolution workflow when a discrepancy exists against it.
type DailyReport struct {
	ID        string
	WorkerID  WorkerID
	ProjectID ProjectID
	WorkDate  Date

	StartTime string // "HH:mm" wall clock
	EndTime   string // "HH:mm" wall clock
	WorkType  WorkType
	Overnight bool

	// ManualHours, when set, overrides the normalized span. Nil means
	// "derive from StartTime/EndTime".
	ManualHours *decimal.Decimal

	TaskDescription string

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Hours returns the report's worked hours: the manual override when present,
// otherwise the normalized start/end span.
func (r *DailyReport) Hours() (decimal.Decimal, error) {
	if r.ManualHours != nil {
		return *r.ManualHours, nil
	}
	return NormalizeRange(r.StartTime, r.EndTime, r.Overnight)
}

// =============================================================================
// SCAN EVENT - Raw terminal data (append-only)
// =============================================================================

// ScanEvent is one terminal clock event. Created only by the import
// pipeline; never mutated or deleted, to preserve the audit trail.
type ScanEvent struct {
	ID             string
	EmployeeNumber string // worker external id as printed by the terminal
	Timestamp      time.Time
	Type           ScanType
	BatchID        string // import batch that created this event
	CreatedAt      time.Time
}

// =============================================================================
// SCAN SESSION - Derived in/out pairs for one worker/day
// =============================================================================

// SubSession is one paired in/out interval within a working day.
type SubSession struct {
	Period  WorkType
	In      ScanEvent
	Out     ScanEvent
	Minutes int64 // floored to the 5-minute grid
	Hours   decimal.Decimal
}

// ScanSession groups a worker's scan events for one calendar day. It is
// derived on demand and must be reproducible deterministically from the
// underlying events.
type ScanSession struct {
	WorkerID WorkerID
	Date     Date

	Events      []ScanEvent  // day's events, timestamp ascending
	SubSessions []SubSession // paired intervals
	Unmatched   []ScanEvent  // in/out halves with no partner; excluded from hours

	ScannedHours decimal.Decimal

	// Inferred bounds across all paired sub-sessions, "HH:mm". Empty when
	// no pair was formed. Used when synthesizing a daily report.
	InferredStart string
	InferredEnd   string
}

// HasScannedHours reports whether the session contributed any measured time.
func (s *ScanSession) HasScannedHours() bool {
	return s != nil && s.ScannedHours.IsPositive()
}

// =============================================================================
// DISCREPANCY - A classified source disagreement (audit trail, never deleted)
// =============================================================================

type DiscrepancyType string

const (
	// Type1: both sources exist and reported hours understate scanned hours.
	DiscrepancyType1 DiscrepancyType = "type1"
	// Type2: a report exists but the terminal recorded nothing usable.
	DiscrepancyType2 DiscrepancyType = "type2"
	// Type3: the terminal recorded hours but no report was submitted.
	DiscrepancyType3 DiscrepancyType = "type3"
)

type Severity string

const (
	SeverityLow    Severity = "low"    // |diff| <= 1
	SeverityMedium Severity = "medium" // 1 < |diff| <= 2
	SeverityHigh   Severity = "high"   // |diff| > 2
)

type DiscrepancyStatus string

const (
	DiscrepancyPending  DiscrepancyStatus = "pending"
	DiscrepancyVerified DiscrepancyStatus = "verified"
	DiscrepancyFixed    DiscrepancyStatus = "fixed"
	DiscrepancyIgnored  DiscrepancyStatus = "ignored"
)

type ResolutionMethod string

const (
	ResolveUpdateReport ResolutionMethod = "update_dr"
	ResolveCreateReport ResolutionMethod = "create_dr"
	ResolveVerify       ResolutionMethod = "verify"
	ResolveIgnore       ResolutionMethod = "ignore"
)

// Discrepancy records one disagreement between a worker's daily report and
// their scan session. Exactly one exists per (worker, work date); it is
// created by the detector, mutated only by the resolution workflow, and
// never deleted.
type Discrepancy struct {
	ID        string
	WorkerID  WorkerID
	ProjectID ProjectID
	WorkDate  Date

	Type     DiscrepancyType
	Severity Severity

	ReportHours *decimal.Decimal // nil when no report exists (Type3)
	ScanHours   *decimal.Decimal // nil when no scan data exists (Type2)
	HoursDiff   decimal.Decimal  // |scan - report|, zero side treated as 0

	Status           DiscrepancyStatus
	ResolutionMethod *ResolutionMethod
	ResolutionNote   *string
	ResolvedBy       *string
	ResolvedAt       *time.Time

	DetectedAt time.Time
}

// Terminal reports whether the discrepancy has reached a final status.
// Terminal discrepancies are never re-classified by later detector runs.
func (d *Discrepancy) Terminal() bool {
	switch d.Status {
	case DiscrepancyVerified, DiscrepancyFixed, DiscrepancyIgnored:
		return true
	}
	return false
}

// =============================================================================
// LATE RECORD - Deductible late arrival
// =============================================================================

// LateRecord is produced by session building when a "late" scan is present
// and consumed by the wage calculator when flagged for inclusion.
type LateRecord struct {
	ID       string
	WorkerID WorkerID
	Date     Date

	ScannedArrival  string // "HH:mm"
	ExpectedArrival string // "HH:mm"
	MinutesLate     int64

	Deduction                 decimal.Decimal
	IncludedInWageCalculation bool
}

// =============================================================================
// RATE CARDS - Effective-dated per-worker profiles (read-only to this engine)
// =============================================================================

// IncomeProfile is a worker's earning rate card. When several exist the one
// with the most recent effective date on or before the lookup date wins.
type IncomeProfile struct {
	WorkerID      WorkerID
	EffectiveDate Date

	HourlyRate       decimal.Decimal
	ProfessionalRate decimal.Decimal // flat per period; zero when unassigned
	PhoneAllowance   decimal.Decimal // flat per period
}

// ExpenseProfile is a worker's deduction rate card, same effective-date rule.
type ExpenseProfile struct {
	WorkerID      WorkerID
	EffectiveDate Date

	Accommodation decimal.Decimal
	FollowerCount int64
	FollowerRate  decimal.Decimal // fixed accommodation rate per follower
	Utilities     decimal.Decimal // appliance line items, summed
}

// FollowerCost returns the derived follower-accommodation charge.
func (e *ExpenseProfile) FollowerCost() decimal.Decimal {
	return e.FollowerRate.Mul(decimal.NewFromInt(e.FollowerCount))
}

// =============================================================================
// WAGE SUMMARY - Per-worker result of a period calculation
// =============================================================================

// WageSummary is one worker's computed wages for a period. The calculator
// replaces a period's summary list wholesale on every run; summaries are
// never partially patched.
type WageSummary struct {
	WorkerID WorkerID

	RegularHours   decimal.Decimal
	OTMorningHours decimal.Decimal
	OTNoonHours    decimal.Decimal
	OTEveningHours decimal.Decimal

	// Gross breakdown
	BasePay         decimal.Decimal // regular hours x hourly rate
	OvertimePay     decimal.Decimal // OT hours x hourly rate x multiplier
	ProfessionalPay decimal.Decimal
	PhoneAllowance  decimal.Decimal
	Gross           decimal.Decimal

	// Expense breakdown
	Accommodation decimal.Decimal
	Utilities     decimal.Decimal
	FollowerCost  decimal.Decimal
	Expenses      decimal.Decimal

	SocialSecurity decimal.Decimal
	LateDeduction  decimal.Decimal

	Net decimal.Decimal
}

// OTHours returns the worker's combined overtime hours.
func (s WageSummary) OTHours() decimal.Decimal {
	return s.OTMorningHours.Add(s.OTNoonHours).Add(s.OTEveningHours)
}
