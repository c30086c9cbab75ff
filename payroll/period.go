/*
period.go - Wage period and its lifecycle

PURPOSE:
  A WagePeriod is one project's 15-day payroll cycle. It owns the
  per-worker wage summaries computed for it and the aggregate totals; the
  summary list is replaced wholesale on every calculation run, never
  patched, so recomputation stays provably idempotent.

LIFECYCLE (linear, no skipping):
  draft --calculate--> calculated --approve--> approved --markPaid--> paid

  Any state may additionally reach "locked", a terminal override after
  which NOTHING in the period's scope may be written again.

RULES:
  - calculate: valid from draft, re-runnable from calculated (idempotent
    recompute). Pending discrepancies do not block calculation; they are
    recorded on the period's unresolved flag instead.
  - approve:   only from calculated, and refused while the unresolved flag
    is set. This is where the pending-discrepancy block is enforced.
  - markPaid:  only from approved.
  - delete:    only in draft or calculated.
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// WAGE PERIOD
// =============================================================================

type PeriodStatus string

const (
	PeriodDraft      PeriodStatus = "draft"
	PeriodCalculated PeriodStatus = "calculated"
	PeriodApproved   PeriodStatus = "approved"
	PeriodPaid       PeriodStatus = "paid"
	PeriodLocked     PeriodStatus = "locked"
)

// PeriodDays is the fixed span of every wage period.
const PeriodDays = 15

// PeriodTotals aggregates the summary list.
type PeriodTotals struct {
	RegularHours decimal.Decimal
	OTHours      decimal.Decimal
	Gross        decimal.Decimal
	Deductions   decimal.Decimal
	Net          decimal.Decimal
}

// WagePeriod is one project's payroll cycle: the half-open day span
// [Start, End), its lifecycle status, and the owned summary list.
type WagePeriod struct {
	ID        string
	ProjectID ProjectID
	Code      string // deterministic from the start date
	Start     Date
	End       Date
	Status    PeriodStatus

	Summaries []WageSummary
	Totals    PeriodTotals

	// HasUnresolvedDiscrepancies is set by calculation when pending
	// discrepancies exist in scope; it blocks approval.
	HasUnresolvedDiscrepancies bool

	CreatedAt    time.Time
	UpdatedAt    time.Time
	CalculatedAt *time.Time
	ApprovedAt   *time.Time
	PaidAt       *time.Time
	LockedAt     *time.Time
}

// NewWagePeriod creates a draft period covering the 15 days from start.
func NewWagePeriod(projectID ProjectID, start Date) (*WagePeriod, error) {
	if projectID == "" {
		return nil, &ValidationError{Field: "project_id", Message: "project is required"}
	}
	if start.IsZero() {
		return nil, &ValidationError{Field: "start_date", Message: "start date is required"}
	}
	now := time.Now().UTC()
	return &WagePeriod{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Code:      PeriodCode(start),
		Start:     start,
		End:       start.AddDays(PeriodDays),
		Status:    PeriodDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// PeriodCode derives the deterministic code for a period starting on the
// given date.
func PeriodCode(start Date) string {
	return fmt.Sprintf("WP-%s", start.normalize().Format("20060102"))
}

// Span returns the period's half-open day range.
func (p *WagePeriod) Span() DateRange {
	return DateRange{From: p.Start, To: p.End}
}

// ValidateSpan checks the exactly-15-days invariant. Stores call this
// before persisting anything.
func (p *WagePeriod) ValidateSpan() error {
	if DaysBetween(p.Start, p.End) != PeriodDays {
		return &ValidationError{
			Field:   "end_date",
			Message: fmt.Sprintf("period must span exactly %d days, got %d", PeriodDays, DaysBetween(p.Start, p.End)),
		}
	}
	return nil
}

// =============================================================================
// LIFECYCLE SERVICE
// =============================================================================

// Lifecycle gates period transitions. Calculation itself is delegated to
// the wage calculator; everything here is pure state control around it.
type Lifecycle struct {
	Periods       PeriodStore
	Discrepancies DiscrepancyStore
	Calculator    *Calculator
	Audit         AuditLog
	Log           *logrus.Logger
}

// Create persists a new draft period.
func (l *Lifecycle) Create(ctx context.Context, projectID ProjectID, start Date) (*WagePeriod, error) {
	period, err := NewWagePeriod(projectID, start)
	if err != nil {
		return nil, err
	}
	if err := period.ValidateSpan(); err != nil {
		return nil, err
	}
	if err := l.Periods.CreatePeriod(ctx, period); err != nil {
		return nil, err
	}
	return period, nil
}

// Calculate runs the wage calculation for a period in draft or calculated
// status. Re-running from calculated is an idempotent recompute.
func (l *Lifecycle) Calculate(ctx context.Context, periodID string) (*WagePeriod, error) {
	period, err := l.Periods.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status != PeriodDraft && period.Status != PeriodCalculated {
		return nil, &StateError{Entity: "period", From: string(period.Status), Action: "calculate"}
	}

	calculated, err := l.Calculator.Calculate(ctx, period)
	if err != nil {
		return nil, err
	}

	l.audit(ctx, calculated, AuditPeriodCalculated, "")
	return calculated, nil
}

// Approve moves a calculated period to approved. Refused while pending
// discrepancies remain in scope.
func (l *Lifecycle) Approve(ctx context.Context, periodID, actorID string) (*WagePeriod, error) {
	period, err := l.Periods.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status != PeriodCalculated {
		return nil, &StateError{Entity: "period", From: string(period.Status), Action: "approve"}
	}

	// Re-check live, not just the flag snapshotted at calculation time.
	pending, err := l.Discrepancies.CountPendingDiscrepancies(ctx, period.ProjectID, period.Span())
	if err != nil {
		return nil, err
	}
	if pending > 0 || period.HasUnresolvedDiscrepancies {
		return nil, &ValidationError{
			Field:   "discrepancies",
			Message: fmt.Sprintf("%d pending discrepancies must be resolved before approval", pending),
		}
	}

	now := time.Now().UTC()
	period.Status = PeriodApproved
	period.ApprovedAt = &now
	period.UpdatedAt = now
	if err := l.Periods.ReplacePeriod(ctx, period); err != nil {
		return nil, err
	}
	l.audit(ctx, period, AuditPeriodApproved, actorID)
	return period, nil
}

// MarkPaid moves an approved period to paid.
func (l *Lifecycle) MarkPaid(ctx context.Context, periodID, actorID string) (*WagePeriod, error) {
	period, err := l.Periods.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status != PeriodApproved {
		return nil, &StateError{Entity: "period", From: string(period.Status), Action: "markPaid"}
	}

	now := time.Now().UTC()
	period.Status = PeriodPaid
	period.PaidAt = &now
	period.UpdatedAt = now
	if err := l.Periods.ReplacePeriod(ctx, period); err != nil {
		return nil, err
	}
	l.audit(ctx, period, AuditPeriodPaid, actorID)
	return period, nil
}

// Lock makes the period and everything in its scope read-only. Reachable
// from any state; terminal.
func (l *Lifecycle) Lock(ctx context.Context, periodID, actorID string) (*WagePeriod, error) {
	period, err := l.Periods.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status == PeriodLocked {
		return nil, &StateError{Entity: "period", From: string(period.Status), Action: "lock"}
	}

	now := time.Now().UTC()
	period.Status = PeriodLocked
	period.LockedAt = &now
	period.UpdatedAt = now
	if err := l.Periods.ReplacePeriod(ctx, period); err != nil {
		return nil, err
	}
	l.audit(ctx, period, AuditPeriodLocked, actorID)
	return period, nil
}

// Delete removes a period still in draft or calculated.
func (l *Lifecycle) Delete(ctx context.Context, periodID string) error {
	period, err := l.Periods.GetPeriod(ctx, periodID)
	if err != nil {
		return err
	}
	if period.Status != PeriodDraft && period.Status != PeriodCalculated {
		return &StateError{Entity: "period", From: string(period.Status), Action: "delete"}
	}
	return l.Periods.DeletePeriod(ctx, periodID)
}

func (l *Lifecycle) audit(ctx context.Context, period *WagePeriod, action AuditAction, actorID string) {
	if l.Audit == nil {
		return
	}
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
		Action:    action,
		ProjectID: period.ProjectID,
		Detail:    map[string]string{"period": period.ID, "code": period.Code, "status": string(period.Status)},
	}
	if err := l.Audit.AppendAudit(ctx, entry); err != nil && l.Log != nil {
		l.Log.WithError(err).WithField("period", period.ID).Warn("audit append failed")
	}
}
