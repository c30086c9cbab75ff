/*
resolution.go - Discrepancy resolution workflow

PURPOSE:
  Moves a discrepancy from pending to one of its terminal statuses and,
  where the method calls for it, mutates the daily report it disputes.
  Every transition is recorded in the append-only audit log with actor,
  timestamp and the mandatory note.

METHOD / TYPE COMPATIBILITY:
  update_dr  Type1, Type2 only (a report must exist to rewrite)
  create_dr  Type3 only (no report may exist yet)
  verify     any type, no data mutation
  ignore     any type, excluded from period-approval blocking

  An incompatible combination is a validation error, never a silent no-op.

STATE RULES:
  Only a pending discrepancy can be resolved; terminal ones reject with a
  state error. Resolution is also refused when the disputed date falls in a
  locked wage period.
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

// ResolutionAction is the action surface consumed from the UI layer.
type ResolutionAction struct {
	Method       ResolutionMethod
	Note         string // mandatory
	UpdatedHours *decimal.Decimal
	ActorID      string
}

// Resolver executes resolution actions against discrepancies.
type Resolver struct {
	Discrepancies DiscrepancyStore
	Reports       DailyReportStore
	Scans         ScanEventStore
	Periods       PeriodStore
	Audit         AuditLog
	Sessions      *SessionBuilder
	Log           *logrus.Logger
}

// Resolve applies one action to one discrepancy. The returned discrepancy
// reflects the terminal status.
func (r *Resolver) Resolve(ctx context.Context, discrepancyID string, action ResolutionAction) (*Discrepancy, error) {
	if action.Note == "" {
		return nil, &ValidationError{Field: "note", Message: "resolution note is required"}
	}
	if action.ActorID == "" {
		return nil, &ValidationError{Field: "actor", Message: "resolving actor is required"}
	}

	d, err := r.Discrepancies.GetDiscrepancyByID(ctx, discrepancyID)
	if err != nil {
		return nil, err
	}
	if d.Terminal() {
		return nil, &StateError{Entity: "discrepancy", From: string(d.Status), Action: "resolve"}
	}
	if err := r.checkPeriodNotLocked(ctx, d); err != nil {
		return nil, err
	}
	if err := validateMethod(action.Method, d.Type); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	switch action.Method {
	case ResolveUpdateReport:
		if err := r.rewriteReport(ctx, d, action, now); err != nil {
			return nil, err
		}
		d.Status = DiscrepancyFixed
	case ResolveCreateReport:
		if err := r.synthesizeReport(ctx, d, action, now); err != nil {
			return nil, err
		}
		d.Status = DiscrepancyFixed
	case ResolveVerify:
		d.Status = DiscrepancyVerified
	case ResolveIgnore:
		d.Status = DiscrepancyIgnored
	}

	method := action.Method
	note := action.Note
	actor := action.ActorID
	d.ResolutionMethod = &method
	d.ResolutionNote = &note
	d.ResolvedBy = &actor
	d.ResolvedAt = &now

	if err := r.Discrepancies.UpsertDiscrepancy(ctx, d); err != nil {
		return nil, fmt.Errorf("persisting resolution: %w", err)
	}

	if r.Audit != nil {
		entry := AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: now,
			ActorID:   actor,
			Action:    AuditDiscrepancyResolved,
			WorkerID:  d.WorkerID,
			ProjectID: d.ProjectID,
			WorkDate:  d.WorkDate,
			Detail: map[string]string{
				"method": string(method),
				"note":   note,
				"status": string(d.Status),
			},
		}
		if err := r.Audit.AppendAudit(ctx, entry); err != nil {
			return nil, fmt.Errorf("recording audit entry: %w", err)
		}
	}

	if r.Log != nil {
		r.Log.WithFields(logrus.Fields{
			"discrepancy": d.ID,
			"worker":      d.WorkerID,
			"date":        d.WorkDate.String(),
			"method":      method,
			"status":      d.Status,
		}).Info("discrepancy resolved")
	}
	return d, nil
}

// validateMethod enforces the method/type compatibility matrix.
func validateMethod(method ResolutionMethod, dtype DiscrepancyType) error {
	switch method {
	case ResolveUpdateReport:
		if dtype == DiscrepancyType3 {
			return &ValidationError{Field: "method", Message: "update_dr requires an existing daily report (not valid for type3)"}
		}
	case ResolveCreateReport:
		if dtype != DiscrepancyType3 {
			return &ValidationError{Field: "method", Message: "create_dr is only valid when no daily report exists (type3)"}
		}
	case ResolveVerify, ResolveIgnore:
		// Valid from any type.
	default:
		return &ValidationError{Field: "method", Message: fmt.Sprintf("unknown resolution method %q", method)}
	}
	return nil
}

// rewriteReport sets the disputed report's hours to the scanned value (or
// the explicit override from the action).
func (r *Resolver) rewriteReport(ctx context.Context, d *Discrepancy, action ResolutionAction, now time.Time) error {
	report, err := r.Reports.GetDailyReport(ctx, d.WorkerID, d.WorkDate, d.ProjectID)
	if err != nil {
		return fmt.Errorf("loading disputed report: %w", err)
	}

	hours := d.ScanHours
	if action.UpdatedHours != nil {
		hours = action.UpdatedHours
	}
	if hours == nil {
		return &ValidationError{Field: "updatedHours", Message: "no scanned hours to apply and no override given"}
	}

	h := *hours
	report.ManualHours = &h
	report.UpdatedAt = now
	if err := r.Reports.UpdateDailyReport(ctx, report); err != nil {
		return fmt.Errorf("rewriting report: %w", err)
	}

	if r.Audit != nil {
		return r.Audit.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: now,
			ActorID:   action.ActorID,
			Action:    AuditReportRewritten,
			WorkerID:  d.WorkerID,
			ProjectID: d.ProjectID,
			WorkDate:  d.WorkDate,
			Detail:    map[string]string{"hours": h.String()},
		})
	}
	return nil
}

// synthesizeReport creates a daily report from the scan session's inferred
// bounds for a scanned-but-unreported day.
func (r *Resolver) synthesizeReport(ctx context.Context, d *Discrepancy, action ResolutionAction, now time.Time) error {
	if _, err := r.Reports.GetDailyReport(ctx, d.WorkerID, d.WorkDate, d.ProjectID); err == nil {
		return fmt.Errorf("%w: report already exists for %s/%s", ErrConflict, d.WorkerID, d.WorkDate)
	} else if !IsNotFound(err) {
		return err
	}

	hours := d.ScanHours
	if action.UpdatedHours != nil {
		hours = action.UpdatedHours
	}
	if hours == nil {
		return &ValidationError{Field: "updatedHours", Message: "discrepancy carries no scanned hours"}
	}

	start, end, err := r.inferredBounds(ctx, d)
	if err != nil {
		return err
	}

	h := *hours
	report := &DailyReport{
		ID:              uuid.NewString(),
		WorkerID:        d.WorkerID,
		ProjectID:       d.ProjectID,
		WorkDate:        d.WorkDate,
		StartTime:       start,
		EndTime:         end,
		WorkType:        WorkRegular,
		ManualHours:     &h,
		TaskDescription: "created from scan data: " + action.Note,
		CreatedBy:       action.ActorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.Reports.CreateDailyReport(ctx, report); err != nil {
		return fmt.Errorf("creating synthesized report: %w", err)
	}

	if r.Audit != nil {
		return r.Audit.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: now,
			ActorID:   action.ActorID,
			Action:    AuditReportSynthesized,
			WorkerID:  d.WorkerID,
			ProjectID: d.ProjectID,
			WorkDate:  d.WorkDate,
			Detail:    map[string]string{"hours": h.String(), "start": start, "end": end},
		})
	}
	return nil
}

// inferredBounds rebuilds the disputed day's scan session to recover the
// clock bounds for the synthesized report. Bounds stay empty when no scan
// store is wired or the day's events never formed a pair.
func (r *Resolver) inferredBounds(ctx context.Context, d *Discrepancy) (string, string, error) {
	if r.Scans == nil {
		return "", "", nil
	}
	span := DateRange{From: d.WorkDate, To: d.WorkDate.AddDays(1)}
	events, err := r.Scans.ListScanEventsForWorker(ctx, string(d.WorkerID), span)
	if err != nil {
		return "", "", fmt.Errorf("loading scan events: %w", err)
	}
	if len(events) == 0 {
		return "", "", nil
	}
	builder := r.Sessions
	if builder == nil {
		builder = NewSessionBuilder()
	}
	session, err := builder.Build(d.WorkerID, d.WorkDate, events)
	if err != nil {
		return "", "", fmt.Errorf("rebuilding scan session: %w", err)
	}
	return session.InferredStart, session.InferredEnd, nil
}

// checkPeriodNotLocked refuses resolution once the disputed date sits in a
// locked period.
func (r *Resolver) checkPeriodNotLocked(ctx context.Context, d *Discrepancy) error {
	if r.Periods == nil {
		return nil
	}
	periods, err := r.Periods.ListPeriods(ctx, d.ProjectID)
	if err != nil {
		return err
	}
	for _, p := range periods {
		if p.Status == PeriodLocked && p.Span().Contains(d.WorkDate) {
			return ErrPeriodLocked
		}
	}
	return nil
}
