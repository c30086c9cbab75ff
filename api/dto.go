/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Daily reports:
    DailyReportDTO, CreateReportRequest, UpdateReportRequest

  Discrepancies:
    DiscrepancyDTO, DetectRequest, ResolveRequest

  Periods:
    PeriodDTO, WageSummaryDTO, CreatePeriodRequest

VALIDATION:
  Request types carry validator/v10 struct tags and handlers run them
  through the shared validator before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup and middleware
*/
package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/forgeline/payroll-engine/payroll"
)

// validate is the shared request validator.
var validate = validator.New()

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DAILY REPORTS
// =============================================================================

// DailyReportDTO represents a daily report in API responses.
type DailyReportDTO struct {
	ID              string `json:"id"`
	WorkerID        string `json:"worker_id"`
	ProjectID       string `json:"project_id"`
	WorkDate        string `json:"work_date"`
	StartTime       string `json:"start_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`
	WorkType        string `json:"work_type"`
	Overnight       bool   `json:"overnight"`
	ManualHours     string `json:"manual_hours,omitempty"`
	Hours           string `json:"hours,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
	CreatedBy       string `json:"created_by,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// CreateReportRequest is the request to submit a daily report.
type CreateReportRequest struct {
	WorkerID        string `json:"worker_id" validate:"required"`
	ProjectID       string `json:"project_id" validate:"required"`
	WorkDate        string `json:"work_date" validate:"required,datetime=2006-01-02"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	WorkType        string `json:"work_type" validate:"required,oneof=regular ot_morning ot_noon ot_evening"`
	Overnight       bool   `json:"overnight"`
	TaskDescription string `json:"task_description"`
	CreatedBy       string `json:"created_by"`
}

// UpdateReportRequest edits an existing report, addressed by its identity.
type UpdateReportRequest struct {
	WorkerID        string `json:"worker_id" validate:"required"`
	ProjectID       string `json:"project_id" validate:"required"`
	WorkDate        string `json:"work_date" validate:"required,datetime=2006-01-02"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	WorkType        string `json:"work_type" validate:"required,oneof=regular ot_morning ot_noon ot_evening"`
	Overnight       bool   `json:"overnight"`
	TaskDescription string `json:"task_description"`
}

func toReportDTO(r *payroll.DailyReport) DailyReportDTO {
	dto := DailyReportDTO{
		ID:              r.ID,
		WorkerID:        string(r.WorkerID),
		ProjectID:       string(r.ProjectID),
		WorkDate:        r.WorkDate.String(),
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		WorkType:        string(r.WorkType),
		Overnight:       r.Overnight,
		TaskDescription: r.TaskDescription,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
	if r.ManualHours != nil {
		dto.ManualHours = r.ManualHours.String()
	}
	if hours, err := r.Hours(); err == nil {
		dto.Hours = hours.String()
	}
	return dto
}

// =============================================================================
// DISCREPANCIES
// =============================================================================

// DiscrepancyDTO represents a discrepancy in API responses.
type DiscrepancyDTO struct {
	ID               string `json:"id"`
	WorkerID         string `json:"worker_id"`
	ProjectID        string `json:"project_id"`
	WorkDate         string `json:"work_date"`
	Type             string `json:"type"`
	Severity         string `json:"severity"`
	ReportHours      string `json:"report_hours,omitempty"`
	ScanHours        string `json:"scan_hours,omitempty"`
	HoursDiff        string `json:"hours_diff"`
	Status           string `json:"status"`
	ResolutionMethod string `json:"resolution_method,omitempty"`
	ResolutionNote   string `json:"resolution_note,omitempty"`
	ResolvedBy       string `json:"resolved_by,omitempty"`
	ResolvedAt       string `json:"resolved_at,omitempty"`
	DetectedAt       string `json:"detected_at"`
}

// DetectRequest scopes a detection run.
type DetectRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	From      string `json:"from" validate:"required,datetime=2006-01-02"`
	To        string `json:"to" validate:"required,datetime=2006-01-02"`
}

// ResolveRequest is the resolution action surface.
type ResolveRequest struct {
	Method       string  `json:"method" validate:"required,oneof=update_dr create_dr verify ignore"`
	Note         string  `json:"note" validate:"required"`
	UpdatedHours *string `json:"updated_hours,omitempty"`
	ActorID      string  `json:"actor_id" validate:"required"`
}

func (r ResolveRequest) toAction() (payroll.ResolutionAction, error) {
	action := payroll.ResolutionAction{
		Method:  payroll.ResolutionMethod(r.Method),
		Note:    r.Note,
		ActorID: r.ActorID,
	}
	if r.UpdatedHours != nil {
		hours, err := decimal.NewFromString(*r.UpdatedHours)
		if err != nil {
			return action, &payroll.ValidationError{Field: "updated_hours", Message: "not a decimal number"}
		}
		action.UpdatedHours = &hours
	}
	return action, nil
}

func toDiscrepancyDTO(d *payroll.Discrepancy) DiscrepancyDTO {
	dto := DiscrepancyDTO{
		ID:         d.ID,
		WorkerID:   string(d.WorkerID),
		ProjectID:  string(d.ProjectID),
		WorkDate:   d.WorkDate.String(),
		Type:       string(d.Type),
		Severity:   string(d.Severity),
		HoursDiff:  d.HoursDiff.String(),
		Status:     string(d.Status),
		DetectedAt: d.DetectedAt.Format(time.RFC3339),
	}
	if d.ReportHours != nil {
		dto.ReportHours = d.ReportHours.String()
	}
	if d.ScanHours != nil {
		dto.ScanHours = d.ScanHours.String()
	}
	if d.ResolutionMethod != nil {
		dto.ResolutionMethod = string(*d.ResolutionMethod)
	}
	if d.ResolutionNote != nil {
		dto.ResolutionNote = *d.ResolutionNote
	}
	if d.ResolvedBy != nil {
		dto.ResolvedBy = *d.ResolvedBy
	}
	if d.ResolvedAt != nil {
		dto.ResolvedAt = d.ResolvedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// PERIODS
// =============================================================================

// WageSummaryDTO is one worker's line in a period response.
type WageSummaryDTO struct {
	WorkerID string `json:"worker_id"`

	RegularHours   string `json:"regular_hours"`
	OTMorningHours string `json:"ot_morning_hours"`
	OTNoonHours    string `json:"ot_noon_hours"`
	OTEveningHours string `json:"ot_evening_hours"`

	BasePay         string `json:"base_pay"`
	OvertimePay     string `json:"overtime_pay"`
	ProfessionalPay string `json:"professional_pay"`
	PhoneAllowance  string `json:"phone_allowance"`
	Gross           string `json:"gross"`

	Accommodation string `json:"accommodation"`
	Utilities     string `json:"utilities"`
	FollowerCost  string `json:"follower_cost"`
	Expenses      string `json:"expenses"`

	SocialSecurity string `json:"social_security"`
	LateDeduction  string `json:"late_deduction"`

	Net string `json:"net"`
}

// PeriodDTO represents a wage period in API responses.
type PeriodDTO struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Code      string `json:"code"`
	Start     string `json:"start_date"`
	End       string `json:"end_date"`
	Status    string `json:"status"`

	Summaries []WageSummaryDTO `json:"summaries,omitempty"`
	Totals    *PeriodTotalsDTO `json:"totals,omitempty"`

	HasUnresolvedDiscrepancies bool `json:"has_unresolved_discrepancies"`

	CreatedAt    string `json:"created_at"`
	CalculatedAt string `json:"calculated_at,omitempty"`
	ApprovedAt   string `json:"approved_at,omitempty"`
	PaidAt       string `json:"paid_at,omitempty"`
	LockedAt     string `json:"locked_at,omitempty"`
}

// PeriodTotalsDTO aggregates the summary list.
type PeriodTotalsDTO struct {
	RegularHours string `json:"regular_hours"`
	OTHours      string `json:"ot_hours"`
	Gross        string `json:"gross"`
	Deductions   string `json:"deductions"`
	Net          string `json:"net"`
}

// CreatePeriodRequest opens a new draft period.
type CreatePeriodRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
}

// ActorRequest carries the acting user for lifecycle transitions.
type ActorRequest struct {
	ActorID string `json:"actor_id"`
}

func toPeriodDTO(p *payroll.WagePeriod) PeriodDTO {
	dto := PeriodDTO{
		ID:                         p.ID,
		ProjectID:                  string(p.ProjectID),
		Code:                       p.Code,
		Start:                      p.Start.String(),
		End:                        p.End.String(),
		Status:                     string(p.Status),
		HasUnresolvedDiscrepancies: p.HasUnresolvedDiscrepancies,
		CreatedAt:                  p.CreatedAt.Format(time.RFC3339),
	}
	if len(p.Summaries) > 0 {
		dto.Summaries = make([]WageSummaryDTO, len(p.Summaries))
		for i, s := range p.Summaries {
			dto.Summaries[i] = toSummaryDTO(s)
		}
		dto.Totals = &PeriodTotalsDTO{
			RegularHours: p.Totals.RegularHours.String(),
			OTHours:      p.Totals.OTHours.String(),
			Gross:        p.Totals.Gross.String(),
			Deductions:   p.Totals.Deductions.String(),
			Net:          p.Totals.Net.String(),
		}
	}
	if p.CalculatedAt != nil {
		dto.CalculatedAt = p.CalculatedAt.Format(time.RFC3339)
	}
	if p.ApprovedAt != nil {
		dto.ApprovedAt = p.ApprovedAt.Format(time.RFC3339)
	}
	if p.PaidAt != nil {
		dto.PaidAt = p.PaidAt.Format(time.RFC3339)
	}
	if p.LockedAt != nil {
		dto.LockedAt = p.LockedAt.Format(time.RFC3339)
	}
	return dto
}

func toSummaryDTO(s payroll.WageSummary) WageSummaryDTO {
	return WageSummaryDTO{
		WorkerID:        string(s.WorkerID),
		RegularHours:    s.RegularHours.String(),
		OTMorningHours:  s.OTMorningHours.String(),
		OTNoonHours:     s.OTNoonHours.String(),
		OTEveningHours:  s.OTEveningHours.String(),
		BasePay:         s.BasePay.String(),
		OvertimePay:     s.OvertimePay.String(),
		ProfessionalPay: s.ProfessionalPay.String(),
		PhoneAllowance:  s.PhoneAllowance.String(),
		Gross:           s.Gross.String(),
		Accommodation:   s.Accommodation.String(),
		Utilities:       s.Utilities.String(),
		FollowerCost:    s.FollowerCost.String(),
		Expenses:        s.Expenses.String(),
		SocialSecurity:  s.SocialSecurity.String(),
		LateDeduction:   s.LateDeduction.String(),
		Net:             s.Net.String(),
	}
}
