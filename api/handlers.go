/*
handlers.go - HTTP API handlers for the payroll reconciliation engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Imports:
    POST   /api/imports/scan-data         Bulk-import terminal scan data

  Daily reports:
    GET    /api/daily-reports             List reports for a project/range
    POST   /api/daily-reports             Submit a report
    PUT    /api/daily-reports/{id}        Edit a report (refused once locked)

  Discrepancies:
    POST   /api/discrepancies/detect      Run detection over a scope
    GET    /api/discrepancies             List discrepancies
    POST   /api/discrepancies/{id}/resolve Apply a resolution action

  Periods:
    POST   /api/periods                   Create a draft period
    GET    /api/periods                   List a project's periods
    GET    /api/periods/{id}              Get one period with summaries
    POST   /api/periods/{id}/calculate    Run the wage calculation
    POST   /api/periods/{id}/approve      Approve (blocked on pending discrepancies)
    POST   /api/periods/{id}/pay          Mark paid
    POST   /api/periods/{id}/lock         Lock (terminal)
    DELETE /api/periods/{id}              Delete (draft/calculated only)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validator/v10 on request DTOs)
  3. Call domain logic
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate identity, concurrent calculation)
  - 422: Invalid lifecycle transition, locked period
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/forgeline/payroll-engine/importer"
	"github.com/forgeline/payroll-engine/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Reports       payroll.DailyReportStore
	Discrepancies payroll.DiscrepancyStore
	Periods       payroll.PeriodStore

	Detector  *payroll.Detector
	Resolver  *payroll.Resolver
	Lifecycle *payroll.Lifecycle
	Importer  *importer.Pipeline

	Log *logrus.Logger
}

// =============================================================================
// IMPORT HANDLERS
// =============================================================================

// ImportScanData ingests a terminal log or spreadsheet upload.
// POST /api/imports/scan-data (multipart, field "file")
func (h *Handler) ImportScanData(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(importer.MaxFileBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart request", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field", err)
		return
	}
	defer file.Close()

	var rows []importer.Row
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx":
		rows, err = importer.ReadWorkbook(file)
	default:
		rows, err = importer.ReadTerminalLog(file)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.Importer.Run(r.Context(), rows)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// DAILY REPORT HANDLERS
// =============================================================================

// ListDailyReports returns reports for a project over a date range.
// GET /api/daily-reports?project_id=&from=&to=
func (h *Handler) ListDailyReports(w http.ResponseWriter, r *http.Request) {
	projectID := payroll.ProjectID(r.URL.Query().Get("project_id"))
	span, err := spanFromQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	reports, err := h.Reports.ListDailyReports(r.Context(), projectID, span)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DailyReportDTO, len(reports))
	for i, report := range reports {
		dtos[i] = toReportDTO(report)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDailyReport submits a new report.
// POST /api/daily-reports
func (h *Handler) CreateDailyReport(w http.ResponseWriter, r *http.Request) {
	var req CreateReportRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	workDate, err := payroll.ParseDate(req.WorkDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := payroll.NormalizeRange(req.StartTime, req.EndTime, req.Overnight); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.checkNotCoveredByLockedPeriod(r, payroll.ProjectID(req.ProjectID), workDate); err != nil {
		writeDomainError(w, err)
		return
	}

	now := time.Now().UTC()
	report := &payroll.DailyReport{
		ID:              uuid.NewString(),
		WorkerID:        payroll.WorkerID(req.WorkerID),
		ProjectID:       payroll.ProjectID(req.ProjectID),
		WorkDate:        workDate,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		WorkType:        payroll.WorkType(req.WorkType),
		Overnight:       req.Overnight,
		TaskDescription: req.TaskDescription,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.Reports.CreateDailyReport(r.Context(), report); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReportDTO(report))
}

// UpdateDailyReport edits an existing report. Refused once the covering
// wage period is locked.
// PUT /api/daily-reports/{id}
func (h *Handler) UpdateDailyReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateReportRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	workDate, err := payroll.ParseDate(req.WorkDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := payroll.NormalizeRange(req.StartTime, req.EndTime, req.Overnight); err != nil {
		writeDomainError(w, err)
		return
	}

	report, err := h.Reports.GetDailyReport(r.Context(),
		payroll.WorkerID(req.WorkerID), workDate, payroll.ProjectID(req.ProjectID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if report.ID != id {
		writeError(w, http.StatusNotFound, "Report id does not match its identity", nil)
		return
	}
	if err := h.checkNotCoveredByLockedPeriod(r, report.ProjectID, report.WorkDate); err != nil {
		writeDomainError(w, err)
		return
	}

	report.StartTime = req.StartTime
	report.EndTime = req.EndTime
	report.WorkType = payroll.WorkType(req.WorkType)
	report.Overnight = req.Overnight
	report.TaskDescription = req.TaskDescription
	report.ManualHours = nil // edits re-derive hours from the new span
	report.UpdatedAt = time.Now().UTC()

	if err := h.Reports.UpdateDailyReport(r.Context(), report); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// checkNotCoveredByLockedPeriod refuses writes to days owned by a locked
// period.
func (h *Handler) checkNotCoveredByLockedPeriod(r *http.Request, projectID payroll.ProjectID, date payroll.Date) error {
	periods, err := h.Periods.ListPeriods(r.Context(), projectID)
	if err != nil {
		return err
	}
	for _, p := range periods {
		if p.Status == payroll.PeriodLocked && p.Span().Contains(date) {
			return payroll.ErrPeriodLocked
		}
	}
	return nil
}

// =============================================================================
// DISCREPANCY HANDLERS
// =============================================================================

// DetectDiscrepancies runs the detector over a project/date-range scope.
// POST /api/discrepancies/detect
func (h *Handler) DetectDiscrepancies(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	span, err := parseSpan(req.From, req.To)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.Detector.Run(r.Context(), payroll.ProjectID(req.ProjectID), span)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"examined":         result.Examined,
		"created":          result.Created,
		"updated":          result.Updated,
		"skipped_terminal": result.SkippedTerminal,
		"late_records":     result.LateRecords,
	})
}

// ListDiscrepancies returns discrepancies for a scope, optionally filtered
// by status.
// GET /api/discrepancies?project_id=&from=&to=&status=
func (h *Handler) ListDiscrepancies(w http.ResponseWriter, r *http.Request) {
	projectID := payroll.ProjectID(r.URL.Query().Get("project_id"))
	span, err := spanFromQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := payroll.DiscrepancyStatus(r.URL.Query().Get("status"))

	discrepancies, err := h.Discrepancies.ListDiscrepancies(r.Context(), projectID, span, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DiscrepancyDTO, len(discrepancies))
	for i, d := range discrepancies {
		dtos[i] = toDiscrepancyDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResolveDiscrepancy applies one resolution action.
// POST /api/discrepancies/{id}/resolve
func (h *Handler) ResolveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResolveRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	action, err := req.toAction()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resolved, err := h.Resolver.Resolve(r.Context(), id, action)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiscrepancyDTO(resolved))
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// CreatePeriod opens a new draft period.
// POST /api/periods
func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req CreatePeriodRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	start, err := payroll.ParseDate(req.StartDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	period, err := h.Lifecycle.Create(r.Context(), payroll.ProjectID(req.ProjectID), start)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodDTO(period))
}

// ListPeriods returns all of a project's periods.
// GET /api/periods?project_id=
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	projectID := payroll.ProjectID(r.URL.Query().Get("project_id"))

	periods, err := h.Periods.ListPeriods(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPeriod returns one period with its summaries.
// GET /api/periods/{id}
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := h.Periods.GetPeriod(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(period))
}

// CalculatePeriod runs the wage calculation.
// POST /api/periods/{id}/calculate
func (h *Handler) CalculatePeriod(w http.ResponseWriter, r *http.Request) {
	period, err := h.Lifecycle.Calculate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(period))
}

// ApprovePeriod approves a calculated period.
// POST /api/periods/{id}/approve
func (h *Handler) ApprovePeriod(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	decodeOptional(r, &req)

	period, err := h.Lifecycle.Approve(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(period))
}

// PayPeriod marks an approved period paid.
// POST /api/periods/{id}/pay
func (h *Handler) PayPeriod(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	decodeOptional(r, &req)

	period, err := h.Lifecycle.MarkPaid(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(period))
}

// LockPeriod locks a period. Terminal.
// POST /api/periods/{id}/lock
func (h *Handler) LockPeriod(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	decodeOptional(r, &req)

	period, err := h.Lifecycle.Lock(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(period))
}

// DeletePeriod removes a draft or calculated period.
// DELETE /api/periods/{id}
func (h *Handler) DeletePeriod(w http.ResponseWriter, r *http.Request) {
	if err := h.Lifecycle.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &payroll.ValidationError{Field: "body", Message: "invalid JSON"}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &payroll.ValidationError{
				Field:   strings.ToLower(verrs[0].Field()),
				Message: "failed " + verrs[0].Tag() + " validation",
			}
		}
		return &payroll.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

// decodeOptional tolerates an empty body for endpoints where it is optional.
func decodeOptional(r *http.Request, dst any) {
	_ = json.NewDecoder(r.Body).Decode(dst)
}

func spanFromQuery(r *http.Request) (payroll.DateRange, error) {
	return parseSpan(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
}

func parseSpan(from, to string) (payroll.DateRange, error) {
	fromDate, err := payroll.ParseDate(from)
	if err != nil {
		return payroll.DateRange{}, &payroll.ValidationError{Field: "from", Message: "invalid date (use YYYY-MM-DD)"}
	}
	toDate, err := payroll.ParseDate(to)
	if err != nil {
		return payroll.DateRange{}, &payroll.ValidationError{Field: "to", Message: "invalid date (use YYYY-MM-DD)"}
	}
	if !fromDate.Before(toDate) {
		return payroll.DateRange{}, &payroll.ValidationError{Field: "to", Message: "must be after from"}
	}
	return payroll.DateRange{From: fromDate, To: toDate}, nil
}

// writeDomainError maps the error taxonomy to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case payroll.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case payroll.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case payroll.IsState(err):
		writeError(w, http.StatusUnprocessableEntity, "Invalid state", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
