// Package store provides in-memory implementations of the payroll store
// interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/forgeline/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - Implements every payroll store interface
// =============================================================================

type reportKey struct {
	WorkerID  payroll.WorkerID
	Date      string
	ProjectID payroll.ProjectID
}

type identityKey struct {
	WorkerID payroll.WorkerID
	Date     string
}

type Memory struct {
	mu sync.RWMutex

	reports       map[string]*payroll.DailyReport // by report id
	reportIndex   map[reportKey]string            // identity -> report id
	scanEvents    []payroll.ScanEvent
	discrepancies map[identityKey]*payroll.Discrepancy
	lateRecords   map[string]*payroll.LateRecord // by record id
	incomes       map[payroll.WorkerID][]payroll.IncomeProfile
	expenses      map[payroll.WorkerID][]payroll.ExpenseProfile
	periods       map[string]*payroll.WagePeriod
	audit         []payroll.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		reports:       make(map[string]*payroll.DailyReport),
		reportIndex:   make(map[reportKey]string),
		discrepancies: make(map[identityKey]*payroll.Discrepancy),
		lateRecords:   make(map[string]*payroll.LateRecord),
		incomes:       make(map[payroll.WorkerID][]payroll.IncomeProfile),
		expenses:      make(map[payroll.WorkerID][]payroll.ExpenseProfile),
		periods:       make(map[string]*payroll.WagePeriod),
	}
}

// =============================================================================
// DAILY REPORTS
// =============================================================================

func (m *Memory) CreateDailyReport(_ context.Context, report *payroll.DailyReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := reportKey{WorkerID: report.WorkerID, Date: report.WorkDate.String(), ProjectID: report.ProjectID}
	if _, exists := m.reportIndex[key]; exists {
		return payroll.ErrConflict
	}
	cp := *report
	m.reports[report.ID] = &cp
	m.reportIndex[key] = report.ID
	return nil
}

func (m *Memory) GetDailyReport(_ context.Context, workerID payroll.WorkerID, date payroll.Date, projectID payroll.ProjectID) (*payroll.DailyReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.reportIndex[reportKey{WorkerID: workerID, Date: date.String(), ProjectID: projectID}]
	if !ok {
		return nil, payroll.ErrNotFound
	}
	cp := *m.reports[id]
	return &cp, nil
}

func (m *Memory) UpdateDailyReport(_ context.Context, report *payroll.DailyReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reports[report.ID]; !ok {
		return payroll.ErrNotFound
	}
	cp := *report
	m.reports[report.ID] = &cp
	return nil
}

func (m *Memory) ListDailyReports(_ context.Context, projectID payroll.ProjectID, span payroll.DateRange) ([]*payroll.DailyReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*payroll.DailyReport
	for _, r := range m.reports {
		if r.ProjectID == projectID && span.Contains(r.WorkDate) {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].WorkDate.Equal(result[j].WorkDate) {
			return result[i].WorkDate.Before(result[j].WorkDate)
		}
		return result[i].WorkerID < result[j].WorkerID
	})
	return result, nil
}

// =============================================================================
// SCAN EVENTS (append-only)
// =============================================================================

func (m *Memory) BulkInsertScanEvents(_ context.Context, events []payroll.ScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanEvents = append(m.scanEvents, events...)
	return nil
}

func (m *Memory) ListScanEvents(_ context.Context, span payroll.DateRange) ([]payroll.ScanEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.ScanEvent
	for _, ev := range m.scanEvents {
		if span.Contains(payroll.DateOf(ev.Timestamp)) {
			result = append(result, ev)
		}
	}
	sortScanEvents(result)
	return result, nil
}

func (m *Memory) ListScanEventsForWorker(_ context.Context, employeeNumber string, span payroll.DateRange) ([]payroll.ScanEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.ScanEvent
	for _, ev := range m.scanEvents {
		if ev.EmployeeNumber == employeeNumber && span.Contains(payroll.DateOf(ev.Timestamp)) {
			result = append(result, ev)
		}
	}
	sortScanEvents(result)
	return result, nil
}

func sortScanEvents(events []payroll.ScanEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].EmployeeNumber != events[j].EmployeeNumber {
			return events[i].EmployeeNumber < events[j].EmployeeNumber
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// =============================================================================
// DISCREPANCIES
// =============================================================================

func (m *Memory) GetDiscrepancy(_ context.Context, workerID payroll.WorkerID, date payroll.Date) (*payroll.Discrepancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.discrepancies[identityKey{WorkerID: workerID, Date: date.String()}]
	if !ok {
		return nil, payroll.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *Memory) GetDiscrepancyByID(_ context.Context, id string) (*payroll.Discrepancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.discrepancies {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, payroll.ErrNotFound
}

func (m *Memory) UpsertDiscrepancy(_ context.Context, d *payroll.Discrepancy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.discrepancies[identityKey{WorkerID: d.WorkerID, Date: d.WorkDate.String()}] = &cp
	return nil
}

func (m *Memory) ListDiscrepancies(_ context.Context, projectID payroll.ProjectID, span payroll.DateRange, status payroll.DiscrepancyStatus) ([]*payroll.Discrepancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*payroll.Discrepancy
	for _, d := range m.discrepancies {
		if d.ProjectID != projectID || !span.Contains(d.WorkDate) {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		cp := *d
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].WorkDate.Equal(result[j].WorkDate) {
			return result[i].WorkDate.Before(result[j].WorkDate)
		}
		return result[i].WorkerID < result[j].WorkerID
	})
	return result, nil
}

func (m *Memory) CountPendingDiscrepancies(ctx context.Context, projectID payroll.ProjectID, span payroll.DateRange) (int, error) {
	pending, err := m.ListDiscrepancies(ctx, projectID, span, payroll.DiscrepancyPending)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// =============================================================================
// LATE RECORDS
// =============================================================================

func (m *Memory) UpsertLateRecord(_ context.Context, record *payroll.LateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *record
	m.lateRecords[record.ID] = &cp
	return nil
}

func (m *Memory) ListLateRecords(_ context.Context, span payroll.DateRange) ([]*payroll.LateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*payroll.LateRecord
	for _, l := range m.lateRecords {
		if span.Contains(l.Date) {
			cp := *l
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].WorkerID < result[j].WorkerID
	})
	return result, nil
}

// =============================================================================
// RATE CARDS
// =============================================================================

// AddIncomeProfile seeds a rate card (test/dev helper; the engine itself
// only reads).
func (m *Memory) AddIncomeProfile(p payroll.IncomeProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incomes[p.WorkerID] = append(m.incomes[p.WorkerID], p)
}

func (m *Memory) AddExpenseProfile(p payroll.ExpenseProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses[p.WorkerID] = append(m.expenses[p.WorkerID], p)
}

func (m *Memory) IncomeProfileAsOf(_ context.Context, workerID payroll.WorkerID, asOf payroll.Date) (*payroll.IncomeProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *payroll.IncomeProfile
	for i := range m.incomes[workerID] {
		p := m.incomes[workerID][i]
		if p.EffectiveDate.After(asOf) {
			continue
		}
		if best == nil || p.EffectiveDate.After(best.EffectiveDate) {
			cp := p
			best = &cp
		}
	}
	if best == nil {
		return nil, payroll.ErrNotFound
	}
	return best, nil
}

func (m *Memory) ExpenseProfileAsOf(_ context.Context, workerID payroll.WorkerID, asOf payroll.Date) (*payroll.ExpenseProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *payroll.ExpenseProfile
	for i := range m.expenses[workerID] {
		p := m.expenses[workerID][i]
		if p.EffectiveDate.After(asOf) {
			continue
		}
		if best == nil || p.EffectiveDate.After(best.EffectiveDate) {
			cp := p
			best = &cp
		}
	}
	if best == nil {
		return nil, payroll.ErrNotFound
	}
	return best, nil
}

// =============================================================================
// WAGE PERIODS
// =============================================================================

func (m *Memory) CreatePeriod(_ context.Context, period *payroll.WagePeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := period.ValidateSpan(); err != nil {
		return err
	}
	if _, exists := m.periods[period.ID]; exists {
		return payroll.ErrConflict
	}
	for _, p := range m.periods {
		if p.ProjectID == period.ProjectID && p.Code == period.Code {
			return payroll.ErrConflict
		}
	}
	m.periods[period.ID] = copyPeriod(period)
	return nil
}

func (m *Memory) GetPeriod(_ context.Context, id string) (*payroll.WagePeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.periods[id]
	if !ok {
		return nil, payroll.ErrNotFound
	}
	return copyPeriod(p), nil
}

func (m *Memory) ReplacePeriod(_ context.Context, period *payroll.WagePeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.periods[period.ID]
	if !ok {
		return payroll.ErrNotFound
	}
	if stored.Status == payroll.PeriodLocked {
		return payroll.ErrPeriodLocked
	}
	if err := period.ValidateSpan(); err != nil {
		return err
	}
	m.periods[period.ID] = copyPeriod(period)
	return nil
}

func (m *Memory) DeletePeriod(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.periods[id]
	if !ok {
		return payroll.ErrNotFound
	}
	if stored.Status == payroll.PeriodLocked {
		return payroll.ErrPeriodLocked
	}
	delete(m.periods, id)
	return nil
}

func (m *Memory) ListPeriods(_ context.Context, projectID payroll.ProjectID) ([]*payroll.WagePeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*payroll.WagePeriod
	for _, p := range m.periods {
		if p.ProjectID == projectID {
			result = append(result, copyPeriod(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

func copyPeriod(p *payroll.WagePeriod) *payroll.WagePeriod {
	cp := *p
	cp.Summaries = append([]payroll.WageSummary{}, p.Summaries...)
	return &cp
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry payroll.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter payroll.AuditFilter) ([]payroll.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.AuditEntry
	for _, e := range m.audit {
		if filter.WorkerID != nil && e.WorkerID != *filter.WorkerID {
			continue
		}
		if filter.ProjectID != nil && e.ProjectID != *filter.ProjectID {
			continue
		}
		if filter.ActorID != nil && e.ActorID != *filter.ActorID {
			continue
		}
		if len(filter.Actions) > 0 && !containsAction(filter.Actions, e.Action) {
			continue
		}
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Timestamp.After(*filter.To) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func containsAction(actions []payroll.AuditAction, a payroll.AuditAction) bool {
	for _, candidate := range actions {
		if candidate == a {
			return true
		}
	}
	return false
}
