package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/payroll-engine/payroll"
	"github.com/forgeline/payroll-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func julySpan() payroll.DateRange {
	return payroll.DateRange{
		From: payroll.NewDate(2025, time.July, 1),
		To:   payroll.NewDate(2025, time.July, 16),
	}
}

func sampleReport(id string, date payroll.Date) *payroll.DailyReport {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &payroll.DailyReport{
		ID:        id,
		WorkerID:  "1001",
		ProjectID: "site-a",
		WorkDate:  date,
		StartTime: "08:00",
		EndTime:   "16:00",
		WorkType:  payroll.WorkRegular,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// DAILY REPORTS
// =============================================================================

func TestDailyReports_RoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	day := payroll.NewDate(2025, time.July, 2)

	report := sampleReport("dr-1", day)
	require.NoError(t, st.CreateDailyReport(ctx, report))

	got, err := st.GetDailyReport(ctx, "1001", day, "site-a")
	require.NoError(t, err)
	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, "08:00", got.StartTime)
	assert.Nil(t, got.ManualHours)
	assert.True(t, got.CreatedAt.Equal(report.CreatedAt))

	hours := decimal.RequireFromString("7.5")
	got.ManualHours = &hours
	got.EndTime = "15:30"
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, st.UpdateDailyReport(ctx, got))

	again, err := st.GetDailyReport(ctx, "1001", day, "site-a")
	require.NoError(t, err)
	require.NotNil(t, again.ManualHours)
	assert.True(t, again.ManualHours.Equal(hours))
	assert.Equal(t, "15:30", again.EndTime)
}

func TestDailyReports_DuplicateIdentity_Conflicts(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	day := payroll.NewDate(2025, time.July, 2)

	require.NoError(t, st.CreateDailyReport(ctx, sampleReport("dr-1", day)))
	err := st.CreateDailyReport(ctx, sampleReport("dr-2", day))
	assert.True(t, payroll.IsConflict(err), "got %v", err)
}

func TestDailyReports_NotFoundCases(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	_, err := st.GetDailyReport(ctx, "1001", payroll.NewDate(2025, time.July, 2), "site-a")
	assert.True(t, payroll.IsNotFound(err))

	ghost := sampleReport("dr-ghost", payroll.NewDate(2025, time.July, 2))
	assert.True(t, payroll.IsNotFound(st.UpdateDailyReport(ctx, ghost)))
}

func TestDailyReports_ListBoundsAndOrder(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	inside := sampleReport("dr-1", payroll.NewDate(2025, time.July, 15))
	onEnd := sampleReport("dr-2", payroll.NewDate(2025, time.July, 16))
	onEnd.WorkerID = "1002"
	before := sampleReport("dr-3", payroll.NewDate(2025, time.June, 30))
	before.WorkerID = "1003"
	require.NoError(t, st.CreateDailyReport(ctx, inside))
	require.NoError(t, st.CreateDailyReport(ctx, onEnd))
	require.NoError(t, st.CreateDailyReport(ctx, before))

	listed, err := st.ListDailyReports(ctx, "site-a", julySpan())
	require.NoError(t, err)
	require.Len(t, listed, 1, "end date is exclusive, earlier dates excluded")
	assert.Equal(t, "dr-1", listed[0].ID)
}

// =============================================================================
// SCAN EVENTS
// =============================================================================

func TestScanEvents_BulkInsertAndList(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	events := []payroll.ScanEvent{
		{ID: "ev-1", EmployeeNumber: "1001", Type: payroll.ScanRegularIn,
			Timestamp: time.Date(2025, time.July, 2, 7, 0, 0, 0, time.UTC), BatchID: "b1", CreatedAt: now},
		{ID: "ev-2", EmployeeNumber: "1001", Type: payroll.ScanRegularOut,
			Timestamp: time.Date(2025, time.July, 2, 17, 0, 0, 0, time.UTC), BatchID: "b1", CreatedAt: now},
		{ID: "ev-3", EmployeeNumber: "1002", Type: payroll.ScanRegularIn,
			Timestamp: time.Date(2025, time.August, 1, 8, 0, 0, 0, time.UTC), BatchID: "b1", CreatedAt: now},
	}
	require.NoError(t, st.BulkInsertScanEvents(ctx, events))

	listed, err := st.ListScanEvents(ctx, julySpan())
	require.NoError(t, err)
	require.Len(t, listed, 2, "august event outside span")
	assert.Equal(t, "ev-1", listed[0].ID)
	assert.Equal(t, payroll.ScanRegularIn, listed[0].Type)
	assert.True(t, listed[0].Timestamp.Equal(events[0].Timestamp))

	forWorker, err := st.ListScanEventsForWorker(ctx, "1001", julySpan())
	require.NoError(t, err)
	assert.Len(t, forWorker, 2)
}

func TestScanEvents_DuplicateID_RollsBackBatch(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	ts := time.Date(2025, time.July, 2, 7, 0, 0, 0, time.UTC)

	first := []payroll.ScanEvent{{ID: "ev-1", EmployeeNumber: "1001",
		Type: payroll.ScanRegularIn, Timestamp: ts, BatchID: "b1", CreatedAt: ts}}
	require.NoError(t, st.BulkInsertScanEvents(ctx, first))

	second := []payroll.ScanEvent{
		{ID: "ev-2", EmployeeNumber: "1001", Type: payroll.ScanRegularOut,
			Timestamp: ts.Add(9 * time.Hour), BatchID: "b2", CreatedAt: ts},
		{ID: "ev-1", EmployeeNumber: "1001", Type: payroll.ScanRegularIn,
			Timestamp: ts, BatchID: "b2", CreatedAt: ts},
	}
	err := st.BulkInsertScanEvents(ctx, second)
	assert.True(t, payroll.IsConflict(err), "got %v", err)

	// The whole failed batch rolled back, including its valid rows.
	listed, err := st.ListScanEvents(ctx, julySpan())
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

// =============================================================================
// DISCREPANCIES
// =============================================================================

func TestDiscrepancies_UpsertByIdentity(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	day := payroll.NewDate(2025, time.July, 2)

	report := decimal.NewFromInt(8)
	scan := decimal.NewFromInt(10)
	d := &payroll.Discrepancy{
		ID:          "disc-1",
		WorkerID:    "1001",
		ProjectID:   "site-a",
		WorkDate:    day,
		Type:        payroll.DiscrepancyType1,
		Severity:    payroll.SeverityMedium,
		ReportHours: &report,
		ScanHours:   &scan,
		HoursDiff:   decimal.NewFromInt(2),
		Status:      payroll.DiscrepancyPending,
		DetectedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, st.UpsertDiscrepancy(ctx, d))

	byIdentity, err := st.GetDiscrepancy(ctx, "1001", day)
	require.NoError(t, err)
	assert.Equal(t, "disc-1", byIdentity.ID)
	require.NotNil(t, byIdentity.ReportHours)
	assert.True(t, byIdentity.ReportHours.Equal(report))

	byID, err := st.GetDiscrepancyByID(ctx, "disc-1")
	require.NoError(t, err)
	assert.Equal(t, byIdentity.WorkDate.String(), byID.WorkDate.String())

	// Upserting the identity again replaces, never duplicates.
	d.Severity = payroll.SeverityHigh
	require.NoError(t, st.UpsertDiscrepancy(ctx, d))
	listed, err := st.ListDiscrepancies(ctx, "site-a", julySpan(), "")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, payroll.SeverityHigh, listed[0].Severity)
}

func TestDiscrepancies_StatusFilterAndPendingCount(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	method := payroll.ResolveVerify
	note := "checked"
	by := "admin-7"
	at := time.Now().UTC().Truncate(time.Millisecond)
	for i, status := range []payroll.DiscrepancyStatus{
		payroll.DiscrepancyPending, payroll.DiscrepancyPending, payroll.DiscrepancyVerified,
	} {
		d := &payroll.Discrepancy{
			ID:         "disc-" + string(rune('a'+i)),
			WorkerID:   payroll.WorkerID("100" + string(rune('1'+i))),
			ProjectID:  "site-a",
			WorkDate:   payroll.NewDate(2025, time.July, 2+i),
			Type:       payroll.DiscrepancyType2,
			Severity:   payroll.SeverityLow,
			HoursDiff:  decimal.NewFromInt(1),
			Status:     status,
			DetectedAt: at,
		}
		if status == payroll.DiscrepancyVerified {
			d.ResolutionMethod = &method
			d.ResolutionNote = &note
			d.ResolvedBy = &by
			d.ResolvedAt = &at
		}
		require.NoError(t, st.UpsertDiscrepancy(ctx, d))
	}

	pending, err := st.ListDiscrepancies(ctx, "site-a", julySpan(), payroll.DiscrepancyPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	verified, err := st.ListDiscrepancies(ctx, "site-a", julySpan(), payroll.DiscrepancyVerified)
	require.NoError(t, err)
	require.Len(t, verified, 1)
	require.NotNil(t, verified[0].ResolutionMethod)
	assert.Equal(t, payroll.ResolveVerify, *verified[0].ResolutionMethod)
	require.NotNil(t, verified[0].ResolvedAt)
	assert.True(t, verified[0].ResolvedAt.Equal(at))

	count, err := st.CountPendingDiscrepancies(ctx, "site-a", julySpan())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// =============================================================================
// LATE RECORDS AND RATE CARDS
// =============================================================================

func TestLateRecords_UpsertAndList(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	record := &payroll.LateRecord{
		ID:              "late-1001-2025-07-02",
		WorkerID:        "1001",
		Date:            payroll.NewDate(2025, time.July, 2),
		ScannedArrival:  "08:23",
		ExpectedArrival: "08:00",
		MinutesLate:     23,
		Deduction:       decimal.NewFromInt(46),
	}
	require.NoError(t, st.UpsertLateRecord(ctx, record))

	record.IncludedInWageCalculation = true
	require.NoError(t, st.UpsertLateRecord(ctx, record))

	listed, err := st.ListLateRecords(ctx, julySpan())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, int64(23), listed[0].MinutesLate)
	assert.True(t, listed[0].IncludedInWageCalculation)
	assert.True(t, listed[0].Deduction.Equal(decimal.NewFromInt(46)))
}

func TestRateCards_EffectiveDating(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	for _, p := range []payroll.IncomeProfile{
		{WorkerID: "1001", EffectiveDate: payroll.NewDate(2025, time.January, 1), HourlyRate: decimal.NewFromInt(90),
			ProfessionalRate: decimal.Zero, PhoneAllowance: decimal.Zero},
		{WorkerID: "1001", EffectiveDate: payroll.NewDate(2025, time.June, 1), HourlyRate: decimal.NewFromInt(110),
			ProfessionalRate: decimal.NewFromInt(1000), PhoneAllowance: decimal.NewFromInt(300)},
	} {
		profile := p
		require.NoError(t, st.SaveIncomeProfile(ctx, &profile))
	}

	early, err := st.IncomeProfileAsOf(ctx, "1001", payroll.NewDate(2025, time.March, 1))
	require.NoError(t, err)
	assert.True(t, early.HourlyRate.Equal(decimal.NewFromInt(90)))

	late, err := st.IncomeProfileAsOf(ctx, "1001", payroll.NewDate(2025, time.July, 1))
	require.NoError(t, err)
	assert.True(t, late.HourlyRate.Equal(decimal.NewFromInt(110)))
	assert.True(t, late.ProfessionalRate.Equal(decimal.NewFromInt(1000)))

	_, err = st.IncomeProfileAsOf(ctx, "1001", payroll.NewDate(2024, time.December, 31))
	assert.True(t, payroll.IsNotFound(err))

	_, err = st.ExpenseProfileAsOf(ctx, "1001", payroll.NewDate(2025, time.July, 1))
	assert.True(t, payroll.IsNotFound(err), "no expense profile saved")

	expense := &payroll.ExpenseProfile{
		WorkerID:      "1001",
		EffectiveDate: payroll.NewDate(2025, time.January, 1),
		Accommodation: decimal.NewFromInt(400),
		FollowerCount: 2,
		FollowerRate:  decimal.NewFromInt(100),
		Utilities:     decimal.NewFromInt(50),
	}
	require.NoError(t, st.SaveExpenseProfile(ctx, expense))
	got, err := st.ExpenseProfileAsOf(ctx, "1001", payroll.NewDate(2025, time.July, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.FollowerCount)
	assert.True(t, got.FollowerCost().Equal(decimal.NewFromInt(200)))
}

// =============================================================================
// WAGE PERIODS
// =============================================================================

func TestPeriods_DocumentRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	period, err := payroll.NewWagePeriod("site-a", payroll.NewDate(2025, time.July, 1))
	require.NoError(t, err)
	require.NoError(t, st.CreatePeriod(ctx, period))

	now := time.Now().UTC().Truncate(time.Millisecond)
	period.Status = payroll.PeriodCalculated
	period.CalculatedAt = &now
	period.UpdatedAt = now
	period.Summaries = []payroll.WageSummary{{
		WorkerID:     "1001",
		RegularHours: decimal.NewFromInt(8),
		BasePay:      decimal.NewFromInt(800),
		Gross:        decimal.NewFromInt(800),
		Net:          decimal.NewFromInt(717),
	}}
	period.Totals = payroll.PeriodTotals{
		RegularHours: decimal.NewFromInt(8),
		OTHours:      decimal.Zero,
		Gross:        decimal.NewFromInt(800),
		Deductions:   decimal.NewFromInt(83),
		Net:          decimal.NewFromInt(717),
	}
	require.NoError(t, st.ReplacePeriod(ctx, period))

	got, err := st.GetPeriod(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodCalculated, got.Status)
	require.NotNil(t, got.CalculatedAt)
	assert.True(t, got.CalculatedAt.Equal(now))
	require.Len(t, got.Summaries, 1)
	assert.True(t, got.Summaries[0].Gross.Equal(decimal.NewFromInt(800)))
	assert.True(t, got.Totals.Net.Equal(decimal.NewFromInt(717)))
}

func TestPeriods_DuplicateCode_Conflicts(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	start := payroll.NewDate(2025, time.July, 1)

	first, err := payroll.NewWagePeriod("site-a", start)
	require.NoError(t, err)
	require.NoError(t, st.CreatePeriod(ctx, first))

	second, err := payroll.NewWagePeriod("site-a", start)
	require.NoError(t, err)
	assert.True(t, payroll.IsConflict(st.CreatePeriod(ctx, second)))

	// Same start on another project is fine.
	other, err := payroll.NewWagePeriod("site-b", start)
	require.NoError(t, err)
	assert.NoError(t, st.CreatePeriod(ctx, other))
}

func TestPeriods_LockedRefusesWrites(t *testing.T) {
	// The stored status decides, not the status the caller passes in.
	st := newStore(t)
	ctx := context.Background()

	period, err := payroll.NewWagePeriod("site-a", payroll.NewDate(2025, time.July, 1))
	require.NoError(t, err)
	require.NoError(t, st.CreatePeriod(ctx, period))

	period.Status = payroll.PeriodLocked
	require.NoError(t, st.ReplacePeriod(ctx, period))

	period.Status = payroll.PeriodDraft
	assert.ErrorIs(t, st.ReplacePeriod(ctx, period), payroll.ErrPeriodLocked)
	assert.ErrorIs(t, st.DeletePeriod(ctx, period.ID), payroll.ErrPeriodLocked)

	got, err := st.GetPeriod(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodLocked, got.Status)
}

func TestPeriods_DeleteAndNotFound(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	period, err := payroll.NewWagePeriod("site-a", payroll.NewDate(2025, time.July, 1))
	require.NoError(t, err)
	require.NoError(t, st.CreatePeriod(ctx, period))
	require.NoError(t, st.DeletePeriod(ctx, period.ID))

	_, err = st.GetPeriod(ctx, period.ID)
	assert.True(t, payroll.IsNotFound(err))
	assert.True(t, payroll.IsNotFound(st.DeletePeriod(ctx, period.ID)))
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestAudit_AppendAndFilter(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	entries := []payroll.AuditEntry{
		{ID: "a-1", Timestamp: base, ActorID: "admin-7", Action: payroll.AuditDiscrepancyResolved,
			WorkerID: "1001", ProjectID: "site-a", WorkDate: payroll.NewDate(2025, time.July, 2),
			Detail: map[string]string{"method": "verify"}},
		{ID: "a-2", Timestamp: base.Add(time.Minute), ActorID: "admin-7", Action: payroll.AuditPeriodApproved,
			ProjectID: "site-a", Detail: map[string]string{"period": "p-1"}},
		{ID: "a-3", Timestamp: base.Add(2 * time.Minute), ActorID: "admin-8", Action: payroll.AuditPeriodLocked,
			ProjectID: "site-a"},
	}
	for _, e := range entries {
		require.NoError(t, st.AppendAudit(ctx, e))
	}

	actor := "admin-7"
	byActor, err := st.QueryAudit(ctx, payroll.AuditFilter{ActorID: &actor})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byAction, err := st.QueryAudit(ctx, payroll.AuditFilter{
		Actions: []payroll.AuditAction{payroll.AuditPeriodApproved, payroll.AuditPeriodLocked},
	})
	require.NoError(t, err)
	require.Len(t, byAction, 2)
	assert.Equal(t, "a-2", byAction[0].ID)
	assert.Equal(t, "p-1", byAction[0].Detail["period"])

	from := base.Add(90 * time.Second)
	since, err := st.QueryAudit(ctx, payroll.AuditFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "a-3", since[0].ID)
	assert.True(t, since[0].WorkDate.IsZero())
}
