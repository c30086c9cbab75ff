package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/payroll-engine/payroll"
	"github.com/forgeline/payroll-engine/payroll/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newResolver(mem *store.Memory) *payroll.Resolver {
	return &payroll.Resolver{
		Discrepancies: mem,
		Reports:       mem,
		Scans:         mem,
		Periods:       mem,
		Audit:         mem,
		Sessions:      payroll.NewSessionBuilder(),
	}
}

func seedDiscrepancy(t *testing.T, mem *store.Memory, dtype payroll.DiscrepancyType, date payroll.Date) *payroll.Discrepancy {
	t.Helper()
	d := &payroll.Discrepancy{
		ID:         "disc-" + string(dtype) + "-" + date.String(),
		WorkerID:   "1001",
		ProjectID:  testProject,
		WorkDate:   date,
		Type:       dtype,
		Severity:   payroll.SeverityMedium,
		Status:     payroll.DiscrepancyPending,
		HoursDiff:  decimal.NewFromInt(2),
		DetectedAt: time.Now().UTC(),
	}
	switch dtype {
	case payroll.DiscrepancyType1:
		d.ReportHours = dec("8")
		d.ScanHours = dec("10")
	case payroll.DiscrepancyType2:
		d.ReportHours = dec("8")
	case payroll.DiscrepancyType3:
		d.ScanHours = dec("10")
	}
	require.NoError(t, mem.UpsertDiscrepancy(context.Background(), d))
	return d
}

func validAction(method payroll.ResolutionMethod) payroll.ResolutionAction {
	return payroll.ResolutionAction{
		Method:  method,
		Note:    "checked against the terminal log",
		ActorID: "admin-7",
	}
}

// =============================================================================
// ACTION VALIDATION
// =============================================================================

func TestResolve_RequiresNoteAndActor(t *testing.T) {
	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 1)
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType1, day)
	resolver := newResolver(mem)

	action := validAction(payroll.ResolveVerify)
	action.Note = ""
	_, err := resolver.Resolve(context.Background(), d.ID, action)
	assert.True(t, payroll.IsValidation(err), "missing note: %v", err)

	action = validAction(payroll.ResolveVerify)
	action.ActorID = ""
	_, err = resolver.Resolve(context.Background(), d.ID, action)
	assert.True(t, payroll.IsValidation(err), "missing actor: %v", err)
}

func TestResolve_MethodTypeMatrix(t *testing.T) {
	// update_dr needs an existing report, create_dr needs its absence,
	// verify and ignore accept every type.
	cases := []struct {
		name   string
		dtype  payroll.DiscrepancyType
		method payroll.ResolutionMethod
		valid  bool
	}{
		{"update on type1", payroll.DiscrepancyType1, payroll.ResolveUpdateReport, true},
		{"update on type2", payroll.DiscrepancyType2, payroll.ResolveUpdateReport, true},
		{"update on type3", payroll.DiscrepancyType3, payroll.ResolveUpdateReport, false},
		{"create on type1", payroll.DiscrepancyType1, payroll.ResolveCreateReport, false},
		{"create on type2", payroll.DiscrepancyType2, payroll.ResolveCreateReport, false},
		{"create on type3", payroll.DiscrepancyType3, payroll.ResolveCreateReport, true},
		{"verify on type2", payroll.DiscrepancyType2, payroll.ResolveVerify, true},
		{"ignore on type3", payroll.DiscrepancyType3, payroll.ResolveIgnore, true},
		{"unknown method", payroll.DiscrepancyType1, payroll.ResolutionMethod("escalate"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem := store.NewMemory()
			day := payroll.NewDate(2025, time.April, 2)
			if tc.dtype != payroll.DiscrepancyType3 {
				seedReport(t, mem, "1001", day, "08:00", "16:00")
			}
			d := seedDiscrepancy(t, mem, tc.dtype, day)
			if tc.dtype == payroll.DiscrepancyType2 && tc.method == payroll.ResolveUpdateReport {
				// Type2 has no scanned hours; the rewrite needs an override.
				action := validAction(tc.method)
				action.UpdatedHours = dec("7.5")
				_, err := newResolver(mem).Resolve(context.Background(), d.ID, action)
				assert.NoError(t, err)
				return
			}

			_, err := newResolver(mem).Resolve(context.Background(), d.ID, validAction(tc.method))
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, payroll.IsValidation(err), "want validation error, got %v", err)
			}
		})
	}
}

// =============================================================================
// STATE RULES
// =============================================================================

func TestResolve_TerminalDiscrepancy_Rejected(t *testing.T) {
	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 3)
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType1, day)
	resolver := newResolver(mem)

	_, err := resolver.Resolve(context.Background(), d.ID, validAction(payroll.ResolveVerify))
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), d.ID, validAction(payroll.ResolveIgnore))
	assert.True(t, payroll.IsState(err), "second resolution: %v", err)
}

func TestResolve_LockedPeriod_Rejected(t *testing.T) {
	// GIVEN: A pending discrepancy whose date falls inside a locked period
	// WHEN: Resolving it
	// THEN: Refused with the locked-period error, record left pending

	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 5)
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType1, day)

	period, err := payroll.NewWagePeriod(testProject, payroll.NewDate(2025, time.April, 1))
	require.NoError(t, err)
	period.Status = payroll.PeriodLocked
	require.NoError(t, mem.CreatePeriod(context.Background(), period))

	_, err = newResolver(mem).Resolve(context.Background(), d.ID, validAction(payroll.ResolveVerify))
	assert.ErrorIs(t, err, payroll.ErrPeriodLocked)

	after, err := mem.GetDiscrepancyByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.DiscrepancyPending, after.Status)
}

// =============================================================================
// DATA EFFECTS
// =============================================================================

func TestResolve_UpdateReport_SetsManualHours(t *testing.T) {
	// GIVEN: A type1 discrepancy (report 8h, scans 10h)
	// WHEN: Resolving with update_dr and no explicit override
	// THEN: The report's manual hours become the scanned 10, status fixed

	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 7)
	seedReport(t, mem, "1001", day, "08:00", "16:00")
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType1, day)

	resolved, err := newResolver(mem).Resolve(context.Background(), d.ID, validAction(payroll.ResolveUpdateReport))
	require.NoError(t, err)
	assert.Equal(t, payroll.DiscrepancyFixed, resolved.Status)

	report, err := mem.GetDailyReport(context.Background(), "1001", day, testProject)
	require.NoError(t, err)
	require.NotNil(t, report.ManualHours)
	assert.True(t, report.ManualHours.Equal(decimal.NewFromInt(10)))

	hours, err := report.Hours()
	require.NoError(t, err)
	assert.True(t, hours.Equal(decimal.NewFromInt(10)))
}

func TestResolve_UpdateReport_ExplicitOverrideWins(t *testing.T) {
	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 8)
	seedReport(t, mem, "1001", day, "08:00", "16:00")
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType1, day)

	action := validAction(payroll.ResolveUpdateReport)
	action.UpdatedHours = dec("9.25")
	_, err := newResolver(mem).Resolve(context.Background(), d.ID, action)
	require.NoError(t, err)

	report, err := mem.GetDailyReport(context.Background(), "1001", day, testProject)
	require.NoError(t, err)
	require.NotNil(t, report.ManualHours)
	assert.True(t, report.ManualHours.Equal(decimal.RequireFromString("9.25")))
}

func TestResolve_CreateReport_SynthesizesFromScans(t *testing.T) {
	// GIVEN: A type3 discrepancy backed by a paired 08:00-18:00 scan day
	// WHEN: Resolving with create_dr
	// THEN: The new report carries the scanned hours, the actor, and the
	//       clock bounds inferred from the session

	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 9)
	seedScanPair(t, mem, "1001", day, "08:00", "18:00")
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType3, day)

	resolved, err := newResolver(mem).Resolve(context.Background(), d.ID, validAction(payroll.ResolveCreateReport))
	require.NoError(t, err)
	assert.Equal(t, payroll.DiscrepancyFixed, resolved.Status)

	report, err := mem.GetDailyReport(context.Background(), "1001", day, testProject)
	require.NoError(t, err)
	require.NotNil(t, report.ManualHours)
	assert.True(t, report.ManualHours.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "08:00", report.StartTime)
	assert.Equal(t, "18:00", report.EndTime)
	assert.Equal(t, "admin-7", report.CreatedBy)
	assert.Equal(t, payroll.WorkRegular, report.WorkType)
}

func TestResolve_CreateReport_BoundsSpanAllSubSessions(t *testing.T) {
	// A day with regular and evening OT pairs infers the day-wide bounds,
	// first in-scan through last out-scan.
	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 16)
	seedScans(t, mem, "1001", day,
		scanOn(day, payroll.ScanRegularIn, "08:00"),
		scanOn(day, payroll.ScanRegularOut, "17:00"),
		scanOn(day, payroll.ScanEveningOTIn, "18:00"),
		scanOn(day, payroll.ScanEveningOTOut, "20:00"))
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType3, day)

	_, err := newResolver(mem).Resolve(context.Background(), d.ID, validAction(payroll.ResolveCreateReport))
	require.NoError(t, err)

	report, err := mem.GetDailyReport(context.Background(), "1001", day, testProject)
	require.NoError(t, err)
	assert.Equal(t, "08:00", report.StartTime)
	assert.Equal(t, "20:00", report.EndTime)
}

func TestResolve_CreateReport_NoPairedScans_LeavesBoundsEmpty(t *testing.T) {
	// A lone in-scan forms no pair, so there are no bounds to infer; the
	// report still carries the discrepancy's hours.
	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 17)
	seedScans(t, mem, "1001", day, scanOn(day, payroll.ScanRegularIn, "08:00"))
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType3, day)

	_, err := newResolver(mem).Resolve(context.Background(), d.ID, validAction(payroll.ResolveCreateReport))
	require.NoError(t, err)

	report, err := mem.GetDailyReport(context.Background(), "1001", day, testProject)
	require.NoError(t, err)
	assert.Empty(t, report.StartTime)
	assert.Empty(t, report.EndTime)
	require.NotNil(t, report.ManualHours)
	assert.True(t, report.ManualHours.Equal(decimal.NewFromInt(10)))
}

func TestResolve_CreateReport_ConflictsWhenReportExists(t *testing.T) {
	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 10)
	seedReport(t, mem, "1001", day, "08:00", "16:00")
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType3, day)

	_, err := newResolver(mem).Resolve(context.Background(), d.ID, validAction(payroll.ResolveCreateReport))
	assert.True(t, payroll.IsConflict(err), "got %v", err)
}

func TestResolve_VerifyAndIgnore_TouchNoReports(t *testing.T) {
	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 11)
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType3, day)

	resolved, err := newResolver(mem).Resolve(context.Background(), d.ID, validAction(payroll.ResolveIgnore))
	require.NoError(t, err)
	assert.Equal(t, payroll.DiscrepancyIgnored, resolved.Status)

	_, err = mem.GetDailyReport(context.Background(), "1001", day, testProject)
	assert.True(t, payroll.IsNotFound(err))
}

func TestResolve_RecordsResolutionFieldsAndAudit(t *testing.T) {
	mem := store.NewMemory()
	day := payroll.NewDate(2025, time.April, 14)
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType1, day)

	resolved, err := newResolver(mem).Resolve(context.Background(), d.ID, validAction(payroll.ResolveVerify))
	require.NoError(t, err)

	require.NotNil(t, resolved.ResolutionMethod)
	assert.Equal(t, payroll.ResolveVerify, *resolved.ResolutionMethod)
	require.NotNil(t, resolved.ResolutionNote)
	assert.Equal(t, "checked against the terminal log", *resolved.ResolutionNote)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "admin-7", *resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)

	entries, err := mem.QueryAudit(context.Background(), payroll.AuditFilter{
		Actions: []payroll.AuditAction{payroll.AuditDiscrepancyResolved},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin-7", entries[0].ActorID)
	assert.Equal(t, payroll.WorkerID("1001"), entries[0].WorkerID)
	assert.Equal(t, "verify", entries[0].Detail["method"])
}
