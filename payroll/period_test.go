package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/payroll-engine/payroll"
	"github.com/forgeline/payroll-engine/payroll/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newLifecycle(mem *store.Memory) *payroll.Lifecycle {
	return &payroll.Lifecycle{
		Periods:       mem,
		Discrepancies: mem,
		Calculator:    newCalculator(mem),
		Audit:         mem,
	}
}

// advance walks a freshly created period to the wanted status.
func advance(t *testing.T, lc *payroll.Lifecycle, periodID string, want payroll.PeriodStatus) *payroll.WagePeriod {
	t.Helper()
	ctx := context.Background()

	period, err := lc.Calculate(ctx, periodID)
	require.NoError(t, err)
	if want == payroll.PeriodCalculated {
		return period
	}
	period, err = lc.Approve(ctx, periodID, "admin-7")
	require.NoError(t, err)
	if want == payroll.PeriodApproved {
		return period
	}
	period, err = lc.MarkPaid(ctx, periodID, "admin-7")
	require.NoError(t, err)
	require.Equal(t, payroll.PeriodPaid, period.Status)
	return period
}

// =============================================================================
// PERIOD CONSTRUCTION
// =============================================================================

func TestNewWagePeriod_SpanAndCode(t *testing.T) {
	start := payroll.NewDate(2025, time.June, 16)
	period, err := payroll.NewWagePeriod(testProject, start)
	require.NoError(t, err)

	assert.Equal(t, "WP-20250616", period.Code)
	assert.True(t, period.End.Equal(payroll.NewDate(2025, time.July, 1)))
	assert.Equal(t, payroll.PeriodDraft, period.Status)
	assert.NoError(t, period.ValidateSpan())

	span := period.Span()
	assert.True(t, span.Contains(start))
	assert.True(t, span.Contains(payroll.NewDate(2025, time.June, 30)))
	assert.False(t, span.Contains(period.End), "end is exclusive")
}

func TestNewWagePeriod_RequiresProjectAndStart(t *testing.T) {
	_, err := payroll.NewWagePeriod("", payroll.NewDate(2025, time.June, 16))
	assert.True(t, payroll.IsValidation(err))

	_, err = payroll.NewWagePeriod(testProject, payroll.Date{})
	assert.True(t, payroll.IsValidation(err))
}

func TestValidateSpan_RejectsWrongLength(t *testing.T) {
	period, err := payroll.NewWagePeriod(testProject, payroll.NewDate(2025, time.June, 16))
	require.NoError(t, err)

	period.End = period.Start.AddDays(14)
	assert.True(t, payroll.IsValidation(period.ValidateSpan()))

	period.End = period.Start.AddDays(16)
	assert.True(t, payroll.IsValidation(period.ValidateSpan()))
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestLifecycle_HappyPath(t *testing.T) {
	// GIVEN: A draft period
	// WHEN: calculate, approve, markPaid, lock in order
	// THEN: Each transition lands and stamps its timestamp

	mem := store.NewMemory()
	lc := newLifecycle(mem)
	ctx := context.Background()

	period, err := lc.Create(ctx, testProject, payroll.NewDate(2025, time.June, 1))
	require.NoError(t, err)

	period = advance(t, lc, period.ID, payroll.PeriodPaid)
	require.NotNil(t, period.CalculatedAt)
	require.NotNil(t, period.ApprovedAt)
	require.NotNil(t, period.PaidAt)

	period, err = lc.Lock(ctx, period.ID, "admin-7")
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodLocked, period.Status)
	require.NotNil(t, period.LockedAt)
}

func TestLifecycle_NoSkippingStates(t *testing.T) {
	mem := store.NewMemory()
	lc := newLifecycle(mem)
	ctx := context.Background()

	period, err := lc.Create(ctx, testProject, payroll.NewDate(2025, time.June, 1))
	require.NoError(t, err)

	_, err = lc.Approve(ctx, period.ID, "admin-7")
	assert.True(t, payroll.IsState(err), "approve from draft: %v", err)

	_, err = lc.MarkPaid(ctx, period.ID, "admin-7")
	assert.True(t, payroll.IsState(err), "markPaid from draft: %v", err)
}

func TestLifecycle_RecalculateFromCalculated(t *testing.T) {
	// Recalculation from calculated is allowed; from approved it is not.
	mem := store.NewMemory()
	lc := newLifecycle(mem)
	ctx := context.Background()

	period, err := lc.Create(ctx, testProject, payroll.NewDate(2025, time.June, 1))
	require.NoError(t, err)

	advance(t, lc, period.ID, payroll.PeriodCalculated)
	_, err = lc.Calculate(ctx, period.ID)
	assert.NoError(t, err)

	_, err = lc.Approve(ctx, period.ID, "admin-7")
	require.NoError(t, err)
	_, err = lc.Calculate(ctx, period.ID)
	assert.True(t, payroll.IsState(err), "calculate from approved: %v", err)
}

func TestLifecycle_ApproveBlockedByPendingDiscrepancies(t *testing.T) {
	// GIVEN: A calculated period with a pending discrepancy in its span
	// WHEN: Approving
	// THEN: Refused until the discrepancy reaches a terminal status

	mem := store.NewMemory()
	lc := newLifecycle(mem)
	ctx := context.Background()
	start := payroll.NewDate(2025, time.June, 1)

	period, err := lc.Create(ctx, testProject, start)
	require.NoError(t, err)
	d := seedDiscrepancy(t, mem, payroll.DiscrepancyType2, start.AddDays(5))
	advance(t, lc, period.ID, payroll.PeriodCalculated)

	_, err = lc.Approve(ctx, period.ID, "admin-7")
	assert.True(t, payroll.IsValidation(err), "got %v", err)

	d.Status = payroll.DiscrepancyIgnored
	require.NoError(t, mem.UpsertDiscrepancy(ctx, d))

	// The flag snapshotted at calculation time still blocks; recalculate
	// to clear it, then approve.
	_, err = lc.Approve(ctx, period.ID, "admin-7")
	assert.True(t, payroll.IsValidation(err))

	_, err = lc.Calculate(ctx, period.ID)
	require.NoError(t, err)
	approved, err := lc.Approve(ctx, period.ID, "admin-7")
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodApproved, approved.Status)
}

// =============================================================================
// LOCKING AND DELETION
// =============================================================================

func TestLifecycle_LockIsTerminal(t *testing.T) {
	mem := store.NewMemory()
	lc := newLifecycle(mem)
	ctx := context.Background()

	period, err := lc.Create(ctx, testProject, payroll.NewDate(2025, time.June, 1))
	require.NoError(t, err)
	_, err = lc.Lock(ctx, period.ID, "admin-7")
	require.NoError(t, err)

	_, err = lc.Lock(ctx, period.ID, "admin-7")
	assert.True(t, payroll.IsState(err), "double lock: %v", err)

	_, err = lc.Calculate(ctx, period.ID)
	assert.True(t, payroll.IsState(err))

	// The store itself refuses writes to a locked period.
	stored, err := mem.GetPeriod(ctx, period.ID)
	require.NoError(t, err)
	stored.Status = payroll.PeriodDraft
	assert.ErrorIs(t, mem.ReplacePeriod(ctx, stored), payroll.ErrPeriodLocked)
	assert.ErrorIs(t, mem.DeletePeriod(ctx, period.ID), payroll.ErrPeriodLocked)
}

func TestLifecycle_DeleteOnlyBeforeApproval(t *testing.T) {
	mem := store.NewMemory()
	lc := newLifecycle(mem)
	ctx := context.Background()

	period, err := lc.Create(ctx, testProject, payroll.NewDate(2025, time.June, 1))
	require.NoError(t, err)
	advance(t, lc, period.ID, payroll.PeriodApproved)

	err = lc.Delete(ctx, period.ID)
	assert.True(t, payroll.IsState(err), "delete approved: %v", err)

	fresh, err := lc.Create(ctx, testProject, payroll.NewDate(2025, time.June, 16))
	require.NoError(t, err)
	require.NoError(t, lc.Delete(ctx, fresh.ID))
	_, err = mem.GetPeriod(ctx, fresh.ID)
	assert.True(t, payroll.IsNotFound(err))
}

func TestLifecycle_TransitionsAudited(t *testing.T) {
	mem := store.NewMemory()
	lc := newLifecycle(mem)
	ctx := context.Background()

	period, err := lc.Create(ctx, testProject, payroll.NewDate(2025, time.June, 1))
	require.NoError(t, err)
	advance(t, lc, period.ID, payroll.PeriodPaid)
	_, err = lc.Lock(ctx, period.ID, "admin-7")
	require.NoError(t, err)

	entries, err := mem.QueryAudit(ctx, payroll.AuditFilter{
		Actions: []payroll.AuditAction{
			payroll.AuditPeriodCalculated,
			payroll.AuditPeriodApproved,
			payroll.AuditPeriodPaid,
			payroll.AuditPeriodLocked,
		},
	})
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, period.ID, e.Detail["period"])
	}
}
