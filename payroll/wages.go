/*
wages.go - Period wage calculation

PURPOSE:
  Computes every worker's wage summary for one 15-day period from the
  resolved daily reports and flagged late records in its span.

PER WORKER:
  hours     = reports grouped by work type (regular + three OT buckets)
  gross     = regular x hourly rate
            + sum(OT bucket x hourly rate x 1.5)
            + professional rate (flat, when assigned)
            + phone allowance (flat)
  expenses  = accommodation + followers x follower rate + utilities,
              from the expense profile effective at period start
  deduction = social security (see socialsecurity.go) + flagged late sums
  net       = gross - expenses - deductions

GUARANTEES:
  - Deterministic and idempotent: the summary list is rebuilt from scratch
    each run, workers sorted by id; unchanged inputs give identical output.
  - Atomic: summaries are staged in memory and committed with one period
    replace. A cancelled run leaves the stored period untouched.
  - Exclusive: a second calculation for the same period while one is in
    flight is rejected with ErrCalculationInProgress.
  - No silent zeros: a worker with reportable hours but no income profile
    fails the run with MissingRateCardError.
*/
package payroll

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// OvertimeMultiplier is the statutory premium for all OT sub-periods.
var OvertimeMultiplier = decimal.NewFromFloat(1.5)

// Calculator computes wage summaries for a period.
type Calculator struct {
	Reports       DailyReportStore
	LateRecords   LateRecordStore
	RateCards     RateCardStore
	Discrepancies DiscrepancyStore
	Periods       PeriodStore
	Log           *logrus.Logger

	guard     *calculationGuard
	guardOnce sync.Once
}

// Calculate runs the full computation for the period and commits the
// result atomically. The caller (Lifecycle) has already vetted the status.
func (c *Calculator) Calculate(ctx context.Context, period *WagePeriod) (*WagePeriod, error) {
	c.guardOnce.Do(func() { c.guard = newCalculationGuard() })
	if err := c.guard.acquire(period.ID); err != nil {
		return nil, err
	}
	defer c.guard.release(period.ID)

	span := period.Span()

	reports, err := c.Reports.ListDailyReports(ctx, period.ProjectID, span)
	if err != nil {
		return nil, fmt.Errorf("listing daily reports: %w", err)
	}
	lates, err := c.LateRecords.ListLateRecords(ctx, span)
	if err != nil {
		return nil, fmt.Errorf("listing late records: %w", err)
	}
	pending, err := c.Discrepancies.CountPendingDiscrepancies(ctx, period.ProjectID, span)
	if err != nil {
		return nil, fmt.Errorf("counting pending discrepancies: %w", err)
	}

	summaries, err := c.buildSummaries(ctx, period, reports, lates)
	if err != nil {
		return nil, err
	}

	// Stage everything, then commit with one atomic replace. A cancelled
	// context here means the stored period was never touched.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	period.Summaries = summaries
	period.Totals = totalsOf(summaries)
	period.HasUnresolvedDiscrepancies = pending > 0
	period.Status = PeriodCalculated
	period.CalculatedAt = &now
	period.UpdatedAt = now

	if err := c.Periods.ReplacePeriod(ctx, period); err != nil {
		return nil, fmt.Errorf("committing period: %w", err)
	}

	if c.Log != nil {
		c.Log.WithFields(logrus.Fields{
			"period":  period.ID,
			"code":    period.Code,
			"workers": len(summaries),
			"gross":   period.Totals.Gross.String(),
			"net":     period.Totals.Net.String(),
			"pending": pending,
		}).Info("wage calculation committed")
	}
	return period, nil
}

// buildSummaries computes the full summary list. Pure with respect to the
// stores except for rate-card reads.
func (c *Calculator) buildSummaries(ctx context.Context, period *WagePeriod, reports []*DailyReport, lates []*LateRecord) ([]WageSummary, error) {
	type accum struct {
		hours map[WorkType]decimal.Decimal
		late  decimal.Decimal
	}

	byWorker := make(map[WorkerID]*accum)
	get := func(id WorkerID) *accum {
		a, ok := byWorker[id]
		if !ok {
			a = &accum{hours: make(map[WorkType]decimal.Decimal)}
			byWorker[id] = a
		}
		return a
	}

	for _, r := range reports {
		hours, err := r.Hours()
		if err != nil {
			return nil, fmt.Errorf("report %s for %s/%s: %w", r.ID, r.WorkerID, r.WorkDate, err)
		}
		a := get(r.WorkerID)
		a.hours[r.WorkType] = a.hours[r.WorkType].Add(hours)
	}

	for _, l := range lates {
		if !l.IncludedInWageCalculation {
			continue
		}
		a := get(l.WorkerID)
		a.late = a.late.Add(l.Deduction)
	}

	workerIDs := make([]WorkerID, 0, len(byWorker))
	for id := range byWorker {
		workerIDs = append(workerIDs, id)
	}
	sort.Slice(workerIDs, func(i, j int) bool { return workerIDs[i] < workerIDs[j] })

	summaries := make([]WageSummary, 0, len(workerIDs))
	for _, id := range workerIDs {
		a := byWorker[id]
		summary, err := c.workerSummary(ctx, period, id, a.hours, a.late)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (c *Calculator) workerSummary(ctx context.Context, period *WagePeriod, id WorkerID, hours map[WorkType]decimal.Decimal, lateDeduction decimal.Decimal) (WageSummary, error) {
	s := WageSummary{
		WorkerID:       id,
		RegularHours:   hours[WorkRegular],
		OTMorningHours: hours[WorkOTMorning],
		OTNoonHours:    hours[WorkOTNoon],
		OTEveningHours: hours[WorkOTEvening],
		LateDeduction:  lateDeduction,
	}

	hasHours := s.RegularHours.IsPositive() || s.OTHours().IsPositive()

	income, err := c.RateCards.IncomeProfileAsOf(ctx, id, period.Start)
	switch {
	case IsNotFound(err):
		if hasHours {
			return WageSummary{}, &MissingRateCardError{WorkerID: id, AsOf: period.Start}
		}
		income = &IncomeProfile{WorkerID: id} // late-record-only worker, zero rates
	case err != nil:
		return WageSummary{}, fmt.Errorf("income profile for %s: %w", id, err)
	}

	s.BasePay = s.RegularHours.Mul(income.HourlyRate)
	s.OvertimePay = s.OTHours().Mul(income.HourlyRate).Mul(OvertimeMultiplier)
	s.ProfessionalPay = income.ProfessionalRate
	s.PhoneAllowance = income.PhoneAllowance
	s.Gross = s.BasePay.Add(s.OvertimePay).Add(s.ProfessionalPay).Add(s.PhoneAllowance)

	expense, err := c.RateCards.ExpenseProfileAsOf(ctx, id, period.Start)
	switch {
	case IsNotFound(err):
		// No expense profile means no deductible expenses.
	case err != nil:
		return WageSummary{}, fmt.Errorf("expense profile for %s: %w", id, err)
	default:
		s.Accommodation = expense.Accommodation
		s.Utilities = expense.Utilities
		s.FollowerCost = expense.FollowerCost()
	}
	s.Expenses = s.Accommodation.Add(s.Utilities).Add(s.FollowerCost)

	s.SocialSecurity = SocialSecurityDeduction(s.Gross, ExemptWorker(id))
	s.Net = s.Gross.Sub(s.Expenses).Sub(s.SocialSecurity).Sub(s.LateDeduction)
	return s, nil
}

func totalsOf(summaries []WageSummary) PeriodTotals {
	t := PeriodTotals{
		RegularHours: decimal.Zero,
		OTHours:      decimal.Zero,
		Gross:        decimal.Zero,
		Deductions:   decimal.Zero,
		Net:          decimal.Zero,
	}
	for _, s := range summaries {
		t.RegularHours = t.RegularHours.Add(s.RegularHours)
		t.OTHours = t.OTHours.Add(s.OTHours())
		t.Gross = t.Gross.Add(s.Gross)
		t.Deductions = t.Deductions.Add(s.Expenses).Add(s.SocialSecurity).Add(s.LateDeduction)
		t.Net = t.Net.Add(s.Net)
	}
	return t
}
