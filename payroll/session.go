/*
session.go - Scan session building

PURPOSE:
  Groups a worker's raw scan events for one calendar day into ordered,
  paired in/out sub-sessions (regular plus the three OT windows) and a
  single scanned-hours total.

PAIRING:
  Events are sorted by timestamp and bucketed by sub-period. Within a
  bucket, each "in" is paired with the next "out" that follows it. A half
  with no partner is recorded as unmatched and contributes NOTHING to the
  hours total - the builder never invents a session - but the raw events
  stay on the session for the discrepancy detail view.

LATE ARRIVALS:
  A "late" scan is a regular clock-in stamped after the expected arrival.
  Besides opening the regular sub-session it yields a LateRecord with the
  minutes late and the per-minute deduction from the site's LatePolicy.
*/
package payroll

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LATE POLICY
// =============================================================================

// LatePolicy controls how late arrivals are measured and priced.
type LatePolicy struct {
	ExpectedArrival string // "HH:mm"
	RatePerMinute   decimal.Decimal
}

// DefaultLatePolicy is the site default: work starts at 08:00, each late
// minute costs 2.
func DefaultLatePolicy() LatePolicy {
	return LatePolicy{
		ExpectedArrival: "08:00",
		RatePerMinute:   decimal.NewFromInt(2),
	}
}

// =============================================================================
// SESSION BUILDER
// =============================================================================

// SessionBuilder derives scan sessions and late records from raw events.
type SessionBuilder struct {
	Late LatePolicy
}

func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{Late: DefaultLatePolicy()}
}

// Build derives the session for one worker/day from that day's events, in
// any order. Deterministic: same events, same session.
func (b *SessionBuilder) Build(workerID WorkerID, date Date, events []ScanEvent) (*ScanSession, error) {
	sorted := make([]ScanEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	session := &ScanSession{
		WorkerID: workerID,
		Date:     date,
		Events:   sorted,
	}

	// Bucket by sub-period, preserving order.
	buckets := make(map[WorkType][]ScanEvent)
	for _, ev := range sorted {
		period, ok := ev.Type.SubPeriod()
		if !ok {
			return nil, &ValidationError{Field: "scan_type", Message: fmt.Sprintf("unknown scan type %q", ev.Type)}
		}
		buckets[period] = append(buckets[period], ev)
	}

	total := int64(0)
	// Fixed sub-period order keeps SubSessions deterministic.
	for _, period := range []WorkType{WorkOTMorning, WorkRegular, WorkOTNoon, WorkOTEvening} {
		subs, unmatched, err := pairBucket(period, buckets[period])
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			total += sub.Minutes
			session.SubSessions = append(session.SubSessions, sub)
		}
		session.Unmatched = append(session.Unmatched, unmatched...)
	}

	session.ScannedHours = MinutesToHours(total)
	b.inferBounds(session)
	return session, nil
}

// LateRecordFor derives the day's late record, if any. Returns nil when the
// worker was not stamped late or the late scan never formed a pair.
func (b *SessionBuilder) LateRecordFor(session *ScanSession) (*LateRecord, error) {
	for _, sub := range session.SubSessions {
		if sub.In.Type != ScanLate {
			continue
		}
		expectedMin, err := ParseClock(b.Late.ExpectedArrival)
		if err != nil {
			return nil, err
		}
		arrival := sub.In.Timestamp
		arrivalMin := int64(arrival.Hour()*60 + arrival.Minute())
		late := arrivalMin - expectedMin
		if late <= 0 {
			return nil, nil
		}
		return &LateRecord{
			WorkerID:                  session.WorkerID,
			Date:                      session.Date,
			ScannedArrival:            ClockString(arrivalMin),
			ExpectedArrival:           b.Late.ExpectedArrival,
			MinutesLate:               late,
			Deduction:                 b.Late.RatePerMinute.Mul(decimal.NewFromInt(late)),
			IncludedInWageCalculation: true,
		}, nil
	}
	return nil, nil
}

// pairBucket pairs ins with outs inside one sub-period bucket.
func pairBucket(period WorkType, events []ScanEvent) ([]SubSession, []ScanEvent, error) {
	var subs []SubSession
	var unmatched []ScanEvent
	var openIn *ScanEvent

	for i := range events {
		ev := events[i]
		switch {
		case ev.Type.IsIn():
			if openIn != nil {
				// Two ins in a row: the first never closed.
				unmatched = append(unmatched, *openIn)
			}
			openIn = &events[i]
		case ev.Type.IsOut():
			if openIn == nil {
				unmatched = append(unmatched, ev)
				continue
			}
			mins, err := NormalizeTimestamps(openIn.Timestamp, ev.Timestamp)
			if err != nil {
				return nil, nil, err
			}
			subs = append(subs, SubSession{
				Period:  period,
				In:      *openIn,
				Out:     ev,
				Minutes: mins,
				Hours:   MinutesToHours(mins),
			})
			openIn = nil
		}
	}
	if openIn != nil {
		unmatched = append(unmatched, *openIn)
	}
	return subs, unmatched, nil
}

// inferBounds fills InferredStart/InferredEnd from the paired sub-sessions.
func (b *SessionBuilder) inferBounds(session *ScanSession) {
	if len(session.SubSessions) == 0 {
		return
	}
	first := session.SubSessions[0].In.Timestamp
	last := session.SubSessions[0].Out.Timestamp
	for _, sub := range session.SubSessions[1:] {
		if sub.In.Timestamp.Before(first) {
			first = sub.In.Timestamp
		}
		if sub.Out.Timestamp.After(last) {
			last = sub.Out.Timestamp
		}
	}
	session.InferredStart = ClockString(int64(first.Hour()*60 + first.Minute()))
	session.InferredEnd = ClockString(int64(last.Hour()*60 + last.Minute()))
}
