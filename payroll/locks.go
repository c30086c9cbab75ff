package payroll

import "sync"

// =============================================================================
// IDENTITY LOCKS - Serialize writes to one (worker, date) discrepancy
// =============================================================================

// identityKey is the (worker, work date) identity of a discrepancy.
type identityKey struct {
	WorkerID WorkerID
	Date     string
}

// keyedMutex hands out one mutex per identity so detector workers can run
// concurrently across identities while writes to the same identity
// serialize. The contract here is "no lost update", nothing stronger.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[identityKey]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[identityKey]*sync.Mutex)}
}

func (k *keyedMutex) lock(workerID WorkerID, date Date) func() {
	k.mu.Lock()
	key := identityKey{WorkerID: workerID, Date: date.String()}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// =============================================================================
// CALCULATION GUARD - One wage calculation per period at a time
// =============================================================================

// calculationGuard marks periods with a calculation in flight. A second
// request for the same period is rejected, never silently dropped.
type calculationGuard struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func newCalculationGuard() *calculationGuard {
	return &calculationGuard{inFlight: make(map[string]bool)}
}

// acquire marks the period busy. Returns ErrCalculationInProgress when a
// run is already in flight.
func (g *calculationGuard) acquire(periodID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[periodID] {
		return ErrCalculationInProgress
	}
	g.inFlight[periodID] = true
	return nil
}

func (g *calculationGuard) release(periodID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, periodID)
}
