// Package quota tracks per-client deployment budgets.
//
// Each client is identified by a fingerprint derived from connection
// metadata (see Fingerprint). Every client gets a daily budget of
// deployments plus a cooldown window after each successful one. Records
// are kept in an injected Store and swept opportunistically on lookup:
// any record whose last deployment is more than a day old is evicted.
//
// Admission and debit are a single atomic operation (Reserve): the unit
// is taken up front and either kept (CommitDeploy, CommitNameTaken) or
// returned (Refund) once the deployment outcome is known. This closes
// the check-then-charge race that would otherwise let two concurrent
// requests from the same client both pass admission.
package quota

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// DailyLimit is the number of deployments a client may make per calendar day.
	DailyLimit = 50

	// Cooldown is the wait enforced after each successful deployment.
	Cooldown = 5 * time.Minute

	// evictAfter is the idle age past which a record is swept.
	evictAfter = 24 * time.Hour
)

// Record holds the quota state for one client fingerprint.
type Record struct {
	Remaining        int       // deployments left today, always in [0, DailyLimit]
	LastReset        string    // calendar date (2006-01-02) of the last counter reset
	LastDeploymentAt time.Time // zero value means no deployment recorded yet
	CooldownUntil    time.Time // zero value means no active cooldown
}

// Status is the read-only view returned for quota-check queries.
type Status struct {
	Remaining        int
	Cooldown         bool
	RemainingSeconds int
}

// CooldownError rejects a deployment attempted during an active cooldown.
type CooldownError struct {
	RemainingSeconds int
	Remaining        int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, retry in %ds", e.RemainingSeconds)
}

// ErrExhausted rejects a deployment once the daily budget is spent.
var ErrExhausted = errors.New("daily deployment quota exhausted")

// Tracker enforces the daily quota and cooldown policy over a Store.
//
// All mutating operations take an explicit now so reset and eviction
// timing is deterministic under test.
type Tracker struct {
	mu    sync.Mutex // serializes read-modify-write sequences across requests
	store Store
}

// NewTracker creates a tracker over the given store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// dateOf renders the calendar date used for daily resets.
func dateOf(now time.Time) string {
	return now.Format("2006-01-02")
}

// Lookup returns the record for a client, creating or day-resetting it as
// needed, and sweeps stale records from the store as a side effect.
func (t *Tracker) Lookup(id string, now time.Time) *Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lookup(id, now)
}

func (t *Tracker) lookup(id string, now time.Time) *Record {
	rec, exists := t.store.Get(id)
	if !exists {
		rec = &Record{
			Remaining: DailyLimit,
			LastReset: dateOf(now),
		}
		t.store.Put(id, rec)
	}

	// Counter resets on the first lookup of a new calendar day.
	// Cooldown does not survive the rollover.
	if rec.LastReset != dateOf(now) {
		rec.Remaining = DailyLimit
		rec.LastReset = dateOf(now)
		rec.CooldownUntil = time.Time{}
		t.store.Put(id, rec)
	}

	t.sweep(id, now)

	return rec
}

// sweep evicts every record (other than keep) whose last deployment is
// older than the eviction window. Records that never deployed are kept.
func (t *Tracker) sweep(keep string, now time.Time) {
	for _, id := range t.store.IDs() {
		if id == keep {
			continue
		}
		rec, exists := t.store.Get(id)
		if !exists {
			continue
		}
		if !rec.LastDeploymentAt.IsZero() && now.Sub(rec.LastDeploymentAt) > evictAfter {
			t.store.Delete(id)
		}
	}
}

// Status reports the quota state for a client without charging anything.
func (t *Tracker) Status(id string, now time.Time) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.lookup(id, now)

	st := Status{Remaining: rec.Remaining}
	if rec.CooldownUntil.After(now) {
		st.Cooldown = true
		st.RemainingSeconds = secondsUntil(rec.CooldownUntil, now)
	}

	return st
}

// Reserve admits a deployment attempt and debits one unit in the same
// step. Returns the post-debit remaining count on success, a
// *CooldownError while a cooldown is active, or ErrExhausted when the
// daily budget is spent. The caller must settle the reservation with
// CommitDeploy, CommitNameTaken or Refund.
func (t *Tracker) Reserve(id string, now time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.lookup(id, now)

	if rec.CooldownUntil.After(now) {
		return 0, &CooldownError{
			RemainingSeconds: secondsUntil(rec.CooldownUntil, now),
			Remaining:        rec.Remaining,
		}
	}

	if rec.Remaining <= 0 {
		return 0, ErrExhausted
	}

	rec.Remaining--
	t.store.Put(id, rec)

	return rec.Remaining, nil
}

// CommitDeploy settles a reservation after a successful deployment: the
// debit stands, and a fresh cooldown starts even if the budget just hit
// zero.
func (t *Tracker) CommitDeploy(id string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.store.Get(id)
	if !exists {
		return
	}

	rec.LastDeploymentAt = now
	rec.CooldownUntil = now.Add(Cooldown)
	t.store.Put(id, rec)
}

// CommitNameTaken settles a reservation after the provider rejected the
// requested name as taken: the debit stands but no cooldown starts, so
// name-guessing retries are not free.
func (t *Tracker) CommitNameTaken(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.store.Get(id)
	if !exists {
		return
	}

	// Debit already applied by Reserve; nothing on the record changes.
	t.store.Put(id, rec)
}

// Refund settles a reservation after a provider failure that is not the
// client's fault: the reserved unit is returned.
func (t *Tracker) Refund(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.store.Get(id)
	if !exists {
		return
	}

	if rec.Remaining < DailyLimit {
		rec.Remaining++
		t.store.Put(id, rec)
	}
}

// secondsUntil reports ceil(until - now) in whole seconds.
func secondsUntil(until, now time.Time) int {
	return int(math.Ceil(until.Sub(now).Seconds()))
}
