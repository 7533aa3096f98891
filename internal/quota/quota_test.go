package quota

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

var baseTime = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func TestLookup_CreatesRecordWithFullBudget(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())

	rec := tracker.Lookup("client-a", baseTime)

	if rec.Remaining != DailyLimit {
		t.Errorf("Expected remaining %d, got %d", DailyLimit, rec.Remaining)
	}
	if rec.LastReset != "2025-06-15" {
		t.Errorf("Expected lastReset 2025-06-15, got %s", rec.LastReset)
	}
	if !rec.CooldownUntil.IsZero() {
		t.Errorf("Expected no cooldown on a fresh record")
	}
}

func TestLookup_ResetsOnDayRollover(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	if _, err := tracker.Reserve("client-a", baseTime); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	tracker.CommitDeploy("client-a", baseTime)

	nextDay := baseTime.Add(24 * time.Hour)
	rec := tracker.Lookup("client-a", nextDay)

	if rec.Remaining != DailyLimit {
		t.Errorf("Expected remaining reset to %d, got %d", DailyLimit, rec.Remaining)
	}
	if !rec.CooldownUntil.IsZero() {
		t.Errorf("Cooldown should not survive a day rollover")
	}
}

func TestLookup_ResetHappensOncePerDay(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())

	if _, err := tracker.Reserve("client-a", baseTime); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	// Same-day lookups never touch the counter.
	rec := tracker.Lookup("client-a", baseTime.Add(time.Hour))
	if rec.Remaining != DailyLimit-1 {
		t.Errorf("Expected remaining %d, got %d", DailyLimit-1, rec.Remaining)
	}
}

func TestSweep_EvictsStaleRecords(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	if _, err := tracker.Reserve("stale", baseTime); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	tracker.CommitDeploy("stale", baseTime)

	// A lookup from another client more than 24h later sweeps the store.
	tracker.Lookup("fresh", baseTime.Add(25*time.Hour))

	if _, exists := store.Get("stale"); exists {
		t.Errorf("Expected stale record to be evicted")
	}
	if _, exists := store.Get("fresh"); !exists {
		t.Errorf("Expected fresh record to survive")
	}
}

func TestSweep_NeverEvictsClientsThatNeverDeployed(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	tracker.Lookup("idle", baseTime)
	tracker.Lookup("other", baseTime.Add(48*time.Hour))

	if _, exists := store.Get("idle"); !exists {
		t.Errorf("Record without deployments must not be swept")
	}
}

func TestReserve_DebitsImmediately(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())

	remaining, err := tracker.Reserve("client-a", baseTime)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if remaining != DailyLimit-1 {
		t.Errorf("Expected remaining %d, got %d", DailyLimit-1, remaining)
	}
}

func TestReserve_RejectsDuringCooldown(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())

	if _, err := tracker.Reserve("client-a", baseTime); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	tracker.CommitDeploy("client-a", baseTime)

	_, err := tracker.Reserve("client-a", baseTime.Add(time.Minute))

	var cdErr *CooldownError
	if !errors.As(err, &cdErr) {
		t.Fatalf("Expected CooldownError, got %v", err)
	}
	if cdErr.RemainingSeconds != 240 {
		t.Errorf("Expected 240 remaining seconds, got %d", cdErr.RemainingSeconds)
	}
	if cdErr.Remaining != DailyLimit-1 {
		t.Errorf("Expected remaining %d in error, got %d", DailyLimit-1, cdErr.Remaining)
	}
}

func TestReserve_CooldownSecondsDecrease(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())

	if _, err := tracker.Reserve("client-a", baseTime); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	tracker.CommitDeploy("client-a", baseTime)

	prev := int(Cooldown.Seconds()) + 1
	for _, offset := range []time.Duration{10 * time.Second, 30 * time.Second, 90 * time.Second} {
		_, err := tracker.Reserve("client-a", baseTime.Add(offset))
		var cdErr *CooldownError
		if !errors.As(err, &cdErr) {
			t.Fatalf("Expected CooldownError at +%v, got %v", offset, err)
		}
		if cdErr.RemainingSeconds >= prev {
			t.Errorf("Expected remaining seconds to decrease, got %d then %d", prev, cdErr.RemainingSeconds)
		}
		prev = cdErr.RemainingSeconds
	}
}

func TestReserve_RejectsWhenExhausted(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	rec := tracker.Lookup("client-a", baseTime)
	rec.Remaining = 0
	store.Put("client-a", rec)

	if _, err := tracker.Reserve("client-a", baseTime); !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
}

func TestReserve_ExhaustionWinsOverElapsedCooldown(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	rec := tracker.Lookup("client-a", baseTime)
	rec.Remaining = 0
	store.Put("client-a", rec)
	tracker.CommitDeploy("client-a", baseTime)

	// Past the cooldown but out of budget.
	_, err := tracker.Reserve("client-a", baseTime.Add(10*time.Minute))
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
}

func TestCommitDeploy_StartsCooldownEvenAtZeroRemaining(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	rec := tracker.Lookup("client-a", baseTime)
	rec.Remaining = 1
	store.Put("client-a", rec)

	if _, err := tracker.Reserve("client-a", baseTime); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	tracker.CommitDeploy("client-a", baseTime)

	rec, _ = store.Get("client-a")
	if rec.Remaining != 0 {
		t.Errorf("Expected remaining 0, got %d", rec.Remaining)
	}
	if !rec.CooldownUntil.Equal(baseTime.Add(Cooldown)) {
		t.Errorf("Expected cooldown until %v, got %v", baseTime.Add(Cooldown), rec.CooldownUntil)
	}
}

func TestCommitNameTaken_ChargesWithoutCooldown(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	if _, err := tracker.Reserve("client-a", baseTime); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	tracker.CommitNameTaken("client-a")

	rec, _ := store.Get("client-a")
	if rec.Remaining != DailyLimit-1 {
		t.Errorf("Expected remaining %d, got %d", DailyLimit-1, rec.Remaining)
	}
	if !rec.CooldownUntil.IsZero() {
		t.Errorf("Name-taken charge must not start a cooldown")
	}
}

func TestCommitNameTaken_IgnoresMissingRecord(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	if _, err := tracker.Reserve("client-a", baseTime); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	store.Delete("client-a")

	tracker.CommitNameTaken("client-a")

	if _, exists := store.Get("client-a"); exists {
		t.Errorf("Settling must not recreate an evicted record")
	}
}

func TestRefund_RestoresReservedUnit(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	if _, err := tracker.Reserve("client-a", baseTime); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	tracker.Refund("client-a")

	rec, _ := store.Get("client-a")
	if rec.Remaining != DailyLimit {
		t.Errorf("Expected remaining %d after refund, got %d", DailyLimit, rec.Remaining)
	}
}

func TestRefund_NeverExceedsDailyLimit(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	tracker.Lookup("client-a", baseTime)
	tracker.Refund("client-a")

	rec, _ := store.Get("client-a")
	if rec.Remaining != DailyLimit {
		t.Errorf("Remaining must not exceed %d, got %d", DailyLimit, rec.Remaining)
	}
}

func TestStatus_NeverCharges(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)

	for i := 0; i < 5; i++ {
		st := tracker.Status("client-a", baseTime)
		if st.Remaining != DailyLimit {
			t.Fatalf("Status must not charge, got remaining %d on call %d", st.Remaining, i)
		}
	}
}

func TestStatus_ReportsActiveCooldown(t *testing.T) {
	tracker := NewTracker(NewMemoryStore())

	if _, err := tracker.Reserve("client-a", baseTime); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	tracker.CommitDeploy("client-a", baseTime)

	st := tracker.Status("client-a", baseTime.Add(2*time.Minute))
	if !st.Cooldown {
		t.Fatalf("Expected cooldown flag set")
	}
	if st.RemainingSeconds != 180 {
		t.Errorf("Expected 180 remaining seconds, got %d", st.RemainingSeconds)
	}
	if st.Remaining != DailyLimit-1 {
		t.Errorf("Expected remaining %d, got %d", DailyLimit-1, st.Remaining)
	}
}

func TestFingerprint_DeterministicPerAddressAndAgent(t *testing.T) {
	r1 := httptest.NewRequest("POST", "/api/deploy", nil)
	r1.Header.Set("X-Forwarded-For", "203.0.113.7")
	r1.Header.Set("User-Agent", "agent-a")

	r2 := httptest.NewRequest("POST", "/api/deploy", nil)
	r2.Header.Set("X-Forwarded-For", "203.0.113.7")
	r2.Header.Set("User-Agent", "agent-a")

	if Fingerprint(r1) != Fingerprint(r2) {
		t.Errorf("Identical address+agent must map to the same fingerprint")
	}

	r2.Header.Set("User-Agent", "agent-b")
	if Fingerprint(r1) == Fingerprint(r2) {
		t.Errorf("Different agents must map to different fingerprints")
	}

	if len(Fingerprint(r1)) != 64 {
		t.Errorf("Expected 64-char hex fingerprint, got %d chars", len(Fingerprint(r1)))
	}
}

func TestFingerprint_UsesFirstForwardedHop(t *testing.T) {
	direct := httptest.NewRequest("POST", "/api/deploy", nil)
	direct.Header.Set("X-Forwarded-For", "203.0.113.7")

	chained := httptest.NewRequest("POST", "/api/deploy", nil)
	chained.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if Fingerprint(direct) != Fingerprint(chained) {
		t.Errorf("Proxy hops after the first must not change the fingerprint")
	}
}
