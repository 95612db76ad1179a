package security

import (
	"sync"
	"testing"
	"time"
)

func newTestAssessor() (*Assessor, *time.Time) {
	a := NewAssessor(DefaultThreatConfig())
	now := time.Now()
	a.now = func() time.Time { return now }
	return a, &now
}

func TestAssessorUnknownOriginIsLow(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssessor()

	if lvl := a.Level("10.0.0.1"); lvl != LevelLow {
		t.Errorf("unknown origin level = %s, want LOW", lvl)
	}
	if a.Blacklisted("10.0.0.1") {
		t.Error("unknown origin reported blacklisted")
	}
}

func TestAssessorEscalationLadder(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssessor()
	origin := "10.0.0.2"

	// Defaults: medium at 5, high at 10, critical at 20, weight 1 per
	// rate-limit denial.
	for i := 0; i < 4; i++ {
		a.Observe(origin, SignalRateLimitDenial)
	}
	if lvl := a.Level(origin); lvl != LevelLow {
		t.Errorf("after 4 signals level = %s, want LOW", lvl)
	}

	a.Observe(origin, SignalRateLimitDenial)
	if lvl := a.Level(origin); lvl != LevelMedium {
		t.Errorf("after 5 signals level = %s, want MEDIUM", lvl)
	}

	for i := 0; i < 5; i++ {
		a.Observe(origin, SignalFailedLookup)
	}
	if lvl := a.Level(origin); lvl != LevelHigh {
		t.Errorf("after 10 signals level = %s, want HIGH", lvl)
	}
}

func TestAssessorAutoBlacklistAtCriticalScore(t *testing.T) {
	t.Parallel()
	a, nowPtr := newTestAssessor()
	origin := "10.0.0.3"

	// 20 denial signals cross the critical threshold (default 20); the
	// 21st request finds the origin blacklisted.
	for i := 0; i < 20; i++ {
		a.Observe(origin, SignalRateLimitDenial)
	}

	if lvl := a.Level(origin); lvl != LevelCritical {
		t.Fatalf("after 20 signals level = %s, want CRITICAL", lvl)
	}
	if !a.Blacklisted(origin) {
		t.Fatal("origin past critical score not blacklisted")
	}

	// Blacklist lapses after the auto duration.
	*nowPtr = nowPtr.Add(time.Hour + time.Second)
	if a.Blacklisted(origin) {
		t.Error("origin still blacklisted after auto duration elapsed")
	}
	if lvl := a.Level(origin); lvl == LevelCritical {
		t.Error("level stayed CRITICAL after blacklist expiry")
	}
}

func TestAssessorScoreDecay(t *testing.T) {
	t.Parallel()
	a, nowPtr := newTestAssessor()
	origin := "10.0.0.4"

	for i := 0; i < 12; i++ {
		a.Observe(origin, SignalFailedLookup)
	}
	if lvl := a.Level(origin); lvl != LevelHigh {
		t.Fatalf("level = %s, want HIGH", lvl)
	}

	// One decay window halves 12 to 6 -> MEDIUM.
	*nowPtr = nowPtr.Add(15 * time.Minute)
	if lvl := a.Level(origin); lvl != LevelMedium {
		t.Errorf("after one decay window level = %s, want MEDIUM", lvl)
	}

	// Two more windows: 6 -> 3 -> 1 -> LOW.
	*nowPtr = nowPtr.Add(30 * time.Minute)
	if lvl := a.Level(origin); lvl != LevelLow {
		t.Errorf("after three decay windows level = %s, want LOW", lvl)
	}
}

func TestAssessorDecayAppliesBeforeNewSignal(t *testing.T) {
	t.Parallel()
	a, nowPtr := newTestAssessor()
	origin := "10.0.0.5"

	for i := 0; i < 10; i++ {
		a.Observe(origin, SignalFailedLookup)
	}

	*nowPtr = nowPtr.Add(15 * time.Minute)

	// 10 halves to 5, plus 1 = 6: MEDIUM, not HIGH.
	if lvl := a.Observe(origin, SignalFailedLookup); lvl != LevelMedium {
		t.Errorf("level after decayed observe = %s, want MEDIUM", lvl)
	}
}

func TestAssessorManualBlacklist(t *testing.T) {
	t.Parallel()
	a, nowPtr := newTestAssessor()
	origin := "10.0.0.5"

	a.Blacklist(origin, 24*time.Hour, "manual")
	if !a.Blacklisted(origin) {
		t.Fatal("manually blacklisted origin not CRITICAL")
	}

	// Idempotent: a shorter re-blacklist never trims the existing one.
	a.Blacklist(origin, time.Minute, "again")
	*nowPtr = nowPtr.Add(time.Hour)
	if !a.Blacklisted(origin) {
		t.Error("shorter re-blacklist trimmed the original duration")
	}
}

func TestAssessorUnblacklistForcesLow(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssessor()
	origin := "10.0.0.6"

	for i := 0; i < 25; i++ {
		a.Observe(origin, SignalRateLimitDenial)
	}
	if !a.Blacklisted(origin) {
		t.Fatal("setup: origin should be blacklisted")
	}

	a.Unblacklist(origin)
	if lvl := a.Level(origin); lvl != LevelLow {
		t.Errorf("level after unblacklist = %s, want LOW", lvl)
	}
}

func TestAssessorUnblacklistUnknownOriginIsNoop(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssessor()

	a.Unblacklist("never-seen")
	if lvl := a.Level("never-seen"); lvl != LevelLow {
		t.Errorf("level = %s, want LOW", lvl)
	}
}

func TestAssessorClearAll(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssessor()

	a.Blacklist("10.0.0.7", time.Hour, "x")
	a.Observe("10.0.0.8", SignalSuspiciousPattern)

	a.ClearAll()

	if a.Blacklisted("10.0.0.7") {
		t.Error("blacklist survived ClearAll")
	}
	if st := a.Stats(); st.Tracked != 0 {
		t.Errorf("tracked = %d after ClearAll, want 0", st.Tracked)
	}
}

func TestAssessorSweep(t *testing.T) {
	t.Parallel()
	a, nowPtr := newTestAssessor()

	a.Observe("10.0.0.9", SignalFailedLookup)
	a.Blacklist("10.0.0.10", time.Hour, "x")

	// Far enough for the score to decay to zero and the blacklist to
	// lapse.
	*nowPtr = nowPtr.Add(48 * time.Hour)
	a.Sweep()

	if st := a.Stats(); st.Tracked != 0 {
		t.Errorf("tracked = %d after sweep, want 0", st.Tracked)
	}
}

func TestAssessorStats(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssessor()

	a.Blacklist("10.0.1.1", time.Hour, "x")
	for i := 0; i < 10; i++ {
		a.Observe("10.0.1.2", SignalFailedLookup) // HIGH
	}
	a.Observe("10.0.1.3", SignalFailedLookup) // LOW

	st := a.Stats()
	if st.Blacklisted != 1 {
		t.Errorf("blacklisted = %d, want 1", st.Blacklisted)
	}
	if st.HighThreat != 2 {
		t.Errorf("high threat = %d, want 2 (HIGH + CRITICAL)", st.HighThreat)
	}
	if st.Tracked != 3 {
		t.Errorf("tracked = %d, want 3", st.Tracked)
	}
}

func TestAssessorConcurrentAdminOps(t *testing.T) {
	t.Parallel()
	a := NewAssessor(DefaultThreatConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Blacklist("10.0.2.1", time.Hour, "concurrent")
			a.Observe("10.0.2.2", SignalRateLimitDenial)
			a.Unblacklist("10.0.2.3")
			a.Level("10.0.2.1")
		}()
	}
	wg.Wait()

	if !a.Blacklisted("10.0.2.1") {
		t.Error("origin not blacklisted after concurrent calls")
	}
}

func TestAssessorConcurrentLevelReads(t *testing.T) {
	t.Parallel()
	a := NewAssessor(DefaultThreatConfig())
	a.Observe("10.0.3.1", SignalFailedLookup)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				a.Level("10.0.3.1")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 500; j++ {
			a.Observe("10.0.3.1", SignalFailedLookup)
		}
	}()
	wg.Wait()

	if got := a.Level("10.0.3.1"); got != LevelCritical {
		t.Errorf("level after 501 failed lookups = %s, want %s", got, LevelCritical)
	}
}
