package security

import (
	"context"
	"sync"
	"time"
)

// ThreatLevel is the coarse risk classification for one origin.
type ThreatLevel string

const (
	LevelLow      ThreatLevel = "LOW"
	LevelMedium   ThreatLevel = "MEDIUM"
	LevelHigh     ThreatLevel = "HIGH"
	LevelCritical ThreatLevel = "CRITICAL"
)

// Signal is a denial-worthy event feeding an origin's threat score.
type Signal int

const (
	SignalRateLimitDenial Signal = iota
	SignalFailedLookup
	SignalSuspiciousPattern
)

// ThreatConfig tunes scoring, escalation, and decay.
type ThreatConfig struct {
	WeightRateLimit    int           // added per rate-limit denial
	WeightFailedLookup int           // added per unknown-token lookup
	WeightSuspicious   int           // added per suspicious-pattern hit
	MediumScore        int           // decayed score at or above -> MEDIUM
	HighScore          int           // decayed score at or above -> HIGH
	CriticalScore      int           // decayed score at or above -> automatic blacklist
	DecayWindow        time.Duration // score halves once per elapsed window
	AutoBlacklistFor   time.Duration // blacklist duration on automatic escalation
}

func DefaultThreatConfig() ThreatConfig {
	return ThreatConfig{
		WeightRateLimit:    1,
		WeightFailedLookup: 1,
		WeightSuspicious:   5,
		MediumScore:        5,
		HighScore:          10,
		CriticalScore:      20,
		DecayWindow:        15 * time.Minute,
		AutoBlacklistFor:   time.Hour,
	}
}

type threatRecord struct {
	score            int
	lastUpdate       time.Time
	blacklistedUntil time.Time
	blacklistReason  string
}

// Assessor tracks a decaying threat score per origin and owns the
// blacklist. Records are created lazily at LOW on the first observed
// signal; reads never mutate, so Level is cheap to call from the hot
// path. CRITICAL holds exactly while blacklistedUntil is in the future.
type Assessor struct {
	mu      sync.RWMutex
	records map[string]*threatRecord
	cfg     ThreatConfig
	now     func() time.Time
}

func NewAssessor(cfg ThreatConfig) *Assessor {
	return &Assessor{
		records: make(map[string]*threatRecord),
		cfg:     cfg,
		now:     time.Now,
	}
}

// decayedScore halves the stored score once per full decay window elapsed
// since the last update. Pure function of (score, elapsed): no background
// writer races with in-flight updates.
func (a *Assessor) decayedScore(r *threatRecord, now time.Time) int {
	if r.score == 0 {
		return 0
	}
	halvings := int64(now.Sub(r.lastUpdate) / a.cfg.DecayWindow)
	if halvings <= 0 {
		return r.score
	}
	if halvings > 62 {
		return 0
	}
	return r.score >> uint(halvings)
}

func (a *Assessor) levelOf(r *threatRecord, now time.Time) ThreatLevel {
	if r.blacklistedUntil.After(now) {
		return LevelCritical
	}
	score := a.decayedScore(r, now)
	switch {
	case score >= a.cfg.HighScore:
		return LevelHigh
	case score >= a.cfg.MediumScore:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Level returns the origin's current threat level. Unknown origins are
// LOW; no record is created by a read.
func (a *Assessor) Level(originKey string) ThreatLevel {
	a.mu.RLock()
	defer a.mu.RUnlock()

	r, ok := a.records[originKey]
	if !ok {
		return LevelLow
	}
	// levelOf reads record fields, so it must run before the lock drops:
	// Observe mutates score and lastUpdate under the write lock.
	return a.levelOf(r, a.now())
}

// Blacklisted reports whether the origin is currently denied outright.
func (a *Assessor) Blacklisted(originKey string) bool {
	return a.Level(originKey) == LevelCritical
}

// Observe ingests one denial-worthy signal, applying decay before the new
// weight lands. Crossing the critical threshold blacklists the origin for
// the configured auto duration.
func (a *Assessor) Observe(originKey string, signal Signal) ThreatLevel {
	weight := a.weight(signal)
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.records[originKey]
	if !ok {
		// get-or-create-with-default: first signal starts from LOW
		r = &threatRecord{lastUpdate: now}
		a.records[originKey] = r
	}

	r.score = a.decayedScore(r, now) + weight
	r.lastUpdate = now

	if r.score >= a.cfg.CriticalScore && !r.blacklistedUntil.After(now) {
		r.blacklistedUntil = now.Add(a.cfg.AutoBlacklistFor)
		r.blacklistReason = "automatic threshold escalation"
	}

	return a.levelOf(r, now)
}

func (a *Assessor) weight(signal Signal) int {
	switch signal {
	case SignalFailedLookup:
		return a.cfg.WeightFailedLookup
	case SignalSuspiciousPattern:
		return a.cfg.WeightSuspicious
	default:
		return a.cfg.WeightRateLimit
	}
}

// Blacklist denies the origin for the given duration. Idempotent: a
// longer existing blacklist is left in place.
func (a *Assessor) Blacklist(originKey string, d time.Duration, reason string) {
	now := a.now()
	until := now.Add(d)

	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.records[originKey]
	if !ok {
		r = &threatRecord{lastUpdate: now}
		a.records[originKey] = r
	}
	if until.After(r.blacklistedUntil) {
		r.blacklistedUntil = until
		r.blacklistReason = reason
	}
}

// Unblacklist forces the origin back to LOW regardless of its decayed
// score. Calling it for an unknown or never-blacklisted origin is a no-op.
func (a *Assessor) Unblacklist(originKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.records[originKey]
	if !ok {
		return
	}
	r.score = 0
	r.blacklistedUntil = time.Time{}
	r.blacklistReason = ""
	r.lastUpdate = a.now()
}

// ClearAll drops every threat record and blacklist entry.
func (a *Assessor) ClearAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = make(map[string]*threatRecord)
}

// ThreatStats is the assessor's contribution to analytics snapshots.
type ThreatStats struct {
	Tracked     int
	Blacklisted int
	HighThreat  int // HIGH or CRITICAL
}

func (a *Assessor) Stats() ThreatStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	var st ThreatStats
	st.Tracked = len(a.records)
	for _, r := range a.records {
		switch a.levelOf(r, now) {
		case LevelCritical:
			st.Blacklisted++
			st.HighThreat++
		case LevelHigh:
			st.HighThreat++
		}
	}
	return st
}

// Sweep drops records whose blacklist has lapsed and whose score has
// decayed to nothing. Called from the background loop, never from the
// request path.
func (a *Assessor) Sweep() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for key, r := range a.records {
		if r.blacklistedUntil.After(now) {
			continue
		}
		if a.decayedScore(r, now) == 0 {
			delete(a.records, key)
		}
	}
}

// Run sweeps on the given interval until ctx is cancelled.
func (a *Assessor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Sweep()
		}
	}
}
