package security

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"guard.share/internal/audit"
	"guard.share/internal/models"
	"guard.share/internal/store"
)

// EngineConfig tunes the validation pipeline around the injected parts.
type EngineConfig struct {
	// StoreTimeout bounds every share-store call; a timeout surfaces as
	// INTERNAL_ERROR, never as a threat signal.
	StoreTimeout time.Duration
	// RetryBackoff is the pause before the single transparent retry of a
	// failed store call.
	RetryBackoff time.Duration
	// SuspiciousAccessThreshold is the audited per-origin access volume
	// inside SuspiciousWindow that counts as a scraping pattern.
	SuspiciousAccessThreshold int
	// SuspiciousWindow bounds both suspicious-volume lookbacks.
	SuspiciousWindow time.Duration
	// CreationVolumeCeiling denies share creation outright when the
	// creating origin's audited access volume inside SuspiciousWindow
	// exceeds it. Zero disables the check.
	CreationVolumeCeiling int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		StoreTimeout:              2 * time.Second,
		RetryBackoff:              100 * time.Millisecond,
		SuspiciousAccessThreshold: 50,
		SuspiciousWindow:          10 * time.Minute,
		CreationVolumeCeiling:     200,
	}
}

// Engine is the share access control engine: it validates access and
// creation attempts against the share store, the rate limiter, and the
// threat assessor, and writes exactly one audit entry per decision.
type Engine struct {
	shares    store.Store
	limiter   *RateLimiter
	threats   *Assessor
	auditLog  audit.Log
	analytics *Aggregator
	cfg       EngineConfig
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

func NewEngine(shares store.Store, limiter *RateLimiter, threats *Assessor, auditLog audit.Log, cfg EngineConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		shares:    shares,
		limiter:   limiter,
		threats:   threats,
		auditLog:  auditLog,
		analytics: NewAggregator(auditLog, threats, shares),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Analytics returns the windowed read-only snapshot of engine activity.
func (e *Engine) Analytics(ctx context.Context, window time.Duration) (*Snapshot, error) {
	return e.analytics.Analytics(ctx, window)
}

// ValidateAccess decides one access attempt. The deny order is fixed:
// blacklist, rate limit, lookup, revocation, expiry, access limit,
// permission. On admit the access count is incremented atomically with
// the limit check, so concurrent admits never overshoot MaxAccess.
func (e *Engine) ValidateAccess(ctx context.Context, token string, op models.Operation, originKey string) Decision {
	finish := func(d Decision) Decision {
		e.record(ctx, token, originKey, string(op), d)
		return d
	}

	if e.threats.Blacklisted(originKey) {
		return finish(deny(models.DenyIPBlacklisted))
	}

	allowed, err := e.limiter.Check(ctx, ClassShareAccess, originKey)
	if err != nil {
		e.logger.Printf("lvl=error msg=\"rate counter failed\" origin=%s err=%q", originKey, err)
		return finish(deny(models.DenyInternalError))
	}
	if !allowed {
		e.threats.Observe(originKey, SignalRateLimitDenial)
		return finish(deny(models.DenyRateLimited))
	}

	e.observeAccessVolume(ctx, originKey)

	share, err := e.findShare(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.threats.Observe(originKey, SignalFailedLookup)
			return finish(deny(models.DenyNotFound))
		}
		// Store unavailability is not the requester's fault: no threat
		// signal, distinct reason.
		e.logger.Printf("lvl=error msg=\"share lookup failed\" origin=%s err=%q", originKey, err)
		return finish(deny(models.DenyInternalError))
	}

	if !share.Active {
		return finish(deny(models.DenyRevoked))
	}
	if share.Expired(e.now()) {
		return finish(deny(models.DenyExpired))
	}
	if share.Exhausted() {
		return finish(deny(models.DenyAccessLimitReached))
	}
	if !share.Permission.Allows(op) {
		return finish(deny(models.DenyPermissionDenied))
	}

	admitted, err := e.incrementAccess(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between lookup and increment.
			return finish(deny(models.DenyNotFound))
		}
		e.logger.Printf("lvl=error msg=\"access increment failed\" origin=%s err=%q", originKey, err)
		return finish(deny(models.DenyInternalError))
	}
	if !admitted {
		// Lost the race to the last remaining access.
		return finish(deny(models.DenyAccessLimitReached))
	}

	share.AccessCount++
	return finish(admit(share.Public()))
}

// ValidateCreation decides whether ownerID may create a share from
// originKey. Creation rate limits are keyed by owner; the volume ceiling
// guards against an origin that is simultaneously scraping.
func (e *Engine) ValidateCreation(ctx context.Context, ownerID, originKey string) Decision {
	finish := func(d Decision) Decision {
		e.record(ctx, "", originKey, "CREATE", d)
		return d
	}

	if e.threats.Blacklisted(originKey) {
		return finish(deny(models.DenyIPBlacklisted))
	}

	allowed, err := e.limiter.Check(ctx, ClassShareCreate, ownerID)
	if err != nil {
		e.logger.Printf("lvl=error msg=\"rate counter failed\" owner=%s err=%q", ownerID, err)
		return finish(deny(models.DenyInternalError))
	}
	if !allowed {
		e.threats.Observe(originKey, SignalRateLimitDenial)
		return finish(deny(models.DenyRateLimited))
	}

	if e.cfg.CreationVolumeCeiling > 0 {
		count, err := e.countByOrigin(ctx, originKey)
		if err != nil {
			e.logger.Printf("lvl=error msg=\"audit count failed\" origin=%s err=%q", originKey, err)
		} else if count > e.cfg.CreationVolumeCeiling {
			e.threats.Observe(originKey, SignalSuspiciousPattern)
			return finish(deny(models.DenySuspiciousActivity))
		}
	}

	return finish(admit(nil))
}

// RecordCreation is the post-hoc hook the transport layer calls once a
// share actually exists.
func (e *Engine) RecordCreation(ctx context.Context, token, originKey string) {
	e.record(ctx, token, originKey, "CREATE_COMPLETED", admit(nil))
}

// RecordAccess is the post-hoc hook for a completed side effect, e.g.
// after the file bytes were streamed.
func (e *Engine) RecordAccess(ctx context.Context, token string, op models.Operation, originKey string) {
	e.record(ctx, token, originKey, string(op)+"_COMPLETED", admit(nil))
}

// Blacklist is the administrative deny-all switch for an origin.
func (e *Engine) Blacklist(originKey string, d time.Duration, reason string) {
	e.threats.Blacklist(originKey, d, reason)
	e.logger.Printf("lvl=warn msg=\"origin blacklisted\" origin=%s duration=%s reason=%q", originKey, d, reason)
}

// Unblacklist returns the origin to LOW. No-op for unknown origins.
func (e *Engine) Unblacklist(originKey string) {
	e.threats.Unblacklist(originKey)
}

// ClearSecurityState wipes threat records and rate counters. Shares and
// the audit trail are untouched.
func (e *Engine) ClearSecurityState(ctx context.Context) error {
	e.threats.ClearAll()
	return e.limiter.counters.Reset(ctx)
}

// observeAccessVolume feeds the scraping signal: an origin whose audited
// access volume inside the window exceeds the threshold gains score even
// while each individual request passes the rate limiter. Best effort; a
// failed count is logged and skipped.
func (e *Engine) observeAccessVolume(ctx context.Context, originKey string) {
	if e.cfg.SuspiciousAccessThreshold <= 0 {
		return
	}
	count, err := e.countByOrigin(ctx, originKey)
	if err != nil {
		e.logger.Printf("lvl=error msg=\"audit count failed\" origin=%s err=%q", originKey, err)
		return
	}
	if count > e.cfg.SuspiciousAccessThreshold {
		e.threats.Observe(originKey, SignalSuspiciousPattern)
	}
}

// countByOrigin runs the audit volume lookback under the same bound as
// the share-store calls, so a slow audit backend cannot stall a request.
func (e *Engine) countByOrigin(ctx context.Context, originKey string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return e.auditLog.CountByOrigin(ctx, originKey, e.now().Add(-e.cfg.SuspiciousWindow))
}

// findShare looks the token up with a bounded timeout and one transparent
// retry. ErrNotFound is final and never retried.
func (e *Engine) findShare(ctx context.Context, token string) (*models.ShareRecord, error) {
	share, err := e.findOnce(ctx, token)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return share, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.cfg.RetryBackoff):
	}
	return e.findOnce(ctx, token)
}

func (e *Engine) findOnce(ctx context.Context, token string) (*models.ShareRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return e.shares.Find(ctx, token)
}

func (e *Engine) incrementAccess(ctx context.Context, token string) (bool, error) {
	admitted, err := e.incrementOnce(ctx, token)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return admitted, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(e.cfg.RetryBackoff):
	}
	return e.incrementOnce(ctx, token)
}

func (e *Engine) incrementOnce(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return e.shares.IncrementAccess(ctx, token)
}

// record writes the single audit entry for a decision. The write is
// detached from the caller's cancellation so an abandoned request still
// leaves its trail.
func (e *Engine) record(ctx context.Context, token, originKey, operation string, d Decision) {
	e.auditLog.Record(context.WithoutCancel(ctx), models.AuditEntry{
		ID:         e.newID(),
		ShareToken: token,
		OriginKey:  originKey,
		Operation:  operation,
		Outcome:    d.Outcome,
		Reason:     d.Reason,
		Timestamp:  e.now(),
	})
}
