package security

import (
	"context"
	"time"

	"guard.share/internal/audit"
	"guard.share/internal/models"
	"guard.share/internal/store"
)

// Snapshot is a windowed, read-only view of engine activity. It is
// eventually consistent with in-flight traffic: entries and threat state
// are sampled independently, which is fine for dashboards and incident
// triage.
type Snapshot struct {
	WindowStart        time.Time                 `json:"window_start"`
	TotalAccesses      int                       `json:"total_accesses"`
	AdmittedAccesses   int                       `json:"admitted_accesses"`
	ViewAccesses       int                       `json:"view_accesses"`
	DownloadAccesses   int                       `json:"download_accesses"`
	TotalShares        int                       `json:"total_shares"`
	ActiveShares       int                       `json:"active_shares"`
	Denials            map[models.DenyReason]int `json:"denials"`
	SuspiciousPatterns int                       `json:"suspicious_patterns"`
	BlacklistedIPs     int                       `json:"blacklisted_ips"`
	HighThreatIPs      int                       `json:"high_threat_ips"`
}

// Aggregator computes snapshots from the audit trail, the threat
// assessor, and live share-store counts. It mutates nothing.
type Aggregator struct {
	auditLog audit.Log
	threats  *Assessor
	shares   store.Store
	now      func() time.Time
}

func NewAggregator(auditLog audit.Log, threats *Assessor, shares store.Store) *Aggregator {
	return &Aggregator{
		auditLog: auditLog,
		threats:  threats,
		shares:   shares,
		now:      time.Now,
	}
}

func (g *Aggregator) Analytics(ctx context.Context, window time.Duration) (*Snapshot, error) {
	cutoff := g.now().Add(-window)

	entries, err := g.auditLog.Since(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		WindowStart: cutoff,
		Denials:     make(map[models.DenyReason]int),
	}

	for _, e := range entries {
		isAccess := e.Operation == string(models.OperationView) || e.Operation == string(models.OperationDownload)
		if isAccess {
			snap.TotalAccesses++
		}

		switch e.Outcome {
		case models.OutcomeAdmitted:
			if !isAccess {
				continue
			}
			snap.AdmittedAccesses++
			if e.Operation == string(models.OperationView) {
				snap.ViewAccesses++
			} else {
				snap.DownloadAccesses++
			}
		case models.OutcomeDenied:
			snap.Denials[e.Reason]++
			if e.Reason == models.DenySuspiciousActivity {
				snap.SuspiciousPatterns++
			}
		}
	}

	st, err := g.shares.Stats(ctx)
	if err != nil {
		return nil, err
	}
	snap.TotalShares = st.Total
	snap.ActiveShares = st.Active

	ts := g.threats.Stats()
	snap.BlacklistedIPs = ts.Blacklisted
	snap.HighThreatIPs = ts.HighThreat

	return snap, nil
}
