package models

import "time"

// Outcome is the terminal result of one validation.
type Outcome string

const (
	OutcomeAdmitted Outcome = "ADMITTED"
	OutcomeDenied   Outcome = "DENIED"
)

// DenyReason identifies why a request was denied. The identifiers are
// stable: they appear verbatim in audit rows and API responses.
type DenyReason string

const (
	DenyRateLimited        DenyReason = "RATE_LIMITED"
	DenyIPBlacklisted      DenyReason = "IP_BLACKLISTED"
	DenyNotFound           DenyReason = "NOT_FOUND"
	DenyExpired            DenyReason = "EXPIRED"
	DenyRevoked            DenyReason = "REVOKED"
	DenyAccessLimitReached DenyReason = "ACCESS_LIMIT_REACHED"
	DenyPermissionDenied   DenyReason = "PERMISSION_DENIED"
	DenySuspiciousActivity DenyReason = "SUSPICIOUS_ACTIVITY"
	DenyInternalError      DenyReason = "INTERNAL_ERROR"
)

// AuditEntry is one immutable access-decision record. ShareToken is empty
// for creation events. Reason is empty on admits.
type AuditEntry struct {
	ID         string     `json:"id"`
	ShareToken string     `json:"share_token,omitempty"`
	OriginKey  string     `json:"origin_key"`
	Operation  string     `json:"operation"`
	Outcome    Outcome    `json:"outcome"`
	Reason     DenyReason `json:"reason,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
