// Package security is the share access control engine: rate limiting,
// threat assessment, the validation pipeline, and the analytics read side.
package security

import "guard.share/internal/models"

// Decision is the terminal result of one validation. Denials are values,
// not errors; errors are reserved for programming faults.
type Decision struct {
	Outcome models.Outcome      `json:"outcome"`
	Reason  models.DenyReason   `json:"reason,omitempty"`
	Record  *models.PublicShare `json:"record,omitempty"`
}

func (d Decision) Admitted() bool {
	return d.Outcome == models.OutcomeAdmitted
}

func admit(record *models.PublicShare) Decision {
	return Decision{Outcome: models.OutcomeAdmitted, Record: record}
}

func deny(reason models.DenyReason) Decision {
	return Decision{Outcome: models.OutcomeDenied, Reason: reason}
}
