package models

import "time"

// Permission is the capability a share grants to whoever holds its token.
type Permission string

const (
	PermissionViewOnly Permission = "VIEW_ONLY"
	PermissionDownload Permission = "DOWNLOAD"
)

// Operation is what a requester is trying to do with a share.
type Operation string

const (
	OperationView     Operation = "VIEW"
	OperationDownload Operation = "DOWNLOAD"
)

// Allows reports whether the permission covers the requested operation.
// VIEW_ONLY covers VIEW; DOWNLOAD covers both.
func (p Permission) Allows(op Operation) bool {
	if op == OperationDownload {
		return p == PermissionDownload
	}
	return true
}

// Valid reports whether p is one of the known permission values.
func (p Permission) Valid() bool {
	return p == PermissionViewOnly || p == PermissionDownload
}

// ShareRecord is the metadata for one issued share token.
// ExpiresAt == nil means the share never expires; MaxAccess == nil means
// unlimited accesses. AccessCount is mutated only through the store's
// atomic increment.
type ShareRecord struct {
	Token       string     `json:"token"`
	OwnerID     string     `json:"owner_id"`
	Permission  Permission `json:"permission"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `json:"active"`
	AccessCount int        `json:"access_count"`
	MaxAccess   *int       `json:"max_access,omitempty"`
}

// Expired reports whether the record is expired at the given instant.
// Expiry is exclusive of the instant itself: now == ExpiresAt is expired.
func (s *ShareRecord) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Exhausted reports whether the access limit has been reached.
// A record with MaxAccess == 0 is permanently inert.
func (s *ShareRecord) Exhausted() bool {
	return s.MaxAccess != nil && s.AccessCount >= *s.MaxAccess
}

// Public returns the subset of the record that is safe to expose to the
// requester. Owner identity never leaves the engine.
type PublicShare struct {
	Token       string     `json:"token"`
	Permission  Permission `json:"permission"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	AccessCount int        `json:"access_count"`
	MaxAccess   *int       `json:"max_access,omitempty"`
}

func (s *ShareRecord) Public() *PublicShare {
	return &PublicShare{
		Token:       s.Token,
		Permission:  s.Permission,
		ExpiresAt:   s.ExpiresAt,
		AccessCount: s.AccessCount,
		MaxAccess:   s.MaxAccess,
	}
}
