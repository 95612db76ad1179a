package store

import (
	"context"
	"errors"

	"guard.share/internal/models"
)

var ErrNotFound = errors.New("share not found")

// Stats is a live count of stored shares, used by the analytics read side.
type Stats struct {
	Total  int
	Active int
}

// Store holds share records. Find returns the record as stored without
// judging expiry or revocation; the validation pipeline owns those
// decisions so it can report a precise denial reason.
//
// IncrementAccess is the atomic check-and-increment of §access admission:
// it returns false (with no error) when the access limit, revocation, or
// expiry is hit concurrently, so two racing requests can never both pass
// an accessCount check and overshoot MaxAccess.
type Store interface {
	Save(ctx context.Context, share *models.ShareRecord) error
	Find(ctx context.Context, token string) (*models.ShareRecord, error)
	IncrementAccess(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string) error
	UpdatePermission(ctx context.Context, token string, p models.Permission) error
	Delete(ctx context.Context, token string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
