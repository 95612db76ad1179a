// Package notify is the seam to whatever delivers share notifications.
// Delivery is fire-and-forget: failures are logged, never propagated into
// the request path.
package notify

import (
	"context"
	"log"

	"guard.share/internal/models"
)

type Sender interface {
	NotifyRecipients(ctx context.Context, share *models.ShareRecord, emails []string)
}

// Compile-time interface check
var _ Sender = (*LogSender)(nil)

// LogSender records the intent in the server log; real mail transport is
// a deployment concern outside this service.
type LogSender struct {
	logger *log.Logger
}

func NewLogSender(logger *log.Logger) *LogSender {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) NotifyRecipients(ctx context.Context, share *models.ShareRecord, emails []string) {
	if len(emails) == 0 {
		return
	}
	s.logger.Printf("lvl=info msg=\"share notification\" token=%s recipients=%d", share.Token, len(emails))
}
