package service

import (
	"context"
	"strings"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type readStateService struct {
	ledger ports.DeliveryLedger
	log    zerolog.Logger
}

// NewReadStateService creates the notification history service.
func NewReadStateService(ledger ports.DeliveryLedger, log zerolog.Logger) ports.ReadStateService {
	return &readStateService{ledger: ledger, log: log}
}

func (s *readStateService) History(ctx context.Context, recipientEmail string, limit, offset int) ([]domain.DeliveryRecord, int64, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	records, total, err := s.ledger.List(ctx, normalizeEmail(recipientEmail), limit, offset)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return records, total, nil
}

func (s *readStateService) UnreadCount(ctx context.Context, recipientEmail string) (int64, error) {
	n, err := s.ledger.CountUnread(ctx, normalizeEmail(recipientEmail))
	if err != nil {
		return 0, apperror.ErrDatabaseError(err)
	}
	return n, nil
}

// MarkRead flips one notification to read. Marking an already-read
// notification keeps its original read_at.
func (s *readStateService) MarkRead(ctx context.Context, recipientEmail string, id int64) error {
	found, err := s.ledger.MarkRead(ctx, normalizeEmail(recipientEmail), id)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if !found {
		return apperror.ErrNotificationNotFound()
	}
	return nil
}

func (s *readStateService) MarkAllRead(ctx context.Context, recipientEmail string) (int64, error) {
	n, err := s.ledger.MarkAllRead(ctx, normalizeEmail(recipientEmail))
	if err != nil {
		return 0, apperror.ErrDatabaseError(err)
	}
	s.log.Debug().Int64("count", n).Msg("notifications marked read")
	return n, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
