package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
)

const (
	// DefaultAuditLogLimit applies when callers do not pass a limit.
	DefaultAuditLogLimit = 100
	// MaxAuditLogLimit caps a single page of audit entries.
	MaxAuditLogLimit = 500
)

// AuditLogService reads and appends API call log entries.
type AuditLogService struct {
	logs port.ApiLogRepository
}

// NewAuditLogService constructs an AuditLogService.
func NewAuditLogService(logs port.ApiLogRepository) *AuditLogService {
	return &AuditLogService{logs: logs}
}

// List returns the newest entries across all users.
func (s *AuditLogService) List(ctx context.Context, limit int) ([]domain.ApiLogEntry, error) {
	entries, err := s.logs.List(ctx, clampAuditLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list api logs: %w", err)
	}
	return entries, nil
}

// ListByUser returns the newest entries owned by userID.
func (s *AuditLogService) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ApiLogEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserNotFound
	}
	entries, err := s.logs.ListByUser(ctx, userID, clampAuditLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list api logs for user: %w", err)
	}
	return entries, nil
}

// Record appends an entry.
func (s *AuditLogService) Record(ctx context.Context, entry domain.ApiLogEntry) error {
	if err := s.logs.Insert(ctx, entry); err != nil {
		return fmt.Errorf("record api log: %w", err)
	}
	return nil
}

func clampAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultAuditLogLimit
	case limit > MaxAuditLogLimit:
		return MaxAuditLogLimit
	default:
		return limit
	}
}
