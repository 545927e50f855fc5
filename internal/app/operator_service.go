package app

import (
	"context"
	"fmt"
)

// Custom application-level errors for operator actions
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

type scanRunner interface {
	Scan(ctx context.Context) (*ScanResult, error)
	Housekeep(ctx context.Context) (int64, error)
}

// OperatorService runs scheduler tasks on demand for the configured admin.
type OperatorService struct {
	tracker         scanRunner
	adminTelegramID int64
}

func NewOperatorService(tracker scanRunner, adminID int64) *OperatorService {
	return &OperatorService{
		tracker:         tracker,
		adminTelegramID: adminID,
	}
}

func (s *OperatorService) IsAdmin(userID int64) bool {
	return s.adminTelegramID != 0 && userID == s.adminTelegramID
}

// TriggerScan runs one activation scan outside the cron schedule.
func (s *OperatorService) TriggerScan(ctx context.Context, performingAdminID int64) (*ScanResult, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	result, err := s.tracker.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("manual scan failed: %w", err)
	}
	return result, nil
}

// TriggerHousekeeping deactivates expired notifications outside the cron schedule.
func (s *OperatorService) TriggerHousekeeping(ctx context.Context, performingAdminID int64) (int64, error) {
	if !s.IsAdmin(performingAdminID) {
		return 0, ErrAdminNotAuthorized
	}
	count, err := s.tracker.Housekeep(ctx)
	if err != nil {
		return 0, fmt.Errorf("manual housekeeping failed: %w", err)
	}
	return count, nil
}
