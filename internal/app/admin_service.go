package app

import (
	"context"
	"fmt"

	"cycle_reminder_bot/internal/domain/notification"
	"cycle_reminder_bot/internal/domain/user"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// BotStats is the admin report.
type BotStats struct {
	Users       user.Stats
	PendingJobs int
	LogByStatus map[notification.Status]int
}

type AdminService struct {
	userRepo        user.Repository
	jobStore        notification.JobStore
	logRepo         notification.LogRepository
	adminTelegramID int64
}

func NewAdminService(ur user.Repository, js notification.JobStore, lr notification.LogRepository, adminID int64) *AdminService {
	return &AdminService{
		userRepo:        ur,
		jobStore:        js,
		logRepo:         lr,
		adminTelegramID: adminID,
	}
}

// Stats collects user, job and delivery counters.
func (s *AdminService) Stats(ctx context.Context, performingAdminID int64) (*BotStats, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}

	userStats, err := s.userRepo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect user stats: %w", err)
	}
	pending, err := s.jobStore.CountJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	byStatus, err := s.logRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count notification log: %w", err)
	}

	return &BotStats{Users: userStats, PendingJobs: pending, LogByStatus: byStatus}, nil
}

// FormatStats renders the admin report.
func FormatStats(st *BotStats) string {
	text := fmt.Sprintf(
		"📈 <b>Статистика</b>\n\nПользователи: %d (активных %d, с профилем %d)\nЗапланировано уведомлений: %d\n\n<b>Журнал уведомлений</b>\n",
		st.Users.Total, st.Users.Active, st.Users.WithProfile, st.PendingJobs)
	for _, status := range []notification.Status{
		notification.StatusScheduled,
		notification.StatusSent,
		notification.StatusFailed,
		notification.StatusRetry,
		notification.StatusCancelled,
	} {
		text += fmt.Sprintf("• %s: %d\n", status, st.LogByStatus[status])
	}
	return text
}
