package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cycle_reminder_bot/internal/domain/cycle"
	idb "cycle_reminder_bot/internal/infra/database"
)

const exportLogLimit = 500

type exportDocument struct {
	ExportedAt    time.Time          `json:"exported_at"`
	User          exportUser         `json:"user"`
	Profile       *exportProfile     `json:"cycle_profile,omitempty"`
	History       []string           `json:"period_history"`
	Settings      map[string]bool    `json:"notification_settings"`
	Notifications []exportLogEntry   `json:"notification_log"`
	Pending       []exportPendingJob `json:"pending_notifications"`
}

type exportUser struct {
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username,omitempty"`
	Timezone   string    `json:"timezone"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

type exportProfile struct {
	LastPeriodDate string `json:"last_period_date"`
	CycleLength    int    `json:"cycle_length"`
	PeriodLength   int    `json:"period_length"`
}

type exportLogEntry struct {
	Type          string     `json:"type"`
	ScheduledDate string     `json:"scheduled_date"`
	Status        string     `json:"status"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

type exportPendingJob struct {
	Type   string    `json:"type"`
	FireAt time.Time `json:"fire_at"`
}

// ExportUserData builds a JSON document with everything stored about the user.
func (s *CycleService) ExportUserData(ctx context.Context, telegramID int64) ([]byte, error) {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	doc := exportDocument{
		ExportedAt: s.now().UTC().Truncate(time.Second),
		User: exportUser{
			TelegramID: u.TelegramID,
			Username:   u.Username.String,
			Timezone:   u.Timezone,
			IsActive:   u.IsActive,
			CreatedAt:  u.CreatedAt,
		},
		History:       []string{},
		Notifications: []exportLogEntry{},
		Pending:       []exportPendingJob{},
	}

	p, err := s.cycles.GetProfile(ctx, u.ID)
	switch {
	case err == nil:
		doc.Profile = &exportProfile{
			LastPeriodDate: cycle.FormatDate(p.LastPeriodDate),
			CycleLength:    p.CycleLength,
			PeriodLength:   p.PeriodLength,
		}
	case !errors.Is(err, idb.ErrProfileNotFound):
		return nil, fmt.Errorf("failed to load cycle profile: %w", err)
	}

	history, err := s.cycles.GetConfirmedHistory(ctx, u.ID, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to load period history: %w", err)
	}
	for _, d := range history {
		doc.History = append(doc.History, cycle.FormatDate(d))
	}

	settings, err := s.NotificationSettings(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	doc.Settings = make(map[string]bool, len(settings))
	for t, enabled := range settings {
		doc.Settings[string(t)] = enabled
	}

	entries, err := s.logs.ListLogForUser(ctx, u.ID, exportLogLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification log: %w", err)
	}
	for _, e := range entries {
		le := exportLogEntry{
			Type:          string(e.Type),
			ScheduledDate: cycle.FormatDate(e.ScheduledDate),
			Status:        string(e.Status),
			Error:         e.ErrorMessage.String,
		}
		if e.SentAt.Valid {
			sent := e.SentAt.Time
			le.SentAt = &sent
		}
		doc.Notifications = append(doc.Notifications, le)
	}

	for _, job := range s.scheduler.PendingJobs(u.ID) {
		doc.Pending = append(doc.Pending, exportPendingJob{Type: string(job.Type), FireAt: job.FireAt})
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return out, nil
}
