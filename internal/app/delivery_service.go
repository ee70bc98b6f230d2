// internal/app/delivery_service.go
package app

import (
	"context"
	"errors"
	"fmt"

	"cycle_reminder_bot/internal/domain/cycle"
	"cycle_reminder_bot/internal/domain/notification"
	domainTelegram "cycle_reminder_bot/internal/domain/telegram"
	"cycle_reminder_bot/internal/domain/user"
	idb "cycle_reminder_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// ErrRecipientBlocked means Telegram refused the message because the user
// blocked the bot. The user is deactivated when this happens.
var ErrRecipientBlocked = errors.New("recipient blocked the bot")

// DeliveryService renders reminders and sends them through Telegram.
// It implements notification.Deliverer.
type DeliveryService struct {
	users          user.Repository
	cycles         cycle.Repository
	settings       notification.SettingsRepository
	telegramClient domainTelegram.Client
	logger         *logrus.Entry
}

func NewDeliveryService(
	ur user.Repository,
	cr cycle.Repository,
	sr notification.SettingsRepository,
	tc domainTelegram.Client,
	logger *logrus.Entry,
) *DeliveryService {
	return &DeliveryService{
		users:          ur,
		cycles:         cr,
		settings:       sr,
		telegramClient: tc,
		logger:         logger,
	}
}

func (s *DeliveryService) Deliver(ctx context.Context, userID int64, t notification.Type) error {
	logger := s.logger.WithFields(logrus.Fields{"user_id": userID, "notification_type": t})

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, idb.ErrUserNotFound) {
			return fmt.Errorf("%w: %w", notification.ErrSuppressed, err)
		}
		return fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if !u.IsActive {
		return fmt.Errorf("%w: %w", notification.ErrSuppressed, ErrUserInactive)
	}

	enabled, err := s.settings.IsEnabled(ctx, userID, t)
	if err != nil {
		return fmt.Errorf("failed to load notification setting: %w", err)
	}
	if !enabled {
		return fmt.Errorf("%w: %s disabled by user", notification.ErrSuppressed, t)
	}

	p, err := s.cycles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, idb.ErrProfileNotFound) {
			return fmt.Errorf("%w: %w", notification.ErrSuppressed, ErrNotConfigured)
		}
		return fmt.Errorf("failed to load cycle profile: %w", err)
	}
	schedule, err := cycle.Derive(*p)
	if err != nil {
		return fmt.Errorf("stored cycle profile is invalid: %w", err)
	}

	opts := &telebot.SendOptions{ParseMode: telebot.ModeHTML}
	if t == notification.TypePeriodConfirmation {
		markup := &telebot.ReplyMarkup{}
		yes := markup.Data("Да, начались", CallbackPeriodStarted)
		notYet := markup.Data("Ещё нет", CallbackPeriodNotYet)
		markup.Inline(markup.Row(yes, notYet))
		opts.ReplyMarkup = markup
	}

	err = s.telegramClient.SendMessage(ctx, u.TelegramID, reminderText(t, schedule), opts)
	if err == nil {
		return nil
	}
	if errors.Is(err, domainTelegram.ErrRecipientUnavailable) {
		logger.WithError(err).Warn("User blocked the bot, deactivating")
		u.IsActive = false
		if updErr := s.users.Update(ctx, u); updErr != nil {
			logger.WithError(updErr).Error("Failed to deactivate user")
		}
		return fmt.Errorf("%w: %v", ErrRecipientBlocked, err)
	}
	return fmt.Errorf("failed to send %s: %w", t, err)
}
