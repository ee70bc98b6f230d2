package telegram

import (
	"context"
	"errors"

	"cycle_reminder_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterAdminHandlers registers handlers for admin commands.
// It requires the bot instance, admin service, and the configured admin Telegram ID.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, adminTelegramID int64, baseLogger *logrus.Entry) {
	b.Handle("/stats", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/stats",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("Ошибка: У вас нет прав для выполнения этой команды.") // Unauthorized
		}

		stats, err := adminService.Stats(ctx, c.Sender().ID)
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			if errors.Is(err, app.ErrAdminNotAuthorized) { // Redundant here
				logWithError.Warn("Admin not authorized (service level)")
				return c.Send("Ошибка: У вас нет прав для выполнения этой команды.")
			}
			logWithError.Error("Failed to collect stats")
			return c.Send(genericError)
		}

		handlerLogger.WithFields(logrus.Fields{
			"users":        stats.Users.Total,
			"pending_jobs": stats.PendingJobs,
		}).Info("Stats sent")
		return c.Send(app.FormatStats(stats), htmlOpts)
	})
}
