package telegram

import (
	"bytes"
	"context"
	"fmt"

	"cycle_reminder_bot/internal/app"
	"cycle_reminder_bot/internal/domain/notification"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterResponseHandlers wires inline button callbacks and the commands that
// produce them.
func RegisterResponseHandlers(ctx context.Context, b *telebot.Bot, svc *app.CycleService, baseLogger *logrus.Entry) {
	b.Handle(&telebot.Btn{Unique: app.CallbackPeriodStarted}, func(c telebot.Context) error {
		logCtx := commandLogger(baseLogger, app.CallbackPeriodStarted, c)

		st, err := svc.ConfirmPeriodStartToday(ctx, c.Sender().ID)
		if err != nil {
			text, _ := userErrorText(err)
			logCtx.WithError(err).Warn("Period confirmation failed")
			return c.Respond(&telebot.CallbackResponse{Text: text, ShowAlert: true})
		}
		logCtx.Info("Period start confirmed from reminder")
		if err := c.Edit("Начало цикла отмечено 🌷\n\n"+app.FormatStatus(st), htmlOpts); err != nil {
			logCtx.WithError(err).Warn("Failed to edit confirmation message")
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Спасибо! Цикл пересчитан."})
	})

	b.Handle(&telebot.Btn{Unique: app.CallbackPeriodNotYet}, func(c telebot.Context) error {
		commandLogger(baseLogger, app.CallbackPeriodNotYet, c).Info("Period not started yet")
		if err := c.Edit("Хорошо. Когда месячные начнутся, отметьте это командой /period."); err != nil {
			baseLogger.WithError(err).Warn("Failed to edit confirmation message")
		}
		return c.Respond()
	})

	b.Handle("/notifications", func(c telebot.Context) error {
		logCtx := commandLogger(baseLogger, "/notifications", c)
		settings, err := svc.NotificationSettings(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send("Нажмите на уведомление, чтобы включить или выключить его:", notificationsMarkup(settings))
	})

	b.Handle(&telebot.Btn{Unique: callbackToggleNotification}, func(c telebot.Context) error {
		t := notification.Type(c.Callback().Data)
		logCtx := commandLogger(baseLogger, callbackToggleNotification, c).WithField("notification_type", t)

		settings, err := svc.NotificationSettings(ctx, c.Sender().ID)
		if err == nil {
			err = svc.SetNotificationEnabled(ctx, c.Sender().ID, t, !settings[t])
		}
		if err != nil {
			text, _ := userErrorText(err)
			logCtx.WithError(err).Warn("Failed to toggle notification")
			return c.Respond(&telebot.CallbackResponse{Text: text})
		}
		settings[t] = !settings[t]

		if err := c.Edit(notificationsMarkup(settings)); err != nil {
			logCtx.WithError(err).Warn("Failed to refresh settings keyboard")
		}
		state := "включено"
		if !settings[t] {
			state = "выключено"
		}
		return c.Respond(&telebot.CallbackResponse{Text: fmt.Sprintf("%s: %s", t.Title(), state)})
	})

	b.Handle("/export", func(c telebot.Context) error {
		logCtx := commandLogger(baseLogger, "/export", c)
		raw, err := svc.ExportUserData(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		logCtx.WithField("bytes", len(raw)).Info("User data exported")
		return c.Send(&telebot.Document{
			File:     telebot.FromReader(bytes.NewReader(raw)),
			FileName: "cycle_data.json",
			MIME:     "application/json",
			Caption:  "Все данные, которые бот хранит о вас.",
		})
	})

	b.Handle("/delete_data", func(c telebot.Context) error {
		commandLogger(baseLogger, "/delete_data", c).Info("Deletion requested")
		return c.Send("Удалить профиль, историю циклов и все уведомления? Это действие нельзя отменить.", deleteConfirmMarkup())
	})

	b.Handle(&telebot.Btn{Unique: callbackDeleteConfirm}, func(c telebot.Context) error {
		logCtx := commandLogger(baseLogger, callbackDeleteConfirm, c)
		if err := svc.DeleteUserData(ctx, c.Sender().ID); err != nil {
			text, _ := userErrorText(err)
			logCtx.WithError(err).Error("Failed to delete user data")
			return c.Respond(&telebot.CallbackResponse{Text: text, ShowAlert: true})
		}
		if err := c.Edit("Все ваши данные удалены. Чтобы начать заново, отправьте /start."); err != nil {
			logCtx.WithError(err).Warn("Failed to edit deletion message")
		}
		return c.Respond()
	})

	b.Handle(&telebot.Btn{Unique: callbackDeleteCancel}, func(c telebot.Context) error {
		if err := c.Edit("Удаление отменено."); err != nil {
			baseLogger.WithError(err).Warn("Failed to edit deletion message")
		}
		return c.Respond()
	})
}
