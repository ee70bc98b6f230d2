// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cycle_reminder_bot/internal/app"
	"cycle_reminder_bot/internal/domain/cycle"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const historyLimit = 6

// replyError answers with a user-facing explanation and logs internal failures.
func replyError(c telebot.Context, logger *logrus.Entry, err error) error {
	text, expected := userErrorText(err)
	if expected {
		logger.WithError(err).Info("Request rejected")
	} else {
		logger.WithError(err).Error("Request failed")
	}
	return c.Send(text)
}

func commandLogger(base *logrus.Entry, command string, c telebot.Context) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"handler":   command,
		"sender_id": c.Sender().ID,
	})
}

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	svc *app.CycleService,
	baseLogger *logrus.Entry, // For contextual logging
) {
	b.Handle("/start", func(c telebot.Context) error {
		logCtx := commandLogger(baseLogger, "/start", c)
		logCtx.Info("Processing /start command")

		_, created, err := svc.RegisterUser(ctx, c.Sender().ID, c.Sender().Username)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		greeting := "С возвращением! "
		if created {
			greeting = fmt.Sprintf("Привет, %s! ", c.Sender().FirstName)
		}

		if _, err := svc.GetStatus(ctx, c.Sender().ID); errors.Is(err, app.ErrNotConfigured) {
			return c.Send(greeting + "Я помогу следить за циклом и вовремя напомню о важных днях.\n\n" +
				"Чтобы начать, укажите дату начала последних месячных, длину цикла и длительность месячных.\n" + setupUsage)
		}
		return c.Send(greeting + "Ваш профиль уже настроен. /status покажет текущий цикл, /help - список команд.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		commandLogger(baseLogger, "/help", c).Info("Processing /help command")
		return c.Send(helpText)
	})

	b.Handle("/setup", func(c telebot.Context) error {
		logCtx := commandLogger(baseLogger, "/setup", c)

		start, cycleLength, periodLength, err := parseSetupArgs(c.Args())
		if errors.Is(err, errUsage) {
			return c.Send(setupUsage)
		}
		if err != nil {
			return replyError(c, logCtx, err)
		}

		st, err := svc.SetupProfile(ctx, c.Sender().ID, start, cycleLength, periodLength)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send("Профиль сохранён. Уведомления запланированы.\n\n"+app.FormatStatus(st), htmlOpts)
	})

	b.Handle("/period", func(c telebot.Context) error {
		logCtx := commandLogger(baseLogger, "/period", c)

		var (
			st  *app.Status
			err error
		)
		switch args := c.Args(); len(args) {
		case 0:
			st, err = svc.ConfirmPeriodStartToday(ctx, c.Sender().ID)
		case 1:
			start, parseErr := cycle.ParseDate(args[0])
			if parseErr != nil {
				return replyError(c, logCtx, parseErr)
			}
			st, err = svc.ConfirmPeriodStart(ctx, c.Sender().ID, start)
		default:
			return c.Send("Формат: /period [ГГГГ-ММ-ДД]. Без даты отмечается сегодняшний день.")
		}
		if err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send("Начало цикла отмечено 🌷\n\n"+app.FormatStatus(st), htmlOpts)
	})

	b.Handle("/status", func(c telebot.Context) error {
		logCtx := commandLogger(baseLogger, "/status", c)
		st, err := svc.GetStatus(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send(app.FormatStatus(st), htmlOpts)
	})

	b.Handle("/history", func(c telebot.Context) error {
		logCtx := commandLogger(baseLogger, "/history", c)
		entries, err := svc.History(ctx, c.Sender().ID, historyLimit)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send(app.FormatHistory(entries), htmlOpts)
	})

	b.Handle("/timezone", func(c telebot.Context) error {
		logCtx := commandLogger(baseLogger, "/timezone", c)
		raw := strings.TrimSpace(c.Message().Payload)
		if raw == "" {
			return c.Send(timezoneUsage)
		}
		tz, err := svc.UpdateTimezone(ctx, c.Sender().ID, raw)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send(fmt.Sprintf("Часовой пояс обновлён: %s. Уведомления перенесены.", tz))
	})
}
