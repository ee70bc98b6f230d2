package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"cycle_reminder_bot/internal/app"
	"cycle_reminder_bot/internal/domain/cycle"
	"cycle_reminder_bot/internal/domain/notification"
	idb "cycle_reminder_bot/internal/infra/database"

	"gopkg.in/telebot.v3"
)

const (
	setupUsage    = "Формат: /setup ГГГГ-ММ-ДД <длина цикла> <длительность месячных>\nНапример: /setup 2025-09-15 28 5"
	timezoneUsage = "Формат: /timezone <часовой пояс>\nНапример: /timezone Europe/Moscow"
	genericError  = "Произошла ошибка. Пожалуйста, попробуйте позже."

	callbackToggleNotification = "notif_toggle"
	callbackDeleteConfirm      = "delete_confirm"
	callbackDeleteCancel       = "delete_cancel"
)

var errUsage = errors.New("invalid command arguments")

var htmlOpts = &telebot.SendOptions{ParseMode: telebot.ModeHTML}

// parseSetupArgs parses "<date> <cycle length> <period length>".
func parseSetupArgs(args []string) (time.Time, int, int, error) {
	if len(args) != 3 {
		return time.Time{}, 0, 0, errUsage
	}
	start, err := cycle.ParseDate(args[0])
	if err != nil {
		return time.Time{}, 0, 0, err
	}
	cycleLength, err := strconv.Atoi(args[1])
	if err != nil {
		return time.Time{}, 0, 0, &cycle.ValidationError{Field: "cycle_length", Value: args[1], Min: cycle.MinCycleLength, Max: cycle.MaxCycleLength}
	}
	periodLength, err := strconv.Atoi(args[2])
	if err != nil {
		return time.Time{}, 0, 0, &cycle.ValidationError{Field: "period_length", Value: args[2], Min: cycle.MinPeriodLength, Max: cycle.MaxPeriodLength}
	}
	return start, cycleLength, periodLength, nil
}

// validationText explains a rejected input to the user.
func validationText(ve *cycle.ValidationError) string {
	switch ve.Field {
	case "cycle_length":
		return fmt.Sprintf("Длина цикла должна быть от %d до %d дней.", cycle.MinCycleLength, cycle.MaxCycleLength)
	case "period_length":
		return fmt.Sprintf("Длительность месячных должна быть от %d до %d дней.", cycle.MinPeriodLength, cycle.MaxPeriodLength)
	case "last_period_date":
		if ve.Max == 0 {
			return "Дата начала месячных не может быть в будущем."
		}
		return fmt.Sprintf("Дата начала месячных должна быть не раньше, чем %d дней назад.", cycle.MaxLastPeriodAgeDays)
	case "start_date":
		return "Эта дата раньше уже отмеченного начала цикла."
	case "date":
		return "Не удалось распознать дату. Используйте формат ГГГГ-ММ-ДД."
	}
	return "Некорректные данные: " + ve.Error()
}

// userErrorText maps expected errors to a reply. ok is false for internal failures.
func userErrorText(err error) (text string, ok bool) {
	if ve, isValidation := cycle.AsValidationError(err); isValidation {
		return validationText(ve), true
	}
	switch {
	case errors.Is(err, idb.ErrUserNotFound):
		return "Сначала отправьте /start.", true
	case errors.Is(err, app.ErrNotConfigured):
		return "Профиль цикла ещё не настроен.\n" + setupUsage, true
	case errors.Is(err, app.ErrInvalidTimezone):
		return "Не удалось распознать часовой пояс.\n" + timezoneUsage, true
	case errors.Is(err, app.ErrAdminNotAuthorized):
		return "Ошибка: У вас нет прав для выполнения этой команды.", true
	}
	return genericError, false
}

// notificationsMarkup builds one toggle button per reminder type.
func notificationsMarkup(settings map[notification.Type]bool) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(notification.AllTypes))
	for _, t := range notification.AllTypes {
		mark := "✅"
		if !settings[t] {
			mark = "❌"
		}
		rows = append(rows, markup.Row(markup.Data(mark+" "+t.Title(), callbackToggleNotification, string(t))))
	}
	markup.Inline(rows...)
	return markup
}

func deleteConfirmMarkup() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("Да, удалить всё", callbackDeleteConfirm),
		markup.Data("Отмена", callbackDeleteCancel),
	))
	return markup
}

const helpText = `Я напоминаю о важных днях менструального цикла:
• за день до овуляции (20:00)
• о начале безопасного периода (09:00)
• за 3 дня и за день до месячных (18:00 и 20:00)
• в ожидаемый день начала (09:00), с вопросом, начались ли месячные

Команды:
/setup ГГГГ-ММ-ДД <цикл> <месячные> - настроить профиль
/period [ГГГГ-ММ-ДД] - отметить начало месячных
/status - текущий цикл и ближайшие уведомления
/history - история циклов
/timezone <пояс> - часовой пояс, например Europe/Moscow
/notifications - включить или выключить уведомления
/export - выгрузить мои данные
/delete_data - удалить все мои данные
/help - эта справка

Расчёты приблизительные и не заменяют консультацию врача.`
