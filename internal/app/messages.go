package app

import (
	"fmt"
	"time"

	"cycle_reminder_bot/internal/domain/cycle"
	"cycle_reminder_bot/internal/domain/notification"
)

// Callback uniques of the inline buttons attached to reminders.
const (
	CallbackPeriodStarted = "period_yes"
	CallbackPeriodNotYet  = "period_no"
)

// humanDate renders a calendar date the way Russian users write it, e.g. 13.10.
func humanDate(d time.Time) string {
	return d.Format("02.01")
}

// reminderText renders the message body for a reminder in the given cycle.
func reminderText(t notification.Type, s cycle.Schedule) string {
	switch t {
	case notification.TypeOvulationStart:
		return fmt.Sprintf(
			"🌸 <b>Завтра овуляция</b>\n\nОжидаемый день овуляции: %s.\nФертильное окно: %s – %s, вероятность зачатия в эти дни максимальна.",
			humanDate(s.OvulationDay), humanDate(s.FertileWindow.Start), humanDate(s.FertileWindow.End))
	case notification.TypeSafeZoneStart:
		return fmt.Sprintf(
			"✅ <b>Начало безопасного периода</b>\n\nФертильное окно завершилось. Следующие месячные ожидаются %s.\n\n📝 Это приблизительный расчёт, он не заменяет контрацепцию.",
			humanDate(s.NextPeriodDate))
	case notification.TypePeriodIn3Days:
		return fmt.Sprintf(
			"🔔 <b>Месячные через 3 дня</b>\n\nОжидаемое начало: %s.\nУбедитесь, что под рукой всё необходимое.",
			humanDate(s.NextPeriodDate))
	case notification.TypePeriodTomorrow:
		return fmt.Sprintf(
			"🔔 <b>Месячные завтра</b>\n\nОжидаемое начало: %s. Позаботьтесь о себе 💙",
			humanDate(s.NextPeriodDate))
	case notification.TypePeriodConfirmation:
		return "🩸 <b>Сегодня ожидаемый день начала месячных</b>\n\nНачались ли месячные? Ответ поможет точнее рассчитать следующий цикл."
	}
	return "📬 У вас новое уведомление о цикле."
}

func phaseTitle(p cycle.Phase) string {
	switch p {
	case cycle.PhaseMenstruation:
		return "менструация"
	case cycle.PhaseFollicular:
		return "фолликулярная фаза"
	case cycle.PhaseOvulation:
		return "овуляция (фертильное окно)"
	case cycle.PhaseLuteal:
		return "лютеиновая фаза"
	case cycle.PhasePreMenstruation:
		return "предменструальные дни"
	}
	return string(p)
}

// FormatStatus renders the /status screen.
func FormatStatus(st *Status) string {
	s := st.Schedule
	text := fmt.Sprintf(
		"📊 <b>Ваш цикл</b>\n\n"+
			"Сегодня: день %d, %s\n\n"+
			"Начало последних месячных: %s\n"+
			"Длина цикла: %d дн., месячные: %d дн.\n"+
			"Овуляция: %s\n"+
			"Фертильное окно: %s – %s\n"+
			"Безопасный период с: %s\n"+
			"Следующие месячные: %s\n",
		st.Phase.DayOfCycle, phaseTitle(st.Phase.Phase),
		humanDate(s.LastPeriodDate),
		s.CycleLength, s.PeriodLength,
		humanDate(s.OvulationDay),
		humanDate(s.FertileWindow.Start), humanDate(s.FertileWindow.End),
		humanDate(s.SafePeriodStart),
		humanDate(s.NextPeriodDate),
	)

	if len(st.Pending) == 0 {
		return text + "\nЗапланированных уведомлений нет."
	}
	loc, err := st.User.Location()
	if err != nil {
		loc = time.UTC
	}
	text += "\n⏰ <b>Ближайшие уведомления</b>\n"
	for _, job := range st.Pending {
		text += fmt.Sprintf("• %s, %s\n", job.FireAt.In(loc).Format("02.01 15:04"), job.Type.Title())
	}
	return text
}

// FormatHistory renders the /history screen.
func FormatHistory(entries []HistoryEntry) string {
	if len(entries) == 0 {
		return "История пока пуста. Отметьте начало месячных командой /period."
	}
	text := "🗓 <b>История циклов</b>\n\n"
	for _, e := range entries {
		if e.CycleLength > 0 {
			text += fmt.Sprintf("• %s, цикл %d дн.\n", cycle.FormatDate(e.Start), e.CycleLength)
		} else {
			text += fmt.Sprintf("• %s\n", cycle.FormatDate(e.Start))
		}
	}
	return text
}
