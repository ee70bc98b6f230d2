package logger

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"cycle_reminder_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	t.Cleanup(func() { Log.SetOutput(os.Stdout) })

	Init(&config.AppConfig{LogLevel: "debug", Environment: "production"})
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, Log.Formatter)
	assert.Empty(t, Log.Hooks, "no token, no redaction hook")

	Init(&config.AppConfig{LogLevel: "loud", Environment: "development", TelegramToken: "1:abc"})
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, Log.Formatter)
	assert.Len(t, Log.Hooks[logrus.ErrorLevel], 1)

	// Re-initializing does not stack hooks.
	Init(&config.AppConfig{LogLevel: "info", TelegramToken: "1:abc"})
	assert.Len(t, Log.Hooks[logrus.ErrorLevel], 1)

	assert.Equal(t, "scheduler", Component("scheduler").Data["component"])
}

func TestTokenIsRedacted(t *testing.T) {
	const token = "123456:AAE-secret-token"
	Init(&config.AppConfig{LogLevel: "info", Environment: "production", TelegramToken: token})
	var buf bytes.Buffer
	Log.SetOutput(&buf)
	t.Cleanup(func() { Log.SetOutput(os.Stdout) })

	Component("telebot").
		WithError(errors.New(`Post "https://api.telegram.org/bot` + token + `/getUpdates": context deadline exceeded`)).
		WithField("url", "https://api.telegram.org/bot"+token+"/sendMessage").
		WithField("user_id", 7).
		Errorf("request with %s failed", token)

	out := buf.String()
	assert.NotContains(t, out, token)
	assert.Contains(t, out, "https://api.telegram.org/bot"+redacted+"/getUpdates")
	assert.Contains(t, out, "request with "+redacted+" failed")
	assert.Contains(t, out, `"user_id":7`)
}

type panickyError struct{ err error }

func (e panickyError) Error() string { return e.err.Error() }

func TestRedactionSurvivesPanickingError(t *testing.T) {
	Init(&config.AppConfig{LogLevel: "info", Environment: "production", TelegramToken: "1:abc"})
	var buf bytes.Buffer
	Log.SetOutput(&buf)
	t.Cleanup(func() { Log.SetOutput(os.Stdout) })

	assert.NotPanics(t, func() {
		Log.WithError(panickyError{}).Warn("flood control")
	})
	assert.Contains(t, buf.String(), "flood control")
}
