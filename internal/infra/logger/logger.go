package logger

import (
	"fmt"
	"os"
	"strings"

	"cycle_reminder_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
)

const redacted = "[REDACTED]"

// Log is the global logger instance. Components log through Component entries.
var Log = logrus.New()

// Init configures the global logger from cfg. The Telegram token is masked in
// every entry since telebot request errors carry the API URL with the token in it.
func Init(cfg *config.AppConfig) {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(formatterFor(cfg.Environment))
	Log.ReplaceHooks(make(logrus.LevelHooks))
	if cfg.TelegramToken != "" {
		Log.AddHook(&redactHook{secret: cfg.TelegramToken})
	}

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
		Log.WithError(err).Warnf("Invalid log level '%s', defaulting to 'info'", cfg.LogLevel)
	}
	Log.SetLevel(level)

	Log.WithFields(logrus.Fields{
		"log_level":   level.String(),
		"environment": cfg.Environment,
	}).Info("Logger initialized")
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}

func formatterFor(env string) logrus.Formatter {
	switch strings.ToLower(env) {
	case "production", "staging":
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"} // ISO8601
	default:
		return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"}
	}
}

type redactHook struct {
	secret string
}

func (h *redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *redactHook) Fire(e *logrus.Entry) error {
	e.Message = strings.ReplaceAll(e.Message, h.secret, redacted)
	for k, v := range e.Data {
		switch val := v.(type) {
		case string:
			e.Data[k] = strings.ReplaceAll(val, h.secret, redacted)
		case error:
			// fmt recovers when Error panics on a zero value, the formatter would not.
			e.Data[k] = strings.ReplaceAll(fmt.Sprint(val), h.secret, redacted)
		}
	}
	return nil
}
