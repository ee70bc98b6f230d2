// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	domainTelegram "cycle_reminder_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"gopkg.in/telebot.v3"
)

// sender is the part of *telebot.Bot the adapter needs.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

type AdapterOption func(*TelebotAdapter)

// WithMaxFloodRetries bounds how many times a flood-limited send is retried.
func WithMaxFloodRetries(n int) AdapterOption {
	return func(a *TelebotAdapter) { a.maxFloodRetries = n }
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) AdapterOption {
	return func(a *TelebotAdapter) { a.sleep = fn }
}

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot             sender
	breaker         *gobreaker.CircuitBreaker[*telebot.Message]
	maxFloodRetries int
	sleep           func(ctx context.Context, d time.Duration) error
	logger          *logrus.Entry
}

func NewTelebotAdapter(b sender, logger *logrus.Entry, opts ...AdapterOption) *TelebotAdapter {
	a := &TelebotAdapter{
		bot:             b,
		maxFloodRetries: 3,
		sleep:           sleepContext,
		logger:          logger,
	}
	a.breaker = gobreaker.NewCircuitBreaker[*telebot.Message](gobreaker.Settings{
		Name:        "telegram-send",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Per-recipient and flood errors say nothing about Telegram being down.
		IsSuccessful: func(err error) bool {
			return err == nil || isRecipientError(err) || isFloodError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("Circuit breaker state changed")
		},
	})
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SendMessage sends a text message to the specified recipient. Flood control
// responses are retried after the delay Telegram asks for; a blocked or deleted
// recipient is reported as ErrRecipientUnavailable.
func (tba *TelebotAdapter) SendMessage(ctx context.Context, recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	recipient := &telebot.User{ID: recipientChatID} // Private chat ID equals the user ID

	for attempt := 0; ; attempt++ {
		_, err := tba.breaker.Execute(func() (*telebot.Message, error) {
			return tba.bot.Send(recipient, text, options)
		})
		if err == nil {
			return nil
		}

		var flood telebot.FloodError
		if errors.As(err, &flood) && attempt < tba.maxFloodRetries {
			wait := time.Duration(flood.RetryAfter) * time.Second
			tba.logger.WithFields(logrus.Fields{
				"chat_id":     recipientChatID,
				"retry_after": wait,
				"attempt":     attempt + 1,
			}).Warn("Telegram flood control, retrying")
			if err := tba.sleep(ctx, wait); err != nil {
				return fmt.Errorf("waiting out flood control: %w", err)
			}
			continue
		}

		if isRecipientError(err) {
			return fmt.Errorf("%w: %v", domainTelegram.ErrRecipientUnavailable, err)
		}
		return fmt.Errorf("telegram send failed: %w", err)
	}
}

func isFloodError(err error) bool {
	var flood telebot.FloodError
	return errors.As(err, &flood)
}

func isRecipientError(err error) bool {
	if errors.Is(err, telebot.ErrBlockedByUser) || errors.Is(err, telebot.ErrUserIsDeactivated) {
		return true
	}
	var apiErr *telebot.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
