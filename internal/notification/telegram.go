package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
// It calls getMe to verify the token, so it needs network access.
func NewTelegramNotifier(botToken string, chatID int64) (*TelegramNotifier, error) {
	return NewTelegramNotifierWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint, &http.Client{
		Timeout: 10 * time.Second,
	})
}

// NewTelegramNotifierWithEndpoint is NewTelegramNotifier against a custom API
// endpoint (format "https://host/bot%s/%s").
func NewTelegramNotifierWithEndpoint(botToken string, chatID int64, endpoint string, client *http.Client) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}

	text := fmt.Sprintf("%s *%s*\n\n%s", emoji,
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, alert.Title),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, alert.Message))

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	// BotAPI.Send has no context; run it aside so ctx still bounds the caller.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("telegram: send: %w", ctx.Err())
	}

	slog.Debug("telegram alert sent", slog.String("title", alert.Title))
	return nil
}
