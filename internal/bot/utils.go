package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// sendMessage delivers any chattable, tolerating a nil API in tests.
func (b *Bot) sendMessage(msg tgbotapi.Chattable) {
	if b.api == nil {
		return // For testing
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Error(err))
	}
}

// sendText sends plain text to a chat.
func (b *Bot) sendText(ctx context.Context, chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

// SendText implements the outbound channel used by the process engine
// and the reminder scheduler.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	b.sendText(ctx, chatID, text)
	return nil
}

// formatDate renders a millisecond timestamp as YYYY-MM-DD.
func formatDate(millis int64) string {
	return time.UnixMilli(millis).UTC().Format("2006-01-02")
}
