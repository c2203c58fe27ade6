package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()
	chatID := query.Message.Chat.ID

	// Answer the callback query to remove the loading state
	if b.api != nil {
		callback := tgbotapi.NewCallback(query.ID, "")
		if _, err := b.api.Request(callback); err != nil {
			b.logger.Warn("Failed to answer callback query", zap.Error(err))
		}
	}

	if _, err := b.ensureContact(ctx, chatID); err != nil {
		b.logger.Error("Failed to load contact", zap.Error(err), zap.Int64("chat_id", chatID))
		return
	}

	data := query.Data
	switch {
	case data == "register":
		b.handleRegisterCallback(ctx, chatID)
	case strings.HasPrefix(data, "borrow:"):
		b.handleBorrowCallback(ctx, chatID, strings.TrimPrefix(data, "borrow:"))
	case strings.HasPrefix(data, "return:"):
		b.handleReturnCallback(ctx, chatID, strings.TrimPrefix(data, "return:"))
	default:
		b.logger.Warn("Unknown callback data", zap.String("data", data))
	}
}

// handleRegisterCallback starts the registration conversation.
func (b *Bot) handleRegisterCallback(ctx context.Context, chatID int64) {
	if err := b.engine.Start(ctx, chatID, registerProcessType); err != nil {
		b.sendText(ctx, chatID, b.userMessage(err))
	}
}

// handleBorrowCallback borrows the tapped book.
func (b *Bot) handleBorrowCallback(ctx context.Context, chatID int64, title string) {
	claim, ok := b.claim(ctx, chatID)
	if !ok {
		return
	}
	b.borrowBook(ctx, chatID, claim, title)
}

// handleReturnCallback returns the tapped book.
func (b *Bot) handleReturnCallback(ctx context.Context, chatID int64, title string) {
	claim, ok := b.claim(ctx, chatID)
	if !ok {
		return
	}
	b.returnBook(ctx, chatID, claim, title)
}
