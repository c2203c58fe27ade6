package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"librarian/internal/models"
	"librarian/internal/process"
	"librarian/internal/storage"
)

const genericErrorText = "An error occurred while processing your request. Please try again."

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.sendText(context.Background(), message.Chat.ID, genericErrorText)
		}
	}()

	ctx := context.Background()
	chatID := message.Chat.ID

	if _, err := b.ensureContact(ctx, chatID); err != nil {
		b.logger.Error("Failed to load contact", zap.Error(err), zap.Int64("chat_id", chatID))
		b.sendText(ctx, chatID, genericErrorText)
		return
	}

	// Handle commands
	if message.IsCommand() {
		// Any command other than /dismiss silently interrupts an
		// ongoing conversation.
		if message.Command() != "dismiss" {
			if active, err := b.engine.Active(ctx, chatID); err == nil && active {
				if err := b.engine.Cancel(ctx, chatID); err != nil {
					b.logger.Warn("Failed to cancel conversation", zap.Error(err))
				}
			}
		}

		switch message.Command() {
		case "start":
			b.handleStart(ctx, message)
		case "books":
			b.handleBooks(ctx, message)
		case "borrowed":
			b.handleBorrowed(ctx, message)
		case "borrow":
			b.handleBorrow(ctx, message)
		case "return":
			b.handleReturn(ctx, message)
		case "offer":
			b.handleOffer(ctx, message)
		case "dismiss":
			b.handleDismiss(ctx, message)
		default:
			b.sendText(ctx, chatID, "Unknown command. Use /start to see available commands.")
		}
		return
	}

	// Not a command: feed the text into the active conversation, if any.
	active, err := b.engine.Active(ctx, chatID)
	if err != nil {
		b.logger.Error("Failed to check active process", zap.Error(err))
		b.sendText(ctx, chatID, genericErrorText)
		return
	}
	if !active {
		b.sendText(ctx, chatID, "I wasn't expecting that. Use /start to see available commands.")
		return
	}

	if err := b.engine.Advance(ctx, chatID, message.Text); err != nil {
		b.logger.Error("Conversation step failed",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
		b.sendText(ctx, chatID, b.userMessage(err))
	}
}

// ensureContact loads the contact for the chat, creating an unlinked
// one on first sight.
func (b *Bot) ensureContact(ctx context.Context, chatID int64) (models.Contact, error) {
	contact, err := b.store.GetContact(ctx, chatID)
	if errors.Is(err, storage.ErrContactNotFound) {
		contact = models.Contact{ChatID: chatID}
		if err := b.store.UpsertContact(ctx, contact); err != nil {
			return models.Contact{}, err
		}
		return contact, nil
	}
	return contact, err
}

// claim authenticates the sender. On unknown users it sends the
// registration prompt and reports false.
func (b *Bot) claim(ctx context.Context, chatID int64) (models.UserClaim, bool) {
	claim, err := b.accounts.Authenticate(ctx, chatID)
	if errors.Is(err, storage.ErrUserNotFound) {
		b.showRegistrationPrompt(ctx, chatID)
		return models.UserClaim{}, false
	}
	if err != nil {
		b.logger.Error("Authentication failed", zap.Error(err), zap.Int64("chat_id", chatID))
		b.sendText(ctx, chatID, genericErrorText)
		return models.UserClaim{}, false
	}
	return claim, true
}

// userMessage maps business errors to user-facing text. Infrastructure
// failures fall through to a generic message.
func (b *Bot) userMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrBookNotFound):
		return "That book is not in the catalog."
	case errors.Is(err, storage.ErrBookNotAvailable):
		return "All copies of that book are currently borrowed. Try again later or /offer it."
	case errors.Is(err, storage.ErrBorrowRecordNotFound):
		return "You don't have that book on loan."
	case errors.Is(err, storage.ErrDuplicateUsername):
		return "That username is already taken. /dismiss and register again with a different one."
	case errors.Is(err, storage.ErrDuplicateTelegramID):
		return "This Telegram account is already registered."
	case errors.Is(err, process.ErrNoActiveProcess):
		return "There's nothing to answer right now. Use /start to see available commands."
	case errors.Is(err, process.ErrProcessInProgress):
		return "Please finish the current conversation first, or /dismiss it."
	default:
		return genericErrorText
	}
}
