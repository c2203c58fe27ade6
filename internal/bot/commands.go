package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"librarian/internal/models"
	"librarian/internal/offer"
	"librarian/internal/storage"
)

// handleStart greets the user, or prompts for registration when the
// chat is not linked to an account yet.
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	claim, ok := b.claim(ctx, chatID)
	if !ok {
		return
	}

	text := fmt.Sprintf(`Welcome back, %s! 📚

Available commands:
/books - Browse available books
/borrow <title> - Borrow a book
/borrowed - Show your current loans
/return - Return a book
/offer - Suggest a book for the library
/dismiss - Cancel the current conversation`, claim.Username)
	b.sendText(ctx, chatID, text)
}

// showRegistrationPrompt offers the register button to unknown users.
func (b *Bot) showRegistrationPrompt(ctx context.Context, chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Welcome to the library bot! Please register to continue.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Register", "register"),
		),
	)
	b.sendMessage(msg)
}

// handleBooks lists available books as borrow buttons.
func (b *Bot) handleBooks(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	if _, ok := b.claim(ctx, chatID); !ok {
		return
	}

	books, _, err := b.library.ListBooks(ctx, storage.BookFilter{
		Status:  models.BookStatusAvailable,
		OrderBy: storage.OrderByTitleAsc,
	})
	if err != nil {
		b.sendText(ctx, chatID, genericErrorText)
		return
	}
	if len(books) == 0 {
		b.sendText(ctx, chatID, "The catalog is empty right now. You can /offer a book!")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, book := range books {
		label := book.Title
		if book.Quantity == 0 {
			label += " (none left)"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "borrow:"+book.Title),
		))
	}

	msg := tgbotapi.NewMessage(chatID, "Here are the books in the catalog. Tap one to borrow it:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.sendMessage(msg)
}

// handleBorrowed shows the caller's outstanding loans.
func (b *Bot) handleBorrowed(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	claim, ok := b.claim(ctx, chatID)
	if !ok {
		return
	}

	records, err := b.library.ListBorrowRecords(ctx, storage.BorrowFilter{
		Username:        claim.Username,
		OutstandingOnly: true,
	})
	if err != nil {
		b.sendText(ctx, chatID, genericErrorText)
		return
	}
	if len(records) == 0 {
		b.sendText(ctx, chatID, "You have no books on loan.")
		return
	}

	var text strings.Builder
	text.WriteString("Your current loans:\n\n")
	for i, r := range records {
		text.WriteString(fmt.Sprintf("%d. %s — due %s\n", i+1, r.BookTitle, formatDate(r.DueAt)))
	}
	b.sendText(ctx, chatID, text.String())
}

// handleBorrow borrows by title when an argument is given, otherwise
// falls back to the button list.
func (b *Bot) handleBorrow(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	claim, ok := b.claim(ctx, chatID)
	if !ok {
		return
	}

	title := strings.TrimSpace(message.CommandArguments())
	if title == "" {
		b.handleBooks(ctx, message)
		return
	}
	b.borrowBook(ctx, chatID, claim, title)
}

// handleReturn returns by title when an argument is given, otherwise
// lists the caller's loans as return buttons.
func (b *Bot) handleReturn(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	claim, ok := b.claim(ctx, chatID)
	if !ok {
		return
	}

	if title := strings.TrimSpace(message.CommandArguments()); title != "" {
		b.returnBook(ctx, chatID, claim, title)
		return
	}

	records, err := b.library.ListBorrowRecords(ctx, storage.BorrowFilter{
		Username:        claim.Username,
		OutstandingOnly: true,
	})
	if err != nil {
		b.sendText(ctx, chatID, genericErrorText)
		return
	}
	if len(records) == 0 {
		b.sendText(ctx, chatID, "You have no books on loan.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, r := range records {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.BookTitle, "return:"+r.BookTitle),
		))
	}

	msg := tgbotapi.NewMessage(chatID, "Which book are you returning?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.sendMessage(msg)
}

// handleOffer starts the offer-a-book conversation.
func (b *Bot) handleOffer(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	if _, ok := b.claim(ctx, chatID); !ok {
		return
	}

	if err := b.engine.Start(ctx, chatID, offer.ProcessType); err != nil {
		b.sendText(ctx, chatID, b.userMessage(err))
	}
}

// handleDismiss cancels the active conversation.
func (b *Bot) handleDismiss(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	if err := b.engine.Cancel(ctx, chatID); err != nil {
		b.sendText(ctx, chatID, genericErrorText)
		return
	}
	b.sendText(ctx, chatID, "Okay, conversation cancelled.")
}

// borrowBook runs the borrow and reports the outcome.
func (b *Bot) borrowBook(ctx context.Context, chatID int64, claim models.UserClaim, title string) {
	held, err := b.library.HasOutstandingBorrow(ctx, claim.Username, title)
	if err != nil {
		b.sendText(ctx, chatID, genericErrorText)
		return
	}
	if held {
		b.sendText(ctx, chatID, fmt.Sprintf("You already have %q on loan. Return it first with /return.", title))
		return
	}

	record, err := b.library.Borrow(ctx, claim.Username, title)
	if err != nil {
		b.sendText(ctx, chatID, b.userMessage(err))
		return
	}
	b.sendText(ctx, chatID, fmt.Sprintf("You have borrowed %q. Please return it by %s.",
		record.BookTitle, formatDate(record.DueAt)))
}

// returnBook runs the return and reports the outcome, including any
// overdue penalty.
func (b *Bot) returnBook(ctx context.Context, chatID int64, claim models.UserClaim, title string) {
	record, penalty, err := b.library.Return(ctx, claim.Username, title)
	if err != nil {
		b.sendText(ctx, chatID, b.userMessage(err))
		return
	}

	text := fmt.Sprintf("Thanks! %q is back on the shelf.", record.BookTitle)
	if penalty > 0 {
		text += fmt.Sprintf(" It was overdue; the late fee is %.2f.", penalty)
	}
	b.sendText(ctx, chatID, text)
}
