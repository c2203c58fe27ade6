package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"librarian/internal/account"
	"librarian/internal/cache"
	"librarian/internal/clock"
	"librarian/internal/library"
	"librarian/internal/models"
	"librarian/internal/offer"
	"librarian/internal/storage"
	"librarian/internal/storage/stubs"
)

// Note: We can't easily mock tgbotapi.BotAPI, so tests drive the message
// handlers directly with api == nil and verify state in the mock store.

func newTestBot(t *testing.T) (*Bot, *stubs.MockDB, *clock.Fake) {
	t.Helper()

	db := stubs.NewMockDB()
	ctx := context.Background()
	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	clk := &clock.Fake{Millis: 1_000_000}
	logger := zap.NewNop()
	lib := library.New(db, nil, clk, logger, library.Config{
		LoanPeriod:        7 * 24 * time.Hour,
		PenaltyRatePerDay: 0.5,
	})
	offers := offer.New(db, clk, logger)
	accounts := account.New(db, cache.New(clk, time.Hour), logger)

	bot := &Bot{
		api:      nil, // Not needed for internal logic tests
		store:    db,
		library:  lib,
		offers:   offers,
		accounts: accounts,
		logger:   logger,
	}
	if err := bot.initEngine(); err != nil {
		t.Fatalf("Failed to init engine: %v", err)
	}
	return bot, db, clk
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: chatID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}
	// tgbotapi detects commands through entities, which real updates carry.
	if len(text) > 0 && text[0] == '/' {
		length := len(text)
		for i, r := range text {
			if r == ' ' {
				length = i
				break
			}
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	}
	return msg
}

func registerUser(t *testing.T, bot *Bot, chatID int64, username string) {
	t.Helper()

	ctx := context.Background()
	bot.handleMessage(textMessage(chatID, "/start")) // creates the contact
	bot.handleRegisterCallback(ctx, chatID)
	bot.handleMessage(textMessage(chatID, username))
	bot.handleMessage(textMessage(chatID, "-"))

	user, err := bot.store.GetUserByTelegramID(ctx, chatID)
	if err != nil {
		t.Fatalf("Expected user to be registered: %v", err)
	}
	if user.Username != username {
		t.Errorf("Expected username %q, got %q", username, user.Username)
	}
}

func TestBot_RegistrationConversation(t *testing.T) {
	bot, db, _ := newTestBot(t)
	ctx := context.Background()

	registerUser(t, bot, 123, "paul")

	// The contact is linked to the account and has no active process.
	contact, err := db.GetContact(ctx, 123)
	if err != nil {
		t.Fatalf("Failed to load contact: %v", err)
	}
	if contact.Username != "paul" {
		t.Errorf("Expected contact username 'paul', got %q", contact.Username)
	}
	if contact.ProcessUID != "" {
		t.Errorf("Expected no active process, got %q", contact.ProcessUID)
	}
}

func TestBot_BorrowAndReturnCommands(t *testing.T) {
	bot, db, _ := newTestBot(t)
	ctx := context.Background()

	if _, err := db.AddBook(ctx, models.Book{Title: "Dune", Quantity: 1}); err != nil {
		t.Fatalf("Failed to add book: %v", err)
	}
	registerUser(t, bot, 123, "paul")

	bot.handleMessage(textMessage(123, "/borrow Dune"))

	book, err := db.GetBookByTitle(ctx, "Dune")
	if err != nil {
		t.Fatalf("Failed to get book: %v", err)
	}
	if book.Quantity != 0 {
		t.Errorf("Expected quantity 0 after borrow, got %d", book.Quantity)
	}

	// Borrowing the same title again is refused before touching stock.
	bot.handleMessage(textMessage(123, "/borrow Dune"))
	records, err := db.ListBorrowRecords(ctx, storage.BorrowFilter{Username: "paul", OutstandingOnly: true})
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 outstanding record, got %d", len(records))
	}

	bot.handleReturnCallback(ctx, 123, "Dune")

	book, err = db.GetBookByTitle(ctx, "Dune")
	if err != nil {
		t.Fatalf("Failed to get book: %v", err)
	}
	if book.Quantity != 1 {
		t.Errorf("Expected quantity 1 after return, got %d", book.Quantity)
	}
}

func TestBot_OfferConversation(t *testing.T) {
	bot, db, _ := newTestBot(t)
	ctx := context.Background()

	registerUser(t, bot, 123, "paul")

	bot.handleMessage(textMessage(123, "/offer"))
	for _, answer := range []string{"Foundation", "sci-fi", "Asimov", "Gnome Press", "-"} {
		bot.handleMessage(textMessage(123, answer))
	}

	offers, err := db.ListOffers(ctx, storage.OfferFilter{Proposer: "paul"})
	if err != nil {
		t.Fatalf("Failed to list offers: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("Expected 1 offer, got %d", len(offers))
	}
	if offers[0].Title != "Foundation" {
		t.Errorf("Expected offer title 'Foundation', got %q", offers[0].Title)
	}
	if offers[0].PurchaseLink != "" {
		t.Errorf("Expected empty purchase link for '-', got %q", offers[0].PurchaseLink)
	}
}

func TestBot_DismissCancelsConversation(t *testing.T) {
	bot, db, _ := newTestBot(t)
	ctx := context.Background()

	registerUser(t, bot, 123, "paul")

	bot.handleMessage(textMessage(123, "/offer"))
	bot.handleMessage(textMessage(123, "Foundation"))
	bot.handleMessage(textMessage(123, "/dismiss"))

	contact, err := db.GetContact(ctx, 123)
	if err != nil {
		t.Fatalf("Failed to load contact: %v", err)
	}
	if contact.ProcessUID != "" {
		t.Errorf("Expected conversation to be dismissed, still linked to %q", contact.ProcessUID)
	}

	// No offer was submitted.
	offers, err := db.ListOffers(ctx, storage.OfferFilter{})
	if err != nil {
		t.Fatalf("Failed to list offers: %v", err)
	}
	if len(offers) != 0 {
		t.Errorf("Expected no offers, got %d", len(offers))
	}
}

func TestBot_CommandInterruptsConversation(t *testing.T) {
	bot, db, _ := newTestBot(t)
	ctx := context.Background()

	registerUser(t, bot, 123, "paul")

	bot.handleMessage(textMessage(123, "/offer"))
	// Any other command silently abandons the conversation.
	bot.handleMessage(textMessage(123, "/borrowed"))

	contact, err := db.GetContact(ctx, 123)
	if err != nil {
		t.Fatalf("Failed to load contact: %v", err)
	}
	if contact.ProcessUID != "" {
		t.Errorf("Expected conversation to be interrupted, still linked to %q", contact.ProcessUID)
	}
}

func TestBot_UnregisteredUserCannotBorrow(t *testing.T) {
	bot, db, _ := newTestBot(t)
	ctx := context.Background()

	if _, err := db.AddBook(ctx, models.Book{Title: "Dune", Quantity: 1}); err != nil {
		t.Fatalf("Failed to add book: %v", err)
	}

	bot.handleMessage(textMessage(123, "/borrow Dune"))

	book, err := db.GetBookByTitle(ctx, "Dune")
	if err != nil {
		t.Fatalf("Failed to get book: %v", err)
	}
	if book.Quantity != 1 {
		t.Errorf("Expected quantity untouched for unregistered user, got %d", book.Quantity)
	}
}

func TestBot_DuplicateUsernameRegistration(t *testing.T) {
	bot, db, _ := newTestBot(t)
	ctx := context.Background()

	registerUser(t, bot, 123, "paul")

	// A second chat tries to take the same username; the finisher fails
	// and the conversation stays active for a retry or /dismiss.
	bot.handleMessage(textMessage(456, "/start"))
	bot.handleRegisterCallback(ctx, 456)
	bot.handleMessage(textMessage(456, "paul"))
	bot.handleMessage(textMessage(456, "-"))

	if _, err := db.GetUserByTelegramID(ctx, 456); err == nil {
		t.Error("Expected registration with duplicate username to fail")
	}
	contact, err := db.GetContact(ctx, 456)
	if err != nil {
		t.Fatalf("Failed to load contact: %v", err)
	}
	if contact.ProcessUID == "" {
		t.Error("Expected failed registration to stay active for retry")
	}
}

func TestBot_HandleWebhookUpdate(t *testing.T) {
	bot, db, _ := newTestBot(t)
	ctx := context.Background()

	update := tgbotapi.Update{Message: textMessage(123, "/start")}
	bot.HandleWebhookUpdate(update)

	if _, err := db.GetContact(ctx, 123); err != nil {
		t.Errorf("Expected webhook update to create the contact: %v", err)
	}
}
