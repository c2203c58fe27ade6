package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"librarian/internal/account"
	"librarian/internal/library"
	"librarian/internal/offer"
	"librarian/internal/process"
	"librarian/internal/storage"
)

// NewBot creates the Telegram bot and registers the conversation types.
func NewBot(
	token string,
	store storage.Storage,
	lib *library.Service,
	offers *offer.Service,
	accounts *account.Service,
	logger *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		api:      api,
		store:    store,
		library:  lib,
		offers:   offers,
		accounts: accounts,
		logger:   logger,
	}
	if err := b.initEngine(); err != nil {
		return nil, err
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))
	return b, nil
}

// initEngine builds the process engine with the bot as its outbound
// channel and registers the known conversation types.
func (b *Bot) initEngine() error {
	b.engine = process.NewEngine(b.store, b, b.logger)
	if err := b.engine.Register(offer.ProcessType, b.offers.ProcessDefinition()); err != nil {
		return fmt.Errorf("failed to register offer process: %w", err)
	}
	if err := b.engine.Register(registerProcessType, b.registrationDefinition()); err != nil {
		return fmt.Errorf("failed to register registration process: %w", err)
	}
	return nil
}

// GetAPI returns the bot API for testing.
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}
