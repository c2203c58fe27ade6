package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"librarian/internal/account"
	"librarian/internal/library"
	"librarian/internal/offer"
	"librarian/internal/process"
	"librarian/internal/storage"
)

// Bot wires the Telegram transport to the business services. It is the
// only caller of the library facade, the offer service and the process
// engine; all business errors are translated to user-facing text here.
type Bot struct {
	api      *tgbotapi.BotAPI
	store    storage.Storage
	library  *library.Service
	offers   *offer.Service
	accounts *account.Service
	engine   *process.Engine
	logger   *zap.Logger
}
