package storage

import (
	"context"

	"librarian/internal/models"
)

// Book ordering keys accepted by BookFilter.OrderBy.
const (
	OrderByIDDesc    = "id_desc"
	OrderByIDAsc     = "id_asc"
	OrderByTitleAsc  = "title_asc"
	OrderByTitleDesc = "title_desc"
)

// BookFilter narrows ListBooks results. String fields are substring
// matches except DatePublished which is exact. Limit == 0 means no limit.
type BookFilter struct {
	Title         string
	Author        string
	Publisher     string
	Topic         string
	DatePublished string
	Status        string
	Offset        int
	Limit         int
	OrderBy       string
}

// BorrowFilter narrows ListBorrowRecords results.
type BorrowFilter struct {
	Username        string
	BookTitle       string
	OutstandingOnly bool
}

// OfferFilter narrows ListOffers results.
type OfferFilter struct {
	Proposer        string
	UnpurchasedOnly bool
	Offset          int
	Limit           int
}

// Storage defines the persistence operations for the library backend.
//
// BorrowBook and ReturnBook are atomic units: the quantity change and the
// borrow-record write either both happen or neither does, and concurrent
// borrows of the same book are serialized by the implementation so the
// number of successful borrows never exceeds the available quantity.
// AdvanceProcess likewise commits the field insert and the process update
// together.
type Storage interface {
	// Books
	AddBook(ctx context.Context, book models.Book) (models.Book, error)
	GetBookByTitle(ctx context.Context, title string) (models.Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]models.Book, int, error)
	SetBookStatus(ctx context.Context, title, status string) error

	// Borrowing
	BorrowBook(ctx context.Context, username, title string, borrowedAt, dueAt int64) (models.BorrowRecord, error)
	ReturnBook(ctx context.Context, username, title string, returnedAt int64) (models.BorrowRecord, error)
	ListBorrowRecords(ctx context.Context, filter BorrowFilter) ([]models.BorrowRecord, error)

	// Contacts and processes
	GetContact(ctx context.Context, chatID int64) (models.Contact, error)
	GetContactByUsername(ctx context.Context, username string) (models.Contact, error)
	UpsertContact(ctx context.Context, contact models.Contact) error
	SetContactProcess(ctx context.Context, chatID int64, processUID string) error
	CreateProcess(ctx context.Context, process models.Process) error
	GetProcess(ctx context.Context, uid string) (models.Process, error)
	AdvanceProcess(ctx context.Context, process models.Process, field *models.Field) error
	ListFields(ctx context.Context, processUID string) ([]models.Field, error)

	// Offers
	CreateOffer(ctx context.Context, offer models.BookOffer) (models.BookOffer, error)
	ListOffers(ctx context.Context, filter OfferFilter) ([]models.BookOffer, error)

	// Users
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// AuditLog is an append-only sink for borrow activity, kept separate from
// the transactional store. Implementations must tolerate being called
// after every successful borrow/return.
type AuditLog interface {
	RecordEvent(ctx context.Context, event models.BorrowEvent) error
	TopBorrowedBooks(ctx context.Context, limit int, from, to int64) ([]models.BookStat, error)
	Initialize(ctx context.Context) error
	Close() error
}
