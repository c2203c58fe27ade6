package models

// Book statuses
const (
	BookStatusAvailable = "available"
	BookStatusDisabled  = "disabled"
)

// Book represents a title in the catalog. Quantity counts the copies
// that are not currently borrowed.
type Book struct {
	ID            int64  `db:"id"`
	Title         string `db:"title"`
	Author        string `db:"author"`
	Publisher     string `db:"publisher"`
	Topic         string `db:"topic"`
	DatePublished string `db:"date_published"`
	Quantity      int    `db:"quantity"`
	Status        string `db:"status"`
}

// BorrowRecord represents a single checkout event. ReturnedAt is nil
// while the loan is outstanding. Timestamps are milliseconds since epoch.
type BorrowRecord struct {
	ID         int64  `db:"id"`
	BookID     int64  `db:"book_id"`
	BookTitle  string `db:"book_title"`
	Username   string `db:"username"`
	BorrowedAt int64  `db:"borrowed_at"`
	DueAt      int64  `db:"due_at"`
	ReturnedAt *int64 `db:"returned_at"`
}

// Outstanding reports whether the loan has not been returned yet.
func (r BorrowRecord) Outstanding() bool {
	return r.ReturnedAt == nil
}

// Process is a persisted multi-step conversation instance.
// Status always equals the step name at StepCounter in the process
// definition for Type.
type Process struct {
	UID         string `db:"uid"`
	Type        string `db:"type"`
	Status      string `db:"status"`
	StepCounter int    `db:"step_counter"`
}

// Field is one captured answer of a process step. Fields are append-only
// and are read back in insertion order by the finisher.
type Field struct {
	ID         int64  `db:"id"`
	ProcessUID string `db:"process_uid"`
	Name       string `db:"name"`
	Value      string `db:"value"`
}

// Contact maps a Telegram chat to an application user. ProcessUID is
// empty when no conversation is active; a contact has at most one
// active process at a time.
type Contact struct {
	ChatID     int64  `db:"chat_id"`
	Username   string `db:"username"`
	ProcessUID string `db:"process_uid"`
}

// BookOffer is a user request to acquire a book for the library.
type BookOffer struct {
	UID          string `db:"uid"`
	Title        string `db:"title"`
	Topic        string `db:"topic"`
	Author       string `db:"author"`
	Publisher    string `db:"publisher"`
	Proposer     string `db:"proposer"`
	PurchaseLink string `db:"purchase_link"`
	IsPurchased  bool   `db:"is_purchased"`
	OfferedAt    int64  `db:"offered_at"`
}

// User is an application account, optionally linked to a Telegram identity.
type User struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	Email        string `db:"email"`
	TelegramID   int64  `db:"telegram_id"`
	FirstName    string `db:"first_name"`
	LastName     string `db:"last_name"`
	Mobile       string `db:"mobile"`
	PasswordHash string `db:"password_hash"`
	IsActive     bool   `db:"is_active"`
}

// UserClaim is the authenticated identity handed to business services.
type UserClaim struct {
	Username   string
	TelegramID int64
}

// Borrow event actions recorded in the audit log.
const (
	EventBorrow = "borrow"
	EventReturn = "return"
)

// BorrowEvent is an append-only audit entry for a borrow or return.
type BorrowEvent struct {
	Action    string
	BookTitle string
	Username  string
	At        int64
}

// BookStat represents borrow statistics for a single title.
type BookStat struct {
	BookTitle   string
	BorrowCount int
}
