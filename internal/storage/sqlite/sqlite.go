package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"librarian/internal/models"
	"librarian/internal/storage"
)

// SQLiteDB is the transactional Storage implementation. Borrow and
// return run inside transactions with a guarded quantity update, so two
// concurrent borrows of the last copy cannot both succeed.
type SQLiteDB struct {
	db *sqlx.DB
}

// NewSQLiteDB opens (and creates, if missing) the database at path.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialize access through one
	// connection instead of surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	return &SQLiteDB{db: db}, nil
}

const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS books(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL UNIQUE,
  author TEXT NOT NULL DEFAULT '',
  publisher TEXT NOT NULL DEFAULT '',
  topic TEXT NOT NULL DEFAULT '',
  date_published TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
  status TEXT NOT NULL DEFAULT 'available'
);

CREATE TABLE IF NOT EXISTS borrow_records(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  book_id INTEGER NOT NULL REFERENCES books(id),
  book_title TEXT NOT NULL,
  username TEXT NOT NULL,
  borrowed_at INTEGER NOT NULL,
  due_at INTEGER NOT NULL,
  returned_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_borrow_records_user ON borrow_records(username, book_title);

CREATE TABLE IF NOT EXISTS contacts(
  chat_id INTEGER PRIMARY KEY,
  username TEXT NOT NULL DEFAULT '',
  process_uid TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS processes(
  uid TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  step_counter INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS fields(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  process_uid TEXT NOT NULL REFERENCES processes(uid),
  name TEXT NOT NULL,
  value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fields_process ON fields(process_uid);

CREATE TABLE IF NOT EXISTS book_offers(
  uid TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  topic TEXT NOT NULL DEFAULT '',
  author TEXT NOT NULL DEFAULT '',
  publisher TEXT NOT NULL DEFAULT '',
  proposer TEXT NOT NULL,
  purchase_link TEXT NOT NULL DEFAULT '',
  is_purchased INTEGER NOT NULL DEFAULT 0,
  offered_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL DEFAULT '',
  telegram_id INTEGER NOT NULL DEFAULT 0,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  mobile TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL DEFAULT '',
  is_active INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_telegram
  ON users(telegram_id) WHERE telegram_id != 0;
`

// Initialize applies the schema. The same schema ships as a goose
// migration; this keeps a fresh database usable without the migrate
// binary.
func (s *SQLiteDB) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// AddBook creates the book or adds quantity to an existing title.
func (s *SQLiteDB) AddBook(ctx context.Context, book models.Book) (models.Book, error) {
	if book.Status == "" {
		book.Status = models.BookStatusAvailable
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books(title, author, publisher, topic, date_published, quantity, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET quantity = quantity + excluded.quantity`,
		book.Title, book.Author, book.Publisher, book.Topic, book.DatePublished, book.Quantity, book.Status)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to add book: %w", err)
	}
	return s.GetBookByTitle(ctx, book.Title)
}

// GetBookByTitle returns the book with the given title.
func (s *SQLiteDB) GetBookByTitle(ctx context.Context, title string) (models.Book, error) {
	var book models.Book
	err := s.db.GetContext(ctx, &book, `SELECT * FROM books WHERE title = ?`, title)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Book{}, storage.ErrBookNotFound
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// ListBooks returns books matching the filter and the unpaginated count.
func (s *SQLiteDB) ListBooks(ctx context.Context, filter storage.BookFilter) ([]models.Book, int, error) {
	var conds []string
	var args []interface{}

	like := func(column, value string) {
		conds = append(conds, column+" LIKE ?")
		args = append(args, "%"+value+"%")
	}
	if filter.Title != "" {
		like("title", filter.Title)
	}
	if filter.Author != "" {
		like("author", filter.Author)
	}
	if filter.Publisher != "" {
		like("publisher", filter.Publisher)
	}
	if filter.Topic != "" {
		like("topic", filter.Topic)
	}
	if filter.DatePublished != "" {
		conds = append(conds, "date_published = ?")
		args = append(args, filter.DatePublished)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM books"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	order := " ORDER BY id DESC"
	switch filter.OrderBy {
	case storage.OrderByIDAsc:
		order = " ORDER BY id ASC"
	case storage.OrderByTitleAsc:
		order = " ORDER BY title ASC"
	case storage.OrderByTitleDesc:
		order = " ORDER BY title DESC"
	}

	query := "SELECT * FROM books" + where + order
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	var books []models.Book
	if err := s.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list books: %w", err)
	}
	return books, count, nil
}

// SetBookStatus updates the status of the book with the given title.
func (s *SQLiteDB) SetBookStatus(ctx context.Context, title, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE books SET status = ? WHERE title = ?`, status, title)
	if err != nil {
		return fmt.Errorf("failed to set book status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrBookNotFound
	}
	return nil
}

// BorrowBook atomically decrements the quantity and inserts an
// outstanding record. The guard on the UPDATE rejects the borrow when
// no copy is left, even if a concurrent transaction got there first.
func (s *SQLiteDB) BorrowBook(ctx context.Context, username, title string, borrowedAt, dueAt int64) (record models.BorrowRecord, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to begin borrow transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var book models.Book
	err = tx.GetContext(ctx, &book, `SELECT * FROM books WHERE title = ?`, title)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BorrowRecord{}, storage.ErrBookNotFound
	}
	if err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to get book: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE books SET quantity = quantity - 1 WHERE id = ? AND quantity > 0`, book.ID)
	if err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to decrement quantity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = storage.ErrBookNotAvailable
		return models.BorrowRecord{}, err
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO borrow_records(book_id, book_title, username, borrowed_at, due_at)
		VALUES (?, ?, ?, ?, ?)`,
		book.ID, book.Title, username, borrowedAt, dueAt)
	if err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to insert borrow record: %w", err)
	}
	recordID, err := res.LastInsertId()
	if err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to read record id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to commit borrow: %w", err)
	}

	return models.BorrowRecord{
		ID:         recordID,
		BookID:     book.ID,
		BookTitle:  book.Title,
		Username:   username,
		BorrowedAt: borrowedAt,
		DueAt:      dueAt,
	}, nil
}

// ReturnBook atomically closes the oldest outstanding record for the
// borrower and book and restores the quantity.
func (s *SQLiteDB) ReturnBook(ctx context.Context, username, title string, returnedAt int64) (record models.BorrowRecord, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to begin return transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.GetContext(ctx, &record, `
		SELECT * FROM borrow_records
		WHERE username = ? AND book_title = ? AND returned_at IS NULL
		ORDER BY id LIMIT 1`, username, title)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BorrowRecord{}, storage.ErrBorrowRecordNotFound
	}
	if err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to find outstanding record: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE books SET quantity = quantity + 1 WHERE id = ?`, record.BookID)
	if err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to increment quantity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = storage.ErrBookNotFound
		return models.BorrowRecord{}, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE borrow_records SET returned_at = ? WHERE id = ?`, returnedAt, record.ID)
	if err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to close borrow record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return models.BorrowRecord{}, fmt.Errorf("failed to commit return: %w", err)
	}

	record.ReturnedAt = &returnedAt
	return record, nil
}

// ListBorrowRecords returns records matching the filter, newest first.
func (s *SQLiteDB) ListBorrowRecords(ctx context.Context, filter storage.BorrowFilter) ([]models.BorrowRecord, error) {
	var conds []string
	var args []interface{}

	if filter.Username != "" {
		conds = append(conds, "username = ?")
		args = append(args, filter.Username)
	}
	if filter.BookTitle != "" {
		conds = append(conds, "book_title = ?")
		args = append(args, filter.BookTitle)
	}
	if filter.OutstandingOnly {
		conds = append(conds, "returned_at IS NULL")
	}

	query := "SELECT * FROM borrow_records"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"

	var records []models.BorrowRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list borrow records: %w", err)
	}
	return records, nil
}

// GetContact returns the contact for the chat id.
func (s *SQLiteDB) GetContact(ctx context.Context, chatID int64) (models.Contact, error) {
	var contact models.Contact
	err := s.db.GetContext(ctx, &contact, `SELECT * FROM contacts WHERE chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contact{}, storage.ErrContactNotFound
	}
	if err != nil {
		return models.Contact{}, fmt.Errorf("failed to get contact: %w", err)
	}
	return contact, nil
}

// GetContactByUsername returns the contact linked to the username.
func (s *SQLiteDB) GetContactByUsername(ctx context.Context, username string) (models.Contact, error) {
	var contact models.Contact
	err := s.db.GetContext(ctx, &contact, `SELECT * FROM contacts WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contact{}, storage.ErrContactNotFound
	}
	if err != nil {
		return models.Contact{}, fmt.Errorf("failed to get contact by username: %w", err)
	}
	return contact, nil
}

// UpsertContact creates or replaces the contact row.
func (s *SQLiteDB) UpsertContact(ctx context.Context, contact models.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts(chat_id, username, process_uid)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			username = excluded.username,
			process_uid = excluded.process_uid`,
		contact.ChatID, contact.Username, contact.ProcessUID)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

// SetContactProcess points the contact at a process; empty uid clears it.
func (s *SQLiteDB) SetContactProcess(ctx context.Context, chatID int64, processUID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET process_uid = ? WHERE chat_id = ?`, processUID, chatID)
	if err != nil {
		return fmt.Errorf("failed to set contact process: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrContactNotFound
	}
	return nil
}

// CreateProcess stores a new process row.
func (s *SQLiteDB) CreateProcess(ctx context.Context, process models.Process) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processes(uid, type, status, step_counter)
		VALUES (?, ?, ?, ?)`,
		process.UID, process.Type, process.Status, process.StepCounter)
	if err != nil {
		return fmt.Errorf("failed to create process: %w", err)
	}
	return nil
}

// GetProcess returns the process with the given uid.
func (s *SQLiteDB) GetProcess(ctx context.Context, uid string) (models.Process, error) {
	var process models.Process
	err := s.db.GetContext(ctx, &process, `SELECT * FROM processes WHERE uid = ?`, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Process{}, storage.ErrProcessNotFound
	}
	if err != nil {
		return models.Process{}, fmt.Errorf("failed to get process: %w", err)
	}
	return process, nil
}

// AdvanceProcess commits the process update and the captured field (when
// non-nil) in one transaction.
func (s *SQLiteDB) AdvanceProcess(ctx context.Context, process models.Process, field *models.Field) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin process transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE processes SET status = ?, step_counter = ? WHERE uid = ?`,
		process.Status, process.StepCounter, process.UID)
	if err != nil {
		return fmt.Errorf("failed to update process: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = storage.ErrProcessNotFound
		return err
	}

	if field != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fields(process_uid, name, value) VALUES (?, ?, ?)`,
			process.UID, field.Name, field.Value)
		if err != nil {
			return fmt.Errorf("failed to insert field: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit process step: %w", err)
	}
	return nil
}

// ListFields returns the fields of a process in insertion order.
func (s *SQLiteDB) ListFields(ctx context.Context, processUID string) ([]models.Field, error) {
	var fields []models.Field
	err := s.db.SelectContext(ctx, &fields,
		`SELECT * FROM fields WHERE process_uid = ? ORDER BY id`, processUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	return fields, nil
}

// CreateOffer stores a new book offer.
func (s *SQLiteDB) CreateOffer(ctx context.Context, offer models.BookOffer) (models.BookOffer, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO book_offers(uid, title, topic, author, publisher, proposer, purchase_link, is_purchased, offered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		offer.UID, offer.Title, offer.Topic, offer.Author, offer.Publisher,
		offer.Proposer, offer.PurchaseLink, offer.IsPurchased, offer.OfferedAt)
	if err != nil {
		return models.BookOffer{}, fmt.Errorf("failed to create offer: %w", err)
	}
	return offer, nil
}

// ListOffers returns offers matching the filter, newest first.
func (s *SQLiteDB) ListOffers(ctx context.Context, filter storage.OfferFilter) ([]models.BookOffer, error) {
	var conds []string
	var args []interface{}

	if filter.Proposer != "" {
		conds = append(conds, "proposer = ?")
		args = append(args, filter.Proposer)
	}
	if filter.UnpurchasedOnly {
		conds = append(conds, "is_purchased = 0")
	}

	query := "SELECT * FROM book_offers"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY offered_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	var offers []models.BookOffer
	if err := s.db.SelectContext(ctx, &offers, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return offers, nil
}

// CreateUser stores a new user after uniqueness checks.
func (s *SQLiteDB) CreateUser(ctx context.Context, user models.User) (created models.User, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to begin user transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err = tx.GetContext(ctx, &exists,
		`SELECT COUNT(*) FROM users WHERE username = ?`, user.Username); err != nil {
		return models.User{}, fmt.Errorf("failed to check username: %w", err)
	}
	if exists > 0 {
		err = storage.ErrDuplicateUsername
		return models.User{}, err
	}

	if user.TelegramID != 0 {
		if err = tx.GetContext(ctx, &exists,
			`SELECT COUNT(*) FROM users WHERE telegram_id = ?`, user.TelegramID); err != nil {
			return models.User{}, fmt.Errorf("failed to check telegram id: %w", err)
		}
		if exists > 0 {
			err = storage.ErrDuplicateTelegramID
			return models.User{}, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO users(username, email, telegram_id, first_name, last_name, mobile, password_hash, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.TelegramID, user.FirstName,
		user.LastName, user.Mobile, user.PasswordHash, user.IsActive)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID, err = res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("failed to read user id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return models.User{}, fmt.Errorf("failed to commit user: %w", err)
	}
	return user, nil
}

// GetUserByTelegramID returns the user linked to the telegram id.
func (s *SQLiteDB) GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT * FROM users WHERE telegram_id = ?`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, storage.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
