package stubs

import (
	"context"
	"sort"
	"strings"
	"sync"

	"librarian/internal/models"
	"librarian/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for
// testing. All mutation happens under a single mutex, which gives the
// same serialization guarantees the SQLite store gets from transactions.
type MockDB struct {
	mu        sync.RWMutex
	books     map[string]models.Book
	records   []models.BorrowRecord
	contacts  map[int64]models.Contact
	processes map[string]models.Process
	fields    []models.Field
	offers    []models.BookOffer
	users     map[string]models.User

	nextBookID   int64
	nextRecordID int64
	nextFieldID  int64
	nextUserID   int64
}

// NewMockDB creates a new mock database.
func NewMockDB() *MockDB {
	return &MockDB{
		books:     make(map[string]models.Book),
		contacts:  make(map[int64]models.Contact),
		processes: make(map[string]models.Process),
		users:     make(map[string]models.User),
	}
}

// Initialize is a no-op for the mock.
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// AddBook creates the book or, if the title already exists, adds the
// incoming quantity to the existing row.
func (m *MockDB) AddBook(ctx context.Context, book models.Book) (models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.books[book.Title]; ok {
		existing.Quantity += book.Quantity
		m.books[book.Title] = existing
		return existing, nil
	}

	m.nextBookID++
	book.ID = m.nextBookID
	if book.Status == "" {
		book.Status = models.BookStatusAvailable
	}
	m.books[book.Title] = book
	return book, nil
}

// GetBookByTitle returns the book with the given title.
func (m *MockDB) GetBookByTitle(ctx context.Context, title string) (models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.books[title]
	if !ok {
		return models.Book{}, storage.ErrBookNotFound
	}
	return book, nil
}

// ListBooks returns books matching the filter plus the unpaginated count.
func (m *MockDB) ListBooks(ctx context.Context, filter storage.BookFilter) ([]models.Book, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var books []models.Book
	for _, book := range m.books {
		if !matchBook(book, filter) {
			continue
		}
		books = append(books, book)
	}

	switch filter.OrderBy {
	case storage.OrderByIDAsc:
		sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	case storage.OrderByTitleAsc:
		sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	case storage.OrderByTitleDesc:
		sort.Slice(books, func(i, j int) bool { return books[i].Title > books[j].Title })
	default: // OrderByIDDesc
		sort.Slice(books, func(i, j int) bool { return books[i].ID > books[j].ID })
	}

	count := len(books)
	if filter.Offset > 0 {
		if filter.Offset >= len(books) {
			books = nil
		} else {
			books = books[filter.Offset:]
		}
	}
	if filter.Limit > 0 && filter.Limit < len(books) {
		books = books[:filter.Limit]
	}
	return books, count, nil
}

func matchBook(book models.Book, filter storage.BookFilter) bool {
	if filter.Title != "" && !strings.Contains(book.Title, filter.Title) {
		return false
	}
	if filter.Author != "" && !strings.Contains(book.Author, filter.Author) {
		return false
	}
	if filter.Publisher != "" && !strings.Contains(book.Publisher, filter.Publisher) {
		return false
	}
	if filter.Topic != "" && !strings.Contains(book.Topic, filter.Topic) {
		return false
	}
	if filter.DatePublished != "" && book.DatePublished != filter.DatePublished {
		return false
	}
	if filter.Status != "" && book.Status != filter.Status {
		return false
	}
	return true
}

// SetBookStatus updates the status of the book with the given title.
func (m *MockDB) SetBookStatus(ctx context.Context, title, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[title]
	if !ok {
		return storage.ErrBookNotFound
	}
	book.Status = status
	m.books[title] = book
	return nil
}

// BorrowBook decrements the book quantity and inserts an outstanding
// borrow record as one unit. The check-and-decrement runs under the
// write lock, so concurrent borrows cannot both observe the last copy.
func (m *MockDB) BorrowBook(ctx context.Context, username, title string, borrowedAt, dueAt int64) (models.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[title]
	if !ok {
		return models.BorrowRecord{}, storage.ErrBookNotFound
	}
	if book.Quantity <= 0 {
		return models.BorrowRecord{}, storage.ErrBookNotAvailable
	}

	book.Quantity--
	m.books[title] = book

	m.nextRecordID++
	record := models.BorrowRecord{
		ID:         m.nextRecordID,
		BookID:     book.ID,
		BookTitle:  book.Title,
		Username:   username,
		BorrowedAt: borrowedAt,
		DueAt:      dueAt,
	}
	m.records = append(m.records, record)
	return record, nil
}

// ReturnBook sets ReturnedAt on the oldest outstanding record for the
// borrower and book, and increments the book quantity, as one unit.
func (m *MockDB) ReturnBook(ctx context.Context, username, title string, returnedAt int64) (models.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[title]
	if !ok {
		return models.BorrowRecord{}, storage.ErrBookNotFound
	}

	for i := range m.records {
		r := &m.records[i]
		if r.Username != username || r.BookTitle != title || r.ReturnedAt != nil {
			continue
		}
		at := returnedAt
		r.ReturnedAt = &at
		book.Quantity++
		m.books[title] = book
		return *r, nil
	}
	return models.BorrowRecord{}, storage.ErrBorrowRecordNotFound
}

// ListBorrowRecords returns records matching the filter, newest first.
func (m *MockDB) ListBorrowRecords(ctx context.Context, filter storage.BorrowFilter) ([]models.BorrowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []models.BorrowRecord
	for _, r := range m.records {
		if filter.Username != "" && r.Username != filter.Username {
			continue
		}
		if filter.BookTitle != "" && r.BookTitle != filter.BookTitle {
			continue
		}
		if filter.OutstandingOnly && r.ReturnedAt != nil {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID > records[j].ID })
	return records, nil
}

// GetContact returns the contact for the chat id.
func (m *MockDB) GetContact(ctx context.Context, chatID int64) (models.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contact, ok := m.contacts[chatID]
	if !ok {
		return models.Contact{}, storage.ErrContactNotFound
	}
	return contact, nil
}

// GetContactByUsername returns the contact linked to the username.
func (m *MockDB) GetContactByUsername(ctx context.Context, username string) (models.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, contact := range m.contacts {
		if contact.Username == username {
			return contact, nil
		}
	}
	return models.Contact{}, storage.ErrContactNotFound
}

// UpsertContact creates or replaces the contact row.
func (m *MockDB) UpsertContact(ctx context.Context, contact models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.contacts[contact.ChatID] = contact
	return nil
}

// SetContactProcess points the contact at a process; empty uid clears it.
func (m *MockDB) SetContactProcess(ctx context.Context, chatID int64, processUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	contact, ok := m.contacts[chatID]
	if !ok {
		return storage.ErrContactNotFound
	}
	contact.ProcessUID = processUID
	m.contacts[chatID] = contact
	return nil
}

// CreateProcess stores a new process row.
func (m *MockDB) CreateProcess(ctx context.Context, process models.Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processes[process.UID] = process
	return nil
}

// GetProcess returns the process with the given uid.
func (m *MockDB) GetProcess(ctx context.Context, uid string) (models.Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	process, ok := m.processes[uid]
	if !ok {
		return models.Process{}, storage.ErrProcessNotFound
	}
	return process, nil
}

// AdvanceProcess updates the process row and, when field is non-nil,
// appends the captured field in the same locked section.
func (m *MockDB) AdvanceProcess(ctx context.Context, process models.Process, field *models.Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.processes[process.UID]; !ok {
		return storage.ErrProcessNotFound
	}
	m.processes[process.UID] = process
	if field != nil {
		m.nextFieldID++
		f := *field
		f.ID = m.nextFieldID
		f.ProcessUID = process.UID
		m.fields = append(m.fields, f)
	}
	return nil
}

// ListFields returns the fields of a process in insertion order.
func (m *MockDB) ListFields(ctx context.Context, processUID string) ([]models.Field, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var fields []models.Field
	for _, f := range m.fields {
		if f.ProcessUID == processUID {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// CreateOffer stores a new book offer.
func (m *MockDB) CreateOffer(ctx context.Context, offer models.BookOffer) (models.BookOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.offers = append(m.offers, offer)
	return offer, nil
}

// ListOffers returns offers matching the filter, newest first.
func (m *MockDB) ListOffers(ctx context.Context, filter storage.OfferFilter) ([]models.BookOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var offers []models.BookOffer
	for _, o := range m.offers {
		if filter.Proposer != "" && o.Proposer != filter.Proposer {
			continue
		}
		if filter.UnpurchasedOnly && o.IsPurchased {
			continue
		}
		offers = append(offers, o)
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].OfferedAt > offers[j].OfferedAt })

	if filter.Offset > 0 {
		if filter.Offset >= len(offers) {
			offers = nil
		} else {
			offers = offers[filter.Offset:]
		}
	}
	if filter.Limit > 0 && filter.Limit < len(offers) {
		offers = offers[:filter.Limit]
	}
	return offers, nil
}

// CreateUser stores a new user after uniqueness checks.
func (m *MockDB) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Username]; ok {
		return models.User{}, storage.ErrDuplicateUsername
	}
	if user.TelegramID != 0 {
		for _, u := range m.users {
			if u.TelegramID == user.TelegramID {
				return models.User{}, storage.ErrDuplicateTelegramID
			}
		}
	}

	m.nextUserID++
	user.ID = m.nextUserID
	m.users[user.Username] = user
	return user, nil
}

// GetUserByTelegramID returns the user linked to the telegram id.
func (m *MockDB) GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return models.User{}, storage.ErrUserNotFound
}

// Close does nothing for the mock DB.
func (m *MockDB) Close() error {
	return nil
}
