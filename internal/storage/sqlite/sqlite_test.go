package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/models"
	"librarian/internal/storage"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	t.Helper()

	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Failed to open sqlite database")
	require.NoError(t, db.Initialize(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteDB_BorrowBookTransaction(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.AddBook(ctx, models.Book{Title: "Dune", Quantity: 1})
	require.NoError(t, err)

	record, err := db.BorrowBook(ctx, "paul", "Dune", 100, 200)
	require.NoError(t, err)
	assert.Equal(t, "Dune", record.BookTitle)
	assert.True(t, record.Outstanding())

	book, err := db.GetBookByTitle(ctx, "Dune")
	require.NoError(t, err)
	assert.Equal(t, 0, book.Quantity)

	// A second borrow is rejected and leaves no record.
	_, err = db.BorrowBook(ctx, "leto", "Dune", 100, 200)
	assert.ErrorIs(t, err, storage.ErrBookNotAvailable)

	records, err := db.ListBorrowRecords(ctx, storage.BorrowFilter{BookTitle: "Dune"})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = db.BorrowBook(ctx, "leto", "Missing", 100, 200)
	assert.ErrorIs(t, err, storage.ErrBookNotFound)
}

func TestSQLiteDB_ConcurrentBorrowLastCopy(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.AddBook(ctx, models.Book{Title: "Dune", Quantity: 1})
	require.NoError(t, err)

	const borrowers = 8
	var wg sync.WaitGroup
	errs := make([]error, borrowers)
	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = db.BorrowBook(ctx, "user", "Dune", 100, 200)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes)

	book, err := db.GetBookByTitle(ctx, "Dune")
	require.NoError(t, err)
	assert.Equal(t, 0, book.Quantity)
}

func TestSQLiteDB_ReturnBook(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.AddBook(ctx, models.Book{Title: "Dune", Quantity: 2})
	require.NoError(t, err)

	first, err := db.BorrowBook(ctx, "paul", "Dune", 100, 200)
	require.NoError(t, err)
	_, err = db.BorrowBook(ctx, "paul", "Dune", 150, 250)
	require.NoError(t, err)

	returned, err := db.ReturnBook(ctx, "paul", "Dune", 300)
	require.NoError(t, err)
	assert.Equal(t, first.ID, returned.ID, "the oldest outstanding record closes first")
	require.NotNil(t, returned.ReturnedAt)
	assert.Equal(t, int64(300), *returned.ReturnedAt)

	book, err := db.GetBookByTitle(ctx, "Dune")
	require.NoError(t, err)
	assert.Equal(t, 1, book.Quantity)

	outstanding, err := db.ListBorrowRecords(ctx, storage.BorrowFilter{
		Username:        "paul",
		OutstandingOnly: true,
	})
	require.NoError(t, err)
	assert.Len(t, outstanding, 1)

	_, err = db.ReturnBook(ctx, "leto", "Dune", 300)
	assert.ErrorIs(t, err, storage.ErrBorrowRecordNotFound)
}

func TestSQLiteDB_AddBookMergesQuantity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := db.AddBook(ctx, models.Book{Title: "Dune", Quantity: 2})
	require.NoError(t, err)
	second, err := db.AddBook(ctx, models.Book{Title: "Dune", Quantity: 3})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)
}

func TestSQLiteDB_ListBooksFilter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, b := range []models.Book{
		{Title: "Dune", Author: "Frank Herbert", Topic: "sci-fi", Quantity: 1},
		{Title: "Foundation", Author: "Isaac Asimov", Topic: "sci-fi", Quantity: 1},
		{Title: "The Hobbit", Author: "J.R.R. Tolkien", Topic: "fantasy", Quantity: 1},
	} {
		_, err := db.AddBook(ctx, b)
		require.NoError(t, err)
	}

	scifi, count, err := db.ListBooks(ctx, storage.BookFilter{
		Topic:   "sci-fi",
		OrderBy: storage.OrderByTitleAsc,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, scifi, 2)
	assert.Equal(t, "Dune", scifi[0].Title)

	// Substring matching on author.
	byAuthor, _, err := db.ListBooks(ctx, storage.BookFilter{Author: "Tolkien"})
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "The Hobbit", byAuthor[0].Title)

	// Pagination keeps the unpaginated count.
	page, total, err := db.ListBooks(ctx, storage.BookFilter{
		OrderBy: storage.OrderByTitleAsc,
		Limit:   1,
		Offset:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "Foundation", page[0].Title)
}

func TestSQLiteDB_SetBookStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.AddBook(ctx, models.Book{Title: "Dune", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, db.SetBookStatus(ctx, "Dune", models.BookStatusDisabled))
	book, err := db.GetBookByTitle(ctx, "Dune")
	require.NoError(t, err)
	assert.Equal(t, models.BookStatusDisabled, book.Status)

	assert.ErrorIs(t, db.SetBookStatus(ctx, "Missing", models.BookStatusDisabled), storage.ErrBookNotFound)
}

func TestSQLiteDB_ProcessLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertContact(ctx, models.Contact{ChatID: 1, Username: "paul"}))

	proc := models.Process{UID: "p-1", Type: "survey", Status: "initiate"}
	require.NoError(t, db.CreateProcess(ctx, proc))
	require.NoError(t, db.SetContactProcess(ctx, 1, "p-1"))

	contact, err := db.GetContact(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "p-1", contact.ProcessUID)

	proc.Status = "q1"
	proc.StepCounter = 1
	require.NoError(t, db.AdvanceProcess(ctx, proc, nil))

	proc.Status = "q2"
	proc.StepCounter = 2
	require.NoError(t, db.AdvanceProcess(ctx, proc, &models.Field{Name: "q1", Value: "first"}))
	proc.Status = "finished"
	proc.StepCounter = 3
	require.NoError(t, db.AdvanceProcess(ctx, proc, &models.Field{Name: "q2", Value: "second"}))

	fields, err := db.ListFields(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "q1", fields[0].Name)
	assert.Equal(t, "q2", fields[1].Name)

	got, err := db.GetProcess(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "finished", got.Status)

	require.NoError(t, db.SetContactProcess(ctx, 1, ""))
	contact, err = db.GetContact(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, contact.ProcessUID)

	assert.ErrorIs(t, db.SetContactProcess(ctx, 99, "p-1"), storage.ErrContactNotFound)
	assert.ErrorIs(t, db.AdvanceProcess(ctx, models.Process{UID: "missing"}, nil), storage.ErrProcessNotFound)
	_, err = db.GetProcess(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrProcessNotFound)
}

func TestSQLiteDB_Users(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created, err := db.CreateUser(ctx, models.User{
		Username:   "paul",
		Email:      "paul@arrakis.example",
		TelegramID: 123,
		IsActive:   true,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = db.CreateUser(ctx, models.User{Username: "paul", TelegramID: 456})
	assert.ErrorIs(t, err, storage.ErrDuplicateUsername)
	_, err = db.CreateUser(ctx, models.User{Username: "leto", TelegramID: 123})
	assert.ErrorIs(t, err, storage.ErrDuplicateTelegramID)

	// Unlinked accounts don't collide on telegram_id.
	_, err = db.CreateUser(ctx, models.User{Username: "jessica"})
	require.NoError(t, err)
	_, err = db.CreateUser(ctx, models.User{Username: "duncan"})
	require.NoError(t, err)

	user, err := db.GetUserByTelegramID(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, "paul", user.Username)
	assert.True(t, user.IsActive)

	_, err = db.GetUserByTelegramID(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestSQLiteDB_Offers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	offers := []models.BookOffer{
		{UID: "o-1", Title: "Foundation", Proposer: "paul", OfferedAt: 100},
		{UID: "o-2", Title: "Hyperion", Proposer: "leto", OfferedAt: 200, IsPurchased: true},
		{UID: "o-3", Title: "Solaris", Proposer: "paul", OfferedAt: 300},
	}
	for _, o := range offers {
		_, err := db.CreateOffer(ctx, o)
		require.NoError(t, err)
	}

	all, err := db.ListOffers(ctx, storage.OfferFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "o-3", all[0].UID, "newest first")

	byPaul, err := db.ListOffers(ctx, storage.OfferFilter{Proposer: "paul"})
	require.NoError(t, err)
	assert.Len(t, byPaul, 2)

	pending, err := db.ListOffers(ctx, storage.OfferFilter{UnpurchasedOnly: true})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
