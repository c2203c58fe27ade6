package library

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"librarian/internal/models"
	"librarian/internal/storage"
)

// AddBook registers copies of a title. If the title already exists the
// incoming quantity is added to the existing row.
func (s *Service) AddBook(ctx context.Context, book models.Book) (models.Book, error) {
	added, err := s.store.AddBook(ctx, book)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to add book: %w", err)
	}
	s.logger.Info("book added",
		zap.String("title", added.Title),
		zap.Int("quantity", added.Quantity),
	)
	return added, nil
}

// GetBook returns the book with the given title.
func (s *Service) GetBook(ctx context.Context, title string) (models.Book, error) {
	return s.store.GetBookByTitle(ctx, title)
}

// ListBooks returns books matching the filter and the unpaginated count.
func (s *Service) ListBooks(ctx context.Context, filter storage.BookFilter) ([]models.Book, int, error) {
	return s.store.ListBooks(ctx, filter)
}

// DisableBook hides a title from the available catalog without touching
// its borrow history.
func (s *Service) DisableBook(ctx context.Context, title string) error {
	if err := s.store.SetBookStatus(ctx, title, models.BookStatusDisabled); err != nil {
		return err
	}
	s.logger.Info("book disabled", zap.String("title", title))
	return nil
}
