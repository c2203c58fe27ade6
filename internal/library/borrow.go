package library

import (
	"context"

	"go.uber.org/zap"

	"librarian/internal/models"
	"librarian/internal/storage"
)

// Borrow checks out one copy of the book for the borrower. It fails with
// storage.ErrBookNotFound when the title is unknown and
// storage.ErrBookNotAvailable when no copy is left. The quantity
// decrement and the record insert commit as one unit in the store.
func (s *Service) Borrow(ctx context.Context, username, title string) (models.BorrowRecord, error) {
	now := s.clock.Now()
	due := now + s.cfg.LoanPeriod.Milliseconds()

	record, err := s.store.BorrowBook(ctx, username, title, now, due)
	if err != nil {
		return models.BorrowRecord{}, err
	}

	s.logger.Info("book borrowed",
		zap.String("username", username),
		zap.String("title", title),
		zap.Int64("due_at", due),
	)
	s.recordEvent(ctx, models.BorrowEvent{
		Action:    models.EventBorrow,
		BookTitle: title,
		Username:  username,
		At:        now,
	})
	return record, nil
}

// Return closes the borrower's outstanding record for the book and
// restores the copy. It fails with storage.ErrBorrowRecordNotFound when
// nothing is outstanding for this borrower and book.
func (s *Service) Return(ctx context.Context, username, title string) (models.BorrowRecord, float64, error) {
	now := s.clock.Now()

	record, err := s.store.ReturnBook(ctx, username, title, now)
	if err != nil {
		return models.BorrowRecord{}, 0, err
	}

	penalty := s.Penalty(record)
	s.logger.Info("book returned",
		zap.String("username", username),
		zap.String("title", title),
		zap.Float64("penalty", penalty),
	)
	s.recordEvent(ctx, models.BorrowEvent{
		Action:    models.EventReturn,
		BookTitle: title,
		Username:  username,
		At:        now,
	})
	return record, penalty, nil
}

// Penalty computes the overdue charge for a returned record:
// full days late times the per-day rate, never negative. Records still
// outstanding carry no penalty.
func (s *Service) Penalty(record models.BorrowRecord) float64 {
	if record.ReturnedAt == nil {
		return 0
	}
	daysOverdue := (*record.ReturnedAt - record.DueAt) / dayMillis
	if daysOverdue <= 0 {
		return 0
	}
	return float64(daysOverdue) * s.cfg.PenaltyRatePerDay
}

// ListBorrowRecords returns borrow records matching the filter.
func (s *Service) ListBorrowRecords(ctx context.Context, filter storage.BorrowFilter) ([]models.BorrowRecord, error) {
	return s.store.ListBorrowRecords(ctx, filter)
}

// HasOutstandingBorrow reports whether the borrower currently holds a
// copy of the book.
func (s *Service) HasOutstandingBorrow(ctx context.Context, username, title string) (bool, error) {
	records, err := s.store.ListBorrowRecords(ctx, storage.BorrowFilter{
		Username:        username,
		BookTitle:       title,
		OutstandingOnly: true,
	})
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// recordEvent appends to the audit log. The borrow itself has already
// committed, so failures here are logged and swallowed.
func (s *Service) recordEvent(ctx context.Context, event models.BorrowEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordEvent(ctx, event); err != nil {
		s.logger.Warn("failed to record borrow event",
			zap.Error(err),
			zap.String("action", event.Action),
			zap.String("title", event.BookTitle),
		)
	}
}
