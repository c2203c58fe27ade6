package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"librarian/internal/clock"
	"librarian/internal/library"
	"librarian/internal/models"
	"librarian/internal/storage"
)

// Sender delivers reminder text. Satisfied by the bot.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Scheduler runs a daily sweep over outstanding loans: each overdue
// borrower with a known contact gets a nudge, and the librarian chat
// (when configured) gets a summary. It reads records only; it never
// mutates state.
type Scheduler struct {
	lib       *library.Service
	store     storage.Storage
	sender    Sender
	clock     clock.Clock
	logger    *zap.Logger
	chatID    int64
	runAt     string
	scheduler *gocron.Scheduler
}

// New creates the reminder scheduler. runAt is an HH:MM local-time
// string, e.g. "09:00". chatID 0 disables the librarian summary.
func New(lib *library.Service, store storage.Storage, sender Sender, clk clock.Clock, logger *zap.Logger, chatID int64, runAt string) *Scheduler {
	if runAt == "" {
		runAt = "09:00"
	}
	return &Scheduler{
		lib:    lib,
		store:  store,
		sender: sender,
		clock:  clk,
		logger: logger,
		chatID: chatID,
		runAt:  runAt,
	}
}

// Start schedules the daily sweep and returns immediately.
func (s *Scheduler) Start() error {
	s.scheduler = gocron.NewScheduler(time.UTC)
	if _, err := s.scheduler.Every(1).Day().At(s.runAt).Do(s.sweep); err != nil {
		return fmt.Errorf("failed to schedule overdue sweep: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("overdue reminder scheduled", zap.String("at", s.runAt))
	return nil
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) sweep() {
	ctx := context.Background()

	overdue, err := s.overdueRecords(ctx)
	if err != nil {
		s.logger.Error("overdue sweep failed", zap.Error(err))
		return
	}
	if len(overdue) == 0 {
		return
	}

	s.notifyBorrowers(ctx, overdue)

	if s.chatID != 0 {
		if err := s.sender.SendText(ctx, s.chatID, s.summary(overdue)); err != nil {
			s.logger.Error("failed to send overdue summary", zap.Error(err))
		}
	}
}

// notifyBorrowers nudges each overdue borrower whose username maps to a
// known contact. Borrowers registered outside Telegram are skipped.
func (s *Scheduler) notifyBorrowers(ctx context.Context, overdue []models.BorrowRecord) {
	now := s.clock.Now()
	for _, r := range overdue {
		contact, err := s.store.GetContactByUsername(ctx, r.Username)
		if errors.Is(err, storage.ErrContactNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error("failed to resolve borrower contact",
				zap.Error(err), zap.String("username", r.Username))
			continue
		}
		text := fmt.Sprintf("Reminder: %q was due on %s (%d day(s) ago). Please /return it.",
			r.BookTitle, formatDate(r.DueAt), daysLate(r, now))
		if err := s.sender.SendText(ctx, contact.ChatID, text); err != nil {
			s.logger.Error("failed to send overdue reminder",
				zap.Error(err), zap.Int64("chat_id", contact.ChatID))
		}
	}
}

// OverdueSummary builds the librarian summary and returns the number of
// overdue loans it covers.
func (s *Scheduler) OverdueSummary(ctx context.Context) (string, int, error) {
	overdue, err := s.overdueRecords(ctx)
	if err != nil {
		return "", 0, err
	}
	if len(overdue) == 0 {
		return "", 0, nil
	}
	return s.summary(overdue), len(overdue), nil
}

func (s *Scheduler) overdueRecords(ctx context.Context) ([]models.BorrowRecord, error) {
	records, err := s.lib.ListBorrowRecords(ctx, storage.BorrowFilter{OutstandingOnly: true})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var overdue []models.BorrowRecord
	for _, r := range records {
		if r.DueAt < now {
			overdue = append(overdue, r)
		}
	}
	return overdue, nil
}

func (s *Scheduler) summary(overdue []models.BorrowRecord) string {
	now := s.clock.Now()
	var b strings.Builder
	b.WriteString("Overdue loans:\n\n")
	for i, r := range overdue {
		b.WriteString(fmt.Sprintf("%d. %s by %s, %d day(s) overdue\n",
			i+1, r.BookTitle, r.Username, daysLate(r, now)))
	}
	return b.String()
}

func daysLate(r models.BorrowRecord, now int64) int64 {
	return (now - r.DueAt) / int64(24*time.Hour/time.Millisecond)
}

func formatDate(millis int64) string {
	return time.UnixMilli(millis).UTC().Format("2006-01-02")
}
