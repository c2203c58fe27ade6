package stubs

import (
	"context"
	"sort"
	"sync"

	"librarian/internal/models"
)

// MockAuditLog is an in-memory AuditLog used in tests and when the
// ClickHouse sink is not configured.
type MockAuditLog struct {
	mu     sync.RWMutex
	events []models.BorrowEvent
}

// NewMockAuditLog creates a new in-memory audit log.
func NewMockAuditLog() *MockAuditLog {
	return &MockAuditLog{}
}

func (m *MockAuditLog) Initialize(ctx context.Context) error {
	return nil
}

// RecordEvent appends the event.
func (m *MockAuditLog) RecordEvent(ctx context.Context, event models.BorrowEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *MockAuditLog) Events() []models.BorrowEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.BorrowEvent, len(m.events))
	copy(out, m.events)
	return out
}

// TopBorrowedBooks counts borrow events per title inside [from, to].
func (m *MockAuditLog) TopBorrowedBooks(ctx context.Context, limit int, from, to int64) ([]models.BookStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, ev := range m.events {
		if ev.Action != models.EventBorrow {
			continue
		}
		if ev.At < from || ev.At > to {
			continue
		}
		counts[ev.BookTitle]++
	}

	var stats []models.BookStat
	for title, count := range counts {
		stats = append(stats, models.BookStat{BookTitle: title, BorrowCount: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].BorrowCount != stats[j].BorrowCount {
			return stats[i].BorrowCount > stats[j].BorrowCount
		}
		return stats[i].BookTitle < stats[j].BookTitle
	})
	if limit > 0 && limit < len(stats) {
		stats = stats[:limit]
	}
	return stats, nil
}

func (m *MockAuditLog) Close() error {
	return nil
}
