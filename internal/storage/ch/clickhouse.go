package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"librarian/internal/models"
)

// ClickHouseAudit is the append-only borrow-event sink. The transactional
// data lives in SQLite; ClickHouse only receives the event stream and
// answers statistics queries over it.
type ClickHouseAudit struct {
	conn clickhouse.Conn
}

// NewClickHouseAudit creates a new ClickHouse connection.
func NewClickHouseAudit(host string, port int, database, user, password string, useTLS bool) (*ClickHouseAudit, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseAudit{conn: conn}, nil
}

// Initialize creates the events table if missing.
func (db *ClickHouseAudit) Initialize(ctx context.Context) error {
	err := db.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS borrow_events (
			action LowCardinality(String),
			book_title String,
			username String,
			at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (at, book_title)`)
	if err != nil {
		return fmt.Errorf("failed to create borrow_events table: %w", err)
	}
	return nil
}

// RecordEvent appends one borrow or return event.
func (db *ClickHouseAudit) RecordEvent(ctx context.Context, event models.BorrowEvent) error {
	err := db.conn.Exec(ctx,
		`INSERT INTO borrow_events (action, book_title, username, at) VALUES (?, ?, ?, ?)`,
		event.Action, event.BookTitle, event.Username, time.UnixMilli(event.At))
	if err != nil {
		return fmt.Errorf("failed to record borrow event: %w", err)
	}
	return nil
}

// TopBorrowedBooks returns the most borrowed titles inside [from, to].
func (db *ClickHouseAudit) TopBorrowedBooks(ctx context.Context, limit int, from, to int64) ([]models.BookStat, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT book_title, count() AS borrow_count
		FROM borrow_events
		WHERE action = ? AND at BETWEEN ? AND ?
		GROUP BY book_title
		ORDER BY borrow_count DESC, book_title
		LIMIT ?`,
		models.EventBorrow, time.UnixMilli(from), time.UnixMilli(to), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top borrowed books: %w", err)
	}
	defer rows.Close()

	var stats []models.BookStat
	for rows.Next() {
		var (
			title string
			count uint64
		)
		if err := rows.Scan(&title, &count); err != nil {
			return nil, fmt.Errorf("failed to scan book stat: %w", err)
		}
		stats = append(stats, models.BookStat{BookTitle: title, BorrowCount: int(count)})
	}
	return stats, nil
}

// Close closes the connection.
func (db *ClickHouseAudit) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
