package ch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"librarian/internal/models"
)

// setupTestDB creates a test ClickHouse instance using testcontainers
func setupTestDB(t *testing.T) (*ClickHouseAudit, func()) {
	ctx := context.Background()

	// Start ClickHouse container
	clickhouseContainer, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:24.3.3.102-alpine",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword(""),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	// Get connection details
	host, err := clickhouseContainer.Host(ctx)
	require.NoError(t, err)

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	db, err := NewClickHouseAudit(host, port.Int(), "default", "default", "", false)
	require.NoError(t, err, "Failed to connect to ClickHouse")

	// Start from a clean table
	_ = db.conn.Exec(ctx, "DROP TABLE IF EXISTS borrow_events")
	require.NoError(t, db.Initialize(ctx), "Failed to initialize audit log")

	cleanup := func() {
		db.Close()
		if err := clickhouseContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}
	return db, cleanup
}

func TestClickHouseAudit_RecordAndQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour).UnixMilli()

	events := []models.BorrowEvent{
		{Action: models.EventBorrow, BookTitle: "Dune", Username: "paul", At: base},
		{Action: models.EventBorrow, BookTitle: "Dune", Username: "leto", At: base + 1000},
		{Action: models.EventBorrow, BookTitle: "Foundation", Username: "paul", At: base + 2000},
		{Action: models.EventReturn, BookTitle: "Dune", Username: "paul", At: base + 3000},
	}
	for _, ev := range events {
		require.NoError(t, db.RecordEvent(ctx, ev))
	}

	// ClickHouse inserts are visible after a short settle
	time.Sleep(500 * time.Millisecond)

	stats, err := db.TopBorrowedBooks(ctx, 10, base-1000, base+10_000)
	require.NoError(t, err)

	require.Len(t, stats, 2)
	assert.Equal(t, "Dune", stats[0].BookTitle)
	assert.Equal(t, 2, stats[0].BorrowCount)
	assert.Equal(t, "Foundation", stats[1].BookTitle)
	assert.Equal(t, 1, stats[1].BorrowCount)
}

func TestClickHouseAudit_TimeWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().Add(-24 * time.Hour).UnixMilli()

	require.NoError(t, db.RecordEvent(ctx, models.BorrowEvent{
		Action: models.EventBorrow, BookTitle: "Dune", Username: "paul", At: base,
	}))
	require.NoError(t, db.RecordEvent(ctx, models.BorrowEvent{
		Action: models.EventBorrow, BookTitle: "Foundation", Username: "paul", At: base + 12*3600*1000,
	}))

	time.Sleep(500 * time.Millisecond)

	// Only the first event falls inside the window.
	stats, err := db.TopBorrowedBooks(ctx, 10, base-1000, base+3600*1000)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "Dune", stats[0].BookTitle)
}
