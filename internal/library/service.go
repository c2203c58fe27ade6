package library

import (
	"time"

	"go.uber.org/zap"

	"librarian/internal/clock"
	"librarian/internal/storage"
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// Config carries the borrowing policy.
type Config struct {
	// LoanPeriod is the fixed commitment period added to the borrow
	// timestamp to produce the due date. Zero means 7 days.
	LoanPeriod time.Duration
	// PenaltyRatePerDay is charged per full day overdue at return time.
	PenaltyRatePerDay float64
}

// Service is the library facade: catalog bookkeeping plus the
// borrow/return workflow. All quantity mutation goes through here.
type Service struct {
	store  storage.Storage
	audit  storage.AuditLog
	clock  clock.Clock
	logger *zap.Logger
	cfg    Config
}

// New creates the library service. audit may be nil to disable the
// borrow-event stream.
func New(store storage.Storage, audit storage.AuditLog, clk clock.Clock, logger *zap.Logger, cfg Config) *Service {
	if cfg.LoanPeriod == 0 {
		cfg.LoanPeriod = 7 * 24 * time.Hour
	}
	return &Service{
		store:  store,
		audit:  audit,
		clock:  clk,
		logger: logger,
		cfg:    cfg,
	}
}
