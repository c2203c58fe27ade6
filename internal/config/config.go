package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // URL for webhook (required if WebhookMode is true)

	// Primary store
	SQLitePath string
	UseMockDB  bool

	// Borrowing policy
	LoanPeriod        time.Duration
	PenaltyRatePerDay float64

	// Overdue reminders. LibrarianChatID of 0 disables the daily
	// summary; borrowers are still nudged individually.
	LibrarianChatID int64
	ReminderAt      string

	// ClickHouse audit log (optional)
	AuditEnabled       bool
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Telegram Bot Token (required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	// Bot mode configuration
	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = os.Getenv("WEBHOOK_URL")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}

	// Use Mock DB (default: false)
	config.UseMockDB = os.Getenv("USE_MOCK_DB") == "true"

	config.SQLitePath = os.Getenv("SQLITE_PATH")
	if config.SQLitePath == "" {
		config.SQLitePath = "librarian.db"
	}

	// Borrowing policy
	loanDays := 7
	if v := os.Getenv("LOAN_PERIOD_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("invalid LOAN_PERIOD_DAYS: %s", v)
		}
		loanDays = days
	}
	config.LoanPeriod = time.Duration(loanDays) * 24 * time.Hour

	config.PenaltyRatePerDay = 0.5
	if v := os.Getenv("PENALTY_RATE_PER_DAY"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate < 0 {
			return nil, fmt.Errorf("invalid PENALTY_RATE_PER_DAY: %s", v)
		}
		config.PenaltyRatePerDay = rate
	}

	// Overdue reminders
	if v := os.Getenv("LIBRARIAN_CHAT_ID"); v != "" {
		chatID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid LIBRARIAN_CHAT_ID: %s", v)
		}
		config.LibrarianChatID = chatID
	}
	config.ReminderAt = os.Getenv("REMINDER_AT")
	if config.ReminderAt == "" {
		config.ReminderAt = "09:00"
	}

	// ClickHouse audit log (optional)
	config.AuditEnabled = os.Getenv("AUDIT_ENABLED") == "true"
	if config.AuditEnabled {
		config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
		if config.ClickHouseHost == "" {
			return nil, fmt.Errorf("CLICKHOUSE_HOST is required when AUDIT_ENABLED is true")
		}

		portStr := os.Getenv("CLICKHOUSE_PORT")
		if portStr == "" {
			config.ClickHousePort = 9000 // Default ClickHouse native port
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
			}
			config.ClickHousePort = port
		}

		config.ClickHouseDatabase = os.Getenv("CLICKHOUSE_DATABASE")
		if config.ClickHouseDatabase == "" {
			config.ClickHouseDatabase = "default"
		}

		config.ClickHouseUser = os.Getenv("CLICKHOUSE_USER")
		if config.ClickHouseUser == "" {
			config.ClickHouseUser = "default"
		}

		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		// Password is optional, can be empty

		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	}

	return config, nil
}
