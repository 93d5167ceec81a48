package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a run notification.
type TelegramMessage struct {
	Success   bool
	Host      string
	Bucket    string
	RunID     string
	StartTime time.Time
	Duration  time.Duration

	// Run stats.
	Attempted        int
	Succeeded        int
	Failed           int
	BytesTransferred int64
	RetentionDeleted int
	FailedDatabases  []string

	// Fatal error info (if the run aborted).
	ErrorMessage string
	FailedStep   string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
