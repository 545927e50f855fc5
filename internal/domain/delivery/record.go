// internal/domain/delivery/record.go
package delivery

import (
	"database/sql"
	"time"
)

// Channel identifies an external delivery mechanism.
type Channel string

const (
	ChannelGroupMessage  Channel = "group-message"  // WhatsApp community group
	ChannelPushFanout    Channel = "push-fanout"    // push gateway, every push-enabled resident
	ChannelEmailFanout   Channel = "email-fanout"   // SMTP, every email-enabled resident
	ChannelTelegramGroup Channel = "telegram-group" // Telegram community chat
)

// Outcome is the result of one dispatch attempt.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
)

// Record is one dispatch attempt of one notification on one channel.
// Records are append-only. Corresponds to the 'delivery_records' table.
type Record struct {
	ID             int64
	NotificationID int64
	Channel        Channel
	Outcome        Outcome
	ErrorDetail    sql.NullString // set iff Outcome == OutcomeFailed
	Message        string         // snapshot of the rendered message
	AttemptedAt    time.Time
	RecordedAt     time.Time
}

// ChannelStats aggregates the records of one notification on one channel.
type ChannelStats struct {
	Channel  Channel
	Attempts int
	Sent     int
	Failed   int
	Pending  int
}
