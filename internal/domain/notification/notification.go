// internal/domain/notification/notification.go
package notification

import (
	"fmt"
	"time"
)

const (
	MaxTitleLength = 255
	MaxBodyLength  = 2000
)

// Notification is one community announcement with its activation window.
// Corresponds to the 'notifications' table in schema.sql.
type Notification struct {
	ID        int64
	Title     string
	Body      string
	StartAt   time.Time // UTC, inclusive
	EndAt     time.Time // UTC, inclusive, EndAt >= StartAt
	Enabled   bool      // operator kill switch, flipped off by housekeeping after EndAt
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActiveAt reports whether the notification is current at now.
// The result depends on now and must not be cached.
func (n *Notification) IsActiveAt(now time.Time) bool {
	return IsActive(now, n.StartAt, n.EndAt, n.Enabled)
}

// Message renders the text sent to external channels.
func (n *Notification) Message() string {
	return fmt.Sprintf("%s - %s", n.Title, n.Body)
}
