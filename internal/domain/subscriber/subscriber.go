package subscriber

import (
	"context"
	"database/sql"
)

// Subscriber is a portal resident who receives fan-out deliveries.
type Subscriber struct {
	UserID       int64
	Email        string
	DisplayName  sql.NullString
	PushEnabled  bool
	EmailEnabled bool
}

// Repository lists fan-out recipients.
type Repository interface {
	// ListActive returns active residents with their preferences.
	ListActive(ctx context.Context) ([]*Subscriber, error)
}
