// internal/domain/notification/repository.go
package notification

import (
	"context"
	"time"
)

// Repository defines the Notification Store.
type Repository interface {
	// CRUD methods
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id int64) (*Notification, error)
	Update(ctx context.Context, n *Notification) error
	Delete(ctx context.Context, id int64) error // cascades delivery records
	ListRecentActive(ctx context.Context, now time.Time, limit uint64) ([]*Notification, error)

	// ListActiveCandidates returns notifications with enabled = true AND start <= now <= end.
	ListActiveCandidates(ctx context.Context, now time.Time) ([]*Notification, error)
	// DeactivateExpired sets enabled = false where now > end AND enabled = true.
	// It never sets enabled back to true.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
