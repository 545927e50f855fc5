// internal/domain/delivery/log.go
package delivery

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadySent is returned by RecordAttempt when a sent record already
// exists for the pair.
var ErrAlreadySent = errors.New("notification already sent on this channel")

// Log is the append-only Delivery Log.
type Log interface {
	// HasSucceeded is true iff a sent record exists for the pair.
	HasSucceeded(ctx context.Context, notificationID int64, channel Channel) (bool, error)
	// RecordAttempt appends rec and fills its ID and RecordedAt. A second sent
	// record for the same pair is refused with ErrAlreadySent.
	RecordAttempt(ctx context.Context, rec *Record) error
	// PurgeOlderThan deletes records recorded before cutoff and returns the count.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	StatsForNotification(ctx context.Context, notificationID int64) ([]*ChannelStats, error)
}
