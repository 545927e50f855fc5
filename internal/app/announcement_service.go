// internal/app/announcement_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/domain/notification"
	idb "announcement_dispatcher/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// RecentActiveLimit is how many notifications the dashboard listing shows.
const RecentActiveLimit = 5

// immediateDispatcher is the creation hook; it must return without waiting.
type immediateDispatcher interface {
	TryImmediateDispatch(n *notification.Notification)
}

// NewAnnouncement holds the operator-provided fields of a notification.
type NewAnnouncement struct {
	Title   string
	Body    string
	StartAt time.Time
	EndAt   time.Time
	Enabled bool
}

// PairStatus is the current state of one channel for one notification.
type PairStatus struct {
	Channel delivery.Channel
	State   delivery.State
}

// ActivationState is recomputed from the window and the delivery log on every read.
type ActivationState struct {
	Notification *notification.Notification
	Active       bool
	Channels     []PairStatus
}

type AnnouncementService struct {
	notifications notification.Repository
	deliveries    delivery.Log
	hook          immediateDispatcher
	channels      []delivery.Channel
	logger        *logrus.Entry
	now           func() time.Time
}

func NewAnnouncementService(
	nr notification.Repository,
	dl delivery.Log,
	hook immediateDispatcher,
	channels []delivery.Channel,
	logger *logrus.Entry,
) *AnnouncementService {
	return &AnnouncementService{
		notifications: nr,
		deliveries:    dl,
		hook:          hook,
		channels:      channels,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a notification, then hands it to the creation
// hook. The hook runs detached, so Create never waits on a channel.
func (s *AnnouncementService) Create(ctx context.Context, in NewAnnouncement) (*notification.Notification, error) {
	n := &notification.Notification{
		Title:   strings.TrimSpace(in.Title),
		Body:    strings.TrimSpace(in.Body),
		StartAt: in.StartAt.UTC(),
		EndAt:   in.EndAt.UTC(),
		Enabled: in.Enabled,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"start_at":        n.StartAt.Format(time.RFC3339),
		"end_at":          n.EndAt.Format(time.RFC3339),
		"enabled":         n.Enabled,
	}).Info("Notification created")

	s.hook.TryImmediateDispatch(n)
	return n, nil
}

// AnnouncementChanges lists the fields an operator edits; nil leaves a field as stored.
type AnnouncementChanges struct {
	Title   *string
	Body    *string
	StartAt *time.Time
	EndAt   *time.Time
	Enabled *bool
}

// Update applies changes to a stored notification. When the result is active
// it goes through the creation hook, which is a no-op for pairs already sent.
func (s *AnnouncementService) Update(ctx context.Context, id int64, changes AnnouncementChanges) (*notification.Notification, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if changes.Title != nil {
		n.Title = *changes.Title
	}
	if changes.Body != nil {
		n.Body = *changes.Body
	}
	if changes.StartAt != nil {
		n.StartAt = *changes.StartAt
	}
	if changes.EndAt != nil {
		n.EndAt = *changes.EndAt
	}
	if changes.Enabled != nil {
		n.Enabled = *changes.Enabled
	}

	n.Title = strings.TrimSpace(n.Title)
	n.Body = strings.TrimSpace(n.Body)
	n.StartAt = n.StartAt.UTC()
	n.EndAt = n.EndAt.UTC()
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if err := s.notifications.Update(ctx, n); err != nil {
		if errors.Is(err, idb.ErrNotificationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update notification %d: %w", n.ID, err)
	}
	s.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"enabled":         n.Enabled,
	}).Info("Notification updated")

	s.hook.TryImmediateDispatch(n)
	return n, nil
}

// SetEnabled flips the operator kill switch.
func (s *AnnouncementService) SetEnabled(ctx context.Context, id int64, enabled bool) (*notification.Notification, error) {
	return s.Update(ctx, id, AnnouncementChanges{Enabled: &enabled})
}

// Delete removes the notification together with its delivery records.
func (s *AnnouncementService) Delete(ctx context.Context, id int64) error {
	if err := s.notifications.Delete(ctx, id); err != nil {
		if errors.Is(err, idb.ErrNotificationNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete notification %d: %w", id, err)
	}
	s.logger.WithField("notification_id", id).Info("Notification deleted")
	return nil
}

func (s *AnnouncementService) Get(ctx context.Context, id int64) (*notification.Notification, error) {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, idb.ErrNotificationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get notification %d: %w", id, err)
	}
	return n, nil
}

func (s *AnnouncementService) ListRecentActive(ctx context.Context) ([]*notification.Notification, error) {
	list, err := s.notifications.ListRecentActive(ctx, s.now(), RecentActiveLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent active notifications: %w", err)
	}
	return list, nil
}

func (s *AnnouncementService) DeliveryStats(ctx context.Context, id int64) ([]*delivery.ChannelStats, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	stats, err := s.deliveries.StatsForNotification(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery stats for notification %d: %w", id, err)
	}
	return stats, nil
}

func (s *AnnouncementService) ActivationState(ctx context.Context, id int64) (*ActivationState, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	state := &ActivationState{Notification: n, Active: n.IsActiveAt(s.now())}
	for _, channel := range s.channels {
		succeeded, err := s.deliveries.HasSucceeded(ctx, id, channel)
		if err != nil {
			return nil, fmt.Errorf("failed to read delivery log for notification %d: %w", id, err)
		}
		state.Channels = append(state.Channels, PairStatus{
			Channel: channel,
			State:   delivery.PairState(state.Active, succeeded),
		})
	}
	return state, nil
}
