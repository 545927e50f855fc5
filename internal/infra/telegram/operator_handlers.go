package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"announcement_dispatcher/internal/app"
	idb "announcement_dispatcher/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const msgNotAuthorized = "Error: you are not allowed to run this command."

// RegisterOperatorHandlers registers the operator commands. /active and /stats
// are read only; /scan and /housekeep are restricted to the admin.
func RegisterOperatorHandlers(ctx context.Context, b *telebot.Bot, announcements *app.AnnouncementService, operator *app.OperatorService, baseLogger *logrus.Entry) {
	b.Handle("/active", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/active",
			"sender_id": c.Sender().ID,
		})
		if !operator.IsAdmin(c.Sender().ID) {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgNotAuthorized)
		}

		list, err := announcements.ListRecentActive(ctx)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to list active notifications")
			return c.Send("An error occurred while listing active notifications.")
		}
		handlerLogger.WithField("count", len(list)).Info("Listed active notifications")
		return c.Send(formatActiveList(list))
	})

	b.Handle("/stats", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/stats",
			"sender_id": c.Sender().ID,
		})
		if !operator.IsAdmin(c.Sender().ID) {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgNotAuthorized)
		}

		id, err := parseNotificationID(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		handlerLogger = handlerLogger.WithField("notification_id", id)

		state, err := announcements.ActivationState(ctx, id)
		if err != nil {
			if errors.Is(err, idb.ErrNotificationNotFound) {
				return c.Send(fmt.Sprintf("Notification #%d not found.", id))
			}
			handlerLogger.WithError(err).Error("Failed to load activation state")
			return c.Send("An error occurred while loading the notification.")
		}
		stats, err := announcements.DeliveryStats(ctx, id)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to load delivery stats")
			return c.Send("An error occurred while loading delivery statistics.")
		}
		return c.Send(formatState(state, stats))
	})

	b.Handle("/scan", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/scan",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		started := time.Now()
		result, err := operator.TriggerScan(ctx, c.Sender().ID)
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgNotAuthorized)
			}
			handlerLogger.WithError(err).Error("Manual scan failed")
			return c.Send(fmt.Sprintf("Scan failed: %s", err.Error()))
		}
		return c.Send(formatScanResult(result, time.Since(started)))
	})

	b.Handle("/housekeep", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/housekeep",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		count, err := operator.TriggerHousekeeping(ctx, c.Sender().ID)
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgNotAuthorized)
			}
			handlerLogger.WithError(err).Error("Manual housekeeping failed")
			return c.Send(fmt.Sprintf("Housekeeping failed: %s", err.Error()))
		}
		return c.Send(fmt.Sprintf("Deactivated %d expired notifications.", count))
	})
}
