package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"announcement_dispatcher/internal/domain/delivery"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

// sentOnceConflict targets the partial unique index delivery_records_sent_once_idx.
const sentOnceConflict = "ON CONFLICT (notification_id, channel) WHERE outcome = 'sent' DO NOTHING"

// PostgresDeliveryLog is the append-only delivery log. It never updates rows.
type PostgresDeliveryLog struct {
	db *sql.DB
}

func NewPostgresDeliveryLog(db *sql.DB) *PostgresDeliveryLog {
	return &PostgresDeliveryLog{db: db}
}

func (l *PostgresDeliveryLog) HasSucceeded(ctx context.Context, notificationID int64, channel delivery.Channel) (bool, error) {
	wrapMsg := fmt.Sprintf("unable to check delivery of notification %d on %s", notificationID, channel)

	query, args, err := psql.
		Select("COUNT(*)").
		From("delivery_records").
		Where(sq.Eq{"notification_id": notificationID}).
		Where(sq.Eq{"channel": string(channel)}).
		Where(sq.Eq{"outcome": string(delivery.OutcomeSent)}).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}

	var count int64
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}
	return count > 0, nil
}

// RecordAttempt inserts a new record. For sent outcomes the insert is
// conditional on no other sent record existing for the pair; losing that race
// yields delivery.ErrAlreadySent. A vanished notification yields ErrNotificationNotFound.
func (l *PostgresDeliveryLog) RecordAttempt(ctx context.Context, rec *delivery.Record) error {
	wrapMsg := fmt.Sprintf("unable to record %s attempt of notification %d on %s", rec.Outcome, rec.NotificationID, rec.Channel)

	suffix := "RETURNING id, recorded_at"
	if rec.Outcome == delivery.OutcomeSent {
		suffix = sentOnceConflict + " " + suffix
	}

	query, args, err := psql.
		Insert("delivery_records").
		Columns("notification_id", "channel", "outcome", "error_detail", "message", "attempted_at").
		Values(rec.NotificationID, string(rec.Channel), string(rec.Outcome), rec.ErrorDetail, rec.Message, rec.AttemptedAt.UTC()).
		Suffix(suffix).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	err = l.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID, &rec.RecordedAt)
	switch {
	case err == nil:
		return nil
	case err == sql.ErrNoRows, isPQError(err, pqUniqueViolation):
		return delivery.ErrAlreadySent
	case isPQError(err, pqForeignKeyViolation):
		return ErrNotificationNotFound
	default:
		return errors.Wrap(err, wrapMsg)
	}
}

// PurgeOlderThan deletes records recorded before cutoff, except sent records
// whose notification is still enabled with an open window: dropping those would
// make the next scan send the notification again.
func (l *PostgresDeliveryLog) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	wrapMsg := "unable to purge old delivery records"

	query, args, err := psql.
		Delete("delivery_records AS d").
		Where(sq.Lt{"d.recorded_at": cutoff.UTC()}).
		Where(sq.Expr(
			"(d.outcome <> ? OR NOT EXISTS (SELECT 1 FROM notifications n WHERE n.id = d.notification_id AND n.enabled AND n.end_at >= NOW()))",
			string(delivery.OutcomeSent),
		)).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	result, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	return count, nil
}

func (l *PostgresDeliveryLog) StatsForNotification(ctx context.Context, notificationID int64) ([]*delivery.ChannelStats, error) {
	wrapMsg := fmt.Sprintf("unable to get delivery stats for notification %d", notificationID)

	query, args, err := psql.
		Select(
			"channel",
			"COUNT(*)",
			"COUNT(*) FILTER (WHERE outcome = 'sent')",
			"COUNT(*) FILTER (WHERE outcome = 'failed')",
			"COUNT(*) FILTER (WHERE outcome = 'pending')",
		).
		From("delivery_records").
		Where(sq.Eq{"notification_id": notificationID}).
		GroupBy("channel").
		OrderBy("channel").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	stats := make([]*delivery.ChannelStats, 0)
	for rows.Next() {
		s := &delivery.ChannelStats{}
		if err := rows.Scan(&s.Channel, &s.Attempts, &s.Sent, &s.Failed, &s.Pending); err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	return stats, nil
}
