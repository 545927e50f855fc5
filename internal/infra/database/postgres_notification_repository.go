// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"announcement_dispatcher/internal/domain/notification"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

var notificationColumns = []string{
	"id", "title", "body", "start_at", "end_at", "enabled", "created_at", "updated_at",
}

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	wrapMsg := "unable to create notification"

	query, args, err := psql.
		Insert("notifications").
		Columns("title", "body", "start_at", "end_at", "enabled").
		Values(n.Title, n.Body, n.StartAt.UTC(), n.EndAt.UTC(), n.Enabled).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	return nil
}

func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	wrapMsg := fmt.Sprintf("unable to get notification %d", id)

	query, args, err := psql.
		Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotificationNotFound
		}
		return nil, errors.Wrap(err, wrapMsg)
	}
	return n, nil
}

func (r *PostgresNotificationRepository) Update(ctx context.Context, n *notification.Notification) error {
	wrapMsg := fmt.Sprintf("unable to update notification %d", n.ID)

	query, args, err := psql.
		Update("notifications").
		Set("title", n.Title).
		Set("body", n.Body).
		Set("start_at", n.StartAt.UTC()).
		Set("end_at", n.EndAt.UTC()).
		Set("enabled", n.Enabled).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": n.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotificationNotFound
		}
		return errors.Wrap(err, wrapMsg)
	}
	return nil
}

// Delete removes the notification; its delivery records go with it (ON DELETE CASCADE).
func (r *PostgresNotificationRepository) Delete(ctx context.Context, id int64) error {
	wrapMsg := fmt.Sprintf("unable to delete notification %d", id)

	query, args, err := psql.Delete("notifications").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if rowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// ListRecentActive returns the most recently started notifications that are active at now.
func (r *PostgresNotificationRepository) ListRecentActive(ctx context.Context, now time.Time, limit uint64) ([]*notification.Notification, error) {
	query, args, err := activeAt(now).
		OrderBy("start_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list recent active notifications")
	}
	return r.list(ctx, "unable to list recent active notifications", query, args)
}

func (r *PostgresNotificationRepository) ListActiveCandidates(ctx context.Context, now time.Time) ([]*notification.Notification, error) {
	query, args, err := activeAt(now).OrderBy("id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list active notifications")
	}
	return r.list(ctx, "unable to list active notifications", query, args)
}

func (r *PostgresNotificationRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	wrapMsg := "unable to deactivate expired notifications"

	query, args, err := psql.
		Update("notifications").
		Set("enabled", false).
		Set("updated_at", now.UTC()).
		Where(sq.Lt{"end_at": now.UTC()}).
		Where(sq.Eq{"enabled": true}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	return count, nil
}

// activeAt selects notifications with enabled = true AND start_at <= now AND end_at >= now.
func activeAt(now time.Time) sq.SelectBuilder {
	return psql.
		Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"enabled": true}).
		Where(sq.LtOrEq{"start_at": now.UTC()}).
		Where(sq.GtOrEq{"end_at": now.UTC()})
}

func (r *PostgresNotificationRepository) list(ctx context.Context, wrapMsg, query string, args []interface{}) ([]*notification.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	notifications := make([]*notification.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	return notifications, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*notification.Notification, error) {
	n := &notification.Notification{}
	err := row.Scan(&n.ID, &n.Title, &n.Body, &n.StartAt, &n.EndAt, &n.Enabled, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.StartAt = n.StartAt.UTC()
	n.EndAt = n.EndAt.UTC()
	return n, nil
}
