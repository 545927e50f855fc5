package database

import (
	"context"
	"database/sql"

	"announcement_dispatcher/internal/domain/subscriber"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

type PostgresSubscriberRepository struct {
	db *sql.DB
}

func NewPostgresSubscriberRepository(db *sql.DB) *PostgresSubscriberRepository {
	return &PostgresSubscriberRepository{db: db}
}

func (r *PostgresSubscriberRepository) ListActive(ctx context.Context) ([]*subscriber.Subscriber, error) {
	wrapMsg := "unable to list active subscribers"

	query, args, err := psql.
		Select("user_id", "email", "display_name", "push_enabled", "email_enabled").
		From("subscribers").
		Where(sq.Eq{"active": true}).
		OrderBy("user_id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	subscribers := make([]*subscriber.Subscriber, 0)
	for rows.Next() {
		s := &subscriber.Subscriber{}
		if err := rows.Scan(&s.UserID, &s.Email, &s.DisplayName, &s.PushEnabled, &s.EmailEnabled); err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	return subscribers, nil
}
