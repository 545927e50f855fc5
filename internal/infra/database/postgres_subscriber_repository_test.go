package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListActiveSubscribers(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresSubscriberRepository(db)

	mock.ExpectQuery(`SELECT user_id, email, display_name, push_enabled, email_enabled FROM subscribers WHERE active = \$1 ORDER BY user_id`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "email", "display_name", "push_enabled", "email_enabled"}).
			AddRow(1, "ana@example.com", "Ana", true, false).
			AddRow(2, "bo@example.com", nil, false, true))

	subscribers, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, subscribers, 2)

	assert.Equal(t, int64(1), subscribers[0].UserID)
	assert.True(t, subscribers[0].DisplayName.Valid)
	assert.Equal(t, "Ana", subscribers[0].DisplayName.String)
	assert.True(t, subscribers[0].PushEnabled)

	assert.False(t, subscribers[1].DisplayName.Valid)
	assert.True(t, subscribers[1].EmailEnabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveSubscribersQueryError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresSubscriberRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM subscribers`).WillReturnError(assert.AnError)

	_, err := repo.ListActive(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "unable to list active subscribers")
}
