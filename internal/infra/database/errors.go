package database

import (
	"errors"

	"github.com/lib/pq"
)

// Custom errors
var ErrNotificationNotFound = errors.New("notification not found")

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func isPQError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
