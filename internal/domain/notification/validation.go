package notification

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidTitle  = errors.New("title must be between 1 and 255 characters")
	ErrInvalidBody   = errors.New("body must be between 1 and 2000 characters")
	ErrInvalidWindow = errors.New("activation end must not be before activation start")
)

var validate = validator.New()

// fields is the validated view of a Notification. Text is trimmed first so a
// whitespace-only title counts as empty.
type fields struct {
	Title   string    `validate:"required,max=255"`
	Body    string    `validate:"required,max=2000"`
	StartAt time.Time `validate:"required"`
	EndAt   time.Time `validate:"required,gtefield=StartAt"`
}

// Validate checks the invariants the store relies on. Window evaluation
// downstream trusts them and never re-validates.
func (n *Notification) Validate() error {
	err := validate.Struct(fields{
		Title:   strings.TrimSpace(n.Title),
		Body:    strings.TrimSpace(n.Body),
		StartAt: n.StartAt,
		EndAt:   n.EndAt,
	})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].StructField() {
	case "Title":
		return ErrInvalidTitle
	case "Body":
		return ErrInvalidBody
	default:
		return ErrInvalidWindow
	}
}
