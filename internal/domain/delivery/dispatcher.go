package delivery

import (
	"context"

	"announcement_dispatcher/internal/domain/notification"
)

// Result is what a Dispatcher reports for one invocation.
type Result struct {
	Success bool
	// Skipped means the channel declined to try (its own predicate failed or it
	// has no recipients). Nothing is recorded for a skipped dispatch.
	Skipped bool
	Detail  string
}

// Dispatcher delivers a notification to one external channel. Each call makes
// at most one outbound network call and never retries internally; the
// context carries the dispatch timeout.
type Dispatcher interface {
	Channel() Channel
	Dispatch(ctx context.Context, n *notification.Notification) Result
}

func Sent(detail string) Result    { return Result{Success: true, Detail: detail} }
func Failed(detail string) Result  { return Result{Detail: detail} }
func Skipped(detail string) Result { return Result{Skipped: true, Detail: detail} }
