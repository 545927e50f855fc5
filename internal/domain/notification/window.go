package notification

import "time"

// IsActive is the activation window evaluator: enabled AND start <= now <= end.
// Both bounds are inclusive. time.Time comparisons are instant based, so the
// location attached to each argument does not matter.
func IsActive(now, start, end time.Time, enabled bool) bool {
	if !enabled {
		return false
	}
	return !now.Before(start) && !now.After(end)
}

// IsExpired reports whether the window closed before now.
func IsExpired(now, end time.Time) bool {
	return now.After(end)
}
