package delivery

// State is the scheduler-side state of a (notification, channel) pair.
type State string

const (
	StateNotDue    State = "NOT_DUE"    // window not active, or disabled
	StateDueUnsent State = "DUE_UNSENT" // active, no sent record yet (also after a failed attempt)
	StateSent      State = "SENT"       // terminal
)

// PairState derives the pair state from the window evaluation and the log.
// A sent record is terminal even when the window has since closed.
func PairState(active, succeeded bool) State {
	switch {
	case succeeded:
		return StateSent
	case active:
		return StateDueUnsent
	default:
		return StateNotDue
	}
}
