package listener

// State is the connection lifecycle of the queue listener.
type State int32

const (
	StateConnecting State = iota
	StatePolling
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StatePolling:
		return "polling"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// transitions lists the legal moves out of each state. Connecting may loop
// on itself after a setup failure. Stopped is terminal.
var transitions = map[State][]State{
	StateConnecting: {StateConnecting, StatePolling, StateStopped},
	StatePolling:    {StateBackoff, StateStopped},
	StateBackoff:    {StateConnecting, StateStopped},
	StateStopped:    {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
