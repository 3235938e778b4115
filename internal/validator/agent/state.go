package agent

// State is the connection manager's position in its session lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingSignup
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingSignup:
		return "awaiting_signup"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}
