package session

// State is the orchestrator's position in the session lifecycle.
type State int

const (
	// StateUninitialized means no identity or transport exists yet.
	StateUninitialized State = iota

	// StateReady means the transport is listening and a descriptor can be
	// shared.
	StateReady

	// StateHandshakeSent means we dialed out and sent handshake-initiate.
	StateHandshakeSent

	// StateHandshakeReceived means an inbound handshake-initiate is being
	// answered.
	StateHandshakeReceived

	// StateComplete means the session key is established; messages flow.
	StateComplete

	// StateFailed is terminal until a full teardown and re-Init.
	StateFailed
)

// String returns the lifecycle name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateHandshakeSent:
		return "handshake-sent"
	case StateHandshakeReceived:
		return "handshake-received"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
