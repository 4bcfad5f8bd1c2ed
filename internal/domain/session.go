package domain

import "time"

// Status is the gateway session connection state.
type Status string

const (
	StatusDisconnected      Status = "disconnected"
	StatusConnecting        Status = "connecting"
	StatusAwaitingChallenge Status = "awaiting_challenge"
	StatusAuthenticating    Status = "authenticating"
	StatusConnected         Status = "connected"
)

// ConnState is an observable snapshot of the session's connection. It is
// derived from the session's transition logic and never mutated elsewhere.
type ConnState struct {
	Status          Status
	LastError       error
	LastConnectedAt time.Time
	DisconnectedAt  time.Time
}
